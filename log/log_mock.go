package log

import "fmt"

// MockLogger prints everything to the stdout, test usage only
type MockLogger struct{}

func (l MockLogger) Debug(v ...interface{})                 { l.println(v...) }
func (l MockLogger) Debugf(format string, v ...interface{}) { l.printlnf(format, v...) }
func (l MockLogger) Info(v ...interface{})                  { l.println(v...) }
func (l MockLogger) Infof(format string, v ...interface{})  { l.printlnf(format, v...) }
func (l MockLogger) Warn(v ...interface{})                  { l.println(v...) }
func (l MockLogger) Warnf(format string, v ...interface{})  { l.printlnf(format, v...) }
func (l MockLogger) Error(v ...interface{})                 { l.println(v...) }
func (l MockLogger) Errorf(format string, v ...interface{}) { l.printlnf(format, v...) }

func (l MockLogger) println(v ...interface{}) {
	fmt.Print(v...)
	fmt.Println()
}

func (l MockLogger) printlnf(format string, v ...interface{}) {
	fmt.Printf(format, v...)
	fmt.Println()
}

// Discard drops everything
type Discard struct{}

func (Discard) Debug(v ...interface{})                 {}
func (Discard) Debugf(format string, v ...interface{}) {}
func (Discard) Info(v ...interface{})                  {}
func (Discard) Infof(format string, v ...interface{})  {}
func (Discard) Warn(v ...interface{})                  {}
func (Discard) Warnf(format string, v ...interface{})  {}
func (Discard) Error(v ...interface{})                 {}
func (Discard) Errorf(format string, v ...interface{}) {}
