package executor

import (
	"errors"
	"fmt"
	"sync"

	uatomic "go.uber.org/atomic"
)

var (
	errBadRunnable = errors.New("empty runnable")
	errNotRunning  = errors.New("executor is not running")
	errQueueIsFull = errors.New("executor queue is full")
)

// Runnable one unit of work
type Runnable interface {
	Run()
}

// RunnableFunc adapts a plain func to Runnable
type RunnableFunc func()

// Run calls the wrapped func
func (f RunnableFunc) Run() { f() }

// Pool executes submitted tasks on a bounded set of goroutines, the
// completion work of the consumption pipeline runs here so RPC
// goroutines never execute user visible callbacks
type Pool struct {
	name string

	tasks   chan Runnable
	stopped uatomic.Bool

	// submitLock serializes Execute against the channel close in
	// Shutdown
	submitLock sync.RWMutex
	wg         sync.WaitGroup
}

// NewPool creates the pool, every worker goroutine is started eagerly
func NewPool(name string, workerCount, queueSize int) (*Pool, error) {
	if workerCount <= 0 {
		return nil, errors.New("new pool error:non-positive worker count")
	}
	if queueSize <= 0 {
		return nil, errors.New("new pool error:non-positive queue size")
	}

	p := &Pool{
		name:  name,
		tasks: make(chan Runnable, queueSize),
	}
	p.startWorkers(workerCount)
	return p, nil
}

func (p *Pool) startWorkers(count int) {
	p.wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer p.wg.Done()
			for r := range p.tasks {
				r.Run()
			}
		}()
	}
}

// Execute submits one task, it never blocks, a full queue is reported
// as an error to the caller
func (p *Pool) Execute(r Runnable) error {
	if r == nil {
		return errBadRunnable
	}

	p.submitLock.RLock()
	defer p.submitLock.RUnlock()
	if p.stopped.Load() {
		return errNotRunning
	}

	select {
	case p.tasks <- r:
		return nil
	default:
		return errQueueIsFull
	}
}

// Shutdown drains the queued tasks and stops the workers
func (p *Pool) Shutdown() {
	p.submitLock.Lock()
	if !p.stopped.CompareAndSwap(false, true) {
		p.submitLock.Unlock()
		return
	}
	close(p.tasks)
	p.submitLock.Unlock()

	p.wg.Wait()
}

func (p *Pool) String() string {
	return fmt.Sprintf("Pool:[name=%s,queued=%d]", p.name, len(p.tasks))
}
