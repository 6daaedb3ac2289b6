package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolExecutes(t *testing.T) {
	p, err := NewPool("test", 2, 8)
	assert.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ran := 0

	wg.Add(10)
	for i := 0; i < 10; i++ {
		err := p.Execute(RunnableFunc(func() {
			mu.Lock()
			ran++
			mu.Unlock()
			wg.Done()
		}))
		assert.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, 10, ran)
	p.Shutdown()
}

func TestPoolRejects(t *testing.T) {
	p, err := NewPool("test", 1, 1)
	assert.NoError(t, err)
	defer p.Shutdown()

	assert.Error(t, p.Execute(nil))

	block := make(chan struct{})
	assert.NoError(t, p.Execute(RunnableFunc(func() { <-block })))

	// the single worker is blocked, fill the queue then overflow it
	assert.Eventually(t, func() bool {
		err := p.Execute(RunnableFunc(func() {}))
		if err != nil {
			return true
		}
		return false
	}, time.Second, time.Millisecond)

	close(block)
}

func TestPoolShutdownDrains(t *testing.T) {
	p, err := NewPool("test", 1, 8)
	assert.NoError(t, err)

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		assert.NoError(t, p.Execute(RunnableFunc(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})))
	}

	p.Shutdown()
	assert.Equal(t, 5, ran)
	assert.Error(t, p.Execute(RunnableFunc(func() {})))
}

func TestPoolBadArgs(t *testing.T) {
	_, err := NewPool("test", 0, 1)
	assert.Error(t, err)

	_, err = NewPool("test", 1, 0)
	assert.Error(t, err)
}
