package consumer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerFiresInDelayOrder(t *testing.T) {
	s := newScheduler(1)
	defer s.shutdown()

	var mu sync.Mutex
	var fired []int
	record := func(id int) func() {
		return func() {
			mu.Lock()
			fired = append(fired, id)
			mu.Unlock()
		}
	}

	assert.NoError(t, s.scheduleFuncAfter(record(3), 30*time.Millisecond))
	assert.NoError(t, s.scheduleFuncAfter(record(1), 5*time.Millisecond))
	assert.NoError(t, s.scheduleFuncAfter(record(2), 15*time.Millisecond))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, fired)
	mu.Unlock()
}

func TestSchedulerEarlierTaskPreempts(t *testing.T) {
	s := newScheduler(1)
	defer s.shutdown()

	done := make(chan int, 2)
	assert.NoError(t, s.scheduleFuncAfter(func() { done <- 2 }, 60*time.Millisecond))
	assert.NoError(t, s.scheduleFuncAfter(func() { done <- 1 }, 5*time.Millisecond))

	assert.Equal(t, 1, <-done)
	assert.Equal(t, 2, <-done)
}

func TestSchedulerShutdown(t *testing.T) {
	s := newScheduler(2)

	waitChan := make(chan struct{})
	assert.NoError(t, s.scheduleFuncAfter(func() { close(waitChan) }, time.Millisecond))
	<-waitChan

	s.shutdown()
	assert.Equal(t, errShutdown, s.scheduleFuncAfter(func() {}, time.Millisecond))
}
