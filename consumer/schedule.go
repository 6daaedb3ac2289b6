package consumer

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errShutdown = errors.New("scheduler shutdown")

type scheduledTask struct {
	fireTime time.Time
	seq      int64
	f        func()
}

// taskHeap orders by fire time, the sequence breaks the tie so equal
// times keep submission order
type taskHeap []*scheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if d := h[i].fireTime.Sub(h[j].fireTime); d != 0 {
		return d < 0
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*scheduledTask)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old) - 1
	t := old[n]
	old[n] = nil
	*h = old[:n]
	return t
}

// scheduler fires single-shot delayed tasks, every deferred retry of
// the consumption pipeline goes through here
type scheduler struct {
	seq int64

	lock    sync.Mutex
	pending taskHeap
	wakeup  chan struct{}

	ready chan *scheduledTask

	stopped  int32
	exitChan chan struct{}
	wg       sync.WaitGroup
}

func newScheduler(workerCount int) *scheduler {
	if workerCount <= 0 {
		workerCount = 1
	}

	s := &scheduler{
		pending:  make(taskHeap, 0, 16),
		wakeup:   make(chan struct{}, 1),
		ready:    make(chan *scheduledTask, 16),
		exitChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.timerLoop()

	s.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go s.workerLoop()
	}
	return s
}

// scheduleFuncAfter runs f once after the delay
func (s *scheduler) scheduleFuncAfter(f func(), delay time.Duration) error {
	if atomic.LoadInt32(&s.stopped) > 0 {
		return errShutdown
	}

	t := &scheduledTask{
		fireTime: time.Now().Add(delay),
		seq:      atomic.AddInt64(&s.seq, 1),
		f:        f,
	}

	s.lock.Lock()
	heap.Push(&s.pending, t)
	isEarliest := s.pending[0] == t
	s.lock.Unlock()

	if isEarliest {
		select {
		case s.wakeup <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *scheduler) timerLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		select {
		case <-s.wakeup:
		case <-timer.C:
		case <-s.exitChan:
			return
		}

		for {
			t, delay := s.nextReady()
			if t == nil {
				timer.Reset(delay)
				break
			}
			select {
			case s.ready <- t:
			case <-s.exitChan:
				return
			}
		}
	}
}

// nextReady pops a due task, or returns the delay until the earliest
// pending one
func (s *scheduler) nextReady() (*scheduledTask, time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.pending) == 0 {
		return nil, time.Hour
	}

	t := s.pending[0]
	delay := time.Until(t.fireTime)
	if delay > 0 {
		return nil, delay
	}
	heap.Pop(&s.pending)
	return t, 0
}

func (s *scheduler) workerLoop() {
	defer s.wg.Done()
	for {
		select {
		case t := <-s.ready:
			t.f()
		case <-s.exitChan:
			return
		}
	}
}

func (s *scheduler) pendingCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.pending)
}

func (s *scheduler) shutdown() {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	close(s.exitChan)
	s.wg.Wait()
}
