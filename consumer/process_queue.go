package consumer

import (
	"sync"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/lonre/rocketmq-clients/log"
	"github.com/lonre/rocketmq-clients/message"
)

// fixed timings of the consumption pipeline
const (
	receiveLongPollingTimeout = 15 * time.Second
	receiveLaterDelay         = 3 * time.Second

	pullLongPollingTimeout = 15 * time.Second
	pullLaterDelay         = 3 * time.Second

	maxIdleTime = 30 * time.Second

	ackFifoMessageDelay    = 100 * time.Millisecond
	redirectFifoToDlqDelay = 100 * time.Millisecond
)

// ProcessQueue the per-partition consumption pipeline, it fetches from
// the owning broker, buffers under backpressure, hands messages to the
// consume service and settles them according to the consume result
//
// messages live in two ordered sequences, pending holds what was
// fetched but not handed out yet, inflight holds what was handed out
// but not erased yet, cross-sequence operations take both locks in the
// fixed order pending then inflight
type ProcessQueue struct {
	consumer *PushConsumer

	messageQueue     *message.Queue
	filterExpression FilterExpression
	typ              Type

	dropped  *uatomic.Bool
	dropOnce sync.Once
	dropChan chan struct{}

	pendingLock sync.RWMutex
	pending     []*message.Ext

	inflightLock sync.RWMutex
	inflight     []*message.Ext

	cachedBytes *uatomic.Int64
	fifoBusy    *uatomic.Bool

	ledger offsetLedger

	activityNanos *uatomic.Int64
	throttleNanos *uatomic.Int64

	logger log.Logger
}

func newProcessQueue(
	c *PushConsumer, mq *message.Queue, filter FilterExpression, typ Type,
) *ProcessQueue {
	now := time.Now().UnixNano()
	return &ProcessQueue{
		consumer: c,

		messageQueue:     mq,
		filterExpression: filter,
		typ:              typ,

		dropped:  uatomic.NewBool(false),
		dropChan: make(chan struct{}),

		cachedBytes: uatomic.NewInt64(0),
		fifoBusy:    uatomic.NewBool(false),

		activityNanos: uatomic.NewInt64(now),
		throttleNanos: uatomic.NewInt64(now),

		logger: c.logger,
	}
}

// MessageQueue returns the partition this queue works on
func (pq *ProcessQueue) MessageQueue() *message.Queue {
	return pq.messageQueue
}

// Start begins the fetch cycle matching the consume type
func (pq *ProcessQueue) Start() {
	switch pq.typ {
	case Push:
		pq.receiveMessage()
	case Pull:
		pq.startPull()
	}
}

// Drop terminates new work, in-flight RPC callbacks observe the flag
// and exit early, dropping is monotonic
func (pq *ProcessQueue) Drop() {
	pq.dropOnce.Do(func() {
		pq.dropped.Store(true)
		close(pq.dropChan)
	})
}

// IsDropped returns true once Drop was called
func (pq *ProcessQueue) IsDropped() bool {
	return pq.dropped.Load()
}

// Expired returns true when both the fetch activity and the throttle
// activity went idle beyond the limit, a backpressured queue never
// expires by itself
func (pq *ProcessQueue) Expired() bool {
	now := time.Now().UnixNano()

	idle := time.Duration(now - pq.activityNanos.Load())
	if idle < maxIdleTime {
		return false
	}

	throttleIdle := time.Duration(now - pq.throttleNanos.Load())
	if throttleIdle < maxIdleTime {
		return false
	}

	pq.logger.Warnf(
		"process queue is idle, reception idle time:%s, throttle idle time:%s, mq:%s",
		idle, throttleIdle, pq.messageQueue,
	)
	return true
}

func (pq *ProcessQueue) throttled() bool {
	quantity := int64(pq.CachedMessagesQuantity())
	if th := pq.consumer.quantityThreshold.Load(); quantity >= th {
		pq.logger.Warnf(
			"process queue total messages quantity exceeds the threshold, threshold:%d, actual:%d, mq:%s",
			th, quantity, pq.messageQueue,
		)
		return true
	}

	bytes := pq.CachedMessageBytes()
	if th := pq.consumer.bytesThreshold.Load(); bytes >= th {
		pq.logger.Warnf(
			"process queue total messages memory exceeds the threshold, threshold:%d bytes, actual:%d bytes, mq:%s",
			th, bytes, pq.messageQueue,
		)
		return true
	}
	return false
}

// cacheMessages appends fetched messages to pending, broadcasting mode
// also books their offsets into the ledger
func (pq *ProcessQueue) cacheMessages(msgs []*message.Ext) {
	broadcasting := pq.consumer.config.MessageModel == Broadcasting

	pq.pendingLock.Lock()
	for _, m := range msgs {
		pq.pending = append(pq.pending, m)
		pq.cachedBytes.Add(int64(len(m.Body)))
		if broadcasting {
			pq.ledger.add(m.QueueOffset())
		}
	}
	pq.pendingLock.Unlock()
}

// TryTakeMessages atomically moves up to batchMaxSize head messages
// from pending to inflight, with a rate limiter installed for the topic
// the take stops once no permit is available
func (pq *ProcessQueue) TryTakeMessages(batchMaxSize int) []*message.Ext {
	pq.pendingLock.Lock()
	pq.inflightLock.Lock()
	defer func() {
		pq.inflightLock.Unlock()
		pq.pendingLock.Unlock()
	}()

	limiter := pq.consumer.rateLimiter(pq.messageQueue.Topic)

	if limiter == nil {
		n := len(pq.pending)
		if n > batchMaxSize {
			n = batchMaxSize
		}
		if n <= 0 {
			return nil
		}

		taken := make([]*message.Ext, n)
		copy(taken, pq.pending[:n])
		pq.inflight = append(pq.inflight, taken...)
		pq.pending = pq.pending[n:]
		return taken
	}

	var taken []*message.Ext
	for len(pq.pending) > 0 && len(taken) < batchMaxSize && limiter.Allow() {
		head := pq.pending[0]
		taken = append(taken, head)
		pq.inflight = append(pq.inflight, head)
		pq.pending = pq.pending[1:]
	}
	return taken
}

// TryTakeFifoMessage takes the head message while occupying the single
// fifo slot, nil is returned when nothing is pending, the slot is taken
// or no rate permit is available, every taken message MUST be settled
// through EraseFifoMessage
func (pq *ProcessQueue) TryTakeFifoMessage() *message.Ext {
	pq.pendingLock.Lock()
	pq.inflightLock.Lock()
	defer func() {
		pq.inflightLock.Unlock()
		pq.pendingLock.Unlock()
	}()

	if len(pq.pending) == 0 {
		return nil
	}
	if !pq.fifoInbound() {
		pq.logger.Debugf("fifo consumption task is not finished, mq:%s", pq.messageQueue)
		return nil
	}

	if limiter := pq.consumer.rateLimiter(pq.messageQueue.Topic); limiter != nil && !limiter.Allow() {
		pq.fifoOutbound()
		return nil
	}

	head := pq.pending[0]
	pq.pending = pq.pending[1:]
	pq.inflight = append(pq.inflight, head)
	return head
}

// eraseFromInflight removes the messages from inflight and reclaims
// their byte budget, unknown messages are skipped, they may have been
// removed by a concurrent drop
func (pq *ProcessQueue) eraseFromInflight(msgs []*message.Ext) {
	pq.inflightLock.Lock()
	for _, m := range msgs {
		for i, cached := range pq.inflight {
			if cached == m {
				pq.inflight = append(pq.inflight[:i], pq.inflight[i+1:]...)
				pq.cachedBytes.Sub(int64(len(m.Body)))
				break
			}
		}
	}
	pq.inflightLock.Unlock()
}

func (pq *ProcessQueue) fifoInbound() bool {
	return pq.fifoBusy.CompareAndSwap(false, true)
}

func (pq *ProcessQueue) fifoOutbound() {
	pq.fifoBusy.CompareAndSwap(true, false)
}

// CachedMessagesQuantity returns the buffered message count across
// both sequences
func (pq *ProcessQueue) CachedMessagesQuantity() int {
	pq.pendingLock.RLock()
	pq.inflightLock.RLock()
	defer func() {
		pq.inflightLock.RUnlock()
		pq.pendingLock.RUnlock()
	}()
	return len(pq.pending) + len(pq.inflight)
}

// InflightMessagesQuantity returns the handed out message count
func (pq *ProcessQueue) InflightMessagesQuantity() int {
	pq.inflightLock.RLock()
	defer pq.inflightLock.RUnlock()
	return len(pq.inflight)
}

// CachedMessageBytes returns the buffered body bytes across both
// sequences
func (pq *ProcessQueue) CachedMessageBytes() int64 {
	return pq.cachedBytes.Load()
}

// CommittedOffset returns the broadcasting watermark, the next offset
// whose consumption has not concluded yet, ok is false while nothing
// concluded
func (pq *ProcessQueue) CommittedOffset() (int64, bool) {
	return pq.ledger.committedOffset()
}
