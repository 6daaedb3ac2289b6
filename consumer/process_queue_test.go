package consumer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/lonre/rocketmq-clients/client"
	"github.com/lonre/rocketmq-clients/log"
	"github.com/lonre/rocketmq-clients/message"
	"github.com/lonre/rocketmq-clients/route"
	"github.com/lonre/rocketmq-clients/rpc"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 10 * time.Millisecond
)

type fakeConsumeService struct {
	mu         sync.Mutex
	dispatched int
	consumeFn  func(*message.Ext) ConsumeStatus
}

func (s *fakeConsumeService) Dispatch() {
	s.mu.Lock()
	s.dispatched++
	s.mu.Unlock()
}

func (s *fakeConsumeService) dispatchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched
}

func (s *fakeConsumeService) Consume(msg *message.Ext, _ time.Duration) <-chan ConsumeStatus {
	ch := make(chan ConsumeStatus, 1)
	go func() {
		s.mu.Lock()
		fn := s.consumeFn
		s.mu.Unlock()

		if fn == nil {
			close(ch)
			return
		}
		ch <- fn(msg)
		close(ch)
	}()
	return ch
}

type fakeOffsetStore struct {
	offset int64
	err    error

	mu      sync.Mutex
	written map[message.Key]int64
}

func (s *fakeOffsetStore) ReadOffset(*message.Queue) (int64, error) {
	return s.offset, s.err
}

func (s *fakeOffsetStore) WriteOffset(mq *message.Queue, offset int64) error {
	s.mu.Lock()
	if s.written == nil {
		s.written = make(map[message.Key]int64)
	}
	s.written[mq.Key()] = offset
	s.mu.Unlock()
	return nil
}

func testEndpoints() route.Endpoints {
	return route.NewEndpoints(route.Address{Host: "127.0.0.1", Port: 8081})
}

func testQueue() *message.Queue {
	return &message.Queue{
		Topic:      "foo",
		BrokerName: "broker-0",
		QueueID:    0,
		Endpoints:  testEndpoints(),
	}
}

func testMessage(id string, bodyLen int, offset int64) *message.Ext {
	return &message.Ext{
		Topic: "foo",
		Body:  bytes.Repeat([]byte("x"), bodyLen),
		System: message.SystemAttribute{
			MessageID:       id,
			ReceiptHandle:   "rh-" + id,
			QueueOffset:     offset,
			DeliveryAttempt: 1,
			AckEndpoints:    testEndpoints(),
		},
	}
}

func wireMessage(id string, body []byte, offset int64) *rpc.Message {
	return &rpc.Message{
		Topic: rpc.Resource{Name: "foo"},
		Body:  body,
		SystemAttribute: rpc.SystemAttribute{
			MessageID:     id,
			ReceiptHandle: "rh-" + id,
			QueueOffset:   offset,
		},
	}
}

func newTestConsumer(
	t *testing.T, conf Config, listenerType ListenerType, m client.Manager, svc ConsumeService,
) *PushConsumer {
	c, err := NewPushConsumer("test-group", "arn:test", conf, listenerType, m, svc, log.Discard{})
	assert.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func newTestQueue(
	t *testing.T, conf Config, listenerType ListenerType, m client.Manager, svc ConsumeService,
) (*PushConsumer, *ProcessQueue) {
	c := newTestConsumer(t, conf, listenerType, m, svc)
	pq, ok := c.CreateProcessQueue(testQueue(), SubAll(), Push)
	assert.True(t, ok)
	return c, pq
}

func TestTryTakeMessagesAndAck(t *testing.T) {
	m := &client.MockManager{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	msg := testMessage("A", 10, 100)
	pq.cacheMessages([]*message.Ext{msg})
	assert.Equal(t, 1, pq.CachedMessagesQuantity())
	assert.Equal(t, int64(10), pq.CachedMessageBytes())

	taken := pq.TryTakeMessages(1)
	assert.Equal(t, []*message.Ext{msg}, taken)
	assert.Equal(t, 1, pq.InflightMessagesQuantity())
	assert.Equal(t, int64(10), pq.CachedMessageBytes())

	pq.EraseMessages(taken, ConsumeOK)
	assert.Equal(t, 0, pq.CachedMessagesQuantity())
	assert.Equal(t, int64(0), pq.CachedMessageBytes())

	assert.Eventually(t, func() bool { return len(m.AckRequests()) == 1 }, waitTimeout, waitTick)
	req := m.AckRequests()[0]
	assert.Equal(t, "A", req.MessageID)
	assert.Equal(t, "rh-A", req.ReceiptHandle)
	assert.Equal(t, "test-group", req.Group.Name)
	assert.Equal(t, testEndpoints(), m.AckEndpoints()[0])
	assert.Empty(t, m.NackRequests())
}

func TestEraseMessagesNackOnError(t *testing.T) {
	m := &client.MockManager{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	msgs := []*message.Ext{testMessage("A", 10, 100), testMessage("B", 10, 101)}
	pq.cacheMessages(msgs)

	taken := pq.TryTakeMessages(10)
	assert.Len(t, taken, 2)

	pq.EraseMessages(taken, ConsumeError)
	assert.Equal(t, int64(0), pq.CachedMessageBytes())

	assert.Eventually(t, func() bool { return len(m.NackRequests()) == 2 }, waitTimeout, waitTick)
	assert.Empty(t, m.AckRequests())
}

func TestEraseMessagesBroadcasting(t *testing.T) {
	conf := DefaultConfig()
	conf.MessageModel = Broadcasting

	m := &client.MockManager{}
	_, pq := newTestQueue(t, conf, ListenerConcurrently, m, &fakeConsumeService{})

	pq.cacheMessages([]*message.Ext{testMessage("A", 10, 100)})
	pq.cacheMessages([]*message.Ext{testMessage("B", 10, 101)})
	assert.Equal(t, 2, pq.ledger.size())

	_, ok := pq.CommittedOffset()
	assert.False(t, ok)

	taken := pq.TryTakeMessages(10)
	pq.EraseMessages(taken, ConsumeOK)

	offset, ok := pq.CommittedOffset()
	assert.True(t, ok)
	assert.Equal(t, int64(102), offset)
	assert.Equal(t, 1, pq.ledger.size())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, m.AckRequests())
	assert.Empty(t, m.NackRequests())
}

func TestReceiveThrottledDefersRPC(t *testing.T) {
	conf := DefaultConfig()
	conf.CachedMessagesQuantityThresholdPerQueue = 1

	m := &client.MockManager{}
	_, pq := newTestQueue(t, conf, ListenerConcurrently, m, &fakeConsumeService{})

	pq.cacheMessages([]*message.Ext{testMessage("A", 10, 100)})

	before := pq.throttleNanos.Load()
	time.Sleep(time.Millisecond)
	pq.receiveMessage()

	assert.Greater(t, pq.throttleNanos.Load(), before)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, m.ReceiveRequests())
	assert.Equal(t, 1, pq.consumer.scheduler.pendingCount())
}

func TestReceiveCachesAndSignals(t *testing.T) {
	var calls int
	m := &client.MockManager{}
	m.ReceiveFunc = func(*rpc.ReceiveMessageRequest) (*rpc.ReceiveMessageResponse, error) {
		calls++
		if calls == 1 {
			return &rpc.ReceiveMessageResponse{
				Common:   rpc.OKStatus(),
				Messages: []*rpc.Message{wireMessage("A", []byte("0123456789"), 100)},
			}, nil
		}
		return nil, errors.New("connection reset")
	}

	svc := &fakeConsumeService{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, svc)

	pq.Start()

	assert.Eventually(t, func() bool { return pq.CachedMessagesQuantity() == 1 }, waitTimeout, waitTick)
	assert.Eventually(t, func() bool { return svc.dispatchedCount() == 1 }, waitTimeout, waitTick)
	assert.Eventually(t, func() bool { return len(m.ReceiveRequests()) == 2 }, waitTimeout, waitTick)

	req := m.ReceiveRequests()[0]
	assert.Equal(t, "foo", req.Partition.Topic.Name)
	assert.Equal(t, "arn:test", req.Partition.Topic.Arn)
	assert.Equal(t, int32(defaultMaxAwaitBatchSizePerQueue), req.BatchSize)
	assert.False(t, req.FifoFlag)

	assert.Equal(t, int64(10), pq.CachedMessageBytes())
	pq.Drop()
}

func TestReceiveStampsDeliveryMetadata(t *testing.T) {
	deliveryTime := time.Unix(1700000000, 0)

	var calls int
	m := &client.MockManager{}
	m.ReceiveFunc = func(*rpc.ReceiveMessageRequest) (*rpc.ReceiveMessageResponse, error) {
		calls++
		if calls == 1 {
			return &rpc.ReceiveMessageResponse{
				Common:            rpc.OKStatus(),
				Messages:          []*rpc.Message{wireMessage("A", []byte("x"), 100)},
				DeliveryTimestamp: timestamppb.New(deliveryTime),
				InvisibleDuration: durationpb.New(45 * time.Second),
			}, nil
		}
		return nil, errors.New("stop")
	}

	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})
	pq.Start()

	assert.Eventually(t, func() bool { return pq.CachedMessagesQuantity() == 1 }, waitTimeout, waitTick)

	taken := pq.TryTakeMessages(1)
	assert.Len(t, taken, 1)
	assert.Equal(t, 45*time.Second, taken[0].System.InvisiblePeriod)
	assert.True(t, taken[0].System.DeliveryTimestamp.Equal(deliveryTime))
	pq.Drop()
}

func TestReceiveStopsWhenDropped(t *testing.T) {
	m := &client.MockManager{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	pq.Drop()
	pq.receiveMessage()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, m.ReceiveRequests())
}

func TestOrderlyReceiveSetsFifoFlag(t *testing.T) {
	m := &client.MockManager{}
	m.ReceiveFunc = func(*rpc.ReceiveMessageRequest) (*rpc.ReceiveMessageResponse, error) {
		return nil, errors.New("stop")
	}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerOrderly, m, &fakeConsumeService{})

	pq.receiveMessage()
	assert.Eventually(t, func() bool { return len(m.ReceiveRequests()) == 1 }, waitTimeout, waitTick)
	assert.True(t, m.ReceiveRequests()[0].FifoFlag)
	pq.Drop()
}

func TestTryTakeFifoMessage(t *testing.T) {
	m := &client.MockManager{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerOrderly, m, &fakeConsumeService{})

	first, second := testMessage("A", 10, 100), testMessage("B", 10, 101)
	pq.cacheMessages([]*message.Ext{first, second})

	taken := pq.TryTakeFifoMessage()
	assert.Equal(t, first, taken)

	// the slot is busy until the first message is erased
	assert.Nil(t, pq.TryTakeFifoMessage())

	pq.EraseFifoMessage(taken, ConsumeOK)

	assert.Eventually(t, func() bool { return len(m.AckRequests()) == 1 }, waitTimeout, waitTick)
	assert.Eventually(t, func() bool { return pq.TryTakeFifoMessage() == second }, waitTimeout, waitTick)
}

func TestFifoRedeliveryThenForwardToDLQ(t *testing.T) {
	conf := DefaultConfig()
	conf.MaxDeliveryAttempts = 3
	conf.FifoConsumptionSuspendTimeMillis = 1

	m := &client.MockManager{}
	svc := &fakeConsumeService{consumeFn: func(*message.Ext) ConsumeStatus { return ConsumeError }}
	_, pq := newTestQueue(t, conf, ListenerOrderly, m, svc)

	msg := testMessage("A", 10, 100)
	pq.cacheMessages([]*message.Ext{msg})

	taken := pq.TryTakeFifoMessage()
	assert.Equal(t, msg, taken)

	pq.EraseFifoMessage(taken, ConsumeError)

	assert.Eventually(t, func() bool { return len(m.ForwardRequests()) == 1 }, waitTimeout, waitTick)
	req := m.ForwardRequests()[0]
	assert.Equal(t, int32(3), req.DeliveryAttempt)
	assert.Equal(t, int32(3), req.MaxDeliveryAttempts)

	assert.Eventually(t, func() bool { return pq.CachedMessagesQuantity() == 0 }, waitTimeout, waitTick)
	assert.Eventually(t, func() bool { return !pq.fifoBusy.Load() }, waitTimeout, waitTick)
	assert.Equal(t, int64(0), pq.CachedMessageBytes())
	assert.Empty(t, m.AckRequests())
	assert.Empty(t, m.NackRequests())
}

func TestFifoAckRetriesUntilSuccess(t *testing.T) {
	var calls int
	var mu sync.Mutex
	m := &client.MockManager{}
	m.AckFunc = func(*rpc.AckMessageRequest) (*rpc.AckMessageResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return &rpc.AckMessageResponse{Common: rpc.OKStatus()}, nil
	}

	_, pq := newTestQueue(t, DefaultConfig(), ListenerOrderly, m, &fakeConsumeService{})

	msg := testMessage("A", 10, 100)
	pq.cacheMessages([]*message.Ext{msg})

	taken := pq.TryTakeFifoMessage()
	pq.EraseFifoMessage(taken, ConsumeOK)

	assert.Eventually(t, func() bool { return len(m.AckRequests()) == 3 }, waitTimeout, waitTick)
	assert.Eventually(t, func() bool { return !pq.fifoBusy.Load() }, waitTimeout, waitTick)
	assert.Equal(t, 0, pq.CachedMessagesQuantity())
}

func TestFifoAckGivesUpWhenDropped(t *testing.T) {
	m := &client.MockManager{}
	m.AckFunc = func(*rpc.AckMessageRequest) (*rpc.AckMessageResponse, error) {
		return nil, errors.New("connection reset")
	}

	_, pq := newTestQueue(t, DefaultConfig(), ListenerOrderly, m, &fakeConsumeService{})

	msg := testMessage("A", 10, 100)
	pq.cacheMessages([]*message.Ext{msg})

	taken := pq.TryTakeFifoMessage()
	pq.EraseFifoMessage(taken, ConsumeOK)

	assert.Eventually(t, func() bool { return len(m.AckRequests()) >= 1 }, waitTimeout, waitTick)
	pq.Drop()

	// a scheduled attempt may still be in flight, afterwards the chain
	// stays silent
	time.Sleep(300 * time.Millisecond)
	count := len(m.AckRequests())
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, count, len(m.AckRequests()))
}

func TestTryTakeBoundaries(t *testing.T) {
	m := &client.MockManager{}
	c, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	pq.cacheMessages([]*message.Ext{testMessage("A", 10, 100)})

	assert.Empty(t, pq.TryTakeMessages(0))
	assert.Equal(t, 1, pq.CachedMessagesQuantity())
	assert.Equal(t, 0, pq.InflightMessagesQuantity())

	// zero-permit limiter blocks both take paths and leaves the fifo
	// slot idle
	c.SetRateLimit("foo", 0, 0)
	assert.Empty(t, pq.TryTakeMessages(5))
	assert.Nil(t, pq.TryTakeFifoMessage())
	assert.False(t, pq.fifoBusy.Load())

	c.limiters.remove("foo")
	assert.Len(t, pq.TryTakeMessages(5), 1)
}

func TestTryTakeWithRateLimiter(t *testing.T) {
	m := &client.MockManager{}
	c, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	// 2 tokens in the bucket, refill is negligible within the test
	c.SetRateLimit("foo", 0.001, 2)

	pq.cacheMessages([]*message.Ext{
		testMessage("A", 1, 100), testMessage("B", 1, 101), testMessage("C", 1, 102),
	})

	taken := pq.TryTakeMessages(10)
	assert.Len(t, taken, 2)
	assert.Equal(t, "A", taken[0].MsgID())
	assert.Equal(t, "B", taken[1].MsgID())
	assert.Equal(t, 1, pq.CachedMessagesQuantity()-pq.InflightMessagesQuantity())
}

func TestEraseMessagesIdempotent(t *testing.T) {
	m := &client.MockManager{}
	conf := DefaultConfig()
	conf.MessageModel = Broadcasting
	_, pq := newTestQueue(t, conf, ListenerConcurrently, m, &fakeConsumeService{})

	pq.cacheMessages([]*message.Ext{testMessage("A", 10, 100)})
	taken := pq.TryTakeMessages(1)

	pq.EraseMessages(taken, ConsumeOK)
	assert.Equal(t, int64(0), pq.CachedMessageBytes())

	pq.EraseMessages(taken, ConsumeOK)
	assert.Equal(t, int64(0), pq.CachedMessageBytes())
	assert.Equal(t, 0, pq.CachedMessagesQuantity())
}

func TestCacheAndEraseEmptyAreNoops(t *testing.T) {
	m := &client.MockManager{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	pq.cacheMessages(nil)
	pq.EraseMessages(nil, ConsumeOK)

	assert.Equal(t, 0, pq.CachedMessagesQuantity())
	assert.Equal(t, int64(0), pq.CachedMessageBytes())
	assert.Empty(t, m.AckRequests())
}

func TestExpired(t *testing.T) {
	m := &client.MockManager{}
	_, pq := newTestQueue(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	assert.False(t, pq.Expired())

	old := time.Now().Add(-maxIdleTime - time.Second).UnixNano()
	pq.activityNanos.Store(old)
	assert.False(t, pq.Expired()) // throttle time still fresh

	pq.throttleNanos.Store(old)
	assert.True(t, pq.Expired())

	pq.throttleNanos.Store(time.Now().UnixNano())
	assert.False(t, pq.Expired())
}

func TestPullAdvancesOffsetOnlyOnOK(t *testing.T) {
	var calls int
	var mu sync.Mutex
	m := &client.MockManager{}
	m.PullFunc = func(req *rpc.PullMessageRequest) (*rpc.PullMessageResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return &rpc.PullMessageResponse{
				Common:          rpc.OKStatus(),
				NextBeginOffset: 5,
				Messages:        []*rpc.Message{wireMessage("A", []byte("x"), 2)},
			}, nil
		}
		return &rpc.PullMessageResponse{Common: rpc.ErrStatus(codes.Internal, "boom")}, nil
	}

	svc := &fakeConsumeService{}
	c := newTestConsumer(t, DefaultConfig(), ListenerConcurrently, m, svc)
	c.SetOffsetStore(&fakeOffsetStore{offset: 2})

	pq, ok := c.CreateProcessQueue(testQueue(), SubAll(), Pull)
	assert.True(t, ok)
	pq.Start()

	assert.Eventually(t, func() bool { return len(m.PullRequests()) == 2 }, waitTimeout, waitTick)
	reqs := m.PullRequests()
	assert.Equal(t, int64(2), reqs[0].Offset)
	assert.Equal(t, int64(5), reqs[1].Offset)

	assert.Eventually(t, func() bool { return pq.CachedMessagesQuantity() == 1 }, waitTimeout, waitTick)
	assert.Eventually(t, func() bool { return svc.dispatchedCount() == 1 }, waitTimeout, waitTick)
	pq.Drop()
}

func TestStartPullDropsOnOffsetStoreError(t *testing.T) {
	m := &client.MockManager{}
	c := newTestConsumer(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})
	c.SetOffsetStore(&fakeOffsetStore{err: errors.New("read failed")})

	mq := testQueue()
	pq, ok := c.CreateProcessQueue(mq, SubAll(), Pull)
	assert.True(t, ok)
	pq.Start()

	assert.True(t, pq.IsDropped())
	_, ok = c.ProcessQueue(mq)
	assert.False(t, ok)
	assert.Empty(t, m.PullRequests())
}

func TestStartPullQueriesOffset(t *testing.T) {
	m := &client.MockManager{}
	m.QueryOffsetFunc = func(*rpc.QueryOffsetRequest) (*rpc.QueryOffsetResponse, error) {
		return &rpc.QueryOffsetResponse{Common: rpc.OKStatus(), Offset: 7}, nil
	}
	m.PullFunc = func(*rpc.PullMessageRequest) (*rpc.PullMessageResponse, error) {
		return nil, errors.New("stop")
	}

	conf := DefaultConfig()
	conf.FromWhere = ConsumeFromBeginning
	c := newTestConsumer(t, conf, ListenerConcurrently, m, &fakeConsumeService{})

	pq, ok := c.CreateProcessQueue(testQueue(), SubAll(), Pull)
	assert.True(t, ok)
	pq.Start()

	assert.Eventually(t, func() bool { return len(m.PullRequests()) == 1 }, waitTimeout, waitTick)
	assert.Len(t, m.QueryOffsetRequests(), 1)
	assert.Equal(t, rpc.QueryOffsetPolicyBeginning, m.QueryOffsetRequests()[0].Policy)
	assert.Equal(t, int64(7), m.PullRequests()[0].Offset)
	pq.Drop()
}

func TestDropExpiredProcessQueues(t *testing.T) {
	m := &client.MockManager{}
	c := newTestConsumer(t, DefaultConfig(), ListenerConcurrently, m, &fakeConsumeService{})

	mq := testQueue()
	pq, ok := c.CreateProcessQueue(mq, SubAll(), Push)
	assert.True(t, ok)

	assert.Empty(t, c.DropExpiredProcessQueues())

	old := time.Now().Add(-maxIdleTime - time.Second).UnixNano()
	pq.activityNanos.Store(old)
	pq.throttleNanos.Store(old)

	dropped := c.DropExpiredProcessQueues()
	assert.Len(t, dropped, 1)
	assert.True(t, pq.IsDropped())
	_, ok = c.ProcessQueue(mq)
	assert.False(t, ok)
}
