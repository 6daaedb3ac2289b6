package consumer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	uatomic "go.uber.org/atomic"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/metadata"

	"github.com/lonre/rocketmq-clients/client"
	"github.com/lonre/rocketmq-clients/executor"
	"github.com/lonre/rocketmq-clients/log"
	"github.com/lonre/rocketmq-clients/message"
)

const (
	defaultSchedulerWorkers = 4
	defaultExecutorWorkers  = 8
	defaultExecutorQueue    = 1024
)

// PushConsumer owns the process queues of its assigned partitions and
// the collaborators they share, the partition assignment itself is
// driven from outside through CreateProcessQueue/DropProcessQueue
type PushConsumer struct {
	group    string
	arn      string
	clientID string

	config       Config
	listenerType ListenerType

	quantityThreshold *uatomic.Int64
	bytesThreshold    *uatomic.Int64

	clientManager  client.Manager
	consumeService ConsumeService
	offsetStore    OffsetStore
	signer         *client.Signer

	scheduler           *scheduler
	consumptionExecutor *executor.Pool
	limiters            *topicRateLimiter
	stats               *stats
	logger              log.Logger

	processQueues sync.Map // message.Key -> *ProcessQueue

	shutdownOnce sync.Once
}

// NewPushConsumer creates the consumer, it is ready to accept process
// queues right away
func NewPushConsumer(
	group, arn string, conf Config, listenerType ListenerType,
	manager client.Manager, service ConsumeService, logger log.Logger,
) (*PushConsumer, error) {
	if group == "" {
		return nil, errors.New("new push consumer error:empty group")
	}
	if manager == nil {
		return nil, errors.New("new push consumer error:empty client manager")
	}
	if service == nil {
		return nil, errors.New("new push consumer error:empty consume service")
	}
	if logger == nil {
		return nil, errors.New("new push consumer error:empty logger")
	}

	conf.applyDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}

	pool, err := executor.NewPool("consumption-"+group, defaultExecutorWorkers, defaultExecutorQueue)
	if err != nil {
		return nil, fmt.Errorf("new push consumer error:%w", err)
	}

	c := &PushConsumer{
		group:        group,
		arn:          arn,
		clientID:     client.BuildClientID(group),
		config:       conf,
		listenerType: listenerType,

		quantityThreshold: uatomic.NewInt64(int64(conf.CachedMessagesQuantityThresholdPerQueue)),
		bytesThreshold:    uatomic.NewInt64(conf.CachedMessagesBytesThresholdPerQueue),

		clientManager:  manager,
		consumeService: service,

		scheduler:           newScheduler(defaultSchedulerWorkers),
		consumptionExecutor: pool,
		limiters:            newTopicRateLimiter(),
		stats:               newStats(group, nil),
		logger:              logger,
	}
	return c, nil
}

// SetCredentials installs the signing credentials, requests go out
// unsigned until this is called
func (c *PushConsumer) SetCredentials(credentials client.Credentials) {
	c.signer = client.NewSigner(credentials, c.arn, c.clientID)
}

// SetOffsetStore installs the custom offset store, pull mode reads its
// initial offset from here instead of querying the broker
func (c *PushConsumer) SetOffsetStore(store OffsetStore) {
	c.offsetStore = store
}

// SetRateLimit installs the token bucket of the topic
func (c *PushConsumer) SetRateLimit(topic string, permitsPerSecond float64, burst int) {
	c.limiters.set(topic, permitsPerSecond, burst)
}

// SetCachedMessagesQuantityThreshold updates the backpressure quantity
// threshold of every queue
func (c *PushConsumer) SetCachedMessagesQuantityThreshold(quantity int) {
	c.quantityThreshold.Store(int64(quantity))
}

// SetCachedMessagesBytesThreshold updates the backpressure bytes
// threshold of every queue
func (c *PushConsumer) SetCachedMessagesBytesThreshold(bytes int64) {
	c.bytesThreshold.Store(bytes)
}

// RegisterMetrics registers the consumer counters
func (c *PushConsumer) RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		c.stats.receivedMessages, c.stats.pulledMessages, c.stats.receptionTimes,
		c.stats.pullTimes, c.stats.consumeOK, c.stats.consumeError,
	)
}

// ClientID returns the id identifying this client instance
func (c *PushConsumer) ClientID() string {
	return c.clientID
}

// Group returns the consumer group
func (c *PushConsumer) Group() string {
	return c.group
}

// CreateProcessQueue creates and remembers the process queue of a newly
// assigned partition, ok is false when the partition is already owned,
// the caller starts the returned queue
func (c *PushConsumer) CreateProcessQueue(
	mq *message.Queue, filter FilterExpression, typ Type,
) (pq *ProcessQueue, ok bool) {
	pq = newProcessQueue(c, mq, filter, typ)
	if _, loaded := c.processQueues.LoadOrStore(mq.Key(), pq); loaded {
		c.logger.Infof("process queue exists, mq:%s", mq)
		return nil, false
	}
	return pq, true
}

// ProcessQueue returns the owned queue of the partition
func (c *PushConsumer) ProcessQueue(mq *message.Queue) (*ProcessQueue, bool) {
	v, ok := c.processQueues.Load(mq.Key())
	if !ok {
		return nil, false
	}
	return v.(*ProcessQueue), true
}

// DropProcessQueue drops the queue of a revoked partition, dropping is
// idempotent
func (c *PushConsumer) DropProcessQueue(mq *message.Queue) bool {
	v, ok := c.processQueues.LoadAndDelete(mq.Key())
	if !ok {
		return false
	}
	v.(*ProcessQueue).Drop()
	return true
}

// DropExpiredProcessQueues drops every queue that went idle beyond the
// limit, the dropped partitions are returned so the caller can request
// reassignment
func (c *PushConsumer) DropExpiredProcessQueues() (dropped []*message.Queue) {
	c.processQueues.Range(func(k, v interface{}) bool {
		pq := v.(*ProcessQueue)
		if pq.Expired() {
			dropped = append(dropped, pq.MessageQueue())
		}
		return true
	})

	for _, mq := range dropped {
		c.logger.Warnf("drop expired process queue, mq:%s", mq)
		c.DropProcessQueue(mq)
	}
	return
}

// Shutdown drops every queue and stops the shared workers
func (c *PushConsumer) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.processQueues.Range(func(k, v interface{}) bool {
			v.(*ProcessQueue).Drop()
			c.processQueues.Delete(k)
			return true
		})
		c.scheduler.shutdown()
		c.consumptionExecutor.Shutdown()
		c.logger.Infof("push consumer %s shutdown", c.group)
	})
}

func (c *PushConsumer) sign() (metadata.MD, error) {
	if c.signer == nil {
		return metadata.MD{}, nil
	}
	return c.signer.Sign()
}

func (c *PushConsumer) rateLimiter(topic string) *rate.Limiter {
	return c.limiters.get(topic)
}

func (c *PushConsumer) hasCustomOffsetStore() bool {
	return c.offsetStore != nil
}
