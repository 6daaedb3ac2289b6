package consumer

import (
	"time"

	"github.com/lonre/rocketmq-clients/message"
)

// ConsumeService schedules the user supplied consume function over the
// cached messages, it claims work through the tryTake operations of the
// process queues and reports results through the erase operations
type ConsumeService interface {
	// Dispatch signals that new messages were cached somewhere
	Dispatch()

	// Consume redelivers a single fifo message to the user function
	// after the delay, the returned channel yields exactly one status
	// and is closed without a value when the delivery could not run
	Consume(msg *message.Ext, delay time.Duration) <-chan ConsumeStatus
}

// OffsetStore persists consumption progress outside the broker, pull
// mode only
type OffsetStore interface {
	ReadOffset(mq *message.Queue) (int64, error)
	WriteOffset(mq *message.Queue, offset int64) error
}
