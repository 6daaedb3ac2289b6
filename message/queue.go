package message

import (
	"fmt"

	"github.com/lonre/rocketmq-clients/route"
)

// Queue one partition of a topic owned by a specific broker, immutable
// for the lifetime of the process queue working on it
type Queue struct {
	Topic      string
	BrokerName string
	QueueID    int32

	// Endpoints the resolved addresses of the owning broker
	Endpoints route.Endpoints
}

func (q *Queue) String() string {
	return fmt.Sprintf("MessageQueue [topic=%s, brokerName=%s, queueId=%d]", q.Topic, q.BrokerName, q.QueueID)
}

// Key identifies the partition regardless of the resolved endpoints,
// map key usage
type Key struct {
	Topic      string
	BrokerName string
	QueueID    int32
}

// Key returns the identity part of the queue
func (q *Queue) Key() Key {
	return Key{Topic: q.Topic, BrokerName: q.BrokerName, QueueID: q.QueueID}
}
