package message

import (
	"fmt"
	"time"

	"github.com/lonre/rocketmq-clients/route"
)

// SystemAttribute the attributes stamped by the broker, after wrapping
// the receive path may fill in the response level delivery timestamp and
// invisible period, later only the delivery-attempt escalation of the
// fifo path mutates it
type SystemAttribute struct {
	MessageID         string
	ReceiptHandle     string
	QueueID           int32
	QueueOffset       int64
	DeliveryAttempt   int32
	DeliveryTimestamp time.Time
	InvisiblePeriod   time.Duration
	BornTimestamp     time.Time
	AckEndpoints      route.Endpoints
}

// Ext the message delivered to the client, the body is already decoded
type Ext struct {
	Topic      string
	Body       []byte
	Properties map[string]string

	System SystemAttribute
}

// MsgID returns the broker assigned message id
func (m *Ext) MsgID() string {
	return m.System.MessageID
}

// QueueOffset returns the position within the owning partition
func (m *Ext) QueueOffset() int64 {
	return m.System.QueueOffset
}

// ReceiptHandle returns the token identifying this delivered copy
func (m *Ext) ReceiptHandle() string {
	return m.System.ReceiptHandle
}

// DeliveryAttempt returns the 1-based delivery counter
func (m *Ext) DeliveryAttempt() int32 {
	return m.System.DeliveryAttempt
}

// AckEndpoints returns the endpoints the ack/nack/forward of this copy
// must target
func (m *Ext) AckEndpoints() route.Endpoints {
	return m.System.AckEndpoints
}

// GetProperty returns the user property by the specified key
func (m *Ext) GetProperty(k string) string {
	return m.Properties[k]
}

func (m *Ext) String() string {
	return fmt.Sprintf(
		"MessageExt:[topic=%s,msgID=%s,queueID=%d,queueOffset=%d,deliveryAttempt=%d,bodyLen=%d]",
		m.Topic, m.System.MessageID, m.System.QueueID, m.System.QueueOffset,
		m.System.DeliveryAttempt, len(m.Body),
	)
}
