package rpc

import (
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/lonre/rocketmq-clients/route"
)

// Resource a named resource under the ambient resource namespace
type Resource struct {
	Arn  string
	Name string
}

// Broker the broker owning a partition
type Broker struct {
	Name      string
	ID        int32
	Endpoints route.Endpoints
}

// Partition one shard of a topic
type Partition struct {
	Topic  Resource
	ID     int32
	Broker Broker
}

// FilterType the type of the subscription filter expression
type FilterType int32

// predefined filter types
const (
	FilterTypeTag FilterType = iota
	FilterTypeSQL
)

// FilterExpression the subscription filter carried by fetch requests
type FilterExpression struct {
	Type       FilterType
	Expression string
}

// ConsumePolicy tells the broker where consumption starts for a group
// without a committed offset
type ConsumePolicy int32

// predefined consume policies
const (
	ConsumePolicyResume ConsumePolicy = iota
	ConsumePolicyPlayback
	ConsumePolicyDiscard
	ConsumePolicyTargetTimestamp
)

// QueryOffsetPolicy the position the queried offset refers to
type QueryOffsetPolicy int32

// predefined query offset policies
const (
	QueryOffsetPolicyBeginning QueryOffsetPolicy = iota
	QueryOffsetPolicyEnd
	QueryOffsetPolicyTimePoint
)

// Encoding the encoding of a message body on the wire
type Encoding int32

// predefined body encodings
const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingZlib
)

// DigestType the checksum algorithm of the body digest
type DigestType int32

// predefined digest types
const (
	DigestTypeCRC32 DigestType = iota
	DigestTypeMD5
	DigestTypeSHA1
)

// Digest the body checksum stamped by the producer
type Digest struct {
	Type     DigestType
	Checksum string
}

// SystemAttribute the attributes stamped by the broker on a delivered
// message
type SystemAttribute struct {
	MessageID         string
	ReceiptHandle     string
	BodyDigest        Digest
	BodyEncoding      Encoding
	QueueID           int32
	QueueOffset       int64
	DeliveryAttempt   int32
	DeliveryTimestamp *timestamppb.Timestamp
	InvisiblePeriod   *durationpb.Duration
	BornTimestamp     *timestamppb.Timestamp
	BornHost          string
}

// Message one message on the wire
type Message struct {
	Topic           Resource
	SystemAttribute SystemAttribute
	UserAttribute   map[string]string
	Body            []byte
}

// ResponseCommon the part shared by every response, the status carries
// the server side result code
type ResponseCommon struct {
	Status *rpcstatus.Status
}

// ReceiveMessageRequest long-poll receive from a partition, the broker
// manages the consumption offset
type ReceiveMessageRequest struct {
	Group             Resource
	ClientID          string
	Partition         Partition
	FilterExpression  FilterExpression
	ConsumePolicy     ConsumePolicy
	BatchSize         int32
	InvisibleDuration *durationpb.Duration
	AwaitTime         *durationpb.Duration
	FifoFlag          bool
}

// ReceiveMessageResponse the messages found plus the delivery metadata
type ReceiveMessageResponse struct {
	Common            ResponseCommon
	Messages          []*Message
	DeliveryTimestamp *timestamppb.Timestamp
	InvisibleDuration *durationpb.Duration
}

// PullMessageRequest long-poll pull from a partition at an explicit
// offset tracked by the client
type PullMessageRequest struct {
	Group            Resource
	ClientID         string
	Partition        Partition
	FilterExpression FilterExpression
	Offset           int64
	BatchSize        int32
	AwaitTime        *durationpb.Duration
}

// PullMessageResponse the messages found plus the offset watermarks
type PullMessageResponse struct {
	Common          ResponseCommon
	MinOffset       int64
	NextBeginOffset int64
	MaxOffset       int64
	Messages        []*Message
}

// AckMessageRequest positive acknowledgement of one delivered copy
type AckMessageRequest struct {
	Group         Resource
	Topic         Resource
	ClientID      string
	ReceiptHandle string
	MessageID     string
}

// AckMessageResponse ack result
type AckMessageResponse struct {
	Common ResponseCommon
}

// NackMessageRequest negative acknowledgement, the broker re-enqueues
// the message after the invisible period
type NackMessageRequest struct {
	Group               Resource
	Topic               Resource
	ClientID            string
	ReceiptHandle       string
	MessageID           string
	DeliveryAttempt     int32
	MaxDeliveryAttempts int32
}

// NackMessageResponse nack result
type NackMessageResponse struct {
	Common ResponseCommon
}

// ForwardMessageToDeadLetterQueueRequest terminal redirect of a message
// that exhausted its delivery attempts
type ForwardMessageToDeadLetterQueueRequest struct {
	Group               Resource
	Topic               Resource
	ClientID            string
	ReceiptHandle       string
	MessageID           string
	DeliveryAttempt     int32
	MaxDeliveryAttempts int32
}

// ForwardMessageToDeadLetterQueueResponse forward result
type ForwardMessageToDeadLetterQueueResponse struct {
	Common ResponseCommon
}

// QueryOffsetRequest asks the broker for the offset matching the policy
type QueryOffsetRequest struct {
	Partition Partition
	Policy    QueryOffsetPolicy
	Timestamp *timestamppb.Timestamp
}

// QueryOffsetResponse the resolved offset
type QueryOffsetResponse struct {
	Common ResponseCommon
	Offset int64
}
