package consumer

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/lonre/rocketmq-clients/message"
	"github.com/lonre/rocketmq-clients/route"
	"github.com/lonre/rocketmq-clients/rpc"
)

func (pq *ProcessQueue) groupResource() rpc.Resource {
	return rpc.Resource{Arn: pq.consumer.arn, Name: pq.consumer.group}
}

func (pq *ProcessQueue) topicResource() rpc.Resource {
	return rpc.Resource{Arn: pq.consumer.arn, Name: pq.messageQueue.Topic}
}

func (pq *ProcessQueue) partition() rpc.Partition {
	return rpc.Partition{
		Topic: pq.topicResource(),
		ID:    pq.messageQueue.QueueID,
		Broker: rpc.Broker{
			Name:      pq.messageQueue.BrokerName,
			Endpoints: pq.messageQueue.Endpoints,
		},
	}
}

func (pq *ProcessQueue) wrapReceiveMessageRequest() *rpc.ReceiveMessageRequest {
	conf := &pq.consumer.config

	policy := rpc.ConsumePolicyResume
	switch conf.FromWhere {
	case ConsumeFromBeginning:
		policy = rpc.ConsumePolicyPlayback
	case ConsumeFromEnd:
		policy = rpc.ConsumePolicyDiscard
	case ConsumeFromTimestamp:
		policy = rpc.ConsumePolicyTargetTimestamp
	}

	return &rpc.ReceiveMessageRequest{
		Group:             pq.groupResource(),
		ClientID:          pq.consumer.clientID,
		Partition:         pq.partition(),
		FilterExpression:  pq.filterExpression.toRPC(),
		ConsumePolicy:     policy,
		BatchSize:         int32(conf.MaxAwaitBatchSizePerQueue),
		InvisibleDuration: durationpb.New(conf.consumptionTimeout()),
		AwaitTime:         durationpb.New(conf.maxAwaitTime()),
		FifoFlag:          pq.consumer.listenerType == ListenerOrderly,
	}
}

func (pq *ProcessQueue) wrapPullMessageRequest(offset int64) *rpc.PullMessageRequest {
	conf := &pq.consumer.config
	return &rpc.PullMessageRequest{
		Group:            pq.groupResource(),
		ClientID:         pq.consumer.clientID,
		Partition:        pq.partition(),
		FilterExpression: pq.filterExpression.toRPC(),
		Offset:           offset,
		BatchSize:        int32(conf.MaxAwaitBatchSizePerQueue),
		AwaitTime:        durationpb.New(conf.maxAwaitTime()),
	}
}

func (pq *ProcessQueue) wrapQueryOffsetRequest(policy rpc.QueryOffsetPolicy) *rpc.QueryOffsetRequest {
	req := &rpc.QueryOffsetRequest{
		Partition: pq.partition(),
		Policy:    policy,
	}
	if policy == rpc.QueryOffsetPolicyTimePoint {
		req.Timestamp = timestamppb.New(time.UnixMilli(pq.consumer.config.ConsumeFromTimeMillis))
	}
	return req
}

func (pq *ProcessQueue) wrapAckMessageRequest(msg *message.Ext) *rpc.AckMessageRequest {
	return &rpc.AckMessageRequest{
		Group:         pq.groupResource(),
		Topic:         pq.topicResource(),
		ClientID:      pq.consumer.clientID,
		ReceiptHandle: msg.ReceiptHandle(),
		MessageID:     msg.MsgID(),
	}
}

func (pq *ProcessQueue) wrapNackMessageRequest(msg *message.Ext) *rpc.NackMessageRequest {
	return &rpc.NackMessageRequest{
		Group:               pq.groupResource(),
		Topic:               pq.topicResource(),
		ClientID:            pq.consumer.clientID,
		ReceiptHandle:       msg.ReceiptHandle(),
		MessageID:           msg.MsgID(),
		DeliveryAttempt:     msg.DeliveryAttempt(),
		MaxDeliveryAttempts: int32(pq.consumer.config.MaxDeliveryAttempts),
	}
}

func (pq *ProcessQueue) wrapForwardRequest(msg *message.Ext) *rpc.ForwardMessageToDeadLetterQueueRequest {
	return &rpc.ForwardMessageToDeadLetterQueueRequest{
		Group:               pq.groupResource(),
		Topic:               pq.topicResource(),
		ClientID:            pq.consumer.clientID,
		ReceiptHandle:       msg.ReceiptHandle(),
		MessageID:           msg.MsgID(),
		DeliveryAttempt:     msg.DeliveryAttempt(),
		MaxDeliveryAttempts: int32(pq.consumer.config.MaxDeliveryAttempts),
	}
}

// processReceiveMessageResponse translates the server status and wraps
// the found messages, a message that cannot be wrapped is skipped
func (pq *ProcessQueue) processReceiveMessageResponse(
	endpoints route.Endpoints, resp *rpc.ReceiveMessageResponse,
) *receiveResult {
	var status ReceiveStatus
	switch code := resp.Common.Code(); code {
	case codes.OK:
		status = ReceiveOK
	case codes.ResourceExhausted:
		status = ReceiveResourceExhausted
		pq.logger.Warnf("too many request in server, server endpoints:%s, status message:%s",
			endpoints, resp.Common.Message())
	case codes.DeadlineExceeded:
		status = ReceiveDeadlineExceeded
		pq.logger.Warnf("gateway timeout, server endpoints:%s, status message:%s",
			endpoints, resp.Common.Message())
	default:
		status = ReceiveInternal
		pq.logger.Warnf(
			"receive response indicated server-side error, server endpoints:%s, code:%s, status message:%s",
			endpoints, code, resp.Common.Message(),
		)
	}

	var msgs []*message.Ext
	if status == ReceiveOK {
		// the response level delivery metadata applies to the whole
		// batch, messages without their own values inherit it
		deliveryTimestamp := resp.DeliveryTimestamp.AsTime()
		invisibleDuration := resp.InvisibleDuration.AsDuration()

		for _, m := range resp.Messages {
			wrapped, err := message.Wrap(m, endpoints)
			if err != nil {
				pq.logger.Errorf("failed to wrap message, skip it, mq:%s, err:%v", pq.messageQueue, err)
				continue
			}
			if wrapped.System.DeliveryTimestamp.IsZero() && resp.DeliveryTimestamp != nil {
				wrapped.System.DeliveryTimestamp = deliveryTimestamp
			}
			if wrapped.System.InvisiblePeriod == 0 {
				wrapped.System.InvisiblePeriod = invisibleDuration
			}
			msgs = append(msgs, wrapped)
		}
	}

	return &receiveResult{
		status:    status,
		endpoints: endpoints,
		messages:  msgs,
	}
}

// processPullMessageResponse translates the server status, the begin
// offset advances only on OK, failures retry the requested offset
func (pq *ProcessQueue) processPullMessageResponse(
	endpoints route.Endpoints, resp *rpc.PullMessageResponse, requestOffset int64,
) *pullResult {
	var status PullStatus
	switch code := resp.Common.Code(); code {
	case codes.OK:
		status = PullOK
	case codes.ResourceExhausted:
		status = PullResourceExhausted
		pq.logger.Warnf("too many request in server, server endpoints:%s, status message:%s",
			endpoints, resp.Common.Message())
	case codes.DeadlineExceeded:
		status = PullDeadlineExceeded
		pq.logger.Warnf("gateway timeout, server endpoints:%s, status message:%s",
			endpoints, resp.Common.Message())
	default:
		status = PullInternal
		pq.logger.Warnf(
			"pull response indicated server-side error, server endpoints:%s, code:%s, status message:%s",
			endpoints, code, resp.Common.Message(),
		)
	}

	nextBeginOffset := requestOffset
	var msgs []*message.Ext
	if status == PullOK {
		nextBeginOffset = resp.NextBeginOffset
		for _, m := range resp.Messages {
			wrapped, err := message.Wrap(m, endpoints)
			if err != nil {
				pq.logger.Errorf("failed to wrap message, skip it, mq:%s, err:%v", pq.messageQueue, err)
				continue
			}
			msgs = append(msgs, wrapped)
		}
	}

	return &pullResult{
		status:          status,
		messages:        msgs,
		nextBeginOffset: nextBeginOffset,
		minOffset:       resp.MinOffset,
		maxOffset:       resp.MaxOffset,
	}
}

// ackMessage positively acknowledges one delivered copy, fire and
// forget, a failure is logged and the broker redelivers after the
// invisible period
func (pq *ProcessQueue) ackMessage(msg *message.Ext) {
	go func() {
		resp, err := pq.ackMessageRPC(msg)
		if err != nil {
			pq.logger.Errorf("exception raised while ACK, messageId:%s, endpoints:%s, err:%v",
				msg.MsgID(), msg.AckEndpoints(), err)
			return
		}
		if !resp.Common.OK() {
			pq.logger.Errorf("failed to ACK, messageId:%s, endpoints:%s, code:%s, status message:%s",
				msg.MsgID(), msg.AckEndpoints(), resp.Common.Code(), resp.Common.Message())
		}
	}()
}

// nackMessage negatively acknowledges one delivered copy, fire and
// forget
func (pq *ProcessQueue) nackMessage(msg *message.Ext) {
	go func() {
		resp, err := pq.nackMessageRPC(msg)
		if err != nil {
			pq.logger.Errorf("exception raised while NACK, messageId:%s, endpoints:%s, err:%v",
				msg.MsgID(), msg.AckEndpoints(), err)
			return
		}
		if !resp.Common.OK() {
			pq.logger.Errorf("failed to NACK, messageId:%s, endpoints:%s, code:%s, status message:%s",
				msg.MsgID(), msg.AckEndpoints(), resp.Common.Code(), resp.Common.Message())
		}
	}()
}

func (pq *ProcessQueue) ackMessageRPC(msg *message.Ext) (*rpc.AckMessageResponse, error) {
	md, err := pq.consumer.sign()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pq.consumer.config.ioTimeout())
	defer cancel()
	return pq.consumer.clientManager.AckMessage(ctx, msg.AckEndpoints(), md, pq.wrapAckMessageRequest(msg))
}

func (pq *ProcessQueue) nackMessageRPC(msg *message.Ext) (*rpc.NackMessageResponse, error) {
	md, err := pq.consumer.sign()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pq.consumer.config.ioTimeout())
	defer cancel()
	return pq.consumer.clientManager.NackMessage(ctx, msg.AckEndpoints(), md, pq.wrapNackMessageRequest(msg))
}

func (pq *ProcessQueue) forwardRPC(msg *message.Ext) (*rpc.ForwardMessageToDeadLetterQueueResponse, error) {
	md, err := pq.consumer.sign()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pq.consumer.config.ioTimeout())
	defer cancel()
	return pq.consumer.clientManager.ForwardMessageToDeadLetterQueue(
		ctx, msg.AckEndpoints(), md, pq.wrapForwardRequest(msg))
}

// ackFifoMessage acknowledges the fifo message through a chain retried
// at a fixed delay until the server accepts it, the returned channel is
// closed exactly once on the first success, the chain is abandoned only
// when the queue gets dropped
func (pq *ProcessQueue) ackFifoMessage(msg *message.Ext) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	complete := func() { once.Do(func() { close(done) }) }

	go pq.ackFifoAttempt(msg, 1, complete)
	return done
}

func (pq *ProcessQueue) ackFifoAttempt(msg *message.Ext, attempt int, complete func()) {
	resp, err := pq.ackMessageRPC(msg)
	if err != nil {
		pq.logger.Errorf("exception raised while ACK fifo message, attempt:%d, messageId:%s, endpoints:%s, err:%v",
			attempt, msg.MsgID(), msg.AckEndpoints(), err)
		pq.ackFifoLater(msg, attempt+1, complete)
		return
	}
	if !resp.Common.OK() {
		pq.logger.Errorf(
			"failed to ACK fifo message, attempt:%d, messageId:%s, endpoints:%s, code:%s, status message:%s",
			attempt, msg.MsgID(), msg.AckEndpoints(), resp.Common.Code(), resp.Common.Message(),
		)
		pq.ackFifoLater(msg, attempt+1, complete)
		return
	}
	complete()
}

func (pq *ProcessQueue) ackFifoLater(msg *message.Ext, attempt int, complete func()) {
	if pq.IsDropped() {
		pq.logger.Infof("process queue was dropped, give up to ack message, mq:%s, messageId:%s",
			pq.messageQueue, msg.MsgID())
		return
	}

	err := pq.consumer.scheduler.scheduleFuncAfter(func() {
		pq.ackFifoAttempt(msg, attempt, complete)
	}, ackFifoMessageDelay)
	if err != nil {
		pq.logger.Errorf("[Bug] failed to schedule ack fifo message request, mq:%s, messageId:%s, err:%v",
			pq.messageQueue, msg.MsgID(), err)
	}
}

// forwardToDeadLetterQueue redirects the message that exhausted its
// delivery attempts, same retry discipline as the fifo ack
func (pq *ProcessQueue) forwardToDeadLetterQueue(msg *message.Ext) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	complete := func() { once.Do(func() { close(done) }) }

	go pq.forwardAttempt(msg, 1, complete)
	return done
}

func (pq *ProcessQueue) forwardAttempt(msg *message.Ext, attempt int, complete func()) {
	resp, err := pq.forwardRPC(msg)
	if err != nil {
		pq.logger.Errorf(
			"exception raised while forward message to DLQ, attempt:%d, messageId:%s, endpoints:%s, err:%v",
			attempt, msg.MsgID(), msg.AckEndpoints(), err,
		)
		pq.forwardLater(msg, attempt+1, complete)
		return
	}
	if !resp.Common.OK() {
		pq.logger.Errorf(
			"failed to forward message to DLQ, attempt:%d, messageId:%s, endpoints:%s, code:%s, status message:%s",
			attempt, msg.MsgID(), msg.AckEndpoints(), resp.Common.Code(), resp.Common.Message(),
		)
		pq.forwardLater(msg, attempt+1, complete)
		return
	}
	complete()
}

func (pq *ProcessQueue) forwardLater(msg *message.Ext, attempt int, complete func()) {
	if pq.IsDropped() {
		pq.logger.Infof("process queue was dropped, give up to redirect message to DLQ, mq:%s, messageId:%s",
			pq.messageQueue, msg.MsgID())
		return
	}

	err := pq.consumer.scheduler.scheduleFuncAfter(func() {
		pq.forwardAttempt(msg, attempt, complete)
	}, redirectFifoToDlqDelay)
	if err != nil {
		pq.logger.Errorf("[Bug] failed to schedule DLQ message request, mq:%s, messageId:%s, err:%v",
			pq.messageQueue, msg.MsgID(), err)
	}
}
