package consumer

import (
	"context"
	"time"

	"github.com/lonre/rocketmq-clients/message"
	"github.com/lonre/rocketmq-clients/route"
	"github.com/lonre/rocketmq-clients/rpc"
)

type receiveResult struct {
	status    ReceiveStatus
	endpoints route.Endpoints
	messages  []*message.Ext
}

type pullResult struct {
	status   PullStatus
	messages []*message.Ext

	nextBeginOffset int64
	minOffset       int64
	maxOffset       int64
}

// receiveMessage runs one step of the receive cycle, it stops on drop,
// defers on backpressure and issues the long-poll otherwise
func (pq *ProcessQueue) receiveMessage() {
	if pq.IsDropped() {
		pq.logger.Debugf("process queue has been dropped, no longer receive message, mq:%s", pq.messageQueue)
		return
	}
	if pq.throttled() {
		pq.logger.Warnf("process queue is throttled, would receive message later, mq:%s", pq.messageQueue)
		pq.throttleNanos.Store(time.Now().UnixNano())
		pq.receiveMessageLater()
		return
	}
	pq.receiveMessageImmediately()
}

func (pq *ProcessQueue) receiveMessageLater() {
	err := pq.consumer.scheduler.scheduleFuncAfter(pq.receiveMessage, receiveLaterDelay)
	if err != nil {
		pq.logger.Errorf("failed to schedule receive message request, mq:%s, err:%v", pq.messageQueue, err)
	}
}

func (pq *ProcessQueue) receiveMessageImmediately() {
	endpoints := pq.messageQueue.Endpoints
	req := pq.wrapReceiveMessageRequest()

	md, err := pq.consumer.sign()
	if err != nil {
		pq.logger.Errorf("exception raised while message reception, would receive later, mq:%s, err:%v",
			pq.messageQueue, err)
		pq.receiveMessageLater()
		return
	}

	pq.activityNanos.Store(time.Now().UnixNano())
	pq.consumer.stats.receptionTimes.Inc()

	go func() {
		defer pq.recoverFetch("receive", pq.receiveMessageLater)

		ctx, cancel := context.WithTimeout(context.Background(), receiveLongPollingTimeout)
		defer cancel()

		resp, err := pq.consumer.clientManager.ReceiveMessage(ctx, endpoints, md, req)
		if err != nil {
			pq.logger.Errorf(
				"exception raised while message reception, would receive later, mq:%s, endpoints:%s, err:%v",
				pq.messageQueue, endpoints, err,
			)
			pq.receiveMessageLater()
			return
		}
		pq.onReceiveMessageResult(pq.processReceiveMessageResponse(endpoints, resp))
	}()
}

func (pq *ProcessQueue) onReceiveMessageResult(result *receiveResult) {
	switch result.status {
	case ReceiveOK:
		if len(result.messages) > 0 {
			pq.cacheMessages(result.messages)
			pq.consumer.stats.receivedMessages.Add(float64(len(result.messages)))
			pq.consumer.consumeService.Dispatch()
		}
		pq.logger.Debugf(
			"receive message with OK, mq:%s, endpoints:%s, messages found count:%d",
			pq.messageQueue, result.endpoints, len(result.messages),
		)
		pq.receiveMessage()
	default:
		pq.logger.Errorf(
			"receive message with status:%s, mq:%s, endpoints:%s, messages found count:%d",
			result.status, pq.messageQueue, result.endpoints, len(result.messages),
		)
		pq.receiveMessageLater()
	}
}

// startPull resolves the initial offset of the pull cycle, either from
// the custom offset store or by asking the broker, an unreadable store
// drops the queue, the next assignments scan takes over
func (pq *ProcessQueue) startPull() {
	if pq.consumer.hasCustomOffsetStore() {
		offset, err := pq.consumer.offsetStore.ReadOffset(pq.messageQueue)
		if err != nil {
			pq.logger.Errorf("exception raised while reading offset from offset store, mq:%s, err:%v",
				pq.messageQueue, err)
			pq.consumer.DropProcessQueue(pq.messageQueue)
			return
		}
		pq.pullMessage(offset)
		return
	}

	var policy rpc.QueryOffsetPolicy
	switch pq.consumer.config.FromWhere {
	case ConsumeFromBeginning:
		policy = rpc.QueryOffsetPolicyBeginning
	case ConsumeFromEnd:
		policy = rpc.QueryOffsetPolicyEnd
	default:
		policy = rpc.QueryOffsetPolicyTimePoint
	}

	req := pq.wrapQueryOffsetRequest(policy)
	md, err := pq.consumer.sign()
	if err != nil {
		pq.logger.Errorf("exception raised while query offset to pull, mq:%s, err:%v", pq.messageQueue, err)
		pq.consumer.DropProcessQueue(pq.messageQueue)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pq.consumer.config.ioTimeout())
		defer cancel()

		resp, err := pq.consumer.clientManager.QueryOffset(ctx, pq.messageQueue.Endpoints, md, req)
		if err != nil {
			pq.logger.Errorf("exception raised while query offset to pull, mq:%s, err:%v", pq.messageQueue, err)
			pq.consumer.DropProcessQueue(pq.messageQueue)
			return
		}
		if !resp.Common.OK() {
			pq.logger.Errorf("failed to query offset to pull, mq:%s, code:%s, status message:%s",
				pq.messageQueue, resp.Common.Code(), resp.Common.Message())
			pq.consumer.DropProcessQueue(pq.messageQueue)
			return
		}

		pq.logger.Infof("query offset successfully from remote, mq:%s, offset:%d", pq.messageQueue, resp.Offset)
		pq.pullMessage(resp.Offset)
	}()
}

// pullMessage runs one step of the pull cycle at the given offset
func (pq *ProcessQueue) pullMessage(offset int64) {
	if pq.IsDropped() {
		pq.logger.Infof("process queue has been dropped, no longer pull message, mq:%s", pq.messageQueue)
		return
	}
	if pq.throttled() {
		pq.logger.Warnf("process queue is throttled, would pull message later, mq:%s", pq.messageQueue)
		pq.throttleNanos.Store(time.Now().UnixNano())
		pq.pullMessageLater(offset)
		return
	}
	pq.pullMessageImmediately(offset)
}

func (pq *ProcessQueue) pullMessageLater(offset int64) {
	err := pq.consumer.scheduler.scheduleFuncAfter(func() { pq.pullMessage(offset) }, pullLaterDelay)
	if err != nil {
		pq.logger.Errorf("failed to schedule pull message request, mq:%s, err:%v", pq.messageQueue, err)
	}
}

func (pq *ProcessQueue) pullMessageImmediately(offset int64) {
	endpoints := pq.messageQueue.Endpoints
	req := pq.wrapPullMessageRequest(offset)

	md, err := pq.consumer.sign()
	if err != nil {
		pq.logger.Errorf("exception raised while pull message, would pull later, mq:%s, err:%v",
			pq.messageQueue, err)
		pq.pullMessageLater(offset)
		return
	}

	pq.activityNanos.Store(time.Now().UnixNano())
	pq.consumer.stats.pullTimes.Inc()

	go func() {
		defer pq.recoverFetch("pull", func() { pq.pullMessageLater(offset) })

		ctx, cancel := context.WithTimeout(context.Background(), pullLongPollingTimeout)
		defer cancel()

		resp, err := pq.consumer.clientManager.PullMessage(ctx, endpoints, md, req)
		if err != nil {
			pq.logger.Errorf(
				"exception raised while pull message, would pull later, mq:%s, endpoints:%s, err:%v",
				pq.messageQueue, endpoints, err,
			)
			pq.pullMessageLater(offset)
			return
		}
		pq.onPullMessageResult(pq.processPullMessageResponse(endpoints, resp, offset))
	}()
}

func (pq *ProcessQueue) onPullMessageResult(result *pullResult) {
	switch result.status {
	case PullOK:
		if len(result.messages) > 0 {
			pq.cacheMessages(result.messages)
			pq.consumer.stats.pulledMessages.Add(float64(len(result.messages)))
			pq.consumer.consumeService.Dispatch()
		}
		pq.logger.Debugf(
			"pull message with OK, mq:%s, messages found count:%d, served offset range:[%d, %d], next begin offset:%d",
			pq.messageQueue, len(result.messages), result.minOffset, result.maxOffset, result.nextBeginOffset,
		)
		if result.maxOffset > 0 &&
			(result.nextBeginOffset < result.minOffset || result.nextBeginOffset > result.maxOffset) {
			pq.logger.Warnf(
				"next begin offset is out of the served range, mq:%s, next begin offset:%d, served offset range:[%d, %d]",
				pq.messageQueue, result.nextBeginOffset, result.minOffset, result.maxOffset,
			)
		}
		pq.pullMessage(result.nextBeginOffset)
	default:
		pq.logger.Errorf("pull message with status:%s, mq:%s, messages found count:%d",
			result.status, pq.messageQueue, len(result.messages))
		pq.pullMessageLater(result.nextBeginOffset)
	}
}

// recoverFetch keeps the fetch cycle alive when result handling blows
// up, the pipeline never dies silently
func (pq *ProcessQueue) recoverFetch(op string, reschedule func()) {
	if r := recover(); r != nil {
		pq.logger.Errorf("[Bug] panic raised while handling %s result, mq:%s, err:%v", op, pq.messageQueue, r)
		reschedule()
	}
}
