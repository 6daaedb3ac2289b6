package consumer

import (
	"github.com/lonre/rocketmq-clients/executor"
	"github.com/lonre/rocketmq-clients/message"
)

// EraseMessages settles a consumed batch, the messages leave inflight
// and, in clustering mode, are acked or nacked depending on the status,
// both fire-and-forget, broadcasting mode only releases the ledger
func (pq *ProcessQueue) EraseMessages(msgs []*message.Ext, status ConsumeStatus) {
	pq.consumer.stats.observeConsumption(len(msgs), status)
	pq.eraseFromInflight(msgs)

	if pq.consumer.config.MessageModel == Broadcasting {
		for _, m := range msgs {
			pq.ledger.release(m.QueueOffset())
		}
		return
	}

	if status == ConsumeOK {
		for _, m := range msgs {
			pq.ackMessage(m)
		}
		return
	}
	for _, m := range msgs {
		pq.nackMessage(m)
	}
}

// EraseFifoMessage settles the single in-flight fifo message, a failed
// consumption is redelivered until the delivery attempts are exhausted,
// then the message is acked or forwarded to the dead letter queue
// through a retry-until-success chain, the fifo slot is released only
// once the terminal RPC succeeded
func (pq *ProcessQueue) EraseFifoMessage(msg *message.Ext, status ConsumeStatus) {
	pq.consumer.stats.observeConsumption(1, status)

	if pq.consumer.config.MessageModel == Broadcasting {
		// no ack nor DLQ in broadcasting mode
		pq.eraseFromInflight([]*message.Ext{msg})
		pq.ledger.release(msg.QueueOffset())
		pq.fifoOutbound()
		return
	}

	maxAttempts := pq.consumer.config.MaxDeliveryAttempts
	attempt := msg.DeliveryAttempt()
	if status == ConsumeError && int(attempt) < maxAttempts {
		msg.System.DeliveryAttempt = attempt + 1
		ch := pq.consumer.consumeService.Consume(msg, pq.consumer.config.fifoSuspendTime())
		go func() {
			next, ok := <-ch
			if !ok {
				pq.logger.Errorf(
					"[Bug] exception raised while message redelivery, mq:%s, messageId:%s, attempt:%d, maxAttempts:%d",
					pq.messageQueue, msg.MsgID(), msg.DeliveryAttempt(), maxAttempts,
				)
				return
			}
			pq.EraseFifoMessage(msg, next)
		}()
		return
	}

	var done <-chan struct{}
	if status == ConsumeOK {
		done = pq.ackFifoMessage(msg)
	} else {
		done = pq.forwardToDeadLetterQueue(msg)
	}

	go func() {
		select {
		case <-done:
		case <-pq.dropChan:
			return
		}

		task := executor.RunnableFunc(func() {
			pq.eraseFromInflight([]*message.Ext{msg})
			pq.fifoOutbound()
		})
		if err := pq.consumer.consumptionExecutor.Execute(task); err != nil {
			task.Run()
		}
	}()
}
