package consumer

import "github.com/prometheus/client_golang/prometheus"

// stats the per-consumer counters, registered on the injected
// registerer when one is supplied
type stats struct {
	receivedMessages prometheus.Counter
	pulledMessages   prometheus.Counter
	receptionTimes   prometheus.Counter
	pullTimes        prometheus.Counter
	consumeOK        prometheus.Counter
	consumeError     prometheus.Counter
}

func newStats(group string, reg prometheus.Registerer) *stats {
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rocketmq",
			Subsystem:   "consumer",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"group": group},
		})
	}

	s := &stats{
		receivedMessages: newCounter("received_messages_total", "Messages received from brokers."),
		pulledMessages:   newCounter("pulled_messages_total", "Messages pulled from brokers."),
		receptionTimes:   newCounter("reception_times_total", "Receive RPCs issued."),
		pullTimes:        newCounter("pull_times_total", "Pull RPCs issued."),
		consumeOK:        newCounter("consumption_ok_total", "Messages consumed successfully."),
		consumeError:     newCounter("consumption_error_total", "Messages whose consumption failed."),
	}

	if reg != nil {
		reg.MustRegister(
			s.receivedMessages, s.pulledMessages, s.receptionTimes,
			s.pullTimes, s.consumeOK, s.consumeError,
		)
	}
	return s
}

func (s *stats) observeConsumption(count int, status ConsumeStatus) {
	if status == ConsumeOK {
		s.consumeOK.Add(float64(count))
		return
	}
	s.consumeError.Add(float64(count))
}
