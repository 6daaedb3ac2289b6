package consumer

import (
	"sync"

	"golang.org/x/time/rate"
)

// topicRateLimiter holds the optional token bucket of each topic, a
// topic without an entry is not limited
type topicRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newTopicRateLimiter() *topicRateLimiter {
	return &topicRateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// set installs the bucket of the topic, permitsPerSecond tokens are
// refilled per second up to burst
func (t *topicRateLimiter) set(topic string, permitsPerSecond float64, burst int) {
	t.mu.Lock()
	t.limiters[topic] = rate.NewLimiter(rate.Limit(permitsPerSecond), burst)
	t.mu.Unlock()
}

// get returns the bucket of the topic, nil when the topic is unlimited
func (t *topicRateLimiter) get(topic string) *rate.Limiter {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limiters[topic]
}

// remove uninstalls the bucket of the topic
func (t *topicRateLimiter) remove(topic string) {
	t.mu.Lock()
	delete(t.limiters, topic)
	t.mu.Unlock()
}
