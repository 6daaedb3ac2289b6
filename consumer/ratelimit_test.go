package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicRateLimiter(t *testing.T) {
	r := newTopicRateLimiter()

	assert.Nil(t, r.get("foo"))

	r.set("foo", 0.001, 2)
	l := r.get("foo")
	assert.NotNil(t, l)

	// burst tokens only, the refill is negligible within the test
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	assert.Nil(t, r.get("bar"))

	r.remove("foo")
	assert.Nil(t, r.get("foo"))
}
