package consumer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, defaultMaxDeliveryAttempts, c.MaxDeliveryAttempts)
	assert.Equal(t, defaultMaxAwaitBatchSizePerQueue, c.MaxAwaitBatchSizePerQueue)
	assert.Equal(t, int64(defaultConsumptionTimeoutMillis), c.ConsumptionTimeoutMillis)
	assert.Equal(t, int64(defaultIoTimeoutMillis), c.IoTimeoutMillis)
	assert.Equal(t, defaultQuantityThresholdPerQueue, c.CachedMessagesQuantityThresholdPerQueue)
	assert.Equal(t, int64(defaultBytesThresholdPerQueue), c.CachedMessagesBytesThresholdPerQueue)
	assert.Equal(t, Clustering, c.MessageModel)
	assert.NoError(t, c.validate())
}

func TestLoadConfig(t *testing.T) {
	d := []byte(`
max_delivery_attempts: 5
max_await_batch_size_per_queue: 16
io_timeout_millis: 1000
message_model: 1
consume_from_where: 1
cached_messages_quantity_threshold_per_queue: 100
`)
	path := filepath.Join(t.TempDir(), "consumer.yaml")
	assert.NoError(t, os.WriteFile(path, d, 0o644))

	c, err := LoadConfig(path)
	assert.NoError(t, err)

	assert.Equal(t, 5, c.MaxDeliveryAttempts)
	assert.Equal(t, 16, c.MaxAwaitBatchSizePerQueue)
	assert.Equal(t, int64(1000), c.IoTimeoutMillis)
	assert.Equal(t, Broadcasting, c.MessageModel)
	assert.Equal(t, ConsumeFromBeginning, c.FromWhere)
	assert.Equal(t, 100, c.CachedMessagesQuantityThresholdPerQueue)

	// untouched fields fall back to the defaults
	assert.Equal(t, int64(defaultConsumptionTimeoutMillis), c.ConsumptionTimeoutMillis)
	assert.Equal(t, int64(defaultBytesThresholdPerQueue), c.CachedMessagesBytesThresholdPerQueue)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	c.MessageModel = Model(9)
	assert.Error(t, c.validate())
}
