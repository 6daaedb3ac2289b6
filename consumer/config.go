package consumer

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config the consumption tunables read by every process queue, the
// zero value of a field falls back to its default
type Config struct {
	MaxDeliveryAttempts int `yaml:"max_delivery_attempts"`

	MaxAwaitBatchSizePerQueue  int   `yaml:"max_await_batch_size_per_queue"`
	MaxAwaitTimeMillisPerQueue int64 `yaml:"max_await_time_millis_per_queue"`

	// ConsumptionTimeoutMillis the broker side invisibility period of
	// received messages
	ConsumptionTimeoutMillis int64 `yaml:"consumption_timeout_millis"`

	IoTimeoutMillis int64 `yaml:"io_timeout_millis"`

	FifoConsumptionSuspendTimeMillis int64 `yaml:"fifo_consumption_suspend_time_millis"`

	FromWhere             FromWhere `yaml:"consume_from_where"`
	ConsumeFromTimeMillis int64     `yaml:"consume_from_time_millis"`

	MessageModel Model `yaml:"message_model"`

	CachedMessagesQuantityThresholdPerQueue int   `yaml:"cached_messages_quantity_threshold_per_queue"`
	CachedMessagesBytesThresholdPerQueue    int64 `yaml:"cached_messages_bytes_threshold_per_queue"`
}

// defaults follow the reference client
const (
	defaultMaxDeliveryAttempts        = 17
	defaultMaxAwaitBatchSizePerQueue  = 32
	defaultMaxAwaitTimeMillisPerQueue = 0
	defaultConsumptionTimeoutMillis   = 15 * 60 * 1000
	defaultIoTimeoutMillis            = 3 * 1000
	defaultFifoSuspendTimeMillis      = 1000
	defaultQuantityThresholdPerQueue  = 1024
	defaultBytesThresholdPerQueue     = 4 * 1024 * 1024
)

// DefaultConfig returns the config with every field at its default
func DefaultConfig() Config {
	c := Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.MaxDeliveryAttempts <= 0 {
		c.MaxDeliveryAttempts = defaultMaxDeliveryAttempts
	}
	if c.MaxAwaitBatchSizePerQueue <= 0 {
		c.MaxAwaitBatchSizePerQueue = defaultMaxAwaitBatchSizePerQueue
	}
	if c.MaxAwaitTimeMillisPerQueue < 0 {
		c.MaxAwaitTimeMillisPerQueue = defaultMaxAwaitTimeMillisPerQueue
	}
	if c.ConsumptionTimeoutMillis <= 0 {
		c.ConsumptionTimeoutMillis = defaultConsumptionTimeoutMillis
	}
	if c.IoTimeoutMillis <= 0 {
		c.IoTimeoutMillis = defaultIoTimeoutMillis
	}
	if c.FifoConsumptionSuspendTimeMillis <= 0 {
		c.FifoConsumptionSuspendTimeMillis = defaultFifoSuspendTimeMillis
	}
	if c.CachedMessagesQuantityThresholdPerQueue <= 0 {
		c.CachedMessagesQuantityThresholdPerQueue = defaultQuantityThresholdPerQueue
	}
	if c.CachedMessagesBytesThresholdPerQueue <= 0 {
		c.CachedMessagesBytesThresholdPerQueue = defaultBytesThresholdPerQueue
	}
}

func (c *Config) validate() error {
	if c.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("config error:max delivery attempts %d < 1", c.MaxDeliveryAttempts)
	}
	if c.MessageModel != Clustering && c.MessageModel != Broadcasting {
		return fmt.Errorf("config error:unknown message model %d", c.MessageModel)
	}
	return nil
}

// LoadConfig reads the YAML file and fills the defaults
func LoadConfig(path string) (Config, error) {
	var c Config

	d, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("load config error:%w", err)
	}
	if err := yaml.Unmarshal(d, &c); err != nil {
		return c, fmt.Errorf("load config error:%w", err)
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) ioTimeout() time.Duration {
	return time.Duration(c.IoTimeoutMillis) * time.Millisecond
}

func (c *Config) consumptionTimeout() time.Duration {
	return time.Duration(c.ConsumptionTimeoutMillis) * time.Millisecond
}

func (c *Config) maxAwaitTime() time.Duration {
	return time.Duration(c.MaxAwaitTimeMillisPerQueue) * time.Millisecond
}

func (c *Config) fifoSuspendTime() time.Duration {
	return time.Duration(c.FifoConsumptionSuspendTimeMillis) * time.Millisecond
}
