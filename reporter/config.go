package reporter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/exception-monitor/common/messaging"
)

const (
	EnvPrefix = "EXCEPTION_HANDLER"

	DefaultServers        = "nats://localhost:4222"
	DefaultQueueSize      = 1024
	DefaultRatePerSecond  = 100
	DefaultPublishTimeout = 5 * time.Second
)

// Config holds the deployment tags stamped on every event and the bus
// settings. The bus keys also answer to their historical kafka.* names.
type Config struct {
	ProjectName   string
	ComponentName string
	PodName       string
	PodIP         string
	ClusterName   string
	Environment   string

	Bus BusConfig

	// QueueSize bounds the events waiting to be published.
	QueueSize int

	// RatePerSecond caps publishes; Burst defaults to the same value.
	RatePerSecond float64
	Burst         int

	PublishTimeout time.Duration

	// BreakerFailures consecutive publish failures open the circuit for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type BusConfig struct {
	Topic      string
	Servers    string
	Partitions int
}

func DefaultConfig() Config {
	return Config{
		Bus: BusConfig{
			Topic:      messaging.DefaultTopic,
			Servers:    DefaultServers,
			Partitions: 1,
		},
		QueueSize:       DefaultQueueSize,
		RatePerSecond:   DefaultRatePerSecond,
		PublishTimeout:  DefaultPublishTimeout,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Bus.Topic == "" {
		c.Bus.Topic = d.Bus.Topic
	}
	if c.Bus.Servers == "" {
		c.Bus.Servers = d.Bus.Servers
	}
	if c.Bus.Partitions <= 0 {
		c.Bus.Partitions = d.Bus.Partitions
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = d.RatePerSecond
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RatePerSecond)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = d.BreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = d.BreakerTimeout
	}
	return c
}

// firstString returns the first of keys that is set.
func firstString(v *viper.Viper, keys ...string) string {
	for _, k := range keys {
		if v.IsSet(k) {
			return v.GetString(k)
		}
	}
	return ""
}

// LoadConfig reads path, when given, and EXCEPTION_HANDLER_* environment
// variables (EXCEPTION_HANDLER_BUS_TOPIC, EXCEPTION_HANDLER_PROJECTNAME, ...).
// bus.topic and bus.servers fall back to kafka.topic and
// kafka.bootstrapServers.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read reporter config: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		ProjectName:     firstString(v, "projectName"),
		ComponentName:   firstString(v, "componentName"),
		PodName:         firstString(v, "podName"),
		PodIP:           firstString(v, "podIp"),
		ClusterName:     firstString(v, "clusterName"),
		Environment:     firstString(v, "environment"),
		QueueSize:       v.GetInt("queueSize"),
		RatePerSecond:   v.GetFloat64("ratePerSecond"),
		Burst:           v.GetInt("burst"),
		PublishTimeout:  v.GetDuration("publishTimeout"),
		BreakerFailures: v.GetUint32("breakerFailures"),
		BreakerTimeout:  v.GetDuration("breakerTimeout"),
		Bus: BusConfig{
			Topic:      firstString(v, "bus.topic", "kafka.topic"),
			Servers:    firstString(v, "bus.servers", "kafka.bootstrapServers"),
			Partitions: v.GetInt("bus.partitions"),
		},
	}
	if cfg.QueueSize < 0 || cfg.Bus.Partitions < 0 {
		return Config{}, errors.New("queueSize and bus.partitions must not be negative")
	}
	return cfg.withDefaults(), nil
}
