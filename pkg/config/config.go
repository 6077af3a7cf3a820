package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		ReadingsTopic string   `yaml:"readings_topic"`
		AlertsTopic   string   `yaml:"alerts_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Detection struct {
		Lanes         int           `yaml:"lanes"`
		LaneBuffer    int           `yaml:"lane_buffer"`
		RefdataPeriod time.Duration `yaml:"refdata_period"`
		MovingAverage struct {
			WindowSize int     `yaml:"window_size"`
			MinSamples int     `yaml:"min_samples"`
			Multiplier float64 `yaml:"multiplier"`
		} `yaml:"moving_average"`
		RateOfChange struct {
			MaxRatePerSecond float64       `yaml:"max_rate_per_second"`
			MaxGap           time.Duration `yaml:"max_gap"`
		} `yaml:"rate_of_change"`
	} `yaml:"detection"`
	Dedup struct {
		Window time.Duration `yaml:"window"`
		Redis  struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"dedup"`
	Escalation struct {
		BackoffMin     time.Duration `yaml:"backoff_min"`
		BackoffMax     time.Duration `yaml:"backoff_max"`
		NotifyTimeout  time.Duration `yaml:"notify_timeout"`
		ThrottleBurst  float64       `yaml:"throttle_burst"`
		ThrottleRefill float64       `yaml:"throttle_refill_per_sec"`
	} `yaml:"escalation"`
	Fanout struct {
		SinkTimeout time.Duration `yaml:"sink_timeout"`
	} `yaml:"fanout"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("READINGS_TOPIC"); v != "" {
		c.Kafka.ReadingsTopic = v
	}
	if v := os.Getenv("ALERTS_TOPIC"); v != "" {
		c.Kafka.AlertsTopic = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Dedup.Redis.Password = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Kafka.ReadingsTopic == "" {
		c.Kafka.ReadingsTopic = "sensor-readings"
	}
	if c.Kafka.AlertsTopic == "" {
		c.Kafka.AlertsTopic = "anomaly-alerts"
	}
	if c.Detection.Lanes <= 0 {
		c.Detection.Lanes = 8
	}
	if c.Detection.LaneBuffer <= 0 {
		c.Detection.LaneBuffer = 256
	}
	if c.Detection.RefdataPeriod <= 0 {
		c.Detection.RefdataPeriod = 5 * time.Minute
	}
	if c.Dedup.Window <= 0 {
		c.Dedup.Window = 30 * time.Minute
	}
	if c.Escalation.BackoffMin <= 0 {
		c.Escalation.BackoffMin = 100 * time.Millisecond
	}
	if c.Escalation.BackoffMax <= 0 {
		c.Escalation.BackoffMax = 30 * time.Second
	}
	if c.Escalation.NotifyTimeout <= 0 {
		c.Escalation.NotifyTimeout = 10 * time.Second
	}
	if c.Fanout.SinkTimeout <= 0 {
		c.Fanout.SinkTimeout = 5 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	return nil
}
