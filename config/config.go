package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	DynamoDB   DynamoDBConfig   `yaml:"dynamodb"`
	Log        LogConfig        `yaml:"log"`
	ShipNotify ShipNotifyConfig `yaml:"shipnotify"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	PhaseChangedTopicName string `yaml:"phase_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DynamoDBConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Table    string `yaml:"table"`
	TTLHours int    `yaml:"ttl_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type ShipNotifyConfig struct {
	HTTPAddr            string `yaml:"http_addr"`
	WorkerHTTPAddr      string `yaml:"worker_http_addr"`
	KafkaConsumerGroup  string `yaml:"kafka_consumer_group"`
	ViewCacheTTLSeconds int    `yaml:"view_cache_ttl_seconds"`

	WebhookSecret   string `yaml:"webhook_secret"`
	WebhookTestMode bool   `yaml:"webhook_test_mode"`
	// Bearer-токен для /api/transactions и /api/shipments.
	AdminToken string `yaml:"admin_token"`

	// "postgres" (default) | "dynamodb"
	FlagStore string `yaml:"flag_store"`

	NotifyGuardTTLSeconds int `yaml:"notify_guard_ttl_seconds"`
	SMSRateLimitPerHour   int `yaml:"sms_rate_limit_per_hour"`
	SMSSendAttempts       int `yaml:"sms_send_attempts"`
	// Через сколько поллер перепроверит трек после неудачной отправки SMS.
	NotifyRetrySeconds int    `yaml:"notify_retry_seconds"`
	PublicBaseURL      string `yaml:"public_base_url"`

	SMSMode          string `yaml:"sms_mode"` // "twilio" | "log"
	TwilioBaseURL    string `yaml:"twilio_base_url"`
	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioFrom       string `yaml:"twilio_from"`

	CarrierMode   string `yaml:"carrier_mode"` // "shippo" | "fake"
	ShippoBaseURL string `yaml:"shippo_base_url"`
	ShippoAPIKey  string `yaml:"shippo_api_key"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`
	// Лимиты по отдельным перевозчикам, например {"usps": 60}.
	WorkerCarrierRateLimits map[string]int `yaml:"worker_carrier_rate_limits"`

	// Планирование опроса (опционально). По умолчанию SHIPPED: 30..120 минут,
	// EXCEPTION/OTHER: 90 минут, backoff: 5/15/30/60 минут.
	WorkerNextCheckShippedMinSeconds int `yaml:"worker_next_check_shipped_min_seconds"`
	WorkerNextCheckShippedMaxSeconds int `yaml:"worker_next_check_shipped_max_seconds"`
	WorkerNextCheckOtherSeconds      int `yaml:"worker_next_check_other_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

// Секреты удобнее прокидывать через env, а не класть в yaml.
func (c *Config) applyEnv() {
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.ShipNotify.WebhookSecret = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.ShipNotify.AdminToken = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.ShipNotify.TwilioAuthToken = v
	}
	if v := os.Getenv("SHIPPO_API_KEY"); v != "" {
		c.ShipNotify.ShippoAPIKey = v
	}
}

func (c *Config) PostgresConnString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName, sslMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaBrokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)}
}

func (c *Config) PhaseChangedTopic() string {
	if c.Kafka.PhaseChangedTopicName == "" {
		return "shipment.phase_changed"
	}
	return c.Kafka.PhaseChangedTopicName
}
