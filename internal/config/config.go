package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Device modes.
const (
	DeviceModeMQTT = "mqtt"
	DeviceModeSim  = "sim"
)

type Config struct {
	// Device
	DeviceName     string        `env:"DEVICE_NAME" envDefault:"SB-D96A"`
	DeviceMode     string        `env:"DEVICE_MODE" envDefault:"mqtt"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"15s"`
	SensorStale    time.Duration `env:"SENSOR_STALE" envDefault:"2s"`

	// Behavior
	TickInterval  time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
	VoicePhrase   string        `env:"VOICE_PHRASE" envDefault:"your fault"`
	AudioEnabled  bool          `env:"AUDIO_ENABLED" envDefault:"false"`
	TerminalInput bool          `env:"TERMINAL_INPUT" envDefault:"true"`

	// Database
	HistoryEnabled   bool          `env:"HISTORY_ENABLED" envDefault:"true"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`
	DBHost           string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort           string        `env:"DB_PORT" envDefault:"5432"`
	DBUser           string        `env:"DB_USER" envDefault:"postgres"`
	DBPassword       string        `env:"DB_PASSWORD" envDefault:"password"`
	DBName           string        `env:"DB_NAME" envDefault:"sphero_behavior"`

	// Redis
	CacheEnabled  bool   `env:"CACHE_ENABLED" envDefault:"true"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// MQTT
	MQTTBroker         string        `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883"`
	MQTTClientID       string        `env:"MQTT_CLIENT_ID" envDefault:"SPHERO_BEHAVIOR"`
	MQTTUsername       string        `env:"MQTT_USERNAME" envDefault:""`
	MQTTPassword       string        `env:"MQTT_PASSWORD" envDefault:""`
	MQTTTopicPrefix    string        `env:"MQTT_TOPIC_PREFIX" envDefault:"sphero"`
	MQTTPublishTimeout time.Duration `env:"MQTT_PUBLISH_TIMEOUT" envDefault:"3s"`

	// Application
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE" envDefault:"sphero-behavior.log"`
}

func Load() (*Config, error) {
	// .env 파일은 선택 사항
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the controller cannot run with.
func (c *Config) Validate() error {
	switch c.DeviceMode {
	case DeviceModeMQTT, DeviceModeSim:
	default:
		return fmt.Errorf("invalid DEVICE_MODE %q (want %s or %s)", c.DeviceMode, DeviceModeMQTT, DeviceModeSim)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.DeviceName == "" {
		return errors.New("DEVICE_NAME must not be empty")
	}
	return nil
}

// Topic builds a device-scoped MQTT topic such as "sphero/SB-D96A/cmd".
func (c *Config) Topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", c.MQTTTopicPrefix, c.DeviceName, suffix)
}

// PostgresDSN returns the gorm postgres connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
