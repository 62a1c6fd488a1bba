package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	TimeoutSeconds int      `mapstructure:"timeoutSeconds"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// GatewayConfig points at the case-management backend the engine books
// against.
type GatewayConfig struct {
	BaseURL           string        `mapstructure:"baseUrl"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requestsPerSecond"`
	Burst             int           `mapstructure:"burst"`
}

type ScheduleConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounceWindow"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
}

type RedisConfig struct {
	URL            string `mapstructure:"url"`
	RefreshChannel string `mapstructure:"refreshChannel"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("SCHEDULER")
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.timeoutSeconds", 30)
	viper.SetDefault("gateway.timeout", 10*time.Second)
	viper.SetDefault("gateway.requestsPerSecond", 20.0)
	viper.SetDefault("gateway.burst", 10)
	viper.SetDefault("schedule.debounceWindow", 300*time.Millisecond)
	viper.SetDefault("schedule.pollInterval", 20*time.Second)
	viper.SetDefault("redis.refreshChannel", "scheduler:refresh")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.console", true)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("gateway.baseUrl is required")
	}

	return &config, nil
}
