package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	LiveKitURL  string        `mapstructure:"livekit_url"`
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	TokenURL    string        `mapstructure:"token_url"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	Secret      string        `mapstructure:"secret"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
	SweepPeriod time.Duration `mapstructure:"sweep_period"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("livekit_url", "ws://localhost:7880")
	v.SetDefault("token_url", "http://localhost:8080/token")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("presence_ttl", "90s")
	v.SetDefault("sweep_period", "60s")

	// Signing material has no default; the token endpoint reports
	// misconfiguration instead of signing with an empty secret.
	v.BindEnv("api_key", "LIVEKIT_API_KEY")
	v.BindEnv("api_secret", "LIVEKIT_API_SECRET")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
