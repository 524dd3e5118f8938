package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	// NodeID distinguishes this process in relay traffic. Empty means
	// generate one at startup.
	NodeID string `mapstructure:"node_id"`

	// RedisAddr empty means single-node mode with the in-memory bus.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`

	OfferTTL          time.Duration `mapstructure:"offer_ttl"`
	PresenceHeartbeat time.Duration `mapstructure:"presence_heartbeat"`
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
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("offer_ttl", "30s")
	v.SetDefault("presence_heartbeat", "15s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Session cookies are HMAC-signed with this key; an empty key would
	// make every signature forgeable. Sessions won't survive a restart on
	// a generated key, but that beats running unsigned.
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
		fmt.Printf("⚠️ No session secret configured, generated an ephemeral one\n")
	}
	return &cfg, nil
}
