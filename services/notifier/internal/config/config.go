package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the file read when Load is given an empty path.
var ConfigPath = "config.yaml"

func init() {
	if v := strings.TrimSpace(os.Getenv("POLYGRAM_NOTIFIER_CONFIG")); v != "" {
		ConfigPath = v
	}
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"logLevel"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	PushStream      string `yaml:"pushStream"`
	PushGroup       string `yaml:"pushGroup"`
	Concurrency     int    `yaml:"concurrency"`
	MaxRetries      int    `yaml:"maxRetries"`
	RetryDelay      string `yaml:"retryDelay"`
	SendTimeout     string `yaml:"sendTimeout"`
	PushTTL         string `yaml:"pushTTL"`
	VAPIDSubscriber string `yaml:"vapidSubscriber"`
	VAPIDPublicKey  string `yaml:"vapidPublicKey"`
	VAPIDPrivateKey string `yaml:"vapidPrivateKey"`
}

// Load reads config from path (defaults to ConfigPath).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("PUSH_STREAM"); v != "" {
		cfg.PushStream = v
	}
	if v := os.Getenv("PUSH_GROUP"); v != "" {
		cfg.PushGroup = v
	}
	if v := os.Getenv("NOTIFIER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("VAPID_SUBSCRIBER"); v != "" {
		cfg.VAPIDSubscriber = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.VAPIDPublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.VAPIDPrivateKey = v
	}
	if strings.TrimSpace(cfg.PushStream) == "" {
		cfg.PushStream = "polygram:push"
	}
	if strings.TrimSpace(cfg.PushGroup) == "" {
		cfg.PushGroup = "notifier"
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return errors.New("config: vapidPublicKey and vapidPrivateKey are required (set in config.yaml or VAPID_PUBLIC_KEY/VAPID_PRIVATE_KEY)")
	}
	if strings.TrimSpace(cfg.VAPIDSubscriber) == "" {
		return errors.New("config: vapidSubscriber is required (set in config.yaml or VAPID_SUBSCRIBER)")
	}
	if cfg.Concurrency < 0 || cfg.MaxRetries < 0 {
		return errors.New("config: concurrency and maxRetries must be >= 0")
	}
	for name, raw := range map[string]string{
		"retryDelay":  cfg.RetryDelay,
		"sendTimeout": cfg.SendTimeout,
		"pushTTL":     cfg.PushTTL,
	} {
		if _, err := ParseDuration(raw, 0); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration parses an optional duration string, returning def when empty.
func ParseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return dur, nil
}
