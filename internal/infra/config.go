package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every application setting. LoadConfig reads the yaml
// file first, then lets environment variables override endpoints.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Binance struct {
			SpotRestURL    string `yaml:"spot_rest_url"`
			SpotWSURL      string `yaml:"spot_ws_url"`
			FuturesRestURL string `yaml:"futures_rest_url"`
			FuturesWSURL   string `yaml:"futures_ws_url"`
		} `yaml:"binance"`
	} `yaml:"api"`

	Engine struct {
		Symbols           []string `yaml:"symbols"`
		WindowMinutes     int      `yaml:"window_minutes"`
		NotifyIntervalMS  int      `yaml:"notify_interval_ms"`
		SignalDecayMS     int      `yaml:"signal_decay_ms"`
		ConnectTimeoutSec int      `yaml:"connect_timeout_sec"`
		ReconnectDelaySec int      `yaml:"reconnect_delay_sec"`
		InboxSize         int      `yaml:"inbox_size"`
	} `yaml:"engine"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	for name, url := range map[string]string{
		"binance spot WS":    c.API.Binance.SpotWSURL,
		"binance futures WS": c.API.Binance.FuturesWSURL,
	} {
		if url == "" || (!strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://")) {
			return fmt.Errorf("invalid %s URL: %s", name, url)
		}
	}
	for name, url := range map[string]string{
		"binance spot REST":    c.API.Binance.SpotRestURL,
		"binance futures REST": c.API.Binance.FuturesRestURL,
	} {
		if url == "" || (!strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://")) {
			return fmt.Errorf("invalid %s URL: %s", name, url)
		}
	}

	if len(c.Engine.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Engine.NotifyIntervalMS <= 0 {
		return fmt.Errorf("notify interval must be positive")
	}
	if c.Engine.WindowMinutes <= 0 {
		return fmt.Errorf("window minutes must be positive")
	}
	if c.Engine.ConnectTimeoutSec <= 0 || c.Engine.ReconnectDelaySec <= 0 {
		return fmt.Errorf("connect timeout and reconnect delay must be positive")
	}

	return nil
}

// Window returns the volume-window span.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Engine.WindowMinutes) * time.Minute
}

// NotifyInterval returns the notification-throttle cadence.
func (c *Config) NotifyInterval() time.Duration {
	return time.Duration(c.Engine.NotifyIntervalMS) * time.Millisecond
}

// SignalDecay returns the change-signal lifetime.
func (c *Config) SignalDecay() time.Duration {
	return time.Duration(c.Engine.SignalDecayMS) * time.Millisecond
}

// ConnectTimeout returns the stream connect timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Engine.ConnectTimeoutSec) * time.Second
}

// ReconnectDelay returns the wait before retrying a closed stream.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Engine.ReconnectDelaySec) * time.Second
}

// overrideWithEnv replaces endpoint settings from the environment when set.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("MARKETVIEW_SPOT_REST_URL"); url != "" {
		cfg.API.Binance.SpotRestURL = url
	}
	if url := os.Getenv("MARKETVIEW_SPOT_WS_URL"); url != "" {
		cfg.API.Binance.SpotWSURL = url
	}
	if url := os.Getenv("MARKETVIEW_FUTURES_REST_URL"); url != "" {
		cfg.API.Binance.FuturesRestURL = url
	}
	if url := os.Getenv("MARKETVIEW_FUTURES_WS_URL"); url != "" {
		cfg.API.Binance.FuturesWSURL = url
	}
	if symbols := os.Getenv("MARKETVIEW_SYMBOLS"); symbols != "" {
		cfg.Engine.Symbols = strings.Split(symbols, ",")
	}
}
