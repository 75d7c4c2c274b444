package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAddr          = "0.0.0.0:6900"
	DefaultIndexPath     = "./index.html"
	DefaultStorePath     = "./tasks.json"
	DefaultStoreMaxBytes = int64(500 * 1024 * 1024)

	DefaultReminderInterval = time.Minute
	DefaultSendTimeout      = 30 * time.Second

	DefaultWeatherTTL     = 10 * time.Minute
	DefaultWeatherTimeout = 10 * time.Second
	DefaultQuotesTTL      = 2 * time.Minute
	DefaultQuotesTimeout  = 8 * time.Second

	DefaultUserAgent      = "dayplanner/1.0"
	DefaultWeatherBaseURL = "https://www.windguru.cz/int/iapi.php"
	DefaultTZOffsetPath   = "tabs.0.gmt_hour_offset"
	DefaultQuotesURL      = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// Default returns the config used when no file is given.
func Default() *Config {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "INFO", Console: true},
		Reminder: ReminderConfig{Enabled: true},
		Notifier: NotifierConfig{Driver: "log"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields. It never overrides explicit values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = DefaultAddr
	}
	if strings.TrimSpace(c.Server.IndexPath) == "" {
		c.Server.IndexPath = DefaultIndexPath
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.MaxBytes <= 0 {
		c.Store.MaxBytes = DefaultStoreMaxBytes
	}
	if strings.TrimSpace(c.Notifier.Driver) == "" {
		c.Notifier.Driver = "log"
	}
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = 1
	}
	if c.Notifier.Email.Port == 0 {
		c.Notifier.Email.Port = 465
	}
	if strings.TrimSpace(c.Weather.SpotURL) == "" {
		c.Weather.SpotURL = DefaultWeatherBaseURL
	}
	if strings.TrimSpace(c.Weather.ForecastURL) == "" {
		c.Weather.ForecastURL = DefaultWeatherBaseURL
	}
	if strings.TrimSpace(c.Weather.TZOffsetPath) == "" {
		c.Weather.TZOffsetPath = DefaultTZOffsetPath
	}
	if strings.TrimSpace(c.Weather.UserAgent) == "" {
		c.Weather.UserAgent = DefaultUserAgent
	}
	if strings.TrimSpace(c.Weather.ModelID) == "" {
		c.Weather.ModelID = "3"
	}
	if strings.TrimSpace(c.Quotes.URL) == "" {
		c.Quotes.URL = DefaultQuotesURL
	}
	if strings.TrimSpace(c.Quotes.UserAgent) == "" {
		c.Quotes.UserAgent = DefaultUserAgent
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Store.MaxBytes < 0 {
		return fmt.Errorf("store.max_bytes must be >= 0")
	}
	if c.Notifier.RetryMax < 0 {
		return fmt.Errorf("notifier.retry_max must be >= 0")
	}
	durations := map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"reminder.interval":       c.Reminder.Interval,
		"reminder.send_timeout":   c.Reminder.SendTimeout,
		"notifier.retry_base":     c.Notifier.RetryBase,
		"weather.ttl":             c.Weather.TTL,
		"weather.timeout":         c.Weather.Timeout,
		"quotes.ttl":              c.Quotes.TTL,
		"quotes.timeout":          c.Quotes.Timeout,
	}
	if c.Audit != nil {
		durations["audit.busy_timeout"] = c.Audit.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	if tz := strings.TrimSpace(c.Reminder.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminder.timezone: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Notifier.Driver)) {
	case "", "log", "none":
	case "email", "smtp":
		if strings.TrimSpace(c.Notifier.Email.Host) == "" {
			return fmt.Errorf("notifier.email.host is required for email driver")
		}
		if strings.TrimSpace(c.Notifier.Email.To) == "" {
			return fmt.Errorf("notifier.email.to is required for email driver")
		}
	case "telegram":
		if c.Notifier.Telegram.ChatID == 0 {
			return fmt.Errorf("notifier.telegram.chat_id is required for telegram driver")
		}
	default:
		return fmt.Errorf("unknown notifier driver: %s", c.Notifier.Driver)
	}
	if c.Weather.Enabled && strings.TrimSpace(c.Weather.SpotID) == "" {
		return fmt.Errorf("weather.spot_id is required when weather is enabled")
	}
	for i, s := range c.Quotes.Symbols {
		if strings.TrimSpace(s.Symbol) == "" || strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("quotes.symbols[%d]: label and symbol are required", i)
		}
	}
	return nil
}
