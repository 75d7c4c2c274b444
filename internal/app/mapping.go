package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dayplanner/internal/config"
	"dayplanner/internal/forecast"
	"dayplanner/internal/notifier"
	"dayplanner/internal/quotes"
	"dayplanner/internal/reminder"
	"dayplanner/internal/server"
	"dayplanner/internal/storage"
	logx "dayplanner/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	}
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	sc := cfg.Server
	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 15*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	// Zero write timeout keeps pprof profile downloads working.
	write, err := config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, 0)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, 60*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	shutdown, err := config.ParseDurationOrDefault("server.shutdown_timeout", sc.ShutdownTimeout, 5*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:            sc.Addr,
		ReadTimeout:     read,
		WriteTimeout:    write,
		IdleTimeout:     idle,
		ShutdownTimeout: shutdown,
		Pprof:           sc.Pprof,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Audit == nil {
		return storage.Config{}, false, nil
	}
	ac := cfg.Audit
	driver := strings.ToLower(strings.TrimSpace(ac.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(ac.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("audit.path is required when audit.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("audit.busy_timeout", ac.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown audit.driver: %s", ac.Driver)
	}
}

func mapReminderConfig(cfg *config.Config) (reminder.Config, error) {
	rc := cfg.Reminder
	interval, err := config.ParseDurationOrDefault("reminder.interval", rc.Interval, config.DefaultReminderInterval)
	if err != nil {
		return reminder.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("reminder.send_timeout", rc.SendTimeout, config.DefaultSendTimeout)
	if err != nil {
		return reminder.Config{}, err
	}
	loc := time.Local
	if tz := strings.TrimSpace(rc.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return reminder.Config{}, fmt.Errorf("reminder.timezone: invalid %q: %w", tz, err)
		}
	}
	return reminder.Config{Interval: interval, Location: loc, SendTimeout: sendTimeout}, nil
}

func mapNotifierConfig(cfg *config.Config, sendTimeout time.Duration) (notifier.Config, error) {
	nc := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 2*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: 30 * time.Second,
		SendTimeout:   sendTimeout,
	}, nil
}

// buildSender picks the transport named by notifier.driver.
func buildSender(cfg *config.Config, log logx.Logger) (notifier.Sender, error) {
	nc := cfg.Notifier
	switch strings.ToLower(strings.TrimSpace(nc.Driver)) {
	case "", "log":
		return notifier.LogSender{Log: log}, nil
	case "none":
		return nil, nil
	case "email", "smtp":
		return notifier.NewEmailSender(notifier.EmailConfig{
			Host:     nc.Email.Host,
			Port:     nc.Email.Port,
			Username: nc.Email.Username,
			Password: nc.Email.Password,
			From:     nc.Email.From,
			To:       nc.Email.To,
		})
	case "telegram":
		return notifier.NewTelegramSender(notifier.TelegramConfig{
			Token:  nc.Telegram.Token,
			ChatID: nc.Telegram.ChatID,
		})
	default:
		return nil, fmt.Errorf("unknown notifier driver: %s", nc.Driver)
	}
}

func mapWeather(cfg *config.Config) (forecast.ClientConfig, forecast.Spot, time.Duration, error) {
	wc := cfg.Weather
	ttl, err := config.ParseDurationOrDefault("weather.ttl", wc.TTL, config.DefaultWeatherTTL)
	if err != nil {
		return forecast.ClientConfig{}, forecast.Spot{}, 0, err
	}
	timeout, err := config.ParseDurationOrDefault("weather.timeout", wc.Timeout, config.DefaultWeatherTimeout)
	if err != nil {
		return forecast.ClientConfig{}, forecast.Spot{}, 0, err
	}
	cc := forecast.ClientConfig{
		SpotURL:      wc.SpotURL,
		ForecastURL:  wc.ForecastURL,
		TZOffsetPath: wc.TZOffsetPath,
		UserAgent:    wc.UserAgent,
		Referer:      wc.Referer,
		Timeout:      timeout,
	}
	return cc, forecast.Spot{ID: wc.SpotID, Model: wc.ModelID}, ttl, nil
}

func mapQuotes(cfg *config.Config) (quotes.ClientConfig, []quotes.Symbol, time.Duration, error) {
	qc := cfg.Quotes
	ttl, err := config.ParseDurationOrDefault("quotes.ttl", qc.TTL, config.DefaultQuotesTTL)
	if err != nil {
		return quotes.ClientConfig{}, nil, 0, err
	}
	timeout, err := config.ParseDurationOrDefault("quotes.timeout", qc.Timeout, config.DefaultQuotesTimeout)
	if err != nil {
		return quotes.ClientConfig{}, nil, 0, err
	}
	syms := make([]quotes.Symbol, 0, len(qc.Symbols))
	for _, s := range qc.Symbols {
		syms = append(syms, quotes.Symbol{Label: s.Label, Symbol: s.Symbol})
	}
	return quotes.ClientConfig{BaseURL: qc.URL, UserAgent: qc.UserAgent, Timeout: timeout}, syms, ttl, nil
}

// validateReload maps a reload candidate through every component mapper
// NewApp uses, so a file NewApp would refuse never goes live.
func validateReload(_ context.Context, cand *config.Config) error {
	var errs []error
	if _, err := mapServerConfig(cand); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mapStorageConfig(cand); err != nil {
		errs = append(errs, err)
	}
	rc, err := mapReminderConfig(cand)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cand, rc.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := buildSender(cand, logx.Nop()); err != nil {
		errs = append(errs, fmt.Errorf("notifier: %w", err))
	}
	if cand.Weather.Enabled {
		if _, _, _, err := mapWeather(cand); err != nil {
			errs = append(errs, err)
		}
	}
	if cand.Quotes.Enabled {
		if _, _, _, err := mapQuotes(cand); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
