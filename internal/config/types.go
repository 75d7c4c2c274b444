package config

type Config struct {
	Server   ServerConfig   `json:"server"`
	Logging  LoggingConfig  `json:"logging"`
	Store    StoreConfig    `json:"store"`
	Reminder ReminderConfig `json:"reminder"`
	Notifier NotifierConfig `json:"notifier"`

	// Audit controls the reminder delivery log. Nil means disabled.
	Audit *AuditConfig `json:"audit,omitempty"`

	Weather WeatherConfig `json:"weather"`
	Quotes  QuotesConfig  `json:"quotes"`
}

// ServerConfig controls the HTTP listener.
//
// Timeouts are Go duration strings (e.g. "5s", "1m").
type ServerConfig struct {
	Addr      string `json:"addr" env:"DAYPLANNER_ADDR"`
	IndexPath string `json:"index_path,omitempty"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`

	// Pprof mounts /debug/pprof on the main router. Keep it off on public binds.
	Pprof bool `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" env:"DAYPLANNER_LOG_LEVEL"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// StoreConfig controls the task store file.
//
// MaxBytes caps the serialized size of the whole store; 0 means the default (500 MiB).
type StoreConfig struct {
	Path     string `json:"path" env:"DAYPLANNER_STORE_PATH"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

// ReminderConfig controls the background reminder loop.
type ReminderConfig struct {
	Enabled bool `json:"enabled"`
	// Interval is a Go duration string; default "1m".
	Interval string `json:"interval,omitempty"`
	// Timezone is an IANA name, e.g. "Europe/Berlin". Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`
	// SendTimeout bounds a single notification send.
	SendTimeout string `json:"send_timeout,omitempty"`
}

// NotifierConfig selects the reminder transport.
//
// Driver values:
//   - "log": write reminders to the log only (default)
//   - "email": SMTP over implicit TLS
//   - "telegram": Telegram bot message
type NotifierConfig struct {
	Driver     string `json:"driver"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// RetryMax is the number of extra attempts after a failed send.
	RetryMax int `json:"retry_max,omitempty"`
	// RetryBase is the first backoff delay (Go duration string); later delays double.
	RetryBase string         `json:"retry_base,omitempty"`
	Email     EmailConfig    `json:"email"`
	Telegram  TelegramConfig `json:"telegram"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password,omitempty" env:"DAYPLANNER_SMTP_PASSWORD"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty" env:"DAYPLANNER_TELEGRAM_TOKEN"`
	ChatID int64  `json:"chat_id"`
}

// AuditConfig controls the reminder delivery log.
//
// Example:
//
//	"audit": { "driver": "file", "path": "./dayplanner_audit" }
type AuditConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// WeatherConfig points at a Windguru-style iapi endpoint pair.
type WeatherConfig struct {
	Enabled     bool   `json:"enabled"`
	SpotID      string `json:"spot_id"`
	ModelID     string `json:"model_id,omitempty"`
	SpotURL     string `json:"spot_url,omitempty"`
	ForecastURL string `json:"forecast_url,omitempty"`
	// TZOffsetPath is the gjson path of the whole-hour UTC offset in the spot payload.
	TZOffsetPath string `json:"tz_offset_path,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	Referer      string `json:"referer,omitempty"`
	TTL          string `json:"ttl,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
}

type QuotesConfig struct {
	Enabled   bool          `json:"enabled"`
	URL       string        `json:"url,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	TTL       string        `json:"ttl,omitempty"`
	Timeout   string        `json:"timeout,omitempty"`
	Symbols   []QuoteSymbol `json:"symbols"`
}

type QuoteSymbol struct {
	Label  string `json:"label"`
	Symbol string `json:"symbol"`
}
