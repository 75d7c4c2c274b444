package config

import (
	"reflect"
	"sort"
	"strings"

	logx "dayplanner/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like passwords or tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.pprof", newCfg.Server.Pprof),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.path", newCfg.Store.Path),
			logx.Int64("store.max_bytes", newCfg.Store.MaxBytes),
		)
	}

	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.Bool("reminder.enabled", newCfg.Reminder.Enabled),
			logx.String("reminder.interval", strings.TrimSpace(newCfg.Reminder.Interval)),
			logx.String("reminder.timezone", strings.TrimSpace(newCfg.Reminder.Timezone)),
		)
	}

	// Notifier (never log password/token)
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.String("notifier.driver", newCfg.Notifier.Driver),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Bool("notifier.email.password_set", strings.TrimSpace(newCfg.Notifier.Email.Password) != ""),
			logx.Bool("notifier.telegram.token_set", strings.TrimSpace(newCfg.Notifier.Telegram.Token) != ""),
		)
	}

	// Audit: nil means disabled.
	var oDriver, nDriver string
	if oldCfg.Audit != nil {
		oDriver = strings.TrimSpace(oldCfg.Audit.Driver)
	}
	if newCfg.Audit != nil {
		nDriver = strings.TrimSpace(newCfg.Audit.Driver)
	}
	if oDriver != nDriver || !reflect.DeepEqual(oldCfg.Audit, newCfg.Audit) {
		changed = append(changed, "audit")
		attrs = append(attrs, logx.String("audit.driver", nDriver))
	}

	if oldCfg.Weather != newCfg.Weather {
		changed = append(changed, "weather")
		attrs = append(attrs,
			logx.Bool("weather.enabled", newCfg.Weather.Enabled),
			logx.String("weather.spot_id", newCfg.Weather.SpotID),
			logx.String("weather.ttl", newCfg.Weather.TTL),
		)
	}

	if !reflect.DeepEqual(oldCfg.Quotes, newCfg.Quotes) {
		changed = append(changed, "quotes")
		attrs = append(attrs,
			logx.Bool("quotes.enabled", newCfg.Quotes.Enabled),
			logx.Int("quotes.symbols", len(newCfg.Quotes.Symbols)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart lists changed sections that are only read at startup.
// Logging is the only section applied live.
func RequiresRestart(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		if s != "logging" {
			out = append(out, s)
		}
	}
	return out
}
