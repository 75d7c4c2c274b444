package app

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dayplanner/internal/config"
	logx "dayplanner/pkg/logx"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAppServesTasks(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `
server:
  addr: "127.0.0.1:0"
logging:
  level: error
store:
  path: "`+filepath.ToSlash(filepath.Join(dir, "tasks.json"))+`"
reminder:
  enabled: false
notifier:
  driver: log
audit:
  driver: file
  path: "`+filepath.ToSlash(filepath.Join(dir, "audit"))+`"
`)

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	select {
	case <-a.Ready():
	case <-ctx.Done():
		t.Fatal("listener never bound")
	}
	base := "http://" + a.Addr()

	req, _ := http.NewRequest(http.MethodPut, base+"/api/tasks/2024-05-01", strings.NewReader(`{"9":{"text":"Standup"}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/api/tasks/2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), "Standup") {
		t.Fatalf("GET body = %s", b)
	}

	resp, err = http.Get(base + "/api/weather")
	if err != nil {
		t.Fatal(err)
	}
	b, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(b)) != `{"current":{"temp":null,"desc":"Unavailable"},"days":{}}` {
		t.Fatalf("weather = %s", b)
	}

	if _, err := os.Stat(filepath.Join(dir, "tasks.json")); err != nil {
		t.Fatalf("store file not written: %v", err)
	}
}

func TestHotReloadRejectsUnbuildableConfig(t *testing.T) {
	dir := t.TempDir()
	base := `
server:
  addr: "127.0.0.1:0"
store:
  path: "` + filepath.ToSlash(filepath.Join(dir, "tasks.json")) + `"
reminder:
  enabled: false
`
	cfgPath := writeConfig(t, dir, base+"logging:\n  level: error\n")

	a, err := NewApp(cfgPath)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	// Passes config.Validate but no audit backend is named "mongo".
	writeConfig(t, dir, base+"logging:\n  level: warn\naudit:\n  driver: mongo\n")
	if _, err := a.cfgm.Reload(ctx); err == nil || !strings.Contains(err.Error(), "audit.driver") {
		t.Fatalf("Reload err = %v, want audit.driver rejection", err)
	}
	if got := a.cfgm.Get(); got.Logging.Level != "error" || got.Audit != nil {
		t.Fatalf("rejected config went live: level=%q audit=%+v", got.Logging.Level, got.Audit)
	}

	writeConfig(t, dir, base+"logging:\n  level: warn\n")
	if _, err := a.cfgm.Reload(ctx); err != nil {
		t.Fatalf("valid reload: %v", err)
	}
	if got := a.cfgm.Get().Logging.Level; got != "warn" {
		t.Fatalf("level = %q after valid reload", got)
	}
}

func TestValidateReload(t *testing.T) {
	cfg := config.Default()
	if err := validateReload(context.Background(), cfg); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	cfg.Notifier.Driver = "telegram"
	cfg.Notifier.Telegram.ChatID = 42
	if err := validateReload(context.Background(), cfg); err == nil {
		t.Fatal("telegram without token should be rejected")
	}
	cfg = config.Default()
	cfg.Audit = &config.AuditConfig{Driver: "sqlite"}
	if err := validateReload(context.Background(), cfg); err == nil {
		t.Fatal("sqlite audit without path should be rejected")
	}
}

func TestMapStorageConfig(t *testing.T) {
	cfg := config.Default()
	if _, enabled, err := mapStorageConfig(cfg); err != nil || enabled {
		t.Fatalf("nil audit: enabled=%v err=%v", enabled, err)
	}
	cfg.Audit = &config.AuditConfig{Driver: "sqlite"}
	if _, _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("sqlite without path should fail")
	}
	cfg.Audit = &config.AuditConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "3s"}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled || sc.BusyTimeout != 3*time.Second {
		t.Fatalf("sqlite = %+v %v %v", sc, enabled, err)
	}
	cfg.Audit = &config.AuditConfig{Driver: "mongo"}
	if _, _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestMapReminderConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Reminder.Timezone = "UTC"
	cfg.Reminder.Interval = "30s"
	rc, err := mapReminderConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Interval != 30*time.Second || rc.Location != time.UTC || rc.SendTimeout != config.DefaultSendTimeout {
		t.Fatalf("reminder = %+v", rc)
	}
	cfg.Reminder.Timezone = "Mars/Olympus"
	if _, err := mapReminderConfig(cfg); err == nil {
		t.Fatal("bad timezone should fail")
	}
}

func TestBuildSender(t *testing.T) {
	cfg := config.Default()
	s, err := buildSender(cfg, logx.Nop())
	if err != nil || s.Name() != "log" {
		t.Fatalf("default sender = %v, %v", s, err)
	}
	cfg.Notifier.Driver = "email"
	cfg.Notifier.Email.Host = "smtp.example.com"
	cfg.Notifier.Email.Username = "me@example.com"
	s, err = buildSender(cfg, logx.Nop())
	if err != nil || s.Name() != "email" {
		t.Fatalf("email sender = %v, %v", s, err)
	}
	cfg.Notifier.Driver = "pigeon"
	if _, err := buildSender(cfg, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}
