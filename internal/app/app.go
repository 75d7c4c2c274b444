// Package app wires the planner's components and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmhodges/clock"

	"dayplanner/internal/config"
	"dayplanner/internal/forecast"
	"dayplanner/internal/httpapi"
	"dayplanner/internal/notifier"
	"dayplanner/internal/quotes"
	"dayplanner/internal/reminder"
	rtsup "dayplanner/internal/runtime/supervisor"
	"dayplanner/internal/server"
	"dayplanner/internal/storage"
	"dayplanner/internal/taskstore"
	logx "dayplanner/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	tasks   *taskstore.Store
	audit   storage.Store
	notif   *notifier.Service
	remind  *reminder.Scheduler
	weather *forecast.Service
	quotes  *quotes.Service
	http    *server.Service

	reminderOn bool
	startedAt  time.Time
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	a := &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        appLog,
		logs:       logSvc,
		reminderOn: cfg.Reminder.Enabled,
	}
	// Close whatever was opened if a later step fails.
	ok := false
	defer func() {
		if !ok {
			a.closeStores()
			_ = logSvc.Close()
		}
	}()

	clk := clock.New()

	a.tasks, err = taskstore.Open(taskstore.Config{Path: cfg.Store.Path, MaxBytes: cfg.Store.MaxBytes}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "audit")))
		if err != nil {
			return nil, err
		}
		a.audit = st
		appLog.Info("audit enabled", logx.String("driver", sc.Driver))
	}

	rcfg, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg, rcfg.SendTimeout)
	if err != nil {
		return nil, err
	}
	sender, err := buildSender(cfg, log.With(logx.String("comp", "notifier")))
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	a.notif = notifier.New(ncfg, sender, a.audit, log)
	a.remind = reminder.New(rcfg, a.tasks, a.notif, clk, log)

	if cfg.Weather.Enabled {
		cc, spot, ttl, err := mapWeather(cfg)
		if err != nil {
			return nil, err
		}
		a.weather = forecast.NewService(forecast.NewClient(cc, nil), spot, ttl, clk, log)
	}
	if cfg.Quotes.Enabled && len(cfg.Quotes.Symbols) > 0 {
		qc, syms, ttl, err := mapQuotes(cfg)
		if err != nil {
			return nil, err
		}
		a.quotes = quotes.NewService(quotes.NewClient(qc, nil), syms, ttl, clk, log)
	}

	srvCfg, err := mapServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	deps := httpapi.Deps{
		Store:     a.tasks,
		History:   a.notif,
		Status:    a.Status,
		IndexPath: cfg.Server.IndexPath,
		Pprof:     cfg.Server.Pprof,
		Log:       log,
	}
	// Typed nils would defeat the router's nil checks.
	if a.weather != nil {
		deps.Weather = a.weather
	}
	if a.quotes != nil {
		deps.Quotes = a.quotes
	}
	a.http = server.New(srvCfg, httpapi.NewRouter(deps), log)

	ok = true
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Addr is the bound HTTP address, or "" before the listener is up.
func (a *App) Addr() string { return a.http.Addr() }

// Ready is closed once the HTTP listener is bound.
func (a *App) Ready() <-chan struct{} { return a.http.Ready() }

// Status is the payload of /api/status.
func (a *App) Status() any {
	out := map[string]any{
		"uptime_s":      int64(time.Since(a.startedAt).Seconds()),
		"store_dates":   len(a.tasks.Dates()),
		"store_bytes":   a.tasks.Size(),
		"reminders_on":  a.reminderOn,
		"reminder_keys": a.remind.Sent().Len(),
		"notifier":      a.notif.SenderName(),
		"weather":       a.weather != nil,
		"quotes":        a.quotes != nil,
	}
	if a.sup != nil {
		out["app"] = a.sup.Snapshot()
	}
	if sup := a.http.Supervisor(); sup != nil {
		out["http"] = sup.Snapshot()
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.http.Start(a.sup.Context())
	if a.reminderOn {
		a.remind.Start(a.sup.Context())
	} else {
		a.log.Info("reminders disabled")
	}

	if strings.TrimSpace(a.cfgPath) != "" {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(validateReload)
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
			return nil
		})
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.String("store", a.cfgm.Get().Store.Path))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}

			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}

			a.logs.Apply(mapLogConfig(newCfg))

			if pending := config.RequiresRestart(sections); len(pending) > 0 {
				a.log.Warn("config sections changed; restart required for them to take effect",
					logx.String("sections", strings.Join(pending, ",")))
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Each step gets an upper bound so one component can't stall the whole stop.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("reminder", 2*time.Second, func(c context.Context) error { a.remind.Stop(c); return nil })
	step("http", 6*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("audit", time.Second, func(context.Context) error {
		if a.audit != nil {
			return a.audit.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func (a *App) closeStores() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
}
