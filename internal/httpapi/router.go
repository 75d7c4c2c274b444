// Package httpapi is the planner's HTTP facade: the index page, task CRUD
// and the cached weather and quote panels.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	hpprof "net/http/pprof"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dayplanner/internal/forecast"
	"dayplanner/internal/quotes"
	"dayplanner/internal/storage"
	"dayplanner/internal/taskstore"
	logx "dayplanner/pkg/logx"
)

// maxTaskBody bounds a PUT body; a day holds at most 24 short entries.
const maxTaskBody = 1 << 20

type TaskStore interface {
	GetDay(date string) taskstore.DayTasks
	PutDay(date string, tasks taskstore.DayTasks) error
}

type WeatherSource interface {
	Get(ctx context.Context) forecast.Forecast
}

type QuoteSource interface {
	Get(ctx context.Context) quotes.Snapshot
}

type HistorySource interface {
	History(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

// Deps are the collaborators served by the router. Weather, Quotes, History
// and Status may be nil.
type Deps struct {
	Store   TaskStore
	Weather WeatherSource
	Quotes  QuoteSource
	History HistorySource
	// Status feeds /api/status.
	Status func() any

	IndexPath string
	Pprof     bool
	Log       logx.Logger
}

type api struct {
	deps Deps
	log  logx.Logger
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "http"))

	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log))

	a := &api{deps: d, log: log}

	r.GET("/", a.index)
	r.GET("/index.html", a.index)
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/api")
	g.GET("/tasks/:date", a.getTasks)
	g.PUT("/tasks/:date", a.putTasks)
	g.GET("/weather", a.weather)
	g.GET("/quotes", a.quotes)
	g.GET("/reminders/history", a.history)
	g.GET("/status", a.status)

	if d.Pprof {
		pp := r.Group("/debug/pprof")
		pp.GET("/", gin.WrapF(hpprof.Index))
		pp.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
		pp.GET("/profile", gin.WrapF(hpprof.Profile))
		pp.GET("/symbol", gin.WrapF(hpprof.Symbol))
		pp.POST("/symbol", gin.WrapF(hpprof.Symbol))
		pp.GET("/trace", gin.WrapF(hpprof.Trace))
		// Named profiles (heap, goroutine, ...) are resolved by Index from the path.
		pp.GET("/:name", gin.WrapF(hpprof.Index))
	}
	return r
}

func (a *api) index(c *gin.Context) {
	b, err := os.ReadFile(a.deps.IndexPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.log.Warn("index read failed", logx.String("path", a.deps.IndexPath), logx.Err(err))
		}
		c.String(http.StatusNotFound, "index.html not found")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", b)
}

func (a *api) getTasks(c *gin.Context) {
	date := c.Param("date")
	if !taskstore.ValidDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}
	c.JSON(http.StatusOK, a.deps.Store.GetDay(date))
}

func (a *api) putTasks(c *gin.Context) {
	date := c.Param("date")
	if !taskstore.ValidDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, want YYYY-MM-DD"})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxTaskBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	day, err := taskstore.DecodeDay(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.deps.Store.PutDay(date, day); err != nil {
		_ = c.Error(err)
		a.log.Error("task write failed", logx.String("date", date), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *api) weather(c *gin.Context) {
	if a.deps.Weather == nil {
		c.JSON(http.StatusOK, forecast.Unavailable())
		return
	}
	c.JSON(http.StatusOK, a.deps.Weather.Get(c.Request.Context()))
}

func (a *api) quotes(c *gin.Context) {
	if a.deps.Quotes == nil {
		c.JSON(http.StatusOK, quotes.Snapshot{})
		return
	}
	c.JSON(http.StatusOK, a.deps.Quotes.Get(c.Request.Context()))
}

func (a *api) history(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = min(n, 1000)
	}
	if a.deps.History == nil {
		c.JSON(http.StatusOK, []storage.AuditEntry{})
		return
	}
	out, err := a.deps.History.History(c.Request.Context(), limit)
	if err != nil {
		a.log.Warn("reminder history read failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) status(c *gin.Context) {
	if a.deps.Status == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, a.deps.Status())
}
