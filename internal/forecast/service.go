// Package forecast turns a spot's hourly forecast into the weather panel
// payload: a current snapshot plus per-day summaries in the spot's local time.
package forecast

import (
	"context"
	"time"

	"github.com/jmhodges/clock"

	"dayplanner/internal/cache"
	"dayplanner/internal/metrics"
	logx "dayplanner/pkg/logx"
)

// Fetcher loads the raw series for a spot.
type Fetcher interface {
	Fetch(ctx context.Context, spot Spot) (Raw, error)
}

type Service struct {
	log   logx.Logger
	spot  Spot
	src   Fetcher
	clock clock.Clock
	cache *cache.Keyed[Spot, Forecast]
}

func NewService(src Fetcher, spot Spot, ttl time.Duration, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log.With(logx.String("comp", "forecast")),
		spot:  spot,
		src:   src,
		clock: clk,
		cache: cache.NewKeyed[Spot, Forecast](cache.Options{Name: "weather", TTL: ttl, Clock: clk}),
	}
}

// Get returns the cached forecast, refreshing it when stale. It never fails:
// any upstream problem yields Unavailable().
func (s *Service) Get(ctx context.Context) Forecast {
	f, err := s.cache.GetOrFetch(ctx, s.spot, s.fetch)
	if err != nil {
		s.log.Warn("weather unavailable", logx.String("spot", s.spot.ID), logx.Err(err))
		return Unavailable()
	}
	return f
}

func (s *Service) fetch(ctx context.Context, spot Spot) (Forecast, error) {
	start := s.clock.Now()
	raw, err := s.src.Fetch(ctx, spot)
	if err == nil {
		var f Forecast
		f, err = Aggregate(raw.Series, raw.OffsetSeconds, s.clock.Now())
		if err == nil {
			metrics.RecordUpstream("weather", s.clock.Now().Sub(start).Seconds(), true)
			s.log.Debug("weather refreshed", logx.String("spot", spot.ID), logx.Int("days", len(f.Days)))
			return f, nil
		}
	}
	metrics.RecordUpstream("weather", s.clock.Now().Sub(start).Seconds(), false)
	return Forecast{}, err
}
