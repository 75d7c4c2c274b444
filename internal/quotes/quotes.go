// Package quotes fetches the market ticker shown next to the calendar.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"dayplanner/internal/cache"
	"dayplanner/internal/metrics"
	logx "dayplanner/pkg/logx"
)

// ErrAllFailed is returned when no configured symbol could be fetched.
var ErrAllFailed = errors.New("all quote symbols failed")

const (
	pricePath     = "chart.result.0.meta.regularMarketPrice"
	prevClosePath = "chart.result.0.meta.chartPreviousClose"
	maxBody       = 1 << 20
)

type Symbol struct {
	Label  string
	Symbol string
}

// Quote is one ticker entry. Nil fields mean the value was unavailable.
type Quote struct {
	Price     *float64 `json:"price"`
	ChangePct *float64 `json:"change_pct"`
}

// Snapshot maps display labels to quotes.
type Snapshot map[string]Quote

// Empty returns a snapshot with a null entry per label.
func Empty(symbols []Symbol) Snapshot {
	out := make(Snapshot, len(symbols))
	for _, s := range symbols {
		out[s.Label] = Quote{}
	}
	return out
}

type ClientConfig struct {
	// BaseURL is the chart endpoint; the symbol is appended as a path segment.
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Client{cfg: cfg, http: hc}
}

// Fetch loads every symbol concurrently under one deadline. A symbol that
// fails gets a null entry; the call fails only when every symbol fails.
func (c *Client) Fetch(ctx context.Context, symbols []Symbol) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		out  = Empty(symbols)
		errs []error
	)
	var g errgroup.Group
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			q, err := c.fetchOne(ctx, sym.Symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sym.Symbol, err))
				return nil
			}
			out[sym.Label] = q
			return nil
		})
	}
	_ = g.Wait()

	if len(symbols) > 0 && len(errs) == len(symbols) {
		return nil, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
	}
	return out, nil
}

func (c *Client) fetchOne(ctx context.Context, symbol string) (Quote, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + url.PathEscape(symbol) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Quote{}, err
	}
	return parseChart(body)
}

func parseChart(body []byte) (Quote, error) {
	if !gjson.ValidBytes(body) {
		return Quote{}, errors.New("invalid json")
	}
	price := gjson.GetBytes(body, pricePath)
	if price.Type != gjson.Number {
		return Quote{}, errors.New("missing price")
	}
	p := price.Float()
	q := Quote{Price: &p}

	prev := gjson.GetBytes(body, prevClosePath)
	if prev.Type == gjson.Number && prev.Float() != 0 {
		pct := math.Round((p-prev.Float())/prev.Float()*100*100) / 100
		q.ChangePct = &pct
	}
	return q, nil
}

// Fetcher loads a snapshot for the given symbols.
type Fetcher interface {
	Fetch(ctx context.Context, symbols []Symbol) (Snapshot, error)
}

type Service struct {
	log     logx.Logger
	src     Fetcher
	symbols []Symbol
	clock   clock.Clock
	cache   *cache.Cache[Snapshot]
}

func NewService(src Fetcher, symbols []Symbol, ttl time.Duration, clk clock.Clock, log logx.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log.With(logx.String("comp", "quotes")),
		src:     src,
		symbols: append([]Symbol(nil), symbols...),
		clock:   clk,
		cache:   cache.New[Snapshot](cache.Options{Name: "quotes", TTL: ttl, Clock: clk}),
	}
}

// Get returns the cached snapshot, refreshing it when stale. On failure it
// returns an all-null snapshot.
func (s *Service) Get(ctx context.Context) Snapshot {
	snap, err := s.cache.GetOrFetch(ctx, s.fetch)
	if err != nil {
		s.log.Warn("quotes unavailable", logx.Err(err))
		return Empty(s.symbols)
	}
	return snap
}

func (s *Service) fetch(ctx context.Context) (Snapshot, error) {
	start := s.clock.Now()
	snap, err := s.src.Fetch(ctx, s.symbols)
	metrics.RecordUpstream("quotes", s.clock.Now().Sub(start).Seconds(), err == nil)
	return snap, err
}
