package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

// maxBody caps upstream payloads read into memory.
const maxBody = 8 << 20

// Spot identifies one forecast location and model. It is the cache key.
type Spot struct {
	ID    string
	Model string
}

type ClientConfig struct {
	SpotURL     string
	ForecastURL string
	// TZOffsetPath is the gjson path of the hour offset in the spot payload.
	TZOffsetPath string
	UserAgent    string
	Referer      string
	Timeout      time.Duration
}

// Client fetches a spot's series and timezone from a Windguru-style API.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: hc}
}

// Fetch runs the spot and forecast requests concurrently under one deadline.
func (c *Client) Fetch(ctx context.Context, spot Spot) (Raw, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		offset int64
		series Series
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := url.Values{"q": {"forecast_spot"}, "id_spot": {spot.ID}}
		body, err := c.get(gctx, c.cfg.SpotURL, q)
		if err != nil {
			return fmt.Errorf("spot: %w", err)
		}
		offset, err = parseOffset(body, c.cfg.TZOffsetPath)
		return err
	})
	g.Go(func() error {
		q := url.Values{"q": {"forecast"}, "id_spot": {spot.ID}, "id_model": {spot.Model}}
		body, err := c.get(gctx, c.cfg.ForecastURL, q)
		if err != nil {
			return fmt.Errorf("forecast: %w", err)
		}
		series, err = parseSeries(body)
		return err
	})
	if err := g.Wait(); err != nil {
		return Raw{}, err
	}
	return Raw{Series: series, OffsetSeconds: offset}, nil
}

func (c *Client) get(ctx context.Context, base string, q url.Values) ([]byte, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

func parseOffset(body []byte, path string) (int64, error) {
	if !gjson.ValidBytes(body) {
		return 0, errors.New("spot: invalid json")
	}
	v := gjson.GetBytes(body, path)
	if !v.Exists() || v.Type != gjson.Number {
		return 0, fmt.Errorf("spot: no numeric offset at %q", path)
	}
	return int64(math.Round(v.Float() * 3600)), nil
}

func parseSeries(body []byte) (Series, error) {
	var payload struct {
		Fcst *Series `json:"fcst"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Series{}, fmt.Errorf("forecast: %w", err)
	}
	if payload.Fcst == nil || payload.Fcst.InitStamp <= 0 || len(payload.Fcst.Hours) == 0 {
		return Series{}, fmt.Errorf("forecast: %w", ErrMalformed)
	}
	return *payload.Fcst, nil
}
