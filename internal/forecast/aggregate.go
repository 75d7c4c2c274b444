package forecast

import (
	"errors"
	"sort"
	"time"
)

// ErrMalformed is returned for a series without a usable time axis.
var ErrMalformed = errors.New("malformed forecast series")

const dateLayout = "2006-01-02"

type sample struct {
	hour int
	v    float64
}

// dayBucket collects the present samples of one local date.
type dayBucket struct {
	date  string
	hours []int

	temp, wind, gust, rain, humidity, dir, cloud []sample
}

func (b *dayBucket) middayHour() (int, bool) {
	for _, h := range b.hours {
		if h >= 11 && h <= 14 {
			return h, true
		}
	}
	return 0, false
}

func at(vals []*float64, i int) (float64, bool) {
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

func appendAt(dst []sample, vals []*float64, i, hour int) []sample {
	if v, ok := at(vals, i); ok {
		return append(dst, sample{hour: hour, v: v})
	}
	return dst
}

// Aggregate buckets the series into local calendar days and computes the
// current snapshot and per-day summaries. offsetSeconds is the spot's UTC
// offset; now selects the current hour by absolute time.
func Aggregate(s Series, offsetSeconds int64, now time.Time) (Forecast, error) {
	if s.InitStamp <= 0 || len(s.Hours) == 0 {
		return Forecast{}, ErrMalformed
	}

	buckets := map[string]*dayBucket{}
	for i, h := range s.Hours {
		// Shifted epoch read as UTC gives the spot's wall clock.
		local := time.Unix(s.InitStamp+int64(h)*3600+offsetSeconds, 0).UTC()
		date := local.Format(dateLayout)
		hour := local.Hour()

		b, ok := buckets[date]
		if !ok {
			b = &dayBucket{date: date}
			buckets[date] = b
		}
		b.hours = append(b.hours, hour)
		b.temp = appendAt(b.temp, s.Temp, i, hour)
		b.wind = appendAt(b.wind, s.Wind, i, hour)
		b.gust = appendAt(b.gust, s.Gust, i, hour)
		b.rain = appendAt(b.rain, s.Rain, i, hour)
		b.humidity = appendAt(b.humidity, s.Humidity, i, hour)
		b.dir = appendAt(b.dir, s.WindDir, i, hour)
		b.cloud = appendAt(b.cloud, s.Cloud, i, hour)
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	days := make(Days, 0, len(dates))
	for _, d := range dates {
		days = append(days, Day{Date: d, Summary: summarize(buckets[d])})
	}

	return Forecast{Current: current(s, now), Days: days}, nil
}

func current(s Series, now time.Time) Current {
	target := now.Unix()
	best := 0
	var bestDist int64 = -1
	for i, h := range s.Hours {
		dist := s.InitStamp + int64(h)*3600 - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}

	var c Current
	if v, ok := at(s.Temp, best); ok {
		c.Temp = roundInt(v)
	}
	if v, ok := at(s.Wind, best); ok {
		c.Wind = roundInt(v)
	}
	if v, ok := at(s.Gust, best); ok {
		c.Gust = roundInt(v)
	}
	if v, ok := at(s.WindDir, best); ok {
		c.WindDir = ptr(Compass16(v))
	}
	if v, ok := at(s.Humidity, best); ok {
		c.Humidity = roundInt(v)
	}
	if v, ok := at(s.Rain, best); ok {
		c.Rain = ptr(round1(v))
	}
	if v, ok := at(s.Cloud, best); ok {
		c.Desc = ptr(CloudDesc(v))
	}
	return c
}

func summarize(b *dayBucket) DailySummary {
	var out DailySummary

	if len(b.temp) > 0 {
		hi, lo := b.temp[0].v, b.temp[0].v
		for _, x := range b.temp[1:] {
			hi = max(hi, x.v)
			lo = min(lo, x.v)
		}
		out.High = roundInt(hi)
		out.Low = roundInt(lo)
	}

	midday, hasMidday := b.middayHour()

	if v, ok := valueAt(b.wind, midday, hasMidday); ok {
		out.Wind = roundInt(v)
	} else if len(b.wind) > 0 {
		out.Wind = roundInt(mean(b.wind))
	}

	if v, ok := valueAt(b.dir, midday, hasMidday); ok {
		out.WindDir = ptr(Compass16(v))
	} else if len(b.dir) > 0 {
		out.WindDir = ptr(Compass16(b.dir[0].v))
	}

	if len(b.gust) > 0 {
		g := b.gust[0].v
		for _, x := range b.gust[1:] {
			g = max(g, x.v)
		}
		out.Gust = roundInt(g)
	}

	var rain float64
	for _, x := range b.rain {
		rain += x.v
	}
	out.RainTotal = round1(rain)

	if len(b.humidity) > 0 {
		out.HumidityAvg = roundInt(mean(b.humidity))
	}

	if v, ok := valueAt(b.cloud, midday, hasMidday); ok {
		out.CloudDesc = ptr(CloudDesc(v))
	} else if len(b.cloud) > 0 {
		out.CloudDesc = ptr(CloudDesc(mean(b.cloud)))
	}

	return out
}

// valueAt returns the first sample taken at hour.
func valueAt(samples []sample, hour int, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	for _, x := range samples {
		if x.hour == hour {
			return x.v, true
		}
	}
	return 0, false
}

func mean(samples []sample) float64 {
	var sum float64
	for _, x := range samples {
		sum += x.v
	}
	return sum / float64(len(samples))
}
