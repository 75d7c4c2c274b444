package forecast

import (
	"bytes"
	"encoding/json"
)

// Series is the raw hourly forecast for one spot. Value slices are parallel
// to Hours; a short slice or a nil entry means the value is absent.
type Series struct {
	InitStamp int64      `json:"initstamp"`
	Hours     []int      `json:"hours"`
	Temp      []*float64 `json:"TMP"`
	Wind      []*float64 `json:"WINDSPD"`
	Gust      []*float64 `json:"GUST"`
	Rain      []*float64 `json:"APCP1"`
	Humidity  []*float64 `json:"RH"`
	WindDir   []*float64 `json:"WINDDIR"`
	Cloud     []*float64 `json:"TCDC"`
}

// Raw is one upstream fetch: the series plus the spot's UTC offset.
type Raw struct {
	Series        Series
	OffsetSeconds int64
}

// Current is the snapshot at the forecast hour nearest to now.
type Current struct {
	Temp     *int     `json:"temp"`
	Wind     *int     `json:"wind"`
	Gust     *int     `json:"gust"`
	WindDir  *string  `json:"wind_dir"`
	Humidity *int     `json:"humidity"`
	Rain     *float64 `json:"rain"`
	Desc     *string  `json:"desc"`

	unavailable bool
}

type currentJSON Current

// MarshalJSON trims the degraded snapshot down to temp and desc.
func (c Current) MarshalJSON() ([]byte, error) {
	if c.unavailable {
		return json.Marshal(struct {
			Temp *int    `json:"temp"`
			Desc *string `json:"desc"`
		}{c.Temp, c.Desc})
	}
	return json.Marshal(currentJSON(c))
}

// DailySummary aggregates one local calendar date.
type DailySummary struct {
	High        *int    `json:"high"`
	Low         *int    `json:"low"`
	Wind        *int    `json:"wind"`
	Gust        *int    `json:"gust"`
	WindDir     *string `json:"wind_dir"`
	RainTotal   float64 `json:"rain_total"`
	HumidityAvg *int    `json:"humidity_avg"`
	CloudDesc   *string `json:"cloud_desc"`
}

type Day struct {
	Date    string
	Summary DailySummary
}

// Days encodes as a JSON object keyed by date, in slice order.
type Days []Day

func (d Days) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(day.Date)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(day.Summary)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the summary for date.
func (d Days) Get(date string) (DailySummary, bool) {
	for _, day := range d {
		if day.Date == date {
			return day.Summary, true
		}
	}
	return DailySummary{}, false
}

// Forecast is the payload served by the weather endpoint.
type Forecast struct {
	Current Current `json:"current"`
	Days    Days    `json:"days"`
}

// Unavailable is the degraded payload returned when the upstream fails.
func Unavailable() Forecast {
	return Forecast{
		Current: Current{Desc: ptr("Unavailable"), unavailable: true},
		Days:    Days{},
	}
}

// IsUnavailable reports whether f is the degraded payload.
func (f Forecast) IsUnavailable() bool { return f.Current.unavailable }
