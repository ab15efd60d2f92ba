package otime

import (
	"encoding/json"
	"fmt"
	"math"
)

const (
	schemaRationalTime = "RationalTime.1"
	schemaTimeRange    = "TimeRange.1"
)

type rationalTimeJSON struct {
	Schema string  `json:"OTIO_SCHEMA"`
	Rate   float64 `json:"rate"`
	Value  float64 `json:"value"`
}

func (t RationalTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(rationalTimeJSON{
		Schema: schemaRationalTime,
		Rate:   t.Rate.Float(),
		Value:  float64(t.Value),
	})
}

func (t *RationalTime) UnmarshalJSON(data []byte) error {
	var raw rationalTimeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Schema != "" && raw.Schema != schemaRationalTime {
		return fmt.Errorf("unexpected schema %q", raw.Schema)
	}
	rate := RateFromFloat(raw.Rate)
	if !rate.IsValid() {
		return fmt.Errorf("invalid rate %g", raw.Rate)
	}
	*t = RationalTime{Value: int64(math.RoundToEven(raw.Value)), Rate: rate}
	return nil
}

type timeRangeJSON struct {
	Schema    string       `json:"OTIO_SCHEMA"`
	Duration  RationalTime `json:"duration"`
	StartTime RationalTime `json:"start_time"`
}

func (r TimeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeRangeJSON{
		Schema:    schemaTimeRange,
		Duration:  r.Duration,
		StartTime: r.Start,
	})
}

func (r *TimeRange) UnmarshalJSON(data []byte) error {
	var raw timeRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Schema != "" && raw.Schema != schemaTimeRange {
		return fmt.Errorf("unexpected schema %q", raw.Schema)
	}
	if raw.Duration.Value < 0 {
		return fmt.Errorf("negative duration %s", raw.Duration)
	}
	*r = TimeRange{Start: raw.StartTime, Duration: raw.Duration}
	return nil
}
