package otime

import "fmt"

// TimeRange covers [Start, Start+Duration)
type TimeRange struct {
	Start    RationalTime
	Duration RationalTime
}

func NewRange(start, duration RationalTime) TimeRange {
	return TimeRange{Start: start, Duration: duration}
}

// RangeFromStartEnd builds the range [start, end) at the rate of start
func RangeFromStartEnd(start, end RationalTime) TimeRange {
	return TimeRange{Start: start, Duration: end.Sub(start).RescaledTo(start.Rate)}
}

// End is the first instant after the range
func (r TimeRange) End() RationalTime {
	return r.Start.Add(r.Duration)
}

// EndInclusive is the last whole unit inside the range
func (r TimeRange) EndInclusive() RationalTime {
	end := r.End()
	if r.Duration.Value <= 0 {
		return r.Start
	}
	return end.Sub(New(1, end.Rate))
}

// Contains reports start <= t < end
func (r TimeRange) Contains(t RationalTime) bool {
	return !t.Before(r.Start) && t.Before(r.End())
}

// ContainsRange reports whether o lies entirely inside r
func (r TimeRange) ContainsRange(o TimeRange) bool {
	return !o.Start.Before(r.Start) && !o.End().After(r.End())
}

// Intersects reports a non-empty overlap
func (r TimeRange) Intersects(o TimeRange) bool {
	return r.Start.Before(o.End()) && o.Start.Before(r.End())
}

// Clamp moves t into the range
func (r TimeRange) Clamp(t RationalTime) RationalTime {
	if t.Before(r.Start) {
		return r.Start.RescaledTo(t.Rate)
	}
	if !t.Before(r.End()) {
		return r.EndInclusive().RescaledTo(t.Rate)
	}
	return t
}

// ClampRange returns the intersection of o with r
func (r TimeRange) ClampRange(o TimeRange) TimeRange {
	start := Max(r.Start, o.Start)
	end := Min(r.End(), o.End())
	if end.Before(start) {
		end = start
	}
	return RangeFromStartEnd(start, end)
}

func (r TimeRange) IsValid() bool {
	return r.Start.IsValid() && r.Duration.Value >= 0
}

func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.Duration.Equal(o.Duration)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s +%s)", r.Start, r.Duration)
}
