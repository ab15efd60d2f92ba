package otime

import (
	"time"
)

// RoundTo truncates in to a multiple of to
func RoundTo(in time.Duration, to time.Duration) time.Duration {
	return in / to * to
}

// Round truncates to 10 milliseconds, for log output
func Round(in time.Duration) time.Duration {
	return RoundTo(in, time.Millisecond*10)
}

// SecondBucket returns the index of the whole second containing t
func SecondBucket(t RationalTime) int64 {
	if !t.Rate.IsValid() {
		return 0
	}
	return mulDivFloor(t.Value, t.Rate.Den, t.Rate.Num)
}

// BucketRange is the one-second range of bucket b at rate
func BucketRange(b int64, rate Rate) TimeRange {
	start := New(b, Rate{1, 1}).RescaledTo(rate)
	end := New(b+1, Rate{1, 1}).RescaledTo(rate)
	return RangeFromStartEnd(start, end)
}
