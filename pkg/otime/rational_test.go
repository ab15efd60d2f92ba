package otime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	var testdata = []struct {
		in     time.Duration
		expect time.Duration
	}{
		{1234567 * time.Microsecond, 1230 * time.Millisecond},
		{9 * time.Millisecond, 0},
		{2 * time.Second, 2 * time.Second},
	}
	for _, elem := range testdata {
		assert.Equal(t, elem.expect, Round(elem.in))
	}
}

func TestRescaleBankersRounding(t *testing.T) {
	var testdata = []struct {
		in     RationalTime
		rate   Rate
		expect int64
	}{
		{New(12, Rate24), Rate48, 24},
		{New(1, Rate48), Rate24, 0},
		{New(3, Rate48), Rate24, 2},
		{New(5, Rate48), Rate24, 2},
		{New(7, Rate48), Rate24, 4},
		{New(-3, Rate48), Rate24, -2},
		{New(-5, Rate48), Rate24, -2},
		{New(1001, Rate{1, 1}), Rate23_976, 24000},
	}
	for _, elem := range testdata {
		got := elem.in.RescaledTo(elem.rate)
		assert.Equal(t, elem.expect, got.Value, "%s to %s", elem.in, elem.rate)
		assert.Equal(t, elem.rate, got.Rate)
	}
}

func TestFloorTo(t *testing.T) {
	assert.Equal(t, int64(11), New(23, Rate48).FloorTo(Rate24).Value)
	assert.Equal(t, int64(12), New(24, Rate48).FloorTo(Rate24).Value)
	assert.Equal(t, int64(-1), New(-1, Rate48).FloorTo(Rate24).Value)
}

func TestArithmetic(t *testing.T) {
	sum := New(12, Rate24).Add(New(24, Rate48))
	assert.Equal(t, New(48, Rate48), sum)
	assert.True(t, sum.Equal(New(1, Rate{1, 1})))

	same := New(10, Rate24).Add(New(5, Rate24))
	assert.Equal(t, New(15, Rate24), same)

	assert.Equal(t, New(-5, Rate24), New(10, Rate24).Sub(New(15, Rate24)))
	assert.True(t, New(24000, Rate23_976).Equal(New(1001, Rate{1, 1})))
	assert.True(t, New(1, Rate24).Before(New(3, Rate48)))
	assert.True(t, New(2, Rate24).After(New(3, Rate48)))
	assert.Equal(t, 0, New(2, Rate24).Compare(New(4, Rate48)))
	assert.Equal(t, New(1, Rate24), Min(New(1, Rate24), New(3, Rate48)))
	assert.Equal(t, New(3, Rate48), Max(New(1, Rate24), New(3, Rate48)))
}

func TestConversions(t *testing.T) {
	assert.Equal(t, int64(12), FromDuration(500*time.Millisecond, Rate24).Value)
	assert.Equal(t, int64(12), FromSeconds(0.5, Rate24).Value)
	assert.Equal(t, 41708333*time.Nanosecond, New(1, Rate23_976).ToDuration())
	assert.Equal(t, 500*time.Millisecond, New(12, Rate24).ToDuration())
	assert.InDelta(t, 0.5, New(12, Rate24).ToSeconds(), 1e-12)
	assert.Equal(t, 41666667*time.Nanosecond, Rate24.FrameDuration())
}

func TestRateFromFloat(t *testing.T) {
	var testdata = []struct {
		in     float64
		expect Rate
	}{
		{23.976023976023978, Rate23_976},
		{23.976, Rate23_976},
		{29.97, Rate29_97},
		{24, Rate24},
		{48000, Rate{48000, 1}},
		{12.5, Rate{25, 2}},
		{0, Rate{}},
	}
	for _, elem := range testdata {
		assert.Equal(t, elem.expect, RateFromFloat(elem.in), "%g", elem.in)
	}
}

func TestTimeRange(t *testing.T) {
	r := NewRange(New(0, Rate24), New(24, Rate24))
	assert.True(t, r.Contains(New(0, Rate24)))
	assert.True(t, r.Contains(New(23, Rate24)))
	assert.False(t, r.Contains(New(24, Rate24)))
	assert.False(t, r.Contains(New(-1, Rate24)))
	assert.True(t, r.Contains(New(47, Rate48)))

	assert.Equal(t, New(24, Rate24), r.End())
	assert.Equal(t, New(23, Rate24), r.EndInclusive())
	assert.Equal(t, New(23, Rate24), r.Clamp(New(30, Rate24)))
	assert.Equal(t, New(0, Rate24), r.Clamp(New(-5, Rate24)))
	assert.Equal(t, New(5, Rate24), r.Clamp(New(5, Rate24)))

	sub := RangeFromStartEnd(New(12, Rate24), New(36, Rate24))
	assert.True(t, r.Intersects(sub))
	assert.False(t, r.ContainsRange(sub))
	assert.Equal(t, RangeFromStartEnd(New(12, Rate24), New(24, Rate24)), r.ClampRange(sub))
}

func TestSecondBucket(t *testing.T) {
	assert.Equal(t, int64(1), SecondBucket(New(47, Rate24)))
	assert.Equal(t, int64(2), SecondBucket(New(48, Rate24)))
	assert.Equal(t, int64(-1), SecondBucket(New(-1, Rate24)))
	assert.Equal(t, RangeFromStartEnd(New(48000, Rate{48000, 1}), New(96000, Rate{48000, 1})), BucketRange(1, Rate{48000, 1}))
}

func TestJSON(t *testing.T) {
	in := NewRange(New(86400, Rate23_976), New(48, Rate23_976))
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"OTIO_SCHEMA":"TimeRange.1"`)

	var out TimeRange
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var bad RationalTime
	assert.Error(t, json.Unmarshal([]byte(`{"OTIO_SCHEMA":"RationalTime.1","rate":0,"value":3}`), &bad))
}
