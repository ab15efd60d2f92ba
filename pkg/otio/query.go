package otio

import (
	"fmt"
	"sort"

	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Validate checks the structural rules: non-negative durations and
// transitions placed between two items they fit into
func (c *Composition) Validate() error {
	for ti, t := range c.Tracks {
		for i, child := range t.Children {
			switch v := child.(type) {
			case *Clip:
				if v.SourceRange.Duration.Value < 0 || !v.SourceRange.Start.IsValid() {
					return fmt.Errorf("%w: track %d clip %d invalid source range %s", ErrStructural, ti, i, v.SourceRange)
				}
			case *Gap:
				if v.SourceRange.Duration.Value < 0 {
					return fmt.Errorf("%w: track %d gap %d negative duration", ErrStructural, ti, i)
				}
			case *Transition:
				if v.InOffset.Value < 0 || v.OutOffset.Value < 0 {
					return fmt.Errorf("%w: track %d transition %d negative offset", ErrStructural, ti, i)
				}
				if i == 0 || i == len(t.Children)-1 {
					return fmt.Errorf("%w: track %d transition %d has no neighbor", ErrStructural, ti, i)
				}
				prev, next := t.Children[i-1], t.Children[i+1]
				if _, ok := prev.(*Transition); ok {
					return fmt.Errorf("%w: track %d adjacent transitions at %d", ErrStructural, ti, i)
				}
				if _, ok := next.(*Transition); ok {
					return fmt.Errorf("%w: track %d adjacent transitions at %d", ErrStructural, ti, i)
				}
				if v.InOffset.After(prev.Duration()) || v.OutOffset.After(next.Duration()) {
					return fmt.Errorf("%w: track %d transition %d exceeds its neighbors", ErrStructural, ti, i)
				}
			}
		}
	}
	return nil
}

// Rate is the rate of the first clip, 24 if there is none
func (c *Composition) Rate() otime.Rate {
	for _, t := range c.Tracks {
		for _, child := range t.Children {
			if clip, ok := child.(*Clip); ok && clip.SourceRange.Duration.Rate.IsValid() {
				return clip.SourceRange.Duration.Rate
			}
		}
	}
	return otime.Rate24
}

// StartTime is the global start, zero when not set
func (c *Composition) StartTime() otime.RationalTime {
	if c.GlobalStartTime != nil {
		return *c.GlobalStartTime
	}
	return otime.New(0, c.Rate())
}

// Duration is the longest track duration
func (c *Composition) Duration() otime.RationalTime {
	d := otime.New(0, c.Rate())
	for _, t := range c.Tracks {
		d = otime.Max(d, t.Duration())
	}
	return d
}

// Range is the global time range
func (c *Composition) Range() otime.TimeRange {
	start := c.StartTime()
	return otime.NewRange(start, c.Duration().RescaledTo(start.Rate))
}

// TracksOf returns the tracks of kind in document order, with their index
func (c *Composition) TracksOf(kind TrackKind) []int {
	return lo.FilterMap(c.Tracks, func(t *Track, i int) (int, bool) {
		return i, t.Kind == kind
	})
}

// Item returns the child addressed by ref
func (c *Composition) Item(ref ItemRef) (Composable, error) {
	if ref.Track < 0 || ref.Track >= len(c.Tracks) {
		return nil, fmt.Errorf("track %d: %w", ref.Track, ErrOutOfRange)
	}
	t := c.Tracks[ref.Track]
	if ref.Index < 0 || ref.Index >= len(t.Children) {
		return nil, fmt.Errorf("item %d: %w", ref.Index, ErrOutOfRange)
	}
	return t.Children[ref.Index], nil
}

// Duration is the sum of the child durations
func (t *Track) Duration() otime.RationalTime {
	var d otime.RationalTime
	for i, child := range t.Children {
		if i == 0 {
			d = child.Duration()
			continue
		}
		d = d.Add(child.Duration())
	}
	return d
}

// ranges returns the trimmed range of every child in track time. A
// transition covers InOffset before to OutOffset after its cut point.
func (t *Track) ranges() []otime.TimeRange {
	out := make([]otime.TimeRange, len(t.Children))
	var at otime.RationalTime
	for i, child := range t.Children {
		d := child.Duration()
		if i == 0 {
			at = otime.New(0, d.Rate)
		}
		if tr, ok := child.(*Transition); ok {
			out[i] = otime.NewRange(at.Sub(tr.InOffset), tr.Length())
			continue
		}
		out[i] = otime.NewRange(at, d)
		at = at.Add(d)
	}
	return out
}

// TrimmedRangeOfChild returns the range child index occupies in track time
func (t *Track) TrimmedRangeOfChild(index int) (otime.TimeRange, error) {
	if index < 0 || index >= len(t.Children) {
		return otime.TimeRange{}, fmt.Errorf("child %d of %d: %w", index, len(t.Children), ErrOutOfRange)
	}
	return t.ranges()[index], nil
}

// ClipAt finds the clip whose trimmed range contains time, which is track
// relative. Gaps and times outside the track yield ok == false.
func (t *Track) ClipAt(time otime.RationalTime) (index int, clip *Clip, ok bool) {
	ranges := t.ranges()
	// Items (not transitions) are sorted and contiguous, search the first ending after time
	items := lo.Filter(lo.Range(len(t.Children)), func(i int, _ int) bool {
		_, isTransition := t.Children[i].(*Transition)
		return !isTransition
	})
	k := sort.Search(len(items), func(k int) bool {
		return ranges[items[k]].End().After(time)
	})
	if k == len(items) || !ranges[items[k]].Contains(time) {
		return -1, nil, false
	}
	index = items[k]
	clip, ok = t.Children[index].(*Clip)
	if !ok {
		return -1, nil, false
	}
	return index, clip, true
}

// NeighborTransitions returns the transitions directly before and after child index
func (t *Track) NeighborTransitions(index int) (in, out mo.Option[*Transition]) {
	in, out = mo.None[*Transition](), mo.None[*Transition]()
	if index < 0 || index >= len(t.Children) {
		return
	}
	if index > 0 {
		if tr, ok := t.Children[index-1].(*Transition); ok {
			in = mo.Some(tr)
		}
	}
	if index < len(t.Children)-1 {
		if tr, ok := t.Children[index+1].(*Transition); ok {
			out = mo.Some(tr)
		}
	}
	return
}

// Sample is a clip together with the media time to read from it
type Sample struct {
	Ref   ItemRef
	Clip  *Clip
	Media otime.RationalTime
}

// Blend describes an active transition at a time
type Blend struct {
	Transition *Transition
	Range      otime.TimeRange
	// Value runs from 0 at the start of the transition to 1 at its end
	Value float64
	From  mo.Option[Sample]
	To    mo.Option[Sample]
}

// Active is what a track shows at a time
type Active struct {
	Sample mo.Option[Sample]
	Blend  mo.Option[Blend]
}

// ActiveAt resolves the content of track ti at track time. Inside a
// transition both neighbors are returned with their media times clamped
// into their source ranges.
func (c *Composition) ActiveAt(ti int, time otime.RationalTime) Active {
	var out Active
	if ti < 0 || ti >= len(c.Tracks) {
		return out
	}
	t := c.Tracks[ti]
	ranges := t.ranges()
	for i, child := range t.Children {
		tr, ok := child.(*Transition)
		if !ok || !ranges[i].Contains(time) || tr.Type == Cut {
			continue
		}
		length := tr.Length()
		value := 0.0
		if length.Value > 0 {
			value = time.Sub(ranges[i].Start).ToSeconds() / length.ToSeconds()
		}
		b := Blend{
			Transition: tr,
			Range:      ranges[i],
			Value:      lo.Clamp(value, 0, 1),
			From:       sampleOf(t, ti, i-1, ranges, time),
			To:         sampleOf(t, ti, i+1, ranges, time),
		}
		out.Blend = mo.Some(b)
		break
	}
	if idx, clip, ok := t.ClipAt(time); ok {
		out.Sample = mo.Some(Sample{
			Ref:   ItemRef{Track: ti, Index: idx},
			Clip:  clip,
			Media: clip.ToMedia(time.Sub(ranges[idx].Start)),
		})
	}
	return out
}

func sampleOf(t *Track, ti, i int, ranges []otime.TimeRange, time otime.RationalTime) mo.Option[Sample] {
	if i < 0 || i >= len(t.Children) {
		return mo.None[Sample]()
	}
	clip, ok := t.Children[i].(*Clip)
	if !ok {
		return mo.None[Sample]()
	}
	return mo.Some(Sample{
		Ref:   ItemRef{Track: ti, Index: i},
		Clip:  clip,
		Media: clip.ToMedia(time.Sub(ranges[i].Start)),
	})
}
