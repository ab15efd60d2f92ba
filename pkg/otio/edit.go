package otio

import (
	"fmt"
	"slices"

	"github.com/jdeisenh/tlplay/pkg/otime"
)

// Insert returns a copy of c with item placed at index of track ti.
// An index equal to the child count appends.
func Insert(c *Composition, item Composable, ti, index int) (*Composition, error) {
	out, err := c.Clone()
	if err != nil {
		return nil, err
	}
	if ti < 0 || ti >= len(out.Tracks) {
		return nil, fmt.Errorf("track %d: %w", ti, ErrOutOfRange)
	}
	t := out.Tracks[ti]
	if index < 0 || index > len(t.Children) {
		return nil, fmt.Errorf("insert at %d: %w", index, ErrOutOfRange)
	}
	dup, err := cloneItem(item)
	if err != nil {
		return nil, err
	}
	t.Children = slices.Insert(t.Children, index, dup)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Slice splits the clip or gap at ref at time, given in track time. The
// two parts share the media and their source ranges partition the original.
func Slice(c *Composition, ref ItemRef, time otime.RationalTime) (*Composition, error) {
	out, err := c.Clone()
	if err != nil {
		return nil, err
	}
	item, err := out.Item(ref)
	if err != nil {
		return nil, err
	}
	t := out.Tracks[ref.Track]
	r, _ := t.TrimmedRangeOfChild(ref.Index)
	if !time.After(r.Start) || !time.Before(r.End()) {
		return nil, fmt.Errorf("slice at %s outside %s: %w", time, r, ErrOutOfRange)
	}
	var first, second Composable
	switch v := item.(type) {
	case *Clip:
		a, b := splitRange(v.SourceRange, time.Sub(r.Start))
		head, tail := *v, *v
		head.SourceRange, tail.SourceRange = a, b
		head.Effects = slices.Clone(v.Effects)
		tail.Effects = slices.Clone(v.Effects)
		first, second = &head, &tail
	case *Gap:
		a, b := splitRange(v.SourceRange, time.Sub(r.Start))
		first = &Gap{GapName: v.GapName, SourceRange: a}
		second = &Gap{GapName: v.GapName, SourceRange: b}
	default:
		return nil, fmt.Errorf("%w: cannot slice %T", ErrOutOfRange, item)
	}
	t.Children[ref.Index] = first
	t.Children = slices.Insert(t.Children, ref.Index+1, second)
	return out, nil
}

// splitRange cuts r at offset from its start, in the rate of the range
func splitRange(r otime.TimeRange, offset otime.RationalTime) (otime.TimeRange, otime.TimeRange) {
	cut := r.Start.Add(offset.RescaledTo(r.Start.Rate))
	end := r.End()
	return otime.RangeFromStartEnd(r.Start, cut), otime.RangeFromStartEnd(cut, end)
}

// Remove returns a copy of c without the item at ref. With fill the item
// is replaced by a gap of equal duration so later items keep their time.
// Transitions occupy no time and are always removed without a gap.
func Remove(c *Composition, ref ItemRef, fill bool) (*Composition, error) {
	out, err := c.Clone()
	if err != nil {
		return nil, err
	}
	item, err := out.Item(ref)
	if err != nil {
		return nil, err
	}
	t := out.Tracks[ref.Track]
	_, isTransition := item.(*Transition)
	if fill && !isTransition {
		gap := NewGap(item.Duration())
		gap.GapName = item.Name()
		t.Children[ref.Index] = gap
	} else {
		t.Children = slices.Delete(t.Children, ref.Index, ref.Index+1)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneItem(item Composable) (Composable, error) {
	data, err := encodeItem(item)
	if err != nil {
		return nil, err
	}
	return decodeItem(data)
}
