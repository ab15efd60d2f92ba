// Package otio models an edit list as tracks of clips, gaps and transitions.
package otio

import (
	"errors"
	"strings"

	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
)

var (
	// ErrStructural marks a document that cannot be turned into a composition
	ErrStructural = errors.New("structural error")
	// ErrOutOfRange is returned for item indices or times outside a track
	ErrOutOfRange = errors.New("out of range")
)

type TrackKind string

const (
	Video TrackKind = "Video"
	Audio TrackKind = "Audio"
)

type TransitionType string

const (
	Dissolve TransitionType = "SMPTE_Dissolve"
	Cut      TransitionType = "Cut"
)

type RefKind int

const (
	MissingRef RefKind = iota
	ExternalRef
	ImageSequenceRef
	MemoryRef
)

// Composable is a child of a track
type Composable interface {
	// Duration is the time the item occupies in its track, zero for transitions
	Duration() otime.RationalTime
	Name() string
}

// Effect is carried through to the renderer untouched
type Effect struct {
	Name       string         `json:"name"`
	EffectName string         `json:"effect_name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MediaReference points a clip at its media
type MediaReference struct {
	Kind           RefKind
	TargetURL      string
	AvailableRange *otime.TimeRange
	Metadata       map[string]any

	// Image sequences
	TargetURLBase    string
	NamePrefix       string
	NameSuffix       string
	StartFrame       int64
	FrameStep        int64
	Rate             float64
	FrameZeroPadding int

	// In-memory media, Data is supplied by the host keyed by TargetURL
	Memory *mediapath.MemoryRange
}

// Path resolves the reference relative to dir, the directory of the document
func (r MediaReference) Path(dir string) mediapath.Path {
	switch r.Kind {
	case ImageSequenceRef:
		p := mediapath.Path{
			Directory: withSlash(mediapath.Join(dir, stripScheme(r.TargetURLBase))),
			Base:      r.NamePrefix,
			Padding:   r.FrameZeroPadding,
			Extension: r.NameSuffix,
		}
		return p.WithNumber(r.StartFrame)
	case ExternalRef, MemoryRef:
		return mediapath.Parse(mediapath.Join(dir, stripScheme(r.TargetURL)))
	}
	return mediapath.Path{}
}

func stripScheme(u string) string {
	return strings.TrimPrefix(u, "file://")
}

func withSlash(d string) string {
	if d == "" || strings.HasSuffix(d, "/") {
		return d
	}
	return d + "/"
}

type Clip struct {
	ClipName       string
	SourceRange    otime.TimeRange
	MediaReference MediaReference
	Effects        []Effect
	Metadata       map[string]any
}

func (c *Clip) Duration() otime.RationalTime { return c.SourceRange.Duration }
func (c *Clip) Name() string                 { return c.ClipName }

// ToMedia maps a time relative to the clip's trimmed start into media time,
// clamped to the source range
func (c *Clip) ToMedia(offset otime.RationalTime) otime.RationalTime {
	t := c.SourceRange.Start.Add(offset)
	return c.SourceRange.Clamp(t)
}

type Gap struct {
	GapName     string
	SourceRange otime.TimeRange
}

func NewGap(duration otime.RationalTime) *Gap {
	return &Gap{SourceRange: otime.NewRange(otime.New(0, duration.Rate), duration)}
}

func (g *Gap) Duration() otime.RationalTime { return g.SourceRange.Duration }
func (g *Gap) Name() string                 { return g.GapName }

// Transition blends the item before it into the item after it, starting
// InOffset before the cut and ending OutOffset after it
type Transition struct {
	TransitionName string
	InOffset       otime.RationalTime
	OutOffset      otime.RationalTime
	Type           TransitionType
	Metadata       map[string]any
}

func (t *Transition) Duration() otime.RationalTime { return otime.New(0, t.InOffset.Rate) }
func (t *Transition) Name() string                 { return t.TransitionName }

// Length is the blend duration
func (t *Transition) Length() otime.RationalTime { return t.InOffset.Add(t.OutOffset) }

type Track struct {
	TrackName string
	Kind      TrackKind
	Children  []Composable
	Metadata  map[string]any
}

// Composition is the whole edit. Tracks keep document order, video tracks
// are stacked with the first one in front.
type Composition struct {
	CompositionName string
	GlobalStartTime *otime.RationalTime
	Tracks          []*Track
	Metadata        map[string]any
}

// ItemRef addresses a child by track and child index
type ItemRef struct {
	Track int
	Index int
}
