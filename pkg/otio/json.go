package otio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jdeisenh/tlplay/pkg/mediapath"
	"github.com/jdeisenh/tlplay/pkg/otime"
)

const (
	schemaTimeline      = "Timeline.1"
	schemaStack         = "Stack.1"
	schemaTrack         = "Track.1"
	schemaClip          = "Clip.1"
	schemaGap           = "Gap.1"
	schemaTransition    = "Transition.1"
	schemaEffect        = "Effect.1"
	schemaExternal      = "ExternalReference.1"
	schemaImageSequence = "ImageSequenceReference.1"
	schemaMemory        = "MemoryReference.1"
	schemaMissing       = "MissingReference.1"
)

// schemaName strips the version, "Clip.2" becomes "Clip"
func schemaName(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

type header struct {
	Schema string `json:"OTIO_SCHEMA"`
}

type timelineJSON struct {
	Schema          string              `json:"OTIO_SCHEMA"`
	Name            string              `json:"name"`
	GlobalStartTime *otime.RationalTime `json:"global_start_time"`
	Tracks          json.RawMessage     `json:"tracks"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
}

type trackJSON struct {
	Schema   string            `json:"OTIO_SCHEMA"`
	Name     string            `json:"name"`
	Kind     TrackKind         `json:"kind"`
	Children []json.RawMessage `json:"children"`
	Metadata map[string]any    `json:"metadata,omitempty"`
}

type stackJSON struct {
	Schema   string            `json:"OTIO_SCHEMA"`
	Children []json.RawMessage `json:"children"`
}

type clipJSON struct {
	Schema          string                     `json:"OTIO_SCHEMA"`
	Name            string                     `json:"name"`
	SourceRange     *otime.TimeRange           `json:"source_range"`
	MediaReference  json.RawMessage            `json:"media_reference,omitempty"`
	MediaReferences map[string]json.RawMessage `json:"media_references,omitempty"`
	ActiveKey       string                     `json:"active_media_reference_key,omitempty"`
	Effects         []effectJSON               `json:"effects"`
	Metadata        map[string]any             `json:"metadata,omitempty"`
}

type effectJSON struct {
	Schema string `json:"OTIO_SCHEMA"`
	Effect
}

type gapJSON struct {
	Schema      string           `json:"OTIO_SCHEMA"`
	Name        string           `json:"name"`
	SourceRange *otime.TimeRange `json:"source_range"`
}

type transitionJSON struct {
	Schema         string             `json:"OTIO_SCHEMA"`
	Name           string             `json:"name"`
	InOffset       otime.RationalTime `json:"in_offset"`
	OutOffset      otime.RationalTime `json:"out_offset"`
	TransitionType TransitionType     `json:"transition_type"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

type memoryRangeJSON struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

type referenceJSON struct {
	Schema           string           `json:"OTIO_SCHEMA"`
	TargetURL        string           `json:"target_url,omitempty"`
	AvailableRange   *otime.TimeRange `json:"available_range,omitempty"`
	TargetURLBase    string           `json:"target_url_base,omitempty"`
	NamePrefix       string           `json:"name_prefix,omitempty"`
	NameSuffix       string           `json:"name_suffix,omitempty"`
	StartFrame       int64            `json:"start_frame,omitempty"`
	FrameStep        int64            `json:"frame_step,omitempty"`
	Rate             float64          `json:"rate,omitempty"`
	FrameZeroPadding int              `json:"frame_zero_padding,omitempty"`
	MemoryRange      *memoryRangeJSON `json:"memory_range,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

// Decode parses a composition document. Any problem is reported as ErrStructural.
func Decode(data []byte) (*Composition, error) {
	var raw timelineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}
	if raw.Schema != "" && schemaName(raw.Schema) != "Timeline" {
		return nil, fmt.Errorf("%w: top level schema %q", ErrStructural, raw.Schema)
	}
	c := &Composition{
		CompositionName: raw.Name,
		GlobalStartTime: raw.GlobalStartTime,
		Metadata:        raw.Metadata,
	}
	tracks, err := decodeTrackList(raw.Tracks)
	if err != nil {
		return nil, err
	}
	for i, t := range tracks {
		track, err := decodeTrack(t)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		c.Tracks = append(c.Tracks, track)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// decodeTrackList accepts a plain array or a Stack object
func decodeTrackList(data json.RawMessage) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: no tracks", ErrStructural)
	}
	if data[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		return list, nil
	}
	var stack stackJSON
	if err := json.Unmarshal(data, &stack); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}
	if schemaName(stack.Schema) != "Stack" {
		return nil, fmt.Errorf("%w: tracks schema %q", ErrStructural, stack.Schema)
	}
	return stack.Children, nil
}

func decodeTrack(data json.RawMessage) (*Track, error) {
	var raw trackJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}
	if raw.Schema != "" && schemaName(raw.Schema) != "Track" {
		return nil, fmt.Errorf("%w: track schema %q", ErrStructural, raw.Schema)
	}
	kind := raw.Kind
	switch kind {
	case "":
		kind = Video
	case Video, Audio:
	default:
		return nil, fmt.Errorf("%w: track kind %q", ErrStructural, raw.Kind)
	}
	t := &Track{TrackName: raw.Name, Kind: kind, Metadata: raw.Metadata}
	for i, child := range raw.Children {
		item, err := decodeItem(child)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		t.Children = append(t.Children, item)
	}
	return t, nil
}

func decodeItem(data json.RawMessage) (Composable, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}
	switch schemaName(h.Schema) {
	case "Clip":
		var raw clipJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		return decodeClip(raw)
	case "Gap":
		var raw gapJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		if raw.SourceRange == nil {
			return nil, fmt.Errorf("%w: gap without source_range", ErrStructural)
		}
		return &Gap{GapName: raw.Name, SourceRange: *raw.SourceRange}, nil
	case "Transition":
		var raw transitionJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStructural, err)
		}
		return &Transition{
			TransitionName: raw.Name,
			InOffset:       raw.InOffset,
			OutOffset:      raw.OutOffset,
			Type:           raw.TransitionType,
			Metadata:       raw.Metadata,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown schema %q", ErrStructural, h.Schema)
}

func decodeClip(raw clipJSON) (*Clip, error) {
	c := &Clip{ClipName: raw.Name, Metadata: raw.Metadata}
	for _, e := range raw.Effects {
		c.Effects = append(c.Effects, e.Effect)
	}
	refData := raw.MediaReference
	if len(refData) == 0 && len(raw.MediaReferences) > 0 {
		key := raw.ActiveKey
		if key == "" {
			key = "DEFAULT_MEDIA"
		}
		refData = raw.MediaReferences[key]
	}
	ref, err := decodeReference(refData)
	if err != nil {
		return nil, err
	}
	c.MediaReference = ref
	switch {
	case raw.SourceRange != nil:
		c.SourceRange = *raw.SourceRange
	case ref.AvailableRange != nil:
		c.SourceRange = *ref.AvailableRange
	default:
		return nil, fmt.Errorf("%w: clip %q has no range", ErrStructural, raw.Name)
	}
	return c, nil
}

func decodeReference(data json.RawMessage) (MediaReference, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return MediaReference{Kind: MissingRef}, nil
	}
	var raw referenceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return MediaReference{}, fmt.Errorf("%w: %w", ErrStructural, err)
	}
	ref := MediaReference{
		TargetURL:      raw.TargetURL,
		AvailableRange: raw.AvailableRange,
		Metadata:       raw.Metadata,
	}
	switch schemaName(raw.Schema) {
	case "ExternalReference":
		ref.Kind = ExternalRef
	case "ImageSequenceReference":
		ref.Kind = ImageSequenceRef
		ref.TargetURLBase = raw.TargetURLBase
		ref.NamePrefix = raw.NamePrefix
		ref.NameSuffix = raw.NameSuffix
		ref.StartFrame = raw.StartFrame
		ref.FrameStep = max(raw.FrameStep, 1)
		ref.Rate = raw.Rate
		ref.FrameZeroPadding = raw.FrameZeroPadding
	case "MemoryReference":
		ref.Kind = MemoryRef
		if raw.MemoryRange != nil {
			ref.Memory = &mediapath.MemoryRange{Offset: raw.MemoryRange.Offset, Size: raw.MemoryRange.Size}
		}
	case "MissingReference":
		ref.Kind = MissingRef
	default:
		return MediaReference{}, fmt.Errorf("%w: unknown reference schema %q", ErrStructural, raw.Schema)
	}
	return ref, nil
}

// MarshalJSON writes the Timeline.1 document
func (c *Composition) MarshalJSON() ([]byte, error) {
	tracks := make([]json.RawMessage, 0, len(c.Tracks))
	for _, t := range c.Tracks {
		data, err := t.MarshalJSON()
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, data)
	}
	list, err := json.Marshal(tracks)
	if err != nil {
		return nil, err
	}
	return json.Marshal(timelineJSON{
		Schema:          schemaTimeline,
		Name:            c.CompositionName,
		GlobalStartTime: c.GlobalStartTime,
		Tracks:          list,
		Metadata:        c.Metadata,
	})
}

func (t *Track) MarshalJSON() ([]byte, error) {
	raw := trackJSON{
		Schema:   schemaTrack,
		Name:     t.TrackName,
		Kind:     t.Kind,
		Children: make([]json.RawMessage, 0, len(t.Children)),
		Metadata: t.Metadata,
	}
	for _, child := range t.Children {
		data, err := encodeItem(child)
		if err != nil {
			return nil, err
		}
		raw.Children = append(raw.Children, data)
	}
	return json.Marshal(raw)
}

func encodeItem(item Composable) ([]byte, error) {
	switch v := item.(type) {
	case *Clip:
		ref, err := encodeReference(v.MediaReference)
		if err != nil {
			return nil, err
		}
		sr := v.SourceRange
		raw := clipJSON{
			Schema:         schemaClip,
			Name:           v.ClipName,
			SourceRange:    &sr,
			MediaReference: ref,
			Effects:        make([]effectJSON, 0, len(v.Effects)),
			Metadata:       v.Metadata,
		}
		for _, e := range v.Effects {
			raw.Effects = append(raw.Effects, effectJSON{Schema: schemaEffect, Effect: e})
		}
		return json.Marshal(raw)
	case *Gap:
		sr := v.SourceRange
		return json.Marshal(gapJSON{Schema: schemaGap, Name: v.GapName, SourceRange: &sr})
	case *Transition:
		return json.Marshal(transitionJSON{
			Schema:         schemaTransition,
			Name:           v.TransitionName,
			InOffset:       v.InOffset,
			OutOffset:      v.OutOffset,
			TransitionType: v.Type,
			Metadata:       v.Metadata,
		})
	}
	return nil, fmt.Errorf("%w: cannot encode %T", ErrStructural, item)
}

func encodeReference(r MediaReference) ([]byte, error) {
	raw := referenceJSON{
		TargetURL:      r.TargetURL,
		AvailableRange: r.AvailableRange,
		Metadata:       r.Metadata,
	}
	switch r.Kind {
	case ExternalRef:
		raw.Schema = schemaExternal
	case ImageSequenceRef:
		raw.Schema = schemaImageSequence
		raw.TargetURLBase = r.TargetURLBase
		raw.NamePrefix = r.NamePrefix
		raw.NameSuffix = r.NameSuffix
		raw.StartFrame = r.StartFrame
		raw.FrameStep = r.FrameStep
		raw.Rate = r.Rate
		raw.FrameZeroPadding = r.FrameZeroPadding
	case MemoryRef:
		raw.Schema = schemaMemory
		if r.Memory != nil {
			raw.MemoryRange = &memoryRangeJSON{Offset: r.Memory.Offset, Size: r.Memory.Size}
		}
	default:
		raw.Schema = schemaMissing
	}
	return json.Marshal(raw)
}

// ToJSONString renders the composition as indented JSON
func (c *Composition) ToJSONString() (string, error) {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Clone deep copies the composition through its serialized form
func (c *Composition) Clone() (*Composition, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
