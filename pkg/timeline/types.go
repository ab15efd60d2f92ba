package timeline

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jdeisenh/tlplay/pkg/otime"
	"github.com/jdeisenh/tlplay/pkg/otio"
	"github.com/jdeisenh/tlplay/pkg/reader"
)

var (
	ErrQueueFull = errors.New("request queue full")
	ErrClosed    = errors.New("timeline closed")
)

// Info describes the loaded composition
type Info struct {
	Path  string             `json:"path"`
	Range otime.TimeRange    `json:"range"`
	Video []reader.VideoInfo `json:"video"`
	Audio reader.AudioInfo   `json:"audio"`
	// Rate is the video frame rate of the composition
	Rate otime.Rate `json:"rate"`
}

// Layer is the content of one video track at a time. Inside a transition
// Image is the outgoing and ImageB the incoming clip.
type Layer struct {
	Image           *reader.Image
	ImageB          *reader.Image
	Transition      otio.TransitionType
	TransitionValue float64
	Effects         []otio.Effect
}

// VideoData holds one layer per video track, the first one in front
type VideoData struct {
	ID     uuid.UUID
	Time   otime.RationalTime
	Layers []Layer
}

// HasImage reports whether any layer carries an image
func (v VideoData) HasImage() bool {
	for _, l := range v.Layers {
		if l.Image != nil || l.ImageB != nil {
			return true
		}
	}
	return false
}

// AudioData is the mix of all audio tracks over Range
type AudioData struct {
	ID    uuid.UUID
	Range otime.TimeRange
	Audio *reader.Audio
}

type requestState int

const (
	stateQueued requestState = iota
	stateDispatched
	stateAssembling
	stateFulfilled
	stateCancelled
	stateFailedNull
)

func (s requestState) String() string {
	switch s {
	case stateQueued:
		return "queued"
	case stateDispatched:
		return "dispatched"
	case stateAssembling:
		return "assembling"
	case stateFulfilled:
		return "fulfilled"
	case stateCancelled:
		return "cancelled"
	case stateFailedNull:
		return "failed-null"
	}
	return "unknown"
}

func (s requestState) terminal() bool {
	return s >= stateFulfilled
}
