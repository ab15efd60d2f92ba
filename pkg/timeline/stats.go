package timeline

import (
	"encoding/json"
	"time"
)

// Duration wraps time.Duration to serialize as a human-readable string in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Stats is a snapshot of the engine state. Both event loggers render from it.
type Stats struct {
	Uptime          Duration `json:"uptime"`
	VideoQueued     int      `json:"videoQueued"`
	VideoInProgress int      `json:"videoInProgress"`
	AudioQueued     int      `json:"audioQueued"`
	AudioInProgress int      `json:"audioInProgress"`
	Readers         int      `json:"readers"`
	Poisoned        int      `json:"poisoned"`
	VideoCache      float64  `json:"videoCachePct"`
	AudioCache      float64  `json:"audioCachePct"`
	VideoRequests   uint64   `json:"videoRequests"`
	AudioRequests   uint64   `json:"audioRequests"`
	Cancelled       uint64   `json:"cancelled"`
	DecodeErrors    uint64   `json:"decodeErrors"`
	Timeouts        uint64   `json:"timeouts"`
	Evicted         uint64   `json:"evicted"`
	CacheWindow     Duration `json:"cacheWindow"`
}
