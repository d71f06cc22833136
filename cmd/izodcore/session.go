package main

import (
	"time"

	"github.com/google/uuid"
)

// PlaybackState is the pipeline's top-level state.
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

// Track is one playlist entry. The open function produces a fresh source
// each time the track starts, so replays and seeks never share decoder state.
type Track struct {
	ID   uuid.UUID
	Name string
	open func() (FrameSource, error)
}

// NewToneTrack builds a synthetic sine track (bring-up and simulator audio).
func NewToneTrack(name string, freq float64, duration time.Duration, sampleRate, channels int) Track {
	return Track{
		ID:   uuid.New(),
		Name: name,
		open: func() (FrameSource, error) {
			return newToneSource(freq, sampleRate, channels, duration)
		},
	}
}

// Open instantiates the track's source.
func (t Track) Open() (FrameSource, error) {
	return t.open()
}

// PlaybackSession is a point-in-time snapshot of the audio pipeline, shaped
// for the state WebSocket and IPC responses.
type PlaybackSession struct {
	State      PlaybackState `json:"state"`
	TrackID    string        `json:"track_id,omitempty"`
	TrackName  string        `json:"track_name,omitempty"`
	TrackIndex int           `json:"track_index"`
	TrackCount int           `json:"track_count"`
	PositionS  float64       `json:"position_s"`
	DurationS  float64       `json:"duration_s"`
	Volume     int           `json:"volume"`
	Underruns  uint64        `json:"underruns"`
	Buffered   int           `json:"buffered_frames"`
}
