// Package player implements the Player facade: lifecycle owner that wires
// the demuxer/decoders, clock, audio sink, and video queue together, and
// exposes play/pause/stop/seek/volume plus the current display frame. Per
// spec.md §4.6.
package player

import "fmt"

// State is the player's coarse playback state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// DisplayMode controls how the published texture should be presented. It
// is read by the presentation layer and never influences decoding.
type DisplayMode int

const (
	FitToWindow DisplayMode = iota
	NativeSize
)

// Texture is the RGBA pixel buffer the facade publishes for display,
// matching spec.md §6's presentation-service contract: a pixel buffer plus
// [width, height].
type Texture struct {
	Pixels []byte
	Width  int
	Height int
}

// PresentationSink is the external collaborator that turns a Texture into
// an on-screen surface. The core never renders; it only publishes.
type PresentationSink interface {
	// Allocate is called once, before the first Publish, with the natural
	// video dimensions. Player.Open does not call it; the owner of the sink
	// (e.g. controlstrip.New) does.
	Allocate(width, height int) error
	// Publish replaces the displayed contents with tex.
	Publish(tex Texture) error
}

// OpenError distinguishes the construction-error taxonomy from spec.md §6.
// Stage is one of "file-open", "no-video-stream", "codec-init" or
// "audio-device-init". Scaler and resampler setup failures are not reported
// as an OpenError: the scaler is created on the first decoded frame, and an
// audio decoder that fails to set up is dropped and playback is video-only.
type OpenError struct {
	Stage string
	Err   error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("player: open failed at %s: %v", e.Stage, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }
