// Package codec defines the abstract codec-service boundary: the core
// engine depends only on these interfaces, never on a concrete media
// library. internal/ffmpeg provides the go-astiav-backed implementation.
package codec

import "errors"

// ErrNoFrame is returned by a decoder when a packet was consumed but did
// not yet yield a decoded frame (decoders buffer internally).
var ErrNoFrame = errors.New("codec: no frame available yet")

// MediaInfo is the immutable probe result for an opened container.
type MediaInfo struct {
	Width        int
	Height       int
	DurationSecs float64
	SampleRate   int
	ChannelCount int
	HasAudio     bool
}

// Packet is an opaque demuxed packet, tagged with which stream it belongs
// to and its presentation timestamp in seconds.
type Packet struct {
	Video   bool
	PtsSecs float64
	// Handle is the backend-specific packet object (e.g. *astiav.Packet).
	// Ownership passes to whichever Decoder consumes it via DecodePacket;
	// callers must not reuse it afterwards.
	Handle any
}

// Demuxer reads packets from a container and supports seeking.
type Demuxer interface {
	// Probe returns static media information gathered at open time.
	Probe() MediaInfo

	// ReadPacket reads the next packet. It returns io.EOF (wrapped) when
	// the container is exhausted.
	ReadPacket() (Packet, error)

	// Seek instructs the demuxer to seek to the nearest indexable boundary
	// at or before targetSecs.
	Seek(targetSecs float64) error

	// Close releases all demuxer resources.
	Close() error
}

// VideoFrame is a decoded, scaled RGBA frame ready for display.
type VideoFrame struct {
	Pixels  []byte // tightly packed RGBA, len == Width*Height*4
	Width   int
	Height  int
	PtsSecs float64
}

// VideoDecoder decodes and scales video packets to RGBA at native
// dimensions.
type VideoDecoder interface {
	// DecodePacket feeds a packet to the decoder and returns every
	// decoded+scaled frame it yields (codecs may emit more than one frame
	// per packet). It returns ErrNoFrame when the packet was consumed
	// without yet producing an output frame.
	DecodePacket(pkt Packet) ([]VideoFrame, error)

	// Flush drains any frames buffered inside the decoder (e.g. after a
	// seek) and resets internal decode state.
	Flush() []VideoFrame

	// SourceSize returns the natural (pre-scale) frame dimensions.
	SourceSize() (width, height int)

	Close() error
}

// AudioSamples is a batch of resampled, packed f32 interleaved-stereo
// samples.
type AudioSamples struct {
	Samples []float32
	PtsSecs float64
}

// AudioDecoder decodes and resamples audio packets to packed f32 stereo at
// a target sample rate.
type AudioDecoder interface {
	DecodePacket(pkt Packet) ([]AudioSamples, error)
	Flush() []AudioSamples
	Close() error
}

// Opener opens a container and constructs its demuxer plus the video/audio
// decoders implied by its streams. audioTargetRate is the sample rate the
// returned AudioDecoder must resample to.
type Opener interface {
	Open(path string, audioTargetRate int) (Demuxer, VideoDecoder, AudioDecoder, error)
}

// OpenStage tags which construction step of an Opener.Open call failed, so
// callers can report the precise taxonomy from spec.md §6 instead of a
// single generic failure.
type OpenStage string

const (
	StageFileOpen      OpenStage = "file-open"
	StageNoVideoStream OpenStage = "no-video-stream"
	StageCodecInit     OpenStage = "codec-init"
)

// StagedError wraps a construction-time error with the OpenStage it failed
// at. Opener implementations attach one to any error returned from Open so
// that callers can recover the stage with errors.As instead of matching on
// message text.
type StagedError struct {
	Stage OpenStage
	Err   error
}

func (e *StagedError) Error() string { return string(e.Stage) + ": " + e.Err.Error() }

func (e *StagedError) Unwrap() error { return e.Err }
