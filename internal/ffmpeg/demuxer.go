// Package ffmpeg is the go-astiav-backed implementation of the
// internal/codec collaborator interfaces: demux, decode, scale and
// resample, wired the way the teacher repo's player package drives
// go-astiav.
package ffmpeg

import (
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/avplayer/engine/internal/codec"
)

// Demuxer opens a container with go-astiav and reads packets from its
// chosen video/audio streams.
type Demuxer struct {
	formatCtx   *astiav.FormatContext
	videoStream *astiav.Stream
	audioStream *astiav.Stream
	videoIdx    int
	audioIdx    int

	videoTimeBase astiav.Rational
	audioTimeBase astiav.Rational

	durationSecs float64

	mu     sync.Mutex
	closed bool
}

// Open opens path and locates its video and (optional) audio streams.
// Returns an error distinguishing file-open / stream-discovery failures,
// per spec.md §6.
func Open(path string) (*Demuxer, error) {
	d := &Demuxer{videoIdx: -1, audioIdx: -1}

	d.formatCtx = astiav.AllocFormatContext()
	if d.formatCtx == nil {
		return nil, &codec.StagedError{Stage: codec.StageFileOpen, Err: fmt.Errorf("ffmpeg: failed to allocate format context")}
	}

	if err := d.formatCtx.OpenInput(path, nil, nil); err != nil {
		d.formatCtx.Free()
		return nil, &codec.StagedError{Stage: codec.StageFileOpen, Err: fmt.Errorf("ffmpeg: failed to open input %q: %w", path, err)}
	}

	if err := d.formatCtx.FindStreamInfo(nil); err != nil {
		d.Close()
		return nil, &codec.StagedError{Stage: codec.StageFileOpen, Err: fmt.Errorf("ffmpeg: failed to find stream info: %w", err)}
	}

	for _, stream := range d.formatCtx.Streams() {
		switch stream.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if d.videoIdx == -1 {
				d.videoIdx = stream.Index()
				d.videoStream = stream
				d.videoTimeBase = stream.TimeBase()
			}
		case astiav.MediaTypeAudio:
			if d.audioIdx == -1 {
				d.audioIdx = stream.Index()
				d.audioStream = stream
				d.audioTimeBase = stream.TimeBase()
			}
		}
	}

	if d.videoIdx == -1 {
		d.Close()
		return nil, &codec.StagedError{Stage: codec.StageNoVideoStream, Err: fmt.Errorf("ffmpeg: no video stream found in %q", path)}
	}

	if dur := d.formatCtx.Duration(); dur > 0 {
		d.durationSecs = float64(dur) / float64(astiav.TimeBase)
	}

	return d, nil
}

// VideoCodecParameters returns the video stream's codec parameters.
func (d *Demuxer) VideoCodecParameters() *astiav.CodecParameters {
	return d.videoStream.CodecParameters()
}

// AudioCodecParameters returns the audio stream's codec parameters, or nil
// if the container has no audio stream.
func (d *Demuxer) AudioCodecParameters() *astiav.CodecParameters {
	if d.audioStream == nil {
		return nil
	}
	return d.audioStream.CodecParameters()
}

// HasAudio reports whether the container carries an audio stream.
func (d *Demuxer) HasAudio() bool {
	return d.audioIdx != -1
}

// Probe returns the immutable media info gathered at open time.
func (d *Demuxer) Probe() codec.MediaInfo {
	params := d.VideoCodecParameters()
	info := codec.MediaInfo{
		Width:        params.Width(),
		Height:       params.Height(),
		DurationSecs: d.durationSecs,
		HasAudio:     d.HasAudio(),
	}
	if ap := d.AudioCodecParameters(); ap != nil {
		info.SampleRate = ap.SampleRate()
		info.ChannelCount = ap.ChannelLayout().Channels()
	}
	if info.SampleRate == 0 {
		info.SampleRate = 44100
	}
	if info.ChannelCount == 0 {
		info.ChannelCount = 2
	}
	return info
}

// ReadPacket reads the next packet from the container.
func (d *Demuxer) ReadPacket() (codec.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return codec.Packet{}, fmt.Errorf("ffmpeg: demuxer closed")
	}

	pkt := astiav.AllocPacket()
	if pkt == nil {
		return codec.Packet{}, fmt.Errorf("ffmpeg: failed to allocate packet")
	}

	if err := d.formatCtx.ReadFrame(pkt); err != nil {
		pkt.Free()
		if err == astiav.ErrEof {
			return codec.Packet{}, io.EOF
		}
		return codec.Packet{}, err
	}

	isVideo := pkt.StreamIndex() == d.videoIdx
	tb := d.audioTimeBase
	if isVideo {
		tb = d.videoTimeBase
	}

	return codec.Packet{
		Video:   isVideo,
		PtsSecs: float64(pkt.Pts()) * float64(tb.Num()) / float64(tb.Den()),
		Handle:  pkt,
	}, nil
}

// Seek seeks to the nearest indexable boundary at or before targetSecs, on
// both the video and audio streams where present.
func (d *Demuxer) Seek(targetSecs float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("ffmpeg: demuxer closed")
	}

	ts := int64(targetSecs * float64(astiav.TimeBase))
	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if err := d.formatCtx.SeekFrame(-1, ts, flags); err != nil {
		return fmt.Errorf("ffmpeg: seek to %.3fs: %w", targetSecs, err)
	}
	return nil
}

// Close releases all demuxer resources.
func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.formatCtx != nil {
		d.formatCtx.CloseInput()
		d.formatCtx.Free()
		d.formatCtx = nil
	}
	return nil
}
