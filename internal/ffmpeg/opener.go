package ffmpeg

import (
	"fmt"

	"github.com/avplayer/engine/internal/codec"
)

// Opener is the concrete codec.Opener backed by go-astiav.
type Opener struct{}

var _ codec.Opener = Opener{}

// Open opens path, probes its streams, and constructs the video decoder and
// (if present) an audio decoder resampling to audioTargetRate. On any
// construction failure, everything opened so far is released before the
// error is returned, per spec.md §6/§7's construction-error taxonomy.
func (Opener) Open(path string, audioTargetRate int) (codec.Demuxer, codec.VideoDecoder, codec.AudioDecoder, error) {
	demuxer, err := Open(path)
	if err != nil {
		return nil, nil, nil, err
	}

	video, err := NewVideoDecoder(demuxer.VideoCodecParameters(), demuxer.videoTimeBase)
	if err != nil {
		demuxer.Close()
		return nil, nil, nil, &codec.StagedError{Stage: codec.StageCodecInit, Err: fmt.Errorf("ffmpeg: video decoder init: %w", err)}
	}

	var audio codec.AudioDecoder
	if demuxer.HasAudio() {
		a, err := NewAudioDecoder(demuxer.AudioCodecParameters(), demuxer.audioTimeBase, audioTargetRate)
		if err != nil {
			// Audio decoder init failure is non-fatal: spec.md treats a
			// missing/unusable audio stream as the no-audio case, not a
			// construction error, so playback proceeds video-only.
			audio = nil
		} else {
			audio = a
		}
	}

	return demuxer, video, audio, nil
}
