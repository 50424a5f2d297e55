// Package audiosink bridges the decoder worker's resampled audio samples
// to a real output device. Source is the pull-side iterator described in
// spec.md §4.3; Sink is the concrete gopxl/beep-backed output service,
// grounded on the teacher's AudioPlayer/audioStreamer pair.
package audiosink

import (
	"github.com/avplayer/engine/internal/avclock"
	"github.com/avplayer/engine/internal/ringbuffer"
)

// samplesPerClockTick is how many consumed samples accumulate before the
// clock is advanced, per spec.md §4.3 ("every 256 samples").
const samplesPerClockTick = 256

// Source pulls f32 stereo samples out of a CircularBuffer and advances the
// shared clock as real samples (not silence) are consumed. It never
// blocks and never errors.
type Source struct {
	buf      *ringbuffer.CircularBuffer[float32]
	clock    *avclock.Clock
	consumed int
}

// NewSource creates a Source reading from buf and driving clock.
func NewSource(buf *ringbuffer.CircularBuffer[float32], clock *avclock.Clock) *Source {
	return &Source{buf: buf, clock: clock}
}

// Next returns the next sample: a cleared buffer's one-shot silence filler,
// a popped sample (real playback), or silence on underrun. The clock only
// advances on confirmed real consumption, batched every 256 samples.
func (s *Source) Next() float32 {
	if s.clock.ShouldClearBuffer() {
		s.buf.Clear()
		s.consumed = 0
		return 0
	}

	v, ok := s.buf.TryPop()
	if !ok {
		return 0
	}

	s.consumed++
	if s.consumed >= samplesPerClockTick {
		s.clock.AdvanceSamples(samplesPerClockTick)
		s.consumed -= samplesPerClockTick
	}
	return v
}

// SampleRate returns the clock's sample rate.
func (s *Source) SampleRate() int { return s.clock.SampleRate() }

// Channels returns the clock's channel count.
func (s *Source) Channels() int { return s.clock.Channels() }
