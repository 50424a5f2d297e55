package audiosink

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker(sampleRate int) error {
	speakerOnce.Do(func() {
		rate := beep.SampleRate(sampleRate)
		speakerErr = speaker.Init(rate, rate.N(50*1000000)) // 50ms buffer
	})
	return speakerErr
}

// sourceStreamer adapts a Source (one-float32-at-a-time pull) to
// beep.Streamer's [][2]float64 batch interface, mirroring the teacher's
// audioStreamer.Stream shape but pulling via the spec's Source.Next
// contract instead of a raw byte buffer.
type sourceStreamer struct {
	source *Source
}

func (s *sourceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		left := s.source.Next()
		right := left
		if s.source.Channels() > 1 {
			right = s.source.Next()
		}
		samples[i][0] = float64(left)
		samples[i][1] = float64(right)
	}
	return len(samples), true
}

func (s *sourceStreamer) Err() error { return nil }

// Sink is the concrete audio-output collaborator described in spec.md §6,
// backed by gopxl/beep + its speaker driver, grounded on the teacher's
// AudioPlayer.
type Sink struct {
	mu     sync.Mutex
	ctrl   *beep.Ctrl
	volume *effects.Volume
}

// NewSink initializes the global speaker (once per process) at source's
// sample rate, wraps it in a pausable, volume-controlled beep chain, and
// adds it to the speaker's mixer exactly once, mirroring the teacher's
// AudioPlayer.Start(). Every subsequent play/pause only toggles
// ctrl.Paused; speaker.Play is never called again for this sink.
func NewSink(source *Source) (*Sink, error) {
	if err := initSpeaker(source.SampleRate()); err != nil {
		return nil, fmt.Errorf("audiosink: speaker init: %w", err)
	}

	ctrl := &beep.Ctrl{Streamer: &sourceStreamer{source: source}, Paused: true}
	vol := &effects.Volume{Streamer: ctrl, Base: 2}

	speaker.Play(vol)

	return &Sink{ctrl: ctrl, volume: vol}, nil
}

// Play starts (or resumes) playback by un-pausing the streamer already
// registered with the speaker's mixer.
func (s *Sink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

// Pause stops the speaker from advancing without tearing down the stream.
func (s *Sink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

// Resume un-pauses a previously paused sink.
func (s *Sink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

// SetVolume sets playback volume in [0, 1].
func (s *Sink) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Lock()
	if v <= 0 {
		s.volume.Silent = true
	} else {
		s.volume.Silent = false
		s.volume.Volume = (v - 1) * 5
	}
	speaker.Unlock()
}

// Volume returns the current volume in [0, 1].
func (s *Sink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.volume.Silent {
		return 0
	}
	return s.volume.Volume/5 + 1
}

// Close stops speaker playback of this sink's stream.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}
