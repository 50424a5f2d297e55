package player

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/avplayer/engine/internal/audiosink"
	"github.com/avplayer/engine/internal/codec"
)

// fakeSink stands in for the real speaker-backed audiosink.Sink so tests
// never touch an actual audio device.
type fakeSink struct {
	mu     sync.Mutex
	volume float64
}

func (s *fakeSink) Play()    {}
func (s *fakeSink) Pause()   {}
func (s *fakeSink) Resume()  {}
func (s *fakeSink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.volume = v
}
func (s *fakeSink) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}
func (s *fakeSink) Close() {}

func init() {
	newAudioSink = func(source *audiosink.Source) (audioSink, error) {
		return &fakeSink{volume: 1}, nil
	}
}

// fakeDemuxer serves a short, deterministic video-only (no audio) stream of
// 1-second-apart frames so Update()'s display/end-of-stream logic can be
// exercised without a real container or go-astiav.
type fakeDemuxer struct {
	mu       sync.Mutex
	next     int
	total    int
	seekedTo []float64
}

func (d *fakeDemuxer) Probe() codec.MediaInfo {
	return codec.MediaInfo{Width: 2, Height: 2, DurationSecs: float64(d.total), SampleRate: 44100, ChannelCount: 2, HasAudio: false}
}

func (d *fakeDemuxer) ReadPacket() (codec.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= d.total {
		return codec.Packet{}, io.EOF
	}
	pts := float64(d.next)
	d.next++
	return codec.Packet{Video: true, PtsSecs: pts, Handle: pts}, nil
}

func (d *fakeDemuxer) Seek(target float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seekedTo = append(d.seekedTo, target)
	d.next = int(target)
	return nil
}

func (d *fakeDemuxer) Close() error { return nil }

type fakeVideoDecoder struct{}

func (fakeVideoDecoder) DecodePacket(pkt codec.Packet) ([]codec.VideoFrame, error) {
	pts := pkt.Handle.(float64)
	return []codec.VideoFrame{{Pixels: make([]byte, 16), Width: 2, Height: 2, PtsSecs: pts}}, nil
}

func (fakeVideoDecoder) Flush() []codec.VideoFrame { return nil }
func (fakeVideoDecoder) SourceSize() (int, int)    { return 2, 2 }
func (fakeVideoDecoder) Close() error              { return nil }

// fakeOpener wires the fakes above in place of internal/ffmpeg.Opener, and
// returns a nil AudioDecoder so the player exercises its audio-less,
// wall-clock-driven path.
type fakeOpener struct {
	total int
}

func (o fakeOpener) Open(path string, audioTargetRate int) (codec.Demuxer, codec.VideoDecoder, codec.AudioDecoder, error) {
	return &fakeDemuxer{total: o.total}, fakeVideoDecoder{}, nil, nil
}

// waitForTexturePTS drives Update() until the initial post-open seek
// resolves (the poster frame has arrived and publish() has run).
func waitForTexturePTS(t *testing.T, p *Player, want float64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.Update()
		p.mu.Lock()
		resolved := !p.seeking
		p.mu.Unlock()
		if resolved {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("seek never resolved within %v", timeout)
}

func TestOpenCapturesPosterFrameWithoutPlaying(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	waitForTexturePTS(t, p, 0, 2*time.Second)

	if p.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped", p.State())
	}
	if p.IsPlaying() {
		t.Fatal("IsPlaying() = true immediately after Open")
	}
	if p.Position() != 0 {
		t.Fatalf("Position() = %v, want 0", p.Position())
	}
}

func TestPlayAdvancesPositionAndReachesStopped(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 3})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	waitForTexturePTS(t, p, 0, 2*time.Second)

	p.Play()
	if !p.IsPlaying() {
		t.Fatal("IsPlaying() = false after Play()")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && p.State() != Stopped {
		p.Update()
		time.Sleep(5 * time.Millisecond)
	}

	if p.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped after playing to completion", p.State())
	}
}

func TestPauseStopsClockAdvancement(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	waitForTexturePTS(t, p, 0, 2*time.Second)
	p.Play()

	time.Sleep(20 * time.Millisecond)
	p.Update()
	p.Pause()

	posAfterPause := p.Position()
	time.Sleep(20 * time.Millisecond)
	p.Update()

	if p.Position() != posAfterPause {
		t.Fatalf("Position() changed while paused: %v -> %v", posAfterPause, p.Position())
	}
	if p.State() != Paused {
		t.Fatalf("State() = %v, want Paused", p.State())
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 5})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	waitForTexturePTS(t, p, 0, 2*time.Second)

	p.Seek(1000)
	if p.Position() != p.Duration() {
		t.Fatalf("Position() after over-range seek = %v, want duration %v", p.Position(), p.Duration())
	}

	p.Seek(-5)
	if p.Position() != 0 {
		t.Fatalf("Position() after negative seek = %v, want 0", p.Position())
	}
}

func TestVolumeRoundTrips(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	p.SetVolume(0.5)
	if v := p.Volume(); v < 0.49 || v > 0.51 {
		t.Fatalf("Volume() = %v, want ~0.5", v)
	}

	p.SetVolume(0)
	if p.Volume() != 0 {
		t.Fatalf("Volume() = %v, want 0 (silent)", p.Volume())
	}
}

func TestToggleDisplayMode(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if p.DisplayMode() != FitToWindow {
		t.Fatalf("DisplayMode() initial = %v, want FitToWindow", p.DisplayMode())
	}
	p.ToggleDisplayMode()
	if p.DisplayMode() != NativeSize {
		t.Fatalf("DisplayMode() after toggle = %v, want NativeSize", p.DisplayMode())
	}
}

func TestCloseTerminatesWorker(t *testing.T) {
	p, err := Open("fake.mp4", fakeOpener{total: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return in time")
	}
}
