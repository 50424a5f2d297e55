package decoder

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/avplayer/engine/internal/avclock"
	"github.com/avplayer/engine/internal/codec"
	"github.com/avplayer/engine/internal/ringbuffer"
)

// fakeDemuxer emits a fixed sequence of video packets (pts 0, 1, 2, ...)
// then io.EOF forever, and records seeks.
type fakeDemuxer struct {
	mu       sync.Mutex
	next     int
	seekedTo []float64
	closed   bool
}

func (d *fakeDemuxer) Probe() codec.MediaInfo {
	return codec.MediaInfo{Width: 4, Height: 4, DurationSecs: 10, SampleRate: 44100, ChannelCount: 2}
}

func (d *fakeDemuxer) ReadPacket() (codec.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= 5 {
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
	d.next = 0
	return nil
}

func (d *fakeDemuxer) Close() error {
	d.closed = true
	return nil
}

// fakeVideoDecoder turns each packet directly into a 1x1 frame carrying the
// packet's pts.
type fakeVideoDecoder struct{}

func (fakeVideoDecoder) DecodePacket(pkt codec.Packet) ([]codec.VideoFrame, error) {
	pts := pkt.Handle.(float64)
	return []codec.VideoFrame{{Pixels: []byte{0, 0, 0, 0}, Width: 1, Height: 1, PtsSecs: pts}}, nil
}

func (fakeVideoDecoder) Flush() []codec.VideoFrame { return nil }
func (fakeVideoDecoder) SourceSize() (int, int)    { return 1, 1 }
func (fakeVideoDecoder) Close() error              { return nil }

func newTestWorker(t *testing.T) (*Worker, chan codec.VideoFrame, chan Command, *avclock.Clock, *StopFlag) {
	t.Helper()
	videoCh := make(chan codec.VideoFrame, 2)
	cmdCh := make(chan Command, 8)
	clock := avclock.New(44100, 2)
	stop := NewStopFlag()
	errs := make(chan string, 8)
	buf := ringbuffer.New[float32](1024)

	w := New(&fakeDemuxer{}, fakeVideoDecoder{}, nil, videoCh, buf, cmdCh, clock, stop, errs)
	return w, videoCh, cmdCh, clock, stop
}

func TestWorkerStopsOnCommand(t *testing.T) {
	w, videoCh, cmdCh, _, _ := newTestWorker(t)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	cmdCh <- Command{Kind: CmdStop}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop command")
	}

	// The video channel must be closed after Run returns.
	for range videoCh {
	}
}

func TestWorkerStopsOnStopFlag(t *testing.T) {
	w, _, _, _, stop := newTestWorker(t)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	stop.Raise()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after stop flag raised")
	}
}

func TestWorkerProducesNoFramesWhilePaused(t *testing.T) {
	w, videoCh, cmdCh, _, stop := newTestWorker(t)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	// Worker starts paused per spec.md §4.5; give it time to spin idle.
	time.Sleep(30 * time.Millisecond)

	select {
	case <-videoCh:
		t.Fatal("received a frame while worker should still be paused")
	default:
	}

	cmdCh <- Command{Kind: CmdStop}
	stop.Raise()
	<-done
}

func TestWorkerResumeProducesFramesInPTSOrder(t *testing.T) {
	w, videoCh, cmdCh, _, stop := newTestWorker(t)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	cmdCh <- Command{Kind: CmdResume}

	var pts []float64
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case f, ok := <-videoCh:
			if !ok {
				break loop
			}
			pts = append(pts, f.PtsSecs)
			if len(pts) == 5 {
				break loop
			}
		case <-timeout:
			t.Fatal("timed out waiting for frames")
		}
	}

	for i := range pts {
		if pts[i] != float64(i) {
			t.Fatalf("pts[%d] = %v, want %v (monotone order)", i, pts[i], i)
		}
	}

	cmdCh <- Command{Kind: CmdStop}
	stop.Raise()
	<-done
}

func TestWorkerCoalescesRapidSeeks(t *testing.T) {
	w, videoCh, cmdCh, clock, stop := newTestWorker(t)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	cmdCh <- Command{Kind: CmdSeek, SeekTarget: 1}
	cmdCh <- Command{Kind: CmdSeek, SeekTarget: 5}
	cmdCh <- Command{Kind: CmdSeek, SeekTarget: 9}
	cmdCh <- Command{Kind: CmdResume}

	// Drain a frame to make sure the seek was actually applied.
	select {
	case <-videoCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received after seek + resume")
	}

	if got := clock.Position(); got != 9 {
		t.Fatalf("clock.Position() = %v, want 9 (last seek wins)", got)
	}

	cmdCh <- Command{Kind: CmdStop}
	stop.Raise()
	<-done
}
