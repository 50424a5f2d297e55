package videoqueue

import (
	"testing"

	"github.com/avplayer/engine/internal/codec"
)

func frameAt(pts float64) codec.VideoFrame {
	return codec.VideoFrame{PtsSecs: pts, Width: 1, Height: 1, Pixels: []byte{0, 0, 0, 0}}
}

func chanOf(frames ...codec.VideoFrame) chan codec.VideoFrame {
	ch := make(chan codec.VideoFrame, len(frames)+1)
	for _, f := range frames {
		ch <- f
	}
	return ch
}

func TestDisplayAdvancesInPTSOrder(t *testing.T) {
	ch := chanOf(frameAt(0), frameAt(0.033), frameAt(0.066))
	q := New(ch, 10)

	f, ok := q.Display(0)
	if !ok || f.PtsSecs != 0 {
		t.Fatalf("Display(0) = %v, %v, want pts 0", f, ok)
	}

	f, ok = q.Display(0.033)
	if !ok || f.PtsSecs != 0.033 {
		t.Fatalf("Display(0.033) = %v, %v, want pts 0.033", f, ok)
	}
}

func TestDisplayDropsLateFrames(t *testing.T) {
	ch := chanOf(frameAt(0), frameAt(1.0))
	q := New(ch, 10)

	// Clock at 1.0: the pts=0 frame is more than DropThreshold behind and
	// must be dropped, not shown, landing on the frame at pts=1.0.
	f, ok := q.Display(1.0)
	if !ok {
		t.Fatal("Display(1.0) returned ok=false, want the remaining frame")
	}
	if f.PtsSecs != 1.0 {
		t.Fatalf("Display(1.0) = pts %v, want 1.0 (stale frame dropped)", f.PtsSecs)
	}
}

func TestDisplayHoldsFrameNotYetDue(t *testing.T) {
	ch := chanOf(frameAt(5.0))
	q := New(ch, 10)

	_, ok := q.Display(0)
	if ok {
		t.Fatal("Display(0) returned a frame that is not yet due")
	}
}

func TestFirstFrameAfterSeekAppliesTolerance(t *testing.T) {
	ch := chanOf(frameAt(7.4), frameAt(7.6), frameAt(8.0))
	q := New(ch, 10)

	f, ok := q.FirstFrameAfterSeek(8.0)
	if !ok {
		t.Fatal("FirstFrameAfterSeek(8.0) returned ok=false")
	}
	if f.PtsSecs < 7.5 {
		t.Fatalf("FirstFrameAfterSeek(8.0) = pts %v, want >= target-tolerance (7.5)", f.PtsSecs)
	}
}

func TestClearDrainsBufferAndChannel(t *testing.T) {
	ch := chanOf(frameAt(0), frameAt(1))
	q := New(ch, 10)
	q.Display(0)
	q.Clear()

	if !q.IsEmpty() {
		t.Fatal("IsEmpty() = false after Clear()")
	}
}

func TestIsEmptyDetectsEndOfStream(t *testing.T) {
	ch := make(chan codec.VideoFrame)
	close(ch)
	q := New(ch, 10)

	if !q.IsEmpty() {
		t.Fatal("IsEmpty() = false for closed, drained channel")
	}
}
