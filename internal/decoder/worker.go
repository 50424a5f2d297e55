// Package decoder implements the long-running decoder worker thread: it
// drives a demuxer, two decoders, scaling and resampling, reacting to
// out-of-band control commands mid-stream, per spec.md §4.5.
package decoder

import (
	"errors"
	"io"
	"time"

	"github.com/avplayer/engine/internal/avclock"
	"github.com/avplayer/engine/internal/codec"
	"github.com/avplayer/engine/internal/ringbuffer"
)

// CommandKind tags a control command sent from the player facade.
type CommandKind int

const (
	CmdPause CommandKind = iota
	CmdResume
	CmdSeek
	CmdStop
)

// Command is a single out-of-band instruction delivered over the bounded
// command channel.
type Command struct {
	Kind CommandKind
	// SeekTarget is only meaningful when Kind == CmdSeek.
	SeekTarget float64
}

const (
	sendRetrySleep = 1 * time.Millisecond
	idleSleep      = 10 * time.Millisecond
)

// outcome is the result of one main-loop iteration: whether to keep
// looping or shut down.
type outcome int

const (
	outcomeContinue outcome = iota
	outcomeExit
)

// StopFlag is a level-triggered, atomic stop signal the player facade can
// raise from any goroutine for fast teardown, independent of the command
// channel.
type StopFlag struct {
	ch chan struct{}
}

// NewStopFlag creates a fresh, unset stop flag.
func NewStopFlag() *StopFlag {
	return &StopFlag{ch: make(chan struct{})}
}

// Raise sets the flag. Safe to call more than once.
func (s *StopFlag) Raise() {
	select {
	case <-s.ch:
	default:
		close(s.ch)
	}
}

// IsSet reports whether the flag has been raised.
func (s *StopFlag) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Worker owns the demuxer, both decoders, the video channel send side, the
// shared audio CircularBuffer, the command channel receive side, the
// shared clock, and the shared stop flag.
type Worker struct {
	demuxer codec.Demuxer
	video   codec.VideoDecoder
	audio   codec.AudioDecoder // nil when the container has no audio stream

	videoCh  chan<- codec.VideoFrame
	audioBuf *ringbuffer.CircularBuffer[float32]
	cmdCh    <-chan Command
	clock    *avclock.Clock

	stop *StopFlag
	errs chan<- string

	paused      bool
	pendingSeek *float64
	atEOF       bool
}

// New constructs a Worker. It starts paused, per spec.md §4.5's documented
// local state.
func New(
	demuxer codec.Demuxer,
	video codec.VideoDecoder,
	audio codec.AudioDecoder,
	videoCh chan<- codec.VideoFrame,
	audioBuf *ringbuffer.CircularBuffer[float32],
	cmdCh <-chan Command,
	clock *avclock.Clock,
	stop *StopFlag,
	errs chan<- string,
) *Worker {
	return &Worker{
		demuxer:  demuxer,
		video:    video,
		audio:    audio,
		videoCh:  videoCh,
		audioBuf: audioBuf,
		cmdCh:    cmdCh,
		clock:    clock,
		stop:     stop,
		errs:     errs,
		paused:   true,
	}
}

// Run executes the main loop described in spec.md §4.5 until stopped,
// commanded to stop, or the command channel disconnects. It always closes
// the video channel before returning.
func (w *Worker) Run() {
	defer close(w.videoCh)

	for {
		if w.stop.IsSet() {
			w.flushTail()
			return
		}

		if w.drainCommands() == outcomeExit {
			w.flushTail()
			return
		}

		if w.pendingSeek != nil {
			w.performSeek(*w.pendingSeek)
			w.pendingSeek = nil
		}

		if w.paused || w.atEOF {
			time.Sleep(idleSleep)
			continue
		}

		if w.readAndDispatchOne() == outcomeExit {
			w.flushTail()
			return
		}
	}
}

// drainCommands processes every command currently queued, non-blocking.
func (w *Worker) drainCommands() outcome {
	for {
		select {
		case cmd, ok := <-w.cmdCh:
			if !ok {
				return outcomeExit
			}
			if w.applyCommand(cmd) == outcomeExit {
				return outcomeExit
			}
		default:
			return outcomeContinue
		}
	}
}

// applyCommand mutates worker state for a single command. Seek commands
// coalesce: the latest one wins. Pause/Resume only gate packet consumption
// here; the clock's own pause state is owned exclusively by the player
// facade, so that a transient decode resume (e.g. to capture a poster
// frame) never races the facade's notion of whether playback has started.
func (w *Worker) applyCommand(cmd Command) outcome {
	switch cmd.Kind {
	case CmdStop:
		return outcomeExit
	case CmdPause:
		w.paused = true
	case CmdResume:
		w.paused = false
	case CmdSeek:
		t := cmd.SeekTarget
		w.pendingSeek = &t
	}
	return outcomeContinue
}

func (w *Worker) performSeek(target float64) {
	w.demuxer.Seek(target)
	w.video.Flush()
	if w.audio != nil {
		w.audio.Flush()
	}
	w.clock.SetPosition(target)
	w.atEOF = false
}

// readAndDispatchOne reads one packet and dispatches it.
func (w *Worker) readAndDispatchOne() outcome {
	pkt, err := w.demuxer.ReadPacket()
	if err != nil {
		if errors.Is(err, io.EOF) {
			w.atEOF = true
			return outcomeContinue
		}
		// Corrupt/unreadable packet: skip and continue, per spec.md §7.
		return outcomeContinue
	}

	if pkt.Video {
		return w.handleVideoPacket(pkt)
	}
	w.handleAudioPacket(pkt)
	return outcomeContinue
}

func (w *Worker) handleVideoPacket(pkt codec.Packet) outcome {
	frames, err := w.video.DecodePacket(pkt)
	if err != nil {
		if !errors.Is(err, codec.ErrNoFrame) {
			w.reportError("video decode: " + err.Error())
		}
		return outcomeContinue
	}
	for _, frame := range frames {
		if w.sendFrame(frame) == outcomeExit {
			return outcomeExit
		}
		if w.pendingSeek != nil {
			// A seek arrived mid-send: the packet's remaining frames are stale.
			return outcomeContinue
		}
	}
	return outcomeContinue
}

// sendFrame tries to send frame over the bounded video channel. If the
// channel is full, it polls the command channel once per retry sleep so a
// seek/stop during a consumer stall is honoured promptly, per spec.md
// §4.5's rationale for interleaving command polling into the send-retry
// loop. A seek abandons the frame and restarts the main loop at command
// handling; a stop propagates all the way out of Run.
func (w *Worker) sendFrame(frame codec.VideoFrame) outcome {
	for {
		select {
		case w.videoCh <- frame:
			return outcomeContinue
		default:
		}

		select {
		case cmd, ok := <-w.cmdCh:
			if !ok {
				return outcomeExit
			}
			switch cmd.Kind {
			case CmdStop:
				return outcomeExit
			case CmdSeek:
				t := cmd.SeekTarget
				w.pendingSeek = &t
				return outcomeContinue // stale frame discarded
			case CmdPause:
				w.paused = true
			case CmdResume:
				w.paused = false
			}
		default:
			time.Sleep(sendRetrySleep)
		}
	}
}

func (w *Worker) handleAudioPacket(pkt codec.Packet) {
	if w.audio == nil {
		return
	}
	batches, err := w.audio.DecodePacket(pkt)
	if err != nil {
		w.reportError("audio decode: " + err.Error())
		return
	}
	for _, b := range batches {
		w.audioBuf.PushSlice(b.Samples)
	}
}

// flushTail drains any residual decoder frames on shutdown and attempts a
// best-effort send of leftover video frames; the audio tail is discarded,
// per spec.md §4.5.
func (w *Worker) flushTail() {
	for _, frame := range w.video.Flush() {
		select {
		case w.videoCh <- frame:
		default:
		}
	}
	if w.audio != nil {
		w.audio.Flush()
	}
}

func (w *Worker) reportError(msg string) {
	select {
	case w.errs <- msg:
	default:
	}
}
