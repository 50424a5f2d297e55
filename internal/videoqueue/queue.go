// Package videoqueue holds the bounded video-frame lookahead buffer and the
// drop/hold display-selection policy that synchronises video to the audio
// master clock.
package videoqueue

import "github.com/avplayer/engine/internal/codec"

const (
	// DropThreshold is how far behind the clock a frame may lag before it
	// is dropped rather than displayed.
	DropThreshold = 20e-3 // seconds

	// HoldThreshold is how far ahead of the clock a frame may sit and
	// still be considered ready to display.
	HoldThreshold = 20e-3 // seconds

	// SeekTolerance absorbs GOP-size quantisation: the demuxer rarely
	// seeks to an exactly displayable frame.
	SeekTolerance = 0.5 // seconds

	// DefaultMaxBufferSize is the default lookahead buffer depth.
	DefaultMaxBufferSize = 30
)

// Queue buffers decoded video frames read from a channel and selects which
// one to display against the audio clock.
type Queue struct {
	ch            <-chan codec.VideoFrame
	maxBufferSize int
	buffer        []codec.VideoFrame
	currentFrame  codec.VideoFrame
	hasCurrent    bool
}

// New creates a Queue that refills from ch, a single-producer/
// single-consumer channel owned (send side) by the decoder worker.
func New(ch <-chan codec.VideoFrame, maxBufferSize int) *Queue {
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}
	return &Queue{
		ch:            ch,
		maxBufferSize: maxBufferSize,
	}
}

// refill performs non-blocking receives until the buffer reaches
// maxBufferSize or the channel has nothing more pending.
func (q *Queue) refill() {
	for len(q.buffer) < q.maxBufferSize {
		select {
		case frame, ok := <-q.ch:
			if !ok {
				return
			}
			q.buffer = append(q.buffer, frame)
		default:
			return
		}
	}
}

// Display implements the §4.4 get_display_frame algorithm: refill, drop
// frames that are too far behind clockSecs, advance to the front frame if
// it has reached its presentation time, and return whatever is currently
// displayed. At most one advance happens per call.
func (q *Queue) Display(clockSecs float64) (frame codec.VideoFrame, ok bool) {
	q.refill()

	for len(q.buffer) > 0 && q.buffer[0].PtsSecs < clockSecs-DropThreshold {
		q.buffer = q.buffer[1:]
	}

	if len(q.buffer) > 0 && q.buffer[0].PtsSecs <= clockSecs+HoldThreshold {
		q.currentFrame = q.buffer[0]
		q.buffer = q.buffer[1:]
		q.hasCurrent = true
	}

	return q.currentFrame, q.hasCurrent
}

// FirstFrameAfterSeek implements the §4.4 post-seek selection: refill,
// discard frames older than target-SeekTolerance, and take the first
// remaining frame irrespective of the drop/hold windows used by Display.
func (q *Queue) FirstFrameAfterSeek(targetSecs float64) (frame codec.VideoFrame, ok bool) {
	q.refill()

	for len(q.buffer) > 0 && q.buffer[0].PtsSecs < targetSecs-SeekTolerance {
		q.buffer = q.buffer[1:]
	}

	if len(q.buffer) == 0 {
		return codec.VideoFrame{}, false
	}

	q.currentFrame = q.buffer[0]
	q.buffer = q.buffer[1:]
	q.hasCurrent = true
	return q.currentFrame, true
}

// Clear drops the lookahead buffer, the current frame, and drains any
// frames already sitting in the channel. Callers issue this before a seek.
func (q *Queue) Clear() {
	q.buffer = nil
	q.currentFrame = codec.VideoFrame{}
	q.hasCurrent = false

	for {
		select {
		case _, ok := <-q.ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// IsEmpty reports whether the buffer, current frame, and channel are all
// empty — used to detect end-of-stream.
func (q *Queue) IsEmpty() bool {
	if len(q.buffer) > 0 || q.hasCurrent {
		return false
	}
	select {
	case frame, ok := <-q.ch:
		if !ok {
			return true
		}
		// Peeked a frame we can't put back; keep it for the next refill.
		q.buffer = append(q.buffer, frame)
		return false
	default:
		return true
	}
}
