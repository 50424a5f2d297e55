package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avplayer/engine/internal/audiosink"
	"github.com/avplayer/engine/internal/avclock"
	"github.com/avplayer/engine/internal/codec"
	"github.com/avplayer/engine/internal/decoder"
	"github.com/avplayer/engine/internal/ringbuffer"
	"github.com/avplayer/engine/internal/videoqueue"
)

const (
	defaultAudioTargetRate = 44100
	defaultAudioChannels   = 2
	audioBufferCapacity    = defaultAudioTargetRate * defaultAudioChannels // ~1s of lookahead
	videoChannelCapacity   = 4
	commandChannelCapacity = 8
	errChannelCapacity     = 8
	endOfStreamSlack       = 0.1 // seconds, per spec.md §4.6
)

// audioSink is the subset of *audiosink.Sink the facade needs. It is an
// interface (rather than a concrete *audiosink.Sink field) purely so tests
// can substitute a fake in place of the real speaker-backed sink, which
// would otherwise require an actual audio device to construct.
type audioSink interface {
	Play()
	Pause()
	Resume()
	SetVolume(v float64)
	Volume() float64
	Close()
}

// newAudioSink constructs the real gopxl/beep-backed sink. Tests in this
// package may reassign it to avoid depending on a real audio device.
var newAudioSink = func(source *audiosink.Source) (audioSink, error) {
	return audiosink.NewSink(source)
}

// Player is the lifecycle owner described in spec.md §4.6: it wires the
// demuxer/decoders, clock, audio sink, and video queue together behind a
// small play/pause/stop/seek/volume surface, and publishes the current
// display frame as a Texture.
type Player struct {
	mu sync.Mutex

	opener codec.Opener

	demuxer codec.Demuxer
	video   codec.VideoDecoder
	audio   codec.AudioDecoder

	clock   *avclock.Clock
	queue   *videoqueue.Queue
	source  *audiosink.Source
	sink    audioSink
	audioCh *ringbuffer.CircularBuffer[float32]

	videoCh chan codec.VideoFrame
	cmdCh   chan decoder.Command
	errCh   chan string
	stop    *decoder.StopFlag
	workerW sync.WaitGroup

	state       State
	displayMode DisplayMode

	seeking    bool
	seekTarget float64

	info    codec.MediaInfo
	texture Texture

	lastUpdate time.Time

	lastErr error
}

// Open probes path, wires every component, spawns the decoder worker, and
// seeks to 0 so a poster frame is captured without starting playback. opener
// is the concrete codec-service backend (e.g. ffmpeg.Opener{}).
func Open(path string, opener codec.Opener) (*Player, error) {
	demuxer, video, audio, err := opener.Open(path, defaultAudioTargetRate)
	if err != nil {
		stage := string(codec.StageFileOpen)
		var staged *codec.StagedError
		if errors.As(err, &staged) {
			stage = string(staged.Stage)
		}
		return nil, &OpenError{Stage: stage, Err: err}
	}

	info := demuxer.Probe()
	if audio == nil {
		// No usable audio decoder: treat as the audio-less case.
		info.HasAudio = false
	}
	sampleRate, channels := info.SampleRate, info.ChannelCount
	if !info.HasAudio || sampleRate <= 0 || channels <= 0 {
		sampleRate, channels = defaultAudioTargetRate, defaultAudioChannels
	}

	clock := avclock.New(sampleRate, channels)
	audioBuf := ringbuffer.New[float32](audioBufferCapacity)
	source := audiosink.NewSource(audioBuf, clock)

	sink, err := newAudioSink(source)
	if err != nil {
		demuxer.Close()
		video.Close()
		if audio != nil {
			audio.Close()
		}
		return nil, &OpenError{Stage: "audio-device-init", Err: err}
	}

	videoCh := make(chan codec.VideoFrame, videoChannelCapacity)
	cmdCh := make(chan decoder.Command, commandChannelCapacity)
	errCh := make(chan string, errChannelCapacity)
	stop := decoder.NewStopFlag()

	w := decoder.New(demuxer, video, audio, videoCh, audioBuf, cmdCh, clock, stop, errCh)

	srcW, srcH := video.SourceSize()
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = info.Width, info.Height
	}
	info.Width, info.Height = srcW, srcH

	p := &Player{
		opener:      opener,
		demuxer:     demuxer,
		video:       video,
		audio:       audio,
		clock:       clock,
		queue:       videoqueue.New(videoCh, videoqueue.DefaultMaxBufferSize),
		source:      source,
		sink:        sink,
		audioCh:     audioBuf,
		videoCh:     videoCh,
		cmdCh:       cmdCh,
		errCh:       errCh,
		stop:        stop,
		state:       Stopped,
		displayMode: FitToWindow,
		info:        info,
		texture:     Texture{Pixels: make([]byte, srcW*srcH*4), Width: srcW, Height: srcH},
	}

	p.workerW.Add(1)
	go func() {
		defer p.workerW.Done()
		w.Run()
	}()

	// Resume the worker and seek to 0 to capture the poster frame without
	// entering the Playing state. The worker keeps decoding (self-limiting
	// once its bounded buffers fill); the clock stays paused throughout
	// since the worker no longer touches clock pause state itself.
	p.seeking = true
	p.seekTarget = 0
	p.cmdCh <- decoder.Command{Kind: decoder.CmdResume}
	p.cmdCh <- decoder.Command{Kind: decoder.CmdSeek, SeekTarget: 0}
	p.clock.Pause()

	return p, nil
}

// Play transitions to Playing and resumes both the decoder and the audio
// sink.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Playing {
		return
	}
	p.state = Playing
	p.clock.Resume()
	p.sink.Play()
	p.send(decoder.Command{Kind: decoder.CmdResume})
}

// Pause transitions to Paused, halting both the decoder and the audio sink.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Playing {
		return
	}
	p.state = Paused
	p.clock.Pause()
	p.sink.Pause()
	p.send(decoder.Command{Kind: decoder.CmdPause})
}

// Stop halts playback and seeks back to the start.
func (p *Player) Stop() {
	p.mu.Lock()
	p.state = Stopped
	p.clock.Pause()
	p.mu.Unlock()

	// Seek acquires the lock itself; must not be called while held.
	p.Seek(0)
}

// Seek clamps position to [0, duration], pauses the audio sink so the clock
// stops advancing, clears the lookahead queue, and issues a Seek command.
func (p *Player) Seek(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if position < 0 {
		position = 0
	}
	if position > p.info.DurationSecs {
		position = p.info.DurationSecs
	}

	p.seeking = true
	p.seekTarget = position

	p.sink.Pause()
	p.queue.Clear()
	p.clock.SetPosition(position)
	p.send(decoder.Command{Kind: decoder.CmdSeek, SeekTarget: position})
}

// SetVolume sets output volume in [0, 1]. When the container has no audio
// stream the sink only plays silence, so the setting has no audible effect,
// but it is still stored and reported by Volume.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink.SetVolume(v)
}

// Volume returns the current output volume in [0, 1].
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink.Volume()
}

// ToggleDisplayMode flips between FitToWindow and NativeSize. It never
// influences decoding.
func (p *Player) ToggleDisplayMode() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.displayMode == FitToWindow {
		p.displayMode = NativeSize
	} else {
		p.displayMode = FitToWindow
	}
}

// DisplayMode returns the current display mode.
func (p *Player) DisplayMode() DisplayMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayMode
}

// Update is the per-frame tick described in spec.md §4.6. Call it once per
// display refresh.
func (p *Player) Update() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drainErrors()

	now := time.Now()
	var dt float64
	if !p.lastUpdate.IsZero() {
		dt = now.Sub(p.lastUpdate).Seconds()
	}
	p.lastUpdate = now

	if !p.info.HasAudio {
		p.clock.AdvanceWallClock(dt)
	}

	if p.seeking {
		frame, ok := p.queue.FirstFrameAfterSeek(p.seekTarget)
		if ok {
			p.publish(frame)
			p.clock.SetPosition(frame.PtsSecs)
			// SetPosition raises the one-shot clear-buffer flag again;
			// that is intentional; the next audio pull drains any samples
			// queued during the seek before real playback resumes.
			p.seeking = false
			if p.state == Playing {
				p.sink.Resume()
			}
		}
		return
	}

	if p.state == Playing {
		frame, ok := p.queue.Display(p.clock.Position())
		if ok {
			p.publish(frame)
		}

		if p.queue.IsEmpty() && p.clock.Position() >= p.info.DurationSecs-endOfStreamSlack {
			p.state = Stopped
			p.clock.Pause()
			p.sink.Pause()
		}
	}
}

func (p *Player) publish(frame codec.VideoFrame) {
	p.texture = Texture{Pixels: frame.Pixels, Width: frame.Width, Height: frame.Height}
}

func (p *Player) drainErrors() {
	for {
		select {
		case msg := <-p.errCh:
			p.lastErr = fmt.Errorf("player: %s", msg)
		default:
			return
		}
	}
}

// send delivers cmd to the decoder worker, dropping it if the command
// channel is unexpectedly full rather than blocking the caller.
func (p *Player) send(cmd decoder.Command) {
	select {
	case p.cmdCh <- cmd:
	default:
	}
}

// Position returns the current playback position in seconds. While a seek
// is in flight, this reports the seek target rather than the pre-seek
// clock value, per spec.md §3's seeking substate.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seeking {
		return p.seekTarget
	}
	return p.clock.Position()
}

// Duration returns the container's duration in seconds.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.DurationSecs
}

// VideoSize returns the natural (pre-scale) frame dimensions.
func (p *Player) VideoSize() (width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Width, p.info.Height
}

// IsPlaying reports whether the player is currently in the Playing state.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Playing
}

// State returns the current coarse playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Texture returns the most recently published display frame.
func (p *Player) Texture() Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texture
}

// Error returns and clears the most recent runtime decode error, if any.
func (p *Player) Error() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.lastErr
	p.lastErr = nil
	return err
}

// Close tears the player down: raises the stop flag, emits a Stop command,
// joins the decoder thread, then closes the audio backend and remaining
// codec resources. The audio backend is held open until after the join so
// the worker's last resampled samples can drain safely.
func (p *Player) Close() error {
	p.stop.Raise()
	p.send(decoder.Command{Kind: decoder.CmdStop})
	p.workerW.Wait()

	p.sink.Close()
	p.video.Close()
	if p.audio != nil {
		p.audio.Close()
	}
	return p.demuxer.Close()
}
