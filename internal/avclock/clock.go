// Package avclock implements the audio master clock shared between the
// decoder worker, the audio source and the player facade. All state is
// plain atomics; no causal ordering depends on two fields changing
// together, so relaxed ordering is sufficient.
package avclock

import "sync/atomic"

// Clock is the shared, atomic playback-position state. Audio is the master
// timeline: position only advances on confirmed sample consumption (or, in
// the audio-less case, on a wall-clock tick), and only while not paused.
type Clock struct {
	positionUs  atomic.Uint64
	paused      atomic.Bool
	clearBuffer atomic.Bool
	sampleRate  int
	channels    int
}

// New creates a Clock for the given sample rate and channel count. Per
// spec.md, callers should default to (44100, 2) when the container carries
// no audio stream.
func New(sampleRate, channels int) *Clock {
	c := &Clock{
		sampleRate: sampleRate,
		channels:   channels,
	}
	c.paused.Store(true)
	return c
}

// SampleRate returns the immutable sample rate this clock was constructed
// with.
func (c *Clock) SampleRate() int { return c.sampleRate }

// Channels returns the immutable channel count this clock was constructed
// with.
func (c *Clock) Channels() int { return c.channels }

// Position returns the current playback position in seconds.
func (c *Clock) Position() float64 {
	return float64(c.positionUs.Load()) / 1e6
}

// SetPosition stores a new position (seconds) and raises the one-shot
// clear-buffer flag, so the next audio pull drains stale samples.
func (c *Clock) SetPosition(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	c.positionUs.Store(uint64(seconds * 1e6))
	c.clearBuffer.Store(true)
}

// ShouldClearBuffer atomically swaps the clear-buffer flag to false and
// returns its previous value. Exactly one observer sees true per preceding
// SetPosition call.
func (c *Clock) ShouldClearBuffer() bool {
	return c.clearBuffer.Swap(false)
}

// AdvanceSamples advances the position by n samples' worth of time, unless
// paused. Integer truncation of the microsecond delta is acceptable.
func (c *Clock) AdvanceSamples(n int) {
	if c.paused.Load() || n <= 0 {
		return
	}
	denom := c.sampleRate * c.channels
	if denom <= 0 {
		return
	}
	deltaUs := uint64(n) * 1_000_000 / uint64(denom)
	c.positionUs.Add(deltaUs)
}

// AdvanceWallClock advances the position by dt (seconds) directly, unless
// paused. This is the audio-less fallback described in spec.md §9: when a
// container has no audio stream, nothing pulls samples to drive
// AdvanceSamples, so the player facade instead drives the clock once per
// update tick from wall-clock elapsed time.
func (c *Clock) AdvanceWallClock(dt float64) {
	if c.paused.Load() || dt <= 0 {
		return
	}
	c.positionUs.Add(uint64(dt * 1e6))
}

// Pause stops position advancement.
func (c *Clock) Pause() { c.paused.Store(true) }

// Resume allows position advancement to continue.
func (c *Clock) Resume() { c.paused.Store(false) }

// IsPaused reports whether the clock is currently paused.
func (c *Clock) IsPaused() bool { return c.paused.Load() }
