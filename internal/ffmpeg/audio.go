package ffmpeg

import (
	"fmt"
	"math"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/avplayer/engine/internal/codec"
)

// AudioDecoder decodes audio packets and resamples them to packed f32
// interleaved stereo at targetRate via go-astiav's software resampler.
type AudioDecoder struct {
	codecCtx *astiav.CodecContext
	swrCtx   *astiav.SoftwareResampleContext
	frame    *astiav.Frame

	timeBase   astiav.Rational
	targetRate int

	mu     sync.Mutex
	closed bool
}

// NewAudioDecoder opens an audio decoder from the demuxer's codec
// parameters, resampling to targetRate/stereo/f32.
func NewAudioDecoder(params *astiav.CodecParameters, timeBase astiav.Rational, targetRate int) (*AudioDecoder, error) {
	a := &AudioDecoder{timeBase: timeBase, targetRate: targetRate}

	dec := astiav.FindDecoder(params.CodecID())
	if dec == nil {
		return nil, fmt.Errorf("ffmpeg: audio codec not found: %s", params.CodecID())
	}

	a.codecCtx = astiav.AllocCodecContext(dec)
	if a.codecCtx == nil {
		return nil, fmt.Errorf("ffmpeg: failed to allocate audio codec context")
	}

	if err := params.ToCodecContext(a.codecCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ffmpeg: failed to copy audio codec params: %w", err)
	}

	if err := a.codecCtx.Open(dec, nil); err != nil {
		a.Close()
		return nil, fmt.Errorf("ffmpeg: failed to open audio codec: %w", err)
	}

	a.frame = astiav.AllocFrame()

	a.swrCtx = astiav.AllocSoftwareResampleContext()
	if a.swrCtx == nil {
		a.Close()
		return nil, fmt.Errorf("ffmpeg: failed to allocate swr context")
	}

	return a, nil
}

// DecodePacket feeds pkt.Handle (an *astiav.Packet) to the decoder and
// returns every resampled batch it yields. A batch that fails to resample
// is dropped and decoding continues, per spec.md §7.
func (a *AudioDecoder) DecodePacket(pkt codec.Packet) ([]codec.AudioSamples, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	astiavPkt, _ := pkt.Handle.(*astiav.Packet)
	if astiavPkt == nil {
		return nil, fmt.Errorf("ffmpeg: nil audio packet handle")
	}
	// Ownership of the packet passed to us via pkt.Handle; free it once
	// sent, as the demuxer allocates a fresh one per ReadPacket call.
	defer astiavPkt.Free()

	if a.closed {
		return nil, fmt.Errorf("ffmpeg: audio decoder closed")
	}

	if err := a.codecCtx.SendPacket(astiavPkt); err != nil {
		return nil, fmt.Errorf("ffmpeg: send audio packet: %w", err)
	}

	var out []codec.AudioSamples
	for {
		if err := a.codecCtx.ReceiveFrame(a.frame); err != nil {
			if err == astiav.ErrEof || err == astiav.ErrEagain {
				break
			}
			return out, fmt.Errorf("ffmpeg: receive audio frame: %w", err)
		}

		ptsSecs := float64(a.frame.Pts()) * float64(a.timeBase.Num()) / float64(a.timeBase.Den())

		if batch, ok := a.resample(a.frame); ok {
			out = append(out, codec.AudioSamples{Samples: batch, PtsSecs: ptsSecs})
		}
		a.frame.Unref()
	}
	return out, nil
}

// resample converts one decoded frame to packed f32 stereo at targetRate.
// It returns ok=false (silently dropping the batch) on any resample
// failure, per spec.md §7.
func (a *AudioDecoder) resample(in *astiav.Frame) ([]float32, bool) {
	outFrame := astiav.AllocFrame()
	defer outFrame.Free()

	outFrame.SetSampleFormat(astiav.SampleFormatFlt)
	outFrame.SetSampleRate(a.targetRate)
	outFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	outFrame.SetNbSamples(in.NbSamples())

	if err := outFrame.AllocBuffer(0); err != nil {
		return nil, false
	}

	if err := a.swrCtx.ConvertFrame(in, outFrame); err != nil {
		return nil, false
	}

	plane, err := outFrame.Data().Bytes(0)
	if err != nil {
		return nil, false
	}

	numSamples := outFrame.NbSamples() * 2 // stereo interleaved f32 in plane 0
	byteSize := numSamples * 4
	if len(plane) < byteSize {
		return nil, false
	}

	samples := make([]float32, numSamples)
	for i := range samples {
		off := i * 4
		bits := uint32(plane[off]) | uint32(plane[off+1])<<8 | uint32(plane[off+2])<<16 | uint32(plane[off+3])<<24
		samples[i] = math.Float32frombits(bits)
	}
	return samples, true
}

// Flush drains any residual audio frames; the audio tail is discarded per
// spec.md §4.5, so callers of AudioDecoder.Flush are free to ignore the
// result — it is provided for symmetry with VideoDecoder.
func (a *AudioDecoder) Flush() []codec.AudioSamples {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.codecCtx.SendPacket(nil)

	var out []codec.AudioSamples
	for {
		if err := a.codecCtx.ReceiveFrame(a.frame); err != nil {
			break
		}
		if batch, ok := a.resample(a.frame); ok {
			out = append(out, codec.AudioSamples{Samples: batch})
		}
		a.frame.Unref()
	}
	// Leave draining mode so the decoder accepts packets again.
	a.codecCtx.FlushBuffers()
	return out
}

// Close releases decoder resources.
func (a *AudioDecoder) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.frame != nil {
		a.frame.Free()
		a.frame = nil
	}
	if a.swrCtx != nil {
		a.swrCtx.Free()
		a.swrCtx = nil
	}
	if a.codecCtx != nil {
		a.codecCtx.Free()
		a.codecCtx = nil
	}
	return nil
}
