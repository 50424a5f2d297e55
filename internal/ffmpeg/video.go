package ffmpeg

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/avplayer/engine/internal/codec"
)

// VideoDecoder decodes video packets and scales them to RGBA at native
// dimensions using go-astiav's software scaler. Hardware-accelerated decode
// is a spec.md non-goal and is not implemented here.
type VideoDecoder struct {
	codecCtx *astiav.CodecContext
	swsCtx   *astiav.SoftwareScaleContext
	frame    *astiav.Frame
	rgbFrame *astiav.Frame

	srcWidth, srcHeight int

	timeBase astiav.Rational

	mu     sync.Mutex
	closed bool
}

// NewVideoDecoder opens a video decoder from the demuxer's codec
// parameters.
func NewVideoDecoder(params *astiav.CodecParameters, timeBase astiav.Rational) (*VideoDecoder, error) {
	v := &VideoDecoder{
		timeBase:  timeBase,
		srcWidth:  params.Width(),
		srcHeight: params.Height(),
	}

	dec := astiav.FindDecoder(params.CodecID())
	if dec == nil {
		return nil, fmt.Errorf("ffmpeg: video codec not found: %s", params.CodecID())
	}

	v.codecCtx = astiav.AllocCodecContext(dec)
	if v.codecCtx == nil {
		return nil, fmt.Errorf("ffmpeg: failed to allocate video codec context")
	}

	if err := params.ToCodecContext(v.codecCtx); err != nil {
		v.Close()
		return nil, fmt.Errorf("ffmpeg: failed to copy video codec params: %w", err)
	}

	if err := v.codecCtx.Open(dec, nil); err != nil {
		v.Close()
		return nil, fmt.Errorf("ffmpeg: failed to open video codec: %w", err)
	}

	v.frame = astiav.AllocFrame()
	v.rgbFrame = astiav.AllocFrame()

	return v, nil
}

func (v *VideoDecoder) initSwsContext(srcPixFmt astiav.PixelFormat) error {
	var err error
	v.swsCtx, err = astiav.CreateSoftwareScaleContext(
		v.srcWidth, v.srcHeight, srcPixFmt,
		v.srcWidth, v.srcHeight, astiav.PixelFormatRgba,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("ffmpeg: failed to create sws context: %w", err)
	}

	v.rgbFrame.SetWidth(v.srcWidth)
	v.rgbFrame.SetHeight(v.srcHeight)
	v.rgbFrame.SetPixelFormat(astiav.PixelFormatRgba)

	if err := v.rgbFrame.AllocBuffer(1); err != nil {
		return fmt.Errorf("ffmpeg: failed to allocate rgb frame buffer: %w", err)
	}
	return nil
}

// DecodePacket feeds pkt.Handle (an *astiav.Packet) to the decoder and
// returns every scaled RGBA frame it yields. Most packets produce exactly
// one frame, but codecs are free to buffer and emit several per packet, so
// DecodePacket drains ReceiveFrame in a loop like the audio path does.
func (v *VideoDecoder) DecodePacket(pkt codec.Packet) ([]codec.VideoFrame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	astiavPkt, _ := pkt.Handle.(*astiav.Packet)
	if astiavPkt == nil {
		return nil, fmt.Errorf("ffmpeg: nil video packet handle")
	}
	// Ownership of the packet passed to us via pkt.Handle; free it once
	// sent, as the demuxer allocates a fresh one per ReadPacket call.
	defer astiavPkt.Free()

	if v.closed {
		return nil, fmt.Errorf("ffmpeg: video decoder closed")
	}

	if err := v.codecCtx.SendPacket(astiavPkt); err != nil {
		return nil, fmt.Errorf("ffmpeg: send video packet: %w", err)
	}

	var out []codec.VideoFrame
	for {
		if err := v.codecCtx.ReceiveFrame(v.frame); err != nil {
			if err == astiav.ErrEof || err == astiav.ErrEagain {
				break
			}
			return out, fmt.Errorf("ffmpeg: receive video frame: %w", err)
		}

		frame, err := v.scaleCurrentFrame()
		v.frame.Unref()
		if err != nil {
			return out, err
		}
		out = append(out, frame)
	}

	if len(out) == 0 {
		return nil, codec.ErrNoFrame
	}
	return out, nil
}

// scaleCurrentFrame scales v.frame (already received) to RGBA and copies it
// into an owned VideoFrame. Caller is responsible for unref'ing v.frame.
func (v *VideoDecoder) scaleCurrentFrame() (codec.VideoFrame, error) {
	ptsSecs := float64(v.frame.Pts()) * float64(v.timeBase.Num()) / float64(v.timeBase.Den())

	if v.swsCtx == nil {
		if err := v.initSwsContext(v.frame.PixelFormat()); err != nil {
			return codec.VideoFrame{}, err
		}
	}

	if err := v.swsCtx.ScaleFrame(v.frame, v.rgbFrame); err != nil {
		return codec.VideoFrame{}, fmt.Errorf("ffmpeg: scale frame: %w", err)
	}

	plane, err := v.rgbFrame.Data().Bytes(1)
	if err != nil {
		return codec.VideoFrame{}, fmt.Errorf("ffmpeg: read rgba bytes: %w", err)
	}

	// Single-pass copy into an owned byte slice; per spec.md §9 we never
	// reinterpret the scaler's buffer in place since it's reused/reclaimed
	// by the scaler on the next call.
	pixels := make([]byte, len(plane))
	copy(pixels, plane)

	return codec.VideoFrame{
		Pixels:  pixels,
		Width:   v.srcWidth,
		Height:  v.srcHeight,
		PtsSecs: ptsSecs,
	}, nil
}

// Flush drains any frames buffered inside the decoder by sending a nil
// (EOF) packet and repeatedly receiving until exhausted.
func (v *VideoDecoder) Flush() []codec.VideoFrame {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}

	v.codecCtx.SendPacket(nil)

	var out []codec.VideoFrame
	for {
		if err := v.codecCtx.ReceiveFrame(v.frame); err != nil {
			break
		}
		ptsSecs := float64(v.frame.Pts()) * float64(v.timeBase.Num()) / float64(v.timeBase.Den())

		if v.swsCtx == nil {
			if err := v.initSwsContext(v.frame.PixelFormat()); err != nil {
				v.frame.Unref()
				break
			}
		}
		if err := v.swsCtx.ScaleFrame(v.frame, v.rgbFrame); err != nil {
			v.frame.Unref()
			continue
		}
		plane, err := v.rgbFrame.Data().Bytes(1)
		v.frame.Unref()
		if err != nil {
			continue
		}
		pixels := make([]byte, len(plane))
		copy(pixels, plane)
		out = append(out, codec.VideoFrame{Pixels: pixels, Width: v.srcWidth, Height: v.srcHeight, PtsSecs: ptsSecs})
	}
	// Leave draining mode so the decoder accepts packets again.
	v.codecCtx.FlushBuffers()
	return out
}

// SourceSize returns the natural video dimensions.
func (v *VideoDecoder) SourceSize() (int, int) {
	return v.srcWidth, v.srcHeight
}

// Close releases decoder resources.
func (v *VideoDecoder) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	if v.frame != nil {
		v.frame.Free()
		v.frame = nil
	}
	if v.rgbFrame != nil {
		v.rgbFrame.Free()
		v.rgbFrame = nil
	}
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}
	if v.codecCtx != nil {
		v.codecCtx.Free()
		v.codecCtx = nil
	}
	return nil
}
