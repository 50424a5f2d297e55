// Package previewsink is a headless demo presentation collaborator: it
// resizes a published texture for a given display mode and can dump the
// current frame to a PPM file for inspection without a GUI. Grounded on the
// bilinear thumbnail scaling in the renderer package of the jivefire example
// repo, using golang.org/x/image/draw instead of a hand-rolled resampler.
package previewsink

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"os"

	"golang.org/x/image/draw"

	"github.com/avplayer/engine/player"
)

// Resize scales an RGBA pixel buffer of size (srcW, srcH) to (dstW, dstH)
// using approximate bilinear interpolation. It returns a new, tightly
// packed RGBA buffer; the input is left untouched.
func Resize(pixels []byte, srcW, srcH, dstW, dstH int) []byte {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return nil
	}
	if srcW == dstW && srcH == dstH {
		out := make([]byte, len(pixels))
		copy(out, pixels)
		return out
	}

	src := &image.RGBA{
		Pix:    pixels,
		Stride: srcW * 4,
		Rect:   image.Rect(0, 0, srcW, srcH),
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))

	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst.Pix
}

// FitToWindow computes the largest (width, height) that preserves the
// source aspect ratio within a window of size (windowW, windowH).
func FitToWindow(srcW, srcH, windowW, windowH int) (width, height int) {
	if srcW <= 0 || srcH <= 0 || windowW <= 0 || windowH <= 0 {
		return 0, 0
	}
	srcAspect := float64(srcW) / float64(srcH)
	windowAspect := float64(windowW) / float64(windowH)

	if srcAspect > windowAspect {
		return windowW, int(float64(windowW) / srcAspect)
	}
	return int(float64(windowH) * srcAspect), windowH
}

// WritePPM dumps an RGBA pixel buffer to path as a binary (P6) PPM image,
// dropping the alpha channel. It exists so the demo and tests can inspect a
// published texture without a GUI or a PNG dependency at the call site.
func WritePPM(path string, pixels []byte, width, height int) error {
	if width <= 0 || height <= 0 || len(pixels) < width*height*4 {
		return fmt.Errorf("previewsink: invalid frame %dx%d (%d bytes)", width, height, len(pixels))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("previewsink: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "P6\n%d %d\n255\n", width, height)
	for i := 0; i < width*height; i++ {
		rgba := pixels[i*4 : i*4+4]
		w.Write(rgba[:3])
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("previewsink: write %s: %w", path, err)
	}
	return nil
}

// SnapshotColor returns the colour of the pixel at (x, y) in an RGBA
// buffer of the given width, useful for tests asserting on a published
// texture without decoding a PPM file.
func SnapshotColor(pixels []byte, width, x, y int) color.RGBA {
	idx := (y*width + x) * 4
	if idx < 0 || idx+4 > len(pixels) {
		return color.RGBA{}
	}
	return color.RGBA{R: pixels[idx], G: pixels[idx+1], B: pixels[idx+2], A: pixels[idx+3]}
}

// PPMSink is the concrete player.PresentationSink this package offers: it
// writes every published texture to a single PPM file at path, overwriting
// the previous frame, so a caller can inspect the current picture on disk
// without a GUI (e.g. cmd/avplay's -snapshot flag).
type PPMSink struct {
	path          string
	width, height int
}

var _ player.PresentationSink = (*PPMSink)(nil)

// NewPPMSink creates a sink that writes each published frame to path.
func NewPPMSink(path string) *PPMSink {
	return &PPMSink{path: path}
}

// Allocate records the natural video dimensions. PPMSink has no GPU/window
// surface to size, so this only validates and stores them.
func (s *PPMSink) Allocate(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("previewsink: invalid dimensions %dx%d", width, height)
	}
	s.width, s.height = width, height
	return nil
}

// Publish writes tex to path as a PPM image, replacing whatever frame was
// there before.
func (s *PPMSink) Publish(tex player.Texture) error {
	return WritePPM(s.path, tex.Pixels, tex.Width, tex.Height)
}
