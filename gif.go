// Package gifkit reads and writes animated GIF89a/GIF87a images: a
// block-structured grammar codec, an LZW compressor/decompressor, an
// animation assembler driven by disposal methods and transparency, and
// an octree-based color quantizer for encoding true-color frames.
package gifkit

import (
	"image"
	"image/color"
	"io"
	"math/bits"

	"go.uber.org/zap"
)

// ColorTable is an ordered sequence of RGB entries (§3): at most one
// global table per file, at most one local table per image
// descriptor. Alpha is always 255; transparency is carried separately
// by the Graphic Control Extension's transparent index.
type ColorTable []color.RGBA

// padded returns t grown to the next power of two >= 2 (capped at
// 256), filling new entries with opaque black (§3: "padded with
// (0,0,0) if necessary").
func (t ColorTable) padded() ColorTable {
	n := len(t)
	if n < 2 {
		n = 2
	}
	size := 2
	for size < n {
		size *= 2
	}
	if size > 256 {
		size = 256
	}
	out := make(ColorTable, size)
	copy(out, t)
	for i := len(t); i < size; i++ {
		out[i] = color.RGBA{A: 255}
	}
	return out
}

// gctSizeField returns the raw 3-bit GCT-size field for a table whose
// length is a power of two >= 2, i.e. log2(tableLen) - 1.
func gctSizeField(tableLen int) int {
	return bits.Len(uint(tableLen)) - 2
}

// lzwMinFor returns max(2, ceil(log2(tableLen))) (§4.7 step 6).
func lzwMinFor(tableLen int) int {
	w := 0
	if tableLen > 1 {
		w = bits.Len(uint(tableLen - 1))
	}
	if w < 2 {
		w = 2
	}
	return w
}

// Frame is an immutable, already-composited canvas-sized image (§3):
// sub-frames smaller than the canvas have already been blitted onto
// it by the time a Frame is produced.
type Frame struct {
	Pixels  []color.RGBA
	W, H    int
	DelayMS int
}

// RGBAImage returns a stdlib image.RGBA view of the frame, for
// interop with image/png, image/draw, and similar.
func (f Frame) RGBAImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.W, f.H))
	for i, p := range f.Pixels {
		img.SetRGBA(i%f.W, i/f.W, p)
	}
	return img
}

// FrameFromRGBA builds a Frame from a stdlib image.RGBA, the interop
// boundary for feeding arbitrary decoded source images (PNG, JPEG,
// ...) into EncodeAnimation.
func FrameFromRGBA(img *image.RGBA, delayMS int) Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pixels := make([]color.RGBA, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixels[y*w+x] = img.RGBAAt(b.Min.X+x, b.Min.Y+y)
		}
	}
	return Frame{Pixels: pixels, W: w, H: h, DelayMS: delayMS}
}

// Image is the top-level container (§3): logical canvas size, an
// ordered sequence of Frames, an optional comment, a loop count (0 =
// infinite, 1 = play once, N>1 = play N times), and, when decoded, the
// compressed source byte length.
type Image struct {
	w, h           int
	frames         []Frame
	comment        string
	loopCount      int
	compressedSize int
}

func (img *Image) Size() image.Point    { return image.Point{X: img.w, Y: img.h} }
func (img *Image) Frames() []Frame      { return img.frames }
func (img *Image) FrameCount() int      { return len(img.frames) }
func (img *Image) Comment() string      { return img.comment }
func (img *Image) LoopCount() int       { return img.loopCount }
func (img *Image) CompressedSize() int  { return img.compressedSize }
func (img *Image) RGBAAt(i int) *image.RGBA {
	return img.frames[i].RGBAImage()
}

// EncodeAnimation builds an Image ready for Encode from already
// composited, canvas-sized frames (the convenience constructor
// nicoGIF's util.go/EncodeGIF provided, re-targeted at the immutable
// Image/Frame model).
func EncodeAnimation(frames []Frame, size image.Point, loopCount int, comment string) (*Image, error) {
	for _, f := range frames {
		if f.W != size.X || f.H != size.Y {
			return nil, newErr(MalformedBlock, "frame size %dx%d does not match canvas %dx%d", f.W, f.H, size.X, size.Y)
		}
	}
	return &Image{
		w:         size.X,
		h:         size.Y,
		frames:    append([]Frame(nil), frames...),
		loopCount: loopCount,
		comment:   comment,
	}, nil
}

var defaultLogger = zap.NewNop()

// SetLogger installs the process-wide default logger used by Decode
// when no per-call logger is given. Passing nil restores the no-op
// logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	defaultLogger = l
}

// DecodeOptions configures a single Decode call.
type DecodeOptions struct {
	Mode   DeinterlaceMode
	Logger *zap.Logger
}

// countingReader tracks bytes consumed, so a decoded Image can report
// CompressedSize (§3).
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// Decode parses r as a GIF89a/GIF87a stream and assembles its frames
// (§4.7). mode controls de-interlacing; DeinterlaceAuto follows each
// image's own interlace flag.
func Decode(r io.Reader, mode DeinterlaceMode) (*Image, error) {
	return DecodeWithOptions(r, DecodeOptions{Mode: mode})
}

// DecodeWithOptions is Decode with an explicit per-call logger.
func DecodeWithOptions(r io.Reader, opts DecodeOptions) (*Image, error) {
	logger := opts.Logger
	if logger == nil {
		logger = defaultLogger
	}
	obs := newObserver(logger)

	cr := &countingReader{r: r}
	stream, err := parseGIF(cr, obs)
	if err != nil {
		return nil, err
	}

	seq := newFrameSequence(stream, opts.Mode)
	frames := make([]Frame, 0, seq.Len())
	for {
		f, ok, err := seq.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		frames = append(frames, f)
	}

	return &Image{
		w:              stream.screen.width,
		h:              stream.screen.height,
		frames:         frames,
		comment:        stream.comment,
		loopCount:      stream.loopCount,
		compressedSize: cr.n,
	}, nil
}

// Encode quantizes and compresses img's frames and writes the result
// as a GIF89a stream to w (§4.7 encode).
func (img *Image) Encode(w io.Writer) error {
	hasAlpha := false
	var allColors []RGB
	for _, f := range img.frames {
		for _, p := range f.Pixels {
			if p.A != 255 {
				hasAlpha = true
			}
			allColors = append(allColors, rgbOf(p))
		}
	}

	maxColors := 256
	if hasAlpha {
		maxColors = 255
	}

	table, colorMap, err := Quantize(allColors, maxColors)
	if err != nil {
		return err
	}

	transparentIndex := 0
	if hasAlpha {
		table = append(table, color.RGBA{A: 255})
		transparentIndex = len(table) - 1
	}

	padded := table.padded()
	lzwMin := lzwMinFor(len(padded))

	screen := logicalScreen{
		width:    img.w,
		height:   img.h,
		hasGCT:   true,
		colorRes: 7,
		sortFlag: true,
		gctSize:  gctSizeField(len(padded)),
		gct:      padded,
	}

	stream := &gifStream{screen: screen, comment: img.comment, loopCount: img.loopCount}

	for _, f := range img.frames {
		indices := make([]byte, len(f.Pixels))
		for i, p := range f.Pixels {
			if hasAlpha && p.A != 255 {
				indices[i] = byte(transparentIndex)
			} else {
				indices[i] = byte(colorMap[rgbOf(p)])
			}
		}

		stream.images = append(stream.images, imageBlock{
			left: 0, top: 0, width: f.W, height: f.H,
			lzwMin:     lzwMin,
			compressed: EncodeLZW(indices, lzwMin),
			gce: &graphicControl{
				disposal:       0,
				hasTransparent: hasAlpha,
				transparent:    transparentIndex,
				delayCs:        f.DelayMS / 10,
			},
		})
	}

	return writeGIF(w, stream)
}
