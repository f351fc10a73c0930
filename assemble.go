package gifkit

import "image/color"

// DeinterlaceMode controls whether the assembler permutes rows back to
// natural order for interlaced images (§4.5 step 4).
type DeinterlaceMode int

const (
	// DeinterlaceAuto de-interlaces exactly the images whose Image
	// Descriptor sets the interlace flag.
	DeinterlaceAuto DeinterlaceMode = iota
	// DeinterlaceForce de-interlaces every image, interlaced or not;
	// the rows of an image stored sequentially are permuted as well.
	DeinterlaceForce
	// DeinterlaceNever leaves every image's row order exactly as
	// decompressed.
	DeinterlaceNever
)

// interlaceOrder returns, for a height-h image, the natural
// (destination) row of each transmitted row, in transmission order,
// under GIF's four-pass
// interlace ordering (§4.5 step 4: "rows starting at 0 step 8; 4 step
// 8; 2 step 4; 1 step 2").
func interlaceOrder(h int) []int {
	order := make([]int, 0, h)
	passes := [][2]int{{0, 8}, {4, 8}, {2, 4}, {1, 2}}
	for _, pass := range passes {
		for row := pass[0]; row < h; row += pass[1] {
			order = append(order, row)
		}
	}
	return order
}

// deinterlace reorders rows stored in interlaced transmission order
// back into natural top-to-bottom order. rows[i] is the i-th row as
// transmitted; the result's natural row r is rows[k] where
// interlaceOrder(h)[k] == r.
func deinterlace(rows [][]byte, h int) [][]byte {
	order := interlaceOrder(h)
	out := make([][]byte, h)
	for transmitted, natural := range order {
		out[natural] = rows[transmitted]
	}
	return out
}

// canvas is the mutable RGBA working surface the assembler composites
// frames onto (§4.5's `previous_state`).
type canvas struct {
	w, h   int
	pixels []color.RGBA
}

func newCanvas(w, h int, fill color.RGBA) *canvas {
	pixels := make([]color.RGBA, w*h)
	for i := range pixels {
		pixels[i] = fill
	}
	return &canvas{w: w, h: h, pixels: pixels}
}

func (c *canvas) clone() *canvas {
	out := &canvas{w: c.w, h: c.h, pixels: make([]color.RGBA, len(c.pixels))}
	copy(out.pixels, c.pixels)
	return out
}

// blit composites src (width sw, height sh) onto c at (left, top).
// Compositing rule (§4.5 step 6): overwrite the destination unless the
// source pixel's alpha != 255, in which case the destination pixel is
// kept. Full coverage short-circuits per-pixel bounds checks.
func (c *canvas) blit(src []color.RGBA, left, top, sw, sh int) {
	fullCoverage := left == 0 && top == 0 && sw == c.w && sh == c.h
	if fullCoverage {
		for i, p := range src {
			if p.A == 255 {
				c.pixels[i] = p
			}
		}
		return
	}
	for y := 0; y < sh; y++ {
		dy := top + y
		if dy < 0 || dy >= c.h {
			continue
		}
		for x := 0; x < sw; x++ {
			dx := left + x
			if dx < 0 || dx >= c.w {
				continue
			}
			p := src[y*sw+x]
			if p.A == 255 {
				c.pixels[dy*c.w+dx] = p
			}
		}
	}
}

// fillRect sets every pixel in the rectangle (left, top, w, h) to fill.
func (c *canvas) fillRect(left, top, w, h int, fill color.RGBA) {
	for y := 0; y < h; y++ {
		dy := top + y
		if dy < 0 || dy >= c.h {
			continue
		}
		for x := 0; x < w; x++ {
			dx := left + x
			if dx < 0 || dx >= c.w {
				continue
			}
			c.pixels[dy*c.w+dx] = fill
		}
	}
}

// FrameSequence is a finite, non-restartable, in-order iterator over a
// parsed GIF's images, performing LZW decompression and compositing
// lazily per Design Notes §9 ("Lazy frame sequence"): consumers pay
// decompression cost only for frames they actually touch.
type FrameSequence struct {
	stream *gifStream
	mode   DeinterlaceMode
	index  int
	state  *canvas
	done   bool
}

// newFrameSequence builds the lazy iterator plus an initial canvas
// sized to the logical screen, filled transparent if a GCT is
// present, else opaque black (Design Notes §9, Open Question
// decision).
func newFrameSequence(stream *gifStream, mode DeinterlaceMode) *FrameSequence {
	var initial color.RGBA
	if stream.screen.hasGCT {
		initial = color.RGBA{}
	} else {
		initial = color.RGBA{A: 255}
	}
	return &FrameSequence{
		stream: stream,
		mode:   mode,
		state:  newCanvas(stream.screen.width, stream.screen.height, initial),
	}
}

// Len reports the total frame count known from the parsed block list,
// before any decompression (§4.5).
func (s *FrameSequence) Len() int {
	return len(s.stream.images)
}

// Next decompresses and composites the next image block, returning
// the resulting Frame. The second return value is false once the
// sequence is exhausted.
func (s *FrameSequence) Next() (Frame, bool, error) {
	if s.done || s.index >= len(s.stream.images) {
		return Frame{}, false, nil
	}
	img := &s.stream.images[s.index]
	s.index++

	table, err := activeColorTable(&s.stream.screen, img)
	if err != nil {
		s.done = true
		return Frame{}, false, err
	}

	gce := resolveGraphicControl(img.gce)
	if gce.disposal >= 4 && gce.disposal <= 7 {
		s.done = true
		return Frame{}, false, newErr(UnknownDisposalMethod, "disposal method %d is reserved", gce.disposal)
	}

	indices, err := DecodeLZW(img.compressed, img.lzwMin)
	if err != nil {
		s.done = true
		return Frame{}, false, err
	}
	want := img.width * img.height
	if len(indices) < want {
		s.done = true
		return Frame{}, false, newErr(MalformedBlock, "decompressed %d indices, want %d", len(indices), want)
	}
	indices = indices[:want]

	interlaced := img.interlace
	switch s.mode {
	case DeinterlaceForce:
		interlaced = true
	case DeinterlaceNever:
		interlaced = false
	}
	if interlaced && img.height > 0 {
		rows := make([][]byte, img.height)
		rowLen := img.width
		for r := 0; r < img.height; r++ {
			rows[r] = indices[r*rowLen : (r+1)*rowLen]
		}
		rows = deinterlace(rows, img.height)
		flat := make([]byte, 0, len(indices))
		for _, row := range rows {
			flat = append(flat, row...)
		}
		indices = flat
	}

	src := indicesToRGBA(indices, table, gce)

	previous := s.state.clone()
	s.state.blit(src, img.left, img.top, img.width, img.height)

	frame := Frame{
		Pixels:  append([]color.RGBA(nil), s.state.pixels...),
		W:       s.state.w,
		H:       s.state.h,
		DelayMS: gce.delayCs * 10,
	}

	switch gce.disposal {
	case 0, 1:
		// Keep the composited canvas as-is for the next frame.
	case 2:
		bg := color.RGBA{} // transparent black (Design Notes §9 deviation)
		if !s.stream.screen.hasGCT {
			bg = color.RGBA{A: 255}
		}
		s.state.fillRect(img.left, img.top, img.width, img.height, bg)
	case 3:
		s.state = previous
	}

	return frame, true, nil
}

func activeColorTable(screen *logicalScreen, img *imageBlock) (ColorTable, error) {
	if img.hasLCT {
		return img.lct, nil
	}
	if screen.hasGCT {
		return screen.gct, nil
	}
	return nil, newErr(MissingColorTable, "image at (%d,%d) has neither LCT nor GCT", img.left, img.top)
}

func resolveGraphicControl(gce *graphicControl) graphicControl {
	if gce == nil {
		return graphicControl{}
	}
	return *gce
}

// indicesToRGBA maps palette indices to RGBA pixels, honoring the
// transparent index when the GCE enables it (§4.5 step 5).
func indicesToRGBA(indices []byte, table ColorTable, gce graphicControl) []color.RGBA {
	out := make([]color.RGBA, len(indices))
	for i, idx := range indices {
		if int(idx) >= len(table) {
			continue // zero value: transparent black, matches an out-of-range index decoding to nothing
		}
		entry := table[idx]
		if gce.hasTransparent && int(idx) == gce.transparent {
			out[i] = color.RGBA{R: entry.R, G: entry.G, B: entry.B, A: 0}
		} else {
			out[i] = color.RGBA{R: entry.R, G: entry.G, B: entry.B, A: 255}
		}
	}
	return out
}
