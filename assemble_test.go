package gifkit

import (
	"image/color"
	"testing"
)

func TestInterlaceInvolution(t *testing.T) {
	for _, h := range []int{1, 2, 7, 8, 9, 16, 33, 100} {
		order := interlaceOrder(h)
		if len(order) != h {
			t.Fatalf("h=%d: order length %d, want %d", h, len(order), h)
		}

		rows := make([][]byte, h)
		for i := 0; i < h; i++ {
			rows[i] = []byte{byte(order[i])} // transmitted row carries its natural index
		}
		restored := deinterlace(rows, h)
		for natural, row := range restored {
			if int(row[0]) != natural {
				t.Errorf("h=%d: natural row %d got content %d", h, natural, row[0])
			}
		}
	}
}

func TestCompositeFullCoverageIdempotence(t *testing.T) {
	w, h := 4, 3
	c := newCanvas(w, h, color.RGBA{})
	src := make([]color.RGBA, w*h)
	for i := range src {
		src[i] = color.RGBA{R: byte(i), G: 1, B: 2, A: 255}
	}
	// One pixel kept transparent: destination must survive unchanged there.
	src[5] = color.RGBA{R: 9, G: 9, B: 9, A: 0}
	dest5Before := c.pixels[5]

	c.blit(src, 0, 0, w, h)

	for i, p := range src {
		if i == 5 {
			if c.pixels[i] != dest5Before {
				t.Errorf("pixel 5 (alpha<255) should keep destination: got %+v, want %+v", c.pixels[i], dest5Before)
			}
			continue
		}
		if c.pixels[i] != p {
			t.Errorf("pixel %d: got %+v, want %+v", i, c.pixels[i], p)
		}
	}
}

func TestIndicesToRGBATransparency(t *testing.T) {
	table := ColorTable{
		{R: 255, G: 255, B: 255, A: 255},
		{R: 10, G: 20, B: 30, A: 255},
	}
	gce := graphicControl{hasTransparent: true, transparent: 1}
	indices := []byte{0, 1, 0, 1}

	out := indicesToRGBA(indices, table, gce)

	if out[0].A != 255 || out[2].A != 255 {
		t.Errorf("index 0 pixels should be opaque: %+v", out)
	}
	if out[1].A != 0 || out[3].A != 0 {
		t.Errorf("index 1 pixels should be transparent: %+v", out)
	}
	if out[1].R != 10 || out[1].G != 20 || out[1].B != 30 {
		t.Errorf("transparent pixel should keep its palette RGB: %+v", out[1])
	}
}

func buildSingleFrameStream(gce *graphicControl, disposal int) *gifStream {
	screen := logicalScreen{
		width: 2, height: 2, hasGCT: true, gctSize: 0,
		gct: ColorTable{
			{R: 255, A: 255},
			{G: 255, A: 255},
		},
	}
	indices := []byte{0, 1, 1, 0}
	compressed := EncodeLZW(indices, 2)
	gce.disposal = disposal
	return &gifStream{
		screen: screen,
		images: []imageBlock{
			{left: 0, top: 0, width: 2, height: 2, lzwMin: 2, compressed: compressed, gce: gce},
		},
		loopCount: 1,
	}
}

func TestDisposalMethodKeep(t *testing.T) {
	stream := buildSingleFrameStream(&graphicControl{}, 1)
	seq := newFrameSequence(stream, DeinterlaceAuto)
	frame, ok, err := seq.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if frame.Pixels[0].R != 255 {
		t.Errorf("expected red pixel in the emitted frame")
	}
	if seq.state.pixels[0].R != 255 || seq.state.pixels[0].A != 255 {
		t.Errorf("expected red pixel kept on the canvas under disposal=1, got %+v", seq.state.pixels[0])
	}
}

func TestDisposalMethodRestoreToBackground(t *testing.T) {
	stream := buildSingleFrameStream(&graphicControl{}, 2)
	seq := newFrameSequence(stream, DeinterlaceAuto)
	if _, ok, err := seq.Next(); err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	// After disposal=2, the assembler's internal canvas should have
	// been cleared to transparent within the sub-image rectangle.
	if seq.state.pixels[0].A != 0 {
		t.Errorf("expected transparent background after disposal=2, got %+v", seq.state.pixels[0])
	}
}

func TestDisposalMethodRestoreToPrevious(t *testing.T) {
	stream := buildSingleFrameStream(&graphicControl{}, 3)
	stream.images = append(stream.images, stream.images[0])
	seq := newFrameSequence(stream, DeinterlaceAuto)

	first, _, err := seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	_, _, err = seq.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	// disposal=3 restores the canvas to what it was before the first
	// composite (all transparent, since a GCT is present).
	if seq.state.pixels[0].A != 0 {
		t.Errorf("expected canvas restored to pre-composite state after disposal=3")
	}
	if first.Pixels[0].R != 255 {
		t.Errorf("first frame should still show the composited red pixel")
	}
}

func TestReservedDisposalMethodFails(t *testing.T) {
	stream := buildSingleFrameStream(&graphicControl{}, 5)
	seq := newFrameSequence(stream, DeinterlaceAuto)
	_, _, err := seq.Next()
	if err == nil {
		t.Fatal("expected error for reserved disposal method")
	}
	gifErr, ok := err.(*Error)
	if !ok || gifErr.Kind != UnknownDisposalMethod {
		t.Errorf("got %v, want UnknownDisposalMethod", err)
	}
}

func TestMissingColorTableFails(t *testing.T) {
	stream := &gifStream{
		screen: logicalScreen{width: 1, height: 1},
		images: []imageBlock{{left: 0, top: 0, width: 1, height: 1, lzwMin: 2, compressed: EncodeLZW([]byte{0}, 2)}},
	}
	seq := newFrameSequence(stream, DeinterlaceAuto)
	_, _, err := seq.Next()
	if err == nil {
		t.Fatal("expected error for missing color table")
	}
	gifErr, ok := err.(*Error)
	if !ok || gifErr.Kind != MissingColorTable {
		t.Errorf("got %v, want MissingColorTable", err)
	}
}
