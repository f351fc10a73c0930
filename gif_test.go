package gifkit

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func solidFrame(w, h int, c color.RGBA, delayMS int) Frame {
	pixels := make([]color.RGBA, w*h)
	for i := range pixels {
		pixels[i] = c
	}
	return Frame{Pixels: pixels, W: w, H: h, DelayMS: delayMS}
}

func TestEncodeDecodeRoundTripSolidFrames(t *testing.T) {
	frames := []Frame{
		solidFrame(3, 2, color.RGBA{R: 255, A: 255}, 100),
		solidFrame(3, 2, color.RGBA{G: 255, A: 255}, 200),
		solidFrame(3, 2, color.RGBA{B: 255, A: 255}, 300),
	}
	img, err := EncodeAnimation(frames, image.Point{X: 3, Y: 2}, 1, "")
	if err != nil {
		t.Fatalf("EncodeAnimation: %v", err)
	}

	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(&buf, DeinterlaceAuto)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Size() != (image.Point{X: 3, Y: 2}) {
		t.Errorf("size: got %v, want 3x2", decoded.Size())
	}
	if decoded.FrameCount() != 3 {
		t.Fatalf("frame count: got %d, want 3", decoded.FrameCount())
	}
	wantDelays := []int{100, 200, 300}
	for i, f := range decoded.Frames() {
		if f.DelayMS != wantDelays[i] {
			t.Errorf("frame %d delay: got %d, want %d", i, f.DelayMS, wantDelays[i])
		}
		for _, p := range f.Pixels {
			if p != frames[i].Pixels[0] {
				t.Errorf("frame %d: pixel %+v != expected %+v", i, p, frames[i].Pixels[0])
				break
			}
		}
	}
	if decoded.LoopCount() != 1 {
		t.Errorf("loop count: got %d, want 1", decoded.LoopCount())
	}
}

func TestEncodeLoopCountEncodingProperty(t *testing.T) {
	cases := []struct {
		loopCount  int
		wantStored int
		wantExt    bool
	}{
		{0, 0, true},
		{1, 0, false},
		{2, 1, true},
		{5, 4, true},
	}
	for _, tc := range cases {
		frame := solidFrame(1, 1, color.RGBA{A: 255}, 10)
		img, err := EncodeAnimation([]Frame{frame}, image.Point{X: 1, Y: 1}, tc.loopCount, "")
		if err != nil {
			t.Fatalf("EncodeAnimation: %v", err)
		}
		var buf bytes.Buffer
		if err := img.Encode(&buf); err != nil {
			t.Fatalf("Encode: %v", err)
		}
		data := buf.Bytes()
		idx := bytes.Index(data, []byte("NETSCAPE2.0"))
		hasNetscape := idx >= 0
		if hasNetscape != tc.wantExt {
			t.Errorf("loopCount=%d: NETSCAPE present=%v, want %v", tc.loopCount, hasNetscape, tc.wantExt)
		}
		if hasNetscape {
			payloadStart := idx + len("NETSCAPE2.0") + 1 // skip sub-block length byte
			stored := int(data[payloadStart+1]) | int(data[payloadStart+2])<<8
			if stored != tc.wantStored {
				t.Errorf("loopCount=%d: stored count %d, want %d", tc.loopCount, stored, tc.wantStored)
			}
		}

		decoded, err := Decode(bytes.NewReader(buf.Bytes()), DeinterlaceAuto)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.LoopCount() != tc.loopCount {
			t.Errorf("loopCount=%d: decoded loop count %d", tc.loopCount, decoded.LoopCount())
		}
	}
}

func TestDecodeSingleWhitePixelScenario(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("GIF89a")
	buf.Write([]byte{1, 0, 1, 0, 0x80, 0, 0})
	buf.Write([]byte{255, 255, 255, 255, 255, 255}) // GCT {(255,255,255),(255,255,255)}
	buf.Write([]byte{blockImageDescriptor})
	buf.Write([]byte{0, 0, 0, 0, 1, 0, 1, 0, 0})
	buf.Write([]byte{2, 2, 0x44, 0x01, 0})
	buf.WriteByte(blockTrailer)

	img, err := Decode(&buf, DeinterlaceAuto)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.FrameCount() != 1 {
		t.Fatalf("expected 1 frame, got %d", img.FrameCount())
	}
	want := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if img.Frames()[0].Pixels[0] != want {
		t.Errorf("got %+v, want %+v", img.Frames()[0].Pixels[0], want)
	}
	if img.LoopCount() != 1 {
		t.Errorf("loop count: got %d, want 1", img.LoopCount())
	}
	if img.Comment() != "" {
		t.Errorf("expected no comment, got %q", img.Comment())
	}
}

func TestDecodeGIF87aSamePixel(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("GIF87a")
	buf.Write([]byte{1, 0, 1, 0, 0x80, 0, 0})
	buf.Write([]byte{255, 255, 255, 255, 255, 255})
	buf.Write([]byte{blockImageDescriptor})
	buf.Write([]byte{0, 0, 0, 0, 1, 0, 1, 0, 0})
	buf.Write([]byte{2, 2, 0x44, 0x01, 0})
	buf.WriteByte(blockTrailer)

	img, err := Decode(&buf, DeinterlaceAuto)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if img.Frames()[0].Pixels[0] != want {
		t.Errorf("got %+v, want %+v", img.Frames()[0].Pixels[0], want)
	}
	if img.Comment() != "" {
		t.Errorf("expected no comment for GIF87a, got %q", img.Comment())
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("NOTGIF9")
	_, err := Decode(&buf, DeinterlaceAuto)
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
	gifErr, ok := err.(*Error)
	if !ok || gifErr.Kind != InvalidMagic {
		t.Errorf("got %v, want InvalidMagic", err)
	}
}

func TestEncodeAnimationRejectsMismatchedFrameSize(t *testing.T) {
	frame := solidFrame(2, 2, color.RGBA{A: 255}, 10)
	_, err := EncodeAnimation([]Frame{frame}, image.Point{X: 3, Y: 3}, 1, "")
	if err == nil {
		t.Fatal("expected error for mismatched frame size")
	}
}

func TestFrameRGBAImageAndFrameFromRGBARoundTrip(t *testing.T) {
	src := solidFrame(2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255}, 50)
	rgba := src.RGBAImage()
	back := FrameFromRGBA(rgba, 50)
	if back.W != src.W || back.H != src.H {
		t.Fatalf("size mismatch: got %dx%d, want %dx%d", back.W, back.H, src.W, src.H)
	}
	for i, p := range back.Pixels {
		if p != src.Pixels[i] {
			t.Errorf("pixel %d: got %+v, want %+v", i, p, src.Pixels[i])
		}
	}
}

func TestCompressedSizeReportsBytesConsumed(t *testing.T) {
	frame := solidFrame(1, 1, color.RGBA{A: 255}, 10)
	img, _ := EncodeAnimation([]Frame{frame}, image.Point{X: 1, Y: 1}, 1, "")
	var buf bytes.Buffer
	if err := img.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n := buf.Len()
	decoded, err := Decode(bytes.NewReader(buf.Bytes()), DeinterlaceAuto)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.CompressedSize() != n {
		t.Errorf("CompressedSize: got %d, want %d", decoded.CompressedSize(), n)
	}
}
