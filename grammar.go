package gifkit

import (
	"bufio"
	"io"
)

// Block labels and introducers (§4.4).
const (
	blockImageDescriptor = 0x2C
	blockExtension       = 0x21
	blockTrailer         = 0x3B

	labelGraphicControl = 0xF9
	labelComment        = 0xFE
	labelApplication    = 0xFF
)

// logicalScreen is the parsed Logical Screen Descriptor (§4.4).
type logicalScreen struct {
	width, height int
	hasGCT        bool
	colorRes      int
	sortFlag      bool
	gctSize       int // raw 3-bit field; entry count is 2^(gctSize+1)
	bgColorIndex  int
	pixelAspect   int
	gct           ColorTable
}

// imageBlock is a fully parsed Image Descriptor plus its compressed
// body, still carrying whatever GCE was pending when it was
// encountered (§4.4, §4.5 step 2).
type imageBlock struct {
	left, top, width, height int
	hasLCT                   bool
	interlace                bool
	lct                      ColorTable
	lzwMin                   int
	compressed               []byte
	gce                      *graphicControl // nil if none was pending
}

// graphicControl is the transient per-image state from a Graphic
// Control Extension (§3 "Graphic Control state").
type graphicControl struct {
	disposal       int
	userInput      bool
	hasTransparent bool
	transparent    int
	delayCs        int
}

// gifStream is the fully parsed block list: everything the grammar
// codec extracts from a byte stream before animation assembly begins
// (§4.5: "a total frame count is known from the parsed block list
// before decompression begins").
type gifStream struct {
	screen    logicalScreen
	images    []imageBlock
	comment   string
	loopCount int // 1 if no NETSCAPE extension was seen
}

// parseGIF reads magic, the Logical Screen Descriptor, optional GCT,
// and then dispatches blocks by their first byte until the trailer,
// mirroring the dispatch-by-first-byte loop in
// google-wuffs/script/extract-giflzw.go generalized to actually decode
// pixel data. The reader need only support forward-sequential reads
// (§5).
func parseGIF(r io.Reader, obs *observer) (*gifStream, error) {
	br := bufio.NewReader(r)

	if err := readMagic(br); err != nil {
		return nil, err
	}

	screen, err := readLogicalScreen(br)
	if err != nil {
		return nil, err
	}

	stream := &gifStream{screen: *screen, loopCount: 1}

	var pendingGCE *graphicControl

	for {
		label, err := br.ReadByte()
		if err != nil {
			return nil, wrapIoErr(err, "reading block introducer")
		}

		switch label {
		case blockTrailer:
			return stream, nil

		case blockImageDescriptor:
			img, err := readImageDescriptor(br)
			if err != nil {
				return nil, err
			}
			img.gce = pendingGCE
			pendingGCE = nil
			stream.images = append(stream.images, *img)

		case blockExtension:
			extLabel, err := br.ReadByte()
			if err != nil {
				return nil, wrapIoErr(err, "reading extension label")
			}
			switch extLabel {
			case labelGraphicControl:
				gce, err := readGraphicControl(br)
				if err != nil {
					return nil, err
				}
				pendingGCE = gce

			case labelComment:
				payload, err := readSubBlocks(br)
				if err != nil {
					return nil, err
				}
				if stream.comment != "" {
					obs.notice(Notice{Kind: "comment-overwritten", Label: labelComment})
				}
				stream.comment = string(payload) // last-writer-wins (§7)

			case labelApplication:
				loop, handled, err := readApplicationExtension(br, obs)
				if err != nil {
					return nil, err
				}
				if handled {
					stream.loopCount = loop
				}

			default:
				payload, err := readSubBlocks(br)
				if err != nil {
					return nil, err
				}
				obs.notice(Notice{Kind: "unknown-extension", Label: extLabel, Detail: byteHex(extLabel)})
				_ = payload
			}

		default:
			return nil, newErr(MalformedBlock, "unknown block introducer 0x%02X", label)
		}
	}
}

func byteHex(b byte) string {
	const hex = "0123456789ABCDEF"
	return string([]byte{'0', 'x', hex[b>>4], hex[b&0xF]})
}

func readMagic(r io.Reader) error {
	var buf [6]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return wrapIoErr(err, "reading magic")
	}
	s := string(buf[:])
	if s != "GIF89a" && s != "GIF87a" {
		return newErr(InvalidMagic, "magic %q is neither GIF89a nor GIF87a", s)
	}
	return nil
}

func readUint16LE(r io.ByteReader) (int, error) {
	lo, err := r.ReadByte()
	if err != nil {
		return 0, wrapIoErr(err, "reading u16 low byte")
	}
	hi, err := r.ReadByte()
	if err != nil {
		return 0, wrapIoErr(err, "reading u16 high byte")
	}
	return int(lo) | int(hi)<<8, nil
}

func readLogicalScreen(r *bufio.Reader) (*logicalScreen, error) {
	w, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	h, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	packed, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading LSD packed byte")
	}
	bg, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading background color index")
	}
	aspect, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading pixel aspect ratio")
	}

	screen := &logicalScreen{
		width:        w,
		height:       h,
		hasGCT:       packed&0x80 != 0,
		colorRes:     int(packed>>4) & 0x07,
		sortFlag:     packed&0x08 != 0,
		gctSize:      int(packed) & 0x07,
		bgColorIndex: int(bg),
		pixelAspect:  int(aspect),
	}

	if screen.hasGCT {
		table, err := readColorTable(r, screen.gctSize)
		if err != nil {
			return nil, err
		}
		screen.gct = table
	}

	return screen, nil
}

func readColorTable(r io.Reader, size int) (ColorTable, error) {
	n := 1 << uint(size+1)
	table := make(ColorTable, n)
	buf := make([]byte, 3*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, wrapIoErr(err, "reading color table")
	}
	for i := 0; i < n; i++ {
		table[i].R = buf[3*i]
		table[i].G = buf[3*i+1]
		table[i].B = buf[3*i+2]
		table[i].A = 255
	}
	return table, nil
}

func readImageDescriptor(r *bufio.Reader) (*imageBlock, error) {
	left, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	top, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	width, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	height, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	packed, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading image descriptor packed byte")
	}

	img := &imageBlock{
		left:      left,
		top:       top,
		width:     width,
		height:    height,
		hasLCT:    packed&0x80 != 0,
		interlace: packed&0x40 != 0,
	}
	lctSize := int(packed) & 0x07

	if img.hasLCT {
		table, err := readColorTable(r, lctSize)
		if err != nil {
			return nil, err
		}
		img.lct = table
	}

	lzwMin, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading lzw_min")
	}
	img.lzwMin = int(lzwMin)

	compressed, err := readSubBlocks(r)
	if err != nil {
		return nil, err
	}
	img.compressed = compressed

	return img, nil
}

func readGraphicControl(r *bufio.Reader) (*graphicControl, error) {
	blockSize, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading GCE block size")
	}
	if blockSize != 4 {
		return nil, newErr(MalformedBlock, "GCE block_size %d != 4", blockSize)
	}
	packed, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading GCE packed byte")
	}
	delay, err := readUint16LE(r)
	if err != nil {
		return nil, err
	}
	transparent, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading GCE transparent index")
	}
	terminator, err := r.ReadByte()
	if err != nil {
		return nil, wrapIoErr(err, "reading GCE terminator")
	}
	if terminator != 0 {
		return nil, newErr(MalformedBlock, "GCE terminator 0x%02X != 0", terminator)
	}

	return &graphicControl{
		disposal:       int(packed>>2) & 0x07,
		userInput:      packed&0x02 != 0,
		hasTransparent: packed&0x01 != 0,
		transparent:    int(transparent),
		delayCs:        delay,
	}, nil
}

// readApplicationExtension reads an Application Extension, recognizing
// NETSCAPE 2.0's loop-count payload. Any other app_id/payload is
// consumed and surfaced to the observer, per §4.4's "unknown labels"
// clause extended to unrecognized application payloads.
func readApplicationExtension(r *bufio.Reader, obs *observer) (loopCount int, handled bool, err error) {
	blockSize, err := r.ReadByte()
	if err != nil {
		return 0, false, wrapIoErr(err, "reading application extension block size")
	}
	if blockSize != 11 {
		return 0, false, newErr(MalformedBlock, "application extension block_size %d != 11", blockSize)
	}
	var idAuth [11]byte
	if _, err := io.ReadFull(r, idAuth[:]); err != nil {
		return 0, false, wrapIoErr(err, "reading application id/auth code")
	}
	appID := string(idAuth[:8])
	auth := string(idAuth[8:11])

	payload, err := readSubBlocks(r)
	if err != nil {
		return 0, false, err
	}

	if appID == "NETSCAPE" && auth == "2.0" && len(payload) == 3 && payload[0] == 0x01 {
		stored := int(payload[1]) | int(payload[2])<<8
		if stored == 0 {
			return 0, true, nil
		}
		return stored + 1, true, nil
	}

	obs.notice(Notice{Kind: "unknown-app-extension", Label: labelApplication, Detail: appID})
	return 0, false, nil
}

// writeGIF serializes a gifStream as GIF89a, always with a GCT,
// non-interlaced images with no LCT (§4.4's serializer contract).
func writeGIF(w io.Writer, stream *gifStream) error {
	buf := newByteBuf()

	buf.WriteString("GIF89a")

	writeLogicalScreen(buf, &stream.screen)

	if stream.comment != "" {
		writeCommentExtension(buf, stream.comment)
	}

	for i := range stream.images {
		img := &stream.images[i]
		if img.gce != nil {
			writeGraphicControl(buf, img.gce)
		}
		writeImageDescriptor(buf, img)
	}

	if stream.loopCount != 1 {
		writeNetscapeExtension(buf, stream.loopCount)
	}

	buf.WriteByte(blockTrailer)

	_, err := w.Write(buf.Bytes())
	if err != nil {
		return wrapIoErr(err, "writing gif stream")
	}
	return nil
}

func writeLogicalScreen(buf *byteBuf, s *logicalScreen) {
	buf.WriteUint16LE(s.width)
	buf.WriteUint16LE(s.height)

	packed := byte(0)
	if s.hasGCT {
		packed |= 0x80
	}
	packed |= byte(s.colorRes&0x07) << 4
	if s.sortFlag {
		packed |= 0x08
	}
	packed |= byte(s.gctSize & 0x07)
	buf.WriteByte(packed)

	buf.WriteByte(byte(s.bgColorIndex))
	buf.WriteByte(byte(s.pixelAspect))

	if s.hasGCT {
		writeColorTable(buf, s.gct)
	}
}

func writeColorTable(buf *byteBuf, table ColorTable) {
	for _, c := range table {
		buf.WriteByte(c.R)
		buf.WriteByte(c.G)
		buf.WriteByte(c.B)
	}
}

func writeGraphicControl(buf *byteBuf, gce *graphicControl) {
	buf.WriteByte(blockExtension)
	buf.WriteByte(labelGraphicControl)
	buf.WriteByte(4)

	packed := byte(gce.disposal&0x07) << 2
	if gce.userInput {
		packed |= 0x02
	}
	if gce.hasTransparent {
		packed |= 0x01
	}
	buf.WriteByte(packed)

	buf.WriteUint16LE(gce.delayCs)
	buf.WriteByte(byte(gce.transparent))
	buf.WriteByte(0)
}

func writeImageDescriptor(buf *byteBuf, img *imageBlock) {
	buf.WriteByte(blockImageDescriptor)
	buf.WriteUint16LE(img.left)
	buf.WriteUint16LE(img.top)
	buf.WriteUint16LE(img.width)
	buf.WriteUint16LE(img.height)
	buf.WriteByte(0) // always non-interlaced, no LCT (§4.4)

	buf.WriteByte(byte(img.lzwMin))
	writeSubBlocks(buf, img.compressed)
}

func writeCommentExtension(buf *byteBuf, comment string) {
	buf.WriteByte(blockExtension)
	buf.WriteByte(labelComment)
	writeSubBlocks(buf, []byte(comment))
}

func writeNetscapeExtension(buf *byteBuf, loopCount int) {
	buf.WriteByte(blockExtension)
	buf.WriteByte(labelApplication)
	buf.WriteByte(11)
	buf.WriteString("NETSCAPE2.0")

	stored := 0
	if loopCount != 0 {
		stored = loopCount - 1
	}
	payload := []byte{0x01, byte(stored & 0xFF), byte((stored >> 8) & 0xFF)}
	writeSubBlocks(buf, payload)
}
