package gifkit

import "math/bits"

// maxLzwCode is the hard 12-bit dictionary ceiling (§4.2): codes 0..4095
// are representable, so the dictionary holds at most 4096 entries.
const maxLzwCode = 4096

// noCode marks the empty prefix in the dictionary arena.
const noCode uint32 = 1<<32 - 1

// lzwDict is the growing LZW dictionary shared (in spirit, not in a
// single struct) by the encoder and decoder. It is realized as an
// arena of 4096 parent/suffix slots addressed directly by code value
// (Design Notes §9), which doubles as the string-reconstruction table
// the decoder needs. The encoder finds the code for a prefix+suffix
// pair through the childCode map.
type lzwDict struct {
	lzwMin    int
	clearCode uint32
	endCode   uint32
	nextCode  uint32
	parent    [maxLzwCode]uint32
	suffix    [maxLzwCode]byte
	childCode map[uint64]uint32 // encode-side: (parent<<8|suffix) -> code
}

func newLzwDict(lzwMin int) *lzwDict {
	d := &lzwDict{lzwMin: lzwMin}
	d.reset()
	return d
}

func (d *lzwDict) reset() {
	d.clearCode = 1 << uint(d.lzwMin)
	d.endCode = d.clearCode + 1
	for i := uint32(0); i < d.clearCode; i++ {
		d.parent[i] = noCode
		d.suffix[i] = byte(i)
	}
	d.nextCode = d.clearCode + 2
	d.childCode = make(map[uint64]uint32, 512)
}

func dictKey(parent uint32, suffix byte) uint64 {
	return uint64(parent)<<8 | uint64(suffix)
}

// lookup returns the code for prefix+suffix, if already assigned.
func (d *lzwDict) lookup(prefix uint32, suffix byte) (uint32, bool) {
	code, ok := d.childCode[dictKey(prefix, suffix)]
	return code, ok
}

// insert assigns the next free code to prefix+suffix. Returns false if
// the dictionary is already at the 12-bit ceiling.
func (d *lzwDict) insert(prefix uint32, suffix byte) bool {
	if d.nextCode >= maxLzwCode {
		return false
	}
	code := d.nextCode
	d.parent[code] = prefix
	d.suffix[code] = suffix
	d.childCode[dictKey(prefix, suffix)] = code
	d.nextCode++
	return true
}

// stringFor reconstructs the dictionary string for code, oldest byte
// first.
func (d *lzwDict) stringFor(code uint32) []byte {
	var rev []byte
	for code != noCode {
		rev = append(rev, d.suffix[code])
		code = d.parent[code]
	}
	out := make([]byte, len(rev))
	for i, b := range rev {
		out[len(rev)-1-i] = b
	}
	return out
}

// firstByte returns the leading byte of the dictionary string for
// code, without building the whole string.
func (d *lzwDict) firstByte(code uint32) byte {
	for d.parent[code] != noCode {
		code = d.parent[code]
	}
	return d.suffix[code]
}

// codeWidth is the bit width needed to write/read the next code,
// given the dictionary currently holds nextCode entries. This is the
// behavior nicoGIF's LZWEncoder.compress actually implements
// (freeEnt > maxcode triggers nBits++); it is equivalent to "the
// number of bits needed to represent nextCode", clamped to
// [lzwMin+1, 12]. See DESIGN.md's Open Question decision: spec.md's
// literal "ceil(log2(next_code))" phrasing does not match this at
// power-of-two boundaries, and this is the rule the round-trip tests
// require.
func codeWidth(nextCode uint32, lzwMin int) uint {
	w := bits.Len32(nextCode)
	floor := lzwMin + 1
	if w < floor {
		w = floor
	}
	if w > 12 {
		w = 12
	}
	return uint(w)
}

// EncodeLZW compresses pixels (palette indices) using a root alphabet
// of size 2^lzwMin, per §4.2.
//
// itemsSinceClear counts codes written since the most recent CLEAR
// (CLEAR itself is the first). DecodeLZW only starts inserting
// dictionary entries while processing its *second* code after a CLEAR
// (havePrev is false for the first, so there is nothing yet to extend),
// so its code width lags the dictionary's true size by one entry
// relative to a naive "recompute the width right after every insert"
// count. Deriving the emit width from itemsSinceClear instead of
// dict.nextCode directly reproduces that lag, keeping the encoder's
// width transitions in lockstep with the decoder's.
func EncodeLZW(pixels []byte, lzwMin int) []byte {
	dict := newLzwDict(lzwMin)
	bw := newBitWriter()

	itemsSinceClear := uint32(0)
	writeItem := func(code uint32) {
		var lag uint32
		if itemsSinceClear >= 2 {
			lag = itemsSinceClear - 2
		}
		width := codeWidth(dict.clearCode+2+lag, lzwMin)
		bw.writeCode(code, width)
		itemsSinceClear++
	}

	writeItem(dict.clearCode)

	var prevCode uint32
	havePrev := false

	for _, s := range pixels {
		if !havePrev {
			prevCode = uint32(s)
			havePrev = true
			continue
		}
		if child, ok := dict.lookup(prevCode, s); ok {
			prevCode = child
			continue
		}

		writeItem(prevCode)

		if dict.nextCode >= maxLzwCode {
			writeItem(dict.clearCode)
			dict.reset()
			itemsSinceClear = 1
		} else {
			dict.insert(prevCode, s)
		}
		prevCode = uint32(s)
	}

	if havePrev {
		writeItem(prevCode)
	}
	writeItem(dict.endCode)

	return bw.finish()
}

// DecodeLZW decompresses data produced by EncodeLZW (or any
// GIF-conformant LZW stream) back into a flat byte sequence, per
// §4.2.
func DecodeLZW(data []byte, lzwMin int) ([]byte, error) {
	dict := newLzwDict(lzwMin)
	br := newBitReader(data)
	width := codeWidth(dict.nextCode, lzwMin)

	var out []byte
	var prevCode uint32
	havePrev := false

	for {
		if br.exhausted() {
			return nil, newErr(LzwTruncated, "lzw stream ended before END code")
		}
		code := br.readCode(width)

		if code == dict.clearCode {
			dict.reset()
			width = codeWidth(dict.nextCode, lzwMin)
			havePrev = false
			continue
		}
		if code == dict.endCode {
			break
		}

		var entry []byte
		switch {
		case code < dict.nextCode:
			entry = dict.stringFor(code)
			// A full dictionary is not an error (§4.2/§8): a
			// conformant encoder keeps emitting max-width codes until
			// it sends CLEAR, so decoding just stops growing the
			// table instead of rejecting the stream.
			if havePrev && dict.nextCode < maxLzwCode {
				dict.insert(prevCode, entry[0])
			}
		case code == dict.nextCode:
			if !havePrev {
				return nil, newErr(LzwFirstAfterReset, "first code after reset is not in the base alphabet")
			}
			first := dict.firstByte(prevCode)
			prev := dict.stringFor(prevCode)
			entry = append(append([]byte{}, prev...), first)
			if dict.nextCode < maxLzwCode {
				dict.insert(prevCode, first)
			}
		default:
			return nil, newErr(MalformedBlock, "lzw code %d out of range (next=%d)", code, dict.nextCode)
		}

		out = append(out, entry...)
		prevCode = code
		havePrev = true
		width = codeWidth(dict.nextCode, lzwMin)
	}

	return out, nil
}
