package gifkit

import "io"

// writeSubBlocks chops payload into <=255-byte chunks, each prefixed
// with its length, terminated by a zero-length byte. An empty payload
// still gets just the terminator (§4.3). Grounded in nicoGIF's
// ByteArray-based chunking (LZWEncoder.Encode's charOut/flushChar) and
// in wuffs's readBlockData accumulate-until-zero loop, inverted.
func writeSubBlocks(out *byteBuf, payload []byte) {
	for len(payload) > 255 {
		out.WriteByte(255)
		out.WriteBytes(payload[:255])
		payload = payload[255:]
	}
	if len(payload) > 0 {
		out.WriteByte(byte(len(payload)))
		out.WriteBytes(payload)
	}
	out.WriteByte(0)
}

// readSubBlocks accumulates sub-blocks from r until the terminator,
// returning the concatenated payload.
func readSubBlocks(r io.ByteReader) ([]byte, error) {
	var out []byte
	for {
		n, err := r.ReadByte()
		if err != nil {
			return nil, wrapIoErr(err, "reading sub-block length")
		}
		if n == 0 {
			return out, nil
		}
		for i := byte(0); i < n; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return nil, wrapIoErr(err, "reading sub-block data")
			}
			out = append(out, b)
		}
	}
}
