package http2

import (
	"golang.org/x/net/http2/hpack"
)

// Huffman coding of header strings is delegated to
// golang.org/x/net/http2/hpack, which carries the canonical RFC 7541
// Appendix B code table. Reimplementing that 256-entry table by hand
// only invites silent transcription bugs in a codec whose whole job
// is byte-exactness.

// appendString appends the length-prefixed representation of s to
// dst, Huffman-coding it first when huffman is true.
//
// https://tools.ietf.org/html/rfc7541#section-5.2
func appendString(dst, s []byte, huffman bool) []byte {
	if !huffman {
		dst = appendInt(dst, 7, uint64(len(s)))
		return append(dst, s...)
	}

	encoded := hpack.AppendHuffmanString(nil, b2s(s))

	n := len(dst)
	dst = appendInt(dst, 7, uint64(len(encoded)))
	dst[n] |= 0x80

	return append(dst, encoded...)
}

// readString decodes a length-prefixed (optionally Huffman-coded)
// string from the front of b, returning the remaining bytes.
func readString(b []byte) ([]byte, []byte, error) {
	if len(b) == 0 {
		return b, nil, ErrMissingBytes
	}

	huffman := b[0]&0x80 != 0

	b, n, err := readInt(7, b)
	if err != nil {
		return b, nil, err
	}
	if uint64(len(b)) < n {
		return b, nil, ErrMissingBytes
	}

	raw := b[:n]
	b = b[n:]

	if !huffman {
		return b, append([]byte(nil), raw...), nil
	}

	dec, err := hpack.HuffmanDecode(nil, raw)
	if err != nil {
		return b, nil, err
	}

	return b, dec, nil
}
