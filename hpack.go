package http2

import (
	"bytes"
	"sync"

	"github.com/dgrr/h2e/http2utils"
)

const defaultDynamicTableSize = 4096

// HPACK implements the stateful header compression context described
// by RFC 7541, one instance per connection direction.
//
// Use AcquireHPack to obtain an HPACK from the pool and ReleaseHPack
// to return it.
//
// https://tools.ietf.org/html/rfc7541
type HPACK struct {
	// DisableCompression turns off Huffman coding for literal
	// strings. Output grows, but is cheaper to produce; useful for
	// debugging a header block by eye.
	DisableCompression bool

	fields  []*HeaderField // staged-for-encoding or most-recently-decoded header list
	dynamic []*HeaderField // dynamic table, newest entry first

	tableSize    int // bytes currently occupied by the dynamic table
	maxTableSize int // negotiated SETTINGS_HEADER_TABLE_SIZE
}

var hpackPool = sync.Pool{
	New: func() interface{} {
		hp := &HPACK{}
		hp.maxTableSize = defaultDynamicTableSize
		return hp
	},
}

// AcquireHPack returns an HPACK from the pool.
func AcquireHPack() *HPACK {
	return hpackPool.Get().(*HPACK)
}

// ReleaseHPack resets hp and returns it to the pool.
func ReleaseHPack(hp *HPACK) {
	hp.Reset()
	hpackPool.Put(hp)
}

// Reset clears both the staged/decoded header list and the dynamic
// table, restoring default settings.
func (hp *HPACK) Reset() {
	hp.releaseFields()

	for _, hf := range hp.dynamic {
		ReleaseHeaderField(hf)
	}
	hp.dynamic = hp.dynamic[:0]

	hp.tableSize = 0
	hp.maxTableSize = defaultDynamicTableSize
	hp.DisableCompression = false
}

// releaseFields clears the staged/decoded header list without
// touching the dynamic table.
func (hp *HPACK) releaseFields() {
	for _, hf := range hp.fields {
		ReleaseHeaderField(hf)
	}
	hp.fields = hp.fields[:0]
}

// SetMaxTableSize sets the maximum size the dynamic table may occupy,
// evicting entries immediately if it is shrinking.
func (hp *HPACK) SetMaxTableSize(size int) {
	hp.maxTableSize = size
	hp.evict()
}

// Add stages a header field to be encoded by the next call to Write.
func (hp *HPACK) Add(name, value string) {
	hf := AcquireHeaderField()
	hf.SetName(name)
	hf.SetValue(value)
	hp.fields = append(hp.fields, hf)
}

// Write encodes every staged field (added via Add) into dst, using
// incremental indexing, and returns the extended slice.
func (hp *HPACK) Write(dst []byte) ([]byte, error) {
	for _, hf := range hp.fields {
		dst = hp.AppendHeader(dst, hf, true)
	}
	return dst, nil
}

// Read decodes a full header block from b, appending each decoded
// field to hp.fields and updating the dynamic table as instructed.
// It returns any bytes left unconsumed (normally none).
func (hp *HPACK) Read(b []byte) ([]byte, error) {
	for len(b) > 0 {
		hf := AcquireHeaderField()

		n, err := hp.Next(hf, b)
		if err != nil {
			ReleaseHeaderField(hf)
			return b, err
		}

		b = b[n:]

		if hf.Empty() {
			// Dynamic table size update: no field produced.
			ReleaseHeaderField(hf)
			continue
		}

		hp.fields = append(hp.fields, hf)
	}

	return b, nil
}

// AppendHeader encodes a single field into dst using the RFC 7541
// representation best suited to the current table state, updating
// the dynamic table when store is true.
//
// This is the streaming, per-field counterpart to Add/Write and is
// the primary encoding entry point used while building HEADERS and
// CONTINUATION frames.
func (hp *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	if len(hf.ValueBytes()) == 0 && bytes.Equal(hf.NameBytes(), StringPath) {
		hf.SetValue("/")
	}

	fullIdx, nameIdx := hp.find(hf)

	if hf.IsSensible() {
		return hp.appendLiteral(dst, hf, nameIdx, 4, 0x10) // literal never indexed
	}

	if fullIdx > 0 {
		return appendIndexed(dst, fullIdx)
	}

	pattern, prefixBits := byte(0x00), uint(4)
	if store {
		pattern, prefixBits = 0x40, 6
	}

	dst = hp.appendLiteral(dst, hf, nameIdx, prefixBits, pattern)

	if store {
		hp.insertDynamic(hf)
	}

	return dst
}

// Next decodes a single representation from the front of b into hf.
//
// If b begins with a dynamic table size update, Next applies it and
// leaves hf empty; callers must check hf.Empty() before using it.
func (hp *HPACK) Next(hf *HeaderField, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrMissingBytes
	}

	orig := b
	c := b[0]

	switch {
	case c&0x80 != 0: // indexed header field
		rest, idx, err := readInt(7, b)
		if err != nil {
			return 0, err
		}
		entry, ok := hp.at(int(idx))
		if !ok {
			return 0, ErrMissingBytes
		}
		entry.CopyTo(hf)
		return len(orig) - len(rest), nil

	case c&0xc0 == 0x40: // literal with incremental indexing
		return hp.decodeLiteral(hf, orig, 6, true, false)

	case c&0xf0 == 0x10: // literal never indexed
		return hp.decodeLiteral(hf, orig, 4, false, true)

	case c&0xe0 == 0x20: // dynamic table size update
		rest, size, err := readInt(5, b)
		if err != nil {
			return 0, err
		}
		hp.SetMaxTableSize(int(size))
		hf.Reset()
		return len(orig) - len(rest), nil

	default: // literal without indexing (pattern 0000)
		return hp.decodeLiteral(hf, orig, 4, false, false)
	}
}

func (hp *HPACK) decodeLiteral(hf *HeaderField, b []byte, prefixBits int, store, sensible bool) (int, error) {
	orig := b

	b, idx, err := readInt(prefixBits, b)
	if err != nil {
		return 0, err
	}

	if idx == 0 {
		var name []byte
		b, name, err = readString(b)
		if err != nil {
			return 0, err
		}
		hf.SetNameBytes(name)
	} else {
		entry, ok := hp.at(int(idx))
		if !ok {
			return 0, ErrMissingBytes
		}
		hf.SetNameBytes(entry.NameBytes())
	}

	var value []byte
	b, value, err = readString(b)
	if err != nil {
		return 0, err
	}
	hf.SetValueBytes(value)
	hf.SetSensible(sensible)

	if store {
		hp.insertDynamic(hf)
	}

	return len(orig) - len(b), nil
}

func (hp *HPACK) appendLiteral(dst []byte, hf *HeaderField, nameIdx int, prefixBits uint, pattern byte) []byte {
	huffman := !hp.DisableCompression

	if nameIdx > 0 {
		n := len(dst)
		dst = appendInt(dst, prefixBits, uint64(nameIdx))
		dst[n] |= pattern
	} else {
		dst = append(dst, pattern)
		dst = appendString(dst, hf.NameBytes(), huffman)
	}

	return appendString(dst, hf.ValueBytes(), huffman)
}

func appendIndexed(dst []byte, idx int) []byte {
	n := len(dst)
	dst = appendInt(dst, 7, uint64(idx))
	dst[n] |= 0x80
	return dst
}

// find looks hf up in the combined static+dynamic address space,
// returning the fully-matching index (name and value) and, failing
// that, the first name-only match. Either may be -1 if absent.
func (hp *HPACK) find(hf *HeaderField) (fullIdx, nameIdx int) {
	fullIdx, nameIdx = -1, -1

	for i := range staticTable {
		if !bytes.Equal(staticTable[i].name, hf.name) {
			continue
		}
		if nameIdx == -1 {
			nameIdx = i + 1
		}
		if bytes.Equal(staticTable[i].value, hf.value) {
			return i + 1, nameIdx
		}
	}

	for i, d := range hp.dynamic {
		if !bytes.Equal(d.name, hf.name) {
			continue
		}
		idx := len(staticTable) + 1 + i
		if nameIdx == -1 {
			nameIdx = idx
		}
		if bytes.Equal(d.value, hf.value) {
			return idx, nameIdx
		}
	}

	return -1, nameIdx
}

// at returns the combined-address-space entry for idx (1-based).
func (hp *HPACK) at(idx int) (*HeaderField, bool) {
	if idx <= 0 {
		return nil, false
	}
	if idx <= len(staticTable) {
		return &staticTable[idx-1], true
	}

	i := idx - len(staticTable) - 1
	if i < 0 || i >= len(hp.dynamic) {
		return nil, false
	}
	return hp.dynamic[i], true
}

// insertDynamic copies hf into a new, newest dynamic table entry,
// evicting older entries as needed to respect maxTableSize.
func (hp *HPACK) insertDynamic(hf *HeaderField) {
	size := hf.Size()

	for hp.tableSize+size > hp.maxTableSize && len(hp.dynamic) > 0 {
		hp.evictOldest()
	}

	if size > hp.maxTableSize {
		return // entry alone exceeds the table; left unindexed per RFC 7541 §4.4
	}

	cp := AcquireHeaderField()
	hf.CopyTo(cp)

	hp.dynamic = append(hp.dynamic, nil)
	copy(hp.dynamic[1:], hp.dynamic)
	hp.dynamic[0] = cp

	hp.tableSize += size
}

func (hp *HPACK) evict() {
	for hp.tableSize > hp.maxTableSize && len(hp.dynamic) > 0 {
		hp.evictOldest()
	}
}

func (hp *HPACK) evictOldest() {
	last := hp.dynamic[len(hp.dynamic)-1]
	hp.tableSize -= last.Size()
	hp.dynamic = hp.dynamic[:len(hp.dynamic)-1]
	ReleaseHeaderField(last)
}

// appendInt appends the HPACK variable-length integer encoding of i,
// using an n-bit prefix, growing dst as needed.
//
// https://tools.ietf.org/html/rfc7541#section-5.1
func appendInt(dst []byte, n uint, i uint64) []byte {
	max := uint64(1<<n) - 1

	if i < max {
		return append(dst, byte(i))
	}

	dst = append(dst, byte(max))
	i -= max

	for i >= 128 {
		dst = append(dst, byte(0x80|(i&0x7f)))
		i >>= 7
	}

	return append(dst, byte(i))
}

// readInt decodes an HPACK variable-length integer with an n-bit
// prefix from the front of b, returning the remaining bytes.
func readInt(n int, b []byte) ([]byte, uint64, error) {
	if len(b) == 0 {
		return b, 0, ErrMissingBytes
	}

	max := uint64(1<<uint(n)) - 1
	v := uint64(b[0]) & max
	b = b[1:]

	if v < max {
		return b, v, nil
	}

	var m uint
	for {
		if len(b) == 0 {
			return b, 0, ErrMissingBytes
		}
		c := b[0]
		b = b[1:]
		v += uint64(c&0x7f) << m
		if c&0x80 == 0 {
			break
		}
		m += 7
		if m >= 63 {
			return b, 0, ErrBitOverflow
		}
	}

	return b, v, nil
}

func b2s(b []byte) string {
	return http2utils.FastBytesToString(b)
}

func s2b(s string) []byte {
	return http2utils.FastStringToBytes(s)
}
