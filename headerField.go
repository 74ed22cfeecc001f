package http2

import (
	"sync"
)

// HeaderField represents a name/value pair decoded from, or to be
// encoded into, an HPACK header block.
//
// Use AcquireHeaderField to acquire a HeaderField.
type HeaderField struct {
	name, value []byte
	sensible    bool
}

// String returns a string representation of the header field.
func (hf *HeaderField) String() string {
	return string(hf.AppendBytes(nil))
}

var headerPool = sync.Pool{
	New: func() interface{} {
		return &HeaderField{}
	},
}

// AcquireHeaderField gets a HeaderField from the pool.
func AcquireHeaderField() *HeaderField {
	return headerPool.Get().(*HeaderField)
}

// ReleaseHeaderField puts hf back into the pool.
func ReleaseHeaderField(hf *HeaderField) {
	hf.Reset()
	headerPool.Put(hf)
}

// Empty returns true if hf doesn't contain any name nor value.
func (hf *HeaderField) Empty() bool {
	return len(hf.name) == 0 && len(hf.value) == 0
}

// Reset resets header field values.
func (hf *HeaderField) Reset() {
	hf.name = hf.name[:0]
	hf.value = hf.value[:0]
	hf.sensible = false
}

// AppendBytes appends the "name: value" representation of hf to dst
// and returns the extended slice.
func (hf *HeaderField) AppendBytes(dst []byte) []byte {
	dst = append(dst, hf.name...)
	dst = append(dst, ':', ' ')
	dst = append(dst, hf.value...)
	return dst
}

// Size returns the header field size as RFC 7541 §4.1 defines it.
//
// https://tools.ietf.org/html/rfc7541#section-4.1
func (hf *HeaderField) Size() int {
	return len(hf.name) + len(hf.value) + 32
}

// CopyTo copies hf to other.
func (hf *HeaderField) CopyTo(other *HeaderField) {
	other.name = append(other.name[:0], hf.name...)
	other.value = append(other.value[:0], hf.value...)
	other.sensible = hf.sensible
}

// Set sets both name and value.
func (hf *HeaderField) Set(name, value string) {
	hf.SetName(name)
	hf.SetValue(value)
}

// SetBytes sets both name and value from byte slices.
func (hf *HeaderField) SetBytes(name, value []byte) {
	hf.SetNameBytes(name)
	hf.SetValueBytes(value)
}

// Name returns the name of the field.
func (hf *HeaderField) Name() string {
	return string(hf.name)
}

// Value returns the value of the field.
func (hf *HeaderField) Value() string {
	return string(hf.value)
}

// NameBytes returns the name bytes of the field.
func (hf *HeaderField) NameBytes() []byte {
	return hf.name
}

// ValueBytes returns the value bytes of the field.
func (hf *HeaderField) ValueBytes() []byte {
	return hf.value
}

// SetName sets the field name.
func (hf *HeaderField) SetName(name string) {
	hf.name = append(hf.name[:0], name...)
}

// SetValue sets the field value.
func (hf *HeaderField) SetValue(value string) {
	hf.value = append(hf.value[:0], value...)
}

// SetNameBytes sets the field name from a byte slice.
func (hf *HeaderField) SetNameBytes(name []byte) {
	hf.name = append(hf.name[:0], name...)
}

// SetValueBytes sets the field value from a byte slice.
func (hf *HeaderField) SetValueBytes(value []byte) {
	hf.value = append(hf.value[:0], value...)
}

// IsPseudo returns true if the field is a pseudo-header (its name
// starts with ':').
func (hf *HeaderField) IsPseudo() bool {
	return len(hf.name) > 0 && hf.name[0] == ':'
}

// IsSensible returns true if the field has been marked as sensitive
// and must always be encoded as a literal without indexing.
func (hf *HeaderField) IsSensible() bool {
	return hf.sensible
}

// SetSensible marks the field as sensitive.
func (hf *HeaderField) SetSensible(v bool) {
	hf.sensible = v
}
