package http2

const FrameAltSvc FrameType = 0xa

var _ Frame = &AltSvc{}

// AltSvc carries an alternative service advertisement.
//
// Decoded for forwarding only; field-level validation against
// RFC 7838 is left to the caller.
//
// https://tools.ietf.org/html/rfc7838#section-4
type AltSvc struct {
	origin []byte // optional origin the advertisement applies to
	value  []byte // Alt-Svc field value
}

func (as *AltSvc) Type() FrameType {
	return FrameAltSvc
}

func (as *AltSvc) Reset() {
	as.origin = as.origin[:0]
	as.value = as.value[:0]
}

func (as *AltSvc) CopyTo(other *AltSvc) {
	other.origin = append(other.origin[:0], as.origin...)
	other.value = append(other.value[:0], as.value...)
}

// Origin returns the origin this advertisement applies to, or nil if
// it relies on the stream's associated origin.
func (as *AltSvc) Origin() []byte {
	return as.origin
}

// SetOrigin sets the origin the advertisement applies to.
func (as *AltSvc) SetOrigin(b []byte) {
	as.origin = append(as.origin[:0], b...)
}

// Value returns the raw Alt-Svc field value.
func (as *AltSvc) Value() []byte {
	return as.value
}

// SetValue sets the raw Alt-Svc field value.
func (as *AltSvc) SetValue(b []byte) {
	as.value = append(as.value[:0], b...)
}

func (as *AltSvc) Deserialize(fr *FrameHeader) error {
	payload := fr.payload
	if len(payload) < 2 {
		return ErrMissingBytes
	}

	originLen := int(uint16(payload[0])<<8 | uint16(payload[1]))
	payload = payload[2:]
	if len(payload) < originLen {
		return ErrMissingBytes
	}

	as.origin = append(as.origin[:0], payload[:originLen]...)
	as.value = append(as.value[:0], payload[originLen:]...)

	return nil
}

func (as *AltSvc) Serialize(fr *FrameHeader) {
	fr.payload = append(fr.payload[:0], byte(len(as.origin)>>8), byte(len(as.origin)))
	fr.payload = append(fr.payload, as.origin...)
	fr.payload = append(fr.payload, as.value...)
}
