package http2

const FrameOrigin FrameType = 0xc

var _ Frame = &Origin{}

// Origin advertises the set of origins for which the sending endpoint
// is willing to reuse this connection.
//
// Per RFC 8336 §2.4, ORIGIN frames MUST be sent on stream 0 and are
// ignored otherwise; this engine parses the frame regardless of
// stream and leaves that enforcement to the caller's router.
//
// https://tools.ietf.org/html/rfc8336
type Origin struct {
	origins [][]byte
}

func (o *Origin) Type() FrameType {
	return FrameOrigin
}

func (o *Origin) Reset() {
	o.origins = o.origins[:0]
}

func (o *Origin) CopyTo(other *Origin) {
	other.origins = other.origins[:0]
	for _, origin := range o.origins {
		other.origins = append(other.origins, append([]byte(nil), origin...))
	}
}

// Origins returns the decoded list of origin ASCII strings.
func (o *Origin) Origins() [][]byte {
	return o.origins
}

// AddOrigin appends an origin to the frame.
func (o *Origin) AddOrigin(b []byte) {
	o.origins = append(o.origins, append([]byte(nil), b...))
}

func (o *Origin) Deserialize(fr *FrameHeader) error {
	payload := fr.payload
	o.origins = o.origins[:0]

	for len(payload) > 0 {
		if len(payload) < 2 {
			return ErrMissingBytes
		}

		n := int(uint16(payload[0])<<8 | uint16(payload[1]))
		payload = payload[2:]
		if len(payload) < n {
			return ErrMissingBytes
		}

		o.origins = append(o.origins, append([]byte(nil), payload[:n]...))
		payload = payload[n:]
	}

	return nil
}

func (o *Origin) Serialize(fr *FrameHeader) {
	fr.payload = fr.payload[:0]

	for _, origin := range o.origins {
		fr.payload = append(fr.payload, byte(len(origin)>>8), byte(len(origin)))
		fr.payload = append(fr.payload, origin...)
	}
}
