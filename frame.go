package http2

import "sync"

// FrameType identifies the type of an HTTP/2 frame.
//
// https://tools.ietf.org/html/rfc7540#section-11.2
type FrameType uint8

const (
	minFrameType FrameType = FrameData
	maxFrameType FrameType = FrameOrigin
)

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "Data"
	case FrameHeaders:
		return "Headers"
	case FramePriority:
		return "Priority"
	case FrameResetStream:
		return "RstStream"
	case FrameSettings:
		return "Settings"
	case FramePushPromise:
		return "PushPromise"
	case FramePing:
		return "Ping"
	case FrameGoAway:
		return "GoAway"
	case FrameWindowUpdate:
		return "WindowUpdate"
	case FrameContinuation:
		return "Continuation"
	case FrameAltSvc:
		return "AltSvc"
	case FrameOrigin:
		return "Origin"
	}

	return "Unknown"
}

// FrameFlags is the 8-bit flag field carried by every frame header.
// Its meaning is type-specific.
type FrameFlags uint8

// Has returns true if f contains flag.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag == flag
}

// Add returns f with flag set.
func (f FrameFlags) Add(flag FrameFlags) FrameFlags {
	return f | flag
}

// Delete returns f with flag cleared.
func (f FrameFlags) Delete(flag FrameFlags) FrameFlags {
	return f &^ flag
}

// Frame is the common interface implemented by every frame body.
//
// A Frame only holds the type-specific payload; the 9-byte common
// header lives in FrameHeader, which wraps a Frame.
type Frame interface {
	// Type returns the frame's wire type.
	Type() FrameType

	// Deserialize parses frh's raw payload into the frame body.
	Deserialize(frh *FrameHeader) error

	// Serialize writes the frame body into frh's payload, setting
	// any body-dependent flags on frh.
	Serialize(frh *FrameHeader)
}

var framePools = [...]*sync.Pool{
	FrameData:         {New: func() interface{} { return &Data{} }},
	FrameHeaders:      {New: func() interface{} { return &Headers{} }},
	FramePriority:     {New: func() interface{} { return &Priority{} }},
	FrameResetStream:  {New: func() interface{} { return &RstStream{} }},
	FrameSettings:     {New: func() interface{} { return &Settings{} }},
	FramePushPromise:  {New: func() interface{} { return &PushPromise{} }},
	FramePing:         {New: func() interface{} { return &Ping{} }},
	FrameGoAway:       {New: func() interface{} { return &GoAway{} }},
	FrameWindowUpdate: {New: func() interface{} { return &WindowUpdate{} }},
	FrameContinuation: {New: func() interface{} { return &Continuation{} }},
	FrameAltSvc:       {New: func() interface{} { return &AltSvc{} }},
	FrameOrigin:       {New: func() interface{} { return &Origin{} }},
}

// AcquireFrame returns a pooled Frame body for the given type.
//
// Unknown types (t > FrameOrigin, or a value below it with no frame
// body of its own, such as 0xb) return an *Unknown frame, which
// carries the raw payload for the caller to discard or forward.
func AcquireFrame(t FrameType) Frame {
	if t > maxFrameType || framePools[t] == nil {
		return acquireUnknown(t)
	}

	return framePools[t].Get().(Frame)
}

type resetter interface {
	Reset()
}

// ReleaseFrame resets fr and returns it to its type pool.
//
// fr may be nil, in which case ReleaseFrame is a no-op.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}

	if u, ok := fr.(*Unknown); ok {
		releaseUnknown(u)
		return
	}

	t := fr.Type()
	if t > maxFrameType {
		return
	}

	if r, ok := fr.(resetter); ok {
		r.Reset()
	}

	framePools[t].Put(fr)
}

var unknownPool = sync.Pool{
	New: func() interface{} { return &Unknown{} },
}

// Unknown represents a frame of a type this engine does not recognize.
//
// Per RFC 7540 §4.1, implementations MUST ignore unknown frame types
// and flags, except when one arrives in the middle of a header block,
// which is a protocol error handled by the connection router.
type Unknown struct {
	kind    FrameType
	payload []byte
}

func acquireUnknown(t FrameType) *Unknown {
	u := unknownPool.Get().(*Unknown)
	u.kind = t
	return u
}

func releaseUnknown(u *Unknown) {
	u.kind = 0
	u.payload = u.payload[:0]
	unknownPool.Put(u)
}

// Type returns the frame's wire type.
func (u *Unknown) Type() FrameType { return u.kind }

// Payload returns the raw, unparsed frame payload.
func (u *Unknown) Payload() []byte { return u.payload }

func (u *Unknown) Reset() {
	u.kind = 0
	u.payload = u.payload[:0]
}

func (u *Unknown) Deserialize(frh *FrameHeader) error {
	u.kind = frh.Type()
	u.payload = append(u.payload[:0], frh.payload...)
	return nil
}

func (u *Unknown) Serialize(frh *FrameHeader) {
	frh.kind = u.kind
	frh.payload = append(frh.payload[:0], u.payload...)
}
