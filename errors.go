package http2

import (
	"errors"
	"fmt"
)

// ErrorCode is a 32-bit HTTP/2 error code, carried by RST_STREAM and
// GOAWAY frames.
//
// https://tools.ietf.org/html/rfc7540#section-7
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectionError      ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errCodeStrings = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	CancelError:          "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectionError:      "CONNECT_ERROR",
	EnhanceYourCalm:      "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (e ErrorCode) String() string {
	if int(e) < len(errCodeStrings) {
		return errCodeStrings[e]
	}
	return fmt.Sprintf("UNKNOWN_ERROR(0x%x)", uint32(e))
}

// Fatal reports whether e must be treated as connection-fatal
// regardless of which frame carried it.
//
// FlowControlError is classified fatal here even though a
// stream-local window violation can, in principle, be resolved with
// a RST_STREAM: this engine has no way to tell the two apart once the
// violation is observed, so it always escalates to the connection.
func (e ErrorCode) Fatal() bool {
	switch e {
	case FlowControlError, CompressionError, SettingsTimeoutError:
		return true
	}
	return false
}

// Error is the typed error surface returned by frame codec and
// connection operations.
//
// An Error always carries the ErrorCode that should be reported to
// the peer. frameType discriminates whether the error is meant to
// close a single stream (RST_STREAM) or the whole connection
// (GOAWAY); callers should dispatch on it with errors.As.
type Error struct {
	Code    ErrorCode
	frameType FrameType
	reason  string
}

func (e *Error) Error() string {
	if e.reason != "" {
		return fmt.Sprintf("http2: %s: %s", e.Code, e.reason)
	}
	return fmt.Sprintf("http2: %s", e.Code)
}

// IsGoAway reports whether e should be surfaced to the peer as GOAWAY.
func (e *Error) IsGoAway() bool {
	return e.frameType == FrameGoAway
}

// IsResetStream reports whether e should be surfaced to the peer as
// RST_STREAM.
func (e *Error) IsResetStream() bool {
	return e.frameType == FrameResetStream
}

// NewError builds a generic typed error not yet bound to a frame kind.
func NewError(code ErrorCode, reason string) error {
	return &Error{Code: code, reason: reason}
}

// NewGoAwayError builds an Error meant to terminate the connection.
func NewGoAwayError(code ErrorCode, reason string) error {
	return &Error{Code: code, frameType: FrameGoAway, reason: reason}
}

// NewResetStreamError builds an Error meant to terminate a single stream.
func NewResetStreamError(code ErrorCode, reason string) error {
	return &Error{Code: code, frameType: FrameResetStream, reason: reason}
}

// Sentinel errors returned by the frame codec.
var (
	ErrMissingBytes     = errors.New("http2: frame is missing required bytes")
	ErrUnknowFrameType  = errors.New("http2: unknown frame type")
	ErrZeroPayload      = errors.New("http2: frame payload length is zero")
	ErrBadPreface       = errors.New("http2: bad connection preface")
	ErrFrameMismatch    = errors.New("http2: frame type mismatch from called function")
	ErrNilWriter        = errors.New("http2: writer cannot be nil")
	ErrNilReader        = errors.New("http2: reader cannot be nil")
	ErrBitOverflow      = errors.New("http2: integer overflows the encoded bit width")
	ErrPayloadExceeds   = errors.New("http2: frame payload exceeds the negotiated maximum size")
	ErrInvalidStreamID  = errors.New("http2: invalid stream id")
	ErrInvalidDependency = errors.New("http2: stream cannot depend on itself")
)
