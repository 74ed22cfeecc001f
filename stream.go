package http2

// StreamState is one of the states in the RFC 7540 §5.1 stream
// lifecycle, plus the two transient states (half_closing, closing)
// spec §4.8 adds to defer signal emission until after the triggering
// frame has been fully dispatched.
type StreamState int8

const (
	StreamStateIdle StreamState = iota
	StreamStateReservedLocal
	StreamStateReservedRemote
	StreamStateOpen
	StreamStateHalfClosedLocal
	StreamStateHalfClosedRemote
	StreamStateHalfClosing
	StreamStateClosing
	StreamStateClosed
)

func (ss StreamState) String() string {
	switch ss {
	case StreamStateIdle:
		return "Idle"
	case StreamStateReservedLocal:
		return "ReservedLocal"
	case StreamStateReservedRemote:
		return "ReservedRemote"
	case StreamStateOpen:
		return "Open"
	case StreamStateHalfClosedLocal:
		return "HalfClosedLocal"
	case StreamStateHalfClosedRemote:
		return "HalfClosedRemote"
	case StreamStateHalfClosing:
		return "HalfClosing"
	case StreamStateClosing:
		return "Closing"
	case StreamStateClosed:
		return "Closed"
	}

	return "Unknown"
}

// CloseReason records why a stream moved to StreamStateClosed, so the
// connection can tell a local cancellation from a peer reset without
// inspecting the RST_STREAM error code again.
type CloseReason int8

const (
	CloseNone CloseReason = iota
	CloseLocalReset
	CloseRemoteReset
	CloseLocalClosed
	CloseRemoteClosed
	CloseHalfClosedLocal
	CloseHalfClosedRemote
)

// Stream is one bidirectional sequence of frames within a Connection.
//
// A Stream is not safe for concurrent use; the owning Connection
// serializes every access, per the engine's single-threaded model.
type Stream struct {
	id    uint32
	state StreamState
	close CloseReason

	// flow control, RFC 7540 §6.9. Signed: a SETTINGS-driven decrease
	// of the initial window can push remoteWindow negative.
	localWindow  int
	remoteWindow int

	// priority, stored but never scheduled on, per spec §9's Open
	// Question decision.
	weight     uint8
	dependency uint32
	exclusive  bool

	outbound FlowBuffer

	contentLength    int64
	hasContentLength bool

	expectTrailers [][]byte
	sawStatus      bool
	waitingTrailer bool

	errored bool

	data interface{}
}

// NewStream creates a Stream in the idle state with both flow-control
// windows set to win.
func NewStream(id uint32, win int, data interface{}) *Stream {
	return &Stream{
		id:           id,
		state:        StreamStateIdle,
		localWindow:  win,
		remoteWindow: win,
		weight:       defaultWeight,
		data:         data,
	}
}

const defaultWeight = 16 // RFC 7540 §5.3.5 default stream weight

func (s *Stream) ID() uint32 {
	return s.id
}

func (s *Stream) SetID(id uint32) {
	s.id = id
}

func (s *Stream) State() StreamState {
	return s.state
}

func (s *Stream) SetState(state StreamState) {
	s.state = state
}

func (s *Stream) CloseReason() CloseReason {
	return s.close
}

// Active reports whether the stream counts toward
// SETTINGS_MAX_CONCURRENT_STREAMS, per spec §3's invariant: only
// open/half_closed/half_closing/closing streams count, never reserved
// or idle ones.
func (s *Stream) Active() bool {
	switch s.state {
	case StreamStateOpen, StreamStateHalfClosedLocal, StreamStateHalfClosedRemote,
		StreamStateHalfClosing, StreamStateClosing:
		return true
	}
	return false
}

func (s *Stream) Window() int {
	return s.remoteWindow
}

func (s *Stream) SetWindow(win int) {
	s.remoteWindow = win
}

func (s *Stream) IncrWindow(win int) {
	s.remoteWindow += win
}

func (s *Stream) LocalWindow() int {
	return s.localWindow
}

func (s *Stream) SetLocalWindow(win int) {
	s.localWindow = win
}

func (s *Stream) IncrLocalWindow(win int) {
	s.localWindow += win
}

func (s *Stream) Weight() uint8 {
	return s.weight
}

func (s *Stream) Dependency() uint32 {
	return s.dependency
}

func (s *Stream) Exclusive() bool {
	return s.exclusive
}

// SetPriority updates the stored (but never scheduled-on) priority
// parameters, driven either by a PRIORITY frame or a HEADERS priority
// prefix. Per spec §4.8, PRIORITY never changes stream state.
func (s *Stream) SetPriority(weight uint8, dependency uint32, exclusive bool) {
	s.weight = weight
	s.dependency = dependency
	s.exclusive = exclusive
}

func (s *Stream) Outbound() *FlowBuffer {
	return &s.outbound
}

func (s *Stream) Data() interface{} {
	return s.data
}

// SetData attaches caller-owned state to the stream, e.g. an
// adaptor's in-flight request/response pair. The connection never
// reads or releases it.
func (s *Stream) SetData(data interface{}) {
	s.data = data
}

// SetContentLength records the advertised content-length so inbound
// DATA can be checked against it.
func (s *Stream) SetContentLength(n int64) {
	s.contentLength = n
	s.hasContentLength = true
}

// ConsumeContentLength decrements the remaining expected length by n,
// returning a protocol error if it would go negative.
func (s *Stream) ConsumeContentLength(n int) error {
	if !s.hasContentLength {
		return nil
	}
	s.contentLength -= int64(n)
	if s.contentLength < 0 {
		return NewGoAwayError(ProtocolError, "data exceeds declared content-length")
	}
	return nil
}

// SetExpectTrailers records the trailer field names advertised by a
// prior `trailer:` header, and marks the stream as waiting for them.
func (s *Stream) SetExpectTrailers(names [][]byte) {
	s.expectTrailers = names
	s.waitingTrailer = len(names) > 0
}

// CheckTrailers verifies that got contains exactly the names
// previously advertised via SetExpectTrailers.
func (s *Stream) CheckTrailers(got []*HeaderField) error {
	if !s.waitingTrailer {
		return nil
	}
	if len(got) != len(s.expectTrailers) {
		return NewGoAwayError(ProtocolError, "trailer field count mismatch")
	}
	for _, want := range s.expectTrailers {
		found := false
		for _, hf := range got {
			if string(hf.NameBytes()) == string(want) {
				found = true
				break
			}
		}
		if !found {
			return NewGoAwayError(ProtocolError, "missing advertised trailer")
		}
	}
	s.waitingTrailer = false
	return nil
}

// SendHeaders transitions the stream on an outbound HEADERS, per the
// idle/reserved_local rows of spec §4.8's table.
func (s *Stream) SendHeaders(endStream bool) {
	switch s.state {
	case StreamStateIdle:
		if endStream {
			s.state = StreamStateHalfClosedLocal
		} else {
			s.state = StreamStateOpen
		}
	case StreamStateReservedLocal:
		if endStream {
			s.state = StreamStateClosing
			s.close = CloseLocalClosed
		} else {
			s.state = StreamStateHalfClosedRemote
		}
	case StreamStateOpen:
		if endStream {
			s.state = StreamStateHalfClosing
		}
	case StreamStateHalfClosedRemote:
		if endStream {
			s.state = StreamStateClosing
			s.close = CloseLocalClosed
		}
	}
}

// RecvHeaders transitions the stream on an inbound HEADERS.
func (s *Stream) RecvHeaders(endStream bool) {
	switch s.state {
	case StreamStateIdle:
		if endStream {
			s.state = StreamStateHalfClosedRemote
		} else {
			s.state = StreamStateOpen
		}
	case StreamStateReservedRemote:
		if endStream {
			s.state = StreamStateClosing
			s.close = CloseRemoteClosed
		} else {
			s.state = StreamStateHalfClosedLocal
		}
	case StreamStateOpen:
		if endStream {
			s.state = StreamStateHalfClosing
		}
	case StreamStateHalfClosedLocal:
		if endStream {
			s.state = StreamStateClosing
			s.close = CloseRemoteClosed
		}
	}
}

// SendPushPromise reserves the stream locally (server pushing).
func (s *Stream) SendPushPromise() {
	s.state = StreamStateReservedLocal
}

// RecvPushPromise reserves the stream remotely (client receiving a push).
func (s *Stream) RecvPushPromise() {
	s.state = StreamStateReservedRemote
}

// SendData transitions the stream when an outbound DATA frame carries
// END_STREAM.
func (s *Stream) SendData(endStream bool) {
	if !endStream {
		return
	}
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosing
	case StreamStateHalfClosedRemote:
		s.state = StreamStateClosing
		s.close = CloseLocalClosed
	}
}

// RecvData transitions the stream when an inbound DATA frame carries
// END_STREAM. Receiving DATA on a stream that is already half-closed
// remotely or closed is a stream-closed error, per spec §4.8/§8.
func (s *Stream) RecvData(endStream bool) error {
	switch s.state {
	case StreamStateHalfClosedRemote, StreamStateClosed, StreamStateClosing:
		return NewResetStreamError(StreamClosedError, "data received after end of stream")
	}
	if !endStream {
		return nil
	}
	switch s.state {
	case StreamStateOpen:
		s.state = StreamStateHalfClosing
	case StreamStateHalfClosedLocal:
		s.state = StreamStateClosing
		s.close = CloseRemoteClosed
	}
	return nil
}

// FinishHalfClose moves a transient half_closing stream to its real
// resting state, per spec §4.8's "defer emission" rule: this is
// called by the connection after the :half_close signal fires.
func (s *Stream) FinishHalfClose(local bool) {
	if s.state != StreamStateHalfClosing {
		return
	}
	if local {
		s.state = StreamStateHalfClosedLocal
		s.close = CloseHalfClosedLocal
	} else {
		s.state = StreamStateHalfClosedRemote
		s.close = CloseHalfClosedRemote
	}
}

// Reset moves the stream to the transient closing state with the given
// reason; FinishClose then completes the move to closed. Valid from any
// state, matching spec §4.8's "any -> closed" row.
func (s *Stream) Reset(reason CloseReason) {
	s.state = StreamStateClosing
	s.close = reason
}

// FinishClose moves a transient closing stream to the resting closed
// state, mirroring FinishHalfClose.
func (s *Stream) FinishClose() {
	s.state = StreamStateClosed
}
