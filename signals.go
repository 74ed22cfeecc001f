package http2

// Signal is one of the closed set of event kinds a caller may
// subscribe to, per spec §6/§9. Modeled as an enum rather than a
// string key so dispatch is a plain slice index, no map lookup or
// reflection on the hot path.
type Signal uint8

const (
	SignalFrame Signal = iota
	SignalFrameSent
	SignalFrameReceived
	SignalStream
	SignalPromise
	SignalReserved
	SignalActive
	SignalHeaders
	SignalData
	SignalPromiseHeaders
	SignalHalfClose
	SignalClose
	SignalGoAway
	SignalAck
	SignalSettingsAck
	SignalAltSvc
	SignalOrigin

	numSignals
)

func (sig Signal) String() string {
	switch sig {
	case SignalFrame:
		return "frame"
	case SignalFrameSent:
		return "frame_sent"
	case SignalFrameReceived:
		return "frame_received"
	case SignalStream:
		return "stream"
	case SignalPromise:
		return "promise"
	case SignalReserved:
		return "reserved"
	case SignalActive:
		return "active"
	case SignalHeaders:
		return "headers"
	case SignalData:
		return "data"
	case SignalPromiseHeaders:
		return "promise_headers"
	case SignalHalfClose:
		return "half_close"
	case SignalClose:
		return "close"
	case SignalGoAway:
		return "goaway"
	case SignalAck:
		return "ack"
	case SignalSettingsAck:
		return "settings_ack"
	case SignalAltSvc:
		return "altsvc"
	case SignalOrigin:
		return "origin"
	}
	return "unknown"
}

// SignalHandler receives the stream the event pertains to (nil for
// connection-level signals such as SignalFrame or SignalGoAway) and a
// signal-specific payload.
type SignalHandler func(stream *Stream, payload interface{})

// Signals is a typed callback registry: one ordered list of handlers
// per Signal, invoked synchronously in subscription order during
// frame dispatch. There is no unsubscribe; handlers live for the
// Connection's lifetime, matching the teacher's own fire-and-forget
// callback idiom elsewhere in the codebase.
type Signals struct {
	handlers [numSignals][]SignalHandler
}

// Subscribe registers handler to be called whenever sig fires.
func (sg *Signals) Subscribe(sig Signal, handler SignalHandler) {
	sg.handlers[sig] = append(sg.handlers[sig], handler)
}

// Emit synchronously invokes every handler subscribed to sig, in
// registration order.
func (sg *Signals) Emit(sig Signal, stream *Stream, payload interface{}) {
	for _, handler := range sg.handlers[sig] {
		handler(stream, payload)
	}
}
