package http2

import "testing"

func TestSignalsEmitInRegistrationOrder(t *testing.T) {
	var sg Signals
	var order []int

	sg.Subscribe(SignalClose, func(*Stream, interface{}) { order = append(order, 1) })
	sg.Subscribe(SignalClose, func(*Stream, interface{}) { order = append(order, 2) })

	sg.Emit(SignalClose, nil, nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestSignalsEmitWithoutSubscribersIsNoop(t *testing.T) {
	var sg Signals
	sg.Emit(SignalGoAway, nil, "boom") // must not panic
}

func TestSignalsPassesStreamAndPayload(t *testing.T) {
	var sg Signals
	s := NewStream(1, defaultWindowSize, nil)

	var gotStream *Stream
	var gotPayload interface{}
	sg.Subscribe(SignalHeaders, func(stream *Stream, payload interface{}) {
		gotStream = stream
		gotPayload = payload
	})

	sg.Emit(SignalHeaders, s, "payload")

	if gotStream != s {
		t.Fatal("handler did not receive the expected stream")
	}
	if gotPayload != "payload" {
		t.Fatalf("handler payload = %v", gotPayload)
	}
}
