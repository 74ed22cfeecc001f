package http2

import (
	"bufio"
	"bytes"
	"testing"
)

// encodeTestFrame serializes fr as a complete wire frame on stream,
// exactly as Connection.writeFrame does, for feeding into Receive as
// if it came from a peer.
func encodeTestFrame(t *testing.T, fr Frame, stream uint32) []byte {
	t.Helper()

	frh := AcquireFrameHeader()
	frh.SetBody(fr)
	frh.SetStream(stream)

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	if _, err := frh.WriteTo(bw); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	ReleaseFrameHeader(frh)

	return buf.Bytes()
}

func testSettingsFrame(t *testing.T) []byte {
	st := AcquireSettings()
	return encodeTestFrame(t, st, 0)
}

func encodeTestHeaders(t *testing.T, stream uint32, fields map[string]string, endStream, endHeaders bool) []byte {
	t.Helper()

	hp := AcquireHPack()
	var raw []byte
	for name, value := range fields {
		hf := AcquireHeaderField()
		hf.SetBytes([]byte(name), []byte(value))
		raw = hp.AppendHeader(raw, hf, true)
		ReleaseHeaderField(hf)
	}
	ReleaseHPack(hp)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(endStream)
	h.SetEndHeaders(endHeaders)
	h.SetHeaders(raw)

	return encodeTestFrame(t, h, stream)
}

// handshakeServer drives a server Connection through the preface and
// the client's mandatory first SETTINGS frame, leaving it ready to
// dispatch application frames.
func handshakeServer(t *testing.T) *Connection {
	t.Helper()

	c := NewConnection(RoleServer)

	if err := c.Receive(Preface); err != nil {
		t.Fatalf("preface: %v", err)
	}
	if err := c.Receive(testSettingsFrame(t)); err != nil {
		t.Fatalf("initial settings: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want connected", c.State())
	}

	return c
}

func TestClientHandshakeSendsPrefaceThenSettings(t *testing.T) {
	c := NewConnection(RoleClient)

	var frames [][]byte
	c.Subscribe(SignalFrame, func(_ *Stream, payload interface{}) {
		frames = append(frames, payload.([]byte))
	})

	if err := c.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want connected", c.State())
	}
	if len(frames) != 2 {
		t.Fatalf("got %d emitted frames, want 2 (preface, settings)", len(frames))
	}
	if !bytes.Equal(frames[0], Preface) {
		t.Fatalf("first emitted bytes are not the connection preface")
	}
}

func TestServerRejectsBadPreface(t *testing.T) {
	c := NewConnection(RoleServer)

	err := c.Receive([]byte("GET / HTTP/1.1\r\n\r\n"))
	if err == nil {
		t.Fatal("expected a handshake error")
	}

	var herr *Error
	if !isHTTP2Error(err, &herr) || herr.Code != ProtocolError {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("state = %v, want closed", c.State())
	}
}

func TestFirstFrameAfterPrefaceMustBeSettings(t *testing.T) {
	c := NewConnection(RoleServer)

	if err := c.Receive(Preface); err != nil {
		t.Fatalf("preface: %v", err)
	}

	ping := AcquireFrame(FramePing).(*Ping)
	err := c.Receive(encodeTestFrame(t, ping, 0))
	if err == nil {
		t.Fatal("expected a protocol error")
	}

	var herr *Error
	if !isHTTP2Error(err, &herr) || herr.Code != ProtocolError {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestEvenStreamIDFromClientIsProtocolError(t *testing.T) {
	c := handshakeServer(t)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(true)
	h.SetEndHeaders(true)
	raw := encodeTestFrame(t, h, 2)

	err := c.Receive(raw)
	if err == nil {
		t.Fatal("expected a protocol error for an even client-initiated stream id")
	}

	var herr *Error
	if !isHTTP2Error(err, &herr) || herr.Code != ProtocolError {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
}

func TestDecreasingStreamIDIsProtocolError(t *testing.T) {
	c := handshakeServer(t)

	h3 := AcquireFrame(FrameHeaders).(*Headers)
	h3.SetEndStream(true)
	h3.SetEndHeaders(true)
	if err := c.Receive(encodeTestFrame(t, h3, 3)); err != nil {
		t.Fatalf("first stream: %v", err)
	}

	h1 := AcquireFrame(FrameHeaders).(*Headers)
	h1.SetEndStream(true)
	h1.SetEndHeaders(true)
	err := c.Receive(encodeTestFrame(t, h1, 1))
	if err == nil {
		t.Fatal("expected a protocol error for a decreasing stream id")
	}
}

func TestContinuationOnWrongStreamIsProtocolError(t *testing.T) {
	c := handshakeServer(t)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(false)
	h.SetEndHeaders(false) // expect CONTINUATION
	if err := c.Receive(encodeTestFrame(t, h, 1)); err != nil {
		t.Fatalf("headers: %v", err)
	}

	cont := AcquireFrame(FrameContinuation).(*Continuation)
	cont.SetEndHeaders(true)
	err := c.Receive(encodeTestFrame(t, cont, 3)) // wrong stream
	if err == nil {
		t.Fatal("expected a protocol error for continuation on the wrong stream")
	}
}

func TestContinuationFloodIsProtocolError(t *testing.T) {
	c := handshakeServer(t)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(false)
	h.SetEndHeaders(false)
	h.SetHeaders([]byte{0x82}) // one buffered header-block byte
	if err := c.Receive(encodeTestFrame(t, h, 1)); err != nil {
		t.Fatalf("headers: %v", err)
	}

	// The CONTINUATION itself fits the max frame size, but the
	// reassembled block then exceeds it.
	big := make([]byte, int(c.localSettings.MaxFrameSize()))
	cont := AcquireFrame(FrameContinuation).(*Continuation)
	cont.SetEndHeaders(false)
	cont.SetHeader(big)

	err := c.Receive(encodeTestFrame(t, cont, 1))
	var herr *Error
	if !isHTTP2Error(err, &herr) || herr.Code != ProtocolError {
		t.Fatalf("err = %v, want ProtocolError for a flood of continuation bytes", err)
	}
}

func TestClientGETRoundTrip(t *testing.T) {
	c := NewConnection(RoleClient)
	if err := c.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if err := c.Receive(testSettingsFrame(t)); err != nil {
		t.Fatalf("server settings: %v", err)
	}

	var halfClosed, closed bool
	c.Subscribe(SignalHalfClose, func(*Stream, interface{}) { halfClosed = true })
	c.Subscribe(SignalClose, func(*Stream, interface{}) { closed = true })

	fields := []*HeaderField{AcquireHeaderField(), AcquireHeaderField()}
	fields[0].SetBytes(StringMethod, StringGET)
	fields[1].SetBytes(StringPath, []byte("/"))

	if err := c.SendHeaders(1, fields, true); err != nil {
		t.Fatalf("send headers: %v", err)
	}
	if !halfClosed {
		t.Fatal("expected :half_close after sending the request with END_STREAM")
	}

	strm := c.Stream(1)
	if strm == nil || strm.State() != StreamStateHalfClosedLocal {
		t.Fatalf("stream 1 state = %v, want HalfClosedLocal", strm.State())
	}

	if err := c.Receive(encodeTestHeaders(t, 1, map[string]string{":status": "200"}, true, true)); err != nil {
		t.Fatalf("response headers: %v", err)
	}
	if !closed {
		t.Fatal("expected :close after the server's END_STREAM response")
	}
	if c.Stream(1) != nil {
		t.Fatal("stream 1 should have been removed from the live table")
	}
}

func TestServerPushLifecycle(t *testing.T) {
	client := NewConnection(RoleClient)
	if err := client.Handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	st := AcquireSettings()
	st.SetPush(true)
	if err := client.Receive(encodeTestFrame(t, st, 0)); err != nil {
		t.Fatalf("server settings: %v", err)
	}

	fields := []*HeaderField{AcquireHeaderField(), AcquireHeaderField()}
	fields[0].SetBytes(StringMethod, StringGET)
	fields[1].SetBytes(StringPath, []byte("/"))
	if err := client.SendHeaders(1, fields, true); err != nil {
		t.Fatalf("send headers: %v", err)
	}

	var promised, promisedHeaders, closed bool
	client.Subscribe(SignalPromise, func(*Stream, interface{}) { promised = true })
	client.Subscribe(SignalPromiseHeaders, func(*Stream, interface{}) { promisedHeaders = true })
	client.Subscribe(SignalClose, func(strm *Stream, _ interface{}) {
		if strm.ID() == 2 {
			closed = true
		}
	})

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	pp.stream = 2
	pp.ended = true
	if err := client.Receive(encodeTestFrame(t, pp, 1)); err != nil {
		t.Fatalf("push promise: %v", err)
	}
	if !promised {
		t.Fatal("expected :promise after PUSH_PROMISE")
	}
	if client.Stream(2).State() != StreamStateReservedRemote {
		t.Fatalf("promised stream state = %v, want ReservedRemote", client.Stream(2).State())
	}
	if client.Stream(2).Active() {
		t.Fatal("a reserved stream must not count toward active_stream_count")
	}

	if err := client.Receive(encodeTestHeaders(t, 2, map[string]string{":status": "200"}, true, true)); err != nil {
		t.Fatalf("promised response headers: %v", err)
	}
	if !promisedHeaders {
		t.Fatal("expected :promise_headers for the response on the promised stream")
	}
	if !closed {
		t.Fatal("expected :close on the promised stream after its END_STREAM")
	}
}

func TestFlowControlBlockingAndRelease(t *testing.T) {
	c := handshakeServer(t)

	for _, id := range []uint32{1, 3} {
		h := AcquireFrame(FrameHeaders).(*Headers)
		h.SetEndStream(false)
		h.SetEndHeaders(true)
		if err := c.Receive(encodeTestFrame(t, h, id)); err != nil {
			t.Fatalf("open stream %d: %v", id, err)
		}
	}

	// Stream A (1) takes most of the connection window; stream B (3)
	// is then blocked by the connection window, not its own.
	c.remoteWindow = 1000
	a, b := c.Stream(1), c.Stream(3)
	a.SetWindow(1000)
	b.SetWindow(1000)

	if err := c.SendData(1, make([]byte, 900), false); err != nil {
		t.Fatalf("send 900: %v", err)
	}
	if c.remoteWindow != 100 || a.Window() != 100 {
		t.Fatalf("after 900 bytes: conn window = %d, stream window = %d", c.remoteWindow, a.Window())
	}

	if err := c.SendData(3, make([]byte, 200), false); err != nil {
		t.Fatalf("send 200: %v", err)
	}
	if c.remoteWindow != 0 || b.Window() != 900 {
		t.Fatalf("after exhausting the window: conn window = %d, stream window = %d", c.remoteWindow, b.Window())
	}
	if b.Outbound().Empty() {
		t.Fatal("expected the remaining 100 bytes to be buffered")
	}

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(1000)
	if err := c.Receive(encodeTestFrame(t, wu, 0)); err != nil {
		t.Fatalf("connection window update: %v", err)
	}
	if !b.Outbound().Empty() {
		t.Fatal("expected the buffered 100 bytes to flush")
	}
	if c.remoteWindow != 900 {
		t.Fatalf("connection window after release = %d, want 900", c.remoteWindow)
	}
}

func TestContinuationReassembly(t *testing.T) {
	c := handshakeServer(t)

	hp := AcquireHPack()
	var raw []byte
	for _, kv := range [][2]string{{":method", "GET"}, {":path", "/"}, {"x-custom", "value"}} {
		hf := AcquireHeaderField()
		hf.SetBytes([]byte(kv[0]), []byte(kv[1]))
		raw = hp.AppendHeader(raw, hf, true)
		ReleaseHeaderField(hf)
	}
	ReleaseHPack(hp)

	split := len(raw) / 2

	var gotFields []*HeaderField
	c.Subscribe(SignalHeaders, func(_ *Stream, payload interface{}) {
		gotFields = payload.([]*HeaderField)
	})

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(true)
	h.SetEndHeaders(false)
	h.SetHeaders(raw[:split])
	if err := c.Receive(encodeTestFrame(t, h, 1)); err != nil {
		t.Fatalf("headers: %v", err)
	}
	if !c.inHeaderBlock {
		t.Fatal("expected the connection to be mid header-block reassembly")
	}

	cont := AcquireFrame(FrameContinuation).(*Continuation)
	cont.SetEndHeaders(true)
	cont.SetHeader(raw[split:])
	if err := c.Receive(encodeTestFrame(t, cont, 1)); err != nil {
		t.Fatalf("continuation: %v", err)
	}

	if len(gotFields) != 3 {
		t.Fatalf("got %d decoded fields, want 3", len(gotFields))
	}
}

func TestSendDataPreChunksByRemoteMaxFrameSize(t *testing.T) {
	c := handshakeServer(t)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(false)
	h.SetEndHeaders(true)
	if err := c.Receive(encodeTestFrame(t, h, 1)); err != nil {
		t.Fatalf("open stream: %v", err)
	}

	strm := c.Stream(1)
	maxFrame := int(c.remoteSettings.MaxFrameSize())

	// ample windows so every chunk is sent immediately, never buffered.
	c.remoteWindow = maxFrame*2 + 1000
	strm.SetWindow(maxFrame*2 + 1000)

	payload := make([]byte, maxFrame+100)
	for i := range payload {
		payload[i] = byte(i)
	}

	var dataFrames [][]byte
	c.Subscribe(SignalFrame, func(_ *Stream, frame interface{}) {
		b := frame.([]byte)
		if len(b) >= DefaultFrameSize && FrameType(b[3]) == FrameData {
			dataFrames = append(dataFrames, append([]byte(nil), b[DefaultFrameSize:]...))
		}
	})

	if err := c.SendData(1, payload, true); err != nil {
		t.Fatalf("send data: %v", err)
	}

	if len(dataFrames) != 2 {
		t.Fatalf("got %d DATA frames, want 2 (payload split at remote max frame size)", len(dataFrames))
	}
	if len(dataFrames[0]) != maxFrame {
		t.Fatalf("first frame payload = %d bytes, want %d (the negotiated max)", len(dataFrames[0]), maxFrame)
	}
	if len(dataFrames[1]) != 100 {
		t.Fatalf("second frame payload = %d bytes, want 100 (the remainder)", len(dataFrames[1]))
	}

	var got []byte
	got = append(got, dataFrames[0]...)
	got = append(got, dataFrames[1]...)
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled payload across chunks does not match the original")
	}
}

// isHTTP2Error is errors.As inlined to avoid importing errors just for
// this helper across several tests.
func isHTTP2Error(err error, target **Error) bool {
	herr, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = herr
	return true
}
