package http2

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Role identifies which side of the connection this engine instance
// plays, per RFC 7540 §5.1.1's odd/even stream-id split.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// ConnState is the connection-level lifecycle state, spec §4.9/§3.
type ConnState uint8

const (
	StateNew ConnState = iota
	StateWaitingMagic
	StateWaitingPreface
	StateConnected
	StateClosed
)

// Preface is the 24-byte connection preface every HTTP/2 connection
// begins with, client to server, regardless of role or upgrade path.
//
// https://tools.ietf.org/html/rfc7540#section-3.5
var Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// closeGracePeriod is how long a closed connection keeps answering
// PING and silently dropping other frames before any further frame is
// treated as a connection error, per spec §4.9.
const closeGracePeriod = 15 * time.Second

// pendingHeaderBlock tracks the HEADERS/PUSH_PROMISE that opened the
// CONTINUATION reassembly queue currently in progress.
type pendingHeaderBlock struct {
	stream    uint32
	frameType FrameType
	endStream bool
	promised  uint32 // only meaningful when frameType == FramePushPromise
}

// Connection is the top-level HTTP/2 engine: handshake, frame
// demultiplexing, CONTINUATION reassembly, SETTINGS lifecycle, GOAWAY,
// PING, and the typed error surface described in spec §4.9.
//
// A Connection is single-threaded and cooperative, per spec §5: every
// call to Receive and every outbound method must be serialized by the
// caller. There are no internal goroutines or channels.
type Connection struct {
	role  Role
	state ConnState

	localSettings  Settings
	remoteSettings Settings
	pendingSettings []*Settings

	localWindow  int
	remoteWindow int

	streams         Streams
	lastPeerStream  uint32
	lastLocalStream uint32

	encoder *HPACK
	decoder *HPACK

	inHeaderBlock bool
	pending       pendingHeaderBlock
	headerBuf     bytebufferpool.ByteBuffer

	recvBuf  bytebufferpool.ByteBuffer
	writeBuf bytebufferpool.ByteBuffer

	expectFirstSettings bool
	upgraded            bool

	closedAt time.Time

	signals Signals

	// now is injected so handshake/close-grace-period logic can be
	// exercised deterministically from tests; defaults to time.Now.
	now func() time.Time
}

// NewConnection creates a Connection in its initial lifecycle state
// for role: waiting_connection_preface for a client, new for a server.
func NewConnection(role Role) *Connection {
	c := &Connection{
		role:                role,
		state:               StateWaitingPreface,
		encoder:             AcquireHPack(),
		decoder:             AcquireHPack(),
		expectFirstSettings: true,
		now:                 time.Now,
	}

	c.localSettings.Reset()
	c.remoteSettings.Reset()
	c.localWindow = int(c.localSettings.MaxWindowSize())
	c.remoteWindow = int(c.remoteSettings.MaxWindowSize())

	if role == RoleServer {
		c.state = StateNew
	}

	return c
}

func (c *Connection) Role() Role {
	return c.role
}

func (c *Connection) State() ConnState {
	return c.state
}

// Stream returns the live stream with the given id, or nil.
func (c *Connection) Stream(id uint32) *Stream {
	return c.streams.Get(id)
}

// ActiveStreams returns the number of streams counting toward
// SETTINGS_MAX_CONCURRENT_STREAMS, per spec §3's invariant.
func (c *Connection) ActiveStreams() int {
	return c.streams.Active()
}

// Subscribe registers handler for sig, per the boundary API's
// `subscribe(:signal, handler)` operation.
func (c *Connection) Subscribe(sig Signal, handler SignalHandler) {
	c.signals.Subscribe(sig, handler)
}

// Handshake performs the client side of the connection preface: send
// the 24-byte magic followed by a SETTINGS frame, then move to
// connected. Per spec §4.9 this is purely an outbound action; the
// client still requires the first frame it receives to be SETTINGS.
func (c *Connection) Handshake() error {
	if c.role != RoleClient {
		return NewError(InternalError, "handshake is only initiated by the client")
	}
	if c.state != StateWaitingPreface {
		return NewError(InternalError, "handshake already performed")
	}

	c.emitRaw(Preface)

	st := AcquireFrame(FrameSettings).(*Settings)
	c.localSettings.CopyTo(st)

	if err := c.writeFrame(st, 0); err != nil {
		return err
	}

	c.state = StateConnected

	return nil
}

// Upgrade performs the h2c upgrade path, spec §6: the preface is sent,
// stream 1 is allocated directly in half_closed_local for the request
// that triggered the upgrade, and the server's first SETTINGS is
// absorbed without an ACK, since the HTTP/1.1 upgrade response already
// served as the acknowledgement.
func (c *Connection) Upgrade() (*Stream, error) {
	if c.role != RoleClient {
		return nil, NewError(InternalError, "h2c upgrade is only initiated by the client")
	}
	if c.state != StateWaitingPreface {
		return nil, NewError(InternalError, "upgrade already performed")
	}

	c.emitRaw(Preface)

	st := AcquireFrame(FrameSettings).(*Settings)
	c.localSettings.CopyTo(st)
	if err := c.writeFrame(st, 0); err != nil {
		return nil, err
	}

	strm := NewStream(1, int(c.localSettings.MaxWindowSize()), nil)
	strm.SetWindow(int(c.remoteSettings.MaxWindowSize()))
	strm.SetState(StreamStateHalfClosedLocal)
	c.streams.Insert(strm)
	c.lastLocalStream = 1

	c.state = StateConnected
	c.upgraded = true

	return strm, nil
}

// consumePreface matches data against Preface a byte at a time,
// tolerating a short read (returns 0, nil to mean "need more bytes").
// A mismatch at any matched prefix is a handshake error, mapped to
// ProtocolError since RFC 7540's error-code table has no dedicated
// handshake code.
func (c *Connection) consumePreface(data []byte) (int, error) {
	if c.state == StateNew {
		c.state = StateWaitingMagic
	}

	n := len(Preface)
	if len(data) < n {
		if !bytes.HasPrefix(Preface, data) {
			return 0, NewGoAwayError(ProtocolError, "bad connection preface")
		}
		return 0, nil
	}

	if !bytes.Equal(data[:n], Preface) {
		return 0, NewGoAwayError(ProtocolError, "bad connection preface")
	}

	c.state = StateWaitingPreface

	return n, nil
}

// Receive is the transport-facing entry point: append b to the
// receive buffer, then parse and dispatch as many complete frames as
// are available. A single recover guards the whole call, per the
// ambient error-handling stack's §11 rule: an unexpected panic while
// processing one malformed frame becomes an internal_error instead of
// crashing the caller.
func (c *Connection) Receive(b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.fail(fmt.Errorf("http2: panic while processing frame: %v", r))
		}
	}()

	return c.receive(b)
}

func (c *Connection) receive(b []byte) error {
	if len(b) > 0 {
		c.recvBuf.Write(b)
	}

	for {
		data := c.recvBuf.Bytes()
		if len(data) == 0 {
			return nil
		}

		if c.role == RoleServer && (c.state == StateNew || c.state == StateWaitingMagic) {
			n, err := c.consumePreface(data)
			if err != nil {
				return c.fail(err)
			}
			if n == 0 {
				return nil
			}
			c.recvBuf.B = append(c.recvBuf.B[:0], data[n:]...)
			continue
		}

		br := bufio.NewReader(bytes.NewReader(data))
		frh := AcquireFrameHeader()
		frh.maxLen = c.localSettings.MaxFrameSize()

		n, err := frh.ReadFrom(br)
		if err != nil {
			ReleaseFrameHeader(frh)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil // incomplete frame, wait for more bytes
			}
			if err == ErrPayloadExceeds {
				err = NewGoAwayError(ProtocolError, "frame exceeds the local max frame size")
			}
			return c.fail(err)
		}

		c.signals.Emit(SignalFrameReceived, nil, frh.Body())

		derr := c.dispatch(frh)

		ReleaseFrameHeader(frh)
		c.recvBuf.B = append(c.recvBuf.B[:0], data[n:]...)

		if derr != nil {
			return c.fail(derr)
		}
	}
}

// dispatch routes one fully-parsed frame, per spec §4.9's routing
// rules: connection frames (stream 0, SETTINGS/PING/GOAWAY) handled
// directly; everything else reaches a per-type handler that owns
// stream lookup and validation.
func (c *Connection) dispatch(frh *FrameHeader) error {
	if c.state == StateClosed {
		switch frh.Type() {
		case FrameGoAway:
			return NewGoAwayError(ProtocolError, "goaway received after close")
		case FramePing:
			return c.handlePing(frh.Body().(*Ping))
		}
		if c.now().Sub(c.closedAt) >= closeGracePeriod {
			return NewGoAwayError(ConnectionError, "frame received after close grace period")
		}
		return nil
	}

	if c.expectFirstSettings {
		if frh.Type() != FrameSettings {
			return NewGoAwayError(ProtocolError, "first frame must be SETTINGS")
		}
		c.expectFirstSettings = false
		if c.role == RoleServer && c.state == StateWaitingPreface {
			c.state = StateConnected
		}
	}

	if c.inHeaderBlock {
		return c.continueHeaderBlock(frh)
	}

	switch frh.Type() {
	case FrameSettings:
		return c.handleSettings(frh.Body().(*Settings))
	case FramePing:
		return c.handlePing(frh.Body().(*Ping))
	case FrameGoAway:
		return c.handleGoAway(frh.Body().(*GoAway))
	case FrameWindowUpdate:
		return c.handleWindowUpdate(frh.Stream(), frh.Body().(*WindowUpdate))
	case FrameResetStream:
		return c.handleRstStream(frh.Stream(), frh.Body().(*RstStream))
	case FramePriority:
		return c.handlePriority(frh.Stream(), frh.Body().(*Priority))
	case FrameHeaders:
		return c.handleHeadersFrame(frh)
	case FramePushPromise:
		return c.handlePushPromiseFrame(frh)
	case FrameData:
		return c.handleData(frh.Stream(), frh.Body().(*Data), frh.Len())
	case FrameAltSvc:
		c.signals.Emit(SignalAltSvc, nil, frh.Body())
		return nil
	case FrameOrigin:
		c.signals.Emit(SignalOrigin, nil, frh.Body())
		return nil
	case FrameContinuation:
		return NewGoAwayError(ProtocolError, "unexpected CONTINUATION")
	}

	return nil // unknown frame types are ignored per RFC 7540 §4.1
}

// fail finalizes a connection-fatal error: emit GOAWAY with the last
// processed peer stream id, move to closed, record the close time.
func (c *Connection) fail(err error) error {
	var herr *Error
	if !errors.As(err, &herr) {
		err = NewError(InternalError, err.Error())
		errors.As(err, &herr)
	}

	if c.state != StateClosed {
		code := herr.Code

		ga := AcquireFrame(FrameGoAway).(*GoAway)
		ga.SetStream(c.lastPeerStream)
		ga.SetCode(code)
		_ = c.writeFrame(ga, 0)

		c.state = StateClosed
		c.closedAt = c.now()

		c.signals.Emit(SignalGoAway, nil, code)
	}

	return err
}

// GoAway performs the application-initiated `goaway(error, debug)`
// operation: a graceful or forced shutdown of the whole connection.
func (c *Connection) GoAway(code ErrorCode, debug string) error {
	if c.state == StateClosed {
		return nil
	}

	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(c.lastPeerStream)
	ga.SetCode(code)
	if debug != "" {
		ga.SetData([]byte(debug))
	}

	err := c.writeFrame(ga, 0)

	c.state = StateClosed
	c.closedAt = c.now()

	return err
}

func (c *Connection) handleGoAway(ga *GoAway) error {
	c.signals.Emit(SignalGoAway, nil, ga.Code())

	c.state = StateClosed
	c.closedAt = c.now()

	return nil
}

// Close performs the application-initiated `close(stream, error)`
// operation: send RST_STREAM and tear the stream down locally.
func (c *Connection) Close(stream uint32, err error) error {
	strm := c.streams.Get(stream)
	if strm == nil {
		return nil
	}
	return c.resetStream(strm, err)
}

func (c *Connection) resetStream(strm *Stream, cause error) error {
	if strm.errored {
		return nil // suppress a repeated RST on an already-errored stream, per spec §7
	}
	strm.errored = true

	var herr *Error
	code := InternalError
	if errors.As(cause, &herr) {
		code = herr.Code
	}

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)
	if err := c.writeFrame(rst, strm.ID()); err != nil {
		return err
	}

	strm.Reset(CloseLocalReset)
	strm.FinishClose()
	c.closeStream(strm)

	return nil
}

func (c *Connection) closeStream(strm *Stream) {
	c.streams.Del(strm.ID())
	c.streams.MarkClosed(strm.ID(), c.now())
	strm.Outbound().Reset()
	c.signals.Emit(SignalClose, strm, nil)
}

// settleHalfClose resolves the transient half_closing state (if
// reached) into its resting half-closed state and emits :half_close,
// or finishes the stream entirely once both directions have ended.
// local reports which side just acted (true = we sent, false = we
// received) and is only consulted while the state is still
// half_closing, to pick which CloseReason FinishHalfClose records.
func (c *Connection) settleHalfClose(strm *Stream, local bool) {
	switch strm.State() {
	case StreamStateHalfClosing:
		strm.FinishHalfClose(local)
		c.signals.Emit(SignalHalfClose, strm, nil)
	case StreamStateHalfClosedLocal, StreamStateHalfClosedRemote:
		c.signals.Emit(SignalHalfClose, strm, nil)
	case StreamStateClosing:
		strm.FinishClose()
		c.closeStream(strm)
	}
}

func (c *Connection) handlePing(ping *Ping) error {
	if ping.ack {
		c.signals.Emit(SignalAck, nil, append([]byte(nil), ping.Data()...))
		return nil
	}

	reply := AcquireFrame(FramePing).(*Ping)
	reply.SetData(ping.Data())
	reply.ack = true

	return c.writeFrame(reply, 0)
}

// Ping sends an unsolicited PING; the caller observes the reply via
// the :ack signal, matching on payload.
func (c *Connection) Ping(payload [8]byte) error {
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData(payload[:])
	return c.writeFrame(ping, 0)
}

func (c *Connection) handleRstStream(stream uint32, rst *RstStream) error {
	strm := c.streams.Get(stream)
	if strm == nil {
		if c.streams.RecentlyClosed(stream, c.now()) {
			return nil
		}
		return NewGoAwayError(ProtocolError, "rst_stream on unknown stream")
	}

	strm.Reset(CloseRemoteReset)
	strm.FinishClose()
	c.closeStream(strm)

	return nil
}

// handlePriority records the advertised weight/dependency, per the
// Open Question decision (spec §9) that no scheduler ever reads them
// back. The frame's own "stream" field carries the *dependency*, not
// the subject stream id, which lives in the frame header.
func (c *Connection) handlePriority(stream uint32, pr *Priority) error {
	if stream == pr.Stream() {
		return ErrInvalidDependency
	}

	strm := c.streams.Get(stream)
	if strm == nil {
		return nil // priority for a stream that does not exist yet is valid and simply dropped
	}

	strm.SetPriority(pr.Weight(), pr.Stream(), false)

	return nil
}

func (c *Connection) handleWindowUpdate(stream uint32, wu *WindowUpdate) error {
	if stream == 0 {
		return c.applyConnectionWindowUpdate(wu.Increment())
	}

	strm := c.streams.Get(stream)
	if strm == nil {
		if c.streams.RecentlyClosed(stream, c.now()) {
			return nil
		}
		return NewGoAwayError(ProtocolError, "window update on unknown stream")
	}

	increment := wu.Increment()
	if increment == 0 {
		return NewGoAwayError(ProtocolError, "zero window increment")
	}

	next := strm.Window() + increment
	if next > maxWindowSize {
		return NewGoAwayError(FlowControlError, "window update overflows maximum window size")
	}
	strm.SetWindow(next)

	// Drained against min(stream window, connection window): a
	// per-stream WINDOW_UPDATE must never let a stream spend more of
	// the shared connection window than applyConnectionWindowUpdate
	// itself would allow.
	return c.drainStream(strm)
}

func (c *Connection) applyConnectionWindowUpdate(increment int) error {
	if increment == 0 {
		return NewGoAwayError(ProtocolError, "zero window increment")
	}

	next := c.remoteWindow + increment
	if next > maxWindowSize {
		return NewGoAwayError(FlowControlError, "connection window overflows maximum window size")
	}
	c.remoteWindow = next

	var err error
	c.streams.All(func(strm *Stream) {
		if err != nil || !strm.Active() {
			return
		}
		err = c.drainStream(strm)
	})

	return err
}

// drainStream releases as much of strm's queued outbound DATA as both
// the stream's own window and the shared connection window allow.
func (c *Connection) drainStream(strm *Stream) error {
	avail := min(strm.Window(), c.remoteWindow)
	before := avail

	strm.Outbound().Drain(&avail, func(d *Data) {
		end := d.EndStream() // writeFrame releases d
		_ = c.writeFrame(d, strm.ID())
		strm.SendData(end)
		c.settleHalfClose(strm, true)
	})

	sent := before - avail
	strm.IncrWindow(-sent)
	c.remoteWindow -= sent

	return nil
}

func (c *Connection) handleSettings(st *Settings) error {
	if st.IsAck() {
		return c.applySettingsAck()
	}

	skipAck := c.upgraded
	c.upgraded = false

	oldWindow := int(c.remoteSettings.MaxWindowSize())
	st.CopyTo(&c.remoteSettings)
	delta := int(c.remoteSettings.MaxWindowSize()) - oldWindow

	if delta != 0 {
		c.streams.All(func(strm *Stream) {
			if strm.Active() {
				strm.IncrWindow(delta)
			}
		})
	}

	if c.remoteSettings.HeaderTableSize() <= defaultHeaderTableSize {
		c.encoder.SetMaxTableSize(int(c.remoteSettings.HeaderTableSize()))
	}

	var err error
	c.streams.All(func(strm *Stream) {
		if err != nil || !strm.Active() {
			return
		}
		err = c.drainStream(strm)
	})
	if err != nil {
		return err
	}

	if !skipAck {
		ack := AcquireFrame(FrameSettings).(*Settings)
		ack.SetAck(true)
		if err := c.writeFrame(ack, 0); err != nil {
			return err
		}
	}

	return nil
}

func (c *Connection) applySettingsAck() error {
	if len(c.pendingSettings) > 0 {
		next := c.pendingSettings[0]
		c.pendingSettings = c.pendingSettings[1:]

		oldWindow := int(c.localSettings.MaxWindowSize())
		next.CopyTo(&c.localSettings)
		delta := int(c.localSettings.MaxWindowSize()) - oldWindow

		if delta != 0 {
			c.streams.All(func(strm *Stream) {
				if strm.Active() {
					strm.IncrLocalWindow(delta)
				}
			})
		}

		ReleaseSettings(next)
	}

	c.signals.Emit(SignalSettingsAck, nil, nil)

	return nil
}

// Settings queues an outbound SETTINGS update: configure mutates a
// copy of the current local settings, which becomes both the frame
// payload and the pending batch applied once the peer ACKs it.
func (c *Connection) Settings(configure func(*Settings)) error {
	st := AcquireSettings()
	c.localSettings.CopyTo(st)
	configure(st)

	pending := AcquireSettings()
	st.CopyTo(pending)
	c.pendingSettings = append(c.pendingSettings, pending)

	return c.writeFrame(st, 0)
}

func (c *Connection) handleData(stream uint32, d *Data, length int) error {
	strm := c.streams.Get(stream)
	if strm == nil {
		if c.streams.RecentlyClosed(stream, c.now()) {
			return nil
		}
		return NewGoAwayError(ProtocolError, "data on unknown stream")
	}

	// Flow control counts the whole frame payload, padding included.
	c.localWindow -= length
	strm.SetLocalWindow(strm.LocalWindow() - length)
	c.replenishLocalWindow(strm)

	if err := strm.ConsumeContentLength(d.Len()); err != nil {
		return err
	}

	if err := strm.RecvData(d.EndStream()); err != nil {
		return c.resetStream(strm, err)
	}

	c.signals.Emit(SignalData, strm, d.Data())

	c.settleHalfClose(strm, false)

	return nil
}

// replenishLocalWindow restores the connection's and strm's inbound
// flow-control windows with WINDOW_UPDATE once either has drained to
// half of its negotiated maximum, per spec §4.8.
func (c *Connection) replenishLocalWindow(strm *Stream) {
	max := int(c.localSettings.MaxWindowSize())
	if max <= 0 {
		return
	}

	if c.localWindow <= max/2 {
		increment := max - c.localWindow
		c.localWindow = max

		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(increment)
		_ = c.writeFrame(wu, 0)
	}

	if strm.LocalWindow() <= max/2 {
		increment := max - strm.LocalWindow()
		strm.SetLocalWindow(max)

		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(increment)
		_ = c.writeFrame(wu, strm.ID())
	}
}

// SendData performs the `send_data(stream, bytes, end_stream)`
// operation: pre-chunk payload by the peer's negotiated
// SETTINGS_MAX_FRAME_SIZE, the same way sendHeaderBlock pre-chunks a
// header block, then queue each chunk against the lesser of the
// stream's and the connection's remaining windows, buffering whatever
// does not fit.
func (c *Connection) SendData(stream uint32, payload []byte, endStream bool) error {
	strm := c.streams.Get(stream)
	if strm == nil {
		return NewGoAwayError(ProtocolError, "data on unknown stream")
	}

	maxLen := int(c.remoteSettings.MaxFrameSize())
	if maxLen <= 0 {
		maxLen = int(defaultMaxFrameSize)
	}

	avail := min(strm.Window(), c.remoteWindow)
	before := avail

	emit := func(fr *Data) {
		end := fr.EndStream() // writeFrame releases fr
		_ = c.writeFrame(fr, stream)
		strm.SendData(end)
		c.settleHalfClose(strm, true)
	}

	for i := 0; i == 0 || i < len(payload); i += maxLen {
		end := i + maxLen
		if end > len(payload) {
			end = len(payload)
		}

		d := AcquireFrame(FrameData).(*Data)
		d.SetData(payload[i:end])
		d.SetEndStream(endStream && end == len(payload))

		strm.Outbound().Send(d, &avail, emit)
	}

	sent := before - avail
	strm.IncrWindow(-sent)
	c.remoteWindow -= sent

	return nil
}

func (c *Connection) handleHeadersFrame(frh *FrameHeader) error {
	h := frh.Body().(*Headers)
	return c.beginHeaderBlock(frh.Stream(), FrameHeaders, h.EndStream(), h.Headers(), h.EndHeaders(), 0)
}

func (c *Connection) handlePushPromiseFrame(frh *FrameHeader) error {
	pp := frh.Body().(*PushPromise)

	if c.streams.Get(frh.Stream()) == nil {
		return NewGoAwayError(ProtocolError, "push promise on unknown parent stream")
	}

	return c.beginHeaderBlock(frh.Stream(), FramePushPromise, false, pp.header, pp.ended, pp.stream)
}

func (c *Connection) beginHeaderBlock(stream uint32, ft FrameType, endStream bool, payload []byte, endHeaders bool, promised uint32) error {
	if c.inHeaderBlock {
		return NewGoAwayError(ProtocolError, "header block already in progress")
	}

	c.headerBuf.Reset()
	c.headerBuf.Write(payload)
	c.pending = pendingHeaderBlock{stream: stream, frameType: ft, endStream: endStream, promised: promised}

	if endHeaders {
		return c.finishHeaderBlock()
	}

	c.inHeaderBlock = true

	return nil
}

// continueHeaderBlock reassembles CONTINUATION frames. Per spec §4.9,
// every frame until END_HEADERS must be CONTINUATION on the same
// stream, and the cumulative buffered payload must not exceed one
// max-frame-size (flood defense).
func (c *Connection) continueHeaderBlock(frh *FrameHeader) error {
	if frh.Type() != FrameContinuation {
		return NewGoAwayError(ProtocolError, "expected CONTINUATION frame")
	}
	if frh.Stream() != c.pending.stream {
		return NewGoAwayError(ProtocolError, "continuation on wrong stream")
	}

	cont := frh.Body().(*Continuation)

	if c.headerBuf.Len()+len(cont.Headers()) > int(c.localSettings.MaxFrameSize()) {
		return NewGoAwayError(ProtocolError, "continuation flood")
	}
	c.headerBuf.Write(cont.Headers())

	if cont.EndHeaders() {
		return c.finishHeaderBlock()
	}

	return nil
}

func (c *Connection) finishHeaderBlock() error {
	c.inHeaderBlock = false

	pending := c.pending
	c.pending = pendingHeaderBlock{}

	payload := c.headerBuf.Bytes()
	if _, err := c.decoder.Read(payload); err != nil {
		c.headerBuf.Reset()
		return NewGoAwayError(CompressionError, "hpack decode failure")
	}
	fields := c.decoder.fields
	c.decoder.fields = nil
	c.headerBuf.Reset()

	var err error
	switch pending.frameType {
	case FrameHeaders:
		err = c.processHeaders(pending.stream, fields, pending.endStream)
	case FramePushPromise:
		err = c.processPushPromise(pending.stream, pending.promised, fields)
	}

	for _, hf := range fields {
		ReleaseHeaderField(hf)
	}

	return err
}

func (c *Connection) processHeaders(streamID uint32, fields []*HeaderField, endStream bool) error {
	if err := validateHeaderList(fields); err != nil {
		return err
	}

	strm := c.streams.Get(streamID)

	if strm != nil && strm.State() != StreamStateIdle && strm.State() != StreamStateReservedRemote {
		if err := strm.CheckTrailers(fields); err != nil {
			return err
		}
		strm.RecvHeaders(endStream)
		c.signals.Emit(SignalHeaders, strm, fields)
		c.settleHalfClose(strm, false)
		return nil
	}

	if strm == nil {
		if err := c.validateNewPeerStream(streamID); err != nil {
			return err
		}

		c.lastPeerStream = streamID

		if uint32(c.streams.Active()) >= c.localSettings.MaxConcurrentStreams() {
			rst := AcquireFrame(FrameResetStream).(*RstStream)
			rst.SetCode(RefusedStreamError)
			return c.writeFrame(rst, streamID)
		}

		strm = NewStream(streamID, int(c.localSettings.MaxWindowSize()), nil)
		strm.SetWindow(int(c.remoteSettings.MaxWindowSize()))
		c.streams.Insert(strm)
		c.signals.Emit(SignalStream, strm, nil)
	}

	wasReservedRemote := strm.State() == StreamStateReservedRemote

	applyRequestMetadata(strm, fields)
	strm.RecvHeaders(endStream)

	if wasReservedRemote {
		c.signals.Emit(SignalPromiseHeaders, strm, fields)
	} else {
		c.signals.Emit(SignalHeaders, strm, fields)
	}

	c.settleHalfClose(strm, false)

	return nil
}

func (c *Connection) processPushPromise(parentID, promisedID uint32, fields []*HeaderField) error {
	if err := validateHeaderList(fields); err != nil {
		return err
	}

	parent := c.streams.Get(parentID)
	if parent == nil {
		return NewGoAwayError(ProtocolError, "push promise parent vanished")
	}

	if parent.CloseReason() == CloseLocalReset {
		rst := AcquireFrame(FrameResetStream).(*RstStream)
		rst.SetCode(RefusedStreamError)
		return c.writeFrame(rst, promisedID)
	}

	if err := c.validateNewPeerPushStream(promisedID); err != nil {
		return err
	}

	strm := NewStream(promisedID, int(c.localSettings.MaxWindowSize()), nil)
	strm.SetWindow(int(c.remoteSettings.MaxWindowSize()))
	strm.RecvPushPromise()
	c.streams.Insert(strm)
	c.lastPeerStream = promisedID

	c.signals.Emit(SignalPromise, strm, fields)

	return nil
}

// SendHeaders performs the `send_headers(stream, headers, end_stream,
// end_headers)` operation, encoding fields and splitting the result on
// remote_max_frame_size boundaries per spec §4.9's last paragraph.
func (c *Connection) SendHeaders(stream uint32, fields []*HeaderField, endStream bool) error {
	if c.state != StateConnected {
		return NewError(InternalError, "connection is not established")
	}

	strm := c.streams.Get(stream)
	if strm == nil {
		if err := c.validateNewLocalStream(stream); err != nil {
			return err
		}
		strm = NewStream(stream, int(c.localSettings.MaxWindowSize()), nil)
		strm.SetWindow(int(c.remoteSettings.MaxWindowSize()))
		c.streams.Insert(strm)
		c.lastLocalStream = stream
	}

	var raw []byte
	for _, hf := range fields {
		raw = c.encoder.AppendHeader(raw, hf, true)
	}

	if err := c.sendHeaderBlock(stream, raw, endStream, FrameHeaders, 0); err != nil {
		return err
	}

	strm.SendHeaders(endStream)
	c.settleHalfClose(strm, true)

	return nil
}

// PushPromise performs a server-initiated push: reserve a new stream
// locally and send PUSH_PROMISE on parent.
func (c *Connection) PushPromise(parent, promised uint32, fields []*HeaderField) error {
	if c.role != RoleServer {
		return NewError(InternalError, "only a server may push")
	}
	if !c.remoteSettings.Push() {
		return NewError(RefusedStreamError, "peer disabled push")
	}
	if c.streams.Get(parent) == nil {
		return NewGoAwayError(ProtocolError, "push promise on unknown parent stream")
	}
	if err := c.validateNewLocalStream(promised); err != nil {
		return err
	}

	strm := NewStream(promised, int(c.localSettings.MaxWindowSize()), nil)
	strm.SetWindow(int(c.remoteSettings.MaxWindowSize()))
	c.streams.Insert(strm)
	c.lastLocalStream = promised

	var raw []byte
	for _, hf := range fields {
		raw = c.encoder.AppendHeader(raw, hf, true)
	}

	if err := c.sendHeaderBlock(parent, raw, false, FramePushPromise, promised); err != nil {
		return err
	}

	strm.SendPushPromise()
	c.signals.Emit(SignalReserved, strm, nil)

	return nil
}

// sendHeaderBlock splits raw across remote_max_frame_size boundaries:
// the first frame keeps firstType (HEADERS or PUSH_PROMISE), every
// following frame is CONTINUATION, and only the last one sets
// END_HEADERS, per spec §4.9.
func (c *Connection) sendHeaderBlock(stream uint32, raw []byte, endStream bool, firstType FrameType, promised uint32) error {
	maxLen := int(c.remoteSettings.MaxFrameSize())
	if maxLen <= 0 {
		maxLen = int(defaultMaxFrameSize)
	}

	first := true

	for i := 0; i == 0 || i < len(raw); {
		end := i + maxLen
		if end > len(raw) {
			end = len(raw)
		}
		chunk := raw[i:end]
		last := end == len(raw)

		var fr Frame

		switch {
		case first && firstType == FramePushPromise:
			pp := AcquireFrame(FramePushPromise).(*PushPromise)
			pp.stream = promised
			pp.ended = last
			pp.SetHeader(chunk)
			fr = pp
		case first:
			h := AcquireFrame(FrameHeaders).(*Headers)
			h.SetEndStream(endStream)
			h.SetEndHeaders(last)
			h.SetHeaders(chunk)
			fr = h
		default:
			cont := AcquireFrame(FrameContinuation).(*Continuation)
			cont.SetEndHeaders(last)
			cont.SetHeader(chunk)
			fr = cont
		}

		if err := c.writeFrame(fr, stream); err != nil {
			return err
		}

		first = false
		i = end
		if last {
			break
		}
	}

	return nil
}

func (c *Connection) validateNewPeerStream(id uint32) error {
	if c.role == RoleServer && id%2 == 0 {
		return NewGoAwayError(ProtocolError, "even stream id initiated by client")
	}
	if c.role == RoleClient && id%2 != 0 {
		return NewGoAwayError(ProtocolError, "odd stream id initiated by server")
	}
	if id <= c.lastPeerStream {
		return NewGoAwayError(ProtocolError, "stream id not monotonically increasing")
	}
	return nil
}

func (c *Connection) validateNewPeerPushStream(id uint32) error {
	if id%2 != 0 {
		return NewGoAwayError(ProtocolError, "promised stream id must be even")
	}
	if id <= c.lastPeerStream {
		return NewGoAwayError(ProtocolError, "promised stream id not monotonically increasing")
	}
	return nil
}

func (c *Connection) validateNewLocalStream(id uint32) error {
	if c.role == RoleClient && id%2 == 0 {
		return NewGoAwayError(ProtocolError, "client must initiate odd stream ids")
	}
	if c.role == RoleServer && id%2 != 0 {
		return NewGoAwayError(ProtocolError, "server must initiate even stream ids")
	}
	if id <= c.lastLocalStream {
		return NewGoAwayError(ProtocolError, "stream id not monotonically increasing")
	}
	return nil
}

// applyRequestMetadata picks the content-length and trailer
// announcements out of a decoded header list.
func applyRequestMetadata(strm *Stream, fields []*HeaderField) {
	for _, hf := range fields {
		switch {
		case bytes.Equal(hf.NameBytes(), StringContentLength):
			if n, err := strconv.ParseInt(hf.Value(), 10, 64); err == nil {
				strm.SetContentLength(n)
			}
		case bytes.Equal(hf.NameBytes(), StringTrailer):
			strm.SetExpectTrailers(splitTrailerNames(hf.ValueBytes()))
		}
	}
}

func splitTrailerNames(b []byte) [][]byte {
	var names [][]byte
	for _, part := range bytes.Split(b, []byte(",")) {
		name := bytes.TrimSpace(part)
		if len(name) > 0 {
			names = append(names, ToLower(append([]byte(nil), name...)))
		}
	}
	return names
}

// validateHeaderList enforces the lowercase-name and
// connection-specific-header rules of RFC 7540 §8.1.2/§8.1.2.2.
func validateHeaderList(fields []*HeaderField) error {
	seenRegular := false

	for _, hf := range fields {
		name := hf.NameBytes()

		for _, b := range name {
			if b >= 'A' && b <= 'Z' {
				return NewGoAwayError(ProtocolError, "uppercase header name")
			}
		}

		if hf.IsPseudo() {
			if seenRegular {
				return NewGoAwayError(ProtocolError, "pseudo-header after regular header")
			}
			continue
		}
		seenRegular = true

		if bytes.Equal(name, []byte("connection")) {
			return NewGoAwayError(ProtocolError, "forbidden connection-specific header")
		}
		if bytes.Equal(name, []byte("te")) && !bytes.Equal(hf.ValueBytes(), []byte("trailers")) {
			return NewGoAwayError(ProtocolError, "te header must be 'trailers'")
		}
	}
	return nil
}

// emitRaw surfaces raw bytes (the connection preface) on :frame
// without going through the Frame/FrameHeader codec.
func (c *Connection) emitRaw(b []byte) {
	c.signals.Emit(SignalFrame, nil, append([]byte(nil), b...))
}

// writeFrame serializes fr as the body of a frame on stream, emits the
// resulting bytes on :frame/:frame_sent, and releases fr back to its
// pool.
func (c *Connection) writeFrame(fr Frame, stream uint32) error {
	frh := AcquireFrameHeader()
	frh.SetBody(fr)
	frh.SetStream(stream)

	c.writeBuf.Reset()
	bw := bufio.NewWriter(&c.writeBuf)

	_, err := frh.WriteTo(bw)
	if err == nil {
		err = bw.Flush()
	}

	if err == nil {
		c.signals.Emit(SignalFrame, nil, append([]byte(nil), c.writeBuf.Bytes()...))
		c.signals.Emit(SignalFrameSent, nil, fr)
	}

	ReleaseFrameHeader(frh)

	return err
}
