package h2fasthttp

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strconv"

	http2 "github.com/dgrr/h2e"
	"github.com/valyala/fasthttp"
)

// ErrServerSupport mirrors the teacher's fasthttp2.ErrServerSupport:
// returned when a peer completed a TCP/TLS handshake but never
// negotiated (or upgraded to) HTTP/2. Do also returns it for any
// request submitted after the client's run loop has exited.
var ErrServerSupport = errors.New("h2fasthttp: server doesn't support HTTP/2")

// request is one in-flight round trip, grounded on the teacher's
// fasthttp2.reqRes.
type request struct {
	req *fasthttp.Request
	res *fasthttp.Response
	ch  chan error
}

// Client drives one HTTP/2 connection's worth of fasthttp round
// trips, grounded on the teacher's fasthttp2.Client. Unlike the
// teacher's three-goroutine (read/write/dispatch) design, every call
// into the embedded *http2.Connection happens on a single run
// goroutine; Do only ever hands work across via reqCh.
type Client struct {
	conn net.Conn
	c    *http2.Connection

	// nextID and active are only ever touched from the run goroutine:
	// reqCh is how Do hands a request across to it.
	nextID uint32
	active map[uint32]*request

	reqCh  chan *request
	closed chan struct{}
}

// NewClient wraps an already-connected, ALPN-"h2"-negotiated (or
// h2c-upgraded) net.Conn. Dialing and TLS are this package's concern,
// not the engine's.
func NewClient(conn net.Conn) (*Client, error) {
	cl := &Client{
		conn:   conn,
		c:      http2.NewConnection(http2.RoleClient),
		nextID: 1,
		reqCh:  make(chan *request, 128),
		active: make(map[uint32]*request),
		closed: make(chan struct{}),
	}

	cl.c.Subscribe(http2.SignalFrame, func(_ *http2.Stream, payload interface{}) {
		conn.Write(payload.([]byte))
	})
	cl.c.Subscribe(http2.SignalHeaders, func(strm *http2.Stream, payload interface{}) {
		rr, ok := cl.active[strm.ID()]
		if !ok {
			return
		}
		if err := populateResponse(rr.res, payload.([]*http2.HeaderField)); err != nil {
			cl.finish(strm.ID(), err)
		}
	})
	cl.c.Subscribe(http2.SignalData, func(strm *http2.Stream, payload interface{}) {
		if rr, ok := cl.active[strm.ID()]; ok {
			rr.res.AppendBody(payload.([]byte))
		}
	})
	cl.c.Subscribe(http2.SignalClose, func(strm *http2.Stream, _ interface{}) {
		cl.finish(strm.ID(), nil)
	})
	cl.c.Subscribe(http2.SignalGoAway, func(_ *http2.Stream, payload interface{}) {
		code, _ := payload.(http2.ErrorCode)
		cl.failAll("connection closed: " + code.String())
	})

	if err := cl.c.Handshake(); err != nil {
		return nil, err
	}

	go cl.run()

	return cl, nil
}

func (cl *Client) finish(id uint32, err error) {
	rr, ok := cl.active[id]
	if !ok {
		return
	}
	delete(cl.active, id)
	rr.ch <- err
}

func (cl *Client) failAll(msg string) {
	err := errors.New(msg)
	for id, rr := range cl.active {
		delete(cl.active, id)
		rr.ch <- err
	}
}

// Do performs one request/response round trip, blocking until the
// full response is received or the connection fails.
func (cl *Client) Do(req *fasthttp.Request, res *fasthttp.Response) error {
	rr := &request{req: req, res: res, ch: make(chan error, 1)}

	select {
	case cl.reqCh <- rr:
	case <-cl.closed:
		return ErrServerSupport
	}

	return <-rr.ch
}

// run is the single goroutine that owns cl.c: it serializes inbound
// bytes, outbound request dispatch, and all engine signal callbacks
// onto one loop, matching the single-threaded contract server.go's
// ServeConn also follows.
func (cl *Client) run() {
	defer close(cl.closed)

	type chunk struct {
		b   []byte
		err error
	}
	chunks := make(chan chunk, 1)
	go func() {
		br := bufio.NewReaderSize(cl.conn, 4096)
		for {
			buf := make([]byte, 4096)
			n, err := br.Read(buf)
			if n > 0 {
				chunks <- chunk{b: buf[:n]}
			}
			if err != nil {
				chunks <- chunk{err: err}
				return
			}
		}
	}()

	for {
		select {
		case ch := <-chunks:
			if ch.err != nil {
				cl.failAll(ch.err.Error())
				return
			}
			if err := cl.c.Receive(ch.b); err != nil {
				cl.failAll(err.Error())
				return
			}
		case rr := <-cl.reqCh:
			id := cl.nextID
			cl.nextID += 2
			cl.active[id] = rr
			if err := cl.sendRequest(id, rr.req); err != nil {
				delete(cl.active, id)
				rr.ch <- err
			}
		}

		if cl.c.State() == http2.StateClosed {
			cl.failAll("connection closed")
			return
		}
	}
}

func (cl *Client) sendRequest(id uint32, req *fasthttp.Request) error {
	fields := make([]*http2.HeaderField, 0, 8)
	add := func(name, value []byte) {
		hf := http2.AcquireHeaderField()
		hf.SetBytes(name, value)
		fields = append(fields, hf)
	}

	add(http2.StringMethod, req.Header.Method())
	add(http2.StringPath, req.URI().RequestURI())
	add(http2.StringScheme, req.URI().Scheme())
	add(http2.StringAuthority, req.URI().Host())
	if ua := req.Header.UserAgent(); len(ua) != 0 {
		add(http2.StringUserAgent, ua)
	}
	req.Header.VisitAll(func(k, v []byte) {
		if bytes.EqualFold(k, http2.StringUserAgent) {
			return
		}
		add(http2.ToLower(append([]byte(nil), k...)), v)
	})

	body := req.Body()
	err := cl.c.SendHeaders(id, fields, len(body) == 0)
	for _, hf := range fields {
		http2.ReleaseHeaderField(hf)
	}
	if err != nil {
		return err
	}

	if len(body) != 0 {
		return cl.c.SendData(id, body, true)
	}
	return nil
}

func populateResponse(res *fasthttp.Response, fields []*http2.HeaderField) error {
	for _, hf := range fields {
		if hf.IsPseudo() {
			if len(hf.NameBytes()) > 1 && hf.NameBytes()[1] == 's' { // :status
				n, err := strconv.Atoi(hf.Value())
				if err != nil {
					return err
				}
				res.SetStatusCode(n)
			}
			continue
		}
		if bytes.Equal(hf.NameBytes(), http2.StringContentLength) {
			n, _ := strconv.Atoi(hf.Value())
			res.Header.SetContentLength(n)
		} else {
			res.Header.AddBytesKV(hf.NameBytes(), hf.ValueBytes())
		}
	}
	return nil
}

// Close shuts the connection down, failing any requests still
// in flight.
func (cl *Client) Close() error {
	// run fails the in-flight requests once its reader sees the
	// closed connection; cl.active is never touched from here.
	return cl.conn.Close()
}

// Transport adapts Do to fasthttp.TransportFunc, so it can be
// installed as a *fasthttp.HostClient's Transport, grounded on the
// teacher's fasthttp2.Do.
func (cl *Client) Transport() fasthttp.TransportFunc {
	return cl.Do
}
