package h2fasthttp

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	http2 "github.com/dgrr/h2e"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fastrand"
)

// Server drives the http2 engine over accepted net.Conns on behalf
// of a *fasthttp.Server, grounded on the teacher's
// fasthttp2.ServerAdaptor/ConfigureServer pair.
type Server struct {
	Handler fasthttp.RequestHandler

	// PingInterval, if non-zero, sends a keepalive PING on idle
	// connections roughly this often. Each connection's actual
	// interval is jittered by up to 10% (via fastrand, the same
	// low-stakes-randomness choice http2utils makes for DATA
	// padding) so that many connections opened at once don't all
	// ping in lockstep.
	PingInterval time.Duration

	readBufferSize int
}

// NewServer wraps an existing fasthttp.Server's handler for HTTP/2.
func NewServer(s *fasthttp.Server) *Server {
	return &Server{Handler: s.Handler, readBufferSize: 4096}
}

// jitteredInterval returns d shortened by up to 10%, so a fleet of
// connections sharing the same PingInterval don't all wake at once.
func jitteredInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(fastrand.Uint32n(uint32(d / 10)))
	return d - jitter
}

var ctxPool = sync.Pool{
	New: func() interface{} { return &fasthttp.RequestCtx{} },
}

// ServeConn drives one HTTP/2 server connection on conn until it
// closes or a connection error ends it. conn must already have ALPN
// negotiated "h2", or have completed the h2c upgrade handshake; the
// byte transport itself is this package's concern, not the engine's.
func (srv *Server) ServeConn(conn net.Conn) error {
	c := http2.NewConnection(http2.RoleServer)

	c.Subscribe(http2.SignalFrame, func(_ *http2.Stream, payload interface{}) {
		conn.Write(payload.([]byte))
	})

	c.Subscribe(http2.SignalStream, func(strm *http2.Stream, _ interface{}) {
		ctx := ctxPool.Get().(*fasthttp.RequestCtx)
		ctx.Request.Reset()
		ctx.Response.Reset()
		strm.SetData(ctx)
	})

	c.Subscribe(http2.SignalHeaders, func(strm *http2.Stream, payload interface{}) {
		ctx, ok := strm.Data().(*fasthttp.RequestCtx)
		if !ok || ctx == nil {
			return
		}
		populateRequestHeaders(&ctx.Request, payload.([]*http2.HeaderField))
	})

	c.Subscribe(http2.SignalData, func(strm *http2.Stream, payload interface{}) {
		ctx, ok := strm.Data().(*fasthttp.RequestCtx)
		if !ok || ctx == nil {
			return
		}
		ctx.Request.AppendBody(payload.([]byte))
	})

	c.Subscribe(http2.SignalHalfClose, func(strm *http2.Stream, _ interface{}) {
		if strm.State() != http2.StreamStateHalfClosedRemote {
			return
		}
		ctx, ok := strm.Data().(*fasthttp.RequestCtx)
		if !ok || ctx == nil {
			return
		}
		srv.respond(c, strm, ctx)
	})

	c.Subscribe(http2.SignalClose, func(strm *http2.Stream, _ interface{}) {
		if ctx, ok := strm.Data().(*fasthttp.RequestCtx); ok && ctx != nil {
			strm.SetData(nil)
			ctxPool.Put(ctx)
		}
	})

	// The engine itself is single-threaded and caller-driven (no
	// internal goroutines), so every call into c must come from this
	// one goroutine. A separate reader goroutine only ever pushes raw
	// bytes onto chunks; it never touches c.
	type chunk struct {
		b   []byte
		err error
	}
	chunks := make(chan chunk, 1)
	go func() {
		br := bufio.NewReaderSize(conn, srv.readBufferSize)
		for {
			buf := make([]byte, srv.readBufferSize)
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

	var pingTick <-chan time.Time
	if srv.PingInterval > 0 {
		pingTick = time.After(jitteredInterval(srv.PingInterval))
	}

	for {
		select {
		case ch := <-chunks:
			if ch.err != nil {
				if ch.err == io.EOF {
					return nil
				}
				return ch.err
			}
			if err := c.Receive(ch.b); err != nil {
				return err
			}
		case <-pingTick:
			var payload [8]byte
			c.Ping(payload)
			pingTick = time.After(jitteredInterval(srv.PingInterval))
		}

		if c.State() == http2.StateClosed {
			return nil
		}
	}
}

// respond runs the wrapped fasthttp handler and writes its result
// back as HEADERS (+ DATA), chunked on the 16KiB frame boundary the
// teacher's fasthttp2.writeData also used.
func (srv *Server) respond(c *http2.Connection, strm *http2.Stream, ctx *fasthttp.RequestCtx) {
	ctx.Request.Header.SetProtocolBytes(http2.StringHTTP2)

	srv.Handler(ctx)

	fields := buildResponseFields(&ctx.Response)
	body := ctx.Response.Body()
	hasBody := len(body) != 0

	if err := c.SendHeaders(strm.ID(), fields, !hasBody); err != nil {
		releaseResponseFields(fields)
		c.Close(strm.ID(), err)
		return
	}
	releaseResponseFields(fields)

	if hasBody {
		srv.sendBody(c, strm, body)
	}
}

const maxDataFrameSize = 1 << 14

func (srv *Server) sendBody(c *http2.Connection, strm *http2.Stream, body []byte) {
	for i := 0; i < len(body); i += maxDataFrameSize {
		end := i + maxDataFrameSize
		if end > len(body) {
			end = len(body)
		}
		if err := c.SendData(strm.ID(), body[i:end], end == len(body)); err != nil {
			c.Close(strm.ID(), err)
			return
		}
	}
}
