// Package h2fasthttp binds the transport-agnostic http2 engine to
// github.com/valyala/fasthttp over a concrete net.Conn, grounded on
// the teacher's fasthttp2 adaptor: pseudo-header dispatch on the
// leading byte, dynamic.Header population via AddBytesKV, and a
// pooled *fasthttp.RequestCtx per stream.
package h2fasthttp

import (
	"bytes"
	"strconv"

	http2 "github.com/dgrr/h2e"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http/httpguts"
)

// populateRequest folds one decoded header field into req, following
// the teacher's fasthttpRequestHeaders/OnFrame switch on the first
// byte of the (stripped) pseudo-header name.
func populateRequest(req *fasthttp.Request, hf *http2.HeaderField) {
	k, v := hf.NameBytes(), hf.ValueBytes()

	if !hf.IsPseudo() &&
		!bytes.Equal(k, http2.StringUserAgent) &&
		!bytes.Equal(k, http2.StringContentType) {
		req.Header.AddBytesKV(k, v)
		return
	}

	if hf.IsPseudo() {
		k = k[1:]
	}
	if len(k) == 0 {
		return
	}

	switch k[0] {
	case 'm': // :method
		req.Header.SetMethodBytes(v)
	case 'p': // :path
		req.URI().SetPathBytes(v)
	case 's': // :scheme
		req.URI().SetSchemeBytes(v)
	case 'a': // :authority
		req.URI().SetHostBytes(v)
		req.Header.SetHostBytes(v)
	case 'u': // user-agent
		req.Header.SetUserAgentBytes(v)
	case 'c': // content-type
		req.Header.SetContentTypeBytes(v)
	}
}

// populateRequestHeaders applies every field decoded off one HEADERS
// (+ CONTINUATION) block to req. fields is only valid for the
// duration of the call: the connection releases them as soon as its
// :headers signal handlers return.
func populateRequestHeaders(req *fasthttp.Request, fields []*http2.HeaderField) {
	for _, hf := range fields {
		populateRequest(req, hf)
	}
}

// buildResponseFields encodes res into a slice of header fields ready
// for Connection.SendHeaders, status pseudo-header first per RFC
// 7540 §8.1.2.4. The caller must releaseResponseFields the result.
func buildResponseFields(res *fasthttp.Response) []*http2.HeaderField {
	fields := make([]*http2.HeaderField, 0, 8)

	status := http2.AcquireHeaderField()
	status.SetNameBytes(http2.StringStatus)
	status.SetValue(strconv.Itoa(res.StatusCode()))
	fields = append(fields, status)

	res.Header.SetContentLength(len(res.Body()))
	res.Header.VisitAll(func(k, v []byte) {
		if !validHeaderField(k, v) {
			return
		}
		hf := http2.AcquireHeaderField()
		hf.SetBytes(http2.ToLower(append([]byte(nil), k...)), v)
		fields = append(fields, hf)
	})

	return fields
}

// validHeaderField checks an application-set response header against
// RFC 7230 token/field-value syntax before it reaches HPACK. The
// engine's own validateHeaderList only enforces the spec's
// forbidden-header/case rules, not this.
func validHeaderField(name, value []byte) bool {
	return httpguts.ValidHeaderFieldName(string(name)) && httpguts.ValidHeaderFieldValue(string(value))
}

func releaseResponseFields(fields []*http2.HeaderField) {
	for _, hf := range fields {
		http2.ReleaseHeaderField(hf)
	}
}
