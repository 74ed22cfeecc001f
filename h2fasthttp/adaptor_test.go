package h2fasthttp

import (
	"testing"

	http2 "github.com/dgrr/h2e"
	"github.com/valyala/fasthttp"
)

func TestPopulateRequestPseudoHeaders(t *testing.T) {
	req := &fasthttp.Request{}

	fields := []*http2.HeaderField{
		newField(":method", "POST"),
		newField(":path", "/upload"),
		newField(":scheme", "https"),
		newField(":authority", "example.com"),
		newField("content-type", "text/plain"),
		newField("x-request-id", "abc-123"),
	}
	defer releaseFields(fields)

	populateRequestHeaders(req, fields)

	if string(req.Header.Method()) != "POST" {
		t.Fatalf("method = %q, want POST", req.Header.Method())
	}
	if string(req.URI().Path()) != "/upload" {
		t.Fatalf("path = %q, want /upload", req.URI().Path())
	}
	if string(req.URI().Scheme()) != "https" {
		t.Fatalf("scheme = %q, want https", req.URI().Scheme())
	}
	if string(req.URI().Host()) != "example.com" {
		t.Fatalf("host = %q, want example.com", req.URI().Host())
	}
	if string(req.Header.ContentType()) != "text/plain" {
		t.Fatalf("content-type = %q, want text/plain", req.Header.ContentType())
	}
	if got := req.Header.Peek("x-request-id"); string(got) != "abc-123" {
		t.Fatalf("x-request-id = %q, want abc-123", got)
	}
}

func TestBuildResponseFieldsStatusFirst(t *testing.T) {
	res := &fasthttp.Response{}
	res.SetStatusCode(404)
	res.Header.Set("X-Custom", "yes")
	res.SetBody([]byte("not found"))

	fields := buildResponseFields(res)
	defer releaseResponseFields(fields)

	if len(fields) == 0 {
		t.Fatal("expected at least the :status field")
	}
	if string(fields[0].NameBytes()) != ":status" {
		t.Fatalf("first field = %q, want :status", fields[0].NameBytes())
	}
	if fields[0].Value() != "404" {
		t.Fatalf("status value = %q, want 404", fields[0].Value())
	}

	var sawCustom bool
	for _, hf := range fields[1:] {
		if string(hf.NameBytes()) == "x-custom" {
			sawCustom = true
			if hf.Value() != "yes" {
				t.Fatalf("x-custom value = %q, want yes", hf.Value())
			}
		}
	}
	if !sawCustom {
		t.Fatal("expected x-custom to survive translation, lowercased")
	}
}

func TestValidHeaderFieldRejectsControlBytes(t *testing.T) {
	if validHeaderField([]byte("x-bad"), []byte("line1\x00line2")) {
		t.Fatal("expected a NUL byte in a header value to be rejected")
	}
	if validHeaderField([]byte("x-bad\x00name"), []byte("ok")) {
		t.Fatal("expected a NUL byte in a header name to be rejected")
	}
	if !validHeaderField([]byte("x-ok"), []byte("fine")) {
		t.Fatal("expected an ordinary header to be accepted")
	}
}

func newField(name, value string) *http2.HeaderField {
	hf := http2.AcquireHeaderField()
	hf.Set(name, value)
	return hf
}

func releaseFields(fields []*http2.HeaderField) {
	for _, hf := range fields {
		http2.ReleaseHeaderField(hf)
	}
}
