package http2

import (
	"bufio"
	"bytes"
	"testing"
)

func TestHeadersSerializeDeserializeRoundTrip(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	h := AcquireFrame(FrameHeaders).(*Headers)
	h.SetEndStream(true)
	h.SetEndHeaders(true)
	h.SetHeaders([]byte("encoded-header-block"))
	fr.SetBody(h)

	var bf bytes.Buffer
	bw := bufio.NewWriter(&bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	bw.Flush()

	if !fr.Flags().Has(FlagEndStream) {
		t.Fatal("expected FlagEndStream to be set")
	}
	if !fr.Flags().Has(FlagEndHeaders) {
		t.Fatal("expected FlagEndHeaders to be set")
	}

	br := bufio.NewReader(&bf)
	fr2 := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr2)
	if _, err := fr2.ReadFrom(br); err != nil {
		t.Fatal(err)
	}

	got := fr2.Body().(*Headers)
	if !got.EndStream() || !got.EndHeaders() {
		t.Fatalf("endStream=%v endHeaders=%v, want both true", got.EndStream(), got.EndHeaders())
	}
	if string(got.Headers()) != "encoded-header-block" {
		t.Fatalf("headers = %q", got.Headers())
	}
}

func TestHeadersDeserializeWithPriority(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.SetFlags(FlagPriority)

	payload := make([]byte, 0, 10)
	payload = append(payload, 0, 0, 0, 3, 200) // stream=3, weight=200
	payload = append(payload, []byte("hdrs")...)
	fr.setPayload(payload)

	h := AcquireFrame(FrameHeaders).(*Headers)
	defer ReleaseFrame(h)

	if err := h.Deserialize(fr); err != nil {
		t.Fatal(err)
	}
	if h.Stream() != 3 {
		t.Fatalf("stream = %d, want 3", h.Stream())
	}
	if h.Weight() != 200 {
		t.Fatalf("weight = %d, want 200", h.Weight())
	}
	if string(h.Headers()) != "hdrs" {
		t.Fatalf("headers = %q, want hdrs", h.Headers())
	}
}

func TestHeadersDeserializeRejectsShortPriority(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.SetFlags(FlagPriority)
	fr.setPayload([]byte{0, 0, 0, 1}) // 4 bytes, needs 5 for stream+weight

	h := AcquireFrame(FrameHeaders).(*Headers)
	defer ReleaseFrame(h)

	if err := h.Deserialize(fr); err != ErrMissingBytes {
		t.Fatalf("err = %v, want ErrMissingBytes", err)
	}
}

func TestHeadersAppendRawHeaders(t *testing.T) {
	h := &Headers{}
	h.SetHeaders([]byte("abc"))
	h.AppendRawHeaders([]byte("def"))

	if string(h.Headers()) != "abcdef" {
		t.Fatalf("headers = %q, want abcdef", h.Headers())
	}
}

func TestHeadersCopyToDoesNotAlias(t *testing.T) {
	h := &Headers{}
	h.SetHeaders([]byte("abc"))
	h.SetEndStream(true)

	other := &Headers{}
	h.CopyTo(other)

	h.SetHeaders([]byte("changed"))
	if string(other.Headers()) != "abc" {
		t.Fatal("CopyTo aliased the headers slice")
	}
	if !other.EndStream() {
		t.Fatal("CopyTo did not copy endStream")
	}
}
