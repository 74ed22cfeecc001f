package http2

import (
	"bufio"
	"bytes"
	"testing"
)

func TestPushPromiseSerializeDeserializeRoundTrip(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	pp.stream = 42
	pp.ended = true
	pp.SetHeader([]byte("encoded-header-block"))
	fr.SetBody(pp)

	var bf bytes.Buffer
	bw := bufio.NewWriter(&bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	bw.Flush()

	if !fr.Flags().Has(FlagEndHeaders) {
		t.Fatal("expected FlagEndHeaders to be set")
	}

	br := bufio.NewReader(&bf)
	fr2 := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr2)

	if _, err := fr2.ReadFrom(br); err != nil {
		t.Fatal(err)
	}
	if fr2.Type() != FramePushPromise {
		t.Fatalf("frame type = %s, want PushPromise", fr2.Type())
	}

	got := fr2.Body().(*PushPromise)
	if got.stream != 42 {
		t.Fatalf("promised stream id = %d, want 42", got.stream)
	}
	if !got.ended {
		t.Fatal("expected ended to decode true from FlagEndHeaders")
	}
	if string(got.header) != "encoded-header-block" {
		t.Fatalf("header block = %q", got.header)
	}
}

func TestPushPromiseSerializePrefixesPromisedStreamID(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	pp.stream = 7
	pp.SetHeader([]byte("abc"))
	fr.SetBody(pp)

	pp.Serialize(fr)

	if len(fr.payload) < 4 {
		t.Fatalf("payload too short to carry a promised stream id: %d bytes", len(fr.payload))
	}
	got := uint32(fr.payload[0])<<24 | uint32(fr.payload[1])<<16 | uint32(fr.payload[2])<<8 | uint32(fr.payload[3])
	if got != 7 {
		t.Fatalf("promised stream id prefix = %d, want 7", got)
	}
	if string(fr.payload[4:]) != "abc" {
		t.Fatalf("header block suffix = %q, want abc", fr.payload[4:])
	}
}

func TestPushPromiseDeserializeRejectsMissingStreamID(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.setPayload([]byte{0x0, 0x1, 0x2}) // 3 bytes, not enough for a stream id

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	defer ReleaseFrame(pp)

	if err := pp.Deserialize(fr); err != ErrMissingBytes {
		t.Fatalf("err = %v, want ErrMissingBytes", err)
	}
}

func TestPushPromiseReset(t *testing.T) {
	pp := &PushPromise{}
	pp.stream = 5
	pp.ended = true
	pp.SetHeader([]byte("x"))

	pp.Reset()

	if pp.stream != 0 || pp.ended || len(pp.header) != 0 {
		t.Fatalf("Reset left stream=%d ended=%v header=%q", pp.stream, pp.ended, pp.header)
	}
}
