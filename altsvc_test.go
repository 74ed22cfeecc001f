package http2

import (
	"bufio"
	"bytes"
	"testing"
)

func TestAltSvcSerializeDeserializeRoundTrip(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	as := AcquireFrame(FrameAltSvc).(*AltSvc)
	as.SetOrigin([]byte("example.com"))
	as.SetValue([]byte(`h2=":443"; ma=3600`))
	fr.SetBody(as)

	var bf bytes.Buffer
	bw := bufio.NewWriter(&bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	bw.Flush()

	br := bufio.NewReader(&bf)
	fr2 := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr2)

	if _, err := fr2.ReadFrom(br); err != nil {
		t.Fatal(err)
	}
	if fr2.Type() != FrameAltSvc {
		t.Fatalf("frame type = %s, want AltSvc", fr2.Type())
	}

	got := fr2.Body().(*AltSvc)
	if string(got.Origin()) != "example.com" {
		t.Fatalf("origin = %q, want example.com", got.Origin())
	}
	if string(got.Value()) != `h2=":443"; ma=3600` {
		t.Fatalf("value = %q", got.Value())
	}
}

func TestAltSvcEmptyOrigin(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	as := AcquireFrame(FrameAltSvc).(*AltSvc)
	as.SetValue([]byte(`clear`))
	fr.SetBody(as)

	var bf bytes.Buffer
	bw := bufio.NewWriter(&bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	bw.Flush()

	br := bufio.NewReader(&bf)
	fr2 := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr2)
	if _, err := fr2.ReadFrom(br); err != nil {
		t.Fatal(err)
	}

	got := fr2.Body().(*AltSvc)
	if len(got.Origin()) != 0 {
		t.Fatalf("origin = %q, want empty", got.Origin())
	}
	if string(got.Value()) != "clear" {
		t.Fatalf("value = %q, want clear", got.Value())
	}
}

func TestAltSvcDeserializeRejectsTruncatedOriginLength(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.setPayload([]byte{0x0, 0x5, 'a', 'b'}) // claims a 5-byte origin, only 2 follow

	as := AcquireFrame(FrameAltSvc).(*AltSvc)
	defer ReleaseFrame(as)

	if err := as.Deserialize(fr); err != ErrMissingBytes {
		t.Fatalf("err = %v, want ErrMissingBytes", err)
	}
}

func TestAltSvcReset(t *testing.T) {
	as := &AltSvc{}
	as.SetOrigin([]byte("a"))
	as.SetValue([]byte("b"))
	as.Reset()

	if len(as.Origin()) != 0 || len(as.Value()) != 0 {
		t.Fatalf("Reset left origin=%q value=%q, want both empty", as.Origin(), as.Value())
	}
}

func TestAltSvcCopyTo(t *testing.T) {
	as := &AltSvc{}
	as.SetOrigin([]byte("example.com"))
	as.SetValue([]byte("h2=\":443\""))

	other := &AltSvc{}
	as.CopyTo(other)

	if string(other.Origin()) != "example.com" {
		t.Fatalf("copied origin = %q", other.Origin())
	}
	if string(other.Value()) != "h2=\":443\"" {
		t.Fatalf("copied value = %q", other.Value())
	}

	// mutating the source must not affect the copy.
	as.SetOrigin([]byte("changed"))
	if string(other.Origin()) != "example.com" {
		t.Fatal("CopyTo aliased the origin slice")
	}
}
