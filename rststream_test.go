package http2

import (
	"bufio"
	"bytes"
	"testing"
)

func TestRstStreamSerializeDeserializeRoundTrip(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(CancelError)
	fr.SetBody(rst)

	var bf bytes.Buffer
	bw := bufio.NewWriter(&bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	bw.Flush()

	if got := len(bf.Bytes()) - DefaultFrameSize; got != 4 {
		t.Fatalf("payload length = %d, want 4", got)
	}

	br := bufio.NewReader(&bf)
	fr2 := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr2)
	if _, err := fr2.ReadFrom(br); err != nil {
		t.Fatal(err)
	}

	got := fr2.Body().(*RstStream)
	if got.Code() != CancelError {
		t.Fatalf("code = %s, want CANCEL", got.Code())
	}
}

func TestRstStreamDeserializeRejectsShortPayload(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.setPayload([]byte{0, 0, 1})

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	defer ReleaseFrame(rst)

	if err := rst.Deserialize(fr); err != ErrMissingBytes {
		t.Fatalf("err = %v, want ErrMissingBytes", err)
	}
}

func TestRstStreamError(t *testing.T) {
	rst := &RstStream{}
	rst.SetCode(StreamClosedError)

	err := rst.Error()
	herr, ok := err.(*Error)
	if !ok {
		t.Fatalf("Error() = %T, want *Error", err)
	}
	if herr.Code != StreamClosedError {
		t.Fatalf("code = %s, want STREAM_CLOSED", herr.Code)
	}
}
