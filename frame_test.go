package http2

import "testing"

func TestFrameTypeString(t *testing.T) {
	cases := map[FrameType]string{
		FrameData:         "Data",
		FrameHeaders:      "Headers",
		FramePriority:     "Priority",
		FrameResetStream:  "RstStream",
		FrameSettings:     "Settings",
		FramePushPromise:  "PushPromise",
		FramePing:         "Ping",
		FrameGoAway:       "GoAway",
		FrameWindowUpdate: "WindowUpdate",
		FrameContinuation: "Continuation",
		FrameAltSvc:       "AltSvc",
		FrameOrigin:       "Origin",
		FrameType(0xff):   "Unknown",
	}

	for ft, want := range cases {
		if got := ft.String(); got != want {
			t.Fatalf("%#x.String() = %q, want %q", uint8(ft), got, want)
		}
	}
}

func TestFrameFlags(t *testing.T) {
	var f FrameFlags
	f = f.Add(FlagEndHeaders)
	if !f.Has(FlagEndHeaders) {
		t.Fatal("expected FlagEndHeaders to be set after Add")
	}
	if f.Has(FlagPadded) {
		t.Fatal("did not expect FlagPadded to be set")
	}

	f = f.Add(FlagPadded)
	f = f.Delete(FlagEndHeaders)
	if f.Has(FlagEndHeaders) {
		t.Fatal("expected FlagEndHeaders to be cleared after Delete")
	}
	if !f.Has(FlagPadded) {
		t.Fatal("expected FlagPadded to survive unrelated Delete")
	}
}

func TestAcquireFrameKnownTypesRoundTripThroughPool(t *testing.T) {
	types := []FrameType{
		FrameData, FrameHeaders, FramePriority, FrameResetStream,
		FrameSettings, FramePushPromise, FramePing, FrameGoAway,
		FrameWindowUpdate, FrameContinuation, FrameAltSvc, FrameOrigin,
	}

	for _, ft := range types {
		fr := AcquireFrame(ft)
		if fr.Type() != ft {
			t.Fatalf("AcquireFrame(%s).Type() = %s", ft, fr.Type())
		}
		ReleaseFrame(fr)
	}
}

func TestAcquireFrameUnknownType(t *testing.T) {
	fr := AcquireFrame(FrameType(0xee))
	u, ok := fr.(*Unknown)
	if !ok {
		t.Fatalf("AcquireFrame(0xee) = %T, want *Unknown", fr)
	}
	if u.Type() != FrameType(0xee) {
		t.Fatalf("unknown frame type = %#x, want 0xee", u.Type())
	}
	ReleaseFrame(u)
}

func TestUnknownDeserializeSerializeRoundTrip(t *testing.T) {
	fr := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr)
	fr.kind = FrameType(0xfe)
	fr.setPayload([]byte("raw bytes"))

	u := acquireUnknown(FrameType(0xfe))
	defer releaseUnknown(u)

	if err := u.Deserialize(fr); err != nil {
		t.Fatal(err)
	}
	if string(u.Payload()) != "raw bytes" {
		t.Fatalf("payload = %q, want %q", u.Payload(), "raw bytes")
	}

	fr2 := AcquireFrameHeader()
	defer ReleaseFrameHeader(fr2)
	u.Serialize(fr2)

	if fr2.kind != FrameType(0xfe) {
		t.Fatalf("serialized kind = %#x, want 0xfe", fr2.kind)
	}
	if string(fr2.payload) != "raw bytes" {
		t.Fatalf("serialized payload = %q, want %q", fr2.payload, "raw bytes")
	}
}

func TestReleaseFrameNilIsNoOp(t *testing.T) {
	ReleaseFrame(nil)
}
