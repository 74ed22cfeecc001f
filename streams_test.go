package http2

import (
	"testing"
	"time"
)

func TestStreamsInsertGetDel(t *testing.T) {
	var strms Streams

	strms.Insert(NewStream(5, defaultWindowSize, nil))
	strms.Insert(NewStream(1, defaultWindowSize, nil))
	strms.Insert(NewStream(3, defaultWindowSize, nil))

	if strms.Len() != 3 {
		t.Fatalf("len = %d, want 3", strms.Len())
	}

	got := strms.Get(3)
	if got == nil || got.ID() != 3 {
		t.Fatalf("Get(3) = %v", got)
	}

	var order []uint32
	strms.All(func(s *Stream) { order = append(order, s.ID()) })
	want := []uint32{1, 3, 5}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	del := strms.Del(3)
	if del == nil || del.ID() != 3 {
		t.Fatalf("Del(3) = %v", del)
	}
	if strms.Get(3) != nil {
		t.Fatal("expected stream 3 to be gone")
	}
	if strms.Len() != 2 {
		t.Fatalf("len = %d, want 2", strms.Len())
	}
}

func TestStreamsActiveCountsOnlyLiveStates(t *testing.T) {
	var strms Streams

	idle := NewStream(1, defaultWindowSize, nil)
	open := NewStream(3, defaultWindowSize, nil)
	open.SendHeaders(false)
	reserved := NewStream(2, defaultWindowSize, nil)
	reserved.SendPushPromise()

	strms.Insert(idle)
	strms.Insert(open)
	strms.Insert(reserved)

	if n := strms.Active(); n != 1 {
		t.Fatalf("active = %d, want 1 (only the open stream)", n)
	}
}

func TestStreamsRecentlyClosedTrims(t *testing.T) {
	var strms Streams
	base := time.Unix(1000, 0)

	strms.MarkClosed(1, base)
	if !strms.RecentlyClosed(1, base.Add(time.Second)) {
		t.Fatal("expected stream 1 to still be remembered 1s later")
	}

	later := base.Add(20 * time.Second)
	strms.MarkClosed(2, later)

	if strms.RecentlyClosed(1, later) {
		t.Fatal("expected stream 1 to have been trimmed after 20s")
	}
	if !strms.RecentlyClosed(2, later) {
		t.Fatal("expected stream 2 to still be remembered")
	}
}
