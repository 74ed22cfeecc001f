package http2

import (
	"sort"
	"time"
)

// recentlyClosedTTL is how long a closed stream id is remembered so a
// late WINDOW_UPDATE or RST_STREAM racing the close can be dropped
// silently instead of raising a protocol error, per spec §9/§4.9.
const recentlyClosedTTL = 15 * time.Second

type closedEntry struct {
	id uint32
	at time.Time
}

// Streams owns the live, id-sorted stream table plus a bounded,
// amortized-O(1)-trimmed record of recently closed stream ids.
type Streams struct {
	list []*Stream

	closed    []closedEntry
	closedIdx map[uint32]time.Time
}

func (strms *Streams) Insert(s *Stream) {
	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= s.id
	})

	if i == len(strms.list) {
		strms.list = append(strms.list, s)
	} else {
		strms.list = append(strms.list[:i+1], strms.list[i:]...)
		strms.list[i] = s
	}
}

func (strms *Streams) Del(id uint32) *Stream {
	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= id
	})

	if i < len(strms.list) && strms.list[i].id == id {
		strm := strms.list[i]
		strms.list = append(strms.list[:i], strms.list[i+1:]...)
		return strm
	}

	return nil
}

func (strms *Streams) Get(id uint32) *Stream {
	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= id
	})
	if i < len(strms.list) && strms.list[i].id == id {
		return strms.list[i]
	}

	return nil
}

// Len returns the number of live streams, counting every state
// (idle/reserved streams included). Callers wanting the
// concurrent-stream count should filter on Stream.Active().
func (strms *Streams) Len() int {
	return len(strms.list)
}

// Active returns the number of live streams that count toward
// SETTINGS_MAX_CONCURRENT_STREAMS, per spec §3's invariant.
func (strms *Streams) Active() int {
	n := 0
	for _, s := range strms.list {
		if s.Active() {
			n++
		}
	}
	return n
}

// All calls fn once per live stream, in ascending id order.
func (strms *Streams) All(fn func(*Stream)) {
	for _, s := range strms.list {
		fn(s)
	}
}

// MarkClosed records id as having just closed at now, trimming any
// entries older than recentlyClosedTTL. Entries are appended in
// non-decreasing time order (the connection calls this with its own
// monotonic clock), so trimming only ever needs to drop a prefix.
func (strms *Streams) MarkClosed(id uint32, now time.Time) {
	if strms.closedIdx == nil {
		strms.closedIdx = make(map[uint32]time.Time)
	}

	strms.closed = append(strms.closed, closedEntry{id: id, at: now})
	strms.closedIdx[id] = now

	strms.trim(now)
}

func (strms *Streams) trim(now time.Time) {
	i := 0
	for i < len(strms.closed) && now.Sub(strms.closed[i].at) >= recentlyClosedTTL {
		delete(strms.closedIdx, strms.closed[i].id)
		i++
	}
	if i > 0 {
		strms.closed = append(strms.closed[:0], strms.closed[i:]...)
	}
}

// RecentlyClosed reports whether id closed within the last
// recentlyClosedTTL, as of now.
func (strms *Streams) RecentlyClosed(id uint32, now time.Time) bool {
	t, ok := strms.closedIdx[id]
	if !ok {
		return false
	}
	return now.Sub(t) < recentlyClosedTTL
}
