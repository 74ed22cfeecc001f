package http2

// FlowBuffer is a FIFO queue of outbound DATA frames waiting on flow
// control capacity. One is owned by each Stream; the connection-level
// window (tracked separately on Connection) further gates every
// stream's sends before a frame ever reaches its own FlowBuffer.
type FlowBuffer struct {
	queue []*Data
}

// Empty reports whether the buffer holds any pending frame.
func (fb *FlowBuffer) Empty() bool {
	return len(fb.queue) == 0
}

// Reset drops every buffered frame, releasing them to the pool.
func (fb *FlowBuffer) Reset() {
	for _, d := range fb.queue {
		ReleaseFrame(d)
	}
	fb.queue = fb.queue[:0]
}

// Push enqueues a DATA frame for later draining.
func (fb *FlowBuffer) Push(d *Data) {
	fb.queue = append(fb.queue, d)
}

// Send attempts to emit d immediately against window, or enqueues it
// for later draining. emit is called with each frame that is actually
// ready to go out, in order; window must already reflect any bytes
// emitted by emit before Send returns. emit may release the frame it is
// given, so each frame's length is taken before the call.
//
// It mirrors the teacher's single-pass "short-circuit when the queue
// is already empty" structure used throughout the frame handlers, here
// generalized into the queue/split/drain policy spec §4.7 describes.
func (fb *FlowBuffer) Send(d *Data, window *int, emit func(*Data)) {
	if fb.Empty() && fits(d, *window) {
		n := len(d.Data())
		emit(d)
		*window -= n
		return
	}

	fb.Push(d)
	fb.drain(window, emit)
}

// fits reports whether d can be sent whole against the given window:
// either its payload is within the window, or it is a zero-length
// END_STREAM frame (always permitted, even at window 0).
func fits(d *Data, window int) bool {
	if len(d.Data()) <= window {
		return true
	}
	return len(d.Data()) == 0 && d.EndStream()
}

// Drain attempts to release as many queued frames as the current
// window allows, splitting the head frame at the window boundary when
// it does not fit whole.
func (fb *FlowBuffer) Drain(window *int, emit func(*Data)) {
	fb.drain(window, emit)
}

func (fb *FlowBuffer) drain(window *int, emit func(*Data)) {
	for len(fb.queue) > 0 {
		head := fb.queue[0]

		if fits(head, *window) {
			n := len(head.Data())
			emit(head)
			*window -= n
			fb.queue = fb.queue[1:]
			continue
		}

		if *window <= 0 {
			break
		}

		tail := AcquireFrame(FrameData).(*Data)
		tail.SetEndStream(head.EndStream())
		tail.SetData(append(tail.Data()[:0], head.Data()[*window:]...))

		head.SetData(head.Data()[:*window])
		head.SetEndStream(false)

		n := len(head.Data())
		emit(head)
		*window -= n

		fb.queue[0] = tail
		break
	}
}
