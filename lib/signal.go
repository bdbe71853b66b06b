package lib

import "time"

// event is a single-slot notification in the style of a condition flag:
// Set marks it, a waiter consumes the mark, Clear discards a stale one.
// Any number of Sets before a Wait collapse into one.
type event struct {
	ch chan struct{}
}

func newEvent() *event {
	return &event{ch: make(chan struct{}, 1)}
}

func (e *event) Set() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

func (e *event) Clear() {
	select {
	case <-e.ch:
	default:
	}
}

// Wait blocks until the event is set, timeout elapses or stop is closed.
// It returns true only when the event fired.
func (e *event) Wait(timeout time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.ch:
		return true
	case <-timer.C:
		return false
	case <-stop:
		return false
	}
}

// receiveSlot holds at most one unconsumed data segment. A newer segment
// replaces an unconsumed older one; the dropped segment is recovered by the
// peer's retransmission. Only the dispatch loop puts.
type receiveSlot struct {
	ch chan *Segment
}

func newReceiveSlot() *receiveSlot {
	return &receiveSlot{ch: make(chan *Segment, 1)}
}

// put stores seg and reports whether an unconsumed segment was overwritten.
func (r *receiveSlot) put(seg *Segment) bool {
	overwritten := false
	select {
	case old := <-r.ch:
		old.ReturnChunk()
		overwritten = true
	default:
	}
	select {
	case r.ch <- seg:
	default:
		// only reachable with a second writer
		seg.ReturnChunk()
	}
	return overwritten
}

// take waits up to timeout for a segment.
func (r *receiveSlot) take(timeout time.Duration, stop <-chan struct{}) (*Segment, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case seg := <-r.ch:
		return seg, true
	case <-timer.C:
		return nil, false
	case <-stop:
		return nil, false
	}
}

// len reports whether a segment is waiting.
func (r *receiveSlot) len() int {
	return len(r.ch)
}

func (r *receiveSlot) drain() {
	for {
		select {
		case seg := <-r.ch:
			seg.ReturnChunk()
		default:
			return
		}
	}
}
