package lib

import (
	"testing"
	"time"
)

func TestEventCollapsesSets(t *testing.T) {
	e := newEvent()
	e.Set()
	e.Set()
	if !e.Wait(time.Millisecond, nil) {
		t.Fatal("set event did not fire")
	}
	if e.Wait(5*time.Millisecond, nil) {
		t.Error("two Sets fired twice")
	}

	e.Set()
	e.Clear()
	if e.Wait(5*time.Millisecond, nil) {
		t.Error("cleared event fired")
	}
}

func TestEventWaitStops(t *testing.T) {
	e := newEvent()
	stop := make(chan struct{})
	close(stop)
	start := time.Now()
	if e.Wait(time.Second, stop) {
		t.Error("Wait reported an event after stop")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Wait ignored stop")
	}
}

func TestReceiveSlotKeepsNewest(t *testing.T) {
	r := newReceiveSlot()
	first := NewSegment(5, 0, DataFlags, 0, nil)
	second := NewSegment(10, 0, DataFlags, 0, nil)

	if r.put(first) {
		t.Error("put into an empty slot reported an overwrite")
	}
	if !r.put(second) {
		t.Error("second put did not overwrite")
	}
	if r.len() != 1 {
		t.Fatalf("len = %d, want 1", r.len())
	}
	seg, ok := r.take(time.Millisecond, nil)
	if !ok || seg.SequenceNumber != 10 {
		t.Fatalf("take = %v, %v", seg, ok)
	}
	if _, ok := r.take(5*time.Millisecond, nil); ok {
		t.Error("empty slot yielded a segment")
	}

	r.put(NewSegment(15, 0, DataFlags, 0, nil))
	r.drain()
	if r.len() != 0 {
		t.Error("drain left a segment behind")
	}
}

func TestSendQueueIdle(t *testing.T) {
	q := newSendQueue()
	select {
	case <-q.idleChan():
	default:
		t.Fatal("new queue is not idle")
	}

	q.push([]byte("ab"))
	q.push([]byte("cde"))
	idle := q.idleChan()
	select {
	case <-idle:
		t.Fatal("queue with data is idle")
	default:
	}

	b, ok := q.pop()
	if !ok || string(b) != "ab" {
		t.Fatalf("pop = %q, %v", b, ok)
	}
	if lost := q.discard(); lost != 3 {
		t.Errorf("discard lost %d bytes, want 3", lost)
	}
	select {
	case <-idle:
		t.Fatal("idle while a buffer is still in transmission")
	default:
	}
	q.done()
	select {
	case <-idle:
	default:
		t.Fatal("queue not idle after the last buffer was done")
	}
	if _, ok := q.pop(); ok {
		t.Error("pop from an empty queue succeeded")
	}
}

func TestMergeRemoteAck(t *testing.T) {
	s := newConnState(RoleClient, 1250)
	s.remoteAck.Store(4294967000)

	if !s.mergeRemoteAck(4294967200) {
		t.Error("forward ACK not merged")
	}
	if !s.mergeRemoteAck(100) {
		t.Error("ACK past the wrap not merged")
	}
	if s.mergeRemoteAck(4294967250) {
		t.Error("ACK from before the wrap moved remote_ack back")
	}
	if s.mergeRemoteAck(100) {
		t.Error("repeated ACK reported progress")
	}
	if got := s.remoteAck.Load(); got != 100 {
		t.Errorf("remote_ack = %d, want 100", got)
	}
}

func TestStateTransitions(t *testing.T) {
	s := newConnState(RoleServer, 1250)
	if !s.transition(StateUninitialized, StateEstablishing) {
		t.Fatal("first transition failed")
	}
	if s.transition(StateUninitialized, StateEstablishing) {
		t.Error("transition from a stale state succeeded")
	}
	s.set(StateClosed)
	snap := s.snapshot()
	if snap.State != StateClosed || snap.Role != RoleServer || snap.WindowSize != 1250 {
		t.Errorf("snapshot %+v", snap)
	}
	if StatePassiveClosing.String() != "PASSIVE_CLOSING" || State(42).String() != "UNKNOWN" {
		t.Error("state names")
	}
}
