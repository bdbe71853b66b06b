package lib

import "sync/atomic"

// State is the lifecycle state of a connection.
type State int32

const (
	StateUninitialized State = iota
	StateEstablishing
	StateEstablished
	StateActiveClosing
	StatePassiveClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateEstablishing:
		return "ESTABLISHING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateActiveClosing:
		return "ACTIVE_CLOSING"
	case StatePassiveClosing:
		return "PASSIVE_CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Role decides which side of the handshake a connection plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// RoleFor assigns the role by port comparison: the lower port is the server.
// Two peers using the same port both become clients and never finish the
// handshake.
func RoleFor(localPort, remotePort int) Role {
	if localPort < remotePort {
		return RoleServer
	}
	return RoleClient
}

// connState is the sequence space of one connection. Every field is shared
// between goroutines and is therefore atomic. Writers by phase:
//   - localSequence: handshake, sender, termination
//   - remoteAck: handshake, dispatch loop (monotonic merge only)
//   - localAck, remoteSequence: handshake, receive path, termination
type connState struct {
	localSequence  atomic.Uint32 // next byte offset this side will send
	localAck       atomic.Uint32 // next byte offset accepted from the peer
	remoteAck      atomic.Uint32 // highest offset of our stream the peer acknowledged
	remoteSequence atomic.Uint32 // sequence number of the last observed incoming segment
	windowSize     uint32        // fixed at construction
	role           Role
	state          atomic.Int32
	handshakeStep  atomic.Int32 // SynSent.. or SynWait.. depending on role
	closeStep      atomic.Int32 // CallerFinSent.. or RespFinReceived.. depending on path
}

func newConnState(role Role, windowSize uint32) *connState {
	s := &connState{
		role:       role,
		windowSize: windowSize,
	}
	s.state.Store(int32(StateUninitialized))
	return s
}

func (s *connState) current() State {
	return State(s.state.Load())
}

// transition moves from one state to another and reports whether it won.
func (s *connState) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *connState) set(to State) {
	s.state.Store(int32(to))
}

// mergeRemoteAck raises remoteAck to ack if ack is ahead of it. Reordered or
// duplicated ACKs never move remoteAck backwards.
func (s *connState) mergeRemoteAck(ack uint32) bool {
	for {
		old := s.remoteAck.Load()
		merged := seqMax(old, ack)
		if merged == old {
			return false
		}
		if s.remoteAck.CompareAndSwap(old, merged) {
			return true
		}
	}
}

// StateSnapshot is a point-in-time copy of the sequence space.
type StateSnapshot struct {
	State          State
	Role           Role
	LocalSequence  uint32
	LocalAck       uint32
	RemoteAck      uint32
	RemoteSequence uint32
	WindowSize     uint32
	HandshakeStep  int
	CloseStep      int
}

func (s *connState) snapshot() StateSnapshot {
	return StateSnapshot{
		State:          s.current(),
		Role:           s.role,
		LocalSequence:  s.localSequence.Load(),
		LocalAck:       s.localAck.Load(),
		RemoteAck:      s.remoteAck.Load(),
		RemoteSequence: s.remoteSequence.Load(),
		WindowSize:     s.windowSize,
		HandshakeStep:  int(s.handshakeStep.Load()),
		CloseStep:      int(s.closeStep.Load()),
	}
}
