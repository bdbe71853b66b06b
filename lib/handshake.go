package lib

import "math/rand"

// handshake runs the three-way handshake for the connection's role and, on
// success, starts the dispatch loop. SYN consumes no sequence number.
func (c *Connection) handshake() {
	defer c.wg.Done()

	if !c.state.transition(StateUninitialized, StateEstablishing) {
		return
	}
	isn, err := GenerateISN()
	if err != nil {
		c.log.Warn().Err(err).Msg("crypto ISN unavailable, falling back to math/rand")
		isn = rand.Uint32()
	}
	c.state.localSequence.Store(isn)

	if c.state.role == RoleServer {
		err = c.acceptHandshake()
	} else {
		err = c.initiateHandshake()
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("handshake aborted")
		return
	}

	c.state.remoteAck.Store(c.state.localSequence.Load())
	c.state.remoteSequence.Store(c.state.localAck.Load())
	if !c.state.transition(StateEstablishing, StateEstablished) {
		return // closed meanwhile
	}
	close(c.established)
	c.log.Debug().
		Uint32("local_seq", c.state.localSequence.Load()).
		Uint32("local_ack", c.state.localAck.Load()).
		Msg("connection established")

	c.wg.Add(1)
	go c.dispatch()
}

// initiateHandshake is the client side: SYN until SYN|ACK, then ACK.
func (c *Connection) initiateHandshake() error {
	c.state.localAck.Store(0)
	c.state.handshakeStep.Store(SynSent)
	seg, err := c.awaitSegment(
		func(s *Segment) bool { return s.Flags == SYNFlag|ACKFlag },
		func() error { return c.sendControlTolerant(SYNFlag) },
	)
	if err != nil {
		return err
	}
	c.state.localAck.Store(seg.SequenceNumber)
	seg.ReturnChunk()
	c.state.handshakeStep.Store(SynAckReceived)

	// a lost ACK is repaired by the dispatch loop answering the repeated SYN|ACK
	if err := c.sendControlTolerant(ACKFlag); err != nil {
		return err
	}
	c.state.handshakeStep.Store(AckSent)
	return nil
}

// acceptHandshake is the server side: wait for SYN, then SYN|ACK until ACK.
func (c *Connection) acceptHandshake() error {
	c.state.handshakeStep.Store(SynWait)
	seg, err := c.awaitSegment(func(s *Segment) bool { return s.Flags == SYNFlag }, nil)
	if err != nil {
		return err
	}
	c.state.localAck.Store(seg.SequenceNumber)
	seg.ReturnChunk()
	c.state.handshakeStep.Store(SynReceived)

	seg, err = c.awaitSegment(
		func(s *Segment) bool { return s.Flags == ACKFlag },
		func() error { return c.sendControlTolerant(SYNFlag | ACKFlag) },
	)
	if err != nil {
		return err
	}
	seg.ReturnChunk()
	c.state.handshakeStep.Store(AckReceived)
	return nil
}
