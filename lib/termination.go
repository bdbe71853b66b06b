package lib

import "time"

// startActiveClose moves an established connection into ActiveClosing and
// runs the closing exchange in the background.
func (c *Connection) startActiveClose() bool {
	if !c.state.transition(StateEstablished, StateActiveClosing) {
		return false
	}
	c.log.Info().Msg("active close")
	c.wg.Add(1)
	go c.terminateActive()
	return true
}

// startPassiveClose is called by the dispatch loop when the peer's FIN
// arrives.
func (c *Connection) startPassiveClose() {
	if !c.state.transition(StateEstablished, StatePassiveClosing) {
		return
	}
	c.log.Info().Msg("peer closed, passive close")
	c.wg.Add(1)
	go c.terminatePassive()
}

func (c *Connection) finishTermination() {
	c.terminateOnce.Do(func() {
		c.state.set(StateClosed)
		close(c.terminated)
	})
}

// terminateActive sends FIN until the dispatch loop has stopped and the peer
// answers with FIN|ACK, then acknowledges and lingers for a retransmitted
// FIN|ACK.
func (c *Connection) terminateActive() {
	defer c.wg.Done()
	defer c.finishTermination()

	select {
	case <-c.queue.idleChan():
	case <-c.closeSignal:
		return
	}

	sendFin := func() error { return c.sendControlTolerant(FINFlag) }
	c.stopDispatch()
	if err := c.repeatUntil(c.dispatchDone, sendFin); err != nil {
		return
	}
	c.state.closeStep.Store(CallerFinSent)

	// the peer's FIN|ACK carries its sequence number bumped past our last ack
	seg, err := c.awaitSegment(func(s *Segment) bool {
		return s.Flags == FINFlag|ACKFlag && s.SequenceNumber == SeqIncrement(c.state.localAck.Load())
	}, sendFin)
	if err != nil {
		c.log.Debug().Err(err).Msg("active close interrupted")
		return
	}
	c.state.remoteSequence.Store(seg.SequenceNumber)
	c.state.localAck.Store(seg.SequenceNumber)
	seg.ReturnChunk()
	c.state.localSequence.Store(SeqIncrement(c.state.localSequence.Load()))
	c.state.closeStep.Store(CallerFinAckReceived)

	for i := 0; i < FinalAckCount; i++ {
		if err := c.sendControlTolerant(ACKFlag); err != nil {
			return
		}
	}
	c.state.closeStep.Store(CallerAckSent)
	c.linger()
	c.log.Info().Msg("active close complete")
}

// linger stays around for one timeout to answer a FIN|ACK the peer repeats
// because our ACKs were lost.
func (c *Connection) linger() {
	timer := time.NewTimer(c.config.TimeoutDuration())
	defer timer.Stop()
	for {
		select {
		case seg := <-c.incoming:
			if seg.Flags == FINFlag|ACKFlag {
				if err := c.sendControlTolerant(ACKFlag); err != nil {
					seg.ReturnChunk()
					return
				}
			}
			seg.ReturnChunk()
		case <-timer.C:
			return
		case <-c.closeSignal:
			return
		}
	}
}

// terminatePassive answers the peer's FIN once our own queued data has been
// handled: FIN|ACK until the peer's ACK arrives. Any transport failure ends
// the exchange, the peer is then presumed gone.
func (c *Connection) terminatePassive() {
	defer c.wg.Done()
	defer c.finishTermination()

	c.state.closeStep.Store(RespFinReceived)
	select {
	case <-c.queue.idleChan():
	case <-c.closeSignal:
		return
	}

	c.state.localSequence.Store(SeqIncrement(c.state.localSequence.Load()))
	sendFinAck := func() error { return c.sendControl(FINFlag | ACKFlag) }
	c.state.closeStep.Store(RespFinAckSent)
	seg, err := c.awaitSegment(func(s *Segment) bool {
		return s.Flags == ACKFlag && s.SequenceNumber == SeqIncrement(c.state.localAck.Load())
	}, sendFinAck)
	if err != nil {
		c.log.Debug().Err(err).Msg("passive close ended without final ACK")
		return
	}
	seg.ReturnChunk()
	c.state.closeStep.Store(RespAckReceived)
	c.log.Info().Msg("passive close complete")
}

// repeatUntil calls action now and on every timeout tick until done is
// closed.
func (c *Connection) repeatUntil(done <-chan struct{}, action func() error) error {
	if err := action(); err != nil {
		return err
	}
	ticker := time.NewTicker(c.config.TimeoutDuration())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if err := action(); err != nil {
				return err
			}
		case <-c.closeSignal:
			return ErrClosed
		}
	}
}
