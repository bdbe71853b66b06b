package lib

// readLoop owns the transport's receive side. It decodes every datagram and
// hands it to whichever phase currently consumes c.incoming.
func (c *Connection) readLoop() {
	defer c.wg.Done()

	buffer := make([]byte, MTU+1) // one spare byte so oversized datagrams are detected
	for {
		n, err := c.transport.Receive(buffer)
		if err != nil {
			if isTransportClosed(err) {
				return
			}
			select {
			case <-c.closeSignal:
				return
			default:
			}
			c.log.Debug().Err(err).Msg("transient receive error")
			continue
		}

		seg, err := Decode(buffer[:n])
		if err != nil {
			c.stats.malformedSegments.Add(1)
			c.log.Debug().Err(err).Int("length", n).Msg("dropping malformed datagram")
			continue
		}
		c.stats.segmentsReceived.Add(1)
		if e := c.log.Trace(); e.Enabled() {
			e.Str("segment", seg.String()).Msg("received")
		}

		select {
		case c.incoming <- seg:
		case <-c.closeSignal:
			seg.ReturnChunk()
			return
		}
	}
}

// dispatch routes segments while the connection is established. It stops on
// FIN, which starts the passive close, or when told to by the active close.
func (c *Connection) dispatch() {
	defer c.wg.Done()
	defer close(c.dispatchDone)

	for {
		select {
		case <-c.dispatchStop:
			return
		case <-c.closeSignal:
			return
		case seg := <-c.incoming:
			switch seg.Flags {
			case ACKFlag:
				if c.state.mergeRemoteAck(seg.AcknowledgmentNum) {
					c.stats.windowAdvances.Add(1)
				}
				c.ackArrived.Set()
				seg.ReturnChunk()
			case DataFlags:
				c.state.remoteSequence.Store(seg.SequenceNumber)
				if c.slot.put(seg) {
					c.stats.slotOverwrites.Add(1)
				}
			case FINFlag:
				seg.ReturnChunk()
				c.startPassiveClose()
				return
			case SYNFlag | ACKFlag:
				// the peer never saw our handshake ACK
				if err := c.sendControlTolerant(ACKFlag); err != nil {
					c.log.Debug().Err(err).Msg("resending handshake ACK")
				}
				seg.ReturnChunk()
			default:
				c.log.Debug().Str("segment", seg.String()).Msg("ignoring segment")
				seg.ReturnChunk()
			}
		}
	}
}

// stopDispatch asks the dispatch loop to exit. Safe to call more than once.
func (c *Connection) stopDispatch() {
	c.stopOnce.Do(func() {
		close(c.dispatchStop)
	})
}
