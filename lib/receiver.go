package lib

import (
	"context"
	"errors"
	"io"
)

// Recv blocks until exactly n bytes of the peer's stream are available and
// returns them. See RecvContext.
func (c *Connection) Recv(n int) ([]byte, error) {
	return c.RecvContext(context.Background(), n)
}

// RecvContext returns exactly n bytes, acknowledging them as they arrive.
// Bytes of a segment beyond n are kept for the next call. It never returns
// fewer than n bytes: if the peer closes the stream first it returns io.EOF,
// if ctx ends first a *TimeoutError or ctx.Err(). In both cases the bytes
// gathered so far stay buffered for the next call.
func (c *Connection) RecvContext(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.leftover.Len() >= n {
		return c.readLeftover(n), nil
	}
	if err := c.WaitEstablished(ctx); err != nil {
		return nil, c.recvError(err)
	}

	out := make([]byte, 0, n)
	out = append(out, c.readLeftover(c.leftover.Len())...)
	timeout := c.config.TimeoutDuration()
	window := int(c.state.windowSize)
	notAcked := 0

	for len(out) < n {
		seg, ok := c.slot.take(timeout, c.closeSignal)
		if !ok {
			if err := c.recvInterrupted(ctx); err != nil {
				c.leftover.Write(out)
				return nil, err
			}
			// nothing arrived in time, remind the peer where we are
			if err := c.sendAck(); err != nil {
				c.leftover.Write(out)
				return nil, err
			}
			c.stats.duplicateAcksSent.Add(1)
			notAcked = 0
			continue
		}

		expected := SeqIncrementBy(c.state.localAck.Load(), uint32(len(seg.Payload)))
		if seg.SequenceNumber == expected {
			need := n - len(out)
			if len(seg.Payload) > need {
				out = append(out, seg.Payload[:need]...)
				c.leftover.Write(seg.Payload[need:])
			} else {
				out = append(out, seg.Payload...)
			}
			c.state.localAck.Store(seg.SequenceNumber)
			c.stats.bytesDelivered.Add(uint64(len(seg.Payload)))
			notAcked += len(seg.Payload)
			seg.ReturnChunk()
		} else {
			seg.ReturnChunk()
			// duplicate or out of order, tell the peer what we expect
			if err := c.sendAck(); err != nil {
				c.leftover.Write(out)
				return nil, err
			}
			c.stats.duplicateAcksSent.Add(1)
			notAcked = 0
		}

		if notAcked >= window {
			if err := c.sendAck(); err != nil {
				c.leftover.Write(out)
				return nil, err
			}
			notAcked = 0
		}
	}

	for i := 0; i < FinalAckCount; i++ {
		if err := c.sendAck(); err != nil {
			break // the bytes are ours already
		}
	}
	return out, nil
}

// recvInterrupted reports why a waiting recv has to give up, or nil to keep
// waiting.
func (c *Connection) recvInterrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return c.recvError(err)
	}
	select {
	case <-c.closeSignal:
		return ErrClosed
	default:
	}
	select {
	case <-c.dispatchDone:
		// the dispatch loop routes no more data once it is gone
		if c.slot.len() > 0 {
			return nil
		}
		return io.EOF
	default:
		return nil
	}
}

func (c *Connection) recvError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{msg: "recv: deadline exceeded"}
	}
	return err
}

// readLeftover copies n buffered bytes out, the buffer may be written to
// again right after.
func (c *Connection) readLeftover(n int) []byte {
	b := make([]byte, n)
	c.leftover.Read(b)
	return b
}

// sendAck acknowledges everything accepted so far. Only a closed transport
// is an error.
func (c *Connection) sendAck() error {
	return c.sendControlTolerant(ACKFlag)
}
