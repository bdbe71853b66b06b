package lib

func SeqIncrement(seq uint32) uint32 {
	return seq + 1 // wraps modulo 2^32
}

func SeqIncrementBy(seq, inc uint32) uint32 {
	return seq + inc // wraps modulo 2^32
}

// seqDistance returns the signed distance from seq2 to seq1, taking the
// shorter way around the 32-bit sequence space.
func seqDistance(seq1, seq2 uint32) int32 {
	return int32(seq1 - seq2)
}

// SEQ compare functions with SEQ wraparound in mind
func isGreater(seq1, seq2 uint32) bool {
	return seqDistance(seq1, seq2) > 0
}

func isGreaterOrEqual(seq1, seq2 uint32) bool {
	return seqDistance(seq1, seq2) >= 0
}

func isLess(seq1, seq2 uint32) bool {
	return seqDistance(seq1, seq2) < 0
}

func isLessOrEqual(seq1, seq2 uint32) bool {
	return seqDistance(seq1, seq2) <= 0
}

// seqMax returns whichever of the two sequence numbers lies further ahead.
func seqMax(seq1, seq2 uint32) uint32 {
	if isGreater(seq1, seq2) {
		return seq1
	}
	return seq2
}

type TimeoutError struct {
	msg string
}

func (e *TimeoutError) Error() string {
	return e.msg
}

func (e *TimeoutError) Timeout() bool {
	return true
}

func (e *TimeoutError) Temporary() bool {
	return false
}
