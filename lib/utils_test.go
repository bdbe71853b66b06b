package lib

import (
	"testing"
)

func TestIsGreater(t *testing.T) {
	// Test cases where the first number is greater than the second
	testCases := []struct {
		seq1     uint32
		seq2     uint32
		expected bool
	}{
		{seq1: 10, seq2: 5, expected: true},                   // Direct comparison
		{seq1: 5, seq2: 10, expected: false},                  // Direct comparison
		{seq1: 5, seq2: 4294967295, expected: true},           // Inverse wrap-around case
		{seq1: 4294967295, seq2: 5, expected: false},          // Inverse wrap-around case
		{seq1: 2147483647, seq2: 2147483646, expected: true},  // Close to wrap-around boundary
		{seq1: 2147483646, seq2: 2147483647, expected: false}, // Close to wrap-around boundary
		{seq1: 0, seq2: 4294967295, expected: true},           // Full wrap-around
		{seq1: 4294967295, seq2: 0, expected: false},          // Full wrap-around
		{seq1: 7, seq2: 7, expected: false},                   // Equal
	}

	for _, tc := range testCases {
		result := isGreater(tc.seq1, tc.seq2)
		if result != tc.expected {
			t.Errorf("For (%d, %d), expected %t, but got %t", tc.seq1, tc.seq2, tc.expected, result)
		}
	}
}

func TestSeqOrdering(t *testing.T) {
	if !isLess(4294967290, 3) {
		t.Error("4294967290 should precede 3 across the wrap")
	}
	if !isGreaterOrEqual(3, 3) || !isLessOrEqual(3, 3) {
		t.Error("equal sequence numbers")
	}
	if got := seqMax(4294967290, 3); got != 3 {
		t.Errorf("seqMax across wrap = %d, want 3", got)
	}
	if got := seqMax(100, 50); got != 100 {
		t.Errorf("seqMax = %d, want 100", got)
	}
	if got := SeqIncrementBy(4294967295, 2); got != 1 {
		t.Errorf("SeqIncrementBy wraps to %d, want 1", got)
	}
	if got := seqDistance(1, 4294967295); got != 2 {
		t.Errorf("seqDistance = %d, want 2", got)
	}
}

func TestTimeoutError(t *testing.T) {
	var err error = &TimeoutError{msg: "recv: deadline exceeded"}
	te, ok := err.(interface{ Timeout() bool })
	if !ok || !te.Timeout() {
		t.Error("TimeoutError does not report a timeout")
	}
	if err.Error() != "recv: deadline exceeded" {
		t.Errorf("message = %q", err.Error())
	}
}
