package shared

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// bufferStream is an in-order byte stream with the connection's exact-n Recv.
type bufferStream struct {
	buf bytes.Buffer
}

func (b *bufferStream) Send(data []byte) (int, error) {
	return b.buf.Write(data)
}

func (b *bufferStream) Recv(n int) ([]byte, error) {
	if b.buf.Len() < n {
		return nil, io.EOF
	}
	return b.buf.Next(n), nil
}

func TestMessageRoundTrip(t *testing.T) {
	s := &bufferStream{}
	messages := [][]byte{[]byte("hello world"), {}, bytes.Repeat([]byte{7}, 5000)}
	for _, m := range messages {
		if err := WriteMessage(s, m); err != nil {
			t.Fatal(err)
		}
	}
	if s.buf.Len() != 3*FrameHeaderSize+11+5000 {
		t.Errorf("framed size = %d", s.buf.Len())
	}
	for i, want := range messages {
		got, err := ReadMessage(s)
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("message %d differs", i)
		}
	}
}

func TestReadMessageErrors(t *testing.T) {
	s := &bufferStream{}
	s.buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	if _, err := ReadMessage(s); err == nil || !strings.Contains(err.Error(), "limit") {
		t.Errorf("oversized announcement = %v", err)
	}

	s.buf.Write([]byte{0, 0, 0, 9, 'a'})
	if _, err := ReadMessage(s); !errors.Is(err, io.EOF) {
		t.Errorf("truncated body = %v, want io.EOF", err)
	}
}
