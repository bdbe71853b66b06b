package lib

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeLayout(t *testing.T) {
	got, err := Encode(0x01020304, 0x05060708, SYNFlag|ACKFlag, 1250, []byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08,
		0x00, 0x12,
		0x04, 0xe2,
		'h', 'i',
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % x, want % x", got, want)
	}
}

func TestDecode(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, MaxMSS)
	data, err := Encode(4000, 17, DataFlags, 1250, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != MTU {
		t.Fatalf("full segment is %d bytes, want %d", len(data), MTU)
	}
	seg, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	defer seg.ReturnChunk()
	if seg.SequenceNumber != 4000 || seg.AcknowledgmentNum != 17 || seg.Flags != DataFlags || seg.WindowSize != 1250 {
		t.Errorf("decoded header %s", seg)
	}
	if !bytes.Equal(seg.Payload, payload) {
		t.Error("payload differs")
	}

	// the decoded payload must not alias the datagram buffer
	data[HeaderLength] = 0
	if seg.Payload[0] != 0xab {
		t.Error("payload aliases the input buffer")
	}
}

func TestDecodeHeaderOnly(t *testing.T) {
	data, _ := Encode(1, 2, FINFlag|ACKFlag, 0, nil)
	seg, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if seg.Payload != nil || seg.Flags != FINFlag|ACKFlag {
		t.Errorf("decoded %s", seg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", make([]byte, HeaderLength-1)},
		{"oversized", make([]byte, MTU+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrMalformedSegment) {
				t.Errorf("Decode error = %v, want ErrMalformedSegment", err)
			}
		})
	}
}

func TestMarshalLimits(t *testing.T) {
	if _, err := Encode(0, 0, DataFlags, 0, make([]byte, MaxMSS+1)); err == nil {
		t.Error("payload above MSS accepted")
	}
	seg := NewSegment(0, 0, DataFlags, 0, []byte("abc"))
	if _, err := seg.Marshal(make([]byte, HeaderLength+2)); err == nil {
		t.Error("short buffer accepted")
	}
}

func TestFlagString(t *testing.T) {
	tests := map[uint16]string{
		DataFlags:         "DATA",
		SYNFlag:           "SYN",
		ACKFlag:           "ACK",
		FINFlag:           "FIN",
		SYNFlag | ACKFlag: "SYN|ACK",
		FINFlag | ACKFlag: "FIN|ACK",
		SYNFlag | FINFlag: "0x0003",
	}
	for flags, want := range tests {
		if got := FlagString(flags); got != want {
			t.Errorf("FlagString(%#x) = %q, want %q", flags, got, want)
		}
	}
}

func TestGenerateISN(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 8; i++ {
		isn, err := GenerateISN()
		if err != nil {
			t.Fatal(err)
		}
		seen[isn] = true
	}
	if len(seen) < 2 {
		t.Error("ISNs are not random")
	}
}
