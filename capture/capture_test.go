package capture

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"github.com/google/gopacket"
)

func TestSegmentLayerDecode(t *testing.T) {
	datagram, err := lib.Encode(1011, 7, lib.DataFlags, 1250, []byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}
	packet := gopacket.NewPacket(datagram, LayerTypeSegment, gopacket.Default)
	seg, ok := packet.Layer(LayerTypeSegment).(*Segment)
	if !ok {
		t.Fatalf("no segment layer, error layer: %v", packet.ErrorLayer())
	}
	if seg.SequenceNumber != 1011 || seg.AcknowledgmentNum != 7 || seg.WindowSize != 1250 {
		t.Errorf("decoded %s", seg)
	}
	if string(seg.Payload) != "hello world" {
		t.Errorf("payload = %q", seg.Payload)
	}
	if app := packet.ApplicationLayer(); app == nil || string(app.Payload()) != "hello world" {
		t.Errorf("application layer = %v", app)
	}
}

func TestSegmentLayerRejectsShortData(t *testing.T) {
	seg := &Segment{}
	if err := seg.DecodeFromBytes([]byte{1, 2, 3}, gopacket.NilDecodeFeedback); err == nil {
		t.Error("short datagram accepted")
	}
}

func TestSegmentLayerSerialize(t *testing.T) {
	seg := &Segment{SequenceNumber: 42, AcknowledgmentNum: 43, Flags: lib.FINFlag | lib.ACKFlag, WindowSize: 1250}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, seg); err != nil {
		t.Fatal(err)
	}
	want, _ := lib.Encode(42, 43, lib.FINFlag|lib.ACKFlag, 1250, nil)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("serialized % x, want % x", buf.Bytes(), want)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var file bytes.Buffer
	w, err := NewWriter(&file)
	if err != nil {
		t.Fatal(err)
	}
	src := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6000}
	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
	syn, _ := lib.Encode(99, 0, lib.SYNFlag, 1250, nil)
	data, _ := lib.Encode(110, 500, lib.DataFlags, 1250, []byte("hello world"))
	now := time.Now()
	for _, d := range [][]byte{syn, data, []byte("junk")} {
		if err := w.WriteDatagram(src, dst, d, now); err != nil {
			t.Fatalf("WriteDatagram: %v", err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("count = %d, want 3", w.Count())
	}

	records, skipped, err := ReadAll(&file)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Segment.Flags != lib.SYNFlag || records[0].Segment.SequenceNumber != 99 {
		t.Errorf("first record %s", records[0])
	}
	if records[1].Src.Port != 6000 || records[1].Dst.Port != 5000 {
		t.Errorf("addressing %s -> %s", records[1].Src, records[1].Dst)
	}
	if string(records[1].Segment.Payload) != "hello world" {
		t.Errorf("payload = %q", records[1].Segment.Payload)
	}
}

func TestTapRecordsBothDirections(t *testing.T) {
	var file bytes.Buffer
	w, err := NewWriter(&file)
	if err != nil {
		t.Fatal(err)
	}
	a, b := lib.Pipe()
	tap := NewTap(a, w, nil, nil)
	defer tap.Close()
	defer b.Close()

	out, _ := lib.Encode(1, 2, lib.ACKFlag, 1250, nil)
	if _, err := tap.Send(out); err != nil {
		t.Fatal(err)
	}
	in, _ := lib.Encode(3, 4, lib.ACKFlag, 1250, nil)
	if _, err := b.Send(in); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, lib.MTU)
	if _, err := tap.Receive(buf); err != nil {
		t.Fatal(err)
	}
	if tap.Err() != nil {
		t.Fatal(tap.Err())
	}

	records, _, err := ReadAll(&file)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Src.Port != defaultLocal.Port || records[1].Src.Port != defaultRemote.Port {
		t.Errorf("directions: %s, %s", records[0], records[1])
	}
}
