package lib

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiagnosticsDisabled(t *testing.T) {
	d, err := NewDiagnostics(&LogConfig{Debug: false, LogFile: filepath.Join(t.TempDir(), "x.log")})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	d.Logger.Error().Msg("nothing")
	if d.Recorder != nil {
		t.Error("recorder created without debug")
	}
}

func TestDiagnosticsFileAndRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proto.log")
	d, err := NewDiagnostics(&LogConfig{Debug: true, LogFile: path, TraceBufferSize: 4096})
	if err != nil {
		t.Fatal(err)
	}
	d.Logger.Debug().Str("conn", "a->b").Msg("established")
	d.Logger.Trace().Msg("below the level")
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"message":"established"`) || !strings.Contains(string(data), `"conn":"a->b"`) {
		t.Errorf("log file = %s", data)
	}
	if strings.Contains(string(data), "below the level") {
		t.Error("trace line written at debug level")
	}
	if !bytes.Equal(d.Recorder.Bytes(), data) {
		t.Error("recorder and file differ")
	}
}

func TestRecorderKeepsTail(t *testing.T) {
	rec, err := NewRecorder(8)
	if err != nil {
		t.Fatal(err)
	}
	rec.Write([]byte("0123456789"))
	if got := string(rec.Bytes()); got != "23456789" {
		t.Errorf("tail = %q", got)
	}
	rec.Reset()
	if len(rec.Bytes()) != 0 {
		t.Error("reset kept data")
	}
	if _, err := NewRecorder(0); err == nil {
		t.Error("zero sized recorder accepted")
	}
}
