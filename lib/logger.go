package lib

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/armon/circbuf"
	"github.com/rs/zerolog"
)

type LogConfig struct {
	Debug           bool   // diagnostics are produced only when set
	Console         bool   // write human readable lines to stderr
	LogFile         string // append JSON lines to this file, empty disables
	TraceBufferSize int64  // bytes kept by the in-memory flight recorder, 0 disables
}

func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Debug:           false,
		Console:         true,
		LogFile:         "tcp_protocol.log",
		TraceBufferSize: 64 * 1024,
	}
}

// Recorder keeps the tail of the diagnostic output in memory so the last
// moments of a failed connection can be inspected after the fact.
type Recorder struct {
	mu  sync.Mutex
	buf *circbuf.Buffer
}

func NewRecorder(size int64) (*Recorder, error) {
	buf, err := circbuf.NewBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("create trace buffer: %w", err)
	}
	return &Recorder{buf: buf}, nil
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

// Bytes returns a copy of the recorded tail.
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.buf.Bytes()...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Reset()
}

// Diagnostics bundles the logger with the resources backing it.
type Diagnostics struct {
	Logger   zerolog.Logger
	Recorder *Recorder // nil when disabled
	file     *os.File
}

// NewDiagnostics builds the diagnostics sink. With Debug unset the logger
// discards everything.
func NewDiagnostics(config *LogConfig) (*Diagnostics, error) {
	if config == nil {
		config = DefaultLogConfig()
	}
	if !config.Debug {
		return &Diagnostics{Logger: zerolog.Nop()}, nil
	}

	d := &Diagnostics{}
	var writers []io.Writer
	if config.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMicro})
	}
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		d.file = f
		writers = append(writers, f)
	}
	if config.TraceBufferSize > 0 {
		rec, err := NewRecorder(config.TraceBufferSize)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Recorder = rec
		writers = append(writers, rec)
	}
	if len(writers) == 0 {
		d.Logger = zerolog.Nop()
		return d, nil
	}

	d.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Logger()
	return d, nil
}

func (d *Diagnostics) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
