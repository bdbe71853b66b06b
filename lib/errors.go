package lib

import "errors"

var (
	ErrMalformedSegment = errors.New("malformed segment")
	ErrTransportClosed  = errors.New("transport closed")
	ErrAckTimeout       = errors.New("no acknowledgment progress within reset timeout")
	ErrClosed           = errors.New("connection closed")
	ErrNotEstablished   = errors.New("connection closed before it was established")
	ErrPoolExhausted    = errors.New("payload pool exhausted")
	ErrPortPoolEmpty    = errors.New("port pool is empty")
)
