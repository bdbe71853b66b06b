package lib

import "time"

const (
	SynSent              = 1 // 3-way handshake client state
	SynAckReceived       = 2 // 3-way handshake client state
	AckSent              = 3 // 3-way handshake client state
	SynWait              = 1 // 3-way handshake server state
	SynReceived          = 2 // 3-way handshake server state
	AckReceived          = 3 // 3-way handshake server state
	CallerFinSent        = 1 // active close state
	CallerFinAckReceived = 2 // active close state
	CallerAckSent        = 3 // active close state
	RespFinReceived      = 1 // passive close state
	RespFinAckSent       = 2 // passive close state
	RespAckReceived      = 3 // passive close state
)

// Flag constants. Flags are compared by exact value, never bit-tested.
const (
	DataFlags uint16 = 0
	FINFlag   uint16 = 0b1
	SYNFlag   uint16 = 0b10
	ACKFlag   uint16 = 0b10000
)

const (
	HeaderLength = 12                    // seq(4) | ack(4) | flags(2) | window(2)
	MaxMSS       = 1460                  // max payload bytes per segment
	MTU          = MaxMSS + HeaderLength // max datagram size
)

// protocol defaults
const (
	DefaultRTT        = 10 * time.Millisecond
	DefaultRstTimeout = 1 * time.Second
	DefaultBandwidth  = 1_000_000 // bits per second
	FinalAckCount     = 3         // duplicate final ACKs sent for loss hardening
)
