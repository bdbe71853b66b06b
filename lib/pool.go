package lib

import (
	"fmt"
	"sync"
	"time"

	rp "github.com/Clouded-Sabre/ringpool/lib"
	"github.com/rs/zerolog/log"
)

var (
	emptySlice []byte
	Pool       *rp.RingPool
	poolOnce   sync.Once
)

func setEmptySlice(length int) {
	emptySlice = make([]byte, length)
}

// Payload is a fixed size byte chunk managed by the ring pool. Incoming
// segment payloads are copied into one while they wait for a consumer.
type Payload struct {
	payloadBytes []byte
	length       int
}

// NewPayload creates a payload chunk. The only parameter is the chunk length.
func NewPayload(params ...interface{}) rp.DataInterface {
	if len(params) != 1 {
		log.Error().Int("params", len(params)).Msg("NewPayload: expected exactly one parameter: chunk length")
		return nil
	}

	chunkLength, ok := params[0].(int)
	if !ok {
		log.Error().Msg("NewPayload: chunk length should be of type int")
		return nil
	}

	if len(emptySlice) == 0 {
		setEmptySlice(chunkLength)
	}

	return &Payload{
		payloadBytes: make([]byte, chunkLength),
	}
}

// Reset zeroes the payload
func (p *Payload) Reset() {
	copy(p.payloadBytes, emptySlice)
	p.length = 0
}

// PrintContent prints the content of the payload
func (p *Payload) PrintContent() {
	fmt.Println("Content:", string(p.payloadBytes[:p.length]))
}

func (p *Payload) Copy(src []byte) error {
	if len(src) > len(p.payloadBytes) {
		return fmt.Errorf("payload copy: source (%d bytes) is longer than chunk (%d bytes)", len(src), len(p.payloadBytes))
	}
	if len(src) == 0 {
		return fmt.Errorf("payload copy: source is empty")
	}
	copy(p.payloadBytes, src)
	p.length = len(src)
	return nil
}

func (p *Payload) GetSlice() []byte {
	return p.payloadBytes[:p.length]
}

// PoolConfig sizes the global payload pool.
type PoolConfig struct {
	Size                 int           // number of chunks
	ChunkLength          int           // bytes per chunk, at least the MSS
	Debug                bool          // ring pool footprint tracking
	ProcessTimeThreshold time.Duration // ring pool slow-consumer warning threshold
}

func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Size:                 2000,
		ChunkLength:          MaxMSS,
		Debug:                false,
		ProcessTimeThreshold: 10 * time.Millisecond,
	}
}

// InitPayloadPool creates the global payload pool once. Later calls are no-ops.
func InitPayloadPool(config *PoolConfig) {
	poolOnce.Do(func() {
		if config == nil {
			config = DefaultPoolConfig()
		}
		rp.Debug = config.Debug
		Pool = rp.NewRingPool("DTCP: ", config.Size, NewPayload, config.ChunkLength)
		Pool.Debug = config.Debug
		Pool.ProcessTimeThreshold = config.ProcessTimeThreshold
	})
}
