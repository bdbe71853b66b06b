package lib

import (
	"math/rand"
	"sync"
	"time"
)

// ImpairConfig describes how an impaired transport mistreats outgoing
// datagrams. Rates are probabilities in [0,1].
type ImpairConfig struct {
	DropRate      float64 // probability a datagram is silently lost
	DropEvery     int     // if > 0, every DropEvery-th datagram is lost as well
	DuplicateRate float64 // probability a datagram is sent twice
	ReorderRate   float64 // probability a datagram is held back and sent after the next one
	Seed          int64   // random seed, 0 seeds from the clock
}

// ImpairStats counts what the impairment did.
type ImpairStats struct {
	Sent       int
	Dropped    int
	Duplicated int
	Reordered  int
}

type impairedTransport struct {
	Transport
	config ImpairConfig
	mu     sync.Mutex
	rng    *rand.Rand
	count  int
	held   []byte
	stats  ImpairStats
}

// Impair wraps t so that its Send drops, duplicates and reorders datagrams.
// Receive and Close pass through.
func Impair(t Transport, config *ImpairConfig) Transport {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &impairedTransport{
		Transport: t,
		config:    *config,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (t *impairedTransport) Send(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	if t.config.DropEvery > 0 && t.count%t.config.DropEvery == 0 {
		t.stats.Dropped++
		return len(b), nil
	}
	if t.rng.Float64() < t.config.DropRate {
		t.stats.Dropped++
		return len(b), nil
	}
	if t.held == nil && t.rng.Float64() < t.config.ReorderRate {
		t.held = append([]byte(nil), b...)
		t.stats.Reordered++
		return len(b), nil
	}

	n, err := t.Transport.Send(b)
	if err != nil {
		return n, err
	}
	t.stats.Sent++
	if t.rng.Float64() < t.config.DuplicateRate {
		if _, err := t.Transport.Send(b); err == nil {
			t.stats.Duplicated++
		}
	}
	if t.held != nil {
		held := t.held
		t.held = nil
		if _, err := t.Transport.Send(held); err != nil {
			return n, err
		}
		t.stats.Sent++
	}
	return n, nil
}

// ImpairmentStats returns the counters of a transport created by Impair.
func ImpairmentStats(t Transport) (ImpairStats, bool) {
	it, ok := t.(*impairedTransport)
	if !ok {
		return ImpairStats{}, false
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.stats, true
}
