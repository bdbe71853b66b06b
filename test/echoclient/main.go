package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"github.com/Clouded-Sabre/Datagram-TCP/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	localAddr := flag.String("local", "127.0.0.1:9901", "client address")
	serverAddr := flag.String("server", "127.0.0.1:8901", "echo server address")
	configPath := flag.String("config", "config.yaml", "configuration file")
	packetInterval := flag.Duration("interval", 500*time.Millisecond, "interval between messages (e.g., 500ms, 1s)")
	count := flag.Int("count", 0, "messages to send, 0 until interrupted")
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	node, err := shared.StartNode(*configPath, "")
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}
	defer node.Close()

	conn, err := node.Dial(*localAddr, *serverAddr)
	if err != nil {
		log.Error().Err(err).Msg("dial")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = conn.WaitEstablished(ctx)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("handshake")
		return
	}
	log.Info().Dur("interval", *packetInterval).Msg("echo client connected, press Ctrl+C to exit")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*packetInterval)
	defer ticker.Stop()

	successCount, failureCount, packetCount := 0, 0, 0
loop:
	for *count == 0 || packetCount < *count {
		select {
		case <-sigChan:
			break loop
		case <-ticker.C:
		}

		packetCount++
		message := []byte(fmt.Sprintf("Echo message %d", packetCount))
		if err := shared.WriteMessage(conn, message); err != nil {
			log.Error().Err(err).Int("seq", packetCount).Msg("write")
			failureCount++
			break
		}
		response, err := shared.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("server closed the connection")
			} else {
				log.Error().Err(err).Int("seq", packetCount).Msg("read")
			}
			failureCount++
			break
		}
		if bytes.Equal(response, message) {
			successCount++
		} else {
			log.Warn().Str("expected", string(message)).Str("got", string(response)).Msg("echo mismatch")
			failureCount++
		}
	}

	stats := conn.Stats()
	conn.Close()

	ev := log.Info().
		Int("sent", packetCount).
		Int("echoed", successCount).
		Int("failed", failureCount).
		Uint64("retransmissions", stats.Retransmissions)
	if packetCount > 0 {
		ev = ev.Float64("success_rate", float64(successCount)/float64(packetCount)*100)
	}
	ev.Msg("echo client statistics")
	if failureCount > 0 && conn.Err() != nil && !errors.Is(conn.Err(), lib.ErrClosed) {
		log.Error().Err(conn.Err()).Msg("connection failed")
	}
}
