package main

import (
	"context"
	"encoding/binary"
	"flag"
	"io"
	"os"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	localAddr := flag.String("local", "127.0.0.1:6000", "local address, port 0 picks one from the client port range")
	serverAddr := flag.String("server", "127.0.0.1:5000", "server address")
	configPath := flag.String("config", "config.yaml", "configuration file")
	input := flag.String("in", "", "file to send, stdin when empty")
	captureFile := flag.String("capture", "", "pcap file for every segment, overrides capture_file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	data, err := readInput(*input)
	if err != nil {
		log.Fatal().Err(err).Msg("reading input")
	}

	node, err := shared.StartNode(*configPath, *captureFile)
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}
	defer node.Close()

	conn, err := node.Dial(*localAddr, *serverAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.WaitEstablished(ctx); err != nil {
		log.Fatal().Err(err).Msg("handshake")
	}
	log.Info().Str("local", conn.LocalAddr().String()).Str("server", *serverAddr).Msg("connected")

	start := time.Now()
	if err := shared.WriteMessage(conn, data); err != nil {
		log.Fatal().Err(err).Msg("send")
	}

	// the server answers with the length it received, which also tells us
	// every byte was acknowledged
	reply, err := shared.ReadMessage(conn)
	if err != nil {
		log.Fatal().Err(err).Interface("state", conn.Snapshot()).Msg("waiting for the server")
	}
	if len(reply) != 4 || binary.BigEndian.Uint32(reply) != uint32(len(data)) {
		log.Error().Int("sent", len(data)).Hex("reply", reply).Msg("server reports a different length")
	}

	elapsed := time.Since(start)
	stats := conn.Stats()
	conn.Close()
	log.Info().
		Int("bytes", len(data)).
		Dur("elapsed", elapsed).
		Uint64("retransmissions", stats.Retransmissions).
		Uint64("segments_sent", stats.SegmentsSent).
		Msg("transfer complete")
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
