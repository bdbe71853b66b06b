package main

import (
	"encoding/binary"
	"flag"
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
	localAddr := flag.String("local", "127.0.0.1:5000", "local address")
	clientAddr := flag.String("client", "127.0.0.1:6000", "client address")
	configPath := flag.String("config", "config.yaml", "configuration file")
	output := flag.String("out", "", "file to write the received data to, stdout when empty")
	captureFile := flag.String("capture", "", "pcap file for every segment, overrides capture_file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	node, err := shared.StartNode(*configPath, *captureFile)
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}

	conn, err := node.Dial(*localAddr, *clientAddr)
	if err != nil {
		node.Close()
		log.Fatal().Err(err).Msg("dial")
	}
	log.Info().Str("local", *localAddr).Str("client", *clientAddr).Str("role", conn.Role().String()).Msg("waiting for the client")

	// Handle Ctrl+C signal for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Info().Msg("interrupted, shutting down")
		node.Close()
		os.Exit(1)
	}()

	data, err := shared.ReadMessage(conn)
	if err != nil {
		node.Close()
		log.Fatal().Err(err).Msg("receive")
	}
	log.Info().Int("bytes", len(data)).Msg("message received")

	reply := make([]byte, 4)
	binary.BigEndian.PutUint32(reply, uint32(len(data)))
	if err := shared.WriteMessage(conn, reply); err != nil {
		log.Error().Err(err).Msg("reply")
	}

	if *output == "" {
		_, err = os.Stdout.Write(data)
	} else {
		err = os.WriteFile(*output, data, 0o644)
	}
	if err != nil {
		log.Error().Err(err).Msg("writing output")
	}

	// the client closes once it has the reply
	deadline := time.Now().Add(5 * time.Second)
	for conn.State() != lib.StateClosed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := node.Close(); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
