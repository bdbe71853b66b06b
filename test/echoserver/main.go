package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	localAddr := flag.String("local", "127.0.0.1:8901", "service address")
	clientAddr := flag.String("client", "127.0.0.1:9901", "client address")
	configPath := flag.String("config", "config.yaml", "configuration file")
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	node, err := shared.StartNode(*configPath, "")
	if err != nil {
		log.Fatal().Err(err).Msg("startup")
	}
	defer node.Close()

	conn, err := node.Dial(*localAddr, *clientAddr)
	if err != nil {
		log.Error().Err(err).Msg("dial")
		return
	}
	log.Info().Str("local", *localAddr).Str("client", *clientAddr).Msg("echo server waiting")

	for {
		msg, err := shared.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("connection closed by client")
			} else {
				log.Error().Err(err).Msg("read")
			}
			return
		}
		log.Info().Str("message", string(msg)).Msg("echo server got")
		if err := shared.WriteMessage(conn, msg); err != nil {
			log.Error().Err(err).Msg("write")
			return
		}
	}
}
