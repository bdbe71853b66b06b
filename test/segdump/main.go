package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Clouded-Sabre/Datagram-TCP/capture"
	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	port := flag.Int("port", 0, "also decode UDP traffic on this port as segments in gopacket")
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: segdump [-port n] capture.pcap")
		os.Exit(2)
	}
	if *port > 0 {
		capture.RegisterPort(*port)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal().Err(err).Msg("open")
	}
	defer f.Close()

	records, skipped, err := capture.ReadAll(f)
	if err != nil {
		log.Fatal().Err(err).Msg("read capture")
	}

	counts := make(map[string]int)
	var payload int
	for _, r := range records {
		fmt.Println(r)
		counts[lib.FlagString(r.Segment.Flags)]++
		payload += len(r.Segment.Payload)
	}
	log.Info().
		Int("segments", len(records)).
		Int("skipped", skipped).
		Int("payload_bytes", payload).
		Interface("by_flags", counts).
		Msg("done")
}
