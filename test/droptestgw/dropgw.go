package main

import (
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/config"
	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// The gateway sits between two peers that each believe the gateway is the
// other side. Pick the ports so that each peer still gets its role:
//
//	client 127.0.0.1:6000 <-> 127.0.0.1:5001 [gw] 127.0.0.1:6001 <-> 127.0.0.1:5000 server
var (
	clientSide = flag.String("client-side", "127.0.0.1:5001", "gateway address the client dials")
	clientAddr = flag.String("client", "127.0.0.1:6000", "client address")
	serverSide = flag.String("server-side", "127.0.0.1:6001", "gateway address the server dials")
	serverAddr = flag.String("server", "127.0.0.1:5000", "server address")
	configPath = flag.String("config", "config.yaml", "configuration file, its impairment section applies")
	dropRate   = flag.Float64("droprate", -1, "packet drop rate (0.0-1.0), overrides the configuration")
)

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if _, _, err := config.LoadConfig(*configPath); err != nil {
		log.Fatal().Err(err).Msg("configuration file error")
	}
	impair := config.AppConfig.ImpairConfig()
	if *dropRate >= 0 {
		if *dropRate > 1 {
			log.Fatal().Float64("droprate", *dropRate).Msg("drop rate must be in [0,1]")
		}
		impair.DropRate = *dropRate
	}

	toClient, err := bind(*clientSide, *clientAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("client side")
	}
	toServer, err := bind(*serverSide, *serverAddr)
	if err != nil {
		toClient.Close()
		log.Fatal().Err(err).Msg("server side")
	}

	lossyToClient := lib.Impair(toClient, impair)
	lossyToServer := lib.Impair(toServer, impair)

	log.Info().
		Float64("drop_rate", impair.DropRate).
		Int("drop_every", impair.DropEvery).
		Float64("duplicate_rate", impair.DuplicateRate).
		Float64("reorder_rate", impair.ReorderRate).
		Msg("gateway started")

	var wg sync.WaitGroup
	wg.Add(2)
	go relay(&wg, toClient, lossyToServer, "client->server")
	go relay(&wg, toServer, lossyToClient, "server->client")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	log.Info().Msg("shutting down")
	toClient.Close()
	toServer.Close()
	wg.Wait()

	for name, t := range map[string]lib.Transport{"client->server": lossyToServer, "server->client": lossyToClient} {
		if stats, ok := lib.ImpairmentStats(t); ok {
			log.Info().
				Str("direction", name).
				Int("sent", stats.Sent).
				Int("dropped", stats.Dropped).
				Int("duplicated", stats.Duplicated).
				Int("reordered", stats.Reordered).
				Msg("impairment")
		}
	}
}

func bind(local, remote string) (*lib.UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, err
	}
	return lib.NewUDPTransport(laddr, raddr, nil)
}

// relay forwards datagrams from src to dst until src is closed.
func relay(wg *sync.WaitGroup, src *lib.UDPTransport, dst lib.Transport, direction string) {
	defer wg.Done()

	buf := make([]byte, lib.MTU+1)
	for {
		n, err := src.Receive(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			// the peer is not up yet, its port answers with ICMP unreachable
			log.Debug().Err(err).Str("direction", direction).Msg("receive")
			continue
		}
		if _, err := dst.Send(buf[:n]); err != nil {
			if isClosed(err) {
				return
			}
			log.Debug().Err(err).Str("direction", direction).Msg("send")
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, lib.ErrTransportClosed) || errors.Is(err, net.ErrClosed)
}
