package shared

import (
	"fmt"

	"github.com/Clouded-Sabre/Datagram-TCP/capture"
	"github.com/Clouded-Sabre/Datagram-TCP/config"
	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"github.com/rs/zerolog/log"
)

// Node is what a command line tool needs to dial: the core and, when
// capturing, the pcap writer its sockets are tapped into.
type Node struct {
	Core    *lib.Core
	capture *capture.Writer
}

// StartNode loads the configuration file and starts a core. A non-empty
// captureFile overrides capture_file from the configuration.
func StartNode(configPath, captureFile string) (*Node, error) {
	coreConfig, connConfig, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	core, err := lib.NewCore(coreConfig, connConfig)
	if err != nil {
		return nil, fmt.Errorf("starting core: %w", err)
	}
	n := &Node{Core: core}

	if captureFile == "" {
		captureFile = config.AppConfig.CaptureFile
	}
	if captureFile != "" {
		w, err := capture.Create(captureFile)
		if err != nil {
			core.Close()
			return nil, err
		}
		n.capture = w
		log.Info().Str("file", captureFile).Msg("capturing segments")
	}
	return n, nil
}

// Dial connects through the core, tapping the socket when capturing.
func (n *Node) Dial(localAddr, remoteAddr string) (*lib.Connection, error) {
	if n.capture == nil {
		return n.Core.Dial(localAddr, remoteAddr)
	}
	return n.Core.DialWrapped(localAddr, remoteAddr, capture.Wrapper(n.capture))
}

// Close stops the core and flushes the capture.
func (n *Node) Close() error {
	err := n.Core.Close()
	if n.capture != nil {
		log.Info().Int("segments", n.capture.Count()).Msg("capture closed")
		if cerr := n.capture.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
