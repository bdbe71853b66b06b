package lib

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

type CoreConfig struct {
	Pool            *PoolConfig         // payload pool shared by every connection
	Log             *LogConfig          // diagnostics sink
	Transport       *UDPTransportConfig // socket options for dialed connections
	ClientPortLower int                 // range used when Dial is given local port 0
	ClientPortUpper int
}

func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		Pool:            DefaultPoolConfig(),
		Log:             DefaultLogConfig(),
		Transport:       DefaultUDPTransportConfig(),
		ClientPortLower: 32768,
		ClientPortUpper: 60999,
	}
}

// TransportWrapper decorates the socket of a dialed connection, for example
// to capture its traffic.
type TransportWrapper func(t *UDPTransport) (Transport, error)

// Core owns what connections in one process share: the payload pool, the
// diagnostics sink, a pool of client ports and the registry of live
// connections.
type Core struct {
	config          *CoreConfig
	connConfig      *ConnectionConfig
	diag            *Diagnostics
	log             zerolog.Logger
	portPool        *PortPool
	mu              sync.Mutex
	connectionMap   map[string]*Connection
	allocatedPorts  map[*Connection]int // ports to give back to portPool on close
	connCloseSignal chan *Connection    // connections report here when they are closed
	closeSignal     chan struct{}       // stops handleCloseConnection
	wg              sync.WaitGroup
	closed          bool
}

func NewCore(config *CoreConfig, connConfig *ConnectionConfig) (*Core, error) {
	if config == nil {
		config = DefaultCoreConfig()
	}
	if connConfig == nil {
		connConfig = DefaultConnectionConfig()
	}
	if err := connConfig.Validate(); err != nil {
		return nil, err
	}
	portPool, err := newPortPool(config.ClientPortLower, config.ClientPortUpper)
	if err != nil {
		return nil, err
	}
	diag, err := NewDiagnostics(config.Log)
	if err != nil {
		return nil, err
	}

	InitPayloadPool(config.Pool)

	p := &Core{
		config:          config,
		connConfig:      connConfig,
		diag:            diag,
		log:             diag.Logger,
		portPool:        portPool,
		connectionMap:   make(map[string]*Connection),
		allocatedPorts:  make(map[*Connection]int),
		connCloseSignal: make(chan *Connection),
		closeSignal:     make(chan struct{}),
	}

	p.wg.Add(1)
	go p.handleCloseConnection()

	p.log.Info().
		Dur("rtt", connConfig.RTT).
		Uint32("window", connConfig.WindowSize()).
		Msg("core started")
	return p, nil
}

// Logger returns the core's diagnostics logger.
func (p *Core) Logger() zerolog.Logger {
	return p.log
}

// Dial connects localAddr to remoteAddr. See DialWrapped.
func (p *Core) Dial(localAddr, remoteAddr string) (*Connection, error) {
	return p.DialWrapped(localAddr, remoteAddr, nil)
}

// DialWrapped binds a UDP socket on localAddr connected to remoteAddr and
// starts a connection over it, optionally through wrap. A local port of 0 is
// replaced by a free port above the remote port, so the dialer is the
// client.
func (p *Core) DialWrapped(localAddr, remoteAddr string, wrap TransportWrapper) (*Connection, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving local address: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving remote address: %w", err)
	}

	allocated := 0
	if laddr.Port == 0 {
		if allocated, err = p.portPool.allocatePortAbove(raddr.Port); err != nil {
			return nil, err
		}
		laddr.Port = allocated
	}
	releasePort := func() {
		if allocated != 0 {
			p.portPool.returnPort(allocated)
		}
	}

	udp, err := NewUDPTransport(laddr, raddr, p.config.Transport)
	if err != nil {
		releasePort()
		return nil, err
	}
	var t Transport = udp
	if wrap != nil {
		if t, err = wrap(udp); err != nil {
			udp.Close()
			releasePort()
			return nil, err
		}
	}

	role := RoleFor(udp.LocalAddr().Port, raddr.Port)
	if udp.LocalAddr().Port == raddr.Port {
		p.log.Warn().Int("port", raddr.Port).Msg("local and remote port are equal, both sides will act as client and the handshake will not complete")
	}
	conn, err := NewConnection(&ConnectionParams{
		Transport:  t,
		Role:       role,
		Logger:     p.log,
		Recorder:   p.diag.Recorder,
		LocalAddr:  udp.LocalAddr(),
		RemoteAddr: raddr,
		OnClose:    p.connectionClosed,
	}, p.connConfig)
	if err != nil {
		t.Close()
		releasePort()
		return nil, err
	}

	key := connectionKey(udp.LocalAddr(), raddr)
	p.mu.Lock()
	p.connectionMap[key] = conn
	if allocated != 0 {
		p.allocatedPorts[conn] = allocated
	}
	p.mu.Unlock()

	p.log.Info().Str("conn", key).Str("role", role.String()).Msg("dialed")
	return conn, nil
}

func connectionKey(local, remote net.Addr) string {
	return local.String() + "->" + remote.String()
}

// Connections returns the number of live connections.
func (p *Core) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connectionMap)
}

func (p *Core) connectionClosed(conn *Connection) {
	select {
	case p.connCloseSignal <- conn:
	case <-p.closeSignal:
		p.removeConnection(conn)
	}
}

func (p *Core) handleCloseConnection() {
	defer p.wg.Done()

	for {
		select {
		case <-p.closeSignal:
			return
		case conn := <-p.connCloseSignal:
			p.removeConnection(conn)
		}
	}
}

func (p *Core) removeConnection(conn *Connection) {
	key := connectionKey(conn.LocalAddr(), conn.RemoteAddr())

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.connectionMap[key]; !ok {
		p.log.Debug().Str("conn", key).Msg("closed connection was not registered")
		return
	}
	delete(p.connectionMap, key)
	if port, ok := p.allocatedPorts[conn]; ok {
		delete(p.allocatedPorts, conn)
		if err := p.portPool.returnPort(port); err != nil {
			p.log.Warn().Err(err).Msg("returning client port")
		}
	}
	p.log.Info().Str("conn", key).Msg("connection terminated and removed")
}

// Close closes every live connection, then the core itself.
func (p *Core) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := make([]*Connection, 0, len(p.connectionMap))
	for _, conn := range p.connectionMap {
		conns = append(conns, conn)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			conn.Close()
		}(conn)
	}
	wg.Wait()

	close(p.closeSignal)
	p.wg.Wait()

	p.log.Info().Msg("core closed gracefully")
	return p.diag.Close()
}
