package lib

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"
)

// twoFreePorts returns two distinct free UDP ports, lower first.
func twoFreePorts(t *testing.T) (int, int) {
	t.Helper()
	for {
		a, b := freeUDPPort(t), freeUDPPort(t)
		switch {
		case a < b:
			return a, b
		case b < a:
			return b, a
		}
	}
}

func TestCoreDialAndClose(t *testing.T) {
	lo, hi := twoFreePorts(t)
	config := DefaultCoreConfig()
	config.Log = &LogConfig{Debug: true, TraceBufferSize: 64 * 1024}
	config.ClientPortLower = hi
	config.ClientPortUpper = hi

	core, err := NewCore(config, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer core.Close()

	serverAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(lo))
	clientAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(hi))
	server, err := core.Dial(serverAddr, clientAddr)
	if err != nil {
		t.Fatal(err)
	}
	client, err := core.Dial("127.0.0.1:0", serverAddr)
	if err != nil {
		t.Fatal(err)
	}
	if client.Role() != RoleClient || server.Role() != RoleServer {
		t.Fatalf("roles: client %s, server %s", client.Role(), server.Role())
	}
	if core.Connections() != 2 {
		t.Errorf("connections = %d, want 2", core.Connections())
	}
	if core.portPool.available() != 0 {
		t.Error("client port not taken from the pool")
	}
	if _, err := core.Dial("127.0.0.1:0", serverAddr); !errors.Is(err, ErrPortPoolEmpty) {
		t.Errorf("dial with an exhausted pool = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	want := pattern(5000)
	if _, err := client.Send(want); err != nil {
		t.Fatal(err)
	}
	got, err := server.RecvContext(ctx, len(want))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("payload corrupted")
	}
	if len(client.Trace()) == 0 {
		t.Error("no diagnostics recorded")
	}

	client.Close()
	waitState(t, server, StateClosed, 2*time.Second)
	if !waitFor(t, time.Second, func() bool { return core.Connections() == 1 }) {
		t.Errorf("connections after client close = %d, want 1", core.Connections())
	}
	if core.portPool.available() != 1 {
		t.Error("client port not returned")
	}

	if err := core.Close(); err != nil {
		t.Fatal(err)
	}
	if core.Connections() != 0 {
		t.Errorf("connections after core close = %d", core.Connections())
	}
	if _, err := core.Dial("127.0.0.1:0", serverAddr); !errors.Is(err, ErrClosed) {
		t.Errorf("dial after close = %v", err)
	}
}

func TestNewCoreRejectsBadConfig(t *testing.T) {
	config := DefaultCoreConfig()
	config.ClientPortLower, config.ClientPortUpper = 5000, 4000
	if _, err := NewCore(config, nil); err == nil {
		t.Error("inverted port range accepted")
	}
	if _, err := NewCore(nil, &ConnectionConfig{}); err == nil {
		t.Error("zero connection config accepted")
	}
}
