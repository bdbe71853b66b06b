package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Clouded-Sabre/Datagram-TCP/lib"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shared by the command line tools.
type Config struct {
	// protocol
	RTT        time.Duration `yaml:"rtt"`
	RstTimeout time.Duration `yaml:"rst_timeout"`
	Bandwidth  int           `yaml:"bandwidth"` // bits per second
	MSS        int           `yaml:"mss"`

	// payload pool
	PayloadPoolSize      int           `yaml:"payload_pool_size"`
	PoolDebug            bool          `yaml:"pool_debug"`
	ProcessTimeThreshold time.Duration `yaml:"process_time_threshold"`

	// diagnostics
	Debug           bool   `yaml:"debug"`
	Console         bool   `yaml:"console"`
	LogFile         string `yaml:"log_file"`
	TraceBufferSize int64  `yaml:"trace_buffer_size"`

	// socket
	TOS             int `yaml:"tos"`
	TTL             int `yaml:"ttl"`
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
	ClientPortLower int `yaml:"client_port_lower"`
	ClientPortUpper int `yaml:"client_port_upper"`

	// tooling
	CaptureFile string     `yaml:"capture_file"` // pcap of every segment sent and received, empty disables
	Impairment  Impairment `yaml:"impairment"`   // used by the drop test gateway
}

// Impairment mirrors lib.ImpairConfig.
type Impairment struct {
	DropRate      float64 `yaml:"drop_rate"`
	DropEvery     int     `yaml:"drop_every"`
	DuplicateRate float64 `yaml:"duplicate_rate"`
	ReorderRate   float64 `yaml:"reorder_rate"`
	Seed          int64   `yaml:"seed"`
}

var AppConfig *Config

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		RTT:                  lib.DefaultRTT,
		RstTimeout:           lib.DefaultRstTimeout,
		Bandwidth:            lib.DefaultBandwidth,
		MSS:                  lib.MaxMSS,
		PayloadPoolSize:      2000,
		PoolDebug:            false,
		ProcessTimeThreshold: 10 * time.Millisecond,
		Debug:                false,
		Console:              true,
		LogFile:              "tcp_protocol.log",
		TraceBufferSize:      64 * 1024,
		ClientPortLower:      32768,
		ClientPortUpper:      60999,
	}
}

// ReadConfig overlays the YAML file at filePath on the defaults.
func ReadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
	}
	return config, nil
}

// LoadConfig reads and validates the file and returns the core and
// connection configuration derived from it.
func LoadConfig(filePath string) (*lib.CoreConfig, *lib.ConnectionConfig, error) {
	config, err := ReadConfig(filePath)
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	AppConfig = config
	return config.CoreConfig(), config.ConnectionConfig(), nil
}

func (c *Config) Validate() error {
	if err := c.ConnectionConfig().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Bandwidth <= 0 {
		return fmt.Errorf("invalid config: bandwidth must be positive, got %d", c.Bandwidth)
	}
	if c.PayloadPoolSize <= 0 {
		return fmt.Errorf("invalid config: payload_pool_size must be positive, got %d", c.PayloadPoolSize)
	}
	if c.TOS < 0 || c.TOS > 255 {
		return fmt.Errorf("invalid config: tos must be in 0..255, got %d", c.TOS)
	}
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("invalid config: ttl must be in 0..255, got %d", c.TTL)
	}
	if c.ClientPortLower <= 0 || c.ClientPortUpper > 65535 || c.ClientPortLower > c.ClientPortUpper {
		return fmt.Errorf("invalid config: client port range %d-%d", c.ClientPortLower, c.ClientPortUpper)
	}
	rates := map[string]float64{
		"drop_rate":      c.Impairment.DropRate,
		"duplicate_rate": c.Impairment.DuplicateRate,
		"reorder_rate":   c.Impairment.ReorderRate,
	}
	for name, rate := range rates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("invalid config: impairment %s must be in [0,1], got %v", name, rate)
		}
	}
	if c.Impairment.DropEvery < 0 {
		return fmt.Errorf("invalid config: impairment drop_every must not be negative, got %d", c.Impairment.DropEvery)
	}
	return nil
}

func (c *Config) ConnectionConfig() *lib.ConnectionConfig {
	return &lib.ConnectionConfig{
		RTT:        c.RTT,
		RstTimeout: c.RstTimeout,
		Bandwidth:  c.Bandwidth,
		MSS:        c.MSS,
	}
}

func (c *Config) CoreConfig() *lib.CoreConfig {
	return &lib.CoreConfig{
		Pool: &lib.PoolConfig{
			Size:                 c.PayloadPoolSize,
			ChunkLength:          lib.MaxMSS,
			Debug:                c.PoolDebug,
			ProcessTimeThreshold: c.ProcessTimeThreshold,
		},
		Log: &lib.LogConfig{
			Debug:           c.Debug,
			Console:         c.Console,
			LogFile:         c.LogFile,
			TraceBufferSize: c.TraceBufferSize,
		},
		Transport: &lib.UDPTransportConfig{
			TOS:             c.TOS,
			TTL:             c.TTL,
			ReadBufferSize:  c.ReadBufferSize,
			WriteBufferSize: c.WriteBufferSize,
		},
		ClientPortLower: c.ClientPortLower,
		ClientPortUpper: c.ClientPortUpper,
	}
}

func (c *Config) ImpairConfig() *lib.ImpairConfig {
	return &lib.ImpairConfig{
		DropRate:      c.Impairment.DropRate,
		DropEvery:     c.Impairment.DropEvery,
		DuplicateRate: c.Impairment.DuplicateRate,
		ReorderRate:   c.Impairment.ReorderRate,
		Seed:          c.Impairment.Seed,
	}
}
