package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional ferry configuration file. Every field is a
// pointer so an absent key never overrides a flag default.
type Config struct {
	Transfer TransferConfig `toml:"transfer"`
	Connect  ConnectConfig  `toml:"connect"`
	Daemon   DaemonConfig   `toml:"daemon"`
}

// TransferConfig holds defaults for `ferry send`.
type TransferConfig struct {
	BufferSize  *string `toml:"buffer_size"`
	Depth       *int    `toml:"depth"`
	Strategy    *string `toml:"strategy"`
	Compression *string `toml:"compression"`
	BWLimit     *string `toml:"bwlimit"`
	Backend     *string `toml:"backend"`
}

// ConnectConfig holds defaults for connection establishment.
type ConnectConfig struct {
	Mode             *string   `toml:"mode"`
	Interval         *Duration `toml:"interval"`
	Attempts         *int      `toml:"attempts"`
	Timeout          *Duration `toml:"timeout"`
	HandshakeTimeout *Duration `toml:"handshake_timeout"`
	TrafficClass     *int      `toml:"traffic_class"`
}

// DaemonConfig holds defaults for `ferry serve`.
type DaemonConfig struct {
	Listen    *string `toml:"listen"`
	Root      *string `toml:"root"`
	PortRange *string `toml:"port_range"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ferry", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero
// Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
