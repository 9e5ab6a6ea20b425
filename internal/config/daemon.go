package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

var discoveryPath string //nolint:gochecknoglobals // test hook

// SetDaemonDiscoveryPathOverride points the discovery file at path. Tests
// only; "" restores the default location.
func SetDaemonDiscoveryPathOverride(path string) {
	discoveryPath = path
}

// DaemonDiscovery is what `ferry serve` publishes about itself so `ferry
// status` can find it without being told the address.
type DaemonDiscovery struct {
	Addr      string    `toml:"addr"`
	Root      string    `toml:"root"`
	PID       int       `toml:"pid"`
	StartedAt time.Time `toml:"started_at,omitempty"`
}

// DaemonDiscoveryPath is $XDG_RUNTIME_DIR/ferry/daemon.toml, falling back to
// the temp dir.
func DaemonDiscoveryPath() string {
	if discoveryPath != "" {
		return discoveryPath
	}
	base, ok := os.LookupEnv("XDG_RUNTIME_DIR")
	if !ok || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "ferry", "daemon.toml")
}

// WriteDaemonDiscovery replaces the discovery file atomically so a
// concurrent reader never sees a half-written record.
func WriteDaemonDiscovery(d DaemonDiscovery) error {
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now().UTC().Truncate(time.Second)
	}
	path := DaemonDiscoveryPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create discovery dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".daemon-*.toml")
	if err != nil {
		return fmt.Errorf("create discovery file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := toml.NewEncoder(tmp).Encode(d); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("encode daemon discovery: %w", err)
	}
	//nolint:gosec // G302: readable by local users looking for the daemon
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadDaemonDiscovery loads the discovery file, returning os.ErrNotExist
// when no daemon has published one.
func ReadDaemonDiscovery() (DaemonDiscovery, error) {
	var d DaemonDiscovery
	if _, err := toml.DecodeFile(DaemonDiscoveryPath(), &d); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DaemonDiscovery{}, os.ErrNotExist
		}
		return DaemonDiscovery{}, fmt.Errorf("read daemon discovery: %w", err)
	}
	return d, nil
}

// RemoveDaemonDiscovery deletes the discovery file, ignoring errors.
func RemoveDaemonDiscovery() {
	os.Remove(DaemonDiscoveryPath()) //nolint:errcheck // best-effort cleanup on shutdown
}
