// Package config resolves the XDG-aware directories the CLI uses to
// derive default paths for the key file, session file, host-id file,
// last-sync-time file and the sqlite database.
package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns $XDG_CONFIG_HOME/pinsync, falling back to
// $HOME/.config/pinsync.
func ConfigDir() (string, error) {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "pinsync"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pinsync"), nil
}

// DataDir returns $XDG_DATA_HOME/pinsync, falling back to
// $HOME/.local/share/pinsync.
func DataDir() (string, error) {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "pinsync"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "pinsync"), nil
}

// Paths is the full set of on-disk locations the core reads and writes,
// all rooted under DataDir/ConfigDir so a fresh install only has to
// MkdirAll once.
type Paths struct {
	KeyFile      string
	SessionFile  string
	HostIDFile   string
	LastSyncFile string
	DatabaseFile string
}

// Resolve builds the default Paths, creating the backing directories
// (0700) if absent.
func Resolve() (Paths, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return Paths{}, err
	}
	dataDir, err := DataDir()
	if err != nil {
		return Paths{}, err
	}
	if err := os.MkdirAll(cfgDir, 0o700); err != nil {
		return Paths{}, err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return Paths{}, err
	}

	return Paths{
		KeyFile:      filepath.Join(cfgDir, "key"),
		SessionFile:  filepath.Join(cfgDir, "session"),
		HostIDFile:   filepath.Join(cfgDir, "host_id"),
		LastSyncFile: filepath.Join(dataDir, "last_sync_time"),
		DatabaseFile: filepath.Join(dataDir, "pinsync.db"),
	}, nil
}

// RootDir returns the current working directory, the anchor the CLI binds
// entries to when no enclosing git repository is used. Discovering the
// nearest git root is a CLI concern and lives outside this package.
func RootDir() (string, error) {
	return os.Getwd()
}
