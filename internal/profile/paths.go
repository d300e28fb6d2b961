// Package profile resolves per-profile directories under ~/.pushsync.
// Each platform account the daemon syncs for gets its own profile dir
// holding the conversation cache, logs, and the daemon lock.
package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.pushsync.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pushsync")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// CachePath returns the conversation cache database path for a profile.
func CachePath(name string) string {
	return filepath.Join(Dir(name), "cache.db")
}

// LockPath returns the daemon lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path for a profile.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "pushsyncd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory if missing.
func EnsureDir(name string) error {
	return os.MkdirAll(Dir(name), 0700)
}
