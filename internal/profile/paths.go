package profile

import (
	"os"
	"path/filepath"
	"sort"
)

// BaseDir returns ~/.dnamsg.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dnamsg")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the engine's UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "engine.sock")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// IdentityPath returns the transport identity savedata path.
func IdentityPath(name string) string {
	return filepath.Join(Dir(name), "identity.tox")
}

// ArchiveDBPath returns the message archive messenger.db path.
func ArchiveDBPath(name string) string {
	return filepath.Join(Dir(name), "messenger.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the engine log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "dnamsgd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of all profiles that have a directory on disk,
// sorted alphabetically.
func List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(BaseDir(), "profiles"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
