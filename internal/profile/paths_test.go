package profile

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsShareProfileDir(t *testing.T) {
	name := "work"
	dir := Dir(name)

	paths := map[string]string{
		"socket":   SocketPath(name),
		"lock":     LockPath(name),
		"identity": IdentityPath(name),
		"archive":  ArchiveDBPath(name),
		"log":      LogPath(name),
	}
	for desc, p := range paths {
		if !strings.HasPrefix(p, dir) {
			t.Errorf("%s path %q not under profile dir %q", desc, p, dir)
		}
	}
}

func TestLogPathUnderLogDir(t *testing.T) {
	if got, want := LogPath("main"), filepath.Join(LogDir("main"), "dnamsgd.log"); got != want {
		t.Errorf("LogPath = %q, want %q", got, want)
	}
}

func TestConfigPathInBaseDir(t *testing.T) {
	if !strings.HasPrefix(ConfigPath(), BaseDir()) {
		t.Errorf("ConfigPath %q not under base dir %q", ConfigPath(), BaseDir())
	}
	if filepath.Base(ConfigPath()) != "config.toml" {
		t.Errorf("ConfigPath basename = %q, want config.toml", filepath.Base(ConfigPath()))
	}
}
