package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.dnamsg/config.toml.
type Config struct {
	DefaultProfile string          `toml:"default_profile"`
	Bootstrap      []BootstrapNode `toml:"bootstrap"`
}

// BootstrapNode is a DHT bootstrap entry point for the transport.
type BootstrapNode struct {
	Host      string `toml:"host"`
	Port      uint16 `toml:"port"`
	PublicKey string `toml:"public_key"`
}

// DefaultBootstrap returns the built-in bootstrap node list used when the
// config does not provide one.
func DefaultBootstrap() []BootstrapNode {
	return []BootstrapNode{
		{Host: "node.tox.biribiri.org", Port: 33445, PublicKey: "F404ABAA1C99A9D37D61AB54898F56793E1DEF8BD46B1038B9D822E8460FAB67"},
		{Host: "tox.initramfs.io", Port: 33445, PublicKey: "3F0A45A268367C1BEA652F258C85F4A66DA76BCAA667A49E770BCC4917AB6A25"},
		{Host: "tox.plastiras.org", Port: 33445, PublicKey: "8E8B63299B3D520FB377FE5100E65E3322F7AE5B20A0ACED2981769FC5B43725"},
	}
}

// BootstrapNodes returns the configured bootstrap list, falling back to the
// built-in defaults when empty.
func (c *Config) BootstrapNodes() []BootstrapNode {
	if len(c.Bootstrap) > 0 {
		return c.Bootstrap
	}
	return DefaultBootstrap()
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
