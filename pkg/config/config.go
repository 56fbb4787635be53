// Package config loads the recall configuration file. Configuration is
// declarative YAML; missing files yield a fully defaulted config so the
// tool works out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in the config file.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendSecret = "secret"
	BackendDisk   = "disk"
)

// MirrorConfig controls the optional mirror document.
type MirrorConfig struct {
	// Path of the rendered document. Empty disables mirroring.
	Path string `yaml:"path"`

	// Include/Exclude are glob patterns over virtual paths,
	// e.g. "/memories/projects/**". Empty Include mirrors everything.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Config is the full recall configuration.
type Config struct {
	// Backend selects the storage substrate: memory, sqlite, secret, disk.
	Backend string `yaml:"backend"`

	// StateDir holds databases, vault files, and the disk tree.
	StateDir string `yaml:"state_dir"`

	// Workspace identifies the caller; backends are constructed per
	// workspace and never shared across workspaces.
	Workspace string `yaml:"workspace"`

	// BranchAware partitions the sqlite backend by git branch.
	BranchAware bool `yaml:"branch_aware"`

	// KeyFile holds the master secret for the secret backend.
	KeyFile string `yaml:"key_file"`

	Mirror MirrorConfig `yaml:"mirror"`
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".recall", "config.yaml"), nil
}

// Load reads the config from path, or from the default location when
// path is empty. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	switch c.Backend {
	case BackendMemory, BackendSQLite, BackendSecret, BackendDisk:
	default:
		return fmt.Errorf("config: unknown backend %q: expected memory, sqlite, secret, or disk", c.Backend)
	}

	if c.StateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: resolve home directory: %w", err)
		}
		c.StateDir = filepath.Join(homeDir, ".recall", "state")
	}
	c.StateDir = expandHome(c.StateDir)
	c.KeyFile = expandHome(c.KeyFile)
	c.Mirror.Path = expandHome(c.Mirror.Path)

	if c.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("config: resolve working directory: %w", err)
		}
		c.Workspace = wd
	}

	if c.Backend == BackendSecret && c.KeyFile == "" {
		return fmt.Errorf("config: the secret backend requires key_file")
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/"))
		}
	}
	return p
}
