// Package config manages Trinity configuration and the .trinity directory
// structure. It handles loading, saving, and initializing the repository
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	TrinityDir   = ".trinity"
	ConfigFile   = "config"
	DatabaseFile = "trinity.db"
	AuditFile    = "audit.db"
)

// Defaults for lock coordination knobs.
const (
	DefaultLockTimeoutMS = 5000
	DefaultLeaseTTLMS    = 30000
	DefaultCacheTTLSec   = 30
)

// Config represents the Trinity configuration
type Config struct {
	Author        string `toml:"author"`          // Default author for commits and merges
	LockTimeoutMS int    `toml:"lock_timeout_ms"` // Advisory lock acquisition timeout
	LeaseTTLMS    int    `toml:"lease_ttl_ms"`    // Lease expiry for crashed holders
	CacheTTLSec   int    `toml:"cache_ttl_sec"`   // Response cache entry TTL
	path          string // path to .trinity directory
}

// FindTrinityRoot finds the .trinity directory by walking up from the
// current directory.
func FindTrinityRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		p := filepath.Join(dir, TrinityDir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a trinity repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .trinity directory
func Load() (*Config, error) {
	root, err := FindTrinityRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads the configuration from an explicit .trinity directory.
func LoadFrom(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = root
	cfg.applyDefaults()
	return &cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// TrinityPath returns the path to the .trinity directory
func (c *Config) TrinityPath() string {
	return c.path
}

// DatabasePath returns the path to the SQLite database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

// AuditPath returns the path to the bbolt audit database
func (c *Config) AuditPath() string {
	return filepath.Join(c.path, AuditFile)
}

// LockTimeout returns the advisory lock acquisition timeout.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// LeaseTTL returns the lease expiry duration.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLMS) * time.Millisecond
}

// CacheTTL returns the response cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

func (c *Config) applyDefaults() {
	if c.LockTimeoutMS <= 0 {
		c.LockTimeoutMS = DefaultLockTimeoutMS
	}
	if c.LeaseTTLMS <= 0 {
		c.LeaseTTLMS = DefaultLeaseTTLMS
	}
	if c.CacheTTLSec <= 0 {
		c.CacheTTLSec = DefaultCacheTTLSec
	}
}

// Initialize creates a new .trinity directory with initial configuration
func Initialize(author string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return InitializeAt(cwd, author)
}

// InitializeAt creates a .trinity directory under the given base directory.
func InitializeAt(base, author string) (*Config, error) {
	root := filepath.Join(base, TrinityDir)

	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("trinity repository already exists")
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .trinity directory: %w", err)
	}

	cfg := &Config{
		Author: author,
		path:   root,
	}
	cfg.applyDefaults()

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(root)
		return nil, err
	}

	return cfg, nil
}
