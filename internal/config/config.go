// Package config provides configuration management for the MountGuard agent.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSMBPort is the standard SMB service port used for reachability probes.
const DefaultSMBPort = 445

// DefaultConfigDir returns the default config directory (~/.mountguard).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".mountguard"), nil
}

// DefaultConfigPath returns the default config file path (~/.mountguard/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Config holds the agent's configuration.
type Config struct {
	// MountPoint is the canonical local path the share should always appear at.
	MountPoint string `yaml:"mount_point"`
	// ShareName is the share's name as it appears in the mount's remote source.
	ShareName string `yaml:"share_name"`
	// LocalHosts are the LAN hostnames tried first, in order.
	LocalHosts []string `yaml:"local_hosts"`
	// VPNPeer is the VPN peer name resolved to an address at run time.
	VPNPeer string `yaml:"vpn_peer,omitempty"`
	// VPNFallback is the last-known VPN address, tried when resolution fails.
	VPNFallback string `yaml:"vpn_fallback,omitempty"`
	// Port is the share's service port. Defaults to the SMB port.
	Port int `yaml:"port,omitempty"`

	// StateDir is where run markers and the pass journal live.
	// Defaults to the config directory.
	StateDir string `yaml:"state_dir,omitempty"`
}

// Validate checks that the configuration has required fields for operation.
func (c *Config) Validate() error {
	if c.MountPoint == "" {
		return errors.New("mount_point is required")
	}
	if !filepath.IsAbs(c.MountPoint) {
		return fmt.Errorf("mount_point must be an absolute path, got %q", c.MountPoint)
	}
	if c.ShareName == "" {
		return errors.New("share_name is required")
	}
	if len(c.LocalHosts) == 0 && c.VPNPeer == "" && c.VPNFallback == "" {
		return errors.New("at least one endpoint is required (local_hosts, vpn_peer or vpn_fallback)")
	}
	return nil
}

// ServicePort returns the configured share port, or the SMB default.
func (c *Config) ServicePort() int {
	if c.Port > 0 {
		return c.Port
	}
	return DefaultSMBPort
}

// stateDir returns the directory for run markers, falling back to the config dir.
func (c *Config) stateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	return DefaultConfigDir()
}

// LockPath returns the path of the run lock marker.
func (c *Config) LockPath() (string, error) {
	dir, err := c.stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "reconcile.lock"), nil
}

// OutageMarkerPath returns the path of the outage notification marker.
func (c *Config) OutageMarkerPath() (string, error) {
	dir, err := c.stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "outage.marker"), nil
}

// HistoryDir returns the directory holding the pass journal database.
func (c *Config) HistoryDir() (string, error) {
	return c.stateDir()
}

// Load reads the configuration from the given path.
// If the file does not exist, an empty config is returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the configuration to the given path, creating directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// SaveDefault writes the configuration to the default path.
func (c *Config) SaveDefault() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.Save(path)
}
