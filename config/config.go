// Package config loads the runtime configuration of minidock from a YAML
// file. Missing files fall back to the built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// environment variables consulted by Load
const (
	EnvConfig   = "MINIDOCK_CONFIG"
	EnvLogLevel = "MINIDOCK_LOG_LEVEL"
)

// DefaultPath is read when neither a flag nor EnvConfig names a file
const DefaultPath = "/etc/minidock/config.yaml"

// Config is the runtime configuration
type Config struct {
	// RootDir holds image tarballs, base layers and container workspaces
	RootDir   string `yaml:"root_dir"`
	BaseImage string `yaml:"base_image"`
	// StateDir holds one directory of state per container name
	StateDir   string `yaml:"state_dir"`
	NetworkDir string `yaml:"network_dir"`
	IPAMFile   string `yaml:"ipam_file"`

	CgroupRoot   string `yaml:"cgroup_root"`
	CgroupPrefix string `yaml:"cgroup_prefix"`

	DefaultNetwork string   `yaml:"default_network"`
	DefaultSubnet  string   `yaml:"default_subnet"`
	Nameservers    []string `yaml:"nameservers"`

	// DefaultMemory is the memory limit used when run is given none
	DefaultMemory string `yaml:"default_memory"`
	Seccomp       bool   `yaml:"seccomp"`
	LogLevel      string `yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		RootDir:        "/var/lib/minidock",
		BaseImage:      "busybox",
		StateDir:       "/var/run/minidock",
		NetworkDir:     "/var/run/minidock/network/network",
		IPAMFile:       "/var/run/minidock/network/ipam/subnet.json",
		CgroupRoot:     "/sys/fs/cgroup",
		CgroupPrefix:   "minidock",
		DefaultNetwork: "mydocker0",
		DefaultSubnet:  "192.168.1.0/24",
		Nameservers:    []string{"8.8.8.8"},
		DefaultMemory:  "50m",
		Seccomp:        true,
		LogLevel:       "info",
	}
}

// Load reads path, or the file named by EnvConfig, or DefaultPath. Only an
// explicitly named file has to exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if path = os.Getenv(EnvConfig); path != "" {
			explicit = true
		} else {
			path = DefaultPath
		}
	}
	cfg := Default()
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config: %w", err)
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, cfg.Validate()
}

// Parse decodes b on top of the defaults
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// MemoryBytes returns DefaultMemory in bytes
func (c *Config) MemoryBytes() (int64, error) {
	return units.RAMInBytes(c.DefaultMemory)
}

// Validate checks paths, the default subnet and the memory size
func (c *Config) Validate() error {
	var errs []error
	for _, p := range []struct{ name, value string }{
		{"root_dir", c.RootDir},
		{"state_dir", c.StateDir},
		{"network_dir", c.NetworkDir},
		{"ipam_file", c.IPAMFile},
		{"cgroup_root", c.CgroupRoot},
	} {
		if !filepath.IsAbs(p.value) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", p.name, p.value))
		}
	}
	if c.BaseImage == "" || filepath.Base(c.BaseImage) != c.BaseImage {
		errs = append(errs, fmt.Errorf("base_image %q must be a plain name", c.BaseImage))
	}
	if c.CgroupPrefix == "" {
		errs = append(errs, errors.New("cgroup_prefix is required"))
	}
	if c.DefaultNetwork == "" {
		errs = append(errs, errors.New("default_network is required"))
	}
	if _, _, err := net.ParseCIDR(c.DefaultSubnet); err != nil {
		errs = append(errs, fmt.Errorf("default_subnet: %w", err))
	}
	for _, ns := range c.Nameservers {
		if net.ParseIP(ns) == nil {
			errs = append(errs, fmt.Errorf("nameserver %q is not an IP address", ns))
		}
	}
	if n, err := c.MemoryBytes(); err != nil || n <= 0 {
		errs = append(errs, fmt.Errorf("default_memory %q is not a valid size", c.DefaultMemory))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
