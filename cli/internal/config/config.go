package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMonitorURL = "http://localhost:8080"
	DefaultNATSURL    = "nats://localhost:4222"
	DefaultTopic      = "exceptions"
)

type Config struct {
	CurrentProfile string              `yaml:"current_profile" json:"currentProfile"`
	Profiles       map[string]*Profile `yaml:"profiles" json:"profiles"`
	path           string
}

// Profile points the CLI at one monitor deployment and its bus.
type Profile struct {
	MonitorURL string `yaml:"monitor_url" json:"monitorUrl"`
	NATSURL    string `yaml:"nats_url,omitempty" json:"natsUrl,omitempty"`
	Topic      string `yaml:"topic,omitempty" json:"topic,omitempty"`
	Partitions int    `yaml:"partitions,omitempty" json:"partitions,omitempty"`
}

func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
	}
}

// DefaultPath is $HOME/.exmon/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".exmon", "config.yaml"), nil
}

// Load reads cfgFile, or DefaultPath when empty. A missing file yields the
// defaults.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	cfg := Default()
	cfg.path = cfgFile

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfgFile, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	return cfg, nil
}

func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0600)
}

// SaveProfile stores p under name and makes it current.
func (c *Config) SaveProfile(name string, p *Profile) error {
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	c.Profiles[name] = p
	c.CurrentProfile = name
	return c.Save()
}

// GetProfile returns the named profile, the current one when name is empty.
// The result has every unset field defaulted, and EXMON_URL / EXMON_NATS_URL
// override the stored URLs. A missing default profile is not an error.
func (c *Config) GetProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}

	p := &Profile{}
	if stored, ok := c.Profiles[name]; ok {
		*p = *stored
	} else if name != "default" && name != "" {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}

	if v := os.Getenv("EXMON_URL"); v != "" {
		p.MonitorURL = v
	}
	if v := os.Getenv("EXMON_NATS_URL"); v != "" {
		p.NATSURL = v
	}
	if p.MonitorURL == "" {
		p.MonitorURL = DefaultMonitorURL
	}
	if p.NATSURL == "" {
		p.NATSURL = DefaultNATSURL
	}
	if p.Topic == "" {
		p.Topic = DefaultTopic
	}
	if p.Partitions <= 0 {
		p.Partitions = 1
	}
	return p, nil
}

func (c *Config) UseProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}
	c.CurrentProfile = name
	return c.Save()
}

func (c *Config) RemoveProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile '%s' not found", name)
	}

	delete(c.Profiles, name)

	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}

	return c.Save()
}

// ProfileNames lists the stored profiles in order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
