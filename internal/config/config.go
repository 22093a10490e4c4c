// Package config loads the offload tool configuration: named resources, the
// default backend per resource, and tool-wide settings.
//
// Configuration is read from offload.yaml in the working directory, then
// $HOME/.config/offload/, with OFFLOAD_* environment variables overriding
// file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/offloadhq/offload/pkg/artifact"
	"github.com/offloadhq/offload/pkg/session"
)

// ResourceType identifies how a session to a resource is established.
type ResourceType string

const (
	// ResourceLocal executes on the caller's own host.
	ResourceLocal ResourceType = "local"

	// ResourceSSH executes on a remote host over SSH.
	ResourceSSH ResourceType = "ssh"
)

// Resource describes one configured compute target.
type Resource struct {
	// Type is "local" or "ssh".
	Type ResourceType `mapstructure:"type"`

	// Host, Port, User, and KeyFile configure SSH resources.
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	User    string `mapstructure:"user"`
	KeyFile string `mapstructure:"key_file"`

	// Backend is the default submission backend for this resource.
	Backend string `mapstructure:"backend"`

	// RootDirectory optionally overrides the resource-wide base directory.
	RootDirectory string `mapstructure:"root_directory"`
}

// Config is the loaded tool configuration.
type Config struct {
	// DataDir is where the local run registry lives. Defaults to
	// $HOME/.local/share/offload (or the platform equivalent).
	DataDir string `mapstructure:"data_dir"`

	// TemplateDirs are user template directories searched before the
	// embedded defaults.
	TemplateDirs []string `mapstructure:"template_dirs"`

	// PollInterval bounds backend status polling.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// FollowTimeout caps how long follow blocks. Zero means unbounded.
	FollowTimeout time.Duration `mapstructure:"follow_timeout"`

	// Logging configures the CLI logger.
	Logging struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"logging"`

	// Server configures the read-only status server.
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	// Artifacts configures the optional S3-compatible artifact store used
	// by the objectstore strategy.
	Artifacts *artifact.Config `mapstructure:"artifacts"`

	// Resources are the named compute targets.
	Resources map[string]Resource `mapstructure:"resources"`
}

// Load reads the configuration. A missing config file is not an error: the
// defaults define a single implicit "localhost" resource.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("offload")
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "offload"))
		}
	}

	v.SetEnvPrefix("OFFLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll_interval", "10s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("server.addr", "localhost:8477")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No config file anywhere; run on defaults.
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".local", "share", "offload")
	}

	if cfg.Resources == nil {
		cfg.Resources = map[string]Resource{}
	}
	if _, ok := cfg.Resources["localhost"]; !ok {
		cfg.Resources["localhost"] = Resource{Type: ResourceLocal, Backend: "local"}
	}

	return &cfg, nil
}

// RunsDir is where run records are stored.
func (c *Config) RunsDir() string {
	return filepath.Join(c.DataDir, "jobs")
}

// Resource looks up a named resource.
func (c *Config) Resource(name string) (Resource, error) {
	r, ok := c.Resources[name]
	if !ok {
		names := make([]string, 0, len(c.Resources))
		for n := range c.Resources {
			names = append(names, n)
		}
		return Resource{}, fmt.Errorf("unknown resource %q (known: %v)", name, names)
	}
	return r, nil
}

// NewSession builds the session for a resource.
func (r Resource) NewSession() (session.Session, error) {
	switch r.Type {
	case ResourceLocal, "":
		return session.NewLocal(), nil
	case ResourceSSH:
		return session.NewSSH(session.SSHConfig{
			Host:    r.Host,
			Port:    r.Port,
			User:    r.User,
			KeyFile: r.KeyFile,
		})
	default:
		return nil, fmt.Errorf("unknown resource type %q", r.Type)
	}
}
