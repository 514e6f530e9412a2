// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local notebooks and manual testing.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the map server.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	Paths  PathsConfig  `yaml:"paths"`
	Portal PortalConfig `yaml:"portal"`
	View   ViewConfig   `yaml:"view"`
	Map    MapConfig    `yaml:"map"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Portal *PortalConfig `yaml:"portal,omitempty"`
	View   *ViewConfig   `yaml:"view,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for runtime state.
	Root string `yaml:"root"`

	// StreamSocket is the unix socket native views connect to. Empty
	// disables the stream listener.
	StreamSocket string `yaml:"stream_socket"`
}

// PortalConfig configures the GIS portal the map authenticates against
// and loads gallery basemaps from.
type PortalConfig struct {
	// URL is the portal's REST base, ending in a slash, for example
	// "https://www.arcgis.com/sharing/rest/". Empty runs the map
	// anonymously with no gallery.
	URL string `yaml:"url"`

	// Username is the portal account. Empty means anonymous.
	Username string `yaml:"username"`

	// PasswordFile holds the account password. It may be plain text or
	// an age-encrypted file; encrypted files require IdentityFile.
	PasswordFile string `yaml:"password_file"`

	// IdentityFile is an age identity file for a sealed PasswordFile.
	IdentityFile string `yaml:"identity_file"`

	// GalleryQuery overrides the portal's basemapGalleryGroupQuery.
	GalleryQuery string `yaml:"gallery_query"`

	// OutsideOrg widens the gallery group search beyond the account's
	// organization. Default: true.
	OutsideOrg bool `yaml:"outside_org"`

	// Timeout bounds each portal HTTP request. Default: 30s.
	Timeout string `yaml:"timeout"`
}

// ViewConfig configures how views connect.
type ViewConfig struct {
	// ListenAddress is the HTTP address serving websocket comms.
	ListenAddress string `yaml:"listen_address"`

	// AllowedOrigins lists browser origins permitted to open a comm.
	// Empty allows any origin (development only).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Keepalive is the websocket ping interval. Default: 30s.
	Keepalive string `yaml:"keepalive"`

	// SendBuffer is the per-connection outbound queue length. A view
	// that falls this far behind is disconnected and resyncs on
	// reconnect. Default: 256.
	SendBuffer int `yaml:"send_buffer"`

	// Compression selects stream frame compression: none, lz4, or zstd.
	Compression string `yaml:"compression"`

	// CompressionThreshold is the payload size in bytes above which
	// stream frames are compressed. Default: 4096.
	CompressionThreshold int `yaml:"compression_threshold"`
}

// MapConfig holds the initial widget state.
type MapConfig struct {
	Basemap string    `yaml:"basemap"`
	Zoom    int       `yaml:"zoom"`
	Center  []float64 `yaml:"center"`
	Width   string    `yaml:"width"`

	// Item is a web map item ID to load into the view.
	Item string `yaml:"item"`
}

// Default returns the default configuration. These defaults ensure every
// field has a sensible value before the config file is merged over them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "mapview")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:         defaultRoot,
			StreamSocket: filepath.Join(defaultRoot, "view.sock"),
		},
		Portal: PortalConfig{
			OutsideOrg: true,
			Timeout:    "30s",
		},
		View: ViewConfig{
			ListenAddress:        "127.0.0.1:8765",
			Keepalive:            "30s",
			SendBuffer:           256,
			Compression:          "zstd",
			CompressionThreshold: 4096,
		},
		Map: MapConfig{
			Basemap: "topo",
			Zoom:    2,
			Center:  []float64{0, 0},
			Width:   "100%",
		},
	}
}

// Load loads configuration from the MAPVIEW_CONFIG environment variable.
// There is no fallback when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("MAPVIEW_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MAPVIEW_CONFIG environment variable not set; " +
			"set it to the path of your mapview.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// environment section, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges a single configuration file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Portal != nil {
		if overrides.Portal.URL != "" {
			c.Portal.URL = overrides.Portal.URL
		}
		if overrides.Portal.Username != "" {
			c.Portal.Username = overrides.Portal.Username
		}
		if overrides.Portal.PasswordFile != "" {
			c.Portal.PasswordFile = overrides.Portal.PasswordFile
		}
		if overrides.Portal.IdentityFile != "" {
			c.Portal.IdentityFile = overrides.Portal.IdentityFile
		}
		if overrides.Portal.GalleryQuery != "" {
			c.Portal.GalleryQuery = overrides.Portal.GalleryQuery
		}
		if overrides.Portal.Timeout != "" {
			c.Portal.Timeout = overrides.Portal.Timeout
		}
	}

	if overrides.View != nil {
		if overrides.View.ListenAddress != "" {
			c.View.ListenAddress = overrides.View.ListenAddress
		}
		if len(overrides.View.AllowedOrigins) > 0 {
			c.View.AllowedOrigins = overrides.View.AllowedOrigins
		}
		if overrides.View.Keepalive != "" {
			c.View.Keepalive = overrides.View.Keepalive
		}
		if overrides.View.SendBuffer > 0 {
			c.View.SendBuffer = overrides.View.SendBuffer
		}
		if overrides.View.Compression != "" {
			c.View.Compression = overrides.View.Compression
		}
		if overrides.View.CompressionThreshold > 0 {
			c.View.CompressionThreshold = overrides.View.CompressionThreshold
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"MAPVIEW_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["MAPVIEW_ROOT"] = c.Paths.Root

	c.Paths.StreamSocket = expandVars(c.Paths.StreamSocket, vars)
	c.Portal.PasswordFile = expandVars(c.Portal.PasswordFile, vars)
	c.Portal.IdentityFile = expandVars(c.Portal.IdentityFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Portal.URL != "" && !strings.HasPrefix(c.Portal.URL, "http://") && !strings.HasPrefix(c.Portal.URL, "https://") {
		errs = append(errs, fmt.Errorf("portal.url must be an http(s) URL, got %q", c.Portal.URL))
	}
	if c.Portal.Username != "" && c.Portal.URL == "" {
		errs = append(errs, fmt.Errorf("portal.username requires portal.url"))
	}
	if c.Portal.IdentityFile != "" && c.Portal.PasswordFile == "" {
		errs = append(errs, fmt.Errorf("portal.identity_file requires portal.password_file"))
	}
	if _, err := c.Portal.RequestTimeout(); err != nil {
		errs = append(errs, err)
	}

	if c.View.ListenAddress == "" {
		errs = append(errs, fmt.Errorf("view.listen_address is required"))
	}
	if _, err := c.View.KeepaliveInterval(); err != nil {
		errs = append(errs, err)
	}
	if c.View.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("view.send_buffer must be positive"))
	}
	compressionValues := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressionValues, c.View.Compression) {
		errs = append(errs, fmt.Errorf("view.compression must be one of: %v", compressionValues))
	}

	if c.Map.Zoom < 0 {
		errs = append(errs, fmt.Errorf("map.zoom must be >= 0, got %d", c.Map.Zoom))
	}
	if len(c.Map.Center) != 0 && len(c.Map.Center) != 2 {
		errs = append(errs, fmt.Errorf("map.center must be [latitude, longitude]"))
	}

	if c.Environment == Production {
		if strings.HasPrefix(c.Portal.URL, "http://") {
			errs = append(errs, fmt.Errorf("portal.url must use https in production"))
		}
		if len(c.View.AllowedOrigins) == 0 {
			errs = append(errs, fmt.Errorf("view.allowed_origins is required in production"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RequestTimeout parses Timeout.
func (p PortalConfig) RequestTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("portal.timeout: %w", err)
	}
	return timeout, nil
}

// KeepaliveInterval parses Keepalive.
func (v ViewConfig) KeepaliveInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(v.Keepalive)
	if err != nil {
		return 0, fmt.Errorf("view.keepalive: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("view.keepalive must be positive")
	}
	return interval, nil
}

// EnsurePaths creates the state root and the stream socket's directory.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root}
	if c.Paths.StreamSocket != "" {
		paths = append(paths, filepath.Dir(c.Paths.StreamSocket))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
