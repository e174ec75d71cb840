// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// ErrNoConfig is returned by Load when CORKBOARD_CONFIG is unset.
var ErrNoConfig = errors.New("CORKBOARD_CONFIG environment variable not set; " +
	"set it to the path of your corkboard.yaml config file, or use --config flag")

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Transport kinds accepted in transport.kind.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
	TransportPeer   = "peer"
	TransportWebRTC = "webrtc"
)

// Config is the master configuration for a Corkboard peer.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Identity  IdentityConfig  `yaml:"identity"`
	Presence  PresenceConfig  `yaml:"presence"`
	Transport TransportConfig `yaml:"transport"`
	Store     StoreConfig     `yaml:"store"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Presence  *PresenceConfig  `yaml:"presence,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	API       *APIConfig       `yaml:"api,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
}

// IdentityConfig names the local user and device. Both are document
// IDs as printed by "corkboard identity". An empty identity is valid:
// the peer runs but publishes no presence until one is configured.
type IdentityConfig struct {
	Contact string `yaml:"contact"`
	Device  string `yaml:"device"`
}

// PresenceConfig tunes the heartbeat protocol. Both values are
// time.ParseDuration strings.
type PresenceConfig struct {
	// HeartbeatInterval is how often each open document is announced.
	// Default: 1s
	HeartbeatInterval string `yaml:"heartbeat_interval"`

	// TTL is how long a peer stays live after its last heartbeat.
	// Must exceed HeartbeatInterval. Default: 5s
	TTL string `yaml:"ttl"`
}

// TransportConfig selects and configures the message transport.
type TransportConfig struct {
	// Kind is one of memory, nats, peer, webrtc.
	// Default: memory (development)
	Kind string `yaml:"kind"`

	// NATSURL is the broker for kind nats, and the signaling broker for
	// kind webrtc.
	NATSURL string `yaml:"nats_url"`

	// SubjectPrefix roots every NATS subject. Default: corkboard
	SubjectPrefix string `yaml:"subject_prefix"`

	// Listen is the address peers POST envelopes to (kind peer).
	Listen string `yaml:"listen"`

	// Peers are host:port addresses for kind peer and device IDs for
	// kind webrtc.
	Peers []string `yaml:"peers"`

	// ICEServers are STUN/TURN servers for kind webrtc.
	ICEServers []ICEServerConfig `yaml:"ice_servers"`

	// Signaling is the WebRTC signaling backend. Only nats is
	// supported. Default: nats
	Signaling string `yaml:"signaling"`
}

// ICEServerConfig is one STUN or TURN server.
type ICEServerConfig struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// StoreConfig configures document snapshot persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty keeps snapshots in
	// memory only.
	Path string `yaml:"path"`

	// Compression is none, lz4 or zstd. Default: zstd
	Compression string `yaml:"compression"`

	// PoolSize is the number of SQLite connections. Default: 4
	PoolSize int `yaml:"pool_size"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	// Listen is the API address. Default: 127.0.0.1:7420
	Listen string `yaml:"listen"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is text or json. Default: text (development), json (production)
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist to give every field a sensible value, not as a fallback:
// the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Presence: PresenceConfig{
			HeartbeatInterval: "1s",
			TTL:               "5s",
		},
		Transport: TransportConfig{
			Kind:          TransportMemory,
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "corkboard",
			Signaling:     "nats",
		},
		Store: StoreConfig{
			Path:        "${CORKBOARD_STATE:-${HOME}/.local/state/corkboard}/snapshots.db",
			Compression: "zstd",
			PoolSize:    4,
		},
		API: APIConfig{
			Listen: "127.0.0.1:7420",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the CORKBOARD_CONFIG environment
// variable. There is no fallback: if it is unset, Load returns
// ErrNoConfig.
func Load() (*Config, error) {
	configPath := os.Getenv("CORKBOARD_CONFIG")
	if configPath == "" {
		return nil, ErrNoConfig
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${VAR} and ${VAR:-default} in store.path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
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

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Log: &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if p := overrides.Presence; p != nil {
		setString(&c.Presence.HeartbeatInterval, p.HeartbeatInterval)
		setString(&c.Presence.TTL, p.TTL)
	}

	if t := overrides.Transport; t != nil {
		setString(&c.Transport.Kind, t.Kind)
		setString(&c.Transport.NATSURL, t.NATSURL)
		setString(&c.Transport.SubjectPrefix, t.SubjectPrefix)
		setString(&c.Transport.Listen, t.Listen)
		setString(&c.Transport.Signaling, t.Signaling)
		if t.Peers != nil {
			c.Transport.Peers = t.Peers
		}
		if t.ICEServers != nil {
			c.Transport.ICEServers = t.ICEServers
		}
	}

	if s := overrides.Store; s != nil {
		setString(&c.Store.Path, s.Path)
		setString(&c.Store.Compression, s.Compression)
		if s.PoolSize != 0 {
			c.Store.PoolSize = s.PoolSize
		}
	}

	if a := overrides.API; a != nil {
		setString(&c.API.Listen, a.Listen)
	}

	if l := overrides.Log; l != nil {
		setString(&c.Log.Level, l.Level)
		setString(&c.Log.Format, l.Format)
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	c.Store.Path = expandVars(c.Store.Path)
}

// varPattern matches an innermost ${VAR} or ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^${}]*))?\}`)

// expandVars expands variables from the environment, innermost first,
// so defaults may themselves reference variables.
func expandVars(s string) string {
	for {
		expanded := varPattern.ReplaceAllStringFunc(s, func(match string) string {
			parts := varPattern.FindStringSubmatch(match)
			if value := os.Getenv(parts[1]); value != "" {
				return value
			}
			return parts[2]
		})
		if expanded == s {
			return expanded
		}
		s = expanded
	}
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if (c.Identity.Contact == "") != (c.Identity.Device == "") {
		errs = append(errs, errors.New("identity.contact and identity.device must be set together"))
	}
	if c.Identity.Contact != "" {
		if _, err := ref.ParseContactID(c.Identity.Contact); err != nil {
			errs = append(errs, fmt.Errorf("identity.contact: %w", err))
		}
	}
	if c.Identity.Device != "" {
		if _, err := ref.ParseDeviceID(c.Identity.Device); err != nil {
			errs = append(errs, fmt.Errorf("identity.device: %w", err))
		}
	}

	interval, intervalErr := parsePositiveDuration("presence.heartbeat_interval", c.Presence.HeartbeatInterval)
	if intervalErr != nil {
		errs = append(errs, intervalErr)
	}
	ttl, ttlErr := parsePositiveDuration("presence.ttl", c.Presence.TTL)
	if ttlErr != nil {
		errs = append(errs, ttlErr)
	}
	if intervalErr == nil && ttlErr == nil && ttl <= interval {
		errs = append(errs, fmt.Errorf("presence.ttl (%s) must exceed presence.heartbeat_interval (%s)", ttl, interval))
	}

	errs = append(errs, c.Transport.validate()...)

	compressions := []string{"none", "lz4", "zstd"}
	if !slices.Contains(compressions, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressions))
	}
	if c.Store.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("store.pool_size must be positive, got %d", c.Store.PoolSize))
	}

	if c.API.Listen == "" {
		errs = append(errs, errors.New("api.listen is required"))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	formats := []string{"text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}

func (t *TransportConfig) validate() []error {
	var errs []error
	switch t.Kind {
	case TransportMemory:
	case TransportNATS:
		if t.NATSURL == "" {
			errs = append(errs, errors.New("transport.nats_url is required for kind nats"))
		}
	case TransportPeer:
		if t.Listen == "" {
			errs = append(errs, errors.New("transport.listen is required for kind peer"))
		}
	case TransportWebRTC:
		if t.Signaling != "nats" {
			errs = append(errs, fmt.Errorf("transport.signaling %q is not supported; use nats", t.Signaling))
		}
		if t.NATSURL == "" {
			errs = append(errs, errors.New("transport.nats_url is required for webrtc signaling"))
		}
		for index, peer := range t.Peers {
			if _, err := ref.ParseDeviceID(peer); err != nil {
				errs = append(errs, fmt.Errorf("transport.peers[%d]: %w", index, err))
			}
		}
		for index, server := range t.ICEServers {
			if len(server.URLs) == 0 {
				errs = append(errs, fmt.Errorf("transport.ice_servers[%d]: no urls", index))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("transport.kind must be one of: %v",
			[]string{TransportMemory, TransportNATS, TransportPeer, TransportWebRTC}))
	}
	return errs
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, d)
	}
	return d, nil
}

// HeartbeatInterval returns the parsed presence.heartbeat_interval.
// Call Validate first; an invalid value yields zero.
func (c *Config) HeartbeatInterval() time.Duration {
	d, _ := time.ParseDuration(c.Presence.HeartbeatInterval)
	return d
}

// TTL returns the parsed presence.ttl. Call Validate first.
func (c *Config) TTL() time.Duration {
	d, _ := time.ParseDuration(c.Presence.TTL)
	return d
}

// IdentityIDs parses the configured identity. ok is false when no
// identity is configured.
func (c *Config) IdentityIDs() (contact ref.ContactID, device ref.DeviceID, ok bool, err error) {
	if c.Identity.Contact == "" && c.Identity.Device == "" {
		return ref.ContactID{}, ref.DeviceID{}, false, nil
	}
	contact, err = ref.ParseContactID(c.Identity.Contact)
	if err != nil {
		return ref.ContactID{}, ref.DeviceID{}, false, fmt.Errorf("identity.contact: %w", err)
	}
	device, err = ref.ParseDeviceID(c.Identity.Device)
	if err != nil {
		return ref.ContactID{}, ref.DeviceID{}, false, fmt.Errorf("identity.device: %w", err)
	}
	return contact, device, true, nil
}

// LogLevel returns the configured level, forced to debug when
// CORKBOARD_DEBUG is set.
func (c *Config) LogLevel() slog.Level {
	if os.Getenv("CORKBOARD_DEBUG") != "" {
		return slog.LevelDebug
	}
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// EnsurePaths creates the directory holding store.path.
func (c *Config) EnsurePaths() error {
	if c.Store.Path == "" {
		return nil
	}
	dir := filepath.Dir(c.Store.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
