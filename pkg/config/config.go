// Package config provides configuration management for room-upgrader.
// It defines the structure of the YAML configuration file and handles
// loading, validation, and default value application.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AccessTokenEnv is consulted when access_token is absent from the file.
	AccessTokenEnv = "MATRIX_ACCESS_TOKEN"

	DefaultNoticeMessage    = "Upgrading room, please stand by"
	DefaultTombstoneMessage = "This room has been replaced"
	DefaultRequestTimeout   = 30 * time.Second
)

// Config is the top-level configuration structure for room-upgrader.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver (e.g., https://matrix.example.org)
	HomeserverURL string `yaml:"homeserver_url"`
	// AccessToken authenticates every request; falls back to MATRIX_ACCESS_TOKEN
	AccessToken string `yaml:"access_token,omitempty"`
	// TargetRoomVersion is the room version of the successor rooms
	TargetRoomVersion string `yaml:"target_room_version"`
	// Rooms is the ordered list of room IDs to upgrade
	Rooms []string `yaml:"rooms"`
	// PLOverrides forces user power levels in the copied m.room.power_levels
	PLOverrides map[string]int64 `yaml:"pl_overrides,omitempty"`
	// StateEventsToTransfer lists the state event types (empty state key) copied to the successor
	StateEventsToTransfer []string `yaml:"state_events_to_transfer"`

	// NoticeMessage is posted in the old room before the successor is created
	NoticeMessage string `yaml:"notice_message,omitempty"`
	// TombstoneMessage is the body of the tombstone event
	TombstoneMessage string `yaml:"tombstone_message,omitempty"`
	// RequestTimeout bounds every homeserver request (default: 30s)
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	// RequestsPerSecond paces outgoing requests; 0 disables pacing
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`

	Journal JournalConfig    `yaml:"journal,omitempty"`
	Metrics MetricsConfig    `yaml:"metrics,omitempty"`
	Notify  []NotifierConfig `yaml:"notify,omitempty"`
}

// JournalConfig defines where completed upgrades are recorded.
type JournalConfig struct {
	// Path is the bbolt database file; empty disables the journal
	Path string `yaml:"path,omitempty"`
}

// MetricsConfig defines the Prometheus textfile output.
type MetricsConfig struct {
	// Textfile is written after the run for node_exporter's textfile collector
	Textfile string `yaml:"textfile,omitempty"`
}

// NotifierConfig describes one sink notified after every upgraded room.
type NotifierConfig struct {
	// Type is one of "http", "sns" or "sqs"
	Type string `yaml:"type"`
	// Name identifies the sink in logs (default: the type)
	Name string `yaml:"name,omitempty"`

	// URL, Method and Headers configure the http sink
	URL     string            `yaml:"url,omitempty"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`

	// Region and TopicARN configure the sns sink, Region and QueueURL the sqs sink
	Region   string `yaml:"region,omitempty"`
	TopicARN string `yaml:"topic_arn,omitempty"`
	QueueURL string `yaml:"queue_url,omitempty"`
}

// NewDefaultConfig creates a starter configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		HomeserverURL:     "https://matrix.example.org",
		TargetRoomVersion: "10",
		Rooms:             []string{},
		PLOverrides:       map[string]int64{},
		StateEventsToTransfer: []string{
			"m.room.name",
			"m.room.topic",
			"m.room.avatar",
			"m.room.join_rules",
			"m.room.history_visibility",
			"m.room.guest_access",
			"m.room.encryption",
			"m.room.canonical_alias",
			"m.room.power_levels",
		},
		NoticeMessage:    DefaultNoticeMessage,
		TombstoneMessage: DefaultTombstoneMessage,
		RequestTimeout:   DefaultRequestTimeout,
	}
}

// LoadConfig loads and validates a configuration from a YAML file.
// It applies default values for any missing optional fields.
// Returns an error if the file cannot be read, parsed, or is invalid.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// SaveConfig writes the configuration to a YAML file.
// The file is created with 0600 permissions since it may hold an access token.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.HomeserverURL == "" {
		return fmt.Errorf("homeserver_url is required")
	}
	u, err := url.Parse(c.HomeserverURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("homeserver_url must be an absolute http(s) URL: %q", c.HomeserverURL)
	}

	if c.AccessToken == "" && os.Getenv(AccessTokenEnv) == "" {
		return fmt.Errorf("access_token is required (or set %s)", AccessTokenEnv)
	}

	if c.TargetRoomVersion == "" {
		return fmt.Errorf("target_room_version is required")
	}

	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}

	seen := make(map[string]bool, len(c.Rooms))
	for _, room := range c.Rooms {
		if !looksLikeRoomID(room) {
			return fmt.Errorf("invalid room ID: %q", room)
		}
		if seen[room] {
			return fmt.Errorf("duplicate room ID: %s", room)
		}
		seen[room] = true
	}

	for userID := range c.PLOverrides {
		if !looksLikeID(userID, '@') {
			return fmt.Errorf("invalid user ID in pl_overrides: %q", userID)
		}
	}

	for _, eventType := range c.StateEventsToTransfer {
		if strings.TrimSpace(eventType) == "" {
			return fmt.Errorf("state_events_to_transfer cannot contain empty event types")
		}
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative")
	}

	for i, n := range c.Notify {
		if err := n.validate(); err != nil {
			return fmt.Errorf("notify[%d]: %w", i, err)
		}
	}

	return nil
}

func (n NotifierConfig) validate() error {
	switch strings.ToLower(n.Type) {
	case "http":
		if n.URL == "" {
			return fmt.Errorf("url is required for http notifier")
		}
	case "sns":
		if n.TopicARN == "" {
			return fmt.Errorf("topic_arn is required for sns notifier")
		}
	case "sqs":
		if n.QueueURL == "" {
			return fmt.Errorf("queue_url is required for sqs notifier")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unsupported notifier type: %s", n.Type)
	}
	if n.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.HomeserverURL = NormalizeHomeserverURL(c.HomeserverURL)

	if c.AccessToken == "" {
		c.AccessToken = os.Getenv(AccessTokenEnv)
	}
	if c.NoticeMessage == "" {
		c.NoticeMessage = DefaultNoticeMessage
	}
	if c.TombstoneMessage == "" {
		c.TombstoneMessage = DefaultTombstoneMessage
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}

	for i := range c.Notify {
		n := &c.Notify[i]
		n.Type = strings.ToLower(n.Type)
		if n.Name == "" {
			n.Name = n.Type
		}
		if n.Type == "http" && n.Method == "" {
			n.Method = "POST"
		}
	}
}

// NormalizeHomeserverURL strips a trailing slash and any /_matrix suffix.
func NormalizeHomeserverURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "/_matrix"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimRight(raw, "/")
}

// looksLikeRoomID reports whether id has the room sigil and an opaque rest.
// Since room version 12 room IDs carry no server name.
func looksLikeRoomID(id string) bool {
	return len(id) > 1 && id[0] == '!' && !strings.ContainsAny(id, " \t\r\n")
}

// looksLikeID reports whether id has the given sigil, a non-empty localpart
// and a non-empty server name.
func looksLikeID(id string, sigil byte) bool {
	if len(id) < 4 || id[0] != sigil {
		return false
	}
	colon := strings.IndexByte(id, ':')
	return colon > 1 && colon < len(id)-1
}
