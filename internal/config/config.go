// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration values loaded from environment variables
// for a streamgroup consumer process.
type Config struct {
	// RedisServers are host:port addresses. Only the first is consulted
	// today; the field is a slice so multi-endpoint topologies have a
	// place to land later.
	RedisServers []string

	// GroupID and MemberID identify this process within its consumer
	// group. Neither may contain ":" (see internal/keys).
	GroupID  string
	MemberID string

	// AssignmentTTL is the TTL applied to the consumer's assignment
	// document on every write.
	AssignmentTTL time.Duration
	// AssignmentListenerInterval is the assignment poll period.
	AssignmentListenerInterval time.Duration
	// KeyMissingSleep is how long a channel processor waits between
	// XGROUP CREATE attempts while the target stream does not exist yet.
	KeyMissingSleep time.Duration
	// BlockTimeout bounds both the XREADGROUP BLOCK duration and, in
	// turn, the worst-case latency of Stop().
	BlockTimeout time.Duration

	// RestartOnAssignmentExpiry, when true, tears down all running
	// channel processors if the assignment key expires or is deleted.
	// The default (false) matches the source behavior: a consumer whose
	// assignment lease lapses keeps running its last-known processors.
	RestartOnAssignmentExpiry bool

	// Logging
	LogLevel  string // Log level (debug, info, warn, error)
	LogFormat string // Log format (json, console)
	LogFile   string // Path to log file (empty for stdout)
}

// New creates a new configuration with values from environment variables.
// It applies default values where environment variables are not set, and
// validates required configuration settings.
func New() (*Config, error) {
	config := &Config{
		RedisServers: EnvStringSliceOrDefault("STREAMGROUP_REDIS_SERVERS", []string{"localhost:6379"}),

		GroupID:  EnvOrDefault("STREAMGROUP_GROUP_ID", ""),
		MemberID: EnvOrDefault("STREAMGROUP_MEMBER_ID", ""),

		AssignmentTTL:              EnvDurationOrDefault("STREAMGROUP_ASSIGNMENT_TTL", 30*time.Second),
		AssignmentListenerInterval: EnvDurationOrDefault("STREAMGROUP_ASSIGNMENT_LISTENER_INTERVAL", 5*time.Second),
		KeyMissingSleep:            EnvDurationOrDefault("STREAMGROUP_KEY_MISSING_SLEEP", time.Second),
		BlockTimeout:               EnvDurationOrDefault("STREAMGROUP_BLOCK_TIMEOUT", 5*time.Second),

		RestartOnAssignmentExpiry: EnvBoolOrDefault("STREAMGROUP_RESTART_ON_ASSIGNMENT_EXPIRY", false),

		LogLevel:  EnvOrDefault("STREAMGROUP_LOG_LEVEL", "info"),
		LogFormat: EnvOrDefault("STREAMGROUP_LOG_FORMAT", "json"),
		LogFile:   EnvOrDefault("STREAMGROUP_LOG_FILE", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the invariants the core relies on: at least one Redis
// server, non-empty identities, and no ":" in either identity (the key
// namer's caller contract).
func (c *Config) Validate() error {
	if len(c.RedisServers) == 0 || c.RedisServers[0] == "" {
		return fmt.Errorf("config: at least one Redis server is required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("config: STREAMGROUP_GROUP_ID is required")
	}
	if c.MemberID == "" {
		return fmt.Errorf("config: STREAMGROUP_MEMBER_ID is required")
	}
	if strings.Contains(c.GroupID, ":") {
		return fmt.Errorf("config: group id %q must not contain ':'", c.GroupID)
	}
	if strings.Contains(c.MemberID, ":") {
		return fmt.Errorf("config: member id %q must not contain ':'", c.MemberID)
	}
	return nil
}

// PrimaryRedisServer returns the first configured Redis server, the only
// one the core consults.
func (c *Config) PrimaryRedisServer() string {
	return c.RedisServers[0]
}

// DefaultConfig returns a configuration with default values and empty
// required identities. It does not validate; callers that need a usable
// Config should call New or set GroupID/MemberID and call Validate.
func DefaultConfig() *Config {
	return &Config{
		RedisServers:               []string{"localhost:6379"},
		AssignmentTTL:              30 * time.Second,
		AssignmentListenerInterval: 5 * time.Second,
		KeyMissingSleep:            time.Second,
		BlockTimeout:               5 * time.Second,
		LogLevel:                   "info",
		LogFormat:                  "json",
	}
}
