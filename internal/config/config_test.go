package config

import (
	"os"
	"testing"
	"time"
)

func clearStreamgroupEnv() {
	for _, k := range []string{
		"STREAMGROUP_REDIS_SERVERS",
		"STREAMGROUP_GROUP_ID",
		"STREAMGROUP_MEMBER_ID",
		"STREAMGROUP_ASSIGNMENT_TTL",
		"STREAMGROUP_ASSIGNMENT_LISTENER_INTERVAL",
		"STREAMGROUP_KEY_MISSING_SLEEP",
		"STREAMGROUP_BLOCK_TIMEOUT",
		"STREAMGROUP_RESTART_ON_ASSIGNMENT_EXPIRY",
		"STREAMGROUP_LOG_LEVEL",
		"STREAMGROUP_LOG_FORMAT",
		"STREAMGROUP_LOG_FILE",
	} {
		os.Unsetenv(k)
	}
}

func TestNewDefaultValues(t *testing.T) {
	clearStreamgroupEnv()
	t.Setenv("STREAMGROUP_GROUP_ID", "orders")
	t.Setenv("STREAMGROUP_MEMBER_ID", "worker-1")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if len(cfg.RedisServers) != 1 || cfg.RedisServers[0] != "localhost:6379" {
		t.Errorf("expected default redis server, got %v", cfg.RedisServers)
	}
	if cfg.AssignmentTTL != 30*time.Second {
		t.Errorf("expected default AssignmentTTL 30s, got %s", cfg.AssignmentTTL)
	}
	if cfg.AssignmentListenerInterval != 5*time.Second {
		t.Errorf("expected default AssignmentListenerInterval 5s, got %s", cfg.AssignmentListenerInterval)
	}
	if cfg.KeyMissingSleep != time.Second {
		t.Errorf("expected default KeyMissingSleep 1s, got %s", cfg.KeyMissingSleep)
	}
	if cfg.BlockTimeout != 5*time.Second {
		t.Errorf("expected default BlockTimeout 5s, got %s", cfg.BlockTimeout)
	}
	if cfg.RestartOnAssignmentExpiry {
		t.Errorf("expected RestartOnAssignmentExpiry to default false")
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" || cfg.LogFile != "" {
		t.Errorf("unexpected logging defaults: %+v", cfg)
	}
}

func TestNewCustomValues(t *testing.T) {
	clearStreamgroupEnv()
	t.Setenv("STREAMGROUP_REDIS_SERVERS", "redis-a:6379,redis-b:6379")
	t.Setenv("STREAMGROUP_GROUP_ID", "orders")
	t.Setenv("STREAMGROUP_MEMBER_ID", "worker-1")
	t.Setenv("STREAMGROUP_ASSIGNMENT_TTL", "45s")
	t.Setenv("STREAMGROUP_RESTART_ON_ASSIGNMENT_EXPIRY", "true")
	t.Setenv("STREAMGROUP_LOG_LEVEL", "debug")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if len(cfg.RedisServers) != 2 || cfg.RedisServers[0] != "redis-a:6379" {
		t.Errorf("expected two redis servers, got %v", cfg.RedisServers)
	}
	if cfg.PrimaryRedisServer() != "redis-a:6379" {
		t.Errorf("expected primary redis-a:6379, got %s", cfg.PrimaryRedisServer())
	}
	if cfg.AssignmentTTL != 45*time.Second {
		t.Errorf("expected AssignmentTTL 45s, got %s", cfg.AssignmentTTL)
	}
	if !cfg.RestartOnAssignmentExpiry {
		t.Errorf("expected RestartOnAssignmentExpiry true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", cfg.LogLevel)
	}
}

func TestNewMissingGroupID(t *testing.T) {
	clearStreamgroupEnv()
	t.Setenv("STREAMGROUP_MEMBER_ID", "worker-1")

	if _, err := New(); err == nil {
		t.Fatalf("expected error for missing group id")
	}
}

func TestNewMissingMemberID(t *testing.T) {
	clearStreamgroupEnv()
	t.Setenv("STREAMGROUP_GROUP_ID", "orders")

	if _, err := New(); err == nil {
		t.Fatalf("expected error for missing member id")
	}
}

func TestValidateRejectsColonInIdentity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupID = "orders:east"
	cfg.MemberID = "worker-1"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for group id containing ':'")
	}

	cfg.GroupID = "orders"
	cfg.MemberID = "worker:1"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for member id containing ':'")
	}
}

func TestValidateRejectsNoRedisServers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupID = "orders"
	cfg.MemberID = "worker-1"
	cfg.RedisServers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty redis servers")
	}
}

func TestNewInvalidDurationFallsBackToDefault(t *testing.T) {
	clearStreamgroupEnv()
	t.Setenv("STREAMGROUP_GROUP_ID", "orders")
	t.Setenv("STREAMGROUP_MEMBER_ID", "worker-1")
	t.Setenv("STREAMGROUP_ASSIGNMENT_TTL", "not-a-duration")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.AssignmentTTL != 30*time.Second {
		t.Errorf("expected default AssignmentTTL for invalid input, got %s", cfg.AssignmentTTL)
	}
}
