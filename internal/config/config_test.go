package config

import (
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestEngineDefaults(t *testing.T) {
	c := Config{}
	c.applyEngineDefaults()

	if c.Engine.GlobalMaxCalls != 50 {
		t.Fatalf("expected global max default 50, got %d", c.Engine.GlobalMaxCalls)
	}
	if c.Engine.DefaultClientMaxCalls != 5 {
		t.Fatalf("expected client max default 5, got %d", c.Engine.DefaultClientMaxCalls)
	}
	if c.Engine.HeartbeatPeriod != 30*time.Second {
		t.Fatalf("expected heartbeat default 30s, got %v", c.Engine.HeartbeatPeriod)
	}
	if c.Engine.OrphanThreshold != 90*time.Second {
		t.Fatalf("expected orphan threshold default 90s, got %v", c.Engine.OrphanThreshold)
	}
	if c.Pool.FreshnessWindow != 5*time.Minute {
		t.Fatalf("expected pool window default 5m, got %v", c.Pool.FreshnessWindow)
	}
}

func TestValidate_OrphanThresholdMustExceedHeartbeat(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Engine: EngineConfig{
			HeartbeatPeriod: time.Minute,
			OrphanThreshold: 30 * time.Second,
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for orphan threshold <= heartbeat period")
	}
}
