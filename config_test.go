package sessionkit

import (
	"context"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Store.RedisAddr != "localhost:6379" {
		t.Fatalf("RedisAddr = %q", cfg.Store.RedisAddr)
	}
	if cfg.Store.RefreshThreshold != 30*time.Second {
		t.Fatalf("RefreshThreshold = %v", cfg.Store.RefreshThreshold)
	}
	if cfg.Store.BridgeBuffer != 64 {
		t.Fatalf("BridgeBuffer = %d", cfg.Store.BridgeBuffer)
	}
	if cfg.Guard.LoginPath != "/login" || cfg.Guard.UnauthorizedPath != "/unauthorized" {
		t.Fatalf("guard paths = %+v", cfg.Guard)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("Level = %q", cfg.Log.Level)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SESSIONKIT_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SESSIONKIT_REFRESH_THRESHOLD", "90s")
	t.Setenv("SESSIONKIT_IDENTITY_URL", "https://id.plantgate.example")
	t.Setenv("SESSIONKIT_LOGIN_PATH", "/signin")
	t.Setenv("SESSIONKIT_LOG_PRETTY", "true")

	cfg, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Store.RedisAddr != "redis.internal:6380" {
		t.Fatalf("RedisAddr = %q", cfg.Store.RedisAddr)
	}
	if cfg.Store.RefreshThreshold != 90*time.Second {
		t.Fatalf("RefreshThreshold = %v", cfg.Store.RefreshThreshold)
	}
	if cfg.Identity.BaseURL != "https://id.plantgate.example" {
		t.Fatalf("BaseURL = %q", cfg.Identity.BaseURL)
	}
	if cfg.Guard.LoginPath != "/signin" {
		t.Fatalf("LoginPath = %q", cfg.Guard.LoginPath)
	}
	if !cfg.Log.Pretty {
		t.Fatal("Pretty = false, want true")
	}
}
