// Package config loads the control plane's environment configuration,
// generalizing ksred-klear-api/cmd/server/main.go's inline
// os.Getenv(...) calls into typed helpers, following the shape of
// lanhnguyen2010-Future_bots/libs/go/platform/config/env.go's
// EnvOrDefault/MustGetEnv/DurationFromEnv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MustGetEnv panics if key is unset — used only for the handful of
// options required at startup, checked eagerly so a missing credential
// is a fatal construction error, never latent.
func MustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("config: required environment variable %s is not set", key))
	}
	return v
}

func DurationFromEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func BoolFromEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Config is every recognized process environment option.
type Config struct {
	DatabaseURL     string
	IaaSToken       string
	EncryptionKey   string
	ServerHost      string
	ServerPort      string
	VMImage         string
	VMRegion        string
	VMSize          string
	ControlPlaneURL string
	AdminBearer     string

	HeartbeatStaleAfter time.Duration
	SweepInterval       time.Duration

	Environment string
	Debug       bool

	// Guest-customizer knobs, passed through to user-data unmodified.
	GuestRepoURL      string
	GuestRef          string
	GuestWorkspaceDir string
	GuestSkipDeps     bool
}

// Load reads every option from the environment. Required options are
// fetched with MustGetEnv so a missing credential panics at startup,
// never surfaces latently mid-request.
func Load() Config {
	return Config{
		DatabaseURL:   MustGetEnv("DATABASE_URL"),
		IaaSToken:     MustGetEnv("IAAS_TOKEN"),
		EncryptionKey: MustGetEnv("ENCRYPTION_KEY"),
		AdminBearer:   MustGetEnv("ADMIN_BEARER_TOKEN"),

		ServerHost: EnvOrDefault("SERVER_HOST", "0.0.0.0"),
		ServerPort: EnvOrDefault("SERVER_PORT", "8080"),
		VMImage:    EnvOrDefault("VM_IMAGE", "ubuntu-22-04-x64"),
		VMRegion:   EnvOrDefault("VM_REGION", "nyc3"),
		VMSize:     EnvOrDefault("VM_SIZE", "s-1vcpu-1gb"),

		// No default may silently point to a production host: this one
		// is required, not defaulted.
		ControlPlaneURL: MustGetEnv("CONTROL_PLANE_URL"),

		HeartbeatStaleAfter: DurationFromEnv("HEARTBEAT_STALE_AFTER", 5*time.Minute),
		SweepInterval:       DurationFromEnv("SWEEP_INTERVAL", time.Minute),

		Environment: EnvOrDefault("ENV", "development"),
		Debug:       BoolFromEnv("DEBUG", false),

		GuestRepoURL:      EnvOrDefault("GUEST_REPO_URL", ""),
		GuestRef:          EnvOrDefault("GUEST_REF", "main"),
		GuestWorkspaceDir: EnvOrDefault("GUEST_WORKSPACE_DIR", "/opt/botfleet"),
		GuestSkipDeps:     BoolFromEnv("GUEST_SKIP_DEPS", false),
	}
}
