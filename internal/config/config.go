// Package config loads and validates service configuration from the
// environment. A .env file is honored in development.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the execution service.
type Config struct {
	// Port the HTTP server binds to.
	Port string

	// UseDocker selects the containerized sandbox. When false, children run
	// directly on the host with the same command shapes (dev mode).
	UseDocker bool

	// ImagePrefix is the repository prefix for per-language runner images,
	// e.g. "omni-runner" -> omni-runner:python.
	ImagePrefix string

	// WallClock bounds a session's execution time.
	WallClock time.Duration

	// KillGrace is how long a child gets between SIGTERM and SIGKILL.
	KillGrace time.Duration

	// CommandTimeout bounds a single interactive debugger command.
	CommandTimeout time.Duration

	// HistoryDB is the sqlite path for the session audit trail. Empty
	// disables history.
	HistoryDB string

	// GeminiAPIKey enables the insight endpoint when non-empty.
	GeminiAPIKey string

	// PredictorDir holds per-language breakpoint predictor executables.
	// Empty disables prediction.
	PredictorDir string

	// CreateRatePerMin limits POST /run per client IP.
	CreateRatePerMin int
}

// Load reads configuration from the environment, consulting .env first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../.env")
	}

	cfg := &Config{
		Port:             getEnv("OC_PORT", "8000"),
		UseDocker:        envBool("OC_USE_DOCKER", true),
		ImagePrefix:      getEnv("OC_IMAGE_PREFIX", "omni-runner"),
		WallClock:        envDuration("OC_WALL_CLOCK_SECONDS", 60*time.Second),
		KillGrace:        envDuration("OC_KILL_GRACE_SECONDS", 3*time.Second),
		CommandTimeout:   envDuration("OC_COMMAND_TIMEOUT_SECONDS", 5*time.Second),
		HistoryDB:        getEnv("OC_HISTORY_DB", "omnicompiler.db"),
		GeminiAPIKey:     os.Getenv("OC_GEMINI_API_KEY"),
		PredictorDir:     os.Getenv("OC_PREDICTOR_DIR"),
		CreateRatePerMin: envInt("OC_CREATE_RATE_PER_MIN", 30),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("OC_PORT must be numeric, got %q", c.Port)
	}
	if c.WallClock <= 0 {
		return fmt.Errorf("OC_WALL_CLOCK_SECONDS must be positive")
	}
	if c.CreateRatePerMin <= 0 {
		return fmt.Errorf("OC_CREATE_RATE_PER_MIN must be positive")
	}
	return nil
}

// DockerAvailable reports whether the docker CLI is on PATH.
func DockerAvailable() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "0", "false", "no":
		return false
	}
	return true
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
