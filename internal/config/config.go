// Package config loads walletd's process configuration from environment
// variables overlaid onto the hard-coded defaults spec.md §6 lists, with
// command-line flags (wired in cmd/walletd) taking precedence over both,
// following the teacher's cmd/gojodb_server/main.go flag style.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Role identifies which side of the primary/backup pair this process runs.
type Role string

const (
	RolePrimary Role = "primary"
	RoleBackup  Role = "backup"
)

// Config is the fully resolved set of options recognized by walletd,
// per spec.md §6.
type Config struct {
	Role Role

	HTTPPort       int
	PrimaryRPCPort int
	BackupRPCPort  int
	BackupAddr     string // primary's dial target for the backup's replication RPC

	HealthInterval    time.Duration
	ReplicateTimeout  time.Duration
	PingTimeout       time.Duration

	StateDir string

	LogLevel  string
	LogFormat string
	// LogOutputFile is "stdout", "stderr", or a path to append JSON/console
	// log lines to. Empty means "derive one from StateDir" — see
	// ResolvedLogOutputFile.
	LogOutputFile string

	MetricsPort int

	// RateLimitRPS is the token-bucket refill rate applied to the mutating
	// HTTP routes. 0 disables the limiter (the default).
	RateLimitRPS float64
}

// Default returns the spec-mandated defaults before env/flag overrides.
func Default() Config {
	return Config{
		Role:             RolePrimary,
		HTTPPort:         8000,
		PrimaryRPCPort:   50051,
		BackupRPCPort:    50052,
		BackupAddr:       "127.0.0.1:50052",
		HealthInterval:   5 * time.Second,
		ReplicateTimeout: 5 * time.Second,
		PingTimeout:      2 * time.Second,
		StateDir:         "./data",
		LogLevel:         "info",
		LogFormat:        "console",
		MetricsPort:      9090,
		RateLimitRPS:     0,
	}
}

// FromEnv starts from Default() and overlays any recognized environment
// variables.
func FromEnv() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv("ROLE"); ok {
		switch Role(v) {
		case RolePrimary, RoleBackup:
			cfg.Role = Role(v)
		default:
			return cfg, fmt.Errorf("ROLE must be %q or %q, got %q", RolePrimary, RoleBackup, v)
		}
	}

	if err := overlayInt(&cfg.HTTPPort, "HTTP_PORT"); err != nil {
		return cfg, err
	}
	if err := overlayInt(&cfg.PrimaryRPCPort, "PRIMARY_RPC_PORT"); err != nil {
		return cfg, err
	}
	if err := overlayInt(&cfg.BackupRPCPort, "BACKUP_RPC_PORT"); err != nil {
		return cfg, err
	}
	if v, ok := os.LookupEnv("BACKUP_ADDR"); ok {
		cfg.BackupAddr = v
	}

	if err := overlayMillis(&cfg.HealthInterval, "HEALTH_INTERVAL_MS"); err != nil {
		return cfg, err
	}
	if err := overlayMillis(&cfg.ReplicateTimeout, "REPLICATE_TIMEOUT_MS"); err != nil {
		return cfg, err
	}
	if err := overlayMillis(&cfg.PingTimeout, "PING_TIMEOUT_MS"); err != nil {
		return cfg, err
	}

	if v, ok := os.LookupEnv("STATE_DIR"); ok {
		cfg.StateDir = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("LOG_OUTPUT_FILE"); ok {
		cfg.LogOutputFile = v
	}
	if err := overlayInt(&cfg.MetricsPort, "METRICS_PORT"); err != nil {
		return cfg, err
	}
	if v, ok := os.LookupEnv("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	}

	return cfg, nil
}

func overlayInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func overlayMillis(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}

// RPCPort returns the port this process should listen on for replication
// RPC, based on its role.
func (c Config) RPCPort() int {
	if c.Role == RolePrimary {
		return c.PrimaryRPCPort
	}
	return c.BackupRPCPort
}

// ResolvedLogOutputFile returns LogOutputFile if set, or else a default
// derived from StateDir, so a deployment that only ever sets STATE_DIR
// still gets its logs next to the ledger and snapshot files it describes,
// instead of silently falling back to stdout.
func (c Config) ResolvedLogOutputFile() string {
	if c.LogOutputFile != "" {
		return c.LogOutputFile
	}
	return filepath.Join(c.StateDir, "walletd.log")
}

// OverlayFlags parses command-line flags using cfg's current values (i.e.
// the env/defaults already applied by FromEnv) as each flag's default, so
// a flag explicitly passed on argv is the only thing that can change the
// result. This gives flags top precedence without a three-way merge.
func (cfg Config) OverlayFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("walletd", flag.ContinueOnError)

	role := fs.String("role", string(cfg.Role), "replica role: primary or backup")
	httpPort := fs.Int("http_port", cfg.HTTPPort, "HTTP edge listen port (primary only)")
	primaryRPCPort := fs.Int("primary_rpc_port", cfg.PrimaryRPCPort, "replication RPC port when running as primary")
	backupRPCPort := fs.Int("backup_rpc_port", cfg.BackupRPCPort, "replication RPC port when running as backup")
	backupAddr := fs.String("backup_addr", cfg.BackupAddr, "primary's dial target for the backup's replication RPC")
	healthIntervalMs := fs.Int("health_interval_ms", int(cfg.HealthInterval/time.Millisecond), "backup liveness probe interval, in milliseconds")
	replicateTimeoutMs := fs.Int("replicate_timeout_ms", int(cfg.ReplicateTimeout/time.Millisecond), "replicate RPC timeout, in milliseconds")
	pingTimeoutMs := fs.Int("ping_timeout_ms", int(cfg.PingTimeout/time.Millisecond), "ping RPC timeout, in milliseconds")
	stateDir := fs.String("state_dir", cfg.StateDir, "directory for the ledger and balance snapshot files")
	logLevel := fs.String("log_level", cfg.LogLevel, "zap log level")
	logFormat := fs.String("log_format", cfg.LogFormat, "zap encoder: json or console")
	logOutputFile := fs.String("log_output_file", cfg.LogOutputFile, "stdout, stderr, or a path; empty derives one from -state_dir")
	metricsPort := fs.Int("metrics_port", cfg.MetricsPort, "Prometheus /metrics listen port")
	rateLimitRPS := fs.Float64("rate_limit_rps", cfg.RateLimitRPS, "token-bucket rate limit for mutating HTTP routes; 0 disables")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch Role(*role) {
	case RolePrimary, RoleBackup:
		cfg.Role = Role(*role)
	default:
		return cfg, fmt.Errorf("-role must be %q or %q, got %q", RolePrimary, RoleBackup, *role)
	}
	cfg.HTTPPort = *httpPort
	cfg.PrimaryRPCPort = *primaryRPCPort
	cfg.BackupRPCPort = *backupRPCPort
	cfg.BackupAddr = *backupAddr
	cfg.HealthInterval = time.Duration(*healthIntervalMs) * time.Millisecond
	cfg.ReplicateTimeout = time.Duration(*replicateTimeoutMs) * time.Millisecond
	cfg.PingTimeout = time.Duration(*pingTimeoutMs) * time.Millisecond
	cfg.StateDir = *stateDir
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	cfg.LogOutputFile = *logOutputFile
	cfg.MetricsPort = *metricsPort
	cfg.RateLimitRPS = *rateLimitRPS

	return cfg, nil
}
