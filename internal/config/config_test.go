package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestFromEnv_OverlaysRecognizedVariables(t *testing.T) {
	t.Setenv("ROLE", "backup")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("HEALTH_INTERVAL_MS", "1500")
	t.Setenv("STATE_DIR", "/tmp/walletd-test")
	t.Setenv("RATE_LIMIT_RPS", "12.5")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, RoleBackup, cfg.Role)
	require.Equal(t, 9000, cfg.HTTPPort)
	require.Equal(t, 1500*time.Millisecond, cfg.HealthInterval)
	require.Equal(t, "/tmp/walletd-test", cfg.StateDir)
	require.Equal(t, 12.5, cfg.RateLimitRPS)
}

func TestFromEnv_RejectsUnknownRole(t *testing.T) {
	t.Setenv("ROLE", "tertiary")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestFromEnv_RejectsMalformedInt(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestOverlayFlags_TakesPrecedenceOverEnvAndDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	cfg, err := FromEnv()
	require.NoError(t, err)

	cfg, err = cfg.OverlayFlags([]string{"-http_port", "7777", "-role", "backup"})
	require.NoError(t, err)
	require.Equal(t, 7777, cfg.HTTPPort)
	require.Equal(t, RoleBackup, cfg.Role)
}

func TestOverlayFlags_NoArgsPreservesPriorValues(t *testing.T) {
	cfg := Default()
	overlaid, err := cfg.OverlayFlags(nil)
	require.NoError(t, err)
	require.Equal(t, cfg, overlaid)
}

func TestOverlayFlags_RejectsUnknownRole(t *testing.T) {
	_, err := Default().OverlayFlags([]string{"-role", "tertiary"})
	require.Error(t, err)
}

func TestResolvedLogOutputFile_DefaultsUnderStateDir(t *testing.T) {
	cfg := Default()
	cfg.StateDir = "/var/lib/walletd"
	require.Equal(t, "/var/lib/walletd/walletd.log", cfg.ResolvedLogOutputFile())
}

func TestResolvedLogOutputFile_ExplicitValueTakesPrecedence(t *testing.T) {
	cfg := Default()
	cfg.StateDir = "/var/lib/walletd"
	cfg.LogOutputFile = "stdout"
	require.Equal(t, "stdout", cfg.ResolvedLogOutputFile())
}

func TestFromEnv_OverlaysLogOutputFile(t *testing.T) {
	t.Setenv("LOG_OUTPUT_FILE", "stderr")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "stderr", cfg.LogOutputFile)
}

func TestRPCPort_SelectsByRole(t *testing.T) {
	primary := Default()
	primary.Role = RolePrimary
	require.Equal(t, primary.PrimaryRPCPort, primary.RPCPort())

	backup := Default()
	backup.Role = RoleBackup
	require.Equal(t, backup.BackupRPCPort, backup.RPCPort())
}
