package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/path402/pkg/config"
)

var envKeys = []string{
	"PORT", "LOG_LEVEL", "DATABASE_URL", "DATA_DIR", "PATH402_AGENT",
	"PATH402_INITIAL_BALANCE", "PATH402_DEFAULT_CEILING", "PATH402_PARTICIPATION",
	"PATH402_POLICY_FILE", "PATH402_CONTENT_STORE", "PATH402_CONTENT_BUCKET",
	"REDIS_ADDR", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "OTEL_ENABLED",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "PATH402_PROOF_SEED",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// The engine must boot in lite mode with no configuration at all.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "3402", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.True(t, cfg.LiteMode())
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "default", cfg.Agent)
	assert.Equal(t, int64(100000), cfg.InitialBalance)
	assert.Equal(t, int64(10000), cfg.DefaultCeiling)
	assert.Equal(t, 0.5, cfg.Participation)
	assert.Equal(t, "memory", cfg.ContentStore)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9402")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://path402@db:5432/path402")
	t.Setenv("PATH402_INITIAL_BALANCE", "500")
	t.Setenv("PATH402_DEFAULT_CEILING", "50")
	t.Setenv("PATH402_PARTICIPATION", "0.25")
	t.Setenv("PATH402_CONTENT_STORE", "s3")
	t.Setenv("PATH402_CONTENT_BUCKET", "paid-content")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9402", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.False(t, cfg.LiteMode())
	assert.Equal(t, int64(500), cfg.InitialBalance)
	assert.Equal(t, int64(50), cfg.DefaultCeiling)
	assert.Equal(t, 0.25, cfg.Participation)
	assert.Equal(t, "s3", cfg.ContentStore)
	assert.Equal(t, "paid-content", cfg.ContentBucket)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"balance not a number": {"PATH402_INITIAL_BALANCE", "lots"},
		"negative ceiling":     {"PATH402_DEFAULT_CEILING", "-1"},
		"participation zero":   {"PATH402_PARTICIPATION", "0"},
		"participation > 1":    {"PATH402_PARTICIPATION", "1.5"},
		"unknown store":        {"PATH402_CONTENT_STORE", "tape"},
		"rpm not a number":     {"RATE_LIMIT_RPM", "fast"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `
agents:
  researcher:
    initial_balance: 5000
    ceiling: 400
    participation: 0.2
    policy: 'input.price <= 500 && !input.address.startsWith("$spam")'
  frugal:
    ceiling: 10
`)
	pf, err := config.LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"frugal", "researcher"}, pf.AgentIDs())
	assert.Equal(t, int64(5000), pf.InitialBalance("researcher", 100000))
	assert.Equal(t, int64(400), pf.Ceiling("researcher", 10000))
	assert.Equal(t, 0.2, pf.Participation("researcher", 0.5))
	ap, ok := pf.For("researcher")
	require.True(t, ok)
	assert.Contains(t, ap.Policy, "startsWith")

	assert.Equal(t, int64(100000), pf.InitialBalance("frugal", 100000))
	assert.Equal(t, int64(10), pf.Ceiling("frugal", 10000))
	assert.Equal(t, int64(10000), pf.Ceiling("unknown", 10000))

	var none *config.PolicyFile
	assert.Equal(t, int64(7), none.Ceiling("anyone", 7))
}

func TestLoadPolicy_Errors(t *testing.T) {
	_, err := config.LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadPolicy(writePolicy(t, "agents: [not, a, map]"))
	assert.Error(t, err)

	_, err = config.LoadPolicy(writePolicy(t, "agents:\n  a:\n    participation: 2\n"))
	assert.Error(t, err)

	pf, err := config.LoadPolicy(writePolicy(t, "{}"))
	require.NoError(t, err)
	assert.Empty(t, pf.AgentIDs())
}
