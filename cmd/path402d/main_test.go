package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0ase/path402/pkg/config"
	"github.com/b0ase/path402/pkg/economics"
	"github.com/b0ase/path402/pkg/pricing"
)

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"path402d"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Help(t *testing.T) {
	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "economics")
	assert.Contains(t, out, "serve")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := run("mint")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: mint")
}

func TestRun_DefaultsToServer(t *testing.T) {
	t.Setenv("PORT", "4402")
	var got *config.Config
	orig := startServer
	startServer = func(_ context.Context, cfg *config.Config, _ io.Writer) error {
		got = cfg
		return nil
	}
	defer func() { startServer = orig }()

	code, _, _ := run()
	assert.Equal(t, 0, code)
	require.NotNil(t, got)
	assert.Equal(t, "4402", got.Port)

	startServer = func(context.Context, *config.Config, io.Writer) error {
		return errors.New("address in use")
	}
	code, _, _ = run("serve")
	assert.Equal(t, 1, code)
}

func TestRun_BadConfig(t *testing.T) {
	t.Setenv("PATH402_PARTICIPATION", "2")
	code, _, errOut := run("serve")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "PATH402_PARTICIPATION")
}

func TestPriceCmd(t *testing.T) {
	code, out, _ := run("price", "--base", "100", "--model", "fixed", "--points", "0, 5")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "SUPPLY")
	assert.Regexp(t, `(?m)^5\s+100$`, out)

	code, out, _ = run("price", "--base", "223610", "--capacity", "100", "--points", "1,99", "--json")
	require.Equal(t, 0, code)
	var points []pricing.Point
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 2)
	assert.Less(t, points[0].Price, points[1].Price, "price rises with supply")

	code, _, _ = run("price", "--base", "100", "--capacity", "10", "--points", "11")
	assert.Equal(t, 1, code)

	code, _, _ = run("price")
	assert.Equal(t, 2, code)

	code, _, _ = run("price", "--base", "100", "--points", "1,x")
	assert.Equal(t, 2, code)
}

func TestEconomicsCmd(t *testing.T) {
	code, out, _ := run("economics", "--base", "223610", "--capacity", "1000", "--supply", "4",
		"--issuer-share", "0.2", "--participation", "0.25", "--projected", "100", "--json")
	require.Equal(t, 0, code)

	var report economics.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(5), report.BuyerPosition)
	assert.Equal(t, 0.25, report.Participation)
	assert.Equal(t, int64(100), report.ProjectedSupply)

	code, out, _ = run("economics", "--base", "500", "--supply", "9")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "position #10")

	code, _, _ = run("economics", "--base", "500", "--issuer-share", "1.5")
	assert.Equal(t, 1, code)
}

func TestHealthCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	code, out, _ := run("health", "--addr", srv.URL)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "OK")

	code, _, errOut := run("health", "--addr", srv.URL+"/nowhere")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "status 404")
}

func TestBuildHandler_LiteMode(t *testing.T) {
	cfg := &config.Config{
		Port:           "0",
		LogLevel:       "ERROR",
		DataDir:        t.TempDir(),
		Agent:          "default",
		InitialBalance: 1000,
		DefaultCeiling: 100,
		Participation:  0.5,
		ContentStore:   "memory",
		RateLimitRPM:   600,
		RateLimitBurst: 10,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, cleanup, err := buildHandler(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/v1/agents/alice/wallet")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1000), snap.Balance)

	resp2, err := http.Get(srv.URL + "/mcp/v1/capabilities")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestBuildHandler_MissingPolicyFile(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), ContentStore: "memory", PolicyFile: "does-not-exist.yaml", Participation: 0.5}
	_, _, err := buildHandler(context.Background(), cfg)
	assert.Error(t, err)
}
