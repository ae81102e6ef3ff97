// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Query-farm/streambody/streambody"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("STREAMD_TEST_ADDR", ":9000")
	t.Setenv("STREAMD_TEST_EMPTY", "")

	tests := []struct {
		in, want string
	}{
		{"addr: ${STREAMD_TEST_ADDR}", "addr: :9000"},
		{"addr: ${STREAMD_TEST_ADDR:-:1}", "addr: :9000"},
		{"addr: ${STREAMD_TEST_UNSET:-:1}", "addr: :1"},
		{"addr: ${STREAMD_TEST_EMPTY:-fallback}", "addr: fallback"},
		{"addr: ${STREAMD_TEST_UNSET}", "addr: "},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, substituteEnvVars(tt.in), tt.in)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("STREAMD_TEST_ENGINE", "fiber")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8081"
  engine: ${STREAMD_TEST_ENGINE:-nethttp}
  shutdown_timeout: 3s
stream:
  buffering_bytes: 4096
  compression: zstd
  headers:
    X-Served-By: streamd
telemetry:
  enabled: true
`), 0o600))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, ":8081", c.Server.Addr)
	require.Equal(t, EngineFiber, c.Server.Engine)
	require.Equal(t, 3*time.Second, c.Server.ShutdownTimeout)
	require.Equal(t, 4096, c.Stream.BufferingBytes)
	require.Equal(t, streambody.CompressionZstd, c.Stream.Compression)
	require.Equal(t, "streamd", c.Stream.Headers["X-Served-By"])
	require.True(t, c.Telemetry.Enabled)
	require.Equal(t, defaultServiceName, c.Telemetry.ServiceName)
	require.Equal(t, defaultDSN, c.Database.DSN)
}

func TestLoadFromFileRejects(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	tests := map[string]string{
		"extension":      write("config.json", "{}"),
		"traversal":      "../config.yaml",
		"missing":        filepath.Join(dir, "missing.yaml"),
		"engine":         write("engine.yaml", "server:\n  engine: grpc\n"),
		"buffering":      write("buffering.yaml", "stream:\n  buffering_bytes: 1\n  buffering_ready_items: 1\n"),
		"compression":    write("compression.yaml", "stream:\n  compression: brotli\n"),
		"malformed yaml": write("malformed.yaml", "server: [\n"),
	}
	for name, path := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromFile(path)
			require.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, defaultAddr, c.Server.Addr)
	require.Equal(t, EngineNetHTTP, c.Server.Engine)
	require.NoError(t, c.Validate())
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, ".env.local")
	second := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(first, []byte("STREAMD_TEST_ENV=local\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("STREAMD_TEST_ENV=base\nSTREAMD_TEST_ONLY_BASE=yes\n"), 0o600))
	t.Setenv("STREAMD_TEST_ENV", "")
	os.Unsetenv("STREAMD_TEST_ENV")
	t.Setenv("STREAMD_TEST_ONLY_BASE", "")
	os.Unsetenv("STREAMD_TEST_ONLY_BASE")

	LoadEnvFiles([]string{first, filepath.Join(dir, "absent"), second})
	require.Equal(t, "local", os.Getenv("STREAMD_TEST_ENV"))
	require.Equal(t, "yes", os.Getenv("STREAMD_TEST_ONLY_BASE"))
}
