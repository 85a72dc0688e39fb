package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const yamlConfig = `
listen: 127.0.0.1:9999
typeId: 7
logLevel: debug
metricsInterval: 30s
bindings:
  - id: 1
    name: orders
    routes:
      - id: 10
        topics: ["orders.*"]
    topics:
      - name: orders.eu
        compression: zstd
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "kafkamux.yaml", yamlConfig))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Listen)
	require.Equal(t, int32(7), cfg.TypeID)
	require.Equal(t, 30*time.Second, cfg.MetricsInterval)
	require.Equal(t, Default().DataDir, cfg.DataDir, "unset fields keep their default")
	require.Len(t, cfg.Bindings, 1)
	require.Equal(t, []string{"orders.*"}, cfg.Bindings[0].Routes[0].Topics)
	require.Equal(t, "zstd", cfg.Bindings[0].Topics[0].Compression)
	require.NoError(t, Validate(cfg))
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "kafkamux.json", `{"listen": ":1234", "metricsInterval": "30s", "bindings": [{"id": 3}]}`))
	require.NoError(t, err)
	require.Equal(t, ":1234", cfg.Listen)
	require.Equal(t, 30*time.Second, cfg.MetricsInterval)
	require.Equal(t, int64(3), cfg.Bindings[0].ID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", "{"))
	require.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Load(writeFile(t, "kafkamux.yaml", yamlConfig))
	require.NoError(t, err)
	cfg.Listen = ""
	cfg.LogLevel = "loud"
	cfg.Bindings = append(cfg.Bindings, cfg.Bindings[0])
	cfg.Bindings[1].Topics = nil
	cfg.Bindings[0].Topics[0].Compression = "brotli"

	err = Validate(cfg)
	require.ErrorIs(t, err, ErrInvalid)
	require.Contains(t, err.Error(), "listen address is empty")
	require.Contains(t, err.Error(), "unknown log level")
	require.Contains(t, err.Error(), "duplicate binding id 1")
	require.Contains(t, err.Error(), "brotli")
}
