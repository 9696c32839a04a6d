package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "https://auth.example.com", cfg.Identity.Issuer)
	assert.Equal(t, "muundo-ui", cfg.Identity.Audience)
	assert.Len(t, cfg.Identity.Algorithms, 2)
	assert.True(t, cfg.Document.HotReload)
	assert.Len(t, cfg.Specs.Sources, 1)
	assert.True(t, cfg.Cache.Persist)

	svc, ok := cfg.Services["places-svc"]
	require.True(t, ok, "Services[places-svc] not found")
	assert.Equal(t, "https://places.internal", svc.BaseURL)
	assert.Equal(t, 10*time.Second, svc.Timeout)
	assert.Equal(t, 5, svc.CircuitBreaker.FailureThreshold)
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	require.Error(t, err)
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity.issuer")
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "MUUNDO_JWT_SECRET", cfg.Identity.SecretEnv)
	assert.True(t, cfg.Polling.Enabled)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MUUNDO_SERVER_PORT", "3000")
	t.Setenv("MUUNDO_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("MUUNDO_DOCUMENT_PATH", "/alt/structure.yaml")
	t.Setenv("MUUNDO_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "https://env-issuer.com", cfg.Identity.Issuer)
	assert.Equal(t, "/alt/structure.yaml", cfg.Document.Path)
	assert.Equal(t, "error", cfg.Observability.LogLevel)
}

func TestValidate_invalid_port(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.Audience = "muundo-ui"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate_spec_source_unknown_service(t *testing.T) {
	cfg := Defaults()
	cfg.Identity.Issuer = "https://auth.example.com"
	cfg.Identity.Audience = "muundo-ui"
	cfg.Specs.Sources = []SpecSource{{ServiceID: "ghost-svc", SpecFile: "ghost.yaml"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost-svc")
}
