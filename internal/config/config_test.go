package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, time.Hour, cfg.AccessTokenLifetime)
	assert.Equal(t, 100*time.Second, cfg.AuthCodeLifetime)
	assert.Equal(t, 5*time.Minute, cfg.ConsentRequestTTL)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, ConsentCacheMemory, cfg.ConsentCacheBackend)

	// Header lookup is off unless explicitly configured on.
	assert.Equal(t, []string{TokenLocationForm, TokenLocationCookies}, cfg.TokenLookupLocations)
	assert.False(t, cfg.HeaderLookupEnabled())

	assert.Contains(t, cfg.RecognizedScopes, "users:read")
	assert.Contains(t, cfg.RecognizedScopes, "admin:write")

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_LIFETIME", "30m")
	t.Setenv("TOKEN_LOOKUP_LOCATIONS", "headers, form")
	t.Setenv("RECOGNIZED_SCOPES", "sightings:read,sightings:write")
	t.Setenv("DEBUG_MODE", "true")

	cfg := Load()

	assert.Equal(t, 30*time.Minute, cfg.AccessTokenLifetime)
	assert.Equal(t, []string{"headers", "form"}, cfg.TokenLookupLocations)
	assert.True(t, cfg.HeaderLookupEnabled())
	assert.Equal(t, []string{"sightings:read", "sightings:write"}, cfg.RecognizedScopes)
	assert.True(t, cfg.IsRecognizedScope("sightings:read"))
	assert.False(t, cfg.IsRecognizedScope("users:read"))
	assert.True(t, cfg.DebugMode)
}

func TestRefreshTokenLifetime(t *testing.T) {
	cfg := &Config{AccessTokenLifetime: 45 * time.Minute}
	assert.Equal(t, 90*time.Minute, cfg.RefreshTokenLifetime())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AccessTokenLifetime:  time.Hour,
			AuthCodeLifetime:     100 * time.Second,
			TokenLookupLocations: []string{TokenLocationForm},
			DatabaseDriver:       "sqlite",
			ConsentCacheBackend:  ConsentCacheMemory,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access lifetime", func(c *Config) { c.AccessTokenLifetime = 0 }},
		{"negative code lifetime", func(c *Config) { c.AuthCodeLifetime = -time.Second }},
		{"no lookup locations", func(c *Config) { c.TokenLookupLocations = nil }},
		{"unknown lookup location", func(c *Config) { c.TokenLookupLocations = []string{"body"} }},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "oracle" }},
		{"unknown consent backend", func(c *Config) { c.ConsentCacheBackend = "memcached" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
