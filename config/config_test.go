package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 86400, settings.Session.TTLSeconds)
	assert.Equal(t, 2592000, settings.Session.RememberMeSeconds)
	assert.Equal(t, "redis://localhost:6379/0", settings.Session.PrimaryStoreURI)
	assert.Equal(t, 2, settings.DB.MinConn)
	assert.Equal(t, 20, settings.DB.MaxConn)
	assert.Equal(t, 1000, settings.Cache.L1Capacity)
	assert.Equal(t, 1800, settings.Cache.L2TTLSeconds)
	assert.Equal(t, 30, settings.Chat.RequestDeadlineSeconds)
	assert.Equal(t, 40, settings.Search.VectorEFSearch)
	assert.Equal(t, 8, settings.Services.LLMTimeoutSeconds)
	assert.Equal(t, []string{"en", "ar"}, settings.NLU.LanguagesSupported)
	assert.Equal(t, 10, settings.Dialog.SlotTTLTurns)
}

func TestLoadSettings_FileOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "marhaba.yaml")
	content := `
session:
  ttl_seconds: 3600
  remember_me_seconds: 7200
db:
  min_conn: 4
  max_conn: 8
cache:
  l1_capacity: 50
nlu:
  languages_supported: ["en", "ar", "fr"]
  default_language: "fr"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	settings, err := LoadSettings(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 3600, settings.Session.TTLSeconds)
	assert.Equal(t, 7200, settings.Session.RememberMeSeconds)
	assert.Equal(t, 4, settings.DB.MinConn)
	assert.Equal(t, 8, settings.DB.MaxConn)
	assert.Equal(t, 50, settings.Cache.L1Capacity)
	assert.Equal(t, "fr", settings.NLU.DefaultLanguage)
	// Untouched keys keep defaults.
	assert.Equal(t, 1800, settings.Cache.L2TTLSeconds)
}

func TestLoadSettings_EnvOverride(t *testing.T) {
	t.Setenv("MARHABA_SESSION_TTL_SECONDS", "1234")
	t.Setenv("MARHABA_DB_MAX_CONN", "33")

	settings, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, 1234, settings.Session.TTLSeconds)
	assert.Equal(t, 33, settings.DB.MaxConn)
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:   "Valid",
			mutate: func(s *Settings) {},
		},
		{
			name:    "RememberMeBelowTTL",
			mutate:  func(s *Settings) { s.Session.RememberMeSeconds = 10 },
			wantErr: "remember_me_seconds",
		},
		{
			name:    "PoolBoundsInverted",
			mutate:  func(s *Settings) { s.DB.MinConn, s.DB.MaxConn = 10, 2 },
			wantErr: "max_conn",
		},
		{
			name:    "DefaultLanguageNotSupported",
			mutate:  func(s *Settings) { s.NLU.DefaultLanguage = "de" },
			wantErr: "default_language",
		},
		{
			name:    "ZeroTTL",
			mutate:  func(s *Settings) { s.Session.TTLSeconds = 0 },
			wantErr: "TTLSeconds",
		},
		{
			name:    "EFSearchTooHigh",
			mutate:  func(s *Settings) { s.Search.VectorEFSearch = 4000 },
			wantErr: "VectorEFSearch",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mutate(s)
			err := ValidateSettings(s)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	s := &Settings{}
	s.Session.TTLSeconds = 90
	s.Cache.L2TTLSeconds = 7
	s.Chat.RequestDeadlineSeconds = 30
	s.Services.LLMTimeoutSeconds = 8

	assert.Equal(t, "1m30s", s.Session.TTL().String())
	assert.Equal(t, "7s", s.Cache.L2TTL().String())
	assert.Equal(t, "30s", s.Chat.RequestDeadline().String())
	assert.Equal(t, "8s", s.Services.LLMTimeout().String())
}
