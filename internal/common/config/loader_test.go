package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  postgres:
    host: localhost
    database: rapidresponse
    user: rr
providers:
  speech:
    base_url: http://speech.local
  translation:
    base_url: http://translate.local
  classification:
    base_url: http://classify.local
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Providers.WorkingLanguage)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 3000, cfg.Enrichment.SubQueryTimeout)
	assert.Equal(t, 600, cfg.Enrichment.Cache.Weather)
	assert.Equal(t, 300, cfg.Enrichment.Cache.Traffic)
	assert.Equal(t, 3600, cfg.Enrichment.Cache.Facilities)
	assert.Equal(t, 5.0, cfg.Enrichment.FacilityRadiusKm)
	assert.Equal(t, 100, cfg.Notifications.PageSize)
	assert.Equal(t, "facilities", cfg.Enrichment.FacilityIndex)
	assert.Equal(t, 10000, cfg.Providers.Classification.Timeout)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("RR_TEST_CLASSIFY_URL", "http://classifier.internal:9000")
	body := minimalYAML + `
enrichment:
  weather:
    base_url: ${RR_TEST_CLASSIFY_URL}
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "http://classifier.internal:9000", cfg.Enrichment.Weather.BaseURL)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing postgres host",
			body:    "providers:\n  speech:\n    base_url: x\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name: "missing classification endpoint",
			body: `
database:
  postgres:
    host: localhost
    database: rr
    user: rr
providers:
  speech:
    base_url: x
  translation:
    base_url: y
`,
			wantErr: "providers.classification.base_url is required",
		},
		{
			name: "email enabled without sender",
			body: minimalYAML + `
notifications:
  email:
    enabled: true
`,
			wantErr: "notifications.email.from_email is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, 10*time.Minute, GetSeconds(600))
}

func TestGetWorkerConfig(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"update-emergency-status": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "update-emergency-status"))
	assert.True(t, IsWorkerEnabled(cfg, "process-emergency-report"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "process-emergency-report").MaxJobsActive)
	assert.Equal(t, 2, GetWorkerConfig(cfg, "update-emergency-status").MaxJobsActive)
}
