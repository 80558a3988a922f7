package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/site-survey/internal/detection"
	"github.com/ironsheep/site-survey/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site-survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults_MatchPipelineDefaults(t *testing.T) {
	s := Defaults()
	require.NoError(t, Validate(s))

	cfg := s.PipelineConfig()
	def := pipeline.DefaultConfig()
	assert.Equal(t, detection.DefaultElevationConfig(), cfg.Elevation)
	assert.Equal(t, detection.DefaultImageryConfig(), cfg.Imagery)
	assert.Equal(t, def.Text, cfg.Text)
	assert.Equal(t, def.Validation, cfg.Validation)
	assert.Equal(t, def.KnownSiteRadiusMeters, cfg.KnownSiteRadiusMeters)
	assert.Zero(t, cfg.Fusion.MergeRadiusMeters)
	assert.Equal(t, "gemini-2.5-flash", s.Text.Model)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
region:
  min_lat: -10
  max_lat: -2
  min_lon: -70
  max_lon: -55
elevation:
  k: 2.5
  min_separation_px: 5
imagery:
  enable_contours: true
  min_region_area: 40
text:
  call_timeout: 5s
fusion:
  merge_radius_m: 250
known_sites:
  - name: Kuhikugu
    lat: -12.558
    lon: -53.111
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, -10.0, s.Region.MinLat)
	assert.Equal(t, -55.0, s.Region.MaxLon)
	assert.Equal(t, 2.5, s.Elevation.K)
	assert.Equal(t, 5, s.Elevation.MinSeparation)
	assert.Equal(t, 1.0, s.Elevation.Sigma, "unset keys keep their default")
	assert.True(t, s.Imagery.EnableContours)
	assert.Equal(t, 40, s.Imagery.MinRegionArea)
	assert.Equal(t, 5*time.Second, s.Text.CallTimeout)
	assert.Equal(t, time.Hour, s.Text.CacheTTL)
	require.Len(t, s.KnownSites, 1)
	assert.Equal(t, "Kuhikugu", s.KnownSites[0].Name)

	cfg := s.PipelineConfig()
	assert.Equal(t, 250.0, cfg.Fusion.MergeRadiusMeters)
	assert.Equal(t, s.Region, cfg.Validation.Region)
	assert.Equal(t, 2.5, cfg.Elevation.K)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SITESURVEY_TEXT_API_KEY", "secret")
	t.Setenv("SITESURVEY_ELEVATION_K", "3")

	s, err := Load(writeConfig(t, "elevation:\n  k: 2.5\n"))
	require.NoError(t, err)
	assert.Equal(t, "secret", s.Text.APIKey)
	assert.Equal(t, 3.0, s.Elevation.K)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2.0, s.Elevation.K)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "elevation:\n  k: -1\nvalidation:\n  min_sources: 0\n"))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"inverted region", func(s *Settings) { s.Region.MinLat, s.Region.MaxLat = 5, 1 }},
		{"zero sigma", func(s *Settings) { s.Elevation.Sigma = 0 }},
		{"slope band", func(s *Settings) { s.Elevation.SlopeMin = 0.5 }},
		{"min region area", func(s *Settings) { s.Imagery.MinRegionArea = 0 }},
		{"circularity", func(s *Settings) { s.Imagery.CircularityThreshold = 1.5 }},
		{"same bands", func(s *Settings) { s.Imagery.RedBand, s.Imagery.VegetationBand = 1, 1 }},
		{"accept threshold", func(s *Settings) { s.Text.AcceptThreshold = 2 }},
		{"call timeout", func(s *Settings) { s.Text.CallTimeout = 0 }},
		{"concurrency", func(s *Settings) { s.Text.Concurrency = 0 }},
		{"merge radius", func(s *Settings) { s.Fusion.MergeRadiusMeters = -1 }},
		{"min sources", func(s *Settings) { s.Validation.MinSources = 4 }},
		{"workers", func(s *Settings) { s.Pipeline.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(s)
			assert.Error(t, Validate(s))
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "site-survey.yaml")
	require.NoError(t, WriteDefault(path))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)

	assert.Error(t, WriteDefault(path), "existing files are kept")
}
