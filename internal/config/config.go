// Package config loads the survey settings with viper.
//
// Values come, in increasing precedence, from the defaults in this package,
// a YAML file and SITESURVEY_* environment variables, where nested keys use
// underscores: text.api_key is SITESURVEY_TEXT_API_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ironsheep/site-survey/internal/detection"
	"github.com/ironsheep/site-survey/internal/fusion"
	"github.com/ironsheep/site-survey/internal/pipeline"
	"github.com/ironsheep/site-survey/internal/textevidence"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SITESURVEY"

// FileName is the config file name searched for without an explicit path.
const FileName = "site-survey"

// Settings is the complete configuration.
type Settings struct {
	Region     fusion.Region      `mapstructure:"region"`
	Elevation  ElevationSettings  `mapstructure:"elevation"`
	Imagery    ImagerySettings    `mapstructure:"imagery"`
	Text       TextSettings       `mapstructure:"text"`
	OCR        OCRSettings        `mapstructure:"ocr"`
	Fusion     FusionSettings     `mapstructure:"fusion"`
	Validation ValidationSettings `mapstructure:"validation"`
	Pipeline   PipelineSettings   `mapstructure:"pipeline"`
	Storage    StorageSettings    `mapstructure:"storage"`
	Output     OutputSettings     `mapstructure:"output"`
	Metrics    MetricsSettings    `mapstructure:"metrics"`

	KnownSites            []fusion.KnownSite `mapstructure:"known_sites"`
	KnownSiteRadiusMeters float64            `mapstructure:"known_site_radius_m"`
}

// ElevationSettings tune the elevation detector.
type ElevationSettings struct {
	Sigma         float64 `mapstructure:"sigma"`
	K             float64 `mapstructure:"k"`
	MinSeparation int     `mapstructure:"min_separation_px"`
	SlopeMin      float64 `mapstructure:"slope_min"`
	SlopeMax      float64 `mapstructure:"slope_max"`
}

// ImagerySettings tune the imagery detector and loader.
type ImagerySettings struct {
	RedBand              int     `mapstructure:"red_band"`
	VegetationBand       int     `mapstructure:"vegetation_band"`
	Sigma                float64 `mapstructure:"sigma"`
	MinRegionArea        int     `mapstructure:"min_region_area"`
	ReferenceArea        float64 `mapstructure:"reference_area"`
	EnableContours       bool    `mapstructure:"enable_contours"`
	CircularityThreshold float64 `mapstructure:"circularity_threshold"`
	MinContourArea       int     `mapstructure:"min_contour_area"`
	AnomalyWindow        int     `mapstructure:"anomaly_window"`
	MaxPixels            int     `mapstructure:"max_pixels"`
}

// TextSettings tune the text evidence extractor and its analyzer.
type TextSettings struct {
	AcceptThreshold float64       `mapstructure:"accept_threshold"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	Concurrency     int           `mapstructure:"concurrency"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// OCRSettings control recognition of scanned maps.
type OCRSettings struct {
	Enabled       bool    `mapstructure:"enabled"`
	Language      string  `mapstructure:"language"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// FusionSettings tune the fusion engine.
type FusionSettings struct {
	MergeRadiusMeters float64 `mapstructure:"merge_radius_m"`
}

// ValidationSettings hold the acceptance gates other than the region.
type ValidationSettings struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	MinSources    int     `mapstructure:"min_sources"`
}

// PipelineSettings tune orchestration.
type PipelineSettings struct {
	Workers int `mapstructure:"workers"`
}

// StorageSettings locate the run database. An empty path disables it.
type StorageSettings struct {
	DBPath string `mapstructure:"db_path"`
}

// OutputSettings locate the report files.
type OutputSettings struct {
	Dir string `mapstructure:"dir"`
}

// MetricsSettings control the Prometheus endpoint of the serve command.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// newViper returns a viper instance with defaults and environment bindings.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. With an empty path the file is searched for
// in the working directory and the user config directory, and its absence
// is not an error. An explicit path must exist.
func Load(path string) (*Settings, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName(FileName)
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := Validate(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// Defaults returns the settings with nothing but the defaults applied.
func Defaults() *Settings {
	v := viper.New()
	setDefaults(v)
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	return settings
}

func searchPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, FileName))
	}
	return paths
}

// PipelineConfig converts the settings into the pipeline configuration.
func (s *Settings) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Elevation: detection.ElevationConfig{
			Sigma:         s.Elevation.Sigma,
			K:             s.Elevation.K,
			MinSeparation: s.Elevation.MinSeparation,
			SlopeMin:      s.Elevation.SlopeMin,
			SlopeMax:      s.Elevation.SlopeMax,
		},
		Imagery: detection.ImageryConfig{
			RedBand:              s.Imagery.RedBand,
			VegetationBand:       s.Imagery.VegetationBand,
			Sigma:                s.Imagery.Sigma,
			MinRegionArea:        s.Imagery.MinRegionArea,
			ReferenceArea:        s.Imagery.ReferenceArea,
			EnableContours:       s.Imagery.EnableContours,
			CircularityThreshold: s.Imagery.CircularityThreshold,
			MinContourArea:       s.Imagery.MinContourArea,
			AnomalyWindow:        s.Imagery.AnomalyWindow,
		},
		Text: textevidence.Config{
			AcceptThreshold: s.Text.AcceptThreshold,
			CallTimeout:     s.Text.CallTimeout,
			MaxRetries:      s.Text.MaxRetries,
			InitialBackoff:  s.Text.InitialBackoff,
			Concurrency:     s.Text.Concurrency,
			CacheTTL:        s.Text.CacheTTL,
		},
		Fusion: fusion.Config{MergeRadiusMeters: s.Fusion.MergeRadiusMeters},
		Validation: fusion.ValidationConfig{
			Region:        s.Region,
			MinConfidence: s.Validation.MinConfidence,
			MinSources:    s.Validation.MinSources,
		},
		KnownSites:            s.KnownSites,
		KnownSiteRadiusMeters: s.KnownSiteRadiusMeters,
		MaxPixels:             s.Imagery.MaxPixels,
		Workers:               s.Pipeline.Workers,
	}
}
