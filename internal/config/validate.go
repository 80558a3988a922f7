package config

import (
	"fmt"
	"strings"
)

// ValidationError collects every problem found in the settings.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// Validate checks the settings for values the pipeline cannot use.
func Validate(s *Settings) error {
	ve := ValidationError{}
	add := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}

	if !s.Region.IsZero() {
		if err := s.Region.Validate(); err != nil {
			add("%v", err)
		}
	}

	if s.Elevation.Sigma <= 0 {
		add("elevation.sigma must be positive, got %v", s.Elevation.Sigma)
	}
	if s.Elevation.K <= 0 {
		add("elevation.k must be positive, got %v", s.Elevation.K)
	}
	if s.Elevation.MinSeparation < 0 {
		add("elevation.min_separation_px must not be negative, got %d", s.Elevation.MinSeparation)
	}
	if s.Elevation.SlopeMin > s.Elevation.SlopeMax {
		add("elevation.slope_min %v exceeds slope_max %v", s.Elevation.SlopeMin, s.Elevation.SlopeMax)
	}

	if s.Imagery.Sigma <= 0 {
		add("imagery.sigma must be positive, got %v", s.Imagery.Sigma)
	}
	if s.Imagery.MinRegionArea < 1 {
		add("imagery.min_region_area must be at least 1, got %d", s.Imagery.MinRegionArea)
	}
	if s.Imagery.ReferenceArea <= 0 {
		add("imagery.reference_area must be positive, got %v", s.Imagery.ReferenceArea)
	}
	if s.Imagery.CircularityThreshold < 0 || s.Imagery.CircularityThreshold > 1 {
		add("imagery.circularity_threshold must be in [0, 1], got %v", s.Imagery.CircularityThreshold)
	}
	if s.Imagery.MaxPixels < 0 {
		add("imagery.max_pixels must not be negative, got %d", s.Imagery.MaxPixels)
	}
	if s.Imagery.RedBand == s.Imagery.VegetationBand {
		add("imagery.red_band and vegetation_band must differ")
	}

	if s.Text.AcceptThreshold < 0 || s.Text.AcceptThreshold > 1 {
		add("text.accept_threshold must be in [0, 1], got %v", s.Text.AcceptThreshold)
	}
	if s.Text.CallTimeout <= 0 {
		add("text.call_timeout must be positive, got %v", s.Text.CallTimeout)
	}
	if s.Text.MaxRetries < 0 {
		add("text.max_retries must not be negative, got %d", s.Text.MaxRetries)
	}
	if s.Text.Concurrency < 1 {
		add("text.concurrency must be at least 1, got %d", s.Text.Concurrency)
	}

	if s.Fusion.MergeRadiusMeters < 0 {
		add("fusion.merge_radius_m must not be negative, got %v", s.Fusion.MergeRadiusMeters)
	}
	if s.Validation.MinConfidence < 0 || s.Validation.MinConfidence >= 1 {
		add("validation.min_confidence must be in [0, 1), got %v", s.Validation.MinConfidence)
	}
	if s.Validation.MinSources < 1 || s.Validation.MinSources > 3 {
		add("validation.min_sources must be between 1 and 3, got %d", s.Validation.MinSources)
	}
	if s.Pipeline.Workers < 0 {
		add("pipeline.workers must not be negative, got %d", s.Pipeline.Workers)
	}

	for i, k := range s.KnownSites {
		if k.Lat < -90 || k.Lat > 90 || k.Lon < -180 || k.Lon > 180 {
			add("known_sites[%d] %q lies outside the globe", i, k.Name)
		}
	}
	if len(s.KnownSites) > 0 && s.KnownSiteRadiusMeters <= 0 {
		add("known_site_radius_m must be positive, got %v", s.KnownSiteRadiusMeters)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
