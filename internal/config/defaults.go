package config

import (
	"github.com/spf13/viper"
)

// setDefaults registers the default value of every recognized option.
func setDefaults(v *viper.Viper) {
	v.SetDefault("region.min_lat", 0.0)
	v.SetDefault("region.max_lat", 0.0)
	v.SetDefault("region.min_lon", 0.0)
	v.SetDefault("region.max_lon", 0.0)

	v.SetDefault("elevation.sigma", 1.0)
	v.SetDefault("elevation.k", 2.0)
	v.SetDefault("elevation.min_separation_px", 10)
	v.SetDefault("elevation.slope_min", 0.1)
	v.SetDefault("elevation.slope_max", 0.3)

	v.SetDefault("imagery.red_band", 0)
	v.SetDefault("imagery.vegetation_band", -1)
	v.SetDefault("imagery.sigma", 1.0)
	v.SetDefault("imagery.min_region_area", 25)
	v.SetDefault("imagery.reference_area", 1000.0)
	v.SetDefault("imagery.enable_contours", false)
	v.SetDefault("imagery.circularity_threshold", 0.6)
	v.SetDefault("imagery.min_contour_area", 100)
	v.SetDefault("imagery.anomaly_window", 10)
	v.SetDefault("imagery.max_pixels", 0)

	v.SetDefault("text.accept_threshold", 0.6)
	v.SetDefault("text.model", "gemini-2.5-flash")
	v.SetDefault("text.api_key", "")
	v.SetDefault("text.call_timeout", "30s")
	v.SetDefault("text.max_retries", 3)
	v.SetDefault("text.initial_backoff", "500ms")
	v.SetDefault("text.concurrency", 4)
	v.SetDefault("text.cache_ttl", "1h")

	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.min_confidence", 0.0)

	v.SetDefault("fusion.merge_radius_m", 0.0)

	v.SetDefault("validation.min_confidence", 0.0)
	v.SetDefault("validation.min_sources", 1)

	v.SetDefault("known_site_radius_m", 1000.0)
	v.SetDefault("known_sites", []map[string]any{})

	v.SetDefault("pipeline.workers", 0)

	v.SetDefault("storage.db_path", "")
	v.SetDefault("output.dir", "results")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")
}
