package detection

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/raster"
	"github.com/ironsheep/site-survey/internal/scoring"
)

// Pattern kinds recorded in the "pattern" feature of imagery observations.
const (
	PatternVarianceRegion   = "variance_region"
	PatternGeometricContour = "geometric_contour"
)

// ImageryConfig holds the tunables of the image pattern detector.
type ImageryConfig struct {
	// RedBand is the index of the red band.
	RedBand int `json:"red_band"`

	// VegetationBand is the index of the near-infrared proxy band. Negative
	// values count from the end, so -1 is the last band.
	VegetationBand int `json:"vegetation_band"`

	// Sigma smooths the vegetation index and sets the local variance window.
	Sigma float64 `json:"sigma"`

	// MinRegionArea is the smallest region, in pixels, that is reported.
	// Regions of exactly this area are kept.
	MinRegionArea int `json:"min_region_area"`

	// ReferenceArea is the area at which the area score saturates.
	ReferenceArea float64 `json:"reference_area"`

	// EnableContours turns on the geometric contour stream.
	EnableContours bool `json:"enable_contours"`

	// CircularityThreshold is the exclusive lower bound on 4πA/P².
	CircularityThreshold float64 `json:"circularity_threshold"`

	// MinContourArea is the smallest contour, in pixels, considered.
	MinContourArea int `json:"min_contour_area"`

	// AnomalyWindow is the half-size in pixels of the window used for the
	// vegetation anomaly score of a contour.
	AnomalyWindow int `json:"anomaly_window"`
}

// DefaultImageryConfig returns the stock imagery settings.
func DefaultImageryConfig() ImageryConfig {
	return ImageryConfig{
		RedBand:              0,
		VegetationBand:       -1,
		Sigma:                1.0,
		MinRegionArea:        25,
		ReferenceArea:        1000,
		EnableContours:       false,
		CircularityThreshold: 0.6,
		MinContourArea:       100,
		AnomalyWindow:        10,
	}
}

// ImageryDetector finds spatially coherent vegetation anomalies in
// multiband imagery.
type ImageryDetector struct {
	cfg    ImageryConfig
	logger *zap.Logger
}

// NewImageryDetector creates a detector. A nil logger disables logging.
func NewImageryDetector(cfg ImageryConfig, logger *zap.Logger) *ImageryDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageryDetector{cfg: cfg, logger: logger.Named("imagery")}
}

// bandIndex resolves a possibly negative band index.
func bandIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

// Detect returns one observation per vegetation anomaly region in g, plus
// one per regular contour when contours are enabled.
//
// # Algorithm
//
//  1. Vegetation index from the red and vegetation bands (VegetationIndex).
//  2. Gaussian smoothing of the index, then its local variance.
//  3. Otsu threshold of the variance; the anomaly mask is variance > t.
//  4. 8-connected regions of the mask with area >= MinRegionArea.
//  5. Per region: centroid, area, mean index and mean uniform LBP texture
//     over the grayscale average of all bands.
//  6. Optionally, regular contours of the thresholded smoothed index with
//     circularity > CircularityThreshold.
//
// Confidence follows scoring.Imagery for both streams.
func (d *ImageryDetector) Detect(g *raster.Grid, provenance string) ([]evidence.Observation, error) {
	n := g.NumBands()
	if n < 2 {
		return nil, fmt.Errorf("%w: imagery needs at least 2 bands, got %d", evidence.ErrBandCount, n)
	}
	redIdx, vegIdx := bandIndex(d.cfg.RedBand, n), bandIndex(d.cfg.VegetationBand, n)
	if redIdx < 0 || redIdx >= n || vegIdx < 0 || vegIdx >= n || redIdx == vegIdx {
		return nil, fmt.Errorf("%w: red band %d and vegetation band %d invalid for %d bands",
			evidence.ErrBandCount, d.cfg.RedBand, d.cfg.VegetationBand, n)
	}

	w, h := g.Width(), g.Height()
	bands := make([][]float64, n)
	finiteTotal := 0
	for i := range bands {
		var finite int
		bands[i], finite = g.FiniteBand(i)
		finiteTotal += finite
	}
	if finiteTotal == 0 {
		return nil, evidence.ErrAllNaN
	}

	index := VegetationIndex(bands[redIdx], bands[vegIdx])
	smoothed := raster.Smooth(index, w, h, d.cfg.Sigma)
	variance := raster.LocalVariance(smoothed, w, h, d.cfg.Sigma)
	texture := UniformLBP(grayscale(bands), w, h)

	var regions []region
	if thr, ok := OtsuThreshold(variance); ok {
		mask := make([]bool, len(variance))
		for i, v := range variance {
			mask[i] = v > thr
		}
		regions = extractRegions(mask, w, h, d.cfg.MinRegionArea)
	}

	out := make([]evidence.Observation, 0, len(regions))
	for _, r := range regions {
		obs, err := d.observe(g, r, index, texture, provenance, evidence.Features{
			"pattern": PatternVarianceRegion,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}

	contours := 0
	if d.cfg.EnableContours {
		globalMean := stat.Mean(index, nil)
		for _, c := range findContours(smoothed, w, h, d.cfg.MinContourArea, d.cfg.CircularityThreshold) {
			row, col := c.centroid()
			anomaly := vegetationAnomaly(index, w, h, int(row), int(col), d.cfg.AnomalyWindow, globalMean)
			obs, err := d.observe(g, c.region, index, texture, provenance, evidence.Features{
				"pattern":            PatternGeometricContour,
				"circularity":        c.circularity,
				"perimeter":          c.perimeter,
				"vegetation_anomaly": anomaly,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, obs)
			contours++
		}
	}

	d.logger.Debug("imagery patterns",
		zap.String("provenance", provenance),
		zap.Int("regions", len(regions)),
		zap.Int("contours", contours))
	return out, nil
}

// observe scores a region and turns it into an observation located at its
// centroid.
func (d *ImageryDetector) observe(g *raster.Grid, r region, index, texture []float64, provenance string, extra evidence.Features) (evidence.Observation, error) {
	w := g.Width()
	row, col := r.centroid()
	area := float64(r.area())
	ndviMean := r.mean(index, w)
	textureMean := r.mean(texture, w)

	conf := scoring.Imagery(scoring.ImagerySignals{
		VegetationIndex: ndviMean,
		Texture:         textureMean,
		Area:            area,
		ReferenceArea:   d.cfg.ReferenceArea,
	})

	features := evidence.Features{
		"area":         area,
		"ndvi_mean":    ndviMean,
		"texture_mean": textureMean,
		"row":          row,
		"col":          col,
	}
	for k, v := range extra {
		features[k] = v
	}

	lon, lat := g.Transform().PixelToGeo(row, col)
	obs, err := evidence.NewObservation(evidence.SourceImagery, evidence.NewLocation(lon, lat), conf, features, provenance)
	if err != nil {
		return evidence.Observation{}, fmt.Errorf("region at (%.1f,%.1f): %w", row, col, err)
	}
	return obs, nil
}
