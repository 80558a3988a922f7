package detection

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/raster"
	"github.com/ironsheep/site-survey/internal/scoring"
)

// ElevationConfig holds the tunables of the elevation anomaly detector.
type ElevationConfig struct {
	// Sigma is the spatial standard deviation, in pixels, of the low-pass
	// surface the residual is measured against.
	Sigma float64 `json:"sigma"`

	// K is the residual threshold in standard deviations.
	K float64 `json:"k"`

	// MinSeparation is the non-maximum suppression radius in pixels. Two
	// reported anomalies are always further apart than this.
	MinSeparation int `json:"min_separation_px"`

	// SlopeMin and SlopeMax bound, in radians, the slope band that raises
	// confidence.
	SlopeMin float64 `json:"slope_min"`
	SlopeMax float64 `json:"slope_max"`
}

// DefaultElevationConfig returns the stock elevation settings.
func DefaultElevationConfig() ElevationConfig {
	return ElevationConfig{
		Sigma:         1.0,
		K:             2.0,
		MinSeparation: 10,
		SlopeMin:      0.1,
		SlopeMax:      0.3,
	}
}

// ElevationDetector finds local elevation irregularities, candidate
// earthworks, in a single-band digital elevation model.
type ElevationDetector struct {
	cfg    ElevationConfig
	logger *zap.Logger
}

// NewElevationDetector creates a detector. A nil logger disables logging.
func NewElevationDetector(cfg ElevationConfig, logger *zap.Logger) *ElevationDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElevationDetector{cfg: cfg, logger: logger.Named("elevation")}
}

// anomaly is a pixel whose residual exceeds the threshold.
type anomaly struct {
	row, col int
	residual float64
}

// Detect returns one observation per surviving elevation anomaly in g.
// provenance is recorded on every observation.
//
// # Algorithm
//
//  1. Non-finite cells become 0.
//  2. Smooth the surface with a Gaussian of Config.Sigma and take the
//     residual (original - smoothed).
//  3. Flag pixels with |residual| > K·σ, σ being the population standard
//     deviation of the residual over the whole grid. Border pixels lack a
//     full neighbourhood and are skipped.
//  4. Non-maximum suppression: visit flagged pixels by decreasing
//     |residual|, ties in row-major order, and keep a pixel only if no
//     kept pixel lies within MinSeparation.
//  5. Slope and aspect come from central differences of the immediate
//     neighbours: slope = atan(√(dx²+dy²)), aspect = atan2(dy, dx).
//
// A grid with zero residual variance yields no observations.
func (d *ElevationDetector) Detect(g *raster.Grid, provenance string) ([]evidence.Observation, error) {
	if g.NumBands() != 1 {
		return nil, fmt.Errorf("%w: elevation needs 1 band, got %d", evidence.ErrBandCount, g.NumBands())
	}
	w, h := g.Width(), g.Height()
	elev, finite := g.FiniteBand(0)
	if finite == 0 {
		return nil, evidence.ErrAllNaN
	}

	smoothed := raster.Smooth(elev, w, h, d.cfg.Sigma)
	residual := make([]float64, len(elev))
	for i := range elev {
		residual[i] = elev[i] - smoothed[i]
	}
	_, sigma := stat.PopMeanStdDev(residual, nil)
	threshold := d.cfg.K * sigma
	if sigma == 0 || math.IsNaN(sigma) {
		d.logger.Debug("flat residual, no anomalies", zap.String("provenance", provenance))
		return []evidence.Observation{}, nil
	}

	var flagged []anomaly
	for row := 1; row < h-1; row++ {
		for col := 1; col < w-1; col++ {
			r := residual[row*w+col]
			if math.Abs(r) > threshold {
				flagged = append(flagged, anomaly{row: row, col: col, residual: r})
			}
		}
	}
	kept := suppressNonMaxima(flagged, w, h, d.cfg.MinSeparation)

	out := make([]evidence.Observation, 0, len(kept))
	for _, a := range kept {
		dx := (elev[a.row*w+a.col+1] - elev[a.row*w+a.col-1]) / 2
		dy := (elev[(a.row+1)*w+a.col] - elev[(a.row-1)*w+a.col]) / 2
		slope := math.Atan(math.Sqrt(dx*dx + dy*dy))
		aspect := math.Atan2(dy, dx)
		z := elev[a.row*w+a.col]

		conf := scoring.Elevation(scoring.ElevationSignals{
			Residual: a.residual,
			Sigma:    sigma,
			K:        d.cfg.K,
			Slope:    slope,
			Aspect:   aspect,
			SlopeMin: d.cfg.SlopeMin,
			SlopeMax: d.cfg.SlopeMax,
		})
		lon, lat := g.Geo(a.row, a.col)
		obs, err := evidence.NewObservation(evidence.SourceElevation,
			evidence.NewLocation(lon, lat).WithElevation(z), conf,
			evidence.Features{
				"slope":     slope,
				"aspect":    aspect,
				"residual":  a.residual,
				"elevation": z,
				"row":       a.row,
				"col":       a.col,
			}, provenance)
		if err != nil {
			return nil, fmt.Errorf("anomaly at (%d,%d): %w", a.row, a.col, err)
		}
		out = append(out, obs)
	}

	d.logger.Debug("elevation anomalies",
		zap.String("provenance", provenance),
		zap.Int("flagged", len(flagged)),
		zap.Int("kept", len(out)),
		zap.Float64("sigma", sigma))
	return out, nil
}

// suppressNonMaxima keeps the strongest anomalies so that no two kept ones
// are within radius pixels (Euclidean) of each other. flagged must be in
// row-major order; the stable sort then breaks magnitude ties by scan
// order.
func suppressNonMaxima(flagged []anomaly, width, height, radius int) []anomaly {
	order := make([]anomaly, len(flagged))
	copy(order, flagged)
	sort.SliceStable(order, func(i, j int) bool {
		return math.Abs(order[i].residual) > math.Abs(order[j].residual)
	})
	if radius <= 0 {
		return order
	}

	blocked := make([]bool, width*height)
	r2 := radius * radius
	var kept []anomaly
	for _, a := range order {
		if blocked[a.row*width+a.col] {
			continue
		}
		kept = append(kept, a)
		for dy := -radius; dy <= radius; dy++ {
			y := a.row + dy
			if y < 0 || y >= height {
				continue
			}
			for dx := -radius; dx <= radius; dx++ {
				x := a.col + dx
				if x < 0 || x >= width || dx*dx+dy*dy > r2 {
					continue
				}
				blocked[y*width+x] = true
			}
		}
	}
	return kept
}
