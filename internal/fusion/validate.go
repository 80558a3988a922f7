package fusion

import (
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/ironsheep/site-survey/internal/evidence"
)

// Region is a geographic bounding box in decimal degrees.
type Region struct {
	MinLat float64 `json:"min_lat" mapstructure:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" mapstructure:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" mapstructure:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" mapstructure:"max_lon" yaml:"max_lon"`
}

// IsZero reports whether no region was declared.
func (r Region) IsZero() bool { return r == Region{} }

// Validate checks that the box is well formed.
func (r Region) Validate() error {
	if r.MinLat > r.MaxLat || r.MinLon > r.MaxLon {
		return fmt.Errorf("region: minimum exceeds maximum: %+v", r)
	}
	if r.MinLat < -90 || r.MaxLat > 90 || r.MinLon < -180 || r.MaxLon > 180 {
		return fmt.Errorf("region: bounds outside the globe: %+v", r)
	}
	return nil
}

// Bound returns the region as an orb bound.
func (r Region) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{r.MinLon, r.MinLat}, Max: orb.Point{r.MaxLon, r.MaxLat}}
}

// ValidationConfig holds the acceptance gates.
type ValidationConfig struct {
	// Region is the region of interest, edges inclusive. A zero Region
	// accepts every location.
	Region Region `json:"region"`

	// MinConfidence is the strict lower bound on combined confidence.
	MinConfidence float64 `json:"min_confidence"`

	// MinSources is the number of distinct sources a candidate needs.
	MinSources int `json:"min_sources"`
}

// DefaultValidationConfig accepts any candidate with positive confidence.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{MinSources: 1}
}

// Rejection reasons counted in a Report.
const (
	ReasonOutsideRegion = "outside_region"
	ReasonLowConfidence = "low_confidence"
	ReasonFewSources    = "few_sources"
)

// Batch statuses.
const (
	StatusPass    = "pass"
	StatusPartial = "partial"
	StatusFail    = "fail"
	StatusEmpty   = "empty"
)

// Report summarizes one validation batch.
type Report struct {
	Status   string         `json:"status"`
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Rejected map[string]int `json:"rejected,omitempty"`
}

// Validator filters candidates.
type Validator struct {
	cfg    ValidationConfig
	logger *zap.Logger
}

// NewValidator creates a validator. A nil logger disables logging.
func NewValidator(cfg ValidationConfig, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{cfg: cfg, logger: logger.Named("validation")}
}

// Validate returns the candidates that pass every gate, in input order, and
// a report for the batch. A candidate is rejected for the first gate it
// fails.
func (v *Validator) Validate(cands []evidence.SiteCandidate) ([]evidence.SiteCandidate, Report) {
	rep := Report{Total: len(cands)}
	out := make([]evidence.SiteCandidate, 0, len(cands))
	for _, c := range cands {
		if reason := v.check(c); reason != "" {
			if rep.Rejected == nil {
				rep.Rejected = map[string]int{}
			}
			rep.Rejected[reason]++
			v.logger.Debug("candidate rejected", zap.String("id", c.ID()), zap.String("reason", reason))
			continue
		}
		out = append(out, c)
	}
	rep.Passed = len(out)
	switch {
	case rep.Total == 0:
		rep.Status = StatusEmpty
	case rep.Passed == rep.Total:
		rep.Status = StatusPass
	case rep.Passed == 0:
		rep.Status = StatusFail
	default:
		rep.Status = StatusPartial
	}
	v.logger.Info("candidates validated",
		zap.String("status", rep.Status),
		zap.Int("total", rep.Total),
		zap.Int("passed", rep.Passed))
	return out, rep
}

func (v *Validator) check(c evidence.SiteCandidate) string {
	if !v.cfg.Region.IsZero() && !v.cfg.Region.Bound().Contains(c.Location().Point()) {
		return ReasonOutsideRegion
	}
	if c.CombinedConfidence() <= v.cfg.MinConfidence {
		return ReasonLowConfidence
	}
	if len(c.VerificationMethods()) < v.cfg.MinSources {
		return ReasonFewSources
	}
	return ""
}
