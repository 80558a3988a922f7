// Package scoring holds the per-source confidence rules. Each rule is a pure
// additive blend of pre-normalized signals whose weights sum to one, and the
// result is clamped to [0, 1]. Cross-source combination happens during
// fusion, never here.
package scoring

import (
	"math"
	"strings"
)

// Clamp01 limits v to [0, 1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ElevationSignals are the raw measurements taken at an elevation anomaly.
type ElevationSignals struct {
	// Residual is the original minus smoothed elevation.
	Residual float64
	// Sigma is the standard deviation of the residual over the grid.
	Sigma float64
	// K is the sigma multiplier used as the anomaly threshold.
	K float64
	// Slope in radians.
	Slope float64
	// Aspect in radians, in (-π, π].
	Aspect float64
	// SlopeMin and SlopeMax bound the preferred slope band in radians.
	SlopeMin float64
	SlopeMax float64
}

// Elevation scores an elevation anomaly:
//
//	0.4·magnitude + 0.3·slope + 0.3·aspect
//
// magnitude is |residual| / (2·k·σ) saturated at 1, slope is 1 inside the
// preferred band, aspect is 1 when the face points within 45° of east.
func Elevation(s ElevationSignals) float64 {
	magnitude := 0.0
	if ref := 2 * s.K * s.Sigma; ref > 0 {
		magnitude = math.Min(math.Abs(s.Residual)/ref, 1)
	}
	slope := 0.0
	if s.Slope >= s.SlopeMin && s.Slope <= s.SlopeMax {
		slope = 1
	}
	aspect := 0.0
	if s.Aspect > -math.Pi/4 && s.Aspect < math.Pi/4 {
		aspect = 1
	}
	return Clamp01(0.4*magnitude + 0.3*slope + 0.3*aspect)
}

// ImagerySignals are the raw measurements of an imagery region or contour.
type ImagerySignals struct {
	// VegetationIndex is the mean index over the region, in [-1, 1].
	VegetationIndex float64
	// Texture is the mean normalized texture descriptor, in [0, 1].
	Texture float64
	// Area in pixels.
	Area float64
	// ReferenceArea is the area at which the area score saturates.
	ReferenceArea float64
}

// Imagery scores an imagery region as 0.4·index + 0.3·texture + 0.3·area,
// with the index mapped from [-1, 1] to [0, 1].
func Imagery(s ImagerySignals) float64 {
	index := Clamp01((s.VegetationIndex + 1) / 2)
	texture := Clamp01(s.Texture)
	area := 1.0
	if s.ReferenceArea > 0 {
		area = Clamp01(s.Area / s.ReferenceArea)
	}
	return Clamp01(0.4*index + 0.3*texture + 0.3*area)
}

// TimePeriod is the era a historical document refers to.
type TimePeriod string

const (
	PreColonial       TimePeriod = "pre-colonial"
	Colonial          TimePeriod = "colonial"
	Modern            TimePeriod = "modern"
	UnknownTimePeriod TimePeriod = "unknown"
)

// Significance is the cultural weight a document ascribes to a place.
type Significance string

const (
	High   Significance = "high"
	Medium Significance = "medium"
	Low    Significance = "low"
)

// keyword rules are checked in order; the first hit wins. "pre-colonial"
// precedes "colonial" since it contains it.
var (
	periodKeywords = []struct {
		keyword string
		period  TimePeriod
	}{
		{"pre-colonial", PreColonial},
		{"colonial", Colonial},
		{"modern", Modern},
	}
	significanceKeywords = []struct {
		keyword string
		level   Significance
	}{
		{"major", High},
		{"significant", High},
		{"minor", Low},
		{"small", Low},
	}
)

// ClassifyTimePeriod derives the time period from a contextual summary by
// case-insensitive keyword search.
func ClassifyTimePeriod(summary string) TimePeriod {
	lower := strings.ToLower(summary)
	for _, rule := range periodKeywords {
		if strings.Contains(lower, rule.keyword) {
			return rule.period
		}
	}
	return UnknownTimePeriod
}

// ClassifySignificance derives the significance from a contextual summary.
func ClassifySignificance(summary string) Significance {
	lower := strings.ToLower(summary)
	for _, rule := range significanceKeywords {
		if strings.Contains(lower, rule.keyword) {
			return rule.level
		}
	}
	return Medium
}

// Score maps a time period to its relevance.
func (p TimePeriod) Score() float64 {
	switch p {
	case PreColonial:
		return 0.9
	case Colonial:
		return 0.7
	case Modern:
		return 0.3
	}
	return 0.5
}

// Score maps a significance level to its weight.
func (s Significance) Score() float64 {
	switch s {
	case High:
		return 0.9
	case Medium:
		return 0.6
	case Low:
		return 0.3
	}
	return 0.5
}

// verificationResolution absorbs float noise in the weighted sum so that a
// score meant to be exactly at the threshold compares as equal.
const verificationResolution = 1e-9

// Verification blends a location's confidence with its document context:
//
//	0.4·location_confidence + 0.3·score(time_period) + 0.3·score(significance)
func Verification(locationConfidence float64, period TimePeriod, significance Significance) float64 {
	raw := 0.4*Clamp01(locationConfidence) + 0.3*period.Score() + 0.3*significance.Score()
	return math.Round(raw/verificationResolution) * verificationResolution
}

// Accept reports whether score passes threshold. The comparison is strict.
func Accept(score, threshold float64) bool {
	return score-threshold > verificationResolution/2
}
