package evidence

import (
	"fmt"
	"maps"
	"math"

	"github.com/paulmach/orb"
)

// Source identifies the detector that produced an Observation.
type Source string

const (
	SourceElevation Source = "elevation"
	SourceImagery   Source = "imagery"
	SourceText      Source = "text"
)

// Sources lists every source in fusion order.
var Sources = []Source{SourceElevation, SourceImagery, SourceText}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return s.rank() >= 0
}

// rank is the position of s in fusion order, or -1.
func (s Source) rank() int {
	for i, known := range Sources {
		if s == known {
			return i
		}
	}
	return -1
}

// ParseSource converts a string into a Source.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.Valid() {
		return "", fmt.Errorf("unknown evidence source %q", s)
	}
	return src, nil
}

// Location is a geographic position in decimal degrees with an optional
// elevation in metres.
type Location struct {
	Lon       float64  `json:"lon"`
	Lat       float64  `json:"lat"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// NewLocation creates a location without elevation.
func NewLocation(lon, lat float64) Location {
	return Location{Lon: lon, Lat: lat}
}

// WithElevation returns a copy of l carrying elevation z.
func (l Location) WithElevation(z float64) Location {
	l.Elevation = &z
	return l
}

// Point returns the location as an orb point (lon, lat).
func (l Location) Point() orb.Point {
	return orb.Point{l.Lon, l.Lat}
}

func (l Location) validate() error {
	if math.IsNaN(l.Lon) || math.IsInf(l.Lon, 0) || math.IsNaN(l.Lat) || math.IsInf(l.Lat, 0) {
		return fmt.Errorf("location (%v, %v) is not finite", l.Lon, l.Lat)
	}
	if l.Elevation != nil && (math.IsNaN(*l.Elevation) || math.IsInf(*l.Elevation, 0)) {
		return fmt.Errorf("elevation %v is not finite", *l.Elevation)
	}
	return nil
}

func (l Location) clone() Location {
	if l.Elevation != nil {
		z := *l.Elevation
		l.Elevation = &z
	}
	return l
}

// Features holds named source-specific attributes of an observation, such as
// slope, ndvi_mean or time_period. Values are float64, int or string.
type Features map[string]any

// Float returns the numeric feature key, converting ints.
func (f Features) Float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// String returns the string feature key.
func (f Features) String(key string) (string, bool) {
	v, ok := f[key].(string)
	return v, ok
}

// Observation is a single detector's geolocated piece of evidence.
type Observation struct {
	source     Source
	location   Location
	confidence float64
	features   Features
	provenance string
}

// NewObservation validates and creates an Observation. The features map is
// copied. Confidence must lie in [0, 1].
func NewObservation(source Source, loc Location, confidence float64, features Features, provenance string) (Observation, error) {
	if !source.Valid() {
		return Observation{}, fmt.Errorf("unknown evidence source %q", source)
	}
	if err := loc.validate(); err != nil {
		return Observation{}, err
	}
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Observation{}, fmt.Errorf("confidence %v outside [0,1]", confidence)
	}
	return Observation{
		source:     source,
		location:   loc.clone(),
		confidence: confidence,
		features:   maps.Clone(features),
		provenance: provenance,
	}, nil
}

// Source returns the detector that produced the observation.
func (o Observation) Source() Source { return o.source }

// Location returns the observation's position.
func (o Observation) Location() Location { return o.location.clone() }

// Confidence returns the per-source confidence in [0, 1].
func (o Observation) Confidence() float64 { return o.confidence }

// Features returns a copy of the source-specific attributes.
func (o Observation) Features() Features {
	if o.features == nil {
		return Features{}
	}
	return maps.Clone(o.features)
}

// Provenance returns the opaque reference to the originating file or
// document.
func (o Observation) Provenance() string { return o.provenance }
