package evidence

import (
	"errors"
	"maps"
	"slices"
)

// ErrNoObservations is returned when a SiteCandidate would have no support.
var ErrNoObservations = errors.New("site candidate needs at least one observation")

// SiteCandidate is the fused unit of output: one or more observations that
// are believed to describe the same site.
type SiteCandidate struct {
	id           string
	observations []Observation
	annotations  Features
}

// NewSiteCandidate creates a candidate supported by obs, kept in the given
// order.
func NewSiteCandidate(id string, obs ...Observation) (SiteCandidate, error) {
	if id == "" {
		return SiteCandidate{}, errors.New("site candidate id must not be empty")
	}
	if len(obs) == 0 {
		return SiteCandidate{}, ErrNoObservations
	}
	return SiteCandidate{id: id, observations: slices.Clone(obs)}, nil
}

// ID returns the identifier, unique within a pipeline run.
func (c SiteCandidate) ID() string { return c.id }

// Observations returns the supporting observations in fusion order.
func (c SiteCandidate) Observations() []Observation {
	return slices.Clone(c.observations)
}

// Len returns the number of supporting observations.
func (c SiteCandidate) Len() int { return len(c.observations) }

// CombinedConfidence is the highest confidence among the supporting
// observations.
func (c SiteCandidate) CombinedConfidence() float64 {
	best := 0.0
	for _, o := range c.observations {
		best = max(best, o.confidence)
	}
	return best
}

// Location is the centroid of the supporting observations. Elevation is the
// mean of the observations that carry one, and absent when none do.
func (c SiteCandidate) Location() Location {
	if len(c.observations) == 1 {
		return c.observations[0].Location()
	}
	var lon, lat, z float64
	nz := 0
	for _, o := range c.observations {
		lon += o.location.Lon
		lat += o.location.Lat
		if o.location.Elevation != nil {
			z += *o.location.Elevation
			nz++
		}
	}
	n := float64(len(c.observations))
	loc := NewLocation(lon/n, lat/n)
	if nz > 0 {
		loc = loc.WithElevation(z / float64(nz))
	}
	return loc
}

// VerificationMethods lists the distinct sources present, in fusion order.
func (c SiteCandidate) VerificationMethods() []Source {
	seen := make([]bool, len(Sources))
	for _, o := range c.observations {
		seen[o.source.rank()] = true
	}
	var out []Source
	for i, s := range Sources {
		if seen[i] {
			out = append(out, s)
		}
	}
	return out
}

// HasSource reports whether any supporting observation came from s.
func (c SiteCandidate) HasSource(s Source) bool {
	return slices.ContainsFunc(c.observations, func(o Observation) bool { return o.source == s })
}

// Features merges the features of the supporting observations, the earliest
// observation winning on conflicting keys, then applies annotations.
func (c SiteCandidate) Features() Features {
	out := Features{}
	for _, o := range c.observations {
		for k, v := range o.features {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	maps.Copy(out, c.annotations)
	return out
}

// Provenance lists the distinct provenance references of the support.
func (c SiteCandidate) Provenance() []string {
	var out []string
	for _, o := range c.observations {
		if o.provenance != "" && !slices.Contains(out, o.provenance) {
			out = append(out, o.provenance)
		}
	}
	return out
}

// Annotate returns a copy of c with extra features added on top of those of
// its observations.
func (c SiteCandidate) Annotate(extra Features) SiteCandidate {
	merged := maps.Clone(c.annotations)
	if merged == nil {
		merged = Features{}
	}
	maps.Copy(merged, extra)
	c.annotations = merged
	c.observations = slices.Clone(c.observations)
	return c
}
