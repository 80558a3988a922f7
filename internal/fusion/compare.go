package fusion

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/ironsheep/site-survey/internal/evidence"
)

// KnownSite is a documented archaeological site.
type KnownSite struct {
	Name string  `json:"name" mapstructure:"name" yaml:"name"`
	Lat  float64 `json:"lat" mapstructure:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" mapstructure:"lon" yaml:"lon"`
}

// Comparison feature values.
const (
	ComparisonKnown = "known_site"
	ComparisonNovel = "novel"
)

// Compare annotates each candidate with its relation to the known sites.
// A candidate within radiusMeters of a known site gets comparison=known_site,
// the nearest site's name and the distance in metres; every other candidate
// gets comparison=novel. Candidates are returned in input order.
func Compare(cands []evidence.SiteCandidate, known []KnownSite, radiusMeters float64) []evidence.SiteCandidate {
	out := make([]evidence.SiteCandidate, len(cands))
	for i, c := range cands {
		p := c.Location().Point()
		best, bestDist := -1, math.Inf(1)
		for j, k := range known {
			d := geo.Distance(p, k.Point())
			if d < bestDist {
				best, bestDist = j, d
			}
		}
		if best >= 0 && bestDist <= radiusMeters {
			out[i] = c.Annotate(evidence.Features{
				"comparison":            ComparisonKnown,
				"known_site":            known[best].Name,
				"known_site_distance_m": bestDist,
			})
			continue
		}
		out[i] = c.Annotate(evidence.Features{"comparison": ComparisonNovel})
	}
	return out
}

// Point returns the site position as (lon, lat).
func (k KnownSite) Point() orb.Point { return orb.Point{k.Lon, k.Lat} }
