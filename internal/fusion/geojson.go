package fusion

import (
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/ironsheep/site-survey/internal/evidence"
)

// FeatureCollection renders candidates as GeoJSON point features. Each
// feature carries the record fields other than coordinates as properties,
// with the candidate's own features nested under "features".
func FeatureCollection(cands []evidence.SiteCandidate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range cands {
		rec := c.Record()
		f := geojson.NewFeature(c.Location().Point())
		f.ID = rec.ID
		f.Properties = geojson.Properties{
			"id":                   rec.ID,
			"type":                 rec.Type,
			"confidence":           rec.Confidence,
			"verification_method":  rec.VerificationMethod,
			"verification_methods": rec.VerificationMethods,
			"observation_count":    rec.ObservationCount,
			"features":             map[string]any(rec.Features),
		}
		if rec.Coordinates.Elevation != nil {
			f.Properties["elevation"] = *rec.Coordinates.Elevation
		}
		fc.Append(f)
	}
	return fc
}

// MarshalGeoJSON serializes candidates as a GeoJSON FeatureCollection.
func MarshalGeoJSON(cands []evidence.SiteCandidate) ([]byte, error) {
	data, err := FeatureCollection(cands).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return data, nil
}
