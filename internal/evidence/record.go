package evidence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RecordType tags every serialized candidate.
const RecordType = "potential_archaeological_site"

// Coordinates is the serialized location of a candidate; x is longitude and
// y is latitude.
type Coordinates struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// Record is the serialized shape of a SiteCandidate consumed by the
// presentation and persistence layers.
type Record struct {
	ID                  string      `json:"id"`
	Type                string      `json:"type"`
	Coordinates         Coordinates `json:"coordinates"`
	Confidence          float64     `json:"confidence"`
	Features            Features    `json:"features"`
	VerificationMethod  string      `json:"verification_method"`
	VerificationMethods []Source    `json:"verification_methods"`
	ObservationCount    int         `json:"observation_count"`
	Provenance          []string    `json:"provenance,omitempty"`
}

// Record converts the candidate into its serialized shape.
func (c SiteCandidate) Record() Record {
	loc := c.Location()
	methods := c.VerificationMethods()
	return Record{
		ID:   c.id,
		Type: RecordType,
		Coordinates: Coordinates{
			X:         loc.Lon,
			Y:         loc.Lat,
			Elevation: loc.Elevation,
		},
		Confidence:          c.CombinedConfidence(),
		Features:            c.Features(),
		VerificationMethod:  JoinMethods(methods),
		VerificationMethods: methods,
		ObservationCount:    len(c.observations),
		Provenance:          c.Provenance(),
	}
}

// Records converts candidates in order.
func Records(cands []SiteCandidate) []Record {
	out := make([]Record, len(cands))
	for i, c := range cands {
		out[i] = c.Record()
	}
	return out
}

// JoinMethods renders sources as the single verification_method string,
// e.g. "elevation+text".
func JoinMethods(methods []Source) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = string(m)
	}
	return strings.Join(parts, "+")
}

// SplitMethods parses a verification_method string.
func SplitMethods(s string) ([]Source, error) {
	if s == "" {
		return nil, nil
	}
	var out []Source
	for _, part := range strings.Split(s, "+") {
		src, err := ParseSource(part)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// MarshalRecords serializes candidates as a JSON array of records.
func MarshalRecords(cands []SiteCandidate) ([]byte, error) {
	return json.MarshalIndent(Records(cands), "", "  ")
}

// ParseRecords decodes a JSON array of records and checks each one.
func ParseRecords(data []byte) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return recs, nil
}

// Validate checks a decoded record for consistency.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	for _, m := range r.VerificationMethods {
		if !m.Valid() {
			return fmt.Errorf("unknown verification method %q", m)
		}
	}
	if r.VerificationMethod != "" {
		methods, err := SplitMethods(r.VerificationMethod)
		if err != nil {
			return err
		}
		if len(r.VerificationMethods) > 0 && JoinMethods(methods) != JoinMethods(r.VerificationMethods) {
			return fmt.Errorf("verification_method %q disagrees with verification_methods", r.VerificationMethod)
		}
	}
	return nil
}
