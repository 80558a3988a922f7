package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/fusion"
)

// Findings is the report written at the end of a run.
type Findings struct {
	Sites    []evidence.Record `json:"sites"`
	Metadata Metadata          `json:"metadata"`
}

// Metadata describes the run that produced a Findings report.
type Metadata struct {
	RunID              string                  `json:"run_id"`
	Status             string                  `json:"status"`
	GeneratedAt        time.Time               `json:"generated_at"`
	Sources            map[evidence.Source]int `json:"sources"`
	DocumentsProcessed int                     `json:"documents_processed"`
	FusedCandidates    int                     `json:"fused_candidates"`
	Validation         fusion.Report           `json:"validation"`
	Failures           []evidence.ItemFailure  `json:"failures,omitempty"`
	Partial            bool                    `json:"partial,omitempty"`
}

// Findings builds the report of r.
func (r *Result) Findings(now time.Time) Findings {
	return Findings{
		Sites: evidence.Records(r.Candidates),
		Metadata: Metadata{
			RunID:              r.RunID,
			Status:             r.Status,
			GeneratedAt:        now.UTC(),
			Sources:            r.Observations,
			DocumentsProcessed: r.DocumentsProcessed,
			FusedCandidates:    r.Fused,
			Validation:         r.Validation,
			Failures:           r.Failures,
			Partial:            r.Partial,
		},
	}
}

// Output file names written by WriteOutputs.
const (
	FindingsFile = "findings.json"
	GeoJSONFile  = "sites.geojson"
)

// WriteOutputs writes the findings report and the GeoJSON layer of r into
// dir, creating it if needed, and returns the paths written.
func WriteOutputs(dir string, r *Result, now time.Time) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	findings, err := json.MarshalIndent(r.Findings(now), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}
	layer, err := fusion.MarshalGeoJSON(r.Candidates)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, f := range []struct {
		name string
		data []byte
	}{
		{FindingsFile, findings},
		{GeoJSONFile, layer},
	} {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
