package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/ironsheep/site-survey/internal/detection"
	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/pipeline"
	"github.com/ironsheep/site-survey/internal/raster"
)

// ErrUnknownTool is returned for a tools/call naming no offered tool.
var ErrUnknownTool = errors.New("unknown tool")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "survey_run").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Argument errors return code -32602 and tool failures code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", zap.String("tool", params.Name), zap.Error(err))
		var ae *argumentError
		if errors.As(err, &ae) || errors.Is(err, ErrUnknownTool) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case toolRasterInfo:
		return s.handleRasterInfo(args)
	case toolDetectElevation:
		return s.handleDetectElevation(args)
	case toolDetectImagery:
		return s.handleDetectImagery(args)
	case toolRun:
		return s.handleRun(ctx, args)
	case toolStatus:
		return s.handleStatus()
	}

	if s.store != nil {
		switch name {
		case toolListRuns:
			return s.handleListRuns(ctx, args)
		case toolRunSites:
			return s.handleRunSites(ctx, args)
		}
	}
	if s.ocr != nil && name == toolOCRMap {
		return s.handleOCRMap(ctx, args)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

// argumentError marks malformed or missing tool arguments.
type argumentError struct {
	err error
}

func (e *argumentError) Error() string { return e.err.Error() }
func (e *argumentError) Unwrap() error { return e.err }

func badArgs(format string, args ...any) error {
	return &argumentError{err: fmt.Errorf(format, args...)}
}

// decodeArgs unmarshals tool arguments. Absent arguments decode as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &argumentError{err: err}
	}
	return nil
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// observationView is the JSON shape of one detector observation.
type observationView struct {
	Source     evidence.Source   `json:"source"`
	Lon        float64           `json:"lon"`
	Lat        float64           `json:"lat"`
	Elevation  *float64          `json:"elevation,omitempty"`
	Confidence float64           `json:"confidence"`
	Features   evidence.Features `json:"features"`
	Provenance string            `json:"provenance"`
}

func viewObservations(obs []evidence.Observation) []observationView {
	out := make([]observationView, len(obs))
	for i, o := range obs {
		loc := o.Location()
		out[i] = observationView{
			Source:     o.Source(),
			Lon:        loc.Lon,
			Lat:        loc.Lat,
			Elevation:  loc.Elevation,
			Confidence: o.Confidence(),
			Features:   o.Features(),
			Provenance: o.Provenance(),
		}
	}
	return out
}

// detectionResult is returned by the single-raster detection tools.
type detectionResult struct {
	Path         string            `json:"path"`
	Count        int               `json:"count"`
	Observations []observationView `json:"observations"`
}

func (s *Server) loadOptions() raster.LoadOptions {
	return raster.LoadOptions{MaxPixels: s.pipeline.Config().MaxPixels}
}

// === Raster Handlers ===

type rasterInfoArgs struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

func (s *Server) handleRasterInfo(args json.RawMessage) (any, error) {
	var a rasterInfoArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, badArgs("path is required")
	}
	kind := raster.KindElevation
	switch raster.Kind(a.Kind) {
	case "", raster.KindElevation:
	case raster.KindImagery:
		kind = raster.KindImagery
	default:
		return nil, badArgs("kind must be %q or %q, got %q", raster.KindElevation, raster.KindImagery, a.Kind)
	}
	return raster.LoadInfo(s.pipeline.Cache(), kind, a.Path, s.loadOptions())
}

type detectElevationArgs struct {
	Path          string   `json:"path"`
	K             *float64 `json:"k"`
	MinSeparation *int     `json:"min_separation_px"`
}

func (s *Server) handleDetectElevation(args json.RawMessage) (any, error) {
	var a detectElevationArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, badArgs("path is required")
	}

	cfg := s.pipeline.Config().Elevation
	if a.K != nil {
		if *a.K <= 0 {
			return nil, badArgs("k must be positive, got %v", *a.K)
		}
		cfg.K = *a.K
	}
	if a.MinSeparation != nil {
		if *a.MinSeparation < 0 {
			return nil, badArgs("min_separation_px must not be negative, got %d", *a.MinSeparation)
		}
		cfg.MinSeparation = *a.MinSeparation
	}

	g, err := s.pipeline.Cache().Load(raster.KindElevation, a.Path, raster.LoadOptions{})
	if err != nil {
		return nil, err
	}
	obs, err := detection.NewElevationDetector(cfg, s.logger).Detect(g, a.Path)
	if err != nil {
		return nil, err
	}
	return detectionResult{Path: a.Path, Count: len(obs), Observations: viewObservations(obs)}, nil
}

type detectImageryArgs struct {
	Path           string `json:"path"`
	EnableContours *bool  `json:"enable_contours"`
	MinRegionArea  *int   `json:"min_region_area"`
}

func (s *Server) handleDetectImagery(args json.RawMessage) (any, error) {
	var a detectImageryArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, badArgs("path is required")
	}

	cfg := s.pipeline.Config().Imagery
	if a.EnableContours != nil {
		cfg.EnableContours = *a.EnableContours
	}
	if a.MinRegionArea != nil {
		if *a.MinRegionArea < 1 {
			return nil, badArgs("min_region_area must be at least 1, got %d", *a.MinRegionArea)
		}
		cfg.MinRegionArea = *a.MinRegionArea
	}

	g, err := s.pipeline.Cache().Load(raster.KindImagery, a.Path, s.loadOptions())
	if err != nil {
		return nil, err
	}
	obs, err := detection.NewImageryDetector(cfg, s.logger).Detect(g, a.Path)
	if err != nil {
		return nil, err
	}
	return detectionResult{Path: a.Path, Count: len(obs), Observations: viewObservations(obs)}, nil
}

// === Survey Handlers ===

type runArgs struct {
	ElevationFiles []string `json:"elevation_files"`
	ImageryFiles   []string `json:"imagery_files"`
	DocumentsDir   string   `json:"documents_dir"`
	OutputDir      string   `json:"output_dir"`
}

type runResult struct {
	pipeline.Findings
	Outputs []string `json:"outputs,omitempty"`
	Stored  bool     `json:"stored"`
}

func (s *Server) handleRun(ctx context.Context, args json.RawMessage) (any, error) {
	var a runArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}

	res, err := s.pipeline.Run(ctx, pipeline.Input{
		ElevationFiles: a.ElevationFiles,
		ImageryFiles:   a.ImageryFiles,
		DocumentDir:    a.DocumentsDir,
	})
	if res == nil {
		return nil, err
	}
	if err != nil && !errors.Is(err, evidence.ErrNoEvidenceFound) {
		s.logger.Warn("survey interrupted", zap.String("run_id", res.RunID), zap.Error(err))
	}

	// interrupted and empty-handed runs are still reported and stored
	// under Metadata.Status
	now := s.now()
	out := runResult{Findings: res.Findings(now)}
	if a.OutputDir != "" {
		written, err := pipeline.WriteOutputs(a.OutputDir, res, now)
		if err != nil {
			return nil, err
		}
		out.Outputs = written
	}
	if s.store != nil {
		if _, err := s.store.SaveFindings(context.WithoutCancel(ctx), out.Findings); err != nil {
			return nil, fmt.Errorf("failed to store run %s: %w", res.RunID, err)
		}
		out.Stored = true
	}
	return out, nil
}

type statusResult struct {
	Version         string          `json:"version"`
	CachedRasters   int             `json:"cached_rasters"`
	Goroutines      int             `json:"goroutines"`
	StoreEnabled    bool            `json:"store_enabled"`
	OCR             any             `json:"ocr,omitempty"`
	Config          pipeline.Config `json:"config"`
	ProtocolVersion string          `json:"protocol_version"`
}

func (s *Server) handleStatus() (any, error) {
	st := statusResult{
		Version:         s.version,
		CachedRasters:   s.pipeline.Cache().Len(),
		Goroutines:      runtime.NumGoroutine(),
		StoreEnabled:    s.store != nil,
		Config:          s.pipeline.Config(),
		ProtocolVersion: ProtocolVersion,
	}
	if s.ocr != nil {
		st.OCR = s.ocr.Info()
	}
	return st, nil
}

// === Run History Handlers ===

type listRunsArgs struct {
	Limit int `json:"limit"`
}

func (s *Server) handleListRuns(ctx context.Context, args json.RawMessage) (any, error) {
	a := listRunsArgs{Limit: 20}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	runs, err := s.store.ListRuns(ctx, a.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(runs), "runs": runs}, nil
}

type runSitesArgs struct {
	RunID         string  `json:"run_id"`
	MinConfidence float64 `json:"min_confidence"`
}

func (s *Server) handleRunSites(ctx context.Context, args json.RawMessage) (any, error) {
	var a runSitesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.RunID == "" {
		return nil, badArgs("run_id is required")
	}
	if _, err := s.store.GetRun(ctx, a.RunID); err != nil {
		return nil, err
	}
	sites, err := s.store.Candidates(ctx, a.RunID, a.MinConfidence)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run_id": a.RunID, "count": len(sites), "sites": sites}, nil
}

// === OCR Handlers ===

type ocrMapArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleOCRMap(ctx context.Context, args json.RawMessage) (any, error) {
	var a ocrMapArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, badArgs("path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ocr.ExtractText(a.Path)
}
