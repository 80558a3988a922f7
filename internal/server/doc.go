// Package server implements the MCP (Model Context Protocol) server that
// exposes the survey pipeline as tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Always offered:
//   - survey_raster_info: Load a raster and report size, bands and transform
//   - survey_detect_elevation: Elevation anomalies of one DEM
//   - survey_detect_imagery: Vegetation and texture anomalies of one image
//   - survey_run: Full detection, fusion and validation run
//   - survey_status: Configuration, cache size and subsystem availability
//
// With a run store (WithStore):
//   - survey_list_runs: Stored runs, newest first
//   - survey_run_sites: Stored candidates of one run
//
// With an OCR engine (WithOCR):
//   - survey_ocr_map: Text of a scanned map
//
// Rasters are loaded through the pipeline's grid cache and stay cached for
// the lifetime of the server, so repeated tool calls on the same file avoid
// disk reads.
//
// # Error Handling
//
// Malformed or missing arguments and unknown tools return code -32602.
// Tool failures return -32000 with the Go error string as data.
// survey_run is the exception once the pipeline has produced a result: a
// cancelled or empty-handed run is returned, written and stored with status
// partial or no_evidence.
//
// # Usage
//
//	p := pipeline.New(cfg, pipeline.WithLogger(logger))
//	srv := server.New(p, server.WithLogger(logger))
//	if err := srv.Run(ctx); err != nil {
//	    logger.Fatal("server stopped", zap.Error(err))
//	}
package server
