package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Tool names.
const (
	toolRasterInfo      = "survey_raster_info"
	toolDetectElevation = "survey_detect_elevation"
	toolDetectImagery   = "survey_detect_imagery"
	toolRun             = "survey_run"
	toolStatus          = "survey_status"
	toolListRuns        = "survey_list_runs"
	toolRunSites        = "survey_run_sites"
	toolOCRMap          = "survey_ocr_map"
)

var pathProperty = map[string]any{
	"type":        "string",
	"description": "Absolute path to the raster file",
}

// GetToolDefinitions returns the tools every server offers. The run history
// and OCR tools are added by the server when it has a store or an OCR engine.
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        toolRasterInfo,
			Description: "Load an elevation (.asc) or imagery (PNG/JPEG/TIFF with world file) raster and report its size, band count and geographic transform.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty,
					"kind": map[string]any{
						"type":        "string",
						"enum":        []string{"elevation", "imagery"},
						"description": "Raster family. Default elevation",
						"default":     "elevation",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        toolDetectElevation,
			Description: "Run the elevation anomaly detector on a single digital elevation model and return the geolocated observations.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty,
					"k": map[string]any{
						"type":        "number",
						"description": "Residual threshold in standard deviations. Defaults to the configured value",
					},
					"min_separation_px": map[string]any{
						"type":        "integer",
						"description": "Minimum pixel distance between two reported anomalies. Defaults to the configured value",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        toolDetectImagery,
			Description: "Run the vegetation and texture detector on a single multispectral image and return the geolocated observations.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty,
					"enable_contours": map[string]any{
						"type":        "boolean",
						"description": "Also look for circular geometric contours",
					},
					"min_region_area": map[string]any{
						"type":        "integer",
						"description": "Smallest vegetation region in pixels. Defaults to the configured value",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        toolRun,
			Description: "Run the full survey: detect on every raster and historical document, fuse, validate and return the findings report. Writes findings.json and sites.geojson when output_dir is given.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"elevation_files": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Paths to elevation rasters",
					},
					"imagery_files": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Paths to imagery rasters",
					},
					"documents_dir": map[string]any{
						"type":        "string",
						"description": "Historical archive holding colonial_diaries/ and indigenous_maps/",
					},
					"output_dir": map[string]any{
						"type":        "string",
						"description": "Directory for the report files. Nothing is written when empty",
					},
				},
			},
		},
		{
			Name:        toolStatus,
			Description: "Report the active configuration, the raster cache size and which optional subsystems are available.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func storeToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        toolListRuns,
			Description: "List stored survey runs, newest first.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of runs. Default 20",
						"default":     20,
					},
				},
			},
		},
		{
			Name:        toolRunSites,
			Description: "Return the stored site candidates of one run.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"run_id": map[string]any{
						"type":        "string",
						"description": "Run identifier returned by survey_run or survey_list_runs",
					},
					"min_confidence": map[string]any{
						"type":        "number",
						"description": "Only return candidates at or above this confidence",
					},
				},
				"required": []string{"run_id"},
			},
		},
	}
}

func ocrToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        toolOCRMap,
			Description: "Recognize the text of a scanned historical map with Tesseract.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute path to the scanned image",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// toolDefinitions returns the tools this server instance offers.
func (s *Server) toolDefinitions() []Tool {
	tools := GetToolDefinitions()
	if s.store != nil {
		tools = append(tools, storeToolDefinitions()...)
	}
	if s.ocr != nil {
		tools = append(tools, ocrToolDefinitions()...)
	}
	return tools
}
