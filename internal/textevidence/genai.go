package textevidence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

const (
	locationsInstruction = `You are an expert in historical geography and archaeology.
Extract potential archaeological site locations from the text you are given.
Answer with a JSON array only. Each element must have the fields
"latitude" and "longitude" in decimal degrees, "confidence" between 0 and 1,
and a short "description". Answer [] when the text names no locatable place.`

	contextInstruction = `You are an expert in Amazonian archaeology.
Analyze the text you are given for its historical context, time period and
cultural significance. Say explicitly whether the places it describes are
pre-colonial, colonial or modern, and whether they are major or minor sites.`
)

// GenAIAnalyzer implements Analyzer with the Google Gen AI SDK.
type GenAIAnalyzer struct {
	client *genai.Client
	model  string
}

// NewGenAIAnalyzer creates an analyzer backed by the Gemini API.
func NewGenAIAnalyzer(ctx context.Context, apiKey, model string) (*GenAIAnalyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIAnalyzer{client: client, model: model}, nil
}

// ExtractLocations asks the model for a JSON array of location mentions.
func (a *GenAIAnalyzer) ExtractLocations(ctx context.Context, content string) (string, error) {
	return a.generate(ctx, locationsInstruction, content, "application/json")
}

// Summarize asks the model for a free-text contextual summary.
func (a *GenAIAnalyzer) Summarize(ctx context.Context, content string) (string, error) {
	return a.generate(ctx, contextInstruction, content, "")
}

func (a *GenAIAnalyzer) generate(ctx context.Context, instruction, content, mimeType string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.1),
		ResponseMIMEType:  mimeType,
	}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(content), cfg)
	if err != nil {
		return "", classifyAPIError(fmt.Errorf("genai generate (%s): %w", a.model, err))
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("genai generate (%s): empty response", a.model)
	}
	return text, nil
}

// classifyAPIError marks API errors with a non-retryable status as
// permanent. Rate limits, timeouts and server errors stay transient, as do
// errors that carry no status.
func classifyAPIError(err error) error {
	var code int
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return err
	}
	if transientStatus(code) {
		return err
	}
	return &PermanentError{Err: err}
}

func transientStatus(code int) bool {
	return code == 0 ||
		code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
