package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCategory groups errors by how the pipeline treats them.
type ErrorCategory string

const (
	// CategoryInput covers bad paths, unreadable files and malformed rasters.
	// Fatal for the single item, never for the batch.
	CategoryInput ErrorCategory = "input"

	// CategoryExternalService covers analyzer calls that failed after retries.
	CategoryExternalService ErrorCategory = "external-service"

	// CategoryNoEvidence is the pipeline-level "nothing was found" condition.
	CategoryNoEvidence ErrorCategory = "no-evidence"

	// CategoryCanceled covers context cancellation and deadlines.
	CategoryCanceled ErrorCategory = "canceled"

	CategoryGeneric ErrorCategory = "generic"
)

var (
	// ErrNoEvidenceFound is returned by the pipeline when every source
	// produced zero observations and no document could be processed.
	ErrNoEvidenceFound = errors.New("no evidence found")

	// ErrEmptyGrid reports a raster with no cells.
	ErrEmptyGrid = errors.New("empty raster")

	// ErrBandCount reports a raster whose band count does not suit the
	// detector it was given to.
	ErrBandCount = errors.New("wrong band count")

	// ErrAllNaN reports a raster without a single finite cell.
	ErrAllNaN = errors.New("raster has no finite values")
)

// InputError describes a single input file that could not be used.
type InputError struct {
	Path   string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("input error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("input error: %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// NewInputError wraps err as an InputError for path.
func NewInputError(path, reason string, err error) *InputError {
	return &InputError{Path: path, Reason: reason, Err: err}
}

// ExternalServiceError describes a text-analysis call that kept failing
// after its retries were exhausted.
type ExternalServiceError struct {
	DocumentID string
	Op         string
	Attempts   int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service error: document %s: %s failed after %d attempts: %v",
		e.DocumentID, e.Op, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Category reports the category of err by inspecting its chain.
func Category(err error) ErrorCategory {
	var (
		inputErr   *InputError
		serviceErr *ExternalServiceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inputErr):
		return CategoryInput
	case errors.As(err, &serviceErr):
		return CategoryExternalService
	case errors.Is(err, ErrNoEvidenceFound):
		return CategoryNoEvidence
	case errors.Is(err, ErrEmptyGrid), errors.Is(err, ErrBandCount), errors.Is(err, ErrAllNaN):
		return CategoryInput
	case isCanceled(err):
		return CategoryCanceled
	}
	return CategoryGeneric
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ItemFailure records one input file or document that was skipped.
type ItemFailure struct {
	Source Source `json:"source"`
	Item   string `json:"item"`
	Err    error  `json:"-"`
}

// Category is the category of the underlying error.
func (f ItemFailure) Category() ErrorCategory { return Category(f.Err) }

func (f ItemFailure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Source, f.Item, f.Err)
}

// MarshalJSON renders the failure with its error message and category.
func (f ItemFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Source   Source        `json:"source"`
		Item     string        `json:"item"`
		Category ErrorCategory `json:"category"`
		Error    string        `json:"error"`
	}{f.Source, f.Item, f.Category(), msg})
}
