package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is used when an Engine has no language set.
const DefaultLanguage = "eng"

// minScanWidth is the width below which scans are upscaled before OCR.
const minScanWidth = 1200

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// Word is a recognized word with its location and OCR confidence.
type Word struct {
	// Text is the recognized word.
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is the bounding box in the preprocessed image.
	Bounds Bounds `json:"bounds"`
}

// Result contains the text recognized in one scan.
type Result struct {
	// FullText is all kept text with original line breaks.
	FullText string `json:"full_text"`

	// Words lists the words at or above the engine's minimum confidence.
	Words []Word `json:"words"`

	// MeanConfidence averages the confidence of the kept words, 0 when none.
	MeanConfidence float64 `json:"mean_confidence"`
}

// Engine recognizes text in scanned images. The zero value uses English and
// keeps every word. An Engine is safe for concurrent use: each call runs its
// own Tesseract client.
type Engine struct {
	// Language is the Tesseract language code, e.g. "eng" or "eng+por".
	Language string

	// MinWordConfidence drops words recognized with lower confidence from
	// Words. FullText is left untouched.
	MinWordConfidence float64
}

// New creates an engine for language.
func New(language string, minWordConfidence float64) *Engine {
	return &Engine{Language: language, MinWordConfidence: minWordConfidence}
}

func (e *Engine) language() string {
	if e.Language == "" {
		return DefaultLanguage
	}
	return e.Language
}

// Preprocess prepares a scan for recognition: grayscale, contrast stretch,
// mild sharpening, and a Lanczos upscale of narrow scans.
func Preprocess(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 30)
	out = imaging.Sharpen(out, 0.8)
	if w := out.Bounds().Dx(); w > 0 && w < minScanWidth {
		scale := (minScanWidth + w - 1) / w
		out = imaging.Resize(out, w*scale, 0, imaging.Lanczos)
	}
	return out
}

// ExtractText performs OCR on the scan at imagePath.
//
// # Algorithm
//
//  1. Decode the file with imaging.Open (auto-orienting JPEG scans).
//  2. Preprocess and encode the result as PNG in memory.
//  3. Run Tesseract for the full text, then for word-level boxes.
//
// Word boxes refer to the preprocessed image, which may be upscaled.
func (e *Engine) ExtractText(imagePath string) (*Result, error) {
	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open scan: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, Preprocess(img)); err != nil {
		return nil, fmt.Errorf("failed to encode preprocessed scan: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(e.language(), "+")...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	result := &Result{FullText: strings.TrimSpace(text), Words: []Word{}}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Return just text if boxes fail
		return result, nil
	}
	var total float64
	for _, box := range boxes {
		conf := float64(box.Confidence) / 100.0
		if box.Word == "" || conf < e.MinWordConfidence {
			continue
		}
		result.Words = append(result.Words, Word{
			Text:       box.Word,
			Confidence: conf,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
		total += conf
	}
	if len(result.Words) > 0 {
		result.MeanConfidence = total / float64(len(result.Words))
	}
	return result, nil
}

// Recognize returns the text of the scan at path. Tesseract itself cannot be
// interrupted, so ctx is only checked before recognition starts.
func (e *Engine) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := e.ExtractText(path)
	if err != nil {
		return "", err
	}
	return res.FullText, nil
}

// Info describes the OCR subsystem.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Language  string `json:"language"`
	Backend   string `json:"backend"`
}

// Info reports the Tesseract version in use.
func (e *Engine) Info() Info {
	client := gosseract.NewClient()
	defer client.Close()
	version := client.Version()
	return Info{
		Available: version != "",
		Version:   version,
		Language:  e.language(),
		Backend:   "gosseract",
	}
}
