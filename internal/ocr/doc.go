// Package ocr turns scanned historical maps into text using Tesseract.
//
// This package wraps the Tesseract OCR engine (via gosseract/v2) so that
// scanned indigenous maps and annotated survey sheets can be fed to the text
// evidence extractor alongside transcribed documents.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr libtesseract-dev
//   - macOS: brew install tesseract
//
// Language data files are required for each language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr-eng (for English)
//   - Portuguese and Spanish colonial sources: tesseract-ocr-por, tesseract-ocr-spa
//
// Several languages may be combined with "+", e.g. "eng+por".
//
// # Preprocessing
//
// Scans are converted to grayscale, contrast-stretched and, when small,
// upscaled before recognition. Old maps are typically faded and low
// resolution, and Tesseract is tuned for dark text of at least 20 px
// height.
//
// # Error Handling
//
// Engine.ExtractText returns errors for:
//   - Missing or undecodable image files
//   - Unsupported language codes
//   - Tesseract initialization failures
//
// If word bounding box extraction fails, the full text is still returned
// with an empty Words slice.
package ocr
