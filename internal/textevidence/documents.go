package textevidence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/site-survey/internal/evidence"
)

// Subdirectories of a historical archive.
const (
	DiaryDir = "colonial_diaries"
	MapDir   = "indigenous_maps"
)

// Recognizer turns a scanned map image into text.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// LoadDocuments reads the historical archive rooted at dir.
//
// Transcribed diaries are read from colonial_diaries/*.txt. Structured
// maps come from indigenous_maps/*.json and *.yaml, and are kept as JSON
// text. Scanned maps (*.png, *.jpg, *.jpeg, *.tif) are recognized with ocr
// when it is non-nil and skipped otherwise. A trailing _YYYYMMDD in a file
// name sets the document date.
//
// Files that cannot be read or decoded are returned as failures; missing
// subdirectories are not an error.
func LoadDocuments(ctx context.Context, dir string, ocr Recognizer, logger *zap.Logger) ([]evidence.Document, []evidence.ItemFailure, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, evidence.NewInputError(dir, "historical archive", err)
	}

	var (
		docs     []evidence.Document
		failures []evidence.ItemFailure
	)
	fail := func(path, reason string, err error) {
		logger.Warn("document not loaded", zap.String("path", path), zap.String("reason", reason), zap.Error(err))
		failures = append(failures, evidence.ItemFailure{
			Source: evidence.SourceText,
			Item:   path,
			Err:    evidence.NewInputError(path, reason, err),
		})
	}

	for _, sub := range []struct {
		name string
		kind evidence.DocumentKind
	}{
		{DiaryDir, evidence.DocumentColonialDiary},
		{MapDir, evidence.DocumentIndigenousMap},
	} {
		entries, err := os.ReadDir(filepath.Join(dir, sub.name))
		if err != nil {
			if !os.IsNotExist(err) {
				fail(filepath.Join(dir, sub.name), "list directory", err)
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return docs, failures, err
			}
			path := filepath.Join(dir, sub.name, entry.Name())
			ext := strings.ToLower(filepath.Ext(entry.Name()))

			var content string
			switch {
			case sub.kind == evidence.DocumentColonialDiary && ext == ".txt":
				data, err := os.ReadFile(path)
				if err != nil {
					fail(path, "read diary", err)
					continue
				}
				content = string(data)
			case sub.kind == evidence.DocumentIndigenousMap && (ext == ".json" || ext == ".yaml" || ext == ".yml"):
				content, err = readStructuredMap(path, ext)
				if err != nil {
					fail(path, "decode map", err)
					continue
				}
			case sub.kind == evidence.DocumentIndigenousMap && isScan(ext):
				if ocr == nil {
					logger.Debug("scanned map skipped, OCR disabled", zap.String("path", path))
					continue
				}
				content, err = ocr.Recognize(ctx, path)
				if err != nil {
					fail(path, "recognize scan", err)
					continue
				}
			default:
				continue
			}

			docs = append(docs, evidence.Document{
				ID:         filepath.ToSlash(filepath.Join(sub.name, entry.Name())),
				Kind:       sub.kind,
				Content:    content,
				Date:       DateFromFilename(entry.Name()),
				Provenance: path,
			})
		}
	}
	logger.Info("historical documents loaded", zap.String("dir", dir), zap.Int("documents", len(docs)), zap.Int("failures", len(failures)))
	return docs, failures, nil
}

func isScan(ext string) bool {
	switch ext {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}

// readStructuredMap decodes a JSON or YAML map document and returns it as
// compact JSON text.
func readStructuredMap(path, ext string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v any
	if ext == ".json" {
		if err := json.Unmarshal(data, &v); err != nil {
			return "", err
		}
	} else if err := yaml.Unmarshal(data, &v); err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("empty map document")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DateFromFilename parses a trailing _YYYYMMDD before the extension, as in
// "diary_17530412.txt". It returns nil when the name carries no date.
func DateFromFilename(name string) *time.Time {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return nil
	}
	t, err := time.Parse("20060102", base[idx+1:])
	if err != nil {
		return nil
	}
	return &t
}
