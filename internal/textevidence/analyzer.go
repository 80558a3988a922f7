// Package textevidence extracts geolocated mentions of possible sites from
// historical documents.
//
// The language understanding itself is delegated to an Analyzer, an
// external collaborator called twice per document: once for location
// mentions and once for a contextual summary. The extractor turns the
// summary into a time period and a significance level by keyword matching,
// and keeps a mention only when its verification score passes the accept
// threshold.
//
// Analyzer calls are bounded: each attempt runs under its own timeout and
// transient failures are retried with exponential backoff. A document whose
// calls keep failing is recorded as a failure without affecting the others.
package textevidence

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Analyzer is the language-understanding capability used by the extractor.
// Implementations must honour ctx cancellation.
type Analyzer interface {
	// ExtractLocations returns a response listing location mentions, either
	// as a JSON array of Mention or one "latitude: ..., longitude: ...,
	// confidence: ..., description: ..." line per mention.
	ExtractLocations(ctx context.Context, content string) (string, error)

	// Summarize returns a free-text summary of the document's historical
	// context, time period and cultural significance.
	Summarize(ctx context.Context, content string) (string, error)
}

// PermanentError marks an analyzer failure that retrying cannot fix, such
// as a rejected API key or a malformed request. The extractor gives up on
// the call at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Mention is a location extracted from a document.
type Mention struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// valid reports whether the mention is a usable geographic position.
func (m Mention) valid() bool {
	return m.Latitude >= -90 && m.Latitude <= 90 && m.Longitude >= -180 && m.Longitude <= 180
}

// normalizedConfidence maps percentages to [0, 1]; ok is false for values
// that are neither.
func (m Mention) normalizedConfidence() (float64, bool) {
	c := m.Confidence
	if c > 1 && c <= 100 {
		c /= 100
	}
	return c, c >= 0 && c <= 1
}

var (
	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	numberFields = map[string]*regexp.Regexp{
		"latitude":   regexp.MustCompile(`(?i)latitude\s*:\s*(-?\d+(?:\.\d+)?)`),
		"longitude":  regexp.MustCompile(`(?i)longitude\s*:\s*(-?\d+(?:\.\d+)?)`),
		"confidence": regexp.MustCompile(`(?i)confidence\s*:\s*(-?\d+(?:\.\d+)?)`),
	}
	descriptionField = regexp.MustCompile(`(?i)description\s*:\s*(.*)$`)
)

// ParseMentions decodes an analyzer's location response.
//
// A JSON array of mentions, or an object with a "locations" array, is
// preferred; Markdown code fences around it are ignored. Otherwise every
// line carrying latitude, longitude and confidence fields is parsed, and
// lines that do not parse are skipped.
func ParseMentions(raw string) []Mention {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var list []Mention
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return list
	}
	var wrapped struct {
		Locations []Mention `json:"locations"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && wrapped.Locations != nil {
		return wrapped.Locations
	}

	var out []Mention
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "latitude") || !strings.Contains(lower, "longitude") {
			continue
		}
		values := make(map[string]float64, len(numberFields))
		ok := true
		for name, re := range numberFields {
			match := re.FindStringSubmatch(line)
			if match == nil {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(match[1], 64)
			if err != nil {
				ok = false
				break
			}
			values[name] = v
		}
		if !ok {
			continue
		}
		m := Mention{
			Latitude:   values["latitude"],
			Longitude:  values["longitude"],
			Confidence: values["confidence"],
		}
		if d := descriptionField.FindStringSubmatch(line); d != nil {
			m.Description = strings.TrimSpace(d[1])
		}
		out = append(out, m)
	}
	return out
}
