package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustObservation(t *testing.T, src Source, lon, lat, conf float64, features Features) Observation {
	t.Helper()
	obs, err := NewObservation(src, NewLocation(lon, lat), conf, features, "test")
	require.NoError(t, err)
	return obs
}

func TestNewObservation_Validation(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		loc  Location
		conf float64
	}{
		{"unknown source", Source("sonar"), NewLocation(0, 0), 0.5},
		{"confidence above one", SourceElevation, NewLocation(0, 0), 1.5},
		{"negative confidence", SourceElevation, NewLocation(0, 0), -0.1},
		{"nan confidence", SourceElevation, NewLocation(0, 0), math.NaN()},
		{"nan longitude", SourceImagery, NewLocation(math.NaN(), 0), 0.5},
		{"infinite elevation", SourceImagery, NewLocation(0, 0).WithElevation(math.Inf(1)), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObservation(tt.src, tt.loc, tt.conf, nil, "")
			assert.Error(t, err)
		})
	}
}

func TestObservation_IsImmutable(t *testing.T) {
	features := Features{"slope": 0.2}
	loc := NewLocation(-54, -12).WithElevation(100)
	obs, err := NewObservation(SourceElevation, loc, 0.7, features, "dem.asc")
	require.NoError(t, err)

	features["slope"] = 9.0
	*loc.Elevation = 5
	got := obs.Features()
	got["aspect"] = 1.0

	assert.Equal(t, Features{"slope": 0.2}, obs.Features())
	assert.Equal(t, 100.0, *obs.Location().Elevation)
	assert.Equal(t, "dem.asc", obs.Provenance())
}

func TestFeatures_Accessors(t *testing.T) {
	f := Features{"area": 12, "ndvi_mean": 0.4, "time_period": "colonial"}

	v, ok := f.Float("area")
	assert.True(t, ok)
	assert.Equal(t, 12.0, v)

	v, ok = f.Float("ndvi_mean")
	assert.True(t, ok)
	assert.Equal(t, 0.4, v)

	_, ok = f.Float("time_period")
	assert.False(t, ok)

	s, ok := f.String("time_period")
	assert.True(t, ok)
	assert.Equal(t, "colonial", s)
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("imagery")
	require.NoError(t, err)
	assert.Equal(t, SourceImagery, src)

	_, err = ParseSource("radar")
	assert.Error(t, err)
}

func TestSiteCandidate_Derived(t *testing.T) {
	text := mustObservation(t, SourceText, 2, 4, 0.8, Features{"time_period": "colonial"})
	elev, err := NewObservation(SourceElevation, NewLocation(0, 0).WithElevation(50), 0.3, Features{"slope": 0.2}, "dem")
	require.NoError(t, err)

	c, err := NewSiteCandidate("c1", text, elev)
	require.NoError(t, err)

	assert.Equal(t, 0.8, c.CombinedConfidence())
	assert.Equal(t, []Source{SourceElevation, SourceText}, c.VerificationMethods(), "methods follow fusion order")
	assert.True(t, c.HasSource(SourceText))
	assert.False(t, c.HasSource(SourceImagery))

	loc := c.Location()
	assert.InDelta(t, 1.0, loc.Lon, 1e-12)
	assert.InDelta(t, 2.0, loc.Lat, 1e-12)
	require.NotNil(t, loc.Elevation)
	assert.Equal(t, 50.0, *loc.Elevation)

	assert.Equal(t, Features{"time_period": "colonial", "slope": 0.2}, c.Features())
	assert.Equal(t, []string{"test", "dem"}, c.Provenance())
}

func TestNewSiteCandidate_Errors(t *testing.T) {
	_, err := NewSiteCandidate("c1")
	assert.ErrorIs(t, err, ErrNoObservations)

	_, err = NewSiteCandidate("", mustObservation(t, SourceText, 0, 0, 0.5, nil))
	assert.Error(t, err)
}

func TestSiteCandidate_Annotate(t *testing.T) {
	c, err := NewSiteCandidate("c1", mustObservation(t, SourceImagery, 0, 0, 0.5, Features{"area": 30.0}))
	require.NoError(t, err)

	annotated := c.Annotate(Features{"comparison": "novel"})
	assert.Equal(t, "novel", annotated.Features()["comparison"])
	assert.NotContains(t, c.Features(), "comparison", "original candidate is unchanged")
	assert.Equal(t, c.CombinedConfidence(), annotated.CombinedConfidence())
}

func TestRecords_RoundTrip(t *testing.T) {
	elev, err := NewObservation(SourceElevation, NewLocation(-54.1, -12.3).WithElevation(212.5), 0.64, Features{"slope": 0.15}, "dem.asc")
	require.NoError(t, err)
	img := mustObservation(t, SourceImagery, -54.2, -12.4, 0.5521, Features{"area": 40.0})
	txt := mustObservation(t, SourceText, -54.3, -12.5, 0.9, Features{"time_period": "pre-colonial"})

	c1, err := NewSiteCandidate("a", elev)
	require.NoError(t, err)
	c2, err := NewSiteCandidate("b", img, txt)
	require.NoError(t, err)
	cands := []SiteCandidate{c1, c2}

	data, err := MarshalRecords(cands)
	require.NoError(t, err)

	recs, err := ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	for i, c := range cands {
		want := c.Record()
		got := recs[i]
		assert.Equal(t, want.Coordinates, got.Coordinates)
		assert.Equal(t, want.Confidence, got.Confidence)
		assert.Equal(t, want.VerificationMethod, got.VerificationMethod)
		assert.Equal(t, want.VerificationMethods, got.VerificationMethods)
		assert.Equal(t, RecordType, got.Type)
	}
	assert.Equal(t, "imagery+text", recs[1].VerificationMethod)
	assert.Nil(t, recs[1].Coordinates.Elevation)
}

func TestRecord_JSONFieldNames(t *testing.T) {
	c, err := NewSiteCandidate("x", mustObservation(t, SourceText, 1, 2, 0.7, nil))
	require.NoError(t, err)

	data, err := json.Marshal(c.Record())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "coordinates", "confidence", "features", "verification_method", "verification_methods"} {
		assert.Contains(t, raw, key)
	}
	coords := raw["coordinates"].(map[string]any)
	assert.Equal(t, 1.0, coords["x"])
	assert.Equal(t, 2.0, coords["y"])
	assert.NotContains(t, coords, "elevation")
}

func TestParseRecords_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing id", `[{"confidence":0.5}]`},
		{"confidence out of range", `[{"id":"a","confidence":2}]`},
		{"unknown method", `[{"id":"a","confidence":0.5,"verification_methods":["sonar"]}]`},
		{"disagreeing methods", `[{"id":"a","confidence":0.5,"verification_method":"text","verification_methods":["imagery"]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecords([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"input", NewInputError("a.asc", "open", errors.New("boom")), CategoryInput},
		{"wrapped band count", fmt.Errorf("detect: %w", ErrBandCount), CategoryInput},
		{"service", &ExternalServiceError{DocumentID: "d", Op: "locations", Attempts: 3, Err: errors.New("503")}, CategoryExternalService},
		{"no evidence", ErrNoEvidenceFound, CategoryNoEvidence},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), CategoryCanceled},
		{"other", errors.New("x"), CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Category(tt.err))
		})
	}
}

func TestInputError_Unwrap(t *testing.T) {
	err := NewInputError("dem.asc", "detect", ErrAllNaN)
	assert.ErrorIs(t, err, ErrAllNaN)
	assert.Contains(t, err.Error(), "dem.asc")
}

func TestItemFailure_JSON(t *testing.T) {
	f := ItemFailure{Source: SourceText, Item: "diary.txt", Err: &ExternalServiceError{DocumentID: "diary", Op: "summary", Attempts: 2, Err: errors.New("timeout")}}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "text", raw["source"])
	assert.Equal(t, "external-service", raw["category"])
	assert.Contains(t, raw["error"], "timeout")
}

func TestDocument_Validate(t *testing.T) {
	assert.NoError(t, Document{ID: "d", Kind: DocumentColonialDiary, Content: "text"}.Validate())
	assert.Error(t, Document{ID: "d", Kind: "letter", Content: "text"}.Validate())
	assert.Error(t, Document{ID: "d", Kind: DocumentIndigenousMap, Content: "  "}.Validate())

	assert.Equal(t, "d", Document{ID: "d"}.Ref())
	assert.Equal(t, "maps/a.json", Document{ID: "d", Provenance: "maps/a.json"}.Ref())
}
