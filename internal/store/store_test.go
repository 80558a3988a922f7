package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/pipeline"
)

// newTestStore creates a store in a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "survey.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []evidence.Record {
	z := 120.5
	return []evidence.Record{
		{
			ID:                  "a",
			Type:                evidence.RecordType,
			Coordinates:         evidence.Coordinates{X: -62, Y: -3, Elevation: &z},
			Confidence:          0.7,
			Features:            evidence.Features{"slope": 0.2},
			VerificationMethod:  "elevation",
			VerificationMethods: []evidence.Source{evidence.SourceElevation},
			ObservationCount:    1,
		},
		{
			ID:                  "b",
			Type:                evidence.RecordType,
			Coordinates:         evidence.Coordinates{X: -61, Y: -4},
			Confidence:          0.4,
			Features:            evidence.Features{"pattern": "variance_region"},
			VerificationMethod:  "imagery+text",
			VerificationMethods: []evidence.Source{evidence.SourceImagery, evidence.SourceText},
			ObservationCount:    2,
		},
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.db")
	s, err := New(path)
	require.NoError(t, err)
	id, err := s.SaveRun(context.Background(), Run{Status: "ok"}, sampleRecords())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	run, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Candidates)
}

func TestSaveRun_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	id, err := s.SaveRun(ctx, Run{
		ID:        "run-1",
		CreatedAt: created,
		Status:    "ok",
		Partial:   true,
		Failures:  3,
		Metadata:  json.RawMessage(`{"run_id":"run-1"}`),
	}, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, created, run.CreatedAt)
	assert.Equal(t, "ok", run.Status)
	assert.True(t, run.Partial)
	assert.Equal(t, 2, run.Candidates)
	assert.Equal(t, 3, run.Failures)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(run.Metadata))

	recs, err := s.Candidates(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, -62.0, recs[0].Coordinates.X)
	require.NotNil(t, recs[0].Coordinates.Elevation)
	assert.Equal(t, 120.5, *recs[0].Coordinates.Elevation)
	assert.Equal(t, []evidence.Source{evidence.SourceImagery, evidence.SourceText}, recs[1].VerificationMethods)
	assert.Nil(t, recs[1].Coordinates.Elevation)
}

func TestSaveRun_GeneratesID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.SaveRun(context.Background(), Run{Status: "ok"}, nil)
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestSaveRun_DuplicateIDFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.SaveRun(ctx, Run{ID: "dup", Status: "ok"}, sampleRecords())
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, Run{ID: "dup", Status: "ok"}, sampleRecords())
	assert.Error(t, err)

	recs, err := s.Candidates(ctx, "dup", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "the failed transaction added nothing")
}

func TestCandidates_MinConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.SaveRun(ctx, Run{Status: "ok"}, sampleRecords())
	require.NoError(t, err)

	recs, err := s.Candidates(ctx, id, 0.5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		_, err := s.SaveRun(ctx, Run{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour), Status: "ok"}, nil)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.SaveRun(ctx, Run{Status: "ok"}, sampleRecords())
	require.NoError(t, err)

	require.NoError(t, s.DeleteRun(ctx, id))
	recs, err := s.Candidates(ctx, id, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	assert.ErrorIs(t, s.DeleteRun(ctx, id), ErrRunNotFound)
}

func TestSaveFindings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := pipeline.Findings{
		Sites: sampleRecords(),
		Metadata: pipeline.Metadata{
			RunID:       "run-1",
			Status:      pipeline.RunOK,
			GeneratedAt: at,
			Failures: []evidence.ItemFailure{
				{Source: evidence.SourceImagery, Item: "bad.png", Err: evidence.ErrBandCount},
			},
		},
	}

	id, err := s.SaveFindings(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunOK, run.Status)
	assert.Equal(t, 2, run.Candidates)
	assert.Equal(t, 1, run.Failures)
	assert.True(t, run.CreatedAt.Equal(at))

	var meta map[string]any
	require.NoError(t, json.Unmarshal(run.Metadata, &meta))
	assert.Equal(t, "run-1", meta["run_id"])
}
