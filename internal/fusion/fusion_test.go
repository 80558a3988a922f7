package fusion

import (
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/site-survey/internal/evidence"
)

// createObservation builds an observation at (lon, lat) for tests.
func createObservation(t *testing.T, src evidence.Source, lon, lat, conf float64) evidence.Observation {
	t.Helper()
	obs, err := evidence.NewObservation(src, evidence.NewLocation(lon, lat), conf,
		evidence.Features{"label": fmt.Sprintf("%s@%v,%v", src, lon, lat)}, "test")
	require.NoError(t, err)
	return obs
}

// sequentialIDs makes candidate ids predictable.
func sequentialIDs(e *Engine) {
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("site-%d", n)
	}
}

func TestFuse_SourceThenEmissionOrder(t *testing.T) {
	e := NewEngine(Config{}, nil)
	sequentialIDs(e)

	text := createObservation(t, evidence.SourceText, 5, 5, 0.7)
	img1 := createObservation(t, evidence.SourceImagery, 3, 3, 0.5)
	img2 := createObservation(t, evidence.SourceImagery, 4, 4, 0.6)
	elev := createObservation(t, evidence.SourceElevation, 1, 1, 0.9)

	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceText:      {text},
		evidence.SourceImagery:   {img1, img2},
		evidence.SourceElevation: {elev},
	})
	require.Len(t, cands, 4)

	wantLon := []float64{1, 3, 4, 5}
	wantSrc := []evidence.Source{evidence.SourceElevation, evidence.SourceImagery, evidence.SourceImagery, evidence.SourceText}
	for i, c := range cands {
		assert.Equal(t, fmt.Sprintf("site-%d", i+1), c.ID())
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, wantLon[i], c.Location().Lon)
		assert.Equal(t, []evidence.Source{wantSrc[i]}, c.VerificationMethods())
	}
}

func TestFuse_NoMergeKeepsDuplicates(t *testing.T) {
	e := NewEngine(Config{}, nil)
	a := createObservation(t, evidence.SourceElevation, 1, 1, 0.9)
	b := createObservation(t, evidence.SourceImagery, 1, 1, 0.4)

	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceElevation: {a},
		evidence.SourceImagery:   {b},
	})
	assert.Len(t, cands, 2, "co-located observations stay separate without a merge radius")
}

func TestFuse_Idempotence(t *testing.T) {
	e := NewEngine(Config{}, nil)
	batch := []evidence.Observation{
		createObservation(t, evidence.SourceImagery, 1, 1, 0.4),
		createObservation(t, evidence.SourceImagery, 2, 2, 0.5),
		createObservation(t, evidence.SourceImagery, 3, 3, 0.6),
	}

	once := e.Fuse(map[evidence.Source][]evidence.Observation{evidence.SourceImagery: batch})
	twice := e.Fuse(map[evidence.Source][]evidence.Observation{evidence.SourceImagery: append(append([]evidence.Observation{}, batch...), batch...)})
	require.Len(t, once, 3)
	require.Len(t, twice, 6)

	ids := map[string]bool{}
	for i, c := range twice {
		ids[c.ID()] = true
		first := twice[i%3].Record()
		got := c.Record()
		first.ID, got.ID = "", ""
		assert.Equal(t, first, got)
	}
	assert.Len(t, ids, 6, "ids are unique")
}

func TestFuse_Empty(t *testing.T) {
	e := NewEngine(Config{MergeRadiusMeters: 100}, nil)
	assert.Empty(t, e.Fuse(nil))
	assert.Empty(t, e.Fuse(map[evidence.Source][]evidence.Observation{evidence.SourceText: {}}))
}

func TestFuse_MergeWithinRadius(t *testing.T) {
	e := NewEngine(Config{MergeRadiusMeters: 100}, nil)
	sequentialIDs(e)

	// 0.0005° of longitude at the equator is about 56 m.
	elev := createObservation(t, evidence.SourceElevation, 0, 0, 0.5)
	far := createObservation(t, evidence.SourceElevation, 1, 1, 0.3)
	img := createObservation(t, evidence.SourceImagery, 0.0005, 0, 0.8)

	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceElevation: {elev, far},
		evidence.SourceImagery:   {img},
	})
	require.Len(t, cands, 2)

	merged := cands[0]
	assert.Equal(t, 2, merged.Len())
	assert.Equal(t, []evidence.Source{evidence.SourceElevation, evidence.SourceImagery}, merged.VerificationMethods())
	assert.Equal(t, 0.8, merged.CombinedConfidence())
	assert.InDelta(t, 0.00025, merged.Location().Lon, 1e-12)

	obs := merged.Observations()
	assert.Equal(t, evidence.SourceElevation, obs[0].Source(), "members keep fusion order")
	assert.Equal(t, evidence.SourceImagery, obs[1].Source())

	assert.Equal(t, 1, cands[1].Len())
	assert.Equal(t, 1.0, cands[1].Location().Lon)
}

func TestFuse_MergeIsTransitive(t *testing.T) {
	e := NewEngine(Config{MergeRadiusMeters: 70}, nil)

	a := createObservation(t, evidence.SourceText, 0, 0, 0.7)
	b := createObservation(t, evidence.SourceText, 0.0005, 0, 0.7)
	c := createObservation(t, evidence.SourceText, 0.001, 0, 0.7)

	cands := e.Fuse(map[evidence.Source][]evidence.Observation{evidence.SourceText: {a, c, b}})
	require.Len(t, cands, 1, "a-b and b-c are within the radius, a-c is not")
	assert.Equal(t, 3, cands[0].Len())
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(3, 4)
	uf.union(4, 1)
	assert.Equal(t, 1, uf.find(3))
	assert.Equal(t, 1, uf.find(4))
	assert.Equal(t, 0, uf.find(0))
	assert.Equal(t, 2, uf.find(2))
}

func TestRegion(t *testing.T) {
	assert.True(t, Region{}.IsZero())
	assert.NoError(t, Region{MinLat: -10, MaxLat: 0, MinLon: -70, MaxLon: -60}.Validate())
	assert.Error(t, Region{MinLat: 1, MaxLat: 0}.Validate())
	assert.Error(t, Region{MinLat: -100, MaxLat: 0}.Validate())

	b := Region{MinLat: -10, MaxLat: 0, MinLon: -70, MaxLon: -60}.Bound()
	assert.Equal(t, orb.Point{-70, -10}, b.Min)
	assert.Equal(t, orb.Point{-60, 0}, b.Max)
}

func TestValidate_Gates(t *testing.T) {
	e := NewEngine(Config{}, nil)
	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceElevation: {
			createObservation(t, evidence.SourceElevation, -65, -5, 0.7),
			createObservation(t, evidence.SourceElevation, -50, -5, 0.7),
			createObservation(t, evidence.SourceElevation, -60, 0, 0.2),
			createObservation(t, evidence.SourceElevation, -65, -5, 0),
		},
	})

	v := NewValidator(ValidationConfig{
		Region:     Region{MinLat: -10, MaxLat: 0, MinLon: -70, MaxLon: -60},
		MinSources: 1,
	}, nil)
	kept, rep := v.Validate(cands)
	require.Len(t, kept, 2)
	assert.Equal(t, cands[0].ID(), kept[0].ID())
	assert.Equal(t, cands[2].ID(), kept[1].ID(), "region edges are inclusive")

	assert.Equal(t, StatusPartial, rep.Status)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Passed)
	assert.Equal(t, map[string]int{ReasonOutsideRegion: 1, ReasonLowConfidence: 1}, rep.Rejected)
}

func TestValidate_NoRegionAcceptsEverywhere(t *testing.T) {
	e := NewEngine(Config{}, nil)
	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceText: {createObservation(t, evidence.SourceText, 170, 80, 0.9)},
	})
	kept, rep := NewValidator(DefaultValidationConfig(), nil).Validate(cands)
	assert.Len(t, kept, 1)
	assert.Equal(t, StatusPass, rep.Status)
	assert.Empty(t, rep.Rejected)
}

func TestValidate_MinConfidenceIsStrict(t *testing.T) {
	e := NewEngine(Config{}, nil)
	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceImagery: {
			createObservation(t, evidence.SourceImagery, 0, 0, 0.5),
			createObservation(t, evidence.SourceImagery, 1, 1, 0.51),
		},
	})
	cfg := DefaultValidationConfig()
	cfg.MinConfidence = 0.5
	kept, _ := NewValidator(cfg, nil).Validate(cands)
	require.Len(t, kept, 1)
	assert.Equal(t, 0.51, kept[0].CombinedConfidence())
}

func TestValidate_MinSources(t *testing.T) {
	e := NewEngine(Config{MergeRadiusMeters: 100}, nil)
	cands := e.Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceElevation: {createObservation(t, evidence.SourceElevation, 0, 0, 0.6)},
		evidence.SourceText:      {createObservation(t, evidence.SourceText, 0, 0, 0.7), createObservation(t, evidence.SourceText, 5, 5, 0.9)},
	})
	require.Len(t, cands, 2)

	cfg := DefaultValidationConfig()
	cfg.MinSources = 2
	kept, rep := NewValidator(cfg, nil).Validate(cands)
	require.Len(t, kept, 1)
	assert.Equal(t, 2, kept[0].Len())
	assert.Equal(t, map[string]int{ReasonFewSources: 1}, rep.Rejected)
}

func TestValidate_Statuses(t *testing.T) {
	v := NewValidator(ValidationConfig{MinConfidence: 0.95}, nil)
	_, rep := v.Validate(nil)
	assert.Equal(t, StatusEmpty, rep.Status)

	cands := NewEngine(Config{}, nil).Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceText: {createObservation(t, evidence.SourceText, 0, 0, 0.9)},
	})
	_, rep = v.Validate(cands)
	assert.Equal(t, StatusFail, rep.Status)
}

func TestCompare(t *testing.T) {
	cands := NewEngine(Config{}, nil).Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceElevation: {
			createObservation(t, evidence.SourceElevation, -62.0005, -3, 0.8),
			createObservation(t, evidence.SourceElevation, -50, -3, 0.8),
		},
	})
	known := []KnownSite{
		{Name: "far away", Lon: 10, Lat: 10},
		{Name: "ring ditch", Lon: -62, Lat: -3},
	}

	out := Compare(cands, known, 500)
	require.Len(t, out, 2)

	f := out[0].Features()
	assert.Equal(t, ComparisonKnown, f["comparison"])
	assert.Equal(t, "ring ditch", f["known_site"])
	d, ok := f.Float("known_site_distance_m")
	require.True(t, ok)
	assert.InDelta(t, 55.5, d, 1.0)

	assert.Equal(t, ComparisonNovel, out[1].Features()["comparison"])
	assert.Empty(t, cands[0].Features()["comparison"], "input candidates are unchanged")
}

func TestCompare_NoKnownSites(t *testing.T) {
	cands := NewEngine(Config{}, nil).Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceText: {createObservation(t, evidence.SourceText, 0, 0, 0.9)},
	})
	out := Compare(cands, nil, 1000)
	assert.Equal(t, ComparisonNovel, out[0].Features()["comparison"])
}

func TestMarshalGeoJSON(t *testing.T) {
	elevObs, err := evidence.NewObservation(evidence.SourceElevation,
		evidence.NewLocation(-62, -3).WithElevation(120), 0.75, evidence.Features{"slope": 0.2}, "dem.asc")
	require.NoError(t, err)
	cands := NewEngine(Config{}, nil).Fuse(map[evidence.Source][]evidence.Observation{
		evidence.SourceElevation: {elevObs},
		evidence.SourceText:      {createObservation(t, evidence.SourceText, -61, -4, 0.9)},
	})

	data, err := MarshalGeoJSON(cands)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	first := fc.Features[0]
	assert.Equal(t, orb.Point{-62, -3}, first.Geometry)
	assert.Equal(t, cands[0].ID(), first.Properties["id"])
	assert.Equal(t, 0.75, first.Properties["confidence"])
	assert.Equal(t, "elevation", first.Properties["verification_method"])
	assert.Equal(t, 120.0, first.Properties["elevation"])

	second := fc.Features[1]
	assert.Equal(t, "text", second.Properties["verification_method"])
	_, hasElevation := second.Properties["elevation"]
	assert.False(t, hasElevation)
}
