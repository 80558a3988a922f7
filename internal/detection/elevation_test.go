package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/raster"
)

// createElevationGrid creates a flat DEM with the given spikes added.
func createElevationGrid(t *testing.T, width, height int, tr raster.Transform, spikes map[[2]int]float64) *raster.Grid {
	t.Helper()
	data := make([]float64, width*height)
	for pos, hgt := range spikes {
		data[pos[0]*width+pos[1]] += hgt
	}
	g, err := raster.New(width, height, [][]float64{data}, tr)
	require.NoError(t, err)
	return g
}

func TestElevationDetector_AllZero(t *testing.T) {
	g := createElevationGrid(t, 30, 30, raster.Identity, nil)
	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "flat.asc")
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestElevationDetector_SingleSpike(t *testing.T) {
	tr := raster.FromOrigin(-54.5, -12.5, 0.001, 0.001)
	g := createElevationGrid(t, 41, 41, tr, map[[2]int]float64{{20, 17}: 5})

	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "spike.asc")
	require.NoError(t, err)
	require.Len(t, obs, 1)

	o := obs[0]
	wantLon, wantLat := g.Geo(20, 17)
	loc := o.Location()
	assert.InDelta(t, wantLon, loc.Lon, 1e-12)
	assert.InDelta(t, wantLat, loc.Lat, 1e-12)
	require.NotNil(t, loc.Elevation)
	assert.Equal(t, 5.0, *loc.Elevation)

	f := o.Features()
	slope, ok := f.Float("slope")
	require.True(t, ok)
	aspect, ok := f.Float("aspect")
	require.True(t, ok)
	assert.False(t, math.IsNaN(slope) || math.IsInf(slope, 0))
	assert.False(t, math.IsNaN(aspect) || math.IsInf(aspect, 0))

	assert.Equal(t, evidence.SourceElevation, o.Source())
	assert.Equal(t, "spike.asc", o.Provenance())
	assert.GreaterOrEqual(t, o.Confidence(), 0.0)
	assert.LessOrEqual(t, o.Confidence(), 1.0)
}

func TestElevationDetector_NegativeSpike(t *testing.T) {
	g := createElevationGrid(t, 41, 41, raster.Identity, map[[2]int]float64{{10, 30}: -8})

	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "")
	require.NoError(t, err)
	require.Len(t, obs, 1)
	row, _ := obs[0].Features().Float("row")
	col, _ := obs[0].Features().Float("col")
	assert.Equal(t, 10.0, row)
	assert.Equal(t, 30.0, col)
}

func TestElevationDetector_NonMaximumSuppression(t *testing.T) {
	g := createElevationGrid(t, 50, 50, raster.Identity, map[[2]int]float64{
		{25, 20}: 4,
		{25, 26}: 9,
	})

	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "")
	require.NoError(t, err)
	require.Len(t, obs, 1, "spikes within the separation radius collapse to one")

	col, _ := obs[0].Features().Float("col")
	assert.Equal(t, 26.0, col, "the larger spike wins")
}

func TestElevationDetector_SeparatedSpikes(t *testing.T) {
	g := createElevationGrid(t, 60, 40, raster.Identity, map[[2]int]float64{
		{20, 10}: 6,
		{20, 45}: 6,
	})

	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "")
	require.NoError(t, err)
	require.Len(t, obs, 2)

	// Equal magnitudes keep scan order.
	first, _ := obs[0].Features().Float("col")
	second, _ := obs[1].Features().Float("col")
	assert.Equal(t, 10.0, first)
	assert.Equal(t, 45.0, second)
}

func TestElevationDetector_BorderSkipped(t *testing.T) {
	g := createElevationGrid(t, 30, 30, raster.Identity, map[[2]int]float64{{0, 15}: 10})

	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "")
	require.NoError(t, err)
	for _, o := range obs {
		row, _ := o.Features().Float("row")
		col, _ := o.Features().Float("col")
		assert.Greater(t, row, 0.0)
		assert.Less(t, row, 29.0)
		assert.Greater(t, col, 0.0)
		assert.Less(t, col, 29.0)
	}
}

func TestElevationDetector_Errors(t *testing.T) {
	d := NewElevationDetector(DefaultElevationConfig(), nil)

	twoBands, err := raster.New(2, 2, [][]float64{{1, 2, 3, 4}, {1, 2, 3, 4}}, raster.Identity)
	require.NoError(t, err)
	_, err = d.Detect(twoBands, "")
	assert.ErrorIs(t, err, evidence.ErrBandCount)

	nan := math.NaN()
	allNaN, err := raster.New(2, 2, [][]float64{{nan, nan, nan, nan}}, raster.Identity)
	require.NoError(t, err)
	_, err = d.Detect(allNaN, "")
	assert.ErrorIs(t, err, evidence.ErrAllNaN)
}

func TestElevationDetector_NaNTreatedAsZero(t *testing.T) {
	const w, h = 41, 41
	data := make([]float64, w*h)
	data[0] = math.NaN()
	data[20*w+20] = 5
	g, err := raster.New(w, h, [][]float64{data}, raster.Identity)
	require.NoError(t, err)

	obs, err := NewElevationDetector(DefaultElevationConfig(), nil).Detect(g, "")
	require.NoError(t, err)
	assert.Len(t, obs, 1)
}

func TestSuppressNonMaxima_TieBreakRowMajor(t *testing.T) {
	flagged := []anomaly{
		{row: 5, col: 5, residual: 3},
		{row: 5, col: 8, residual: -3},
		{row: 20, col: 20, residual: 1},
	}
	kept := suppressNonMaxima(flagged, 30, 30, 4)
	require.Len(t, kept, 2)
	assert.Equal(t, anomaly{row: 5, col: 5, residual: 3}, kept[0])
	assert.Equal(t, anomaly{row: 20, col: 20, residual: 1}, kept[1])
}
