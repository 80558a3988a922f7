package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidShape is returned when grid dimensions or band sizes are
// inconsistent.
var ErrInvalidShape = errors.New("invalid raster shape")

// Transform is an affine map from pixel indices to geographic coordinates.
//
// The coefficient layout is the usual six-term affine (a, b, c, d, e, f):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// For north-up rasters B and D are zero and E is negative.
type Transform struct {
	A float64 `json:"a"` // Pixel width (x step per column)
	B float64 `json:"b"` // Row rotation (x step per row)
	C float64 `json:"c"` // X of the top-left corner of the top-left cell
	D float64 `json:"d"` // Column rotation (y step per column)
	E float64 `json:"e"` // Pixel height (y step per row, negative for north-up)
	F float64 `json:"f"` // Y of the top-left corner of the top-left cell
}

// Identity is the transform that maps pixel corners to themselves.
var Identity = Transform{A: 1, E: 1}

// FromOrigin builds a north-up transform from the top-left corner and cell
// sizes.
func FromOrigin(west, north, xSize, ySize float64) Transform {
	return Transform{A: xSize, C: west, E: -ySize, F: north}
}

// PixelToGeo returns the geographic coordinates of the centre of the cell at
// the given (possibly fractional) row and column.
func (t Transform) PixelToGeo(row, col float64) (lon, lat float64) {
	c := col + 0.5
	r := row + 0.5
	return t.A*c + t.B*r + t.C, t.D*c + t.E*r + t.F
}

// Scaled returns the transform for the same footprint resampled so that one
// new pixel spans sx old columns and sy old rows.
func (t Transform) Scaled(sx, sy float64) Transform {
	return Transform{
		A: t.A * sx,
		B: t.B * sy,
		C: t.C,
		D: t.D * sx,
		E: t.E * sy,
		F: t.F,
	}
}

// Grid is an immutable stack of equally sized numeric bands with a
// georeferencing transform.
type Grid struct {
	width     int
	height    int
	bands     [][]float64
	transform Transform
}

// New creates a grid from row-major bands, each holding width*height values.
// The band slices are copied; later changes to them do not affect the grid.
func New(width, height int, bands [][]float64, t Transform) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidShape, width, height)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: no bands", ErrInvalidShape)
	}
	n := width * height
	copied := make([][]float64, len(bands))
	for i, b := range bands {
		if len(b) != n {
			return nil, fmt.Errorf("%w: band %d has %d values, want %d", ErrInvalidShape, i, len(b), n)
		}
		copied[i] = append([]float64(nil), b...)
	}
	return &Grid{width: width, height: height, bands: copied, transform: t}, nil
}

// FromRows builds a grid from one or more 2-D bands given as [row][col]
// slices. All bands must be rectangular and share the same shape.
func FromRows(t Transform, bands ...[][]float64) (*Grid, error) {
	if len(bands) == 0 || len(bands[0]) == 0 {
		return nil, fmt.Errorf("%w: no data", ErrInvalidShape)
	}
	height := len(bands[0])
	width := len(bands[0][0])
	if width == 0 {
		return nil, fmt.Errorf("%w: rows have no columns", ErrInvalidShape)
	}
	flat := make([][]float64, len(bands))
	for i, rows := range bands {
		if len(rows) != height {
			return nil, fmt.Errorf("%w: band %d has %d rows, want %d", ErrInvalidShape, i, len(rows), height)
		}
		flat[i] = make([]float64, 0, width*height)
		for r, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("%w: band %d row %d has %d columns, want %d", ErrInvalidShape, i, r, len(row), width)
			}
			flat[i] = append(flat[i], row...)
		}
	}
	return &Grid{width: width, height: height, bands: flat, transform: t}, nil
}

// Width returns the number of columns.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// NumBands returns the number of bands.
func (g *Grid) NumBands() int { return len(g.bands) }

// Transform returns the grid's georeferencing transform.
func (g *Grid) Transform() Transform { return g.transform }

// Contains reports whether (row, col) is a valid pixel index.
func (g *Grid) Contains(row, col int) bool {
	return row >= 0 && row < g.height && col >= 0 && col < g.width
}

// At returns the value of a band at (row, col). The caller must ensure the
// index is inside the grid.
func (g *Grid) At(band, row, col int) float64 {
	return g.bands[band][row*g.width+col]
}

// Band returns a row-major copy of band i.
func (g *Grid) Band(i int) []float64 {
	return append([]float64(nil), g.bands[i]...)
}

// FiniteBand returns a row-major copy of band i with NaN and infinite values
// replaced by zero, along with the number of values that were finite.
func (g *Grid) FiniteBand(i int) ([]float64, int) {
	out := make([]float64, len(g.bands[i]))
	finite := 0
	for j, v := range g.bands[i] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[j] = v
		finite++
	}
	return out, finite
}

// Geo returns the geographic centre of the pixel at (row, col).
func (g *Grid) Geo(row, col int) (lon, lat float64) {
	return g.transform.PixelToGeo(float64(row), float64(col))
}
