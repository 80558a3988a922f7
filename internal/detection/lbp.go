package detection

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Texture descriptor parameters: 24 samples on a circle of radius 3.
const (
	lbpPoints = 24
	lbpRadius = 3.0
)

// UniformLBP computes the rotation-invariant uniform local binary pattern
// of gray, normalized to [0, 1].
//
// # Algorithm
//
// For each pixel, lbpPoints neighbours are sampled with bilinear
// interpolation on a circle of radius lbpRadius. A neighbour sets its bit
// when it is >= the centre. Patterns with at most two 0/1 transitions
// around the circle are "uniform" and coded by their number of set bits
// (0..P); every other pattern is coded P+1. The code is then divided by
// P+1. Samples falling outside the grid are clamped to the edge.
//
// Rows are independent, so they are computed concurrently.
func UniformLBP(gray []float64, width, height int) []float64 {
	out := make([]float64, width*height)
	offsets := make([][2]float64, lbpPoints)
	for p := 0; p < lbpPoints; p++ {
		theta := 2 * math.Pi * float64(p) / lbpPoints
		offsets[p] = [2]float64{-lbpRadius * math.Sin(theta), lbpRadius * math.Cos(theta)}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for y := 0; y < height; y++ {
		g.Go(func() error {
			bits := make([]bool, lbpPoints)
			for x := 0; x < width; x++ {
				centre := gray[y*width+x]
				ones := 0
				for p, off := range offsets {
					bits[p] = bilinear(gray, width, height, float64(y)+off[0], float64(x)+off[1]) >= centre
					if bits[p] {
						ones++
					}
				}
				transitions := 0
				for p := 0; p < lbpPoints; p++ {
					if bits[p] != bits[(p+1)%lbpPoints] {
						transitions++
					}
				}
				code := lbpPoints + 1
				if transitions <= 2 {
					code = ones
				}
				out[y*width+x] = float64(code) / (lbpPoints + 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// bilinear samples data at a fractional (row, col), clamping to the grid.
func bilinear(data []float64, width, height int, row, col float64) float64 {
	row = math.Max(0, math.Min(float64(height-1), row))
	col = math.Max(0, math.Min(float64(width-1), col))
	r0, c0 := int(math.Floor(row)), int(math.Floor(col))
	r1, c1 := min(r0+1, height-1), min(c0+1, width-1)
	fr, fc := row-float64(r0), col-float64(c0)

	top := lerp(data[r0*width+c0], data[r0*width+c1], fc)
	bottom := lerp(data[r1*width+c0], data[r1*width+c1], fc)
	return lerp(top, bottom, fr)
}

// lerp interpolates from a to b; equal endpoints return a exactly.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// grayscale averages the bands of a grid into a single band.
func grayscale(bands [][]float64) []float64 {
	if len(bands) == 0 {
		return nil
	}
	out := make([]float64, len(bands[0]))
	for _, b := range bands {
		for i, v := range b {
			out[i] += finiteOrZero(v)
		}
	}
	n := float64(len(bands))
	for i := range out {
		out[i] /= n
	}
	return out
}
