package detection

import "math"

// Perimeter weights indexed by the neighbourhood code of a border pixel.
// The code is the pixel itself (1) plus 2 for each 4-neighbour and 10 for
// each diagonal neighbour that is also a border pixel.
var perimeterWeights = func() [50]float64 {
	var w [50]float64
	for _, code := range []int{5, 7, 15, 17, 25, 27} {
		w[code] = 1
	}
	for _, code := range []int{21, 33} {
		w[code] = math.Sqrt2
	}
	for _, code := range []int{13, 23} {
		w[code] = (1 + math.Sqrt2) / 2
	}
	return w
}()

// perimeter estimates the boundary length of r.
//
// # Algorithm
//
//  1. Border pixels are region pixels with at least one 4-neighbour outside
//     the region.
//  2. Each border pixel is coded by the border pixels around it:
//     1 for itself, 2 per horizontal/vertical neighbour, 10 per diagonal.
//  3. Straight runs, diagonal steps and corners receive weights 1, √2 and
//     (1+√2)/2; the perimeter is the sum over all border pixels.
func perimeter(r region, width, height int) float64 {
	inside := make(map[int]bool, len(r.pixels))
	for _, p := range r.pixels {
		inside[p.row*width+p.col] = true
	}
	in := func(row, col int) bool {
		if row < 0 || col < 0 || row >= height || col >= width {
			return false
		}
		return inside[row*width+col]
	}

	border := make(map[int]bool)
	for _, p := range r.pixels {
		if !in(p.row-1, p.col) || !in(p.row+1, p.col) || !in(p.row, p.col-1) || !in(p.row, p.col+1) {
			border[p.row*width+p.col] = true
		}
	}
	isBorder := func(row, col int) bool {
		if row < 0 || col < 0 || row >= height || col >= width {
			return false
		}
		return border[row*width+col]
	}

	var total float64
	for _, p := range r.pixels {
		row, col := p.row, p.col
		if !border[row*width+col] {
			continue
		}
		code := 1
		for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			if isBorder(row+d[0], col+d[1]) {
				code += 2
			}
		}
		for _, d := range [][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
			if isBorder(row+d[0], col+d[1]) {
				code += 10
			}
		}
		total += perimeterWeights[code]
	}
	return total
}

// circularity returns 4π·area/perimeter², capped at 1. A zero perimeter
// yields 0.
func circularity(area, perim float64) float64 {
	if perim <= 0 {
		return 0
	}
	return math.Min(1, 4*math.Pi*area/(perim*perim))
}

// vegetationAnomaly measures how far the mean index in a window of ±radius
// pixels around (row, col) departs from the whole-image mean, relative to
// that mean, capped to [0, 1].
func vegetationAnomaly(index []float64, width, height, row, col, radius int, globalMean float64) float64 {
	r0, r1 := max(0, row-radius), min(height, row+radius)
	c0, c1 := max(0, col-radius), min(width, col+radius)
	var sum float64
	n := 0
	for y := r0; y < r1; y++ {
		for x := c0; x < c1; x++ {
			sum += index[y*width+x]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	den := math.Max(math.Abs(globalMean), ndviEpsilon)
	return math.Min(1, math.Abs(sum/float64(n)-globalMean)/den)
}

// contour is a closed shape found in the thresholded vegetation index.
type contour struct {
	region
	perimeter   float64
	circularity float64
}

// findContours thresholds the smoothed index with Otsu and returns the
// enclosed foreground and background regions, those not touching the grid
// border, of at least minArea pixels whose circularity exceeds
// minCircularity.
func findContours(smoothed []float64, width, height, minArea int, minCircularity float64) []contour {
	thr, ok := OtsuThreshold(smoothed)
	if !ok {
		return nil
	}
	fg := make([]bool, len(smoothed))
	bg := make([]bool, len(smoothed))
	for i, v := range smoothed {
		fg[i] = v > thr
		bg[i] = !fg[i]
	}

	var out []contour
	for _, mask := range [][]bool{fg, bg} {
		for _, r := range extractRegions(mask, width, height, minArea) {
			if r.touchesBorder {
				continue
			}
			perim := perimeter(r, width, height)
			circ := circularity(float64(r.area()), perim)
			if circ > minCircularity {
				out = append(out, contour{region: r, perimeter: perim, circularity: circ})
			}
		}
	}
	return out
}
