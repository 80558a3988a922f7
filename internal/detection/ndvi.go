package detection

import "math"

// ndviEpsilon replaces denominators whose magnitude falls below it.
const ndviEpsilon = 1e-6

// VegetationIndex computes the normalized difference index
// (veg - red) / (veg + red) per pixel.
//
// Denominators smaller than ndviEpsilon in magnitude are replaced by it, so
// an all-equal or all-zero input yields 0 rather than failing. Results are
// clamped to [-1, 1]; non-finite inputs count as 0.
func VegetationIndex(red, veg []float64) []float64 {
	n := min(len(red), len(veg))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		r, v := finiteOrZero(red[i]), finiteOrZero(veg[i])
		den := v + r
		if math.Abs(den) < ndviEpsilon {
			den = ndviEpsilon
		}
		out[i] = math.Max(-1, math.Min(1, (v-r)/den))
	}
	return out
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
