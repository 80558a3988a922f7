package raster

import "math"

// Smooth applies a Gaussian low-pass filter with the given sigma (in pixels)
// to a row-major width x height array and returns a new array.
//
// The filter is separable: a 1-D kernel truncated at four standard
// deviations is run over the rows and then over the columns. Border pixels
// use clamped (replicated) edge values, so the output has the same size as
// the input. A non-positive sigma returns an unmodified copy.
func Smooth(data []float64, width, height int, sigma float64) []float64 {
	out := append([]float64(nil), data...)
	if sigma <= 0 || width == 0 || height == 0 {
		return out
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	tmp := make([]float64, len(data))
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				px := clamp(x+k, 0, width-1)
				sum += data[row+px] * kernel[k+radius]
			}
			tmp[row+x] = sum
		}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				py := clamp(y+k, 0, height-1)
				sum += tmp[py*width+x] * kernel[k+radius]
			}
			out[y*width+x] = sum
		}
	}
	return out
}

// LocalVariance returns the Gaussian-weighted local variance E[v^2] - E[v]^2
// of a row-major array. Negative values produced by rounding are clamped to
// zero.
func LocalVariance(data []float64, width, height int, sigma float64) []float64 {
	sq := make([]float64, len(data))
	for i, v := range data {
		sq[i] = v * v
	}
	meanSq := Smooth(sq, width, height, sigma)
	mean := Smooth(data, width, height, sigma)
	out := make([]float64, len(data))
	for i := range out {
		v := meanSq[i] - mean[i]*mean[i]
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

// gaussianKernel returns normalized 1-D Gaussian weights truncated at four
// standard deviations.
func gaussianKernel(sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// clamp constrains an integer value to the range [min, max].
// Used for boundary handling in convolution operations.
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
