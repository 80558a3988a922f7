package detection

import "gonum.org/v1/gonum/floats"

// otsuBins is the histogram resolution used for threshold selection.
const otsuBins = 256

// OtsuThreshold picks the value that best separates data into two classes
// by maximizing the between-class variance of a 256-bin histogram.
//
// The returned threshold is a bin centre; callers classify with v > t.
// ok is false when data is empty or constant, in which case no split
// exists.
//
// # Algorithm
//
// With w0, w1 the cumulative class weights and m0, m1 the class means for a
// split after bin i, the threshold is the centre of the bin maximizing
// w0·w1·(m0 - m1)².
func OtsuThreshold(data []float64) (threshold float64, ok bool) {
	if len(data) == 0 {
		return 0, false
	}
	lo, hi := floats.Min(data), floats.Max(data)
	if !(hi > lo) {
		return lo, false
	}

	var hist [otsuBins]float64
	width := (hi - lo) / otsuBins
	for _, v := range data {
		bin := int((v - lo) / width)
		if bin >= otsuBins {
			bin = otsuBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		hist[bin]++
	}
	centre := func(i int) float64 { return lo + (float64(i)+0.5)*width }

	var totalW, totalM float64
	for i, c := range hist {
		totalW += c
		totalM += c * centre(i)
	}

	best, bestIdx := -1.0, 0
	var w0, m0sum float64
	for i := 0; i < otsuBins-1; i++ {
		w0 += hist[i]
		m0sum += hist[i] * centre(i)
		w1 := totalW - w0
		if w0 == 0 || w1 == 0 {
			continue
		}
		m0 := m0sum / w0
		m1 := (totalM - m0sum) / w1
		between := w0 * w1 * (m0 - m1) * (m0 - m1)
		if between > best {
			best, bestIdx = between, i
		}
	}
	return centre(bestIdx), true
}
