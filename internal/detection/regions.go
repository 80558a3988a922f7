package detection

// pixel is a raster position.
type pixel struct {
	row, col int
}

// region is a connected set of pixels, listed in flood order.
type region struct {
	pixels        []pixel
	touchesBorder bool
}

func (r region) area() int { return len(r.pixels) }

// centroid returns the mean row and column of the region.
func (r region) centroid() (row, col float64) {
	for _, p := range r.pixels {
		row += float64(p.row)
		col += float64(p.col)
	}
	n := float64(len(r.pixels))
	return row / n, col / n
}

// mean averages values over the region's pixels.
func (r region) mean(values []float64, width int) float64 {
	var sum float64
	for _, p := range r.pixels {
		sum += values[p.row*width+p.col]
	}
	return sum / float64(len(r.pixels))
}

// labelRegions groups the set pixels of mask into 8-connected regions,
// ordered by their first pixel in row-major scan order.
func labelRegions(mask []bool, width, height int) []region {
	visited := make([]bool, len(mask))
	var regions []region
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			if mask[i] && !visited[i] {
				regions = append(regions, floodRegion(mask, visited, y, x, width, height))
			}
		}
	}
	return regions
}

// floodRegion performs an iterative 8-connected flood fill from (row, col),
// marking visited pixels.
//
// Uses a stack rather than recursion so large regions cannot overflow the
// goroutine stack.
func floodRegion(mask, visited []bool, row, col, width, height int) region {
	var r region
	stack := []pixel{{row: row, col: col}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.col < 0 || p.col >= width || p.row < 0 || p.row >= height {
			continue
		}
		i := p.row*width + p.col
		if visited[i] || !mask[i] {
			continue
		}
		visited[i] = true
		r.pixels = append(r.pixels, p)
		if p.row == 0 || p.col == 0 || p.row == height-1 || p.col == width-1 {
			r.touchesBorder = true
		}

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx != 0 || dy != 0 {
					stack = append(stack, pixel{row: p.row + dy, col: p.col + dx})
				}
			}
		}
	}
	return r
}

// extractRegions labels mask and keeps regions of at least minArea pixels.
func extractRegions(mask []bool, width, height, minArea int) []region {
	var kept []region
	for _, r := range labelRegions(mask, width, height) {
		if r.area() >= minArea {
			kept = append(kept, r)
		}
	}
	return kept
}
