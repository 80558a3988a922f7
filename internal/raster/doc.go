// Package raster provides the georeferenced numeric grids consumed by the
// site detectors.
//
// A Grid is a rectangular stack of equally sized float64 bands plus an affine
// Transform from pixel indices to geographic coordinates. Grids are immutable
// once constructed: constructors copy their inputs and accessors never hand
// out the internal slices.
//
// # Coordinate System
//
// Pixel indices are 0-based (row, col) pairs with (0,0) at the top-left
// cell, matching the image convention used throughout the repository:
//   - row: vertical position (0 = topmost row), valid range [0, height)
//   - col: horizontal position (0 = leftmost column), valid range [0, width)
//
// The affine transform follows the GDAL six-coefficient layout and
// always addresses the geographic centre of a cell:
//
//	lon = A*(col+0.5) + B*(row+0.5) + C
//	lat = D*(col+0.5) + E*(row+0.5) + F
//
// # Loading
//
// LoadElevation reads ESRI ASCII grids (.asc), whose header carries the
// transform. LoadImagery decodes raster images (PNG, JPEG, TIFF, BMP, GIF)
// into linear-light red, green and blue bands and picks up an ESRI world
// file (.pgw, .jgw, .tfw, .wld) when one sits next to the image.
//
// # Thread Safety
//
// Grid values are read-only and safe to share between goroutines. The Cache
// type is safe for concurrent use.
package raster
