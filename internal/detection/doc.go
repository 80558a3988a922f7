// Package detection turns raster grids into geolocated observations.
//
// Two detectors are provided, each a read-only-configured transform that
// can be called concurrently on independent grids:
//
//   - ElevationDetector: local elevation irregularities (candidate
//     earthworks) in a single-band digital elevation model
//   - ImageryDetector: spatially coherent vegetation anomalies and,
//     optionally, geometrically regular contours in multiband imagery
//
// # Algorithm Overview
//
// Both detectors follow the same shape:
//
//  1. Background: a Gaussian low-pass of the signal (elevation or
//     vegetation index)
//  2. Anomaly: pixels that depart from the background, with a statistical
//     (k·σ) or data-driven (Otsu) threshold
//  3. Grouping: non-maximum suppression for point anomalies, 8-connected
//     regions for area anomalies
//  4. Scoring: per-source confidence from the scoring package
//
// # Coordinate System
//
// Pixel indices are (row, col) with the origin at the top-left cell. Every
// observation is located at the geographic centre of its pixel, or of its
// region's centroid, through the grid's affine transform.
//
// # Confidence Scores
//
// Confidences are heuristic ranking signals in [0, 1], not calibrated
// probabilities:
//   - Elevation: residual magnitude, slope band and aspect
//   - Imagery: mean vegetation index, texture and area
//
// # Errors
//
// A grid with the wrong number of bands returns an error wrapping
// evidence.ErrBandCount; one without any finite value wraps
// evidence.ErrAllNaN. Degenerate arithmetic such as a zero index
// denominator is guarded and never surfaces.
package detection
