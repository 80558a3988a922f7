package raster

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Kind distinguishes the two raster families handled by the loaders.
type Kind string

const (
	KindElevation Kind = "elevation"
	KindImagery   Kind = "imagery"
)

// LoadOptions tunes how imagery files are turned into grids.
type LoadOptions struct {
	// MaxPixels downsamples imagery whose width*height exceeds it, keeping the
	// aspect ratio and rescaling the transform. Zero disables downsampling.
	MaxPixels int
}

// Cache provides thread-safe caching of loaded grids to avoid redundant disk
// reads when the same raster is analysed more than once.
//
// Grids are keyed by kind, path and load options. Cached grids remain in
// memory until removed with Evict or Clear.
type Cache struct {
	mu    sync.RWMutex
	grids map[string]*Grid
}

// NewCache creates an empty grid cache.
func NewCache() *Cache {
	return &Cache{grids: make(map[string]*Grid)}
}

func cacheKey(kind Kind, path string, opts LoadOptions) string {
	return fmt.Sprintf("%s|%d|%s", kind, opts.MaxPixels, path)
}

// Load returns the grid for path from the cache, reading it from disk on a
// miss.
func (c *Cache) Load(kind Kind, path string, opts LoadOptions) (*Grid, error) {
	key := cacheKey(kind, path, opts)
	c.mu.RLock()
	if g, ok := c.grids[key]; ok {
		c.mu.RUnlock()
		return g, nil
	}
	c.mu.RUnlock()

	var (
		g   *Grid
		err error
	)
	switch kind {
	case KindElevation:
		g, err = LoadElevation(path)
	case KindImagery:
		g, err = LoadImagery(path, opts)
	default:
		return nil, fmt.Errorf("unknown raster kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.grids[key] = g
	c.mu.Unlock()
	return g, nil
}

// Evict removes every cached grid loaded from path.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.grids {
		if strings.HasSuffix(key, "|"+path) {
			delete(c.grids, key)
		}
	}
}

// Clear removes all grids from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.grids = make(map[string]*Grid)
	c.mu.Unlock()
}

// Len returns the number of cached grids.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.grids)
}

// LoadElevation reads a single-band digital elevation model from an ESRI
// ASCII grid file. NODATA cells become NaN.
func LoadElevation(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open elevation raster: %w", err)
	}
	defer f.Close()

	g, err := ReadESRIASCII(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode elevation raster %s: %w", filepath.Base(path), err)
	}
	return g, nil
}

// ReadESRIASCII decodes an ESRI ASCII grid.
//
// The header accepts ncols, nrows, xllcorner|xllcenter, yllcorner|yllcenter,
// cellsize and the optional nodata_value, in any order and case. Data rows
// follow top to bottom.
func ReadESRIASCII(r io.Reader) (*Grid, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	header := make(map[string]float64)
	var values []float64
	inData := false

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if !inData {
			if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
				if len(fields) != 2 {
					return nil, fmt.Errorf("malformed header line %q", scanner.Text())
				}
				v, err := strconv.ParseFloat(fields[1], 64)
				if err != nil {
					return nil, fmt.Errorf("header %s: %w", fields[0], err)
				}
				header[strings.ToLower(fields[0])] = v
				continue
			}
			inData = true
		}
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("cell %d: %w", len(values), err)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	ncols, okC := header["ncols"]
	nrows, okR := header["nrows"]
	cell, okS := header["cellsize"]
	if !okC || !okR || !okS {
		return nil, fmt.Errorf("%w: header must define ncols, nrows and cellsize", ErrInvalidShape)
	}
	width, height := int(ncols), int(nrows)

	var west, south float64
	switch {
	case hasKey(header, "xllcorner"):
		west = header["xllcorner"]
	case hasKey(header, "xllcenter"):
		west = header["xllcenter"] - cell/2
	}
	switch {
	case hasKey(header, "yllcorner"):
		south = header["yllcorner"]
	case hasKey(header, "yllcenter"):
		south = header["yllcenter"] - cell/2
	}

	if nodata, ok := header["nodata_value"]; ok {
		for i, v := range values {
			if v == nodata {
				values[i] = math.NaN()
			}
		}
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("%w: got %d cells, header declares %dx%d", ErrInvalidShape, len(values), width, height)
	}

	t := FromOrigin(west, south+float64(height)*cell, cell, cell)
	return New(width, height, [][]float64{values}, t)
}

func hasKey(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}

// LoadImagery decodes an image file into three linear-light bands (red,
// green, blue) scaled to [0, 1].
//
// Gamma-encoded sRGB samples are linearized so that band ratios such as the
// vegetation index behave like reflectance ratios. When a world file is found
// next to the image it provides the transform; otherwise the Identity
// transform is used.
func LoadImagery(path string, opts LoadOptions) (*Grid, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode imagery raster: %w", err)
	}

	t := Identity
	if wf, ok := findWorldFile(path); ok {
		t, err = ReadWorldFile(wf)
		if err != nil {
			return nil, err
		}
	}
	return FromImage(img, t, opts), nil
}

// FromImage converts a decoded image into a three-band linear RGB grid,
// downsampling it first when it exceeds opts.MaxPixels.
func FromImage(img image.Image, t Transform, opts LoadOptions) *Grid {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if opts.MaxPixels > 0 && width*height > opts.MaxPixels {
		factor := math.Sqrt(float64(width*height) / float64(opts.MaxPixels))
		newW := max(1, int(float64(width)/factor))
		newH := max(1, int(float64(height)/factor))
		img = transform.Resize(img, newW, newH, transform.Linear)
		t = t.Scaled(float64(width)/float64(newW), float64(height)/float64(newH))
		bounds = img.Bounds()
		width, height = newW, newH
	}

	n := width * height
	red := make([]float64, n)
	green := make([]float64, n)
	blue := make([]float64, n)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c, _ := colorful.MakeColor(img.At(x+bounds.Min.X, y+bounds.Min.Y))
			r, g, b := c.LinearRgb()
			i := y*width + x
			red[i], green[i], blue[i] = r, g, b
		}
	}
	return &Grid{width: width, height: height, bands: [][]float64{red, green, blue}, transform: t}
}

// findWorldFile looks for an ESRI world file next to an image.
func findWorldFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.TrimSuffix(path, filepath.Ext(path))

	candidates := []string{".wld"}
	switch ext {
	case ".png":
		candidates = append([]string{".pgw", ".pngw"}, candidates...)
	case ".jpg", ".jpeg":
		candidates = append([]string{".jgw", ".jpgw"}, candidates...)
	case ".tif", ".tiff":
		candidates = append([]string{".tfw", ".tifw"}, candidates...)
	}
	for _, c := range candidates {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// ReadWorldFile parses an ESRI world file. The six lines are A, D, B, E and
// the x/y of the centre of the top-left pixel; the result is converted to the
// corner-based Transform used by Grid.
func ReadWorldFile(path string) (Transform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transform{}, fmt.Errorf("failed to read world file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 6 {
		return Transform{}, fmt.Errorf("world file %s: expected 6 values, got %d", filepath.Base(path), len(fields))
	}
	var v [6]float64
	for i := 0; i < 6; i++ {
		v[i], err = strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return Transform{}, fmt.Errorf("world file %s line %d: %w", filepath.Base(path), i+1, err)
		}
	}
	a, d, b, e, cx, cy := v[0], v[1], v[2], v[3], v[4], v[5]
	return Transform{
		A: a,
		B: b,
		C: cx - a/2 - b/2,
		D: d,
		E: e,
		F: cy - d/2 - e/2,
	}, nil
}

// Info contains metadata about a raster file without its cell values.
type Info struct {
	// Kind is the raster family the file was read as.
	Kind Kind `json:"kind"`

	// Width is the number of columns after any downsampling.
	Width int `json:"width"`

	// Height is the number of rows after any downsampling.
	Height int `json:"height"`

	// Bands is the number of bands.
	Bands int `json:"bands"`

	// Transform is the pixel to geographic transform.
	Transform Transform `json:"transform"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadInfo loads a raster through the cache and reports its metadata.
func LoadInfo(cache *Cache, kind Kind, path string, opts LoadOptions) (*Info, error) {
	g, err := cache.Load(kind, path, opts)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &Info{
		Kind:          kind,
		Width:         g.Width(),
		Height:        g.Height(),
		Bands:         g.NumBands(),
		Transform:     g.Transform(),
		FileSizeBytes: stat.Size(),
	}, nil
}
