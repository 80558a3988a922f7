// Package pipeline runs a complete survey: detection on every source in
// parallel, then fusion, known-site comparison and validation.
//
// Sources run concurrently, and raster files within a source run on a
// bounded worker pool. Fusion waits for every source to finish. A file or
// document that fails is recorded as an ItemFailure and never aborts the
// run. When the context is cancelled the items that already finished are
// kept, fused and returned with Result.Partial set, alongside the context's
// error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/site-survey/internal/detection"
	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/fusion"
	"github.com/ironsheep/site-survey/internal/monitor"
	"github.com/ironsheep/site-survey/internal/raster"
	"github.com/ironsheep/site-survey/internal/textevidence"
)

// ErrNoAnalyzer is recorded against documents when no text analyzer is
// configured.
var ErrNoAnalyzer = errors.New("no text analyzer configured")

// Stage names used for monitoring.
const (
	StageDetection  = "detection"
	StageFusion     = "fusion"
	StageValidation = "validation"
)

// Run statuses counted in metrics.
const (
	RunOK         = "ok"
	RunPartial    = "partial"
	RunNoEvidence = "no_evidence"
	RunEmpty      = "empty"
)

// Config gathers the tunables of every stage.
type Config struct {
	Elevation  detection.ElevationConfig `json:"elevation"`
	Imagery    detection.ImageryConfig   `json:"imagery"`
	Text       textevidence.Config       `json:"text"`
	Fusion     fusion.Config             `json:"fusion"`
	Validation fusion.ValidationConfig   `json:"validation"`

	// KnownSites are compared against every candidate when non-empty.
	KnownSites []fusion.KnownSite `json:"known_sites,omitempty"`

	// KnownSiteRadiusMeters is the distance within which a candidate
	// matches a known site.
	KnownSiteRadiusMeters float64 `json:"known_site_radius_m"`

	// MaxPixels downsamples imagery files above this many pixels.
	MaxPixels int `json:"max_pixels"`

	// Workers bounds the raster files processed at once per source. Zero
	// means GOMAXPROCS.
	Workers int `json:"workers"`
}

// DefaultConfig returns the stock settings of every stage.
func DefaultConfig() Config {
	return Config{
		Elevation:             detection.DefaultElevationConfig(),
		Imagery:               detection.DefaultImageryConfig(),
		Text:                  textevidence.DefaultConfig(),
		Validation:            fusion.DefaultValidationConfig(),
		KnownSiteRadiusMeters: 1000,
	}
}

// NamedGrid is an in-memory raster with the name used as provenance.
type NamedGrid struct {
	Name string
	Grid *raster.Grid
}

// Input is one survey batch. Every field is optional.
type Input struct {
	ElevationGrids []NamedGrid
	ImageryGrids   []NamedGrid

	// ElevationFiles are ESRI ASCII grids; ImageryFiles are images with
	// optional world files.
	ElevationFiles []string
	ImageryFiles   []string

	Documents []evidence.Document

	// DocumentDir is a historical archive read with
	// textevidence.LoadDocuments, in addition to Documents.
	DocumentDir string
}

// Empty reports whether the batch carries no input at all.
func (in Input) Empty() bool {
	return len(in.ElevationGrids) == 0 && len(in.ImageryGrids) == 0 &&
		len(in.ElevationFiles) == 0 && len(in.ImageryFiles) == 0 &&
		len(in.Documents) == 0 && in.DocumentDir == ""
}

// Result is the outcome of one run.
type Result struct {
	RunID string

	// Status is one of the Run* values.
	Status string

	// Candidates are the validated candidates in fusion order.
	Candidates []evidence.SiteCandidate

	// Fused is the number of candidates before validation.
	Fused int

	// Observations counts observations per source.
	Observations map[evidence.Source]int

	// DocumentsProcessed counts documents whose analysis completed.
	DocumentsProcessed int

	Failures   []evidence.ItemFailure
	Validation fusion.Report
	Stages     []monitor.StageReport

	// Partial is set when the run was cancelled before every item finished.
	Partial bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithAnalyzer sets the text analyzer. Without one, documents are recorded
// as failures.
func WithAnalyzer(a textevidence.Analyzer) Option {
	return func(p *Pipeline) { p.analyzer = a }
}

// WithRecognizer enables OCR of scanned maps found in Input.DocumentDir.
func WithRecognizer(r textevidence.Recognizer) Option {
	return func(p *Pipeline) { p.recognizer = r }
}

// WithMonitor records stage timings and counters.
func WithMonitor(m *monitor.Monitor) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithCache shares a raster cache with other users.
func WithCache(c *raster.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// Pipeline runs surveys. It is safe for concurrent use.
type Pipeline struct {
	cfg        Config
	logger     *zap.Logger
	analyzer   textevidence.Analyzer
	recognizer textevidence.Recognizer
	monitor    *monitor.Monitor
	cache      *raster.Cache

	elevation *detection.ElevationDetector
	imagery   *detection.ImageryDetector
	extractor *textevidence.Extractor
	fusion    *fusion.Engine
	validator *fusion.Validator
}

// New creates a pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.cache == nil {
		p.cache = raster.NewCache()
	}
	p.elevation = detection.NewElevationDetector(cfg.Elevation, p.logger)
	p.imagery = detection.NewImageryDetector(cfg.Imagery, p.logger)
	if p.analyzer != nil {
		p.extractor = textevidence.NewExtractor(p.analyzer, cfg.Text, p.logger)
	}
	p.fusion = fusion.NewEngine(cfg.Fusion, p.logger)
	p.validator = fusion.NewValidator(cfg.Validation, p.logger)
	return p
}

// Cache returns the raster cache used for file inputs.
func (p *Pipeline) Cache() *raster.Cache { return p.cache }

// Config returns the pipeline settings.
func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) workers() int {
	if p.cfg.Workers > 0 {
		return p.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run surveys one batch.
//
// An empty batch yields an empty result and no error. When every source
// produced zero observations and no document could be processed the result
// is returned with an error wrapping evidence.ErrNoEvidenceFound. When ctx
// is cancelled the partial result is returned with ctx's error.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{
		RunID:        uuid.NewString(),
		Observations: make(map[evidence.Source]int, len(evidence.Sources)),
	}
	log := p.logger.With(zap.String("run_id", res.RunID))
	metrics := p.monitor.Metrics()

	if in.Empty() {
		log.Info("empty survey batch")
		res.Status = RunEmpty
		metrics.RecordRun(res.Status)
		return res, nil
	}

	end := p.monitor.Start(StageDetection)
	bySource, text := p.detect(ctx, in, res)
	res.Stages = append(res.Stages, end())

	total := 0
	for _, src := range evidence.Sources {
		n := len(bySource[src])
		res.Observations[src] = n
		total += n
		metrics.AddObservations(string(src), n)
	}
	res.DocumentsProcessed = text.Processed
	for _, f := range res.Failures {
		metrics.RecordFailure(string(f.Source), string(f.Category()))
	}
	res.Partial = ctx.Err() != nil

	end = p.monitor.Start(StageFusion)
	cands := p.fusion.Fuse(bySource)
	if len(p.cfg.KnownSites) > 0 {
		cands = fusion.Compare(cands, p.cfg.KnownSites, p.cfg.KnownSiteRadiusMeters)
	}
	res.Fused = len(cands)
	res.Stages = append(res.Stages, end())
	metrics.AddCandidates("fused", res.Fused)

	end = p.monitor.Start(StageValidation)
	res.Candidates, res.Validation = p.validator.Validate(cands)
	res.Stages = append(res.Stages, end())
	metrics.AddCandidates("validated", len(res.Candidates))

	log.Info("survey finished",
		zap.Int("observations", total),
		zap.Int("documents_processed", res.DocumentsProcessed),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("failures", len(res.Failures)),
		zap.Bool("partial", res.Partial))

	switch {
	case res.Partial:
		res.Status = RunPartial
		metrics.RecordRun(res.Status)
		return res, ctx.Err()
	case total == 0 && res.DocumentsProcessed == 0:
		res.Status = RunNoEvidence
		metrics.RecordRun(res.Status)
		return res, fmt.Errorf("run %s: %w", res.RunID, evidence.ErrNoEvidenceFound)
	}
	res.Status = RunOK
	metrics.RecordRun(res.Status)
	return res, nil
}

// rasterItem is one grid to analyse, in memory or on disk.
type rasterItem struct {
	name string
	grid *raster.Grid
	path string
}

// rasterOutcome is filled by the worker of one raster item.
type rasterOutcome struct {
	done         bool
	observations []evidence.Observation
	err          error
}

// detect runs every source concurrently and returns the observations per
// source in input order. Item failures are appended to res.
func (p *Pipeline) detect(ctx context.Context, in Input, res *Result) (map[evidence.Source][]evidence.Observation, textevidence.Result) {
	elevItems := collectItems(in.ElevationGrids, in.ElevationFiles)
	imgItems := collectItems(in.ImageryGrids, in.ImageryFiles)
	elevOut := make([]rasterOutcome, len(elevItems))
	imgOut := make([]rasterOutcome, len(imgItems))

	var (
		text         textevidence.Result
		textFailures []evidence.ItemFailure
	)

	var g errgroup.Group
	g.Go(func() error {
		p.runRasters(ctx, raster.KindElevation, elevItems, elevOut)
		return nil
	})
	g.Go(func() error {
		p.runRasters(ctx, raster.KindImagery, imgItems, imgOut)
		return nil
	})
	g.Go(func() error {
		text, textFailures = p.runText(ctx, in)
		return nil
	})
	_ = g.Wait()

	bySource := make(map[evidence.Source][]evidence.Observation, len(evidence.Sources))
	bySource[evidence.SourceElevation] = p.gather(ctx, evidence.SourceElevation, elevItems, elevOut, res)
	bySource[evidence.SourceImagery] = p.gather(ctx, evidence.SourceImagery, imgItems, imgOut, res)
	bySource[evidence.SourceText] = text.Observations
	res.Failures = append(res.Failures, textFailures...)
	return bySource, text
}

func collectItems(grids []NamedGrid, files []string) []rasterItem {
	items := make([]rasterItem, 0, len(grids)+len(files))
	for _, g := range grids {
		items = append(items, rasterItem{name: g.Name, grid: g.Grid})
	}
	for _, f := range files {
		items = append(items, rasterItem{name: f, path: f})
	}
	return items
}

// runRasters analyses items on the worker pool, writing to out by index.
func (p *Pipeline) runRasters(ctx context.Context, kind raster.Kind, items []rasterItem, out []rasterOutcome) {
	var g errgroup.Group
	g.SetLimit(p.workers())
	for i, item := range items {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			// a file that finishes after cancellation is still kept
			obs, err := p.analyseRaster(kind, item)
			out[i] = rasterOutcome{done: true, observations: obs, err: err}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pipeline) analyseRaster(kind raster.Kind, item rasterItem) ([]evidence.Observation, error) {
	grid := item.grid
	if grid == nil {
		var err error
		grid, err = p.cache.Load(kind, item.path, raster.LoadOptions{MaxPixels: p.cfg.MaxPixels})
		if err != nil {
			return nil, evidence.NewInputError(item.path, "load raster", err)
		}
	}

	var (
		obs []evidence.Observation
		err error
	)
	switch kind {
	case raster.KindElevation:
		obs, err = p.elevation.Detect(grid, item.name)
	case raster.KindImagery:
		obs, err = p.imagery.Detect(grid, item.name)
	}
	if err != nil {
		return nil, evidence.NewInputError(item.name, "detect", err)
	}
	return obs, nil
}

// gather concatenates the finished outcomes in input order and records
// failures, including items that never ran because ctx was cancelled.
func (p *Pipeline) gather(ctx context.Context, src evidence.Source, items []rasterItem, out []rasterOutcome, res *Result) []evidence.Observation {
	var obs []evidence.Observation
	for i, o := range out {
		switch {
		case o.err != nil:
			p.logger.Warn("raster skipped", zap.String("source", string(src)), zap.String("item", items[i].name), zap.Error(o.err))
			res.Failures = append(res.Failures, evidence.ItemFailure{Source: src, Item: items[i].name, Err: o.err})
		case o.done:
			obs = append(obs, o.observations...)
		case ctx.Err() != nil:
			res.Failures = append(res.Failures, evidence.ItemFailure{Source: src, Item: items[i].name, Err: ctx.Err()})
		}
	}
	return obs
}

// runText loads and analyses the documents of the batch.
func (p *Pipeline) runText(ctx context.Context, in Input) (textevidence.Result, []evidence.ItemFailure) {
	docs := append([]evidence.Document(nil), in.Documents...)
	var failures []evidence.ItemFailure
	if in.DocumentDir != "" {
		loaded, loadFailures, err := textevidence.LoadDocuments(ctx, in.DocumentDir, p.recognizer, p.logger)
		failures = append(failures, loadFailures...)
		if err != nil {
			failures = append(failures, evidence.ItemFailure{Source: evidence.SourceText, Item: in.DocumentDir, Err: err})
		}
		docs = append(docs, loaded...)
	}
	if len(docs) == 0 {
		return textevidence.Result{}, failures
	}

	if p.extractor == nil {
		for _, d := range docs {
			failures = append(failures, evidence.ItemFailure{Source: evidence.SourceText, Item: d.Ref(), Err: ErrNoAnalyzer})
		}
		p.logger.Warn("documents skipped", zap.Int("documents", len(docs)), zap.Error(ErrNoAnalyzer))
		return textevidence.Result{}, failures
	}

	res, _ := p.extractor.Extract(ctx, docs)
	return res, append(failures, res.Failures...)
}
