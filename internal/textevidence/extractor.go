package textevidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/scoring"
)

// Config holds the tunables of the extractor.
type Config struct {
	// AcceptThreshold is the strict lower bound on the verification score.
	AcceptThreshold float64 `json:"accept_threshold"`

	// CallTimeout bounds every single analyzer attempt.
	CallTimeout time.Duration `json:"call_timeout"`

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `json:"max_retries"`

	// InitialBackoff is the first retry delay; later delays grow
	// exponentially.
	InitialBackoff time.Duration `json:"initial_backoff"`

	// Concurrency limits how many documents are analysed at once.
	Concurrency int `json:"concurrency"`

	// CacheTTL keeps successful analyzer responses for identical content.
	// Zero disables the cache.
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns the stock extractor settings.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold: 0.6,
		CallTimeout:     30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		Concurrency:     4,
		CacheTTL:        time.Hour,
	}
}

// Analyzer operation names, used in errors and cache keys.
const (
	opLocations = "locations"
	opContext   = "context"
)

// Result is the outcome of one extraction batch.
type Result struct {
	// Observations are the accepted mentions, in document order.
	Observations []evidence.Observation

	// Failures lists the documents that were skipped.
	Failures []evidence.ItemFailure

	// Processed counts documents whose analysis completed, whether or not
	// any mention was accepted.
	Processed int
}

// Extractor turns documents into text observations.
type Extractor struct {
	analyzer Analyzer
	cfg      Config
	logger   *zap.Logger
	memo     *cache.Cache
}

// NewExtractor creates an extractor around analyzer. A nil logger disables
// logging.
func NewExtractor(analyzer Analyzer, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Extractor{analyzer: analyzer, cfg: cfg, logger: logger.Named("text")}
	if cfg.CacheTTL > 0 {
		e.memo = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return e
}

// docOutcome is the result of analysing a single document.
type docOutcome struct {
	done         bool
	observations []evidence.Observation
	failure      *evidence.ItemFailure
}

// Extract analyses docs concurrently and returns the accepted observations
// in document order.
//
// A failing document is recorded in Result.Failures and never aborts the
// others. When ctx is cancelled the documents finished so far are kept in
// the result and ctx's error is returned alongside it.
func (e *Extractor) Extract(ctx context.Context, docs []evidence.Document) (Result, error) {
	outcomes := make([]docOutcome, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.Concurrency))
	for i, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcomes[i] = e.processDocument(gctx, doc)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i, o := range outcomes {
		switch {
		case o.failure != nil:
			res.Failures = append(res.Failures, *o.failure)
		case o.done:
			res.Processed++
			res.Observations = append(res.Observations, o.observations...)
		case ctx.Err() != nil:
			res.Failures = append(res.Failures, evidence.ItemFailure{
				Source: evidence.SourceText, Item: docs[i].Ref(), Err: ctx.Err(),
			})
		}
	}
	e.logger.Info("text extraction finished",
		zap.Int("documents", len(docs)),
		zap.Int("processed", res.Processed),
		zap.Int("observations", len(res.Observations)),
		zap.Int("failures", len(res.Failures)))
	return res, ctx.Err()
}

func (e *Extractor) processDocument(ctx context.Context, doc evidence.Document) docOutcome {
	fail := func(err error) docOutcome {
		e.logger.Warn("document skipped", zap.String("document", doc.Ref()), zap.Error(err))
		return docOutcome{failure: &evidence.ItemFailure{Source: evidence.SourceText, Item: doc.Ref(), Err: err}}
	}
	if err := doc.Validate(); err != nil {
		return fail(evidence.NewInputError(doc.Ref(), "invalid document", err))
	}

	raw, err := e.call(ctx, doc, opLocations, e.analyzer.ExtractLocations)
	if err != nil {
		return fail(err)
	}
	summary, err := e.call(ctx, doc, opContext, e.analyzer.Summarize)
	if err != nil {
		return fail(err)
	}

	period := scoring.ClassifyTimePeriod(summary)
	significance := scoring.ClassifySignificance(summary)

	var out []evidence.Observation
	for _, m := range ParseMentions(raw) {
		conf, ok := m.normalizedConfidence()
		if !ok || !m.valid() {
			e.logger.Debug("unusable mention", zap.String("document", doc.Ref()), zap.Any("mention", m))
			continue
		}
		score := scoring.Verification(conf, period, significance)
		if !scoring.Accept(score, e.cfg.AcceptThreshold) {
			continue
		}
		features := evidence.Features{
			"description":           m.Description,
			"historical_context":    summary,
			"time_period":           string(period),
			"cultural_significance": string(significance),
			"verification_score":    score,
			"document_type":         string(doc.Kind),
		}
		if doc.Date != nil {
			features["document_date"] = doc.Date.Format(time.DateOnly)
		}
		obs, err := evidence.NewObservation(evidence.SourceText,
			evidence.NewLocation(m.Longitude, m.Latitude), conf, features, doc.Ref())
		if err != nil {
			continue
		}
		out = append(out, obs)
	}
	return docOutcome{done: true, observations: out}
}

// call runs one analyzer operation with caching, a per-attempt timeout and
// exponential backoff between attempts.
func (e *Extractor) call(ctx context.Context, doc evidence.Document, op string, fn func(context.Context, string) (string, error)) (string, error) {
	key := cacheKey(op, doc.Content)
	if e.memo != nil {
		if v, ok := e.memo.Get(key); ok {
			return v.(string), nil
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.InitialBackoff
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(0, e.cfg.MaxRetries))), ctx)

	attempts := 0
	var out string
	err := backoff.Retry(func() error {
		attempts++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		}
		defer cancel()

		resp, err := fn(callCtx, doc.Content)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			var permanent *PermanentError
			if errors.As(err, &permanent) {
				return backoff.Permanent(err)
			}
			e.logger.Debug("analyzer attempt failed",
				zap.String("document", doc.Ref()),
				zap.String("op", op),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return err
		}
		out = resp
		return nil
	}, bounded)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return "", &evidence.ExternalServiceError{DocumentID: doc.Ref(), Op: op, Attempts: attempts, Err: err}
	}

	if e.memo != nil {
		e.memo.Set(key, out, cache.DefaultExpiration)
	}
	return out, nil
}

func cacheKey(op, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:%s", op, hex.EncodeToString(sum[:]))
}
