// Package fusion combines per-source observations into site candidates and
// filters them.
//
// By default every observation becomes its own candidate: fusion is a plain
// concatenation in source order (elevation, imagery, text) and then emission
// order. With a positive merge radius, observations whose locations lie
// within that great-circle distance of each other, directly or through a
// chain of neighbours, are unioned into one candidate.
//
// Validation keeps candidates that lie inside the region of interest and
// pass the confidence and source-count gates. Known-site comparison
// annotates candidates near a documented site.
package fusion

import (
	"github.com/google/uuid"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"github.com/ironsheep/site-survey/internal/evidence"
)

// Config holds the fusion tunables.
type Config struct {
	// MergeRadiusMeters unions observations closer than this great-circle
	// distance. Zero disables merging.
	MergeRadiusMeters float64 `json:"merge_radius_m"`
}

// Engine fuses observations into candidates.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	newID  func() string
}

// NewEngine creates a fusion engine. A nil logger disables logging.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger.Named("fusion"), newID: uuid.NewString}
}

// Fuse combines the observations of every source into candidates, in
// source-then-emission order. Sources missing from bySource contribute
// nothing; unknown sources are ignored.
func (e *Engine) Fuse(bySource map[evidence.Source][]evidence.Observation) []evidence.SiteCandidate {
	var all []evidence.Observation
	for _, src := range evidence.Sources {
		all = append(all, bySource[src]...)
	}
	if len(all) == 0 {
		return nil
	}

	var groups [][]evidence.Observation
	if e.cfg.MergeRadiusMeters > 0 {
		groups = e.merge(all)
	} else {
		groups = make([][]evidence.Observation, len(all))
		for i, o := range all {
			groups[i] = []evidence.Observation{o}
		}
	}

	out := make([]evidence.SiteCandidate, 0, len(groups))
	for _, g := range groups {
		c, err := evidence.NewSiteCandidate(e.newID(), g...)
		if err != nil {
			// groups are never empty
			continue
		}
		out = append(out, c)
	}
	e.logger.Info("observations fused",
		zap.Int("observations", len(all)),
		zap.Int("candidates", len(out)),
		zap.Float64("merge_radius_m", e.cfg.MergeRadiusMeters))
	return out
}

// merge groups observations transitively by distance. Groups are ordered by
// their first member and keep their members in input order.
func (e *Engine) merge(all []evidence.Observation) [][]evidence.Observation {
	uf := newUnionFind(len(all))
	for i := range all {
		pi := all[i].Location().Point()
		for j := i + 1; j < len(all); j++ {
			if geo.Distance(pi, all[j].Location().Point()) <= e.cfg.MergeRadiusMeters {
				uf.union(i, j)
			}
		}
	}

	index := make(map[int]int)
	var groups [][]evidence.Observation
	for i, o := range all {
		root := uf.find(i)
		gi, ok := index[root]
		if !ok {
			gi = len(groups)
			index[root] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], o)
	}
	return groups
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the smaller index as root.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
