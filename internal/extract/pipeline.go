package extract

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/stalehq/staleness/internal/dateparse"
	"github.com/stalehq/staleness/internal/freshness"
	"github.com/stalehq/staleness/internal/metrics"
)

// PipelineConfig tunes candidate merging.
type PipelineConfig struct {
	// CorroborationWindow is how close two published dates must be for
	// one to corroborate the other.
	CorroborationWindow time.Duration
	// CorroborationBoost is added to the winner's confidence per
	// corroborating candidate.
	CorroborationBoost float64
	// MaxConfidence caps the boosted confidence.
	MaxConfidence float64
}

// DefaultPipelineConfig returns the standard merge tuning.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CorroborationWindow: 48 * time.Hour,
		CorroborationBoost:  0.05,
		MaxConfidence:       1.0,
	}
}

// Pipeline runs a fixed list of extractors over a document and merges
// their candidates into a single best answer.
type Pipeline struct {
	extractors []Extractor
	cfg        PipelineConfig
	logger     *zap.Logger
}

// NewPipeline builds a Pipeline over the given extractors.
func NewPipeline(extractors []Extractor, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{extractors: extractors, cfg: cfg, logger: logger}
}

// DefaultExtractors is the strategy set for documents already loaded in
// full, ordered strongest signal first.
func DefaultExtractors(parser *dateparse.Parser) []Extractor {
	return []Extractor{
		NewMetaExtractor(parser),
		NewJSONLDExtractor(parser),
		NewTimeElementExtractor(parser),
		NewHeuristicExtractor(parser),
		NewHeaderExtractor(parser),
	}
}

// DeepExtractors is the strategy set for capped-prefix fetches. The
// heuristic scan is swapped for the URL-path strategy: a truncated body
// rarely includes footers worth free-text scanning, but the URL is
// always complete.
func DeepExtractors(parser *dateparse.Parser, clock freshness.Clock) []Extractor {
	return []Extractor{
		NewMetaExtractor(parser),
		NewJSONLDExtractor(parser),
		NewTimeElementExtractor(parser),
		NewURLPathExtractor(clock),
		NewHeaderExtractor(parser),
	}
}

// Run executes every extractor and merges the results. A panicking
// extractor is logged and skipped, never fatal. Returns nil when no
// strategy produced a date.
func (p *Pipeline) Run(doc *Document) *freshness.DateCandidate {
	var candidates []*freshness.DateCandidate

	for _, ext := range p.extractors {
		c := p.runOne(ext, doc)
		if c == nil || !c.HasDate() {
			continue
		}
		metrics.ObserveExtraction(string(c.Source))
		candidates = append(candidates, c)
	}

	return p.merge(candidates)
}

func (p *Pipeline) runOne(ext Extractor, doc *Document) (candidate *freshness.DateCandidate) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("extractor panicked",
				zap.String("extractor", ext.Name()),
				zap.String("url", doc.URL),
				zap.Any("panic", r))
			candidate = nil
		}
	}()
	return ext.Extract(doc)
}

// merge picks the highest-confidence candidate, boosts it for agreement
// from other strategies, and backfills a missing modified date from the
// next-best candidate that has one.
func (p *Pipeline) merge(candidates []*freshness.DateCandidate) *freshness.DateCandidate {
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	best := *candidates[0]

	if best.Published != nil {
		for _, other := range candidates[1:] {
			if other.Published == nil {
				continue
			}
			if absDuration(best.Published.Sub(*other.Published)) <= p.cfg.CorroborationWindow {
				best.Confidence += p.cfg.CorroborationBoost
			}
		}
		if best.Confidence > p.cfg.MaxConfidence {
			best.Confidence = p.cfg.MaxConfidence
		}
	}

	if best.Modified == nil {
		for _, other := range candidates[1:] {
			if other.Modified != nil {
				best.Modified = other.Modified
				break
			}
		}
	}

	return &best
}
