package knowledge

import (
	"strings"

	"labelscan/internal/domain"
)

// DefaultThreshold is the minimum similarity score accepted by the
// similarity tier.
const DefaultThreshold = 0.65

// Matcher resolves candidate names against an Index using three tiers in
// strict order: exact lookup, containment, similarity.
type Matcher struct {
	index     *Index
	threshold float64
	scorer    Scorer
}

type Option func(*Matcher)

func WithThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.threshold = threshold
	}
}

// WithScorer replaces the similarity function used by the last tier.
func WithScorer(scorer Scorer) Option {
	return func(m *Matcher) {
		if scorer != nil {
			m.scorer = scorer
		}
	}
}

func NewMatcher(index *Index, opts ...Option) *Matcher {
	m := &Matcher{
		index:     index,
		threshold: DefaultThreshold,
		scorer:    Ratio,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

func (m *Matcher) Index() *Index {
	return m.index
}

// MatchOne resolves a single candidate name.
//
// The containment tier returns the first key in index order that contains,
// or is contained in, the candidate. It does not look for the longest or
// best containment hit, so table order decides between overlapping keys.
func (m *Matcher) MatchOne(candidate string) domain.MatchResult {
	normalized := Normalize(candidate)
	result := domain.MatchResult{Candidate: candidate}

	if _, ok := m.index.records[normalized]; ok {
		result.Record = m.index.record(normalized)
		result.Tier = domain.TierExact
		result.Score = 1.0
		return result
	}

	for _, key := range m.index.keys {
		if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
			result.Record = m.index.record(key)
			result.Tier = domain.TierContainment
			result.Score = 1.0
			return result
		}
	}

	bestScore := 0.0
	bestKey := ""
	found := false
	for _, key := range m.index.keys {
		score := m.scorer(normalized, key)
		if score > bestScore {
			bestScore = score
			bestKey = key
			found = true
		}
	}

	result.Score = bestScore
	if found && bestScore >= m.threshold {
		result.Record = m.index.record(bestKey)
		result.Tier = domain.TierSimilarity
	}
	return result
}

// Retrieve matches candidates in input order. Matched records are
// deduplicated by ID keeping first-seen order; a repeated match is absorbed
// rather than reported as unmatched. Unmatched candidates keep their
// original text.
func (m *Matcher) Retrieve(candidates []string) domain.Retrieval {
	out := domain.Retrieval{
		Matched:   make([]domain.IngredientRecord, 0),
		Unmatched: make([]string, 0),
	}
	seen := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		res := m.MatchOne(c)
		if !res.Matched() {
			out.Unmatched = append(out.Unmatched, c)
			continue
		}
		if _, dup := seen[res.Record.ID]; dup {
			continue
		}
		seen[res.Record.ID] = struct{}{}
		out.Matched = append(out.Matched, *res.Record)
	}

	return out
}

// MatchAll returns the per-candidate results, without deduplication.
func (m *Matcher) MatchAll(candidates []string) []domain.MatchResult {
	results := make([]domain.MatchResult, len(candidates))
	for i, c := range candidates {
		results[i] = m.MatchOne(c)
	}
	return results
}
