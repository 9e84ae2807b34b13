package port

import "labelscan/internal/domain"

// Retriever matches free-text ingredient names against the knowledge base.
type Retriever interface {
	// MatchOne resolves a single candidate. It never fails; an unknown name
	// comes back as an unmatched result.
	MatchOne(candidate string) domain.MatchResult

	// Retrieve matches every candidate in order, deduplicating matched
	// records by ID.
	Retrieve(candidates []string) domain.Retrieval
}
