package knowledge

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"labelscan/internal/domain"
)

// Normalize lowercases and trims whitespace from an ingredient name. It is
// the key used for every comparison in the index.
func Normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// Index maps normalized ingredient names to records. It is immutable once
// built and safe for concurrent use without locking.
//
// Keys are kept in first-insertion order. A later record with the same
// normalized name replaces the earlier value but not its position.
type Index struct {
	keys    []string
	records map[string]domain.IngredientRecord
	size    int
}

// BuildIndex validates records and builds a lookup index. Every invalid
// record is reported; no index is returned if any record is invalid.
func BuildIndex(records []domain.IngredientRecord) (*Index, error) {
	if len(records) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}

	var errs *multierror.Error
	for i, rec := range records {
		if err := validateRecord(i, rec); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	idx := &Index{
		keys:    make([]string, 0, len(records)),
		records: make(map[string]domain.IngredientRecord, len(records)),
		size:    len(records),
	}
	for _, rec := range records {
		key := Normalize(rec.Name)
		if _, exists := idx.records[key]; !exists {
			idx.keys = append(idx.keys, key)
		}
		idx.records[key] = rec
	}

	return idx, nil
}

func validateRecord(pos int, rec domain.IngredientRecord) error {
	switch {
	case strings.TrimSpace(rec.ID) == "":
		return &InvalidRecordError{Position: pos, Reason: "missing id"}
	case Normalize(rec.Name) == "":
		return &InvalidRecordError{Position: pos, ID: rec.ID, Reason: "missing ingredient name"}
	}
	return nil
}

// Len returns the number of distinct normalized names.
func (idx *Index) Len() int {
	return len(idx.keys)
}

// SourceSize returns the number of records the index was built from,
// including those shadowed by a later duplicate name.
func (idx *Index) SourceSize() int {
	return idx.size
}

// Lookup returns the record stored under the normalized form of name.
func (idx *Index) Lookup(name string) (domain.IngredientRecord, bool) {
	rec, ok := idx.records[Normalize(name)]
	return rec, ok
}

// Keys returns the normalized names in iteration order.
func (idx *Index) Keys() []string {
	out := make([]string, len(idx.keys))
	copy(out, idx.keys)
	return out
}

// Records returns the indexed records in key order.
func (idx *Index) Records() []domain.IngredientRecord {
	out := make([]domain.IngredientRecord, 0, len(idx.keys))
	for _, k := range idx.keys {
		out = append(out, idx.records[k])
	}
	return out
}

// MatchOne matches a candidate with the default similarity scorer.
func (idx *Index) MatchOne(candidate string, threshold float64) domain.MatchResult {
	return NewMatcher(idx, WithThreshold(threshold)).MatchOne(candidate)
}

// Retrieve matches candidates with the default threshold and scorer.
func (idx *Index) Retrieve(candidates []string) domain.Retrieval {
	return NewMatcher(idx).Retrieve(candidates)
}

func (idx *Index) record(key string) *domain.IngredientRecord {
	rec := idx.records[key]
	return &rec
}
