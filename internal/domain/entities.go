package domain

import "time"

// IngredientRecord is one curated entry of the ingredient knowledge base.
// Records are loaded once and shared read-only.
type IngredientRecord struct {
	ID            string `json:"id"`
	Name          string `json:"ingredient"`
	Category      string `json:"category"`
	EffectSummary string `json:"effect_summary"`
	HealthEffect  string `json:"health_effect"`
}

// MatchTier identifies which matching strategy resolved a candidate.
type MatchTier int

const (
	TierNone MatchTier = iota
	TierExact
	TierContainment
	TierSimilarity
)

func (t MatchTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierContainment:
		return "containment"
	case TierSimilarity:
		return "similarity"
	default:
		return "none"
	}
}

// MatchResult is the outcome of matching a single candidate name.
// Record is nil when the candidate is unmatched; Candidate always keeps the
// caller's original text.
type MatchResult struct {
	Candidate string
	Record    *IngredientRecord
	Tier      MatchTier
	Score     float64
}

func (m MatchResult) Matched() bool {
	return m.Record != nil
}

// Retrieval is the result of matching a list of candidates.
type Retrieval struct {
	Matched   []IngredientRecord `json:"matched"`
	Unmatched []string           `json:"unmatched"`
}

type IngredientDetail struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Effect    string `json:"effect"`
	RiskLevel string `json:"risk_level"`
}

type RAGStats struct {
	TotalIngredientsFound int      `json:"total_ingredients_found"`
	MatchedInDatabase     int      `json:"matched_in_database"`
	NotInDatabase         int      `json:"not_in_database"`
	IngredientsExtracted  []string `json:"ingredients_extracted"`
}

// Report is the health analysis returned for a scanned label.
type Report struct {
	Score             int                `json:"score"`
	Verdict           string             `json:"verdict"`
	Report            string             `json:"report"`
	IngredientsDetail []IngredientDetail `json:"ingredients_detail"`
	RAGStats          *RAGStats          `json:"rag_stats,omitempty"`
}

// Scan is a persisted analysis of one label image.
type Scan struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	FileName    string    `json:"file_name"`
	ImageDigest string    `json:"image_digest"`
	Knowledge   string    `json:"knowledge_fingerprint"`
	Report      Report    `json:"report"`
}
