package knowledge

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
	"labelscan/internal/domain"
)

//go:embed data/ingredients.json
var defaultKnowledgeBase []byte

// DefaultSource names the bundled knowledge base in Sources.
const DefaultSource = "builtin:ingredients.json"

// KnowledgeBase is the loaded record set together with its index.
type KnowledgeBase struct {
	Index       *Index
	Records     []domain.IngredientRecord
	Sources     []string
	Fingerprint string
}

// Load reads every file matched by patterns, in pattern order, and builds
// the index. With no patterns the bundled knowledge base is used.
func Load(patterns []string) (*KnowledgeBase, error) {
	if len(patterns) == 0 {
		records, err := Decode(defaultKnowledgeBase, ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to decode bundled knowledge base: %w", err)
		}
		return newKnowledgeBase(records, []string{DefaultSource})
	}

	files, err := ExpandSources(patterns)
	if err != nil {
		return nil, err
	}

	var records []domain.IngredientRecord
	for _, path := range files {
		recs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	return newKnowledgeBase(records, files)
}

func newKnowledgeBase(records []domain.IngredientRecord, sources []string) (*KnowledgeBase, error) {
	idx, err := BuildIndex(records)
	if err != nil {
		return nil, fmt.Errorf("failed to build knowledge index: %w", err)
	}
	return &KnowledgeBase{
		Index:       idx,
		Records:     records,
		Sources:     sources,
		Fingerprint: Fingerprint(records),
	}, nil
}

// ExpandSources resolves file paths and doublestar patterns. Matches of a
// single pattern are sorted; a file matched twice is loaded once, at its
// first position.
func ExpandSources(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid knowledge source pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no knowledge base files match %q", pattern)
		}
		sort.Strings(matches)
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			files = append(files, abs)
		}
	}

	return files, nil
}

// LoadFile decodes one knowledge base file, choosing the format by
// extension.
func LoadFile(path string) ([]domain.IngredientRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	records, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base %s: %w", path, err)
	}
	return records, nil
}

// Decode parses a sequence of records. ext is a file extension such as
// ".json", ".yaml" or ".yml".
func Decode(data []byte, ext string) ([]domain.IngredientRecord, error) {
	var raw []rawRecord

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported knowledge base format: %q", ext)
	}

	records := make([]domain.IngredientRecord, len(raw))
	for i, r := range raw {
		records[i] = domain.IngredientRecord{
			ID:            string(r.ID),
			Name:          r.Ingredient,
			Category:      r.Category,
			EffectSummary: r.EffectSummary,
			HealthEffect:  r.HealthEffect,
		}
	}
	return records, nil
}

// Fingerprint returns a short digest of the record set. It changes whenever
// any record, or their order, changes.
func Fingerprint(records []domain.IngredientRecord) string {
	data, _ := json.Marshal(records)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

type rawRecord struct {
	ID            recordID `json:"id" yaml:"id"`
	Ingredient    string   `json:"ingredient" yaml:"ingredient"`
	Category      string   `json:"category" yaml:"category"`
	EffectSummary string   `json:"effect_summary" yaml:"effect_summary"`
	HealthEffect  string   `json:"health_effect" yaml:"health_effect"`
}

// recordID accepts both numeric and string identifiers.
type recordID string

func (id *recordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = recordID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id must be a number or string: %w", err)
		}
		*id = recordID(n.String())
	}
	return nil
}

func (id *recordID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: id must be a scalar", value.Line)
	}
	if value.Tag == "!!null" {
		*id = ""
		return nil
	}
	*id = recordID(value.Value)
	return nil
}
