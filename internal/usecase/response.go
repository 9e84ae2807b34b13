package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"labelscan/internal/domain"
)

var (
	// ErrParseResponse matches every *ParseError.
	ErrParseResponse = errors.New("failed to parse model response")

	// ErrIncompleteReport is returned when the analysis lacks a score,
	// verdict or report.
	ErrIncompleteReport = errors.New("model returned incomplete data")
)

// ParseError reports model output that is not valid JSON.
type ParseError struct {
	Stage string
	Raw   string // Up to 500 bytes of the model output, cut on a rune boundary
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s response: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParseResponse
}

var (
	fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?\\s*```")
	bracePattern = regexp.MustCompile(`(?s)[\{\[].*[\}\]]`)
)

// ExtractJSON pulls a JSON document out of model output. It prefers the
// body of a ``` fence, then the span from the first opening bracket to the
// last closing one, then the whole text.
func ExtractJSON(raw string) (string, error) {
	var candidate string
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		candidate = strings.TrimSpace(m[1])
	} else if m := bracePattern.FindString(raw); m != "" {
		candidate = strings.TrimSpace(m)
	} else {
		candidate = raw
	}

	if !json.Valid([]byte(candidate)) {
		var v any
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return "", err
	}
	return candidate, nil
}

// ParseIngredients decodes the extraction pass output. Anything other than
// a JSON array yields no ingredients. Null, false, zero and blank entries
// are dropped; other values are stringified and trimmed.
func ParseIngredients(raw string) ([]string, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return nil, &ParseError{Stage: "extract", Raw: preview(raw, 500), Err: err}
	}

	result := gjson.Parse(doc)
	ingredients := make([]string, 0)
	if !result.IsArray() {
		return ingredients, nil
	}

	result.ForEach(func(_, item gjson.Result) bool {
		var s string
		switch item.Type {
		case gjson.Null, gjson.False:
			return true
		case gjson.Number:
			if item.Num == 0 {
				return true
			}
			s = item.Raw
		case gjson.String:
			s = item.Str
		default:
			if item.IsArray() && len(item.Array()) == 0 {
				return true
			}
			if item.IsObject() && len(item.Map()) == 0 {
				return true
			}
			s = item.Raw
		}
		if s = strings.TrimSpace(s); s != "" {
			ingredients = append(ingredients, s)
		}
		return true
	})

	return ingredients, nil
}

// ParseReport decodes the analysis pass output. The score is clamped to
// [0,10].
func ParseReport(raw string) (domain.Report, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return domain.Report{}, &ParseError{Stage: "analysis", Raw: preview(raw, 500), Err: err}
	}

	result := gjson.Parse(doc)
	if !result.IsObject() {
		return domain.Report{}, ErrIncompleteReport
	}
	for _, field := range []string{"score", "verdict", "report"} {
		if !result.Get(field).Exists() {
			return domain.Report{}, fmt.Errorf("%w: missing %s", ErrIncompleteReport, field)
		}
	}

	score, err := parseScore(result.Get("score"))
	if err != nil {
		return domain.Report{}, fmt.Errorf("%w: %v", ErrIncompleteReport, err)
	}

	report := domain.Report{
		Score:             score,
		Verdict:           result.Get("verdict").String(),
		Report:            result.Get("report").String(),
		IngredientsDetail: make([]domain.IngredientDetail, 0),
	}
	result.Get("ingredients_detail").ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		report.IngredientsDetail = append(report.IngredientsDetail, domain.IngredientDetail{
			Name:      item.Get("name").String(),
			Category:  item.Get("category").String(),
			Effect:    item.Get("effect").String(),
			RiskLevel: item.Get("risk_level").String(),
		})
		return true
	})

	return report, nil
}

// parseScore returns the score clamped to [0,10]. Numbers are clamped
// before truncation so out-of-range values never overflow int.
func parseScore(v gjson.Result) (int, error) {
	switch v.Type {
	case gjson.Number:
		return int(math.Max(0, math.Min(10, v.Num))), nil
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		n, err := strconv.Atoi(s)
		if errors.Is(err, strconv.ErrRange) {
			if strings.HasPrefix(s, "-") {
				return 0, nil
			}
			return 10, nil
		}
		if err != nil {
			return 0, fmt.Errorf("score %q is not an integer", v.Str)
		}
		return clamp(n, 0, 10), nil
	default:
		return 0, fmt.Errorf("score has unexpected type %s", v.Type)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// preview returns at most n bytes of s without splitting a UTF-8 sequence.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
