package usecase

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain array", raw: `["Water", "Sugar"]`, want: `["Water", "Sugar"]`},
		{name: "json fence", raw: "```json\n[\"Salt\"]\n```", want: `["Salt"]`},
		{name: "bare fence", raw: "Here you go:\n```\n{\"score\": 3}\n```\nThanks", want: `{"score": 3}`},
		{name: "embedded object", raw: `Sure! {"score": 4, "verdict": "Healthy"} Hope this helps.`, want: `{"score": 4, "verdict": "Healthy"}`},
		{name: "padded", raw: "  \n[1]\n ", want: `[1]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractJSON(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "no json here", "{broken", "```json\n{\"a\": }\n```"} {
		_, err := ExtractJSON(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseIngredients(t *testing.T) {
	t.Parallel()

	got, err := ParseIngredients(`["Water", " Sugar ", "", "  ", null, false, 0, 330, {}, [], "Citric Acid (E330)"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Water", "Sugar", "330", "Citric Acid (E330)"}, got)
}

func TestParseIngredients_DropsWhitespaceOnlyItems(t *testing.T) {
	t.Parallel()

	got, err := ParseIngredients(`["Sugar", " ", "\t\n", "Salt"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sugar", "Salt"}, got)
}

func TestParseIngredients_NotAnArray(t *testing.T) {
	t.Parallel()

	got, err := ParseIngredients(`{"ingredients": ["Water"]}`)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseIngredients_Invalid(t *testing.T) {
	t.Parallel()

	raw := "I could not read the label" + strings.Repeat(".", 600)
	_, err := ParseIngredients(raw)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseResponse)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "extract", perr.Stage)
	assert.Len(t, perr.Raw, 500)
}

func TestParseReport(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{
  "score": 7,
  "verdict": "Moderate Risk",
  "report": "Mostly fine.",
  "ingredients_detail": [
    {"name": "Sugar", "category": "Sweetener", "effect": "Empty calories", "risk_level": "bad"},
    "not an object",
    {"name": "Water"}
  ]
}` + "\n```"

	report, err := ParseReport(raw)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Score)
	assert.Equal(t, "Moderate Risk", report.Verdict)
	assert.Equal(t, "Mostly fine.", report.Report)
	require.Len(t, report.IngredientsDetail, 2)
	assert.Equal(t, "bad", report.IngredientsDetail[0].RiskLevel)
	assert.Equal(t, "Water", report.IngredientsDetail[1].Name)
	assert.Nil(t, report.RAGStats)
}

func TestParseReport_Score(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		score string
		want  int
	}{
		{name: "above range", score: `14`, want: 10},
		{name: "below range", score: `-3`, want: 0},
		{name: "fraction truncates", score: `6.9`, want: 6},
		{name: "numeric string", score: `"8"`, want: 8},
		{name: "huge number", score: `1e20`, want: 10},
		{name: "huge negative number", score: `-1e20`, want: 0},
		{name: "overflowing string", score: `"99999999999999999999"`, want: 10},
		{name: "overflowing negative string", score: `"-99999999999999999999"`, want: 0},
		{name: "string above range", score: `"42"`, want: 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			report, err := ParseReport(`{"score": ` + tc.score + `, "verdict": "v", "report": "r"}`)
			require.NoError(t, err)
			assert.Equal(t, tc.want, report.Score)
			assert.NotNil(t, report.IngredientsDetail)
		})
	}
}

func TestPreview_KeepsRunesWhole(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", preview("abc", 10))
	assert.Equal(t, "ab", preview("abc", 2))
	// "é" is two bytes; cutting at 2 would split it.
	assert.Equal(t, "a", preview("aéb", 2))
	assert.Equal(t, "aé", preview("aéb", 3))
	assert.Equal(t, "", preview("日本", 2))
}

func TestParseReport_RawPreviewIsValidUTF8(t *testing.T) {
	t.Parallel()

	raw := "x" + strings.Repeat("é", 400) + " not json"
	_, err := ParseReport(raw)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.LessOrEqual(t, len(pe.Raw), 500)
	assert.True(t, utf8.ValidString(pe.Raw))
}

func TestParseReport_Incomplete(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`{"verdict": "Healthy", "report": "ok"}`,
		`{"score": 5, "report": "ok"}`,
		`{"score": 5, "verdict": "Healthy"}`,
		`{"score": "high", "verdict": "Healthy", "report": "ok"}`,
		`[{"score": 5, "verdict": "Healthy", "report": "ok"}]`,
	} {
		_, err := ParseReport(raw)
		assert.ErrorIs(t, err, ErrIncompleteReport, raw)
	}
}

func TestParseReport_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParseReport("the model is sorry")
	assert.ErrorIs(t, err, ErrParseResponse)
}
