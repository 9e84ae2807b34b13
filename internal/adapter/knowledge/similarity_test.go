package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{a: "suger", b: "sugar", want: 0.8},
		{a: "water", b: "sugar", want: 0.4},
		{a: "water", b: "salt", want: 4.0 / 9.0},
		{a: "xyz", b: "abc", want: 0},
		{a: "salt", b: "salt", want: 1},
		{a: "", b: "", want: 1},
		{a: "aspartam", b: "aspartame", want: 16.0 / 17.0},
	}

	for _, tc := range tests {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, Ratio(tc.a, tc.b), 1e-9)
		})
	}
}

func TestRatio_MultibyteRunes(t *testing.T) {
	t.Parallel()

	// Each rune counts once regardless of its UTF-8 width.
	assert.InDelta(t, 0.6, Ratio("crème", "crema"), 1e-9)
}

func TestLevenshteinRatio(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.8, LevenshteinRatio("suger", "sugar"), 1e-9)
	assert.Equal(t, 1.0, LevenshteinRatio("", ""))
	assert.Equal(t, 0.0, LevenshteinRatio("abc", "xyz"))
}

func TestScorerByName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "ratio", "levenshtein"} {
		s, err := ScorerByName(name)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}

	_, err := ScorerByName("cosine")
	assert.Error(t, err)
}
