package knowledge

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"labelscan/internal/domain"
)

func rec(id, name string) domain.IngredientRecord {
	return domain.IngredientRecord{ID: id, Name: name, Category: "test"}
}

func mustIndex(t *testing.T, records ...domain.IngredientRecord) *Index {
	t.Helper()
	idx, err := BuildIndex(records)
	require.NoError(t, err)
	return idx
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercases", input: "Citric Acid", want: "citric acid"},
		{name: "trims", input: "  sugar \t", want: "sugar"},
		{name: "inner spacing kept", input: "Sea  Salt", want: "sea  salt"},
		{name: "whitespace only", input: " \n ", want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestBuildIndex_Empty(t *testing.T) {
	t.Parallel()

	_, err := BuildIndex(nil)
	assert.ErrorIs(t, err, ErrEmptyKnowledgeBase)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = BuildIndex([]domain.IngredientRecord{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestBuildIndex_InvalidRecords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []domain.IngredientRecord
		reason  string
	}{
		{
			name:    "missing name",
			records: []domain.IngredientRecord{rec("1", "Sugar"), rec("2", "")},
			reason:  "missing ingredient name",
		},
		{
			name:    "whitespace name",
			records: []domain.IngredientRecord{rec("1", "   ")},
			reason:  "missing ingredient name",
		},
		{
			name:    "missing id",
			records: []domain.IngredientRecord{rec("", "Salt")},
			reason:  "missing id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			idx, err := BuildIndex(tc.records)
			require.Error(t, err)
			assert.Nil(t, idx)
			assert.ErrorIs(t, err, ErrInvalidRecord)

			var recErr *InvalidRecordError
			require.True(t, errors.As(err, &recErr))
			assert.Equal(t, tc.reason, recErr.Reason)
		})
	}
}

func TestBuildIndex_ReportsEveryInvalidRecord(t *testing.T) {
	t.Parallel()

	_, err := BuildIndex([]domain.IngredientRecord{
		rec("1", ""),
		rec("2", "Salt"),
		rec("", "Water"),
	})
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)
	assert.Contains(t, merr.Errors[0].Error(), "record 0 (id 1)")
	assert.Contains(t, merr.Errors[1].Error(), "record 2")
}

func TestBuildIndex_DuplicateNameLastWriteWins(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t,
		rec("1", "Salt"),
		rec("2", "Sugar"),
		rec("3", " SALT "),
	)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 3, idx.SourceSize())
	assert.Equal(t, []string{"salt", "sugar"}, idx.Keys())

	got, ok := idx.Lookup("salt")
	require.True(t, ok)
	assert.Equal(t, "3", got.ID)

	records := idx.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "3", records[0].ID)
	assert.Equal(t, "2", records[1].ID)
}

func TestIndex_KeysIsACopy(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, rec("1", "Sugar"))
	keys := idx.Keys()
	keys[0] = "mutated"

	assert.Equal(t, []string{"sugar"}, idx.Keys())
}
