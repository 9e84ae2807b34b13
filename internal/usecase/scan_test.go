package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"labelscan/internal/adapter/cache"
	"labelscan/internal/adapter/knowledge"
	"labelscan/internal/adapter/llm"
	"labelscan/internal/adapter/store"
	"labelscan/internal/domain"
)

const (
	extractOutput = `["Sugar", "Water", "Citric Acid (E330)", "sugar "]`
	analyzeOutput = "```json\n{\"score\": 12, \"verdict\": \"Moderate Risk\", \"report\": \"Sweet.\", \"ingredients_detail\": [{\"name\": \"Sugar\", \"risk_level\": \"bad\"}]}\n```"
)

func testMatcher(t *testing.T) *knowledge.Matcher {
	t.Helper()
	idx, err := knowledge.BuildIndex([]domain.IngredientRecord{
		{ID: "1", Name: "Sugar", Category: "Sweetener", EffectSummary: "Empty calories", HealthEffect: "Raises blood sugar."},
		{ID: "2", Name: "Citric Acid", Category: "Acidity Regulator", EffectSummary: "Generally safe", HealthEffect: "Found in citrus."},
	})
	require.NoError(t, err)
	return knowledge.NewMatcher(idx)
}

func newModel() *llm.MockModel {
	return llm.NewMockModel(map[string]string{
		"extract": extractOutput,
		"analyze": analyzeOutput,
	})
}

func TestScan_TwoPassFlow(t *testing.T) {
	model := newModel()
	uc := NewScanUseCase(model, testMatcher(t), ScanOptions{Knowledge: "fp"})
	uc.newID = func() string { return "scan-1" }
	uc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	res, err := uc.Scan(context.Background(), ScanInput{FileName: "label.png", Image: []byte("png-bytes"), MIMEType: "image/png"})
	require.NoError(t, err)
	assert.False(t, res.Cached)

	assert.Equal(t, "scan-1", res.Scan.ID)
	assert.Equal(t, "label.png", res.Scan.FileName)
	assert.Equal(t, cache.Digest([]byte("png-bytes")), res.Scan.ImageDigest)
	assert.Equal(t, "fp", res.Scan.Knowledge)

	report := res.Scan.Report
	assert.Equal(t, 10, report.Score)
	assert.Equal(t, "Moderate Risk", report.Verdict)
	require.NotNil(t, report.RAGStats)
	assert.Equal(t, 4, report.RAGStats.TotalIngredientsFound)
	assert.Equal(t, 2, report.RAGStats.MatchedInDatabase)
	assert.Equal(t, 1, report.RAGStats.NotInDatabase)
	assert.Equal(t, []string{"Sugar", "Water", "Citric Acid (E330)", "sugar"}, report.RAGStats.IngredientsExtracted)

	assert.Equal(t, []string{"Water"}, res.Retrieval.Unmatched)

	reqs := model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "extract", reqs[0].Purpose)
	assert.Equal(t, 0.1, reqs[0].Temperature)
	assert.Equal(t, 2048, reqs[0].MaxOutputTokens)
	assert.Equal(t, "image/png", reqs[0].MIMEType)
	assert.True(t, reqs[0].JSON)

	assert.Equal(t, "analyze", reqs[1].Purpose)
	assert.Equal(t, 0.3, reqs[1].Temperature)
	assert.Equal(t, 4096, reqs[1].MaxOutputTokens)
	assert.Contains(t, reqs[1].Prompt, "- **Citric Acid** | Category: Acidity Regulator")
	assert.Contains(t, reqs[1].Prompt, "## INGREDIENTS NOT IN DATABASE (use your general knowledge):\nWater\n")
	assert.Equal(t, []byte("png-bytes"), reqs[1].Image)
}

func TestScan_DefaultsMIMEType(t *testing.T) {
	model := newModel()
	uc := NewScanUseCase(model, testMatcher(t), ScanOptions{})

	_, err := uc.Scan(context.Background(), ScanInput{Image: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", model.Requests()[0].MIMEType)
}

func TestScan_EmptyImage(t *testing.T) {
	uc := NewScanUseCase(newModel(), testMatcher(t), ScanOptions{})
	_, err := uc.Scan(context.Background(), ScanInput{})
	assert.Error(t, err)
}

func TestScan_UsesCache(t *testing.T) {
	model := newModel()
	rc := cache.NewReportCache(10, time.Minute)
	uc := NewScanUseCase(model, testMatcher(t), ScanOptions{Knowledge: "fp", Cache: rc})

	first, err := uc.Scan(context.Background(), ScanInput{Image: []byte("same")})
	require.NoError(t, err)
	second, err := uc.Scan(context.Background(), ScanInput{Image: []byte("same")})
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Scan.Report, second.Scan.Report)
	assert.NotEqual(t, first.Scan.ID, second.Scan.ID)
	assert.Len(t, model.Requests(), 2)

	// A different knowledge base does not reuse the report.
	other := NewScanUseCase(model, testMatcher(t), ScanOptions{Knowledge: "fp2", Cache: rc})
	third, err := other.Scan(context.Background(), ScanInput{Image: []byte("same")})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, model.Requests(), 4)
}

func TestScan_RecordsHistoryAndReusesIt(t *testing.T) {
	st, err := store.NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate("fp"))

	model := newModel()
	uc := NewScanUseCase(model, testMatcher(t), ScanOptions{Knowledge: "fp", History: st})

	res, err := uc.Scan(context.Background(), ScanInput{FileName: "a.jpg", Image: []byte("img")})
	require.NoError(t, err)

	saved, err := st.Get(res.Scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", saved.FileName)
	assert.Equal(t, 10, saved.Report.Score)

	// No in-memory cache: the history lookup by digest serves the repeat.
	again, err := uc.Scan(context.Background(), ScanInput{FileName: "a-copy.jpg", Image: []byte("img")})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Len(t, model.Requests(), 2)

	n, err := st.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestScan_ModelErrors(t *testing.T) {
	t.Run("extract call fails", func(t *testing.T) {
		model := newModel()
		model.FailWith("extract", errors.New("quota exceeded"))
		uc := NewScanUseCase(model, testMatcher(t), ScanOptions{})

		_, err := uc.Scan(context.Background(), ScanInput{Image: []byte("x")})
		assert.ErrorContains(t, err, "extract ingredients: quota exceeded")
	})

	t.Run("extract output unparsable", func(t *testing.T) {
		model := llm.NewMockModel(map[string]string{"extract": "sorry, blurry image"})
		uc := NewScanUseCase(model, testMatcher(t), ScanOptions{})

		_, err := uc.Scan(context.Background(), ScanInput{Image: []byte("x")})
		assert.ErrorIs(t, err, ErrParseResponse)
	})

	t.Run("analysis incomplete", func(t *testing.T) {
		model := llm.NewMockModel(map[string]string{
			"extract": `["Sugar"]`,
			"analyze": `{"verdict": "Healthy"}`,
		})
		rc := cache.NewReportCache(10, time.Minute)
		uc := NewScanUseCase(model, testMatcher(t), ScanOptions{Cache: rc})

		_, err := uc.Scan(context.Background(), ScanInput{Image: []byte("x")})
		assert.ErrorIs(t, err, ErrIncompleteReport)
		assert.Equal(t, 0, rc.Size())
	})
}

func TestScan_NoIngredientsStillAnalyzes(t *testing.T) {
	model := llm.NewMockModel(map[string]string{
		"extract": `[]`,
		"analyze": `{"score": 5, "verdict": "Moderate Risk", "report": "Unreadable label."}`,
	})
	uc := NewScanUseCase(model, testMatcher(t), ScanOptions{})

	res, err := uc.Scan(context.Background(), ScanInput{Image: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scan.Report.RAGStats.TotalIngredientsFound)
	assert.Empty(t, res.Retrieval.Matched)
}
