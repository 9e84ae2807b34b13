package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"labelscan/internal/adapter/fs"
	"labelscan/internal/adapter/llm"
	"labelscan/internal/port"
)

func writeImages(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestBatch_ScansEveryImage(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, map[string]string{
		"b.png":            "image-b",
		"a.jpg":            "image-a",
		"nested/c.webp":    "image-c",
		"notes.txt":        "not an image",
		"skip/d.png":       "image-d",
		"nested/empty.png": "",
	})

	model := newModel()
	scanUC := NewScanUseCase(model, testMatcher(t), ScanOptions{})
	walker := fs.NewWalker([]string{"**/*.png", "**/*.jpg", "**/*.webp"}, []string{"skip/**"})
	batch := NewBatchUseCase(scanUC, walker, 3, nil)

	var calls int
	res, err := batch.Run(context.Background(), dir, func(processed, total int, current string) {
		calls++
		assert.Equal(t, 3, total)
		assert.LessOrEqual(t, processed, total)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "a.jpg", res.Items[0].Path)
	assert.Equal(t, "b.png", res.Items[1].Path)
	assert.Equal(t, "nested/c.webp", res.Items[2].Path)
	assert.Equal(t, 10.0, res.AverageScore())

	mimeTypes := map[string]bool{}
	for _, req := range model.Requests() {
		mimeTypes[req.MIMEType] = true
	}
	assert.True(t, mimeTypes["image/jpeg"])
	assert.True(t, mimeTypes["image/webp"])
}

func TestBatch_FailuresDoNotStopTheRun(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, map[string]string{"one.png": "1", "two.png": "2"})

	model := newModel()
	model.FailWith("analyze", errors.New("rate limited"))
	scanUC := NewScanUseCase(model, testMatcher(t), ScanOptions{})
	batch := NewBatchUseCase(scanUC, fs.NewWalker([]string{"**/*.png"}, nil), 1, nil)

	res, err := batch.Run(context.Background(), dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, res.Scanned)
	for _, item := range res.Items {
		assert.Nil(t, item.Scan)
		assert.Contains(t, item.Error, "rate limited")
	}
	assert.Equal(t, 0.0, res.AverageScore())
}

func TestBatch_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir, map[string]string{"one.png": "1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanUC := NewScanUseCase(newModel(), testMatcher(t), ScanOptions{})
	batch := NewBatchUseCase(scanUC, fs.NewWalker([]string{"**/*.png"}, nil), 2, nil)

	_, err := batch.Run(ctx, dir, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

var _ port.VisionModel = (*llm.MockModel)(nil)
