package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"labelscan/internal/adapter/fs"
	"labelscan/internal/domain"
)

// BatchUseCase scans every label image under a directory.
type BatchUseCase struct {
	scan    *ScanUseCase
	walker  *fs.Walker
	workers int
	logger  *zap.Logger
}

func NewBatchUseCase(scan *ScanUseCase, walker *fs.Walker, workers int, logger *zap.Logger) *BatchUseCase {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchUseCase{
		scan:    scan,
		walker:  walker,
		workers: workers,
		logger:  logger,
	}
}

// BatchItem is the outcome for one image. Scan is nil when Error is set.
type BatchItem struct {
	Path   string       `json:"path"`
	Scan   *domain.Scan `json:"scan,omitempty"`
	Cached bool         `json:"cached,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// BatchResult contains the results of a batch run. Items follow the
// walker's path order regardless of completion order.
type BatchResult struct {
	Items    []BatchItem   `json:"items"`
	Scanned  int           `json:"scanned"`
	Cached   int           `json:"cached"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// AverageScore returns the mean score of successful scans, or 0.
func (r *BatchResult) AverageScore() float64 {
	total, n := 0, 0
	for _, item := range r.Items {
		if item.Scan != nil {
			total += item.Scan.Report.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// ProgressFunc is called after each image with the number processed so far.
type ProgressFunc func(processed, total int, current string)

// Run scans the images under root. A failing image is recorded and does not
// stop the batch; cancelling ctx does.
func (u *BatchUseCase) Run(ctx context.Context, root string, progress ProgressFunc) (*BatchResult, error) {
	start := time.Now()

	images, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := &BatchResult{Items: make([]BatchItem, len(images))}
	var (
		mu        sync.Mutex
		processed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, img := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			item := u.scanOne(gctx, img)

			mu.Lock()
			defer mu.Unlock()
			result.Items[i] = item
			processed++
			if progress != nil {
				progress(processed, len(images), img.RelPath)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, item := range result.Items {
		switch {
		case item.Error != "":
			result.Failed++
		case item.Cached:
			result.Cached++
			result.Scanned++
		default:
			result.Scanned++
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (u *BatchUseCase) scanOne(ctx context.Context, img fs.LabelImage) BatchItem {
	item := BatchItem{Path: img.RelPath}

	data, mimeType, err := fs.ReadImage(img.Path)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	res, err := u.scan.Scan(ctx, ScanInput{FileName: img.RelPath, Image: data, MIMEType: mimeType})
	if err != nil {
		u.logger.Warn("scan failed", zap.String("file", img.RelPath), zap.Error(err))
		item.Error = err.Error()
		return item
	}
	item.Scan = &res.Scan
	item.Cached = res.Cached
	return item
}
