package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"labelscan/internal/adapter/cache"
	"labelscan/internal/domain"
	"labelscan/internal/port"
)

// ModelParams holds sampling settings for the two model passes.
type ModelParams struct {
	ExtractTemperature float64
	ExtractMaxTokens   int
	AnalyzeTemperature float64
	AnalyzeMaxTokens   int
}

// DefaultModelParams returns the settings used when none are configured.
func DefaultModelParams() ModelParams {
	return ModelParams{
		ExtractTemperature: 0.1,
		ExtractMaxTokens:   2048,
		AnalyzeTemperature: 0.3,
		AnalyzeMaxTokens:   4096,
	}
}

// ScanOptions holds the optional collaborators of a ScanUseCase.
type ScanOptions struct {
	Knowledge string             // Fingerprint of the loaded knowledge base
	Cache     *cache.ReportCache // Optional
	History   port.HistoryStore  // Optional
	Params    ModelParams
	Logger    *zap.Logger
}

// ScanUseCase runs the label analysis: extract ingredients from the image,
// retrieve knowledge for them, then ask for a report grounded on it.
type ScanUseCase struct {
	model     port.VisionModel
	retriever port.Retriever
	knowledge string
	cache     *cache.ReportCache
	history   port.HistoryStore
	params    ModelParams
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewScanUseCase(model port.VisionModel, retriever port.Retriever, opts ScanOptions) *ScanUseCase {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Params == (ModelParams{}) {
		opts.Params = DefaultModelParams()
	}
	return &ScanUseCase{
		model:     model,
		retriever: retriever,
		knowledge: opts.Knowledge,
		cache:     opts.Cache,
		history:   opts.History,
		params:    opts.Params,
		logger:    opts.Logger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// ScanInput is one label image to analyze.
type ScanInput struct {
	FileName string
	Image    []byte
	MIMEType string
}

// ScanResult is the outcome of a scan. Retrieval is empty when the report
// came from the cache.
type ScanResult struct {
	Scan      domain.Scan
	Retrieval domain.Retrieval
	Cached    bool
}

// Scan analyzes a label image. A report for an identical image and
// knowledge base is served from the cache or history when available.
func (u *ScanUseCase) Scan(ctx context.Context, in ScanInput) (*ScanResult, error) {
	if len(in.Image) == 0 {
		return nil, errors.New("image is empty")
	}
	if in.MIMEType == "" {
		in.MIMEType = "image/jpeg"
	}

	digest := cache.Digest(in.Image)
	log := u.logger.With(zap.String("file", in.FileName), zap.String("digest", digest[:12]))

	if report, ok := u.lookupPrevious(digest); ok {
		log.Info("serving cached report")
		scan, err := u.record(in.FileName, digest, report)
		if err != nil {
			return nil, err
		}
		return &ScanResult{Scan: scan, Cached: true}, nil
	}

	log.Info("pass 1: extracting ingredients from label")
	ingredients, err := u.Extract(ctx, in.Image, in.MIMEType)
	if err != nil {
		return nil, err
	}
	log.Info("ingredients extracted", zap.Int("count", len(ingredients)), zap.Strings("ingredients", ingredients))

	retrieval := u.retriever.Retrieve(ingredients)
	log.Info("knowledge retrieved",
		zap.Int("matched", len(retrieval.Matched)),
		zap.Int("unmatched", len(retrieval.Unmatched)),
		zap.Strings("unmatched_names", retrieval.Unmatched))

	log.Info("pass 2: generating grounded health report")
	report, err := u.Analyze(ctx, ingredients, retrieval, in.Image, in.MIMEType)
	if err != nil {
		return nil, err
	}

	if u.cache != nil {
		u.cache.Put(digest, u.knowledge, report)
	}

	scan, err := u.record(in.FileName, digest, report)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Scan: scan, Retrieval: retrieval}, nil
}

// Extract runs the first pass and returns the ingredient names printed on
// the label.
func (u *ScanUseCase) Extract(ctx context.Context, image []byte, mimeType string) ([]string, error) {
	raw, err := u.model.Generate(ctx, port.GenerateRequest{
		Purpose:         "extract",
		Prompt:          ExtractPrompt(),
		Image:           image,
		MIMEType:        mimeType,
		Temperature:     u.params.ExtractTemperature,
		MaxOutputTokens: u.params.ExtractMaxTokens,
		JSON:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract ingredients: %w", err)
	}
	u.logger.Debug("extraction output", zap.String("raw", preview(raw, 500)))

	return ParseIngredients(raw)
}

// Analyze runs the second pass and attaches retrieval statistics to the
// report.
func (u *ScanUseCase) Analyze(ctx context.Context, ingredients []string, retrieval domain.Retrieval, image []byte, mimeType string) (domain.Report, error) {
	prompt, err := RenderAnalysisPrompt(ingredients, retrieval)
	if err != nil {
		return domain.Report{}, err
	}

	raw, err := u.model.Generate(ctx, port.GenerateRequest{
		Purpose:         "analyze",
		Prompt:          prompt,
		Image:           image,
		MIMEType:        mimeType,
		Temperature:     u.params.AnalyzeTemperature,
		MaxOutputTokens: u.params.AnalyzeMaxTokens,
		JSON:            true,
	})
	if err != nil {
		return domain.Report{}, fmt.Errorf("analyze ingredients: %w", err)
	}
	u.logger.Debug("analysis output", zap.String("raw", preview(raw, 500)))

	report, err := ParseReport(raw)
	if err != nil {
		return domain.Report{}, err
	}

	report.RAGStats = &domain.RAGStats{
		TotalIngredientsFound: len(ingredients),
		MatchedInDatabase:     len(retrieval.Matched),
		NotInDatabase:         len(retrieval.Unmatched),
		IngredientsExtracted:  ingredients,
	}
	return report, nil
}

func (u *ScanUseCase) lookupPrevious(digest string) (domain.Report, bool) {
	if u.cache != nil {
		if report, ok := u.cache.Get(digest, u.knowledge); ok {
			return report, true
		}
	}
	if u.history == nil {
		return domain.Report{}, false
	}
	scan, err := u.history.FindByDigest(digest)
	if err != nil || scan.Knowledge != u.knowledge {
		return domain.Report{}, false
	}
	if u.cache != nil {
		u.cache.Put(digest, u.knowledge, scan.Report)
	}
	return scan.Report, true
}

func (u *ScanUseCase) record(fileName, digest string, report domain.Report) (domain.Scan, error) {
	scan := domain.Scan{
		ID:          u.newID(),
		CreatedAt:   u.now().UTC(),
		FileName:    fileName,
		ImageDigest: digest,
		Knowledge:   u.knowledge,
		Report:      report,
	}
	if u.history == nil {
		return scan, nil
	}
	if err := u.history.Put(scan); err != nil {
		return domain.Scan{}, fmt.Errorf("failed to save scan: %w", err)
	}
	return scan, nil
}
