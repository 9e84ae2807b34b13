package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"labelscan/config"
	"labelscan/internal/adapter/cache"
	"labelscan/internal/adapter/knowledge"
	"labelscan/internal/adapter/llm"
	"labelscan/internal/adapter/memstore"
	"labelscan/internal/adapter/store"
	"labelscan/internal/port"
	"labelscan/internal/usecase"
)

// app holds the collaborators shared by the scanning commands.
type app struct {
	kb      *knowledge.KnowledgeBase
	matcher *knowledge.Matcher
	model   port.VisionModel
	history port.HistoryStore // nil when history is disabled
	scan    *usecase.ScanUseCase
}

func newApp() (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()
	log := GetLogger()

	kb, matcher, err := loadKnowledge(cfg, dir, cfg.Knowledge.Threshold)
	if err != nil {
		return nil, err
	}
	log.Info("knowledge base loaded",
		zap.Int("records", len(kb.Records)),
		zap.Int("names", kb.Index.Len()),
		zap.String("fingerprint", kb.Fingerprint))

	model, err := newVisionModel(cfg, log)
	if err != nil {
		return nil, err
	}

	history, err := openHistory(cfg, dir, kb.Fingerprint, log)
	if err != nil {
		return nil, err
	}

	opts := usecase.ScanOptions{
		Knowledge: kb.Fingerprint,
		Params: usecase.ModelParams{
			ExtractTemperature: cfg.Model.ExtractTemperature,
			ExtractMaxTokens:   cfg.Model.ExtractMaxTokens,
			AnalyzeTemperature: cfg.Model.AnalyzeTemperature,
			AnalyzeMaxTokens:   cfg.Model.AnalyzeMaxTokens,
		},
		Logger: log,
	}
	opts.History = history
	if cfg.Cache.Enabled {
		opts.Cache = cache.NewReportCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}

	return &app{
		kb:      kb,
		matcher: matcher,
		model:   model,
		history: history,
		scan:    usecase.NewScanUseCase(model, matcher, opts),
	}, nil
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// loadKnowledge loads the configured knowledge base and builds a matcher
// with the configured scorer.
func loadKnowledge(cfg *config.Config, dir string, threshold float64) (*knowledge.KnowledgeBase, *knowledge.Matcher, error) {
	scorer, err := knowledge.ScorerByName(cfg.Knowledge.Scorer)
	if err != nil {
		return nil, nil, err
	}

	kb, err := knowledge.Load(resolveSources(dir, cfg.Knowledge.Sources))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	matcher := knowledge.NewMatcher(kb.Index,
		knowledge.WithThreshold(threshold),
		knowledge.WithScorer(scorer),
	)
	return kb, matcher, nil
}

// resolveSources makes relative source patterns relative to dir.
func resolveSources(dir string, patterns []string) []string {
	resolved := make([]string, len(patterns))
	for i, p := range patterns {
		if filepath.IsAbs(p) {
			resolved[i] = p
		} else {
			resolved[i] = filepath.Join(dir, p)
		}
	}
	return resolved
}

func newVisionModel(cfg *config.Config, log *zap.Logger) (port.VisionModel, error) {
	if offline {
		return llm.NewOfflineModel(), nil
	}

	switch cfg.Model.Provider {
	case "gemini":
		model, err := llm.NewGeminiFromEnv(cfg.Model.APIKeyEnv, llm.GeminiOptions{
			Model:      cfg.Model.Model,
			BaseURL:    cfg.Model.BaseURL,
			Timeout:    time.Duration(cfg.Model.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.Model.MaxRetries,
			RetryDelay: time.Duration(cfg.Model.RetryDelayMS) * time.Millisecond,
			Logger:     log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vision model: %w", err)
		}
		return model, nil
	case "mock":
		return llm.NewOfflineModel(), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.Model.Provider)
	}
}

// openHistory opens the configured history store, migrating the bolt
// schema when needed. It returns nil when history is disabled.
func openHistory(cfg *config.Config, dir, fingerprint string, log *zap.Logger) (port.HistoryStore, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	if cfg.History.Backend == "memory" {
		return memstore.NewHistoryStore(cfg.History.MaxScans), nil
	}

	path := cfg.HistoryDBPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	st, err := store.NewHistoryStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	status, err := st.CheckSchema(fingerprint)
	if err != nil {
		st.Close()
		return nil, err
	}
	if status.Incompatible {
		st.Close()
		return nil, fmt.Errorf("history store at %s: %s", path, status.Reason)
	}
	if status.NeedsMigration || status.KnowledgeChanged {
		log.Info("updating history schema", zap.String("reason", status.Reason))
		if err := st.Migrate(fingerprint); err != nil {
			st.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return st, nil
}
