package httpapi

import (
	"embed"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"labelscan/internal/port"
	"labelscan/internal/usecase"
)

//go:embed static/index.html
var staticFS embed.FS

// DefaultMaxUploadBytes caps label uploads when no limit is configured.
const DefaultMaxUploadBytes = 10 * 1024 * 1024

// Options configures the HTTP API.
type Options struct {
	MaxUploadBytes    int64
	AllowedOrigins    []string
	AllowedExtensions []string
	History           port.HistoryStore // Optional; history routes answer 404 without it
	Logger            *zap.Logger
}

// Server serves the label analysis API.
type Server struct {
	scan      *usecase.ScanUseCase
	retriever port.Retriever
	history   port.HistoryStore
	opts      Options
	logger    *zap.Logger
}

func NewServer(scan *usecase.ScanUseCase, retriever port.Retriever, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{"png", "jpg", "jpeg", "webp"}
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		scan:      scan,
		retriever: retriever,
		history:   opts.History,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Handler wires up all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/retrieve", s.handleRetrieve)
	r.Get("/history", s.handleListHistory)
	r.Get("/history/{id}", s.handleGetHistory)

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(r)
}

// requestLogger logs one line per request once the response is written.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
