package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"labelscan/internal/adapter/fs"
	"labelscan/internal/domain"
	"labelscan/internal/usecase"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok")) //nolint:errcheck
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		s.jsonError(w, "page unavailable", http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page) //nolint:errcheck
}

// --- analyze ---

type analyzeResponse struct {
	domain.Report
	ScanID string `json:"scan_id,omitempty"`
	Cached bool   `json:"cached,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		if isTooLarge(err) {
			s.jsonError(w, fmt.Sprintf("File is too large. Maximum size is %s.", formatSize(s.opts.MaxUploadBytes)), http.StatusRequestEntityTooLarge)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.jsonError(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		// A file input submitted without a selection arrives as a plain value.
		if r.MultipartForm != nil && len(r.MultipartForm.Value["image"]) > 0 {
			s.jsonError(w, "No file selected.", http.StatusBadRequest)
			return
		}
		s.jsonError(w, "No image file provided.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.jsonError(w, "No file selected.", http.StatusBadRequest)
		return
	}
	if !fs.AllowedFile(header.Filename, s.opts.AllowedExtensions) {
		s.jsonError(w, "Unsupported file type. Use "+allowedList(s.opts.AllowedExtensions)+".", http.StatusBadRequest)
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		s.jsonError(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	res, err := s.scan.Scan(r.Context(), usecase.ScanInput{
		FileName: header.Filename,
		Image:    image,
		MIMEType: uploadMIMEType(header),
	})
	if err != nil {
		var pe *usecase.ParseError
		switch {
		case errors.As(err, &pe):
			s.jsonError(w, "Failed to parse response. Raw: "+pe.Raw, http.StatusBadGateway, err)
		case errors.Is(err, usecase.ErrIncompleteReport):
			s.jsonError(w, "Model returned incomplete data. Please try again.", http.StatusBadGateway, err)
		default:
			s.jsonError(w, "Analysis failed: "+err.Error(), http.StatusInternalServerError, err)
		}
		return
	}

	jsonOK(w, analyzeResponse{
		Report: res.Scan.Report,
		ScanID: res.Scan.ID,
		Cached: res.Cached,
	})
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func uploadMIMEType(header *multipart.FileHeader) string {
	mt := header.Header.Get("Content-Type")
	if mt == "" || mt == "application/octet-stream" {
		return fs.MIMEType(header.Filename)
	}
	return mt
}

func allowedList(exts []string) string {
	upper := make([]string, len(exts))
	for i, e := range exts {
		upper[i] = strings.ToUpper(e)
	}
	if len(upper) == 1 {
		return upper[0]
	}
	return strings.Join(upper[:len(upper)-1], ", ") + ", or " + upper[len(upper)-1]
}

func formatSize(n int64) string {
	if n%(1024*1024) == 0 {
		return fmt.Sprintf("%d MB", n/(1024*1024))
	}
	return fmt.Sprintf("%d bytes", n)
}

// --- retrieve ---

type retrieveRequest struct {
	Ingredients []string `json:"ingredients"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	jsonOK(w, s.retriever.Retrieve(req.Ingredients))
}

// --- history ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, "history is disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	scans, err := s.history.List(limit)
	if err != nil {
		s.jsonError(w, "failed to list history", http.StatusInternalServerError, err)
		return
	}
	if scans == nil {
		scans = []domain.Scan{}
	}
	jsonOK(w, scans)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, "history is disabled", http.StatusNotFound)
		return
	}
	scan, err := s.history.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrScanNotFound) {
			s.jsonError(w, "scan not found", http.StatusNotFound)
			return
		}
		s.jsonError(w, "failed to get scan", http.StatusInternalServerError, err)
		return
	}
	jsonOK(w, scan)
}

// --- helpers ---

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func (s *Server) jsonError(w http.ResponseWriter, msg string, status int, errs ...error) {
	if len(errs) > 0 {
		s.logger.Error(msg, zap.Int("status", status), zap.Error(errs[0]))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
