// Package handler serves the JSON API of the import pipeline.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/avalia-edu/avalia/internal/i18n"
	"github.com/avalia-edu/avalia/internal/importer"
	"github.com/avalia-edu/avalia/internal/sheet"
	"github.com/avalia-edu/avalia/internal/store"
)

// MaxUploadSize bounds the multipart body of an upload.
const MaxUploadSize = 32 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
	jobs  *importer.Manager
}

// New creates a new Handler.
func New(s *store.Store, jobs *importer.Manager) *Handler {
	return &Handler{store: s, jobs: jobs}
}

// Router returns the full HTTP stack: access log, panic recovery, CORS for the given
// origins and per-request localization defaulting to lang.
func (h *Handler) Router(lang string, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept-Language", "Content-Type"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))
	}
	r.Use(i18n.Middleware(lang))
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/saude", h.handleHealth)

		r.Get("/importacoes", h.handleListImports)
		r.Post("/importacoes", h.handleStartImport)
		r.Get("/importacoes/{jobID}", h.handleProgress)
		r.Get("/importacoes/{jobID}/resultado", h.handleResult)
		r.Post("/importacoes/{jobID}/pausar", h.handlePause)
		r.Post("/importacoes/{jobID}/retomar", h.handleResume)
		r.Post("/importacoes/{jobID}/cancelar", h.handleCancel)

		r.Get("/configuracoes/series", h.handleSeriesConfig)
		r.Get("/resultados/{year}", h.handleExport)
		r.Get("/resultados/{year}/presenca", h.handlePresence)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeErr(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error string `json:"error"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

// fail maps err to a status code and a localized message.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, i18n.T(ctx, "ErrJobNotFound"))
	case errors.Is(err, importer.ErrInvalidYear):
		writeErr(w, http.StatusBadRequest, i18n.T(ctx, "ErrInvalidYear"))
	case errors.Is(err, importer.ErrEmptySheet), errors.Is(err, sheet.ErrNoHeader):
		writeErr(w, http.StatusBadRequest, i18n.T(ctx, "ErrEmptySheet"))
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		writeErr(w, http.StatusBadRequest, i18n.T(ctx, "ErrUnsupportedFormat"))
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErr(w, http.StatusInternalServerError, i18n.T(ctx, "ErrInternal"))
	}
}

func yearParam(r *http.Request) (int, error) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 2100 {
		return 0, importer.ErrInvalidYear
	}
	return year, nil
}
