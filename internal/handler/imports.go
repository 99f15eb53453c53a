package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/avalia-edu/avalia/internal/i18n"
	"github.com/avalia-edu/avalia/internal/importer"
	"github.com/avalia-edu/avalia/internal/model"
)

func (h *Handler) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		writeErr(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrMissingFile"))
		return
	}
	file, header, err := r.FormFile("arquivo")
	if err != nil {
		writeErr(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrMissingFile"))
		return
	}
	defer file.Close()

	year, err := strconv.Atoi(strings.TrimSpace(r.FormValue("ano_letivo")))
	if err != nil {
		writeErr(w, http.StatusBadRequest, i18n.T(r.Context(), "ErrInvalidYear"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		fail(w, r, err)
		return
	}

	job, err := h.jobs.Start(r.Context(), header.Filename, data, year)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/importacoes/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limite"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []model.ImportJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.jobs.Progress(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.jobs.Result(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Pause)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Resume)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.jobs.Cancel)
}

// transition applies a lifecycle request and answers with the job as stored afterwards.
// A request the current status does not allow gets 409 naming that status.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (model.ImportJob, error)) {
	job, err := op(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, importer.ErrInvalidTransition) {
		writeErr(w, http.StatusConflict, i18n.Td(r.Context(), "ErrInvalidTransition", map[string]any{"Status": job.Status}))
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
