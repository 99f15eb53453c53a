package handler

import (
	"net/http"

	"github.com/avalia-edu/avalia/internal/model"
)

type seriesConfigResp struct {
	Disciplines []model.SeriesDisciplineConfig `json:"disciplinas"`
	Levels      []model.LevelBand              `json:"niveis"`
}

func (h *Handler) handleSeriesConfig(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListSeriesConfig(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	bands, err := h.store.ListLevelBands(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	resp := seriesConfigResp{Disciplines: rows, Levels: bands}
	if resp.Disciplines == nil {
		resp.Disciplines = []model.SeriesDisciplineConfig{}
	}
	if resp.Levels == nil {
		resp.Levels = []model.LevelBand{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	export, err := h.store.ExportResults(r.Context(), year)
	if err != nil {
		fail(w, r, err)
		return
	}
	if export.Results == nil {
		export.Results = []model.StudentExport{}
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	summary, err := h.store.PresenceSummary(r.Context(), year)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
