// Package httpapi serves the dashboard pages and the JSON read API.
package httpapi

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/ports"
)

//go:embed templates/*.html static/*
var assets embed.FS

// PageData is passed to every dashboard template
type PageData struct {
	Title string
	Page  string
	Site  string
	Event string
}

// Handler serves the read surface over the persisted snapshots
type Handler struct {
	snapshots ports.SnapshotReader
	pages     *template.Template
	site      string
	event     string
}

// NewHandler parses the embedded templates
func NewHandler(snapshots ports.SnapshotReader, site, event string) (*Handler, error) {
	pages, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		snapshots: snapshots,
		pages:     pages,
		site:      site,
		event:     event,
	}, nil
}

// page renders one of the dashboard templates
func (h *Handler) page(name, title string) http.HandlerFunc {
	data := PageData{Title: title, Page: name, Site: h.site, Event: h.event}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := h.pages.ExecuteTemplate(w, name+".html", data); err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("page", name).Msg("failed to render page")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}

// HandleData returns the series snapshot as a JSON array of rows
func (h *Handler) HandleData(w http.ResponseWriter, r *http.Request) {
	rows, err := h.snapshots.LoadSeries(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.SeriesRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleReport returns the report snapshot as persisted
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	raw, err := h.snapshots.LoadReport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// HandleHealth reports liveness and whether a report has been persisted yet
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_, err := h.snapshots.LoadReport(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"snapshot": err == nil,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrSnapshotUnavailable) {
		hlog.FromRequest(r).Warn().Err(err).Msg("snapshot unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:  "snapshot unavailable",
			Detail: err.Error(),
		})
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("failed to load snapshot")
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:  "internal error",
		Detail: err.Error(),
	})
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func staticFS() http.FileSystem {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
