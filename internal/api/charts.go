package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsassist/opsassist/internal/charts"
	"github.com/opsassist/opsassist/internal/config"
)

func handleListCharts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Charts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHARTS_NOT_CONFIGURED", "charts are not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charts": deps.Charts.Charts()})
}

func handleRunChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Charts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHARTS_NOT_CONFIGURED", "charts are not configured", false, nil)
		return
	}
	key := chi.URLParam(r, "key")
	table, err := deps.Charts.Run(r.Context(), key)
	if err != nil {
		if errors.Is(err, charts.ErrUnknownChart) {
			writeError(r.Context(), w, http.StatusNotFound, "CHART_NOT_FOUND", err.Error(), false, map[string]any{"key": key})
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "CHART_QUERY_FAILED", err.Error(), true, map[string]any{"key": key})
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func handleTotalTickets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Charts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHARTS_NOT_CONFIGURED", "charts are not configured", false, nil)
		return
	}
	total, err := deps.Charts.TotalTickets(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "CHART_QUERY_FAILED", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_tickets": total})
}

func handleSchema(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database":       cfg.Dataset.Database,
		"table":          cfg.Dataset.Table,
		"allowed_tables": cfg.Dataset.AllowedTables(),
		"schema":         deps.Schema.EnrichedSchema(r.Context()),
		"sample_values":  deps.Schema.Values(r.Context()),
	})
}
