package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/eth-terminal/internal/aggregate"
	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/render"
)

// Page serves the rendered terminal document.
func Page(doc *render.Document, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		if err := doc.Render(&buf); err != nil {
			logger.Error("render document failed", "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(buf.Bytes())
	}
}

func Tiles(board *render.Board) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, board.Tiles())
	}
}

type flowsResponse struct {
	Tickers   []string             `json:"tickers"`
	Summary   aggregate.Summary    `json:"summary"`
	Records   []dataset.FlowRecord `json:"records"`
	UpdatedAt *time.Time           `json:"updated_at,omitempty"`
}

// Flows returns the current ETF flow table with its summary.
func Flows(book *dataset.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		records := book.Records()
		tickers := book.Tickers()
		resp := flowsResponse{
			Tickers: tickers,
			Summary: aggregate.Summarize(records, tickers),
			Records: records,
		}
		if at := book.UpdatedAt(); !at.IsZero() {
			resp.UpdatedAt = &at
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func Chart(charts *render.Charts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := charts.Get(chi.URLParam(r, "name"))
		if !ok {
			http.Error(w, `{"error":"chart not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}
