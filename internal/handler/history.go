package handler

import (
	"net/http"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/store"
)

const (
	defaultHistoryWindow = 24 * time.Hour
	maxHistoryWindow     = 30 * 24 * time.Hour
)

// History returns recorded values of one metric. Query: source, metric and
// an optional window duration such as "6h".
func History(rec store.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		source, metric := q.Get("source"), q.Get("metric")
		if source == "" || metric == "" {
			http.Error(w, `{"error":"source and metric required"}`, http.StatusBadRequest)
			return
		}

		window := defaultHistoryWindow
		if s := q.Get("window"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				http.Error(w, `{"error":"invalid window"}`, http.StatusBadRequest)
				return
			}
			window = min(d, maxHistoryWindow)
		}

		points, err := rec.History(r.Context(), source, metric, time.Now().Add(-window))
		if err != nil {
			http.Error(w, `{"error":"failed to load history"}`, http.StatusInternalServerError)
			return
		}
		if points == nil {
			points = []store.MetricPoint{}
		}
		writeJSON(w, http.StatusOK, points)
	}
}
