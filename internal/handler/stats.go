package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/eth-terminal/internal/monitor"
)

// Stats returns the latest snapshot of one source, or of every source when
// no source is given.
func Stats(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		if source == "" {
			all := engine.Snapshots()
			snaps := make([]*monitor.Snapshot, 0, len(all))
			for _, name := range engine.SourceNames() {
				if s, ok := all[name]; ok {
					snaps = append(snaps, s)
				}
			}
			writeJSON(w, http.StatusOK, snaps)
			return
		}

		snap := engine.GetSnapshot(source)
		if snap == nil {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func StatsMetadata(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"sources": engine.Schedules(),
		})
	}
}

// Refresh issues an immediate poll of one source.
func Refresh(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seq, err := engine.Trigger(chi.URLParam(r, "source"))
		switch {
		case errors.Is(err, monitor.ErrUnknownSource):
			http.Error(w, `{"error":"unknown source"}`, http.StatusNotFound)
			return
		case errors.Is(err, monitor.ErrQueueFull):
			http.Error(w, `{"error":"poll queue full, try again later"}`, http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, `{"error":"failed to schedule refresh"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]uint64{"seq": seq})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
