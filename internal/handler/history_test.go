package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/web3-frozen/eth-terminal/internal/store"
)

type historyRecorder struct {
	store.NoopRecorder
	since  time.Time
	points []store.MetricPoint
	err    error
}

func (h *historyRecorder) History(_ context.Context, _, _ string, since time.Time) ([]store.MetricPoint, error) {
	h.since = since
	return h.points, h.err
}

func TestHistoryHandler(t *testing.T) {
	rec := &historyRecorder{points: []store.MetricPoint{{Source: "defillama", Metric: "defi_tvl", Value: 68.4e9}}}
	h := History(rec)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?source=defillama&metric=defi_tvl&window=6h", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var points []store.MetricPoint
	if err := json.NewDecoder(w.Body).Decode(&points); err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 {
		t.Errorf("points = %+v", points)
	}
	if d := time.Since(rec.since); d < 6*time.Hour || d > 6*time.Hour+time.Minute {
		t.Errorf("since = %v ago, want 6h", d)
	}
}

func TestHistoryHandlerErrors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		err  error
		want int
	}{
		{"missing metric", "/api/history?source=defillama", nil, http.StatusBadRequest},
		{"bad window", "/api/history?source=defillama&metric=defi_tvl&window=soon", nil, http.StatusBadRequest},
		{"store failure", "/api/history?source=defillama&metric=defi_tvl", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			History(&historyRecorder{err: tt.err}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestHistoryHandlerEmpty(t *testing.T) {
	w := httptest.NewRecorder()
	History(store.NoopRecorder{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history?source=a&metric=b", nil))
	if w.Body.String() != "[]\n" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}
