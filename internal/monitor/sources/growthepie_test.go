package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGrowthepieFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/fundamentals.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"metric_key":"daa","origin_key":"ethereum","date":"2026-01-15","value":400000},
			{"metric_key":"daa","origin_key":"ethereum","date":"2026-01-18","value":null},
			{"metric_key":"daa","origin_key":"ethereum","date":"2026-01-22","value":500000},
			{"metric_key":"txcount","origin_key":"ethereum","date":"2026-01-22","value":1600000},
			{"metric_key":"daa","origin_key":"arbitrum","date":"2026-01-22","value":900000},
			{"metric_key":"tvl","origin_key":"ethereum","date":"2026-01-22","value":1}
		]`))
	}))
	defer srv.Close()

	g := NewGrowthepie()
	g.client, g.baseURL = srv.Client(), srv.URL

	snap, err := g.FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot error: %v", err)
	}
	if snap.Metrics["daa"] != 500000 {
		t.Errorf("daa = %v, want ethereum value 500000", snap.Metrics["daa"])
	}
	if !approx(snap.Metrics["daa_change_7d"], 25) {
		t.Errorf("daa_change_7d = %v, want 25", snap.Metrics["daa_change_7d"])
	}
	if snap.Metrics["txcount"] != 1600000 {
		t.Errorf("txcount = %v", snap.Metrics["txcount"])
	}
	if _, ok := snap.Metrics["fees_paid_usd"]; ok {
		t.Error("fees_paid_usd absent upstream but present in snapshot")
	}
	if _, ok := snap.Metrics["tvl"]; ok {
		t.Error("untracked metric leaked into snapshot")
	}
}

func TestGrowthepieNoEthereumRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"metric_key":"daa","origin_key":"base","date":"2026-01-22","value":1}]`))
	}))
	defer srv.Close()

	g := NewGrowthepie()
	g.client, g.baseURL = srv.Client(), srv.URL
	if _, err := g.FetchSnapshot(context.Background()); err == nil {
		t.Error("expected error when no ethereum rows")
	}
}

func TestGrowthepieNullLatestValue(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"null", `[
			{"metric_key":"daa","origin_key":"ethereum","date":"2026-01-15","value":400000},
			{"metric_key":"daa","origin_key":"ethereum","date":"2026-01-22","value":null}
		]`},
		{"missing", `[
			{"metric_key":"txcount","origin_key":"ethereum","date":"2026-01-15","value":1500000},
			{"metric_key":"txcount","origin_key":"ethereum","date":"2026-01-22"}
		]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewGrowthepie()
			g.client, g.baseURL = srv.Client(), srv.URL
			snap, err := g.FetchSnapshot(context.Background())
			if err == nil {
				t.Fatalf("expected error, got metrics %v", snap.Metrics)
			}
		})
	}
}
