package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/web3-frozen/eth-terminal/internal/dataset"
	"github.com/web3-frozen/eth-terminal/internal/funds"
)

func ListFunds(svc *funds.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			http.Error(w, `{"error":"failed to list funds"}`, http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []dataset.Fund{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetFund(svc *funds.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := svc.Lookup(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, funds.ErrNotFound) {
			http.Error(w, `{"error":"fund not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"failed to load fund"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, svc.Detail(f))
	}
}

// FundPage resolves /fund?id=<id>. Unknown or missing ids redirect to the
// fund list.
func FundPage(svc *funds.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Redirect(w, r, "/api/funds", http.StatusFound)
			return
		}
		f, err := svc.Lookup(r.Context(), id)
		if err != nil {
			if !errors.Is(err, funds.ErrNotFound) {
				logger.Error("fund lookup failed", "id", id, "error", err)
			}
			http.Redirect(w, r, "/api/funds", http.StatusFound)
			return
		}
		writeJSON(w, http.StatusOK, svc.Detail(f))
	}
}
