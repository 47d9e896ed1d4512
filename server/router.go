package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudx-io/englishauction/auctionapi"
	"github.com/cloudx-io/englishauction/core"
)

// NewRouter serves the request protocol over HTTP. gatherer may be nil, in which
// case /metrics is not mounted.
func NewRouter(service *Service, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/requests", service.serveHTTP)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Service) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, auctionapi.NewErrorResponse("", err))
		return
	}
	resp := s.Handle(r.Context(), body)
	writeJSON(w, statusFor(resp), resp)
}

// statusFor maps an error response to an HTTP status by error kind.
func statusFor(resp any) int {
	errResp, ok := resp.(auctionapi.ErrorResponse)
	if !ok {
		return http.StatusOK
	}
	switch core.Kind(errResp.Error.Kind) {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindState:
		return http.StatusConflict
	case core.KindAuthorization:
		return http.StatusForbidden
	case core.KindTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
