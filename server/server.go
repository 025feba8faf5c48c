// Package server exposes the orchestrator over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cartpilot/job"
	"cartpilot/job/db"
	"cartpilot/orchestrator"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("server")

type Server struct {
	orch *orchestrator.Orchestrator
}

func New(orch *orchestrator.Orchestrator) *Server {
	return &Server{orch: orch}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/jobs/shopping", s.handleShopping)
	mux.HandleFunc("POST /v1/jobs/pricecheck", s.handlePriceCheck)
	mux.HandleFunc("GET /v1/jobs/current", s.handleCurrent)
}

type itemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
}

func toItems(reqs []itemRequest) []job.Item {
	items := make([]job.Item, 0, len(reqs))
	for _, r := range reqs {
		if r.Name == "" {
			continue
		}
		items = append(items, job.Item{Name: r.Name, Quantity: r.Quantity})
	}
	return items
}

type shoppingRequest struct {
	Store string        `json:"store"`
	Items []itemRequest `json:"items"`
}

func (s *Server) handleShopping(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleShopping")
	defer span.End()

	var req shoppingRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	items := toItems(req.Items)
	if req.Store == "" || len(items) == 0 {
		writeError(w, http.StatusBadRequest, "store and items are required")
		return
	}

	err = s.orch.StartShoppingJob(ctx, req.Store, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}

type priceCheckRequest struct {
	Stores []string      `json:"stores"`
	Items  []itemRequest `json:"items"`
}

// handlePriceCheck kicks off a price check and returns immediately;
// progress is visible on /v1/jobs/current and results go out through
// the configured report sinks.
func (s *Server) handlePriceCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handlePriceCheck")
	defer span.End()

	var req priceCheckRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	items := toItems(req.Items)
	if len(req.Stores) == 0 || len(items) == 0 {
		writeError(w, http.StatusBadRequest, "stores and items are required")
		return
	}

	if len(req.Stores) == 1 {
		err = s.orch.StartPriceCheck(ctx, req.Stores[0], items)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
		return
	}

	// multi-store checks can run for minutes per store, so the
	// request does not wait on them
	go func() {
		_, err := s.orch.RunMultiStorePriceCheck(context.Background(), req.Stores, items)
		if err != nil {
			slog.Error("multi-store price check failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "stores": req.Stores})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleCurrent")
	defer span.End()

	j, err := s.orch.CurrentJob(ctx)
	if errors.Is(err, db.ErrNoJob) {
		writeError(w, http.StatusNotFound, "no job in progress")
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, j)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
