package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/openlots/gatekeeper/internal/gatekeeper/service"
	"github.com/openlots/gatekeeper/internal/gatekeeper/store"
	"github.com/openlots/gatekeeper/internal/gatekeeper/types"
)

const maxRequestBody = 4096

type Dependencies struct {
	Logger           *log.Logger
	Addr             string
	Orchestrator     *service.Orchestrator
	HeartbeatService *service.HeartbeatService
	Events           store.GateEventStore
}

type Server struct {
	httpServer       *http.Server
	logger           *log.Logger
	mux              *http.ServeMux
	orchestrator     *service.Orchestrator
	heartbeatService *service.HeartbeatService
	events           store.GateEventStore
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:           d.Logger,
		mux:              mux,
		orchestrator:     d.Orchestrator,
		heartbeatService: d.HeartbeatService,
		events:           d.Events,
	}

	mux.HandleFunc("POST /v1/entry", s.handleEntry)
	mux.HandleFunc("POST /v1/exit", s.handleExit)
	mux.HandleFunc("POST /v1/manual_open", s.handleManualOpen)
	mux.HandleFunc("POST /v1/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	var req types.EntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.orchestrator.DecideEntry(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidGateID):
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
		case errors.Is(err, service.ErrActuator):
			// The decision is already recorded; the caller learns the arm
			// did not move.
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			s.logger.Printf("entry error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	var req types.ExitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.orchestrator.DecideExit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidGateID):
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
		case errors.Is(err, service.ErrActuator):
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			s.logger.Printf("exit error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManualOpen(w http.ResponseWriter, r *http.Request) {
	var req types.ManualOpenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.orchestrator.ManualOpen(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidGateID):
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
		case errors.Is(err, service.ErrInvalidOperatorID):
			writeError(w, http.StatusBadRequest, "invalid_operator_id", err.Error())
		case errors.Is(err, service.ErrUnknownGate):
			writeJSON(w, http.StatusForbidden, resp)
		case errors.Is(err, service.ErrAuditWrite):
			writeError(w, http.StatusServiceUnavailable, "audit_unavailable", "audit store is unavailable")
		case errors.Is(err, service.ErrActuator):
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			s.logger.Printf("manual_open error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req types.HeartbeatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.heartbeatService.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGateID) {
			writeError(w, http.StatusBadRequest, "invalid_gate_id", err.Error())
			return
		}
		s.logger.Printf("heartbeat error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type eventJSON struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	LicensePlate string `json:"license_plate,omitempty"`
	TicketCode   string `json:"ticket_code,omitempty"`
	GateID       string `json:"gate_id"`
	Decision     string `json:"decision"`
	Reason       string `json:"reason,omitempty"`
	OperatorID   string `json:"operator_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Printf("events error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	out := make([]eventJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, eventJSON{
			ID:           rec.ID,
			EventType:    string(rec.EventType),
			LicensePlate: rec.LicensePlate,
			TicketCode:   rec.TicketCode,
			GateID:       rec.GateID,
			Decision:     string(rec.Decision),
			Reason:       rec.Reason,
			OperatorID:   rec.OperatorID,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
