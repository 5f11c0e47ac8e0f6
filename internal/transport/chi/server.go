// Package chi exposes the casedex HTTP surface: synchronous case creation,
// structured search, health, and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/casetrack/casedex/internal/domain"
	"github.com/casetrack/casedex/internal/domain/casedoc"
	"github.com/casetrack/casedex/internal/domain/event"
	"github.com/casetrack/casedex/internal/domain/search"
	casesuc "github.com/casetrack/casedex/internal/usecase/cases"
	healthuc "github.com/casetrack/casedex/internal/usecase/health"
)

// Server wires the case and health services to HTTP handlers.
type Server struct {
	cases  *casesuc.Service
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(cases *casesuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{cases: cases, health: health, logger: logger}
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/case/{caseUUID}", s.CreateCase)
	r.Post("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// createCaseResponse acknowledges a synchronous case creation.
type createCaseResponse struct {
	CaseUUID uuid.UUID `json:"caseUUID"`
}

// dateRangeDTO is an inclusive from/to pair of ISO dates.
type dateRangeDTO struct {
	From casedoc.Date `json:"from"`
	To   casedoc.Date `json:"to"`
}

// searchRequestDTO is the POST /search body. Every field is optional.
type searchRequestDTO struct {
	CaseTypes         []string          `json:"caseTypes"`
	DateReceived      *dateRangeDTO     `json:"dateReceived"`
	CorrespondentName string            `json:"correspondentName"`
	Topic             string            `json:"topic"`
	Data              map[string]string `json:"data"`
	ActiveOnly        bool              `json:"activeOnly"`
}

// searchResponse carries the matching case UUIDs in lexical order and the
// uncapped total.
type searchResponse struct {
	UUIDs []uuid.UUID `json:"uuids"`
	Total int         `json:"total"`
}

// CreateCase handles POST /case/{caseUUID}: the synchronous path for
// indexing a case without going through the event stream.
func (s *Server) CreateCase(w http.ResponseWriter, r *http.Request) {
	caseUUID, err := uuid.Parse(chi.URLParam(r, "caseUUID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Invalid case UUID: "+err.Error())
		return
	}

	var req event.CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if err := s.cases.CreateCase(r.Context(), caseUUID, req.Details()); err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createCaseResponse{CaseUUID: caseUUID})
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var dto searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	result, err := s.cases.Search(r.Context(), searchRequestFromDTO(dto))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	uuids := append([]uuid.UUID(nil), result.UUIDs...)
	sort.Slice(uuids, func(i, j int) bool { return uuids[i].String() < uuids[j].String() })
	if uuids == nil {
		uuids = []uuid.UUID{}
	}

	writeJSON(w, http.StatusOK, searchResponse{UUIDs: uuids, Total: result.Total})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func searchRequestFromDTO(dto searchRequestDTO) search.Request {
	req := search.Request{
		CaseTypes:         dto.CaseTypes,
		CorrespondentName: dto.CorrespondentName,
		Topic:             dto.Topic,
		Data:              dto.Data,
		ActiveOnly:        dto.ActiveOnly,
	}
	if dto.DateReceived != nil {
		req.DateReceived = &search.DateRange{
			From: dto.DateReceived.From,
			To:   dto.DateReceived.To,
		}
	}
	return req
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrCaseNotFound,
		domain.ErrInvalidRequest,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	switch {
	case errors.Is(err, domain.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, "case_not_found", msg)
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "validation_failed", msg)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", msg)
	}
}
