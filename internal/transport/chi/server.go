// Package chi exposes the analysis pipeline over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
	domwf "github.com/kailas-cloud/emsal/internal/domain/workflow"
	logpkg "github.com/kailas-cloud/emsal/internal/logger"
	healthuc "github.com/kailas-cloud/emsal/internal/usecase/health"
)

// UserIDHeader carries the caller identity established upstream.
const UserIDHeader = "X-User-ID"

const (
	maxBodyBytes     = 1 << 20
	maxResultsCap    = 50
	headerQuotaUsed  = "X-Quota-Used"
	headerQuotaLimit = "X-Quota-Limit"
	headerQuotaLeft  = "X-Quota-Remaining"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Run(ctx context.Context, req domwf.Request) (domwf.Result, error)
}

// QuotaReader reports a user's ledger without charging.
type QuotaReader interface {
	Ledger(ctx context.Context, userID string) (domquota.Ledger, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the HTTP API.
type Server struct {
	analyzer      Analyzer
	quota         QuotaReader
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(analyzer Analyzer, quota QuotaReader, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		analyzer: analyzer,
		quota:    quota,
		health:   health,
		logger:   logger,
	}
	// Order matters: keyword validation errors wrap both ErrKeywordExtractionFailed and ErrInvalidInput.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeValidationFailed),
		quotaExceededHandler,
		sentinelHandler(domain.ErrKeywordExtractionFailed,
			http.StatusUnprocessableEntity, ErrorCodeKeywordExtractionFailed),
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusBadGateway, ErrorCodeSearchUnavailable),
		sentinelHandler(domain.ErrDeadlineExceeded, http.StatusGatewayTimeout, ErrorCodeDeadlineExceeded),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, ErrorCodeDeadlineExceeded),
		sentinelHandler(domain.ErrUnavailable, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/analyses", s.CreateAnalysis)
	r.Get("/v1/quota", s.GetQuota)
	r.Get("/v1/users/{userID}/quota", s.GetUserQuota)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// CreateAnalysis handles POST /v1/analyses.
func (s *Server) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, UserIDHeader+" header is required")
		return
	}

	var req AnalysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	run := domwf.Request{UserID: userID, CaseText: req.CaseText}
	if req.MaxResults != nil {
		if *req.MaxResults < 1 || *req.MaxResults > maxResultsCap {
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
				"max_results must be between 1 and "+strconv.Itoa(maxResultsCap))
			return
		}
		run.MaxResults = *req.MaxResults
	}
	if req.IncludeDocument != nil {
		run.IncludeDocument = *req.IncludeDocument
	}

	res, err := s.analyzer.Run(r.Context(), run)
	if res.Quota != nil {
		setQuotaHeaders(w, *res.Quota)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetQuota handles GET /v1/quota.
func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	s.writeLedger(w, r, strings.TrimSpace(r.Header.Get(UserIDHeader)))
}

// GetUserQuota handles GET /v1/users/{userID}/quota.
func (s *Server) GetUserQuota(w http.ResponseWriter, r *http.Request) {
	var userID string
	err := runtime.BindStyledParameterWithOptions("simple", "userID", chi.URLParam(r, "userID"), &userID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format for parameter userID")
		return
	}
	s.writeLedger(w, r, userID)
}

func (s *Server) writeLedger(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "user id is required")
		return
	}
	l, err := s.quota.Ledger(r.Context(), userID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	setQuotaHeaders(w, l)
	writeJSON(w, http.StatusOK, quotaToResponse(l))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setQuotaHeaders(w http.ResponseWriter, l domquota.Ledger) {
	w.Header().Set(headerQuotaUsed, strconv.FormatInt(l.Used, 10))
	w.Header().Set(headerQuotaLimit, strconv.FormatInt(l.Limit, 10))
	w.Header().Set(headerQuotaLeft, strconv.FormatInt(l.Remaining(), 10))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrQuotaExceeded,
		domain.ErrKeywordExtractionFailed,
		domain.ErrSearchUnavailable,
		domain.ErrDeadlineExceeded,
		domain.ErrNotFound,
		domain.ErrTimeout,
		domain.ErrUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler creates an errorHandler that matches a sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// quotaExceededHandler answers 402 with the ledger fields of the rejection.
func quotaExceededHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		return false
	}
	var qe *domain.QuotaExceededError
	if !errors.As(err, &qe) {
		writeError(w, http.StatusPaymentRequired, ErrorCodeQuotaExceeded, msg)
		return true
	}
	l := domquota.Ledger{Used: qe.Used, Limit: qe.Limit}
	setQuotaHeaders(w, l)
	writeJSON(w, http.StatusPaymentRequired, QuotaExceededResponse{
		Code:    ErrorCodeQuotaExceeded,
		Message: msg,
		Plan:    qe.Plan,
		Used:    qe.Used,
		Limit:   qe.Limit,
		Reason:  qe.Reason,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
