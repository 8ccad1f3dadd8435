package chi

import (
	"time"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// ErrorCode is the machine-readable error code in error responses.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest              ErrorCode = "bad_request"
	ErrorCodeUnauthorized            ErrorCode = "unauthorized"
	ErrorCodeValidationFailed        ErrorCode = "validation_failed"
	ErrorCodeQuotaExceeded           ErrorCode = "quota_exceeded"
	ErrorCodeKeywordExtractionFailed ErrorCode = "keyword_extraction_failed"
	ErrorCodeSearchUnavailable       ErrorCode = "search_unavailable"
	ErrorCodeDeadlineExceeded        ErrorCode = "deadline_exceeded"
	ErrorCodeServiceUnavailable      ErrorCode = "service_unavailable"
	ErrorCodeNotFound                ErrorCode = "not_found"
	ErrorCodeInternalError           ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QuotaExceededResponse extends ErrorResponse with the ledger that caused the rejection.
type QuotaExceededResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Plan    string    `json:"plan"`
	Used    int64     `json:"used"`
	Limit   int64     `json:"limit"`
	Reason  string    `json:"reason"`
}

// AnalysisRequest is the body of POST /v1/analyses.
type AnalysisRequest struct {
	CaseText        string `json:"case_text"`
	MaxResults      *int   `json:"max_results,omitempty"`
	IncludeDocument *bool  `json:"include_document,omitempty"`
}

// QuotaResponse describes a user's consumption in the current window.
type QuotaResponse struct {
	UserID      string    `json:"user_id"`
	Plan        string    `json:"plan"`
	Used        int64     `json:"used"`
	Limit       int64     `json:"limit"`
	Remaining   int64     `json:"remaining"`
	Unlimited   bool      `json:"unlimited"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func quotaToResponse(l domquota.Ledger) QuotaResponse {
	return QuotaResponse{
		UserID:      l.UserID,
		Plan:        l.Plan,
		Used:        l.Used,
		Limit:       l.Limit,
		Remaining:   l.Remaining(),
		Unlimited:   l.Unlimited(),
		WindowStart: l.WindowStart,
		WindowEnd:   l.WindowEnd,
	}
}
