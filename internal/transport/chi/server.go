package chi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/retreivo/itemmatch/internal/domain"
	"github.com/retreivo/itemmatch/internal/domain/item"
	"github.com/retreivo/itemmatch/internal/domain/match"
	logpkg "github.com/retreivo/itemmatch/internal/logger"
	healthuc "github.com/retreivo/itemmatch/internal/usecase/health"
	matchinguc "github.com/retreivo/itemmatch/internal/usecase/matching"
	"github.com/retreivo/itemmatch/internal/version"
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeInvalidReportType = "invalid_report_type"
	codePayloadTooLarge   = "payload_too_large"
	codeRateLimited       = "rate_limited"
	codeInternalError     = "internal_error"
)

const defaultMaxBodyBytes = 16 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Matcher is the matching use case consumed by the HTTP layer.
type Matcher interface {
	StoreItem(ctx context.Context, req matchinguc.StoreRequest) (matchinguc.StoreResult, error)
	MatchByImage(ctx context.Context, t item.ReportType, image string, meta item.Metadata) (match.Result, error)
	MatchByText(ctx context.Context, t item.ReportType, meta item.Metadata) (match.Result, error)
	MatchCombined(ctx context.Context, t item.ReportType, image string, meta item.Metadata) (match.Result, error)
	List(ctx context.Context, t item.ReportType) ([]item.Record, error)
}

// HealthReporter is the health use case consumed by the HTTP layer.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the item matching HTTP API.
type Server struct {
	matching      Matcher
	health        HealthReporter
	logger        *zap.Logger
	maxBodyBytes  int64
	rateLimit     int
	rateWindow    time.Duration
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(matching Matcher, health HealthReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		matching:     matching,
		health:       health,
		logger:       logger,
		maxBodyBytes: defaultMaxBodyBytes,
		rateWindow:   time.Minute,
	}
	s.errorHandlers = []errorHandler{
		payloadTooLargeHandler,
		validationHandler,
		sentinelHandler(domain.ErrInvalidReportType, http.StatusBadRequest, codeInvalidReportType),
	}
	return s
}

// WithMaxBodyBytes bounds request bodies.
func (s *Server) WithMaxBodyBytes(n int64) *Server {
	if n > 0 {
		s.maxBodyBytes = n
	}
	return s
}

// WithRateLimit limits store and match requests to n per window and client IP. n <= 0 disables it.
func (s *Server) WithRateLimit(n int, window time.Duration) *Server {
	s.rateLimit = n
	if window > 0 {
		s.rateWindow = window
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.rateLimit > 0 {
			r.Use(httprate.Limit(s.rateLimit, s.rateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
				}),
			))
		}
		r.Post("/store-item", s.StoreItem)
		r.Post("/match-item", s.MatchItem)
		r.Post("/match-image", s.MatchImage)
		r.Post("/match-text", s.MatchText)
	})

	r.Get("/items/{type}", s.ListItems)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
}

// Routes returns a router carrying only the API routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

// StoreItem handles POST /store-item.
func (s *Server) StoreItem(w http.ResponseWriter, r *http.Request) {
	req, t, ok := s.decodeItemRequest(w, r)
	if !ok {
		return
	}

	res, err := s.matching.StoreItem(r.Context(), matchinguc.StoreRequest{
		ID:       req.ItemID.value,
		IDForm:   req.ItemID.form,
		Type:     t,
		Metadata: req.metadata(),
		Image:    req.Image,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, storeResponse{
		OK:             true,
		Stored:         res.Stored,
		ItemID:         newItemID(res.ID, res.IDForm),
		HasDescriptors: res.HasDescriptors,
	})
}

// MatchItem handles POST /match-item (image and metadata combined).
func (s *Server) MatchItem(w http.ResponseWriter, r *http.Request) {
	req, t, ok := s.decodeItemRequest(w, r)
	if !ok {
		return
	}

	res, err := s.matching.MatchCombined(r.Context(), t, req.Image, req.metadata())
	s.writeMatch(w, r, &res, err)
}

// MatchImage handles POST /match-image.
func (s *Server) MatchImage(w http.ResponseWriter, r *http.Request) {
	req, t, ok := s.decodeItemRequest(w, r)
	if !ok {
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "image is required")
		return
	}

	res, err := s.matching.MatchByImage(r.Context(), t, req.Image, req.metadata())
	s.writeMatch(w, r, &res, err)
}

// MatchText handles POST /match-text. Any image in the body is ignored.
func (s *Server) MatchText(w http.ResponseWriter, r *http.Request) {
	req, t, ok := s.decodeItemRequest(w, r)
	if !ok {
		return
	}

	res, err := s.matching.MatchByText(r.Context(), t, req.metadata())
	s.writeMatch(w, r, &res, err)
}

// ListItems handles GET /items/{type}.
func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	t, err := item.ParseReportType(chi.URLParam(r, "type"))
	if err != nil {
		s.handleDomainError(w, r, fmt.Errorf("%w: %w", domain.ErrInvalidReportType, err))
		return
	}

	recs, err := s.matching.List(r.Context(), t)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recordsToResponse(t, recs))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	items := make(map[string]int, len(report.Items))
	for k, v := range report.Items {
		items[string(k)] = v
	}

	// Degraded still serves text matching.
	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Items:   items,
		Version: version.Version,
	})
}

// decodeItemRequest decodes and validates an item body. On failure the error response is
// already written and ok is false.
func (s *Server) decodeItemRequest(w http.ResponseWriter, r *http.Request) (itemRequest, item.ReportType, bool) {
	var req itemRequest
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.handleDomainError(w, r, err)
		return itemRequest{}, "", false
	}
	if err := json.Unmarshal(data, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return itemRequest{}, "", false
	}

	if err := validateRequest(&req); err != nil {
		s.handleDomainError(w, r, err)
		return itemRequest{}, "", false
	}

	t, err := item.ParseReportType(req.ItemType)
	if err != nil {
		s.handleDomainError(w, r, fmt.Errorf("%w: %w", domain.ErrInvalidReportType, err))
		return itemRequest{}, "", false
	}
	return req, t, true
}

func (s *Server) writeMatch(w http.ResponseWriter, r *http.Request, res *match.Result, err error) {
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchResultToResponse(res))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		OK:      false,
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// The full error text is returned: it only carries the rejected client input.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidRequest) {
		return false
	}
	writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
	return true
}

func payloadTooLargeHandler(w http.ResponseWriter, err error) bool {
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		return false
	}
	writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Debug("request rejected", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
