package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/service"
	"fuelstation/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	log           *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, log *zap.Logger, allowedOrigin string) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		log:           log,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.allowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(a.requestLogger)
	r.Use(securityHeaders)
	r.Use(limitBody)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth(domain.RoleStaff))

		r.Get("/api/v1/pumps", a.handleListPumps)
		r.Get("/api/v1/pumps/{pumpID}", a.handleGetPump)

		r.Post("/api/v1/readings", a.handleRecordReading)
		r.Post("/api/v1/readings/bulk", a.handleBulkReadings)
		r.Get("/api/v1/readings", a.handleListReadings)
		r.Get("/api/v1/readings/status", a.handleReadingStatus)
		r.Patch("/api/v1/readings/{readingID}", a.handleUpdateReading)

		r.Post("/api/v1/sales", a.handleRecordSale)
		r.Get("/api/v1/sales", a.handleListSales)

		r.Post("/api/v1/pms/calculate", a.handleCalculate)
		r.Get("/api/v1/pms/calculations", a.handleListCalculations)
		r.Get("/api/v1/pms/calculations/{calcID}", a.handleGetCalculation)
		r.Get("/api/v1/pms/deviations", a.handleDeviations)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth(domain.RoleManager))

		r.Post("/api/v1/pumps", a.handleCreatePump)
		r.Patch("/api/v1/pumps/{pumpID}", a.handleUpdatePump)
		r.Post("/api/v1/pumps/{pumpID}/status", a.handlePumpStatus)

		r.Post("/api/v1/pms/calculations/{calcID}/approval", a.handleApproval)
		r.Post("/api/v1/pms/rollover/confirm", a.handleRolloverConfirm)
		r.Get("/api/v1/pms/deviations/export", a.handleDeviationsExport)

		r.Get("/api/v1/audit-logs", a.handleAuditLogs)
		r.Get("/api/v1/users/staff", a.handleListStaff)
		r.Post("/api/v1/users/staff", a.handleCreateStaff)
	})

	return r
}

func (a *API) requireAuth(min domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, a.log, http.StatusUnauthorized, &service.Error{
					Kind: service.KindForbidden, Message: "missing bearer token",
				})
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, a.log, http.StatusUnauthorized, &service.Error{
					Kind: service.KindForbidden, Message: err.Error(),
				})
				return
			}

			if !actor.Role.AtLeast(min) {
				writeError(w, a.log, http.StatusForbidden, service.Forbidden(min, string(min)+" role required"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, a.log, http.StatusTooManyRequests, service.Conflict("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.log, http.StatusBadRequest, service.Invalid("", "malformed request body"))
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, a.log, http.StatusUnauthorized, &service.Error{
			Kind: service.KindForbidden, Message: err.Error(),
		})
		return
	}

	writeData(w, http.StatusOK, resp)
}

// ---- shared response helpers ----

type errorBody struct {
	Kind         string `json:"kind"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	RoleRequired string `json:"role_required,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, envelope{Success: true, Data: payload})
}

// writeServiceError maps a service error kind to its HTTP status.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	if svcErr, ok := service.AsError(err); ok {
		status := http.StatusInternalServerError
		switch svcErr.Kind {
		case service.KindValidation:
			status = http.StatusBadRequest
		case service.KindNotFound:
			status = http.StatusNotFound
		case service.KindConflict:
			status = http.StatusConflict
		case service.KindForbidden:
			status = http.StatusForbidden
		}
		writeError(w, log, status, svcErr)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, log, http.StatusNotFound, service.NotFound("not found"))
		return
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, log, http.StatusInternalServerError, service.Internal("internal server error"))
}

func writeError(w http.ResponseWriter, log *zap.Logger, status int, svcErr *service.Error) {
	body := &errorBody{
		Kind:         string(svcErr.Kind),
		Message:      svcErr.Message,
		Field:        svcErr.Field,
		RoleRequired: string(svcErr.RoleRequired),
	}
	if status >= 500 {
		// Internal details stay in the log, not the response.
		if log != nil {
			log.Error("internal error", zap.String("message", svcErr.Message))
		}
		body.Message = "internal server error"
	}
	writeJSON(w, status, envelope{Success: false, Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
