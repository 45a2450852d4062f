// Package api exposes the matching service over HTTP and NATS
// request-reply. Both transports encode replies with internal/protocol.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/camila-go/networknav-sub000/internal/matching"
	"github.com/camila-go/networknav-sub000/internal/metrics"
	"github.com/camila-go/networknav-sub000/internal/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated user id, set by the gateway in
// front of this service.
const UserHeader = "X-User-ID"

// MatchService is the part of matching.Service the transports use.
type MatchService interface {
	GetMatches(ctx context.Context, userID string, forceRefresh bool) (*matching.MatchSet, bool, error)
	PassMatch(ctx context.Context, userID, matchID string) error
	MarkViewed(ctx context.Context, userID, matchID string) error
}

var _ MatchService = (*matching.Service)(nil)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the HTTP API.
type Handler struct {
	svc    MatchService
	checks map[string]HealthCheck
	logger *zap.Logger
}

// NewHandler creates a Handler. checks are run by /healthz, keyed by
// dependency name.
func NewHandler(svc MatchService, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, checks: checks, logger: logger.Named("http")}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/matches", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", h.getMatches)
		r.Post("/{matchID}/pass", h.passMatch)
		r.Post("/{matchID}/view", h.viewMatch)
	})

	return r
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, protocol.ErrorReply(protocol.CodeBadRequest, "missing "+UserHeader+" header", false))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

func (h *Handler) getMatches(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.ErrorReply(protocol.CodeBadRequest, "refresh must be a boolean", false))
			return
		}
		refresh = b
	}

	userID := userFrom(r)
	set, fromCache, err := h.svc.GetMatches(r.Context(), userID, refresh)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	body, err := protocol.NewReply(protocol.TypeMatches, protocol.MatchesMsg{FromCache: fromCache, MatchSet: set})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) passMatch(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.svc.PassMatch)
}

func (h *Handler) viewMatch(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.svc.MarkViewed)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, matchID string) error) {
	matchID := chi.URLParam(r, "matchID")
	if err := op(r.Context(), userFrom(r), matchID); err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := protocol.NewReply(protocol.TypeAck, protocol.AckMsg{MatchID: matchID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reply := replyForError(err)
	if reply.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(reply.retryAfter))
	}

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("user_id", userFrom(r)),
		zap.Int("status", reply.status),
		zap.Error(err),
	}
	if reply.status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	writeJSON(w, reply.status, reply.body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, body)
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
