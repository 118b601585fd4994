// ABOUTME: HTTP middleware for request ids, access logs, CORS, panic recovery and auth
// ABOUTME: Also resolves the caller's business membership for tenant-scoped handlers
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/callhenk/henk-sub004/auth"
	"github.com/callhenk/henk-sub004/db"
	"github.com/callhenk/henk-sub004/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// BusinessHeader selects a business for users with several memberships.
const BusinessHeader = "X-Business-ID"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userKey      contextKey = "user"
)

// requestID tags each request with a ULID, reusing a client X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// accessLog writes one line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("http request",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

// cors allows any origin on /api and answers preflights with 204.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+BusinessHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a panic into a 500 envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic in handler",
					zap.String("request_id", requestIDFromContext(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withAuth requires a valid session token.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.verifier.Verify(auth.TokenFromRequest(r))
		if err != nil {
			s.writeError(w, r, NewAuthError())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func userFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userKey).(*auth.User)
	return user
}

var (
	errNoMembership      = NewForbiddenError("No active business membership")
	errInsufficientRoles = NewForbiddenError("Insufficient permissions")
)

// currentMember resolves the caller's business from BusinessHeader, or
// their oldest active membership. mutate additionally requires a role
// that may change data.
func (s *Server) currentMember(r *http.Request, mutate bool) (*models.TeamMember, error) {
	user := userFromContext(r.Context())
	if user == nil {
		return nil, NewAuthError()
	}

	var (
		member *models.TeamMember
		err    error
	)
	if raw := strings.TrimSpace(r.Header.Get(BusinessHeader)); raw != "" {
		businessID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return nil, NewValidationError("X-Business-ID must be a valid UUID")
		}
		member, err = s.businesses.Membership(r.Context(), user.ID, businessID)
	} else {
		member, err = s.businesses.ActiveMembership(r.Context(), user.ID)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, errNoMembership
	}
	if err != nil {
		return nil, err
	}
	return checkMember(member, mutate)
}

// memberOf checks the caller's membership in the business that owns a
// resource. Callers outside that business get 403, like any other caller
// without a membership.
func (s *Server) memberOf(r *http.Request, businessID uuid.UUID, mutate bool) (*models.TeamMember, error) {
	user := userFromContext(r.Context())
	if user == nil {
		return nil, NewAuthError()
	}

	member, err := s.businesses.Membership(r.Context(), user.ID, businessID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errNoMembership
	}
	if err != nil {
		return nil, err
	}
	return checkMember(member, mutate)
}

func checkMember(member *models.TeamMember, mutate bool) (*models.TeamMember, error) {
	if !member.IsActive() {
		return nil, errNoMembership
	}
	if mutate && !member.CanMutate() {
		return nil, errInsufficientRoles
	}
	return member, nil
}
