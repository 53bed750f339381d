package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/auth"
	"pharmadesk/m/internal/logger"
)

type ctxKey string

const ctxPrincipal ctxKey = "principal"

// principal is the authenticated caller, re-read from the database on every
// request so role edits and deactivation apply immediately.
type principal struct {
	user   *domain.User
	perms  domain.PermissionSet
	claims *auth.Claims
}

func principalFrom(r *http.Request) *principal {
	p, _ := r.Context().Value(ctxPrincipal).(*principal)
	return p
}

func (h *Handler) requestLog(r *http.Request) *zap.Logger {
	return logger.FromContext(r.Context())
}

// accessLog attaches a request logger and records every request once it is
// served.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := h.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
		r = r.WithContext(logger.WithContext(r.Context(), reqLog))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		h.metrics.ObserveRequest(r.Method, route, status, elapsed)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("remote", r.RemoteAddr),
		}
		if status >= http.StatusInternalServerError {
			reqLog.Error("request", fields...)
			return
		}
		reqLog.Info("request", fields...)
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.tokens.Parse(strings.TrimSpace(header[len("Bearer "):]))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		revoked, err := h.blacklist.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			h.requestLog(r).Error("unable to check token blacklist", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "unable to verify token")
			return
		}
		if revoked {
			respondError(w, http.StatusUnauthorized, "token has been revoked")
			return
		}
		user, perms, err := h.store.Principal(r.Context(), claims.UserID)
		if err != nil {
			if domain.CodeOf(err) == domain.CodeNotFound {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			h.requestLog(r).Error("unable to load user", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "unable to load user")
			return
		}
		if !user.Active || user.OrganizationID != claims.OrganizationID {
			respondError(w, http.StatusUnauthorized, "account is inactive")
			return
		}

		ctx := context.WithValue(r.Context(), ctxPrincipal, &principal{user: user, perms: perms, claims: claims})
		ctx = logger.With(ctx, zap.Int64("organization_id", user.OrganizationID), zap.Int64("user_id", user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// require lets the request through when the caller holds any of perms.
func (h *Handler) require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principalFrom(r)
			if p == nil {
				respondError(w, http.StatusUnauthorized, "missing principal")
				return
			}
			if !p.perms.HasAny(perms...) {
				respondCode(w, http.StatusForbidden, domain.CodeForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireWritable rejects changes to tenant data once the subscription has
// lapsed. Reads stay available.
func (h *Handler) requireWritable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		p := principalFrom(r)
		ok, err := h.store.SubscriptionWritable(r.Context(), p.user.OrganizationID)
		if err != nil {
			h.respondStoreError(w, r, err, "unable to check subscription")
			return
		}
		if !ok {
			respondCode(w, http.StatusPaymentRequired, domain.CodeSubscriptionInactive,
				"subscription is not active, renew it to make changes")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// branchScope resolves the branch filter of a list request. Users bound to a
// branch only ever see that branch.
func branchScope(p *principal, requested *int64) (*int64, error) {
	if p.user.BranchID == nil {
		return requested, nil
	}
	if requested != nil && *requested != *p.user.BranchID {
		return nil, domain.Errorf(domain.CodeForbidden, "no access to branch %d", *requested)
	}
	return p.user.BranchID, nil
}

// checkBranch verifies the caller may act on branchID.
func checkBranch(p *principal, branchID int64) error {
	if !p.user.CanAccessBranch(branchID) {
		return domain.Errorf(domain.CodeForbidden, "no access to branch %d", branchID)
	}
	return nil
}
