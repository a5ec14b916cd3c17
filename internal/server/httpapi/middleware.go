package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/server/auth"
)

type ctxKey string

const identityKey ctxKey = "identity"

// identityFrom returns the principal stored by accessTokenMiddleware.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// accessTokenMiddleware requires a valid bearer access token.
func (s *Server) accessTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			s.writeError(w, r, common.NewError(common.ErrorUnauthorized, "missing token"))
			return
		}

		id, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			s.logger.Warn(ctx, "rejected access token", "error", err, "request_id", middleware.GetReqID(ctx))
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityKey, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		ctx := r.Context()
		status := statusOf(ww)
		args := []any{
			"method", r.Method,
			"route", routePattern(r),
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(ctx),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "request failed", args...)
			return
		}
		s.logger.Info(ctx, "request", args...)
	})
}

// recoverer turns a handler panic into a 500 envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			s.logger.Error(r.Context(), "panic in handler", "panic", rec, "request_id", middleware.GetReqID(r.Context()))
			s.writeError(w, r, common.ErrorInternal)
		}()
		next.ServeHTTP(w, r)
	})
}
