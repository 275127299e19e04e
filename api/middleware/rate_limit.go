package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/inkroute/inkroute-backend/api/responses"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	pkgredis "github.com/inkroute/inkroute-backend/pkg/redis"
)

// RateLimit caps authenticated callers to limit requests per window, keyed by store
// for API-key traffic and by user for dashboard traffic. Redis failures let the request through.
func RateLimit(limiter pkgredis.RateLimiter, limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 || window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope := callerScope(r)
			if scope == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(limit), window)
			if err != nil {
				if logg != nil {
					logg.WarnErr(ctx, "rate_limit.unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{"scope": scope, "count": count, "limit": limit}), "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerScope(r *http.Request) string {
	if storeID := StoreIDFromContext(r.Context()); storeID != "" {
		return "store:" + storeID
	}
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	return ""
}
