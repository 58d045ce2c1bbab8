package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/tracing"
)

// Tracing opens a root span per request, traced by the request id, and logs
// the finished span tree at debug level. Install it inside RequestID.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, GetRequestID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
		span.End()
		span.Log(logger.FromContext(ctx))
	})
}
