package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging writes one record per round trip: method, host, path, status and duration.
// Transport errors are logged at warn level.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			reqLogger := l
			if rid := req.Header.Get(HeaderRequestID); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}

			start := time.Now()
			resp, err := next.RoundTrip(req)
			dur := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("host", req.URL.Host),
				slog.String("path", req.URL.Path),
				slog.Duration("dur", dur),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				reqLogger.LogAttrs(req.Context(), slog.LevelWarn, "http client", attrs...)
				return resp, err
			}

			attrs = append(attrs, slog.Int("status", resp.StatusCode))
			reqLogger.LogAttrs(req.Context(), slog.LevelDebug, "http client", attrs...)
			return resp, nil
		})
	}
}
