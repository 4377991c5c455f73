package controlapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/skylab/internal/logger"
	"github.com/rafaeljc/skylab/internal/observability"
)

// APIKeyHeader carries the control plane API key.
const APIKeyHeader = "X-API-Key"

// RequestLogger puts a logger tagged with the chi request id into the
// request context and logs one line per finished request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			ctx, reqLog := logger.With(r.Context(), base, slog.String("request_id", middleware.GetReqID(r.Context())))

			rec := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rec, r.WithContext(ctx))

			code := rec.Status()
			reqLog.Log(ctx, levelForStatus(code), "http request served",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", code),
				slog.Int("bytes", rec.BytesWritten()),
				slog.Duration("duration", time.Since(began)),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

func levelForStatus(code int) slog.Level {
	switch {
	case code >= http.StatusInternalServerError:
		return slog.LevelError
	case code >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Metrics records request latency and totals. Paths are labeled with the
// matched route pattern to keep label cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
				if len(path) > 1 {
					path = strings.TrimSuffix(path, "/")
				}
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.ControlPlaneReqDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		observability.ControlPlaneReqTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	})
}

// authenticateAPIKey accepts the key in X-API-Key or as a Bearer token and
// compares its SHA-256 against the configured hash in constant time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.keyHash == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, &ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Missing API key",
			})
			return
		}

		sum := sha256.Sum256([]byte(key))
		got := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(got), a.keyHash) != 1 {
			logger.FromContext(r.Context()).Warn("rejected request with invalid api key")
			writeError(w, r, http.StatusUnauthorized, &ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Invalid API key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
