// Package middleware provides HTTP middleware for automatic tracing.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	lumetric "github.com/lumetric/lumetric-go"
)

// HTTPConfig holds configuration for the HTTP middleware.
type HTTPConfig struct {
	// TraceName names the trace for a request. Defaults to "{method} {path}".
	TraceName func(r *http.Request) string

	// CaptureRequestBody logs the request body as trace input.
	CaptureRequestBody bool

	// CaptureResponseBody logs the response body as trace output.
	CaptureResponseBody bool

	// MaxBodyBytes caps how much of a captured body is logged. Defaults to 8192.
	MaxBodyBytes int

	// SkipPaths lists paths that are not traced.
	SkipPaths []string

	// ExtractThreadID extracts a conversation thread ID from the request.
	ExtractThreadID func(r *http.Request) string
}

// HTTP returns middleware that opens a trace per request and forwards
// method, path, and status into it.
func HTTP(config *HTTPConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = &HTTPConfig{}
	}

	if config.TraceName == nil {
		config.TraceName = func(r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 8192
	}

	skipPaths := make(map[string]struct{})
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipPaths[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			client := lumetric.GetGlobalClient()
			if client == nil || !client.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			opts := lumetric.TraceOptions{
				Name: config.TraceName(r),
				Metadata: map[string]any{
					"http.method":     r.Method,
					"http.url":        r.URL.String(),
					"http.path":       r.URL.Path,
					"http.host":       r.Host,
					"http.user_agent": r.UserAgent(),
				},
			}

			if config.ExtractThreadID != nil {
				opts.ThreadID = config.ExtractThreadID(r)
			}

			if config.CaptureRequestBody && r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, int64(config.MaxBodyBytes)))
				if err == nil {
					rest, _ := io.ReadAll(r.Body)
					r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), bytes.NewReader(rest)))
					opts.Input = string(body)
				} else {
					// Hand whatever was read back to the handler untouched.
					r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				}
			}

			trace, ctx := lumetric.StartTrace(r.Context(), opts)
			if trace == nil {
				next.ServeHTTP(w, r)
				return
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			if config.CaptureResponseBody {
				rw.body = &bytes.Buffer{}
				rw.maxBody = config.MaxBodyBytes
			}

			start := time.Now()
			next.ServeHTTP(rw, r.WithContext(ctx))
			duration := time.Since(start)

			trace.Update(lumetric.TraceUpdateOptions{
				Metadata: map[string]any{
					"http.status_code": rw.statusCode,
					"http.duration_ms": duration.Milliseconds(),
				},
			})

			output := map[string]any{
				"status_code": rw.statusCode,
			}
			if rw.body != nil {
				output["body"] = rw.body.String()
			}

			trace.End(&lumetric.TraceEndOptions{Output: output})
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and,
// optionally, a bounded copy of the response body.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	maxBody    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if rw.body != nil && rw.body.Len() < rw.maxBody {
		remain := rw.maxBody - rw.body.Len()
		if remain > len(p) {
			remain = len(p)
		}
		rw.body.Write(p[:remain])
	}
	return rw.ResponseWriter.Write(p)
}
