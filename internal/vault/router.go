package vault

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"filevault/internal/auth"
)

// ResponseWriterWrapper is a wrapper around the default http.ResponseWriter.
// It intercepts the WriteHeader call and saves the response status code.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
}

// WriteHeader intercepts the status code and stores it, then calls the original WriteHeader.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	w.WrittenResponseCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write calls the underlying ResponseWriter's Write method.
func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// LogRequest is middleware that logs incoming HTTP requests.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		writer := ResponseWriterWrapper{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start).Nanoseconds()

		userAttrs := slog.Group("user", "ip", r.RemoteAddr)
		requestAttrs := slog.Group("request",
			"proto", r.Proto,
			"method", r.Method,
			"url", r.URL.String(),
			"duration_ms", float64(elapsed)/float64(time.Millisecond),
			"status_code", writer.WrittenResponseCode,
		)

		switch {
		case writer.WrittenResponseCode >= 500:
			slog.Error("Request", userAttrs, requestAttrs)
		case writer.WrittenResponseCode >= 400:
			slog.Warn("Request", userAttrs, requestAttrs)
		default:
			slog.Info("Request", userAttrs, requestAttrs)
		}
	})
}

func SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Replace all occurrences of "//" with "/" in the URL path
		r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")

		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}

		next.ServeHTTP(w, r)
	})
}

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					// we don't recover http.ErrAbortHandler so the response
					// to the client is aborted, this should not be logged
					panic(rvr)
				}

				slog.Error("Internal Error in HTTP handler", "error", rvr)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type contextKey string

const identityContextKey contextKey = "identity"

// RequireAuthentication is middleware that enforces bearer-token
// authentication and stores the resulting identity in the request context.
func RequireAuthentication(engine auth.Engine, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		identity, err := engine.AuthenticateRequest(r.Context(), r)
		if err != nil {
			slog.Error("Authenticating request", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to process credentials")
			return
		}

		if identity == nil {
			writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityFrom extracts the authenticated identity stored by
// RequireAuthentication.
func identityFrom(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*auth.Identity)
	return identity, ok
}

// writeJSON encodes v and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Encoding JSON response", "error", err)
	}
}

// writeError writes a minimal JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Handler returns an http.Handler implementing the file vault API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health stays unthrottled so liveness probes cannot be rate limited out.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /api/v1/auth/login", s.limitRequests(http.HandlerFunc(s.handleLogin)))

	authenticated := func(h http.HandlerFunc) http.Handler {
		return RequireAuthentication(s.tokens, s.limitRequests(h))
	}

	mux.Handle("POST /api/v1/files/upload", authenticated(s.handleUpload))
	mux.Handle("GET /api/v1/files", authenticated(s.handleListFiles))
	mux.Handle("GET /api/v1/files/stats", authenticated(s.handleStats))
	mux.Handle("GET /api/v1/files/{id}", authenticated(s.handleGetFile))
	mux.Handle("GET /api/v1/files/{id}/content", authenticated(s.handleFileContent))
	mux.Handle("DELETE /api/v1/files/{id}", authenticated(s.handleDeleteFile))

	return LogRequest(SlashFix(Recoverer(mux)))
}
