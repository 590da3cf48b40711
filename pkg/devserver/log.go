package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ngld/assetpipe/pkg/pipeline"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// makeLogMiddleware attaches a logger with a request ID to every request and logs the response.
func makeLogMiddleware(base *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqID := uuid.New()
		logger := base.With().Str("req", reqID.String()).Logger()

		ctx := pipeline.WithLogger(r.Context(), &logger)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// Log returns the request logger stored in ctx.
func Log(ctx context.Context) *zerolog.Logger {
	return pipeline.Log(ctx)
}
