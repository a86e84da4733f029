package middleware

import (
	"net/http"
	"time"

	"cheque-custody/backend/internal/logger"
)

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// RequestLog logs one structured line per request after it completes.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		fields := logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.code(),
			"durationMs": time.Since(start).Milliseconds(),
			"clientIp":   ClientIP(r),
		}
		if id, ok := GetActorID(r.Context()); ok {
			fields["actorId"] = id
		}
		logger.Info("http request", fields)
	})
}
