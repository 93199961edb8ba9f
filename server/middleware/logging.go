package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/solusnoir/solus/server/util"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
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
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogging assigns every request an id, stores a request logger in the
// context and logs the outcome once the handler returns.
func RequestLogging(l util.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		rl := util.WithRequest(l, r, id)
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r.WithContext(util.ContextWithLogger(r.Context(), rl)))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		rl.Infof("status=%d bytes=%d duration=%v", rec.status, rec.bytes, time.Since(start).Truncate(time.Microsecond))
	})
}
