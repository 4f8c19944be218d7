package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/filestage/internal/audit"
	"github.com/harrison/filestage/internal/logger"
)

// HeaderRequestID carries the per-request identifier.
const HeaderRequestID = "X-Request-ID"

type ctxKey struct{}

// requestRecord collects what a handler did for the access log and audit.
type requestRecord struct {
	requestID string
	op        string
	fileName  string
	outcome   string
	err       string
}

func recordFrom(ctx context.Context) *requestRecord {
	if rec, ok := ctx.Value(ctxKey{}).(*requestRecord); ok {
		return rec
	}
	return &requestRecord{}
}

// RequestID returns the identifier assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	return recordFrom(ctx).requestID
}

// statusWriter remembers the status code and counts body bytes.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(status int) {
	if sw.status == 0 {
		sw.status = status
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// withRequest assigns a request ID, recovers panics, writes the access
// line and records audited operations.
func (s *Server) withRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Reuse a caller-supplied ID only when it is a well-formed UUID
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)

		rec := &requestRecord{requestID: id}
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, rec))
		sw := &statusWriter{ResponseWriter: w}

		defer func() {
			if p := recover(); p != nil {
				s.writeError(sw, r, fmt.Errorf("panic: %v", p))
			}
			if sw.status == 0 {
				sw.status = http.StatusOK
			}

			elapsed := time.Since(start)
			s.log.LogAccess(logger.AccessEntry{
				RequestID: id,
				Method:    r.Method,
				Path:      r.URL.Path,
				Status:    sw.status,
				Bytes:     sw.bytes,
				Duration:  elapsed,
			})
			s.audit(r, rec, sw.status, elapsed)
		}()

		next.ServeHTTP(sw, r)
	})
}

func (s *Server) audit(r *http.Request, rec *requestRecord, status int, elapsed time.Duration) {
	if s.recorder == nil || rec.op == "" {
		return
	}

	op := &audit.Operation{
		RequestID:  rec.requestID,
		Op:         rec.op,
		FileName:   rec.fileName,
		Status:     status,
		Outcome:    rec.outcome,
		DurationMs: elapsed.Milliseconds(),
		Error:      rec.err,
		RemoteAddr: r.RemoteAddr,
	}
	if err := s.recorder.Record(context.WithoutCancel(r.Context()), op); err != nil {
		s.log.LogWarn(fmt.Sprintf("audit record for %s failed: %v", rec.requestID, err))
	}
}
