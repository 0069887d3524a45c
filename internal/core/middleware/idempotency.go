package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Nzyazin/walletd/internal/core/idempotency"
	"github.com/Nzyazin/walletd/internal/core/logger"
	"github.com/Nzyazin/walletd/internal/core/response"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
	maxBodyBytes         = 1 << 20
)

// Idempotency replays the stored response for a POST that repeats an
// Idempotency-Key with the same body. Requests without the header pass through.
// Keys are scoped to the authenticated user and the route.
func Idempotency(store idempotency.Store, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				response.Error(w, http.StatusBadRequest, response.CodeValidation, "Idempotency-Key is too long")
				return
			}
			s, ok := SessionFrom(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, response.CodeUnauthorized, "Unauthorized")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			r.Body.Close()
			if err != nil || len(body) > maxBodyBytes {
				response.Error(w, http.StatusBadRequest, response.CodeValidation, "invalid request payload")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scoped := s.UserID.String() + ":" + r.URL.Path + ":" + key
			fp := idempotency.Fingerprint(r.Method, r.URL.Path, body)

			rec, err := store.Begin(r.Context(), scoped, fp)
			switch {
			case errors.Is(err, idempotency.ErrInFlight):
				response.Error(w, http.StatusConflict, response.CodeRequestInFlight, err.Error())
				return
			case errors.Is(err, idempotency.ErrKeyMismatch):
				response.Error(w, http.StatusUnprocessableEntity, response.CodeKeyReused, err.Error())
				return
			case err != nil:
				log.Error("Idempotency store unavailable", logger.ErrorField("error", err))
				response.Error(w, http.StatusServiceUnavailable, response.CodeInternal, "Idempotency store unavailable")
				return
			case rec != nil:
				if rec.ContentType != "" {
					w.Header().Set("Content-Type", rec.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(rec.StatusCode)
				w.Write(rec.Body)
				return
			}

			rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			// outlives a client disconnect, which is when the retry comes
			bg := context.WithoutCancel(r.Context())
			defer func() {
				// 5xx and panics free the key so the client can retry
				if p := recover(); p != nil {
					_ = store.Release(bg, scoped)
					panic(p)
				}
				if rw.status >= http.StatusInternalServerError {
					if err := store.Release(bg, scoped); err != nil {
						log.Warn("Failed to release idempotency key", logger.ErrorField("error", err))
					}
					return
				}
				if err := store.Complete(bg, scoped, idempotency.Record{
					Fingerprint: fp,
					StatusCode:  rw.status,
					ContentType: rw.Header().Get("Content-Type"),
					Body:        rw.body.Bytes(),
				}); err != nil {
					log.Warn("Failed to store idempotent response", logger.ErrorField("error", err))
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
