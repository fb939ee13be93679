package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/google/uuid"
)

type ctxKey string

const (
	principalKey ctxKey = "principal"
	requestIDKey ctxKey = "requestID"

	requestIDHeader = "X-Request-Id"
	replayedHeader  = "Idempotent-Replayed"
)

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func principalFrom(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalKey).(models.Principal)
	return p
}

func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = "req_" + uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = logging.ContextWith(ctx, "request_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate resolves the bearer token into a principal.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		p, err := s.resolver.Resolve(r.Context(), strings.TrimPrefix(header, common.BearerPrefix))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, p)
		ctx = logging.ContextWith(ctx, "user_id", p.UserID, "credential_id", p.CredentialID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recorder keeps a copy of the response so it can be stored for replay.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// idempotent replays the stored response of a POST carrying an
// Idempotency-Key already seen for the same credential and path. The key is
// reserved before the handler runs, so a concurrent duplicate waits for the
// first response instead of running again. Server errors are not stored and
// release the key, so those requests may be retried.
func (s *HTTPServer) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(common.IdempotencyKeyHeaderName))
		p := principalFrom(r.Context())
		if r.Method != http.MethodPost || key == "" || p.CredentialID == "" || s.idempotency == nil {
			next.ServeHTTP(w, r)
			return
		}
		endpoint := r.Method + " " + r.URL.Path

		rec, err := s.idempotency.Begin(r.Context(), p.CredentialID, key, endpoint)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if rec != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayedHeader, "true")
			w.WriteHeader(rec.ResponseStatus)
			_, _ = w.Write(rec.ResponseBody)
			return
		}

		// The outcome is recorded even when the client has gone away.
		ctx := context.WithoutCancel(r.Context())
		rw := &recorder{ResponseWriter: w}
		finished := false
		defer func() {
			if finished {
				return
			}
			if err := s.idempotency.Release(ctx, p.CredentialID, key, endpoint); err != nil {
				s.logger.Error(ctx, "idempotency release failed", "error", err)
			}
		}()

		next.ServeHTTP(rw, r)

		if rw.status == 0 || rw.status >= http.StatusInternalServerError {
			return
		}
		if err := s.idempotency.Complete(ctx, p.CredentialID, key, endpoint, rw.status, rw.body.Bytes()); err != nil {
			s.logger.Error(ctx, "idempotency save failed", "error", err)
			return
		}
		finished = true
	})
}
