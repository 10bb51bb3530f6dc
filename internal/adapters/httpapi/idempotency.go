package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/travelmap/ratings-api/internal/domain"
	"github.com/travelmap/ratings-api/internal/ports/out/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// hashRequest fingerprints the concrete path and the decoded body.
func hashRequest(path string, body any) (string, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.New()
	sum.Write([]byte(path))
	sum.Write([]byte{'\n'})
	sum.Write(b)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// idempotent runs a mutating handler under the Idempotency-Key protocol:
//   - same user+key+route+body replays the stored response
//   - same user+key+route with a different body is rejected with 409
//
// Requests without the header run directly.
func (s *Server) idempotent(w http.ResponseWriter, r *http.Request, userID domain.UserID, route string, body any, run func() (int, any, error)) {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" || s.Idem == nil {
		status, resp, err := run()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, status, resp)
		return
	}

	bodyHash, err := hashRequest(r.URL.Path, body)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	ctx := r.Context()
	metaFP := idempotency.Fingerprint{
		Key:    idempotency.Key(key),
		UserID: userID,
		Method: r.Method,
		Route:  route,
	}
	meta, found, err := s.Idem.Get(ctx, metaFP)
	if err != nil {
		s.Log.Error("idempotency lookup failed", zap.Error(err))
		writeAppError(w, r, err)
		return
	}
	if found && string(meta.Body) != bodyHash {
		writeError(w, r, http.StatusConflict, codeIdemReuse, "idempotency key reuse with different payload", nil)
		return
	}
	if !found {
		_ = s.Idem.Put(ctx, metaFP, idempotency.Record{
			ContentType: "text/plain",
			Body:        []byte(bodyHash),
			CreatedAt:   s.now(),
		})
	}

	respFP := metaFP
	respFP.BodyHash = bodyHash
	if rec, ok, err := s.Idem.Get(ctx, respFP); err == nil && ok && strings.HasPrefix(rec.ContentType, "application/json") {
		w.Header().Set("Content-Type", rec.ContentType)
		w.Header().Set(headerReplayed, "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
		return
	}

	status, resp, err := run()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if b, err := json.Marshal(resp); err == nil {
		if err := s.Idem.Put(ctx, respFP, idempotency.Record{
			StatusCode:  status,
			ContentType: "application/json",
			Body:        append(b, '\n'),
			CreatedAt:   s.now(),
		}); err != nil {
			s.Log.Warn("idempotency store failed", zap.Error(err))
		}
	}
	writeJSON(w, status, resp)
}
