package middleware

import (
	"net/http"

	"github.com/openclaw/imposter-server-go/internal/audit"
	apperrors "github.com/openclaw/imposter-server-go/internal/errors"
	"github.com/openclaw/imposter-server-go/internal/httputil"
	"github.com/openclaw/imposter-server-go/internal/util"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards maintenance routes with a shared key checked
// against a bcrypt hash. An empty hash leaves the routes open.
type AdminKeyMiddleware struct {
	keyHash string
}

func NewAdminKeyMiddleware(keyHash string) *AdminKeyMiddleware {
	return &AdminKeyMiddleware{keyHash: keyHash}
}

func (m *AdminKeyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.keyHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(AdminKeyHeader)
		if key == "" || !util.CheckPasswordHash(key, m.keyHash) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAdminKeyFailure,
				Details: map[string]interface{}{"path": r.URL.Path, "present": key != ""},
			})
			httputil.WriteError(w, apperrors.Unauthorized("Admin key required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
