package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/auroradata-ai/geofence-psi/internal/apierr"
)

type errorBody struct {
	Detail string `json:"detail"`
}

// writeError maps an apierr taxonomy value to its HTTP status (§6, §7) and
// writes a JSON body. Unrecognized errors are treated as upstream/internal
// failures and never leak their detail to the client. Login failures,
// forbidden cross-user access, and session expiry are additionally recorded
// on the audit trail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	detail := "internal error"

	switch e := err.(type) {
	case *apierr.AuthError:
		status, detail = http.StatusUnauthorized, "unauthorized"
		s.Log.Audit("login_failure", map[string]interface{}{"path": r.URL.Path, "reason": e.Reason})
	case *apierr.AuthorizationError:
		status, detail = http.StatusForbidden, e.Error()
		s.Log.Audit("forbidden_access", map[string]interface{}{"path": r.URL.Path, "user": currentUser(r), "reason": e.Reason})
	case *apierr.NotFoundError:
		status, detail = http.StatusNotFound, e.Error()
	case *apierr.ExpiredError:
		status, detail = http.StatusGone, e.Error()
		s.Log.Audit("session_expired", map[string]interface{}{"path": r.URL.Path, "user": currentUser(r), "resource": e.Resource, "id": e.ID})
	case *apierr.StateError:
		status, detail = http.StatusBadRequest, e.Error()
	case *apierr.ValidationError:
		status, detail = http.StatusBadRequest, e.Error()
	case *apierr.UpstreamError:
		status, detail = http.StatusInternalServerError, "internal error"
	}

	writeJSON(w, status, errorBody{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
