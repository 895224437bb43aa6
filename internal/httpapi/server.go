// Package httpapi implements C8, the HTTP surface: routing, bearer-token
// auth middleware, request/response schemas, and error-to-status mapping.
// Handlers are kept thin; all domain logic lives in the internal/psi,
// internal/geostore, internal/userstore and internal/authtoken packages.
// Routing and middleware follow the teacher's net/http + closure-based
// SecurityMiddleware pattern (internal/server/security.go), adapted from
// a TCP/rate-limit concern to bearer-token authentication.
package httpapi

import (
	"net/http"

	"github.com/auroradata-ai/geofence-psi/internal/authtoken"
	"github.com/auroradata-ai/geofence-psi/internal/geostore"
	"github.com/auroradata-ai/geofence-psi/internal/logging"
	"github.com/auroradata-ai/geofence-psi/internal/psi"
	"github.com/auroradata-ai/geofence-psi/internal/userstore"
)

// Server wires the HTTP surface to its domain collaborators.
type Server struct {
	Users    userstore.Store
	Geo      geostore.Store
	Tokens   *authtoken.Service
	Sessions *psi.Manager
	Log      *logging.Logger

	NearbyMaxUsers int
}

// NewServer constructs a Server with the given collaborators. nearbyMax is
// the cap on returned neighbors (MAX_NUM_USERS_NEARBY, default 20, §6).
func NewServer(users userstore.Store, geo geostore.Store, tokens *authtoken.Service, sessions *psi.Manager, nearbyMax int) *Server {
	return &Server{
		Users:          users,
		Geo:            geo,
		Tokens:         tokens,
		Sessions:       sessions,
		Log:            logging.Get(),
		NearbyMaxUsers: nearbyMax,
	}
}

// Routes builds the top-level handler, applying the auth middleware to
// every endpoint except the token endpoint itself.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login_for_access_token", s.handleLogin)

	mux.Handle("POST /locations", s.authed(s.handleUpsertLocation))
	mux.Handle("GET /locations/nearby_users", s.authed(s.handleNearbyUsers))

	mux.Handle("POST /psi/init", s.authed(s.handlePSIInit))
	mux.Handle("POST /psi/{sid}/join", s.authed(s.handlePSIJoin))
	mux.Handle("GET /psi/{sid}", s.authed(s.handlePSIGetValues))
	mux.Handle("PATCH /psi/{sid}/intersection", s.authed(s.handlePSIPatchIntersection))
	mux.Handle("GET /psi/{sid}/intersection", s.authed(s.handlePSIGetIntersection))

	mux.Handle("GET /admin/users", s.authed(s.handleListUsers))

	return mux
}
