package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/auroradata-ai/geofence-psi/internal/apierr"
	"github.com/auroradata-ai/geofence-psi/internal/hash"
	"github.com/auroradata-ai/geofence-psi/internal/psi"
	"github.com/auroradata-ai/geofence-psi/internal/userstore"
)

const defaultNearbyDistanceKm = 6.0

// handleLogin implements the token endpoint. It accepts
// application/x-www-form-urlencoded fields username/password (§6) rather
// than JSON, matching the OAuth2-password-grant shape the reference
// client's _get_access_token call targets.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, &apierr.ValidationError{Msg: "malformed form body"})
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := s.Users.Get(username)
	if err != nil || user.Disabled || !hash.Verify(password, user.HashedPassword) {
		s.writeError(w, r, &apierr.AuthError{Reason: "bad credentials"})
		return
	}

	token, expiresAt := s.Tokens.Issue(user.UserID)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleUpsertLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &apierr.ValidationError{Msg: "malformed request body"})
		return
	}

	if req.UserID != currentUser(r) {
		s.writeError(w, r, &apierr.AuthorizationError{Reason: "user_id does not match authenticated user"})
		return
	}

	if err := s.Geo.UpsertPoint(req.UserID, req.Lat, req.Lon, time.Now().UTC()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNearbyUsers serves C2's radius query for the authenticated caller
// (S2, §8 invariant 5): strictly ascending by distance, excluding the
// caller, capped at NearbyMaxUsers.
func (s *Server) handleNearbyUsers(w http.ResponseWriter, r *http.Request) {
	maxDistance := defaultNearbyDistanceKm
	if v := r.URL.Query().Get("max_distance"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, r, &apierr.ValidationError{Msg: "invalid max_distance"})
			return
		}
		maxDistance = parsed
	}

	neighbors, err := s.Geo.QueryNearby(currentUser(r), maxDistance, s.NearbyMaxUsers)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]neighborResponse, len(neighbors))
	for i, n := range neighbors {
		out[i] = neighborResponse{UserID: n.UserID, DistanceKm: n.DistanceKm, Lat: n.Lat, Lon: n.Lon}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePSIInit(w http.ResponseWriter, r *http.Request) {
	var req psiInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &apierr.ValidationError{Msg: "malformed request body"})
		return
	}
	if req.UserID != currentUser(r) {
		s.writeError(w, r, &apierr.AuthorizationError{Reason: "user_id does not match authenticated user"})
		return
	}

	values, ok := decodeValues(req.BlindedValues)
	if !ok {
		s.writeError(w, r, &apierr.ValidationError{Msg: "blinded_values contains a non-integer entry"})
		return
	}

	sid, err := s.Sessions.Init(req.UserID, values)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, psiInitResponse{SessionID: sid})
}

func (s *Server) handlePSIJoin(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	var req psiJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &apierr.ValidationError{Msg: "malformed request body"})
		return
	}
	if req.UserID != currentUser(r) {
		s.writeError(w, r, &apierr.AuthorizationError{Reason: "user_id does not match authenticated user"})
		return
	}

	values, ok := decodeValues(req.ResponseValues)
	if !ok {
		s.writeError(w, r, &apierr.ValidationError{Msg: "response_values contains a non-integer entry"})
		return
	}

	if err := s.Sessions.Join(sid, req.UserID, values); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, psiJoinResponse{Status: psi.StatusJoined.String(), SessionID: sid})
}

func (s *Server) handlePSIGetValues(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	status, initiatorValues, responses, err := s.Sessions.GetValues(sid, currentUser(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := psiValuesResponse{Status: status.String()}
	if initiatorValues != nil {
		resp.Values = encodeValues(initiatorValues)
	}
	if responses != nil {
		resp.Responses = make(map[string][]string, len(responses))
		for user, vals := range responses {
			resp.Responses[user] = encodeValues(vals)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePSIPatchIntersection(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	var req psiIntersectionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, &apierr.ValidationError{Msg: "malformed request body"})
		return
	}
	if req.UserID != currentUser(r) {
		s.writeError(w, r, &apierr.AuthorizationError{Reason: "user_id does not match authenticated user"})
		return
	}

	if err := s.Sessions.PatchIntersection(sid, req.UserID, req.OtherUserID, req.LenIntersection); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": psi.StatusCompleted.String()})
}

func (s *Server) handlePSIGetIntersection(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	n, err := s.Sessions.GetIntersection(sid, currentUser(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, psiIntersectionResponse{IntersectionLen: n})
}

// userLister is implemented by userstore.PostgresStore; MemStore does not
// support pagination, matching the source's (and the teacher's
// db.Database) assumption that listing is a real-store-only concern.
type userLister interface {
	List(start, size int) ([]*userstore.User, error)
}

// handleListUsers is a supplemented admin endpoint (modeled on the source's
// user listing) backing simple operator visibility into provisioned
// accounts; it never returns hashed_password.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.Users.(userLister)
	if !ok {
		writeJSON(w, http.StatusOK, []userSummary{})
		return
	}

	start, size := 0, 100
	if v := r.URL.Query().Get("start"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			size = n
		}
	}

	users, err := lister.List(start, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]userSummary, len(users))
	for i, u := range users {
		out[i] = userSummary{UserID: u.UserID, Disabled: u.Disabled}
	}
	writeJSON(w, http.StatusOK, out)
}
