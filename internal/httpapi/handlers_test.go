package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auroradata-ai/geofence-psi/internal/authtoken"
	"github.com/auroradata-ai/geofence-psi/internal/geostore"
	"github.com/auroradata-ai/geofence-psi/internal/hash"
	"github.com/auroradata-ai/geofence-psi/internal/psi"
	"github.com/auroradata-ai/geofence-psi/internal/userstore"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	users := userstore.NewMemStore()
	digest, err := hash.Hash("secret")
	require.NoError(t, err)
	require.NoError(t, users.Upsert("alice", digest, false))
	require.NoError(t, users.Upsert("bob", digest, false))

	geo := geostore.NewMemStore()
	tokens := authtoken.New("test-secret", time.Hour)
	sessions := psi.NewManager(psi.DefaultTimeout)

	srv := NewServer(users, geo, tokens, sessions, 20)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func login(t *testing.T, ts *httptest.Server, username, password string) string {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := http.PostForm(ts.URL+"/login_for_access_token", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.AccessToken
}

func authedRequest(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestLoginSuccessAndFailure(t *testing.T) {
	_, ts := newTestServer(t)

	token := login(t, ts, "alice", "secret")
	require.NotEmpty(t, token)

	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	resp, err := http.PostForm(ts.URL+"/login_for_access_token", form)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/locations/nearby_users")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// S4 — wrong-user forbidden: alice authenticates but names bob in the
// request body.
func TestLocationUpsertForbiddenForOtherUser(t *testing.T) {
	_, ts := newTestServer(t)
	token := login(t, ts, "alice", "secret")

	resp := authedRequest(t, http.MethodPost, ts.URL+"/locations", token, locationRequest{
		UserID: "bob", Lat: 51.5, Lon: -0.12,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLocationUpsertAndNearby(t *testing.T) {
	_, ts := newTestServer(t)
	aliceToken := login(t, ts, "alice", "secret")
	bobToken := login(t, ts, "bob", "secret")

	resp := authedRequest(t, http.MethodPost, ts.URL+"/locations", aliceToken, locationRequest{
		UserID: "alice", Lat: 51.5007, Lon: -0.1246,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = authedRequest(t, http.MethodPost, ts.URL+"/locations", bobToken, locationRequest{
		UserID: "bob", Lat: 51.5033, Lon: -0.1196,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = authedRequest(t, http.MethodGet, ts.URL+"/locations/nearby_users?max_distance=6", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var neighbors []neighborResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&neighbors))
	require.Len(t, neighbors, 1)
	require.Equal(t, "bob", neighbors[0].UserID)
}

// S3 — PSI end-to-end over the HTTP surface.
func TestPSIEndToEndOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	aliceToken := login(t, ts, "alice", "secret")
	bobToken := login(t, ts, "bob", "secret")

	initResp := authedRequest(t, http.MethodPost, ts.URL+"/psi/init", aliceToken, psiInitRequest{
		UserID:        "alice",
		BlindedValues: []string{"5", "7", "11"},
	})
	require.Equal(t, http.StatusCreated, initResp.StatusCode)
	var initBody psiInitResponse
	require.NoError(t, json.NewDecoder(initResp.Body).Decode(&initBody))
	require.NotEmpty(t, initBody.SessionID)

	getResp := authedRequest(t, http.MethodGet, ts.URL+"/psi/"+initBody.SessionID, bobToken, nil)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var values psiValuesResponse
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&values))
	require.Equal(t, "INITIATED", values.Status)
	require.Len(t, values.Values, 3)

	joinResp := authedRequest(t, http.MethodPost, ts.URL+"/psi/"+initBody.SessionID+"/join", bobToken, psiJoinRequest{
		SessionID:      initBody.SessionID,
		UserID:         "bob",
		ResponseValues: []string{"13", "17", "5", "7", "11"},
	})
	require.Equal(t, http.StatusOK, joinResp.StatusCode)

	patchResp := authedRequest(t, http.MethodPatch, ts.URL+"/psi/"+initBody.SessionID+"/intersection", aliceToken, psiIntersectionUpdateRequest{
		UserID:          "alice",
		OtherUserID:     "bob",
		LenIntersection: 3,
	})
	require.Equal(t, http.StatusOK, patchResp.StatusCode)

	intersectionResp := authedRequest(t, http.MethodGet, ts.URL+"/psi/"+initBody.SessionID+"/intersection", bobToken, nil)
	require.Equal(t, http.StatusOK, intersectionResp.StatusCode)
	var intersection psiIntersectionResponse
	require.NoError(t, json.NewDecoder(intersectionResp.Body).Decode(&intersection))
	require.Equal(t, 3, intersection.IntersectionLen)
}

func TestPSIGetValuesJoinedRestrictedToInitiator(t *testing.T) {
	_, ts := newTestServer(t)
	aliceToken := login(t, ts, "alice", "secret")
	bobToken := login(t, ts, "bob", "secret")

	initResp := authedRequest(t, http.MethodPost, ts.URL+"/psi/init", aliceToken, psiInitRequest{
		UserID:        "alice",
		BlindedValues: []string{"5", "7"},
	})
	var initBody psiInitResponse
	require.NoError(t, json.NewDecoder(initResp.Body).Decode(&initBody))

	joinResp := authedRequest(t, http.MethodPost, ts.URL+"/psi/"+initBody.SessionID+"/join", bobToken, psiJoinRequest{
		SessionID:      initBody.SessionID,
		UserID:         "bob",
		ResponseValues: []string{"13", "5", "7"},
	})
	require.Equal(t, http.StatusOK, joinResp.StatusCode)

	getResp := authedRequest(t, http.MethodGet, ts.URL+"/psi/"+initBody.SessionID, bobToken, nil)
	require.Equal(t, http.StatusForbidden, getResp.StatusCode)
}

func TestAuthorizationHeaderMissingBearerPrefix(t *testing.T) {
	_, ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/locations/nearby_users", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "not-bearer")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
