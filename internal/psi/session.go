// Package psi implements the server-side PSI session state machine: an
// explicit, passed-in SessionManager (no process-wide globals, unlike the
// source's module-level session_manager) holding PSISession records keyed
// by a UUID v4 session_id, with per-session locking, single-representation
// named status, and expiry-on-access rather than a delete-during-iterate
// sweep.
package psi

import (
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auroradata-ai/geofence-psi/internal/apierr"
	"github.com/auroradata-ai/geofence-psi/internal/psigroup"
)

// Status is a PSISession lifecycle state. Transitions are monotonically
// non-decreasing: INITIATED -> JOINED -> COMPLETED.
type Status int

const (
	StatusInitiated Status = iota + 1
	StatusJoined
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusInitiated:
		return "INITIATED"
	case StatusJoined:
		return "JOINED"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// DefaultTimeout is the default PSI session TTL (§6, SESSION_TIMEOUT).
const DefaultTimeout = 30 * time.Minute

// Session is one PSISession record (§3).
type Session struct {
	ID              string
	InitiatorUserID string
	InitiatorValues []*big.Int
	Responses       map[string][]*big.Int
	Intersections   map[string]int
	Status          Status
	CreatedAt       time.Time
}

// Manager is the server-side PSISessionManager (C7): an in-memory session
// table with one reader-writer lock guarding map membership and a
// per-session mutex serializing state-machine steps (§5).
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	timeout  time.Duration
	now      func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

// NewManager constructs a Manager with the given session TTL.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*sessionEntry),
		timeout:  timeout,
		now:      time.Now,
	}
}

// NewManagerWithClock builds a Manager whose notion of "now" is supplied by
// now, letting tests exercise expiry without a real 30-minute sleep (S5).
func NewManagerWithClock(timeout time.Duration, now func() time.Time) *Manager {
	m := NewManager(timeout)
	m.now = now
	return m
}

// Init creates a new session in INITIATED status (step 1, §4.3/§4.4).
func (m *Manager) Init(userID string, values []*big.Int) (string, error) {
	if err := validateValues(values); err != nil {
		return "", err
	}

	id := uuid.NewString()
	s := &Session{
		ID:              id,
		InitiatorUserID: userID,
		InitiatorValues: values,
		Responses:       make(map[string][]*big.Int),
		Intersections:   make(map[string]int),
		Status:          StatusInitiated,
		CreatedAt:       m.now(),
	}

	m.mu.Lock()
	m.sessions[id] = &sessionEntry{session: s}
	m.mu.Unlock()
	return id, nil
}

// Join stores a joiner's response values (step 2, §4.3/§4.4). Any
// authenticated user other than the initiator may join while the session is
// INITIATED or JOINED, provided they have not already joined.
func (m *Manager) Join(sessionID, userID string, values []*big.Int) error {
	entry, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s := entry.session

	if userID == s.InitiatorUserID {
		return &apierr.AuthorizationError{Reason: "initiator cannot join their own session"}
	}
	if s.Status != StatusInitiated && s.Status != StatusJoined {
		return &apierr.StateError{Msg: "invalid session status (" + s.Status.String() + "), expected INITIATED or JOINED"}
	}
	if _, already := s.Responses[userID]; already {
		return &apierr.StateError{Msg: "user has already joined this session"}
	}
	if err := validateValues(values); err != nil {
		return err
	}
	want := len(s.InitiatorValues)
	if len(values) <= want {
		return &apierr.ValidationError{Msg: "response values too short for initiator set size"}
	}

	s.Responses[userID] = values
	s.Status = StatusJoined
	return nil
}

// GetValues returns the session's current status together with either the
// initiator's values (while INITIATED, visible to any authenticated user) or
// the joiner responses (once JOINED or COMPLETED, initiator-only, §4.4
// access rules).
func (m *Manager) GetValues(sessionID, userID string) (Status, []*big.Int, map[string][]*big.Int, error) {
	entry, err := m.lookup(sessionID)
	if err != nil {
		return 0, nil, nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s := entry.session

	if s.Status == StatusInitiated {
		return s.Status, s.InitiatorValues, nil, nil
	}
	if userID != s.InitiatorUserID {
		return 0, nil, nil, &apierr.AuthorizationError{Reason: "only the initiator may read joined responses"}
	}
	return s.Status, nil, s.Responses, nil
}

// PatchIntersection records the reported intersection size with other
// (step 3, §4.3/§4.4). Only the initiator may call this, and only while the
// session is JOINED; it moves the session to COMPLETED.
func (m *Manager) PatchIntersection(sessionID, userID, other string, k int) error {
	if k < 0 {
		return &apierr.ValidationError{Msg: "intersection size must be non-negative"}
	}

	entry, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s := entry.session

	if userID != s.InitiatorUserID {
		return &apierr.AuthorizationError{Reason: "only the initiator may report an intersection result"}
	}
	if s.Status != StatusJoined {
		return &apierr.StateError{Msg: "invalid session status (" + s.Status.String() + "), expected JOINED"}
	}
	if _, joined := s.Responses[other]; !joined {
		return &apierr.ValidationError{Msg: "other_user_id did not join this session"}
	}

	s.Intersections[other] = k
	s.Status = StatusCompleted
	return nil
}

// GetIntersection returns the intersection size recorded for userID, or -1
// if none has been recorded yet (§4.4).
func (m *Manager) GetIntersection(sessionID, userID string) (int, error) {
	entry, err := m.lookup(sessionID)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	s := entry.session

	if n, ok := s.Intersections[userID]; ok {
		return n, nil
	}
	return -1, nil
}

// lookup finds the session entry, evicting and reporting it as expired if
// its age exceeds the manager's timeout (§4.4 expiry policy: checked on
// every access, no background timer required for correctness).
func (m *Manager) lookup(sessionID string) (*sessionEntry, error) {
	m.mu.RLock()
	entry, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, &apierr.NotFoundError{Resource: "session", ID: sessionID}
	}

	entry.mu.Lock()
	expired := m.now().Sub(entry.session.CreatedAt) > m.timeout
	entry.mu.Unlock()

	if expired {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		return nil, &apierr.ExpiredError{Resource: "session", ID: sessionID}
	}
	return entry, nil
}

// Sweep opportunistically evicts expired sessions into a scratch slice
// before deleting, avoiding the delete-during-iterate bug the original
// sweep had (§9). Correctness never depends on this being called.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []string
	for id, entry := range m.sessions {
		entry.mu.Lock()
		isExpired := m.now().Sub(entry.session.CreatedAt) > m.timeout
		entry.mu.Unlock()
		if isExpired {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	return len(expired)
}

func validateValues(values []*big.Int) error {
	if len(values) == 0 {
		return &apierr.ValidationError{Msg: "value list must not be empty"}
	}
	for _, v := range values {
		if !psigroup.InRange(v) {
			return &apierr.ValidationError{Msg: "group element out of range [1, p-1]"}
		}
	}
	return nil
}
