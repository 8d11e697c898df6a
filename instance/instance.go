// Package instance tracks the connection and auth state of every
// (meeting, provider) pair.
package instance

import (
	"errors"
	"sort"
	"sync"
	"time"

	"agentbridge/config"
)

// Status is the connection state of one instance.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusAuthenticating Status = "authenticating"
	StatusConnected      Status = "connected"
	StatusError          Status = "error"
)

// ErrInstanceNotFound is returned when a mutation targets a (meeting,
// provider) pair that was never initialized.
var ErrInstanceNotFound = errors.New("instance not found")

// Auth is the sign-in state of an instance.
type Auth struct {
	IsAuthenticated bool
	Username        string
	ExpiresAt       time.Time
}

// AuthPatch is a partial Auth update. Nil fields are left unchanged.
type AuthPatch struct {
	IsAuthenticated *bool
	Username        *string
	ExpiresAt       *time.Time
}

// Authenticated is the patch applied after a successful sign-in.
func Authenticated(username string, expiresAt time.Time) AuthPatch {
	ok := true
	return AuthPatch{IsAuthenticated: &ok, Username: &username, ExpiresAt: &expiresAt}
}

// SignedOut clears the authenticated flag and leaves the rest untouched.
func SignedOut() AuthPatch {
	ok := false
	return AuthPatch{IsAuthenticated: &ok}
}

// Key identifies an instance.
type Key struct {
	MeetingID  string
	ProviderID string
}

// Instance is the state of one provider inside one meeting.
type Instance struct {
	MeetingID  string
	ProviderID string
	Status     Status
	Auth       *Auth
	Reason     string // failure reason while Status is StatusError
	UpdatedAt  time.Time
}

// IsAuthenticated reports whether the instance holds a signed-in auth record.
func (i Instance) IsAuthenticated() bool {
	return i.Auth != nil && i.Auth.IsAuthenticated
}

func (i Instance) clone() Instance {
	if i.Auth != nil {
		a := *i.Auth
		i.Auth = &a
	}
	return i
}

// Store holds every instance. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	instances map[Key]*Instance
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		instances: make(map[Key]*Instance),
		now:       time.Now,
	}
}

// Initialize creates an idle instance for the pair unless one exists.
// It reports whether an instance was created.
func (s *Store) Initialize(meetingID, providerID string) bool {
	key := Key{MeetingID: meetingID, ProviderID: providerID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[key]; ok {
		return false
	}
	s.instances[key] = &Instance{
		MeetingID:  meetingID,
		ProviderID: providerID,
		Status:     StatusIdle,
		UpdatedAt:  s.now(),
	}

	if config.Debug {
		config.DebugLog.Printf("[Instance] Initialized %s/%s", meetingID, providerID)
	}
	return true
}

// SetAuth merges patch into the instance's auth record, creating the
// record if needed.
func (s *Store) SetAuth(meetingID, providerID string, patch AuthPatch) error {
	return s.update(meetingID, providerID, "SetAuth", func(inst *Instance) {
		if inst.Auth == nil {
			inst.Auth = &Auth{}
		}
		if patch.IsAuthenticated != nil {
			inst.Auth.IsAuthenticated = *patch.IsAuthenticated
		}
		if patch.Username != nil {
			inst.Auth.Username = *patch.Username
		}
		if patch.ExpiresAt != nil {
			inst.Auth.ExpiresAt = *patch.ExpiresAt
		}
	})
}

// SetStatus sets the status without validating the transition. Leaving
// StatusError clears the failure reason.
func (s *Store) SetStatus(meetingID, providerID string, status Status) error {
	return s.update(meetingID, providerID, "SetStatus", func(inst *Instance) {
		inst.Status = status
		if status != StatusError {
			inst.Reason = ""
		}
	})
}

// Fail sets StatusError and records reason.
func (s *Store) Fail(meetingID, providerID, reason string) error {
	return s.update(meetingID, providerID, "Fail", func(inst *Instance) {
		inst.Status = StatusError
		inst.Reason = reason
	})
}

func (s *Store) update(meetingID, providerID, op string, apply func(*Instance)) error {
	key := Key{MeetingID: meetingID, ProviderID: providerID}

	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[key]
	if !ok {
		if config.Debug {
			config.DebugLog.Printf("[Instance] %s on missing instance %s/%s ignored", op, meetingID, providerID)
		}
		return ErrInstanceNotFound
	}

	apply(inst)
	inst.UpdatedAt = s.now()

	if config.Debug {
		config.DebugLog.Printf("[Instance] %s %s/%s -> status=%s authenticated=%v",
			op, meetingID, providerID, inst.Status, inst.IsAuthenticated())
	}
	return nil
}

// Get returns a copy of the instance.
func (s *Store) Get(meetingID, providerID string) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[Key{MeetingID: meetingID, ProviderID: providerID}]
	if !ok {
		return Instance{}, false
	}
	return inst.clone(), true
}

// ForMeeting returns copies of the meeting's instances sorted by provider ID.
func (s *Store) ForMeeting(meetingID string) []Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Instance
	for key, inst := range s.instances {
		if key.MeetingID == meetingID {
			out = append(out, inst.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// RemoveMeeting drops every instance belonging to meetingID and returns how
// many were removed.
func (s *Store) RemoveMeeting(meetingID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.instances {
		if key.MeetingID == meetingID {
			delete(s.instances, key)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}
