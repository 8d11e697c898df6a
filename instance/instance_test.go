package instance

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInitializeIsIdempotent(t *testing.T) {
	s := NewStore()

	if !s.Initialize("m1", "p1") {
		t.Error("first Initialize() = false, want true")
	}
	if err := s.SetStatus("m1", "p1", StatusConnected); err != nil {
		t.Fatal(err)
	}
	if s.Initialize("m1", "p1") {
		t.Error("second Initialize() = true, want false")
	}

	inst, ok := s.Get("m1", "p1")
	if !ok {
		t.Fatal("instance missing")
	}
	if inst.Status != StatusConnected {
		t.Errorf("Status = %s, second Initialize() must not reset it", inst.Status)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestMutationsOnMissingInstance(t *testing.T) {
	s := NewStore()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"SetAuth", func() error { return s.SetAuth("m1", "p1", Authenticated("alice", time.Now())) }},
		{"SetStatus", func() error { return s.SetStatus("m1", "p1", StatusConnected) }},
		{"Fail", func() error { return s.Fail("m1", "p1", "network") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrInstanceNotFound) {
				t.Errorf("error = %v, want ErrInstanceNotFound", err)
			}
			if _, ok := s.Get("m1", "p1"); ok {
				t.Error("mutation created an instance")
			}
		})
	}
}

func TestSetAuthMergesPatch(t *testing.T) {
	s := NewStore()
	s.Initialize("m1", "p1")

	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.SetAuth("m1", "p1", Authenticated("alice@contoso.com", expires)); err != nil {
		t.Fatal(err)
	}

	name := "bob@contoso.com"
	if err := s.SetAuth("m1", "p1", AuthPatch{Username: &name}); err != nil {
		t.Fatal(err)
	}

	inst, _ := s.Get("m1", "p1")
	if !inst.IsAuthenticated() {
		t.Error("IsAuthenticated lost by partial patch")
	}
	if inst.Auth.Username != name {
		t.Errorf("Username = %q, want %q", inst.Auth.Username, name)
	}
	if !inst.Auth.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", inst.Auth.ExpiresAt, expires)
	}

	if err := s.SetAuth("m1", "p1", SignedOut()); err != nil {
		t.Fatal(err)
	}
	inst, _ = s.Get("m1", "p1")
	if inst.IsAuthenticated() || inst.Auth.Username != name {
		t.Errorf("SignedOut() patch = %+v", inst.Auth)
	}
}

func TestFailAndRecover(t *testing.T) {
	s := NewStore()
	s.Initialize("m1", "p1")

	if err := s.Fail("m1", "p1", "expired"); err != nil {
		t.Fatal(err)
	}
	inst, _ := s.Get("m1", "p1")
	if inst.Status != StatusError || inst.Reason != "expired" {
		t.Errorf("after Fail: status=%s reason=%q", inst.Status, inst.Reason)
	}

	if err := s.SetStatus("m1", "p1", StatusAuthenticating); err != nil {
		t.Fatal(err)
	}
	inst, _ = s.Get("m1", "p1")
	if inst.Reason != "" {
		t.Errorf("Reason = %q, want cleared when leaving error", inst.Reason)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Initialize("m1", "p1")
	s.SetAuth("m1", "p1", Authenticated("alice", time.Now()))

	inst, _ := s.Get("m1", "p1")
	inst.Status = StatusError
	inst.Auth.Username = "mallory"

	again, _ := s.Get("m1", "p1")
	if again.Status != StatusIdle || again.Auth.Username != "alice" {
		t.Errorf("store mutated through copy: %+v %+v", again, again.Auth)
	}
}

func TestForMeetingAndRemove(t *testing.T) {
	s := NewStore()
	s.Initialize("m1", "zeta")
	s.Initialize("m1", "alpha")
	s.Initialize("m2", "alpha")

	got := s.ForMeeting("m1")
	if len(got) != 2 || got[0].ProviderID != "alpha" || got[1].ProviderID != "zeta" {
		t.Errorf("ForMeeting(m1) = %+v", got)
	}

	if n := s.RemoveMeeting("m1"); n != 2 {
		t.Errorf("RemoveMeeting() = %d, want 2", n)
	}
	if len(s.ForMeeting("m1")) != 0 {
		t.Error("instances remain after RemoveMeeting")
	}
	if _, ok := s.Get("m2", "alpha"); !ok {
		t.Error("RemoveMeeting removed another meeting's instance")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Initialize("m1", "p1")
			s.SetStatus("m1", "p1", StatusAuthenticating)
			s.Get("m1", "p1")
			s.ForMeeting("m1")
		}(i)
	}
	wg.Wait()

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
