package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentbridge/meeting"
)

func newTestStorage(t *testing.T) (*MeetingStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewMeetingStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	return s, dir
}

func TestSaveAndLoad(t *testing.T) {
	s, dir := newTestStorage(t)

	m := &Meeting{
		Tab:       meeting.Tab{Title: "Standup", ActiveProviderID: "p1", AgentName: "Bot"},
		Providers: []string{"p1", "anon"},
	}
	if err := s.Save(m); err != nil {
		t.Fatal(err)
	}
	if m.Tab.ID == "" || m.Tab.CreatedAt.IsZero() {
		t.Fatalf("Save() did not fill ID/timestamps: %+v", m.Tab)
	}

	info, err := os.Stat(filepath.Join(dir, "meetings", m.Tab.ID+".json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}

	got, err := s.Load(m.Tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tab.Title != "Standup" || got.Tab.AgentName != "Bot" || len(got.Providers) != 2 {
		t.Errorf("Load() = %+v", got)
	}
}

func TestLoadAndDeleteMissing(t *testing.T) {
	s, _ := newTestStorage(t)

	for _, id := range []string{"nope", "../escape", ""} {
		if _, err := s.Load(id); !errors.Is(err, ErrMeetingNotFound) {
			t.Errorf("Load(%q) = %v, want ErrMeetingNotFound", id, err)
		}
		if err := s.Delete(id); !errors.Is(err, ErrMeetingNotFound) {
			t.Errorf("Delete(%q) = %v, want ErrMeetingNotFound", id, err)
		}
	}

	if err := s.Save(&Meeting{Tab: meeting.Tab{ID: "a/b"}}); err == nil {
		t.Error("Save() accepted an ID with a path separator")
	}
}

func TestListNewestFirst(t *testing.T) {
	s, dir := newTestStorage(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, title := range []string{"old", "newest", "middle"} {
		offset := map[string]time.Duration{"old": 0, "newest": 2 * time.Hour, "middle": time.Hour}[title]
		m := &Meeting{Tab: meeting.Tab{ID: fmt.Sprintf("m%d", i), Title: title, UpdatedAt: base.Add(offset)}}
		if err := s.Save(m); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "meetings", "broken.json"), []byte("{"), 0600)
	os.WriteFile(filepath.Join(dir, "meetings", "notes.txt"), []byte("x"), 0600)

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("List() returned %d meetings, want 3", len(list))
	}
	for i, want := range []string{"newest", "middle", "old"} {
		if list[i].Tab.Title != want {
			t.Errorf("List()[%d] = %q, want %q", i, list[i].Tab.Title, want)
		}
	}

	if err := s.Delete("m0"); err != nil {
		t.Fatal(err)
	}
	list, _ = s.List()
	if len(list) != 2 {
		t.Errorf("List() after Delete = %d", len(list))
	}
}

func TestCurrentMeetingID(t *testing.T) {
	s, _ := newTestStorage(t)

	if _, err := s.LoadCurrentMeetingID(); err == nil {
		t.Error("expected error before any ID was saved")
	}
	if err := s.SaveCurrentMeetingID("abc"); err != nil {
		t.Fatal(err)
	}
	id, err := s.LoadCurrentMeetingID()
	if err != nil || id != "abc" {
		t.Errorf("LoadCurrentMeetingID() = %q, %v", id, err)
	}
}

func TestInstanceLock(t *testing.T) {
	s, dir := newTestStorage(t)
	lockPath := filepath.Join(dir, "agentbridge.lock")

	tests := []struct {
		name       string
		content    string
		wantLocked bool
		wantFile   bool
	}{
		{"no lock", "", false, false},
		{"garbage", "not-a-pid", false, false},
		{"own pid", fmt.Sprintf("%d", os.Getpid()), false, true},
		{"other pid", fmt.Sprintf("%d", os.Getpid()+1), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(lockPath)
			if tt.content != "" {
				if err := os.WriteFile(lockPath, []byte(tt.content), 0600); err != nil {
					t.Fatal(err)
				}
			}

			locked, pid, err := s.CheckInstanceLock()
			if err != nil {
				t.Fatal(err)
			}
			if locked != tt.wantLocked {
				t.Errorf("locked = %v, want %v", locked, tt.wantLocked)
			}
			if locked && pid != os.Getpid()+1 {
				t.Errorf("pid = %d", pid)
			}
			if _, err := os.Stat(lockPath); (err == nil) != tt.wantFile {
				t.Errorf("lock file exists = %v, want %v", err == nil, tt.wantFile)
			}
		})
	}
}

func TestLockUnlock(t *testing.T) {
	s, dir := newTestStorage(t)

	if err := s.LockInstance(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "agentbridge.lock"))
	if err != nil || string(data) != fmt.Sprintf("%d", os.Getpid()) {
		t.Errorf("lock content = %q, %v", data, err)
	}

	if err := s.UnlockInstance(); err != nil {
		t.Fatal(err)
	}
	if err := s.UnlockInstance(); err != nil {
		t.Errorf("second UnlockInstance() = %v", err)
	}
}
