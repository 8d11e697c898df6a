package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentbridge/config"
	"agentbridge/meeting"
)

// ErrMeetingNotFound is returned by Load and Delete for unknown IDs.
var ErrMeetingNotFound = errors.New("meeting not found")

// Meeting is the persisted form of a meeting tab.
type Meeting struct {
	Tab meeting.Tab `json:"tab"`
	// Providers lists every provider used in the meeting, so their
	// instances can be recreated on restore.
	Providers []string `json:"providers,omitempty"`
}

// MeetingStorage handles meeting persistence
type MeetingStorage struct {
	meetingsDir string
	now         func() time.Time
}

// NewMeetingStorage creates <dataDir>/meetings with user-only access.
func NewMeetingStorage(dataDir string) (*MeetingStorage, error) {
	meetingsDir := filepath.Join(dataDir, "meetings")

	if err := os.MkdirAll(meetingsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create meetings directory: %w", err)
	}

	return &MeetingStorage{
		meetingsDir: meetingsDir,
		now:         time.Now,
	}, nil
}

func (s *MeetingStorage) path(id string) string {
	return filepath.Join(s.meetingsDir, id+".json")
}

// validID rejects IDs that would escape the meetings directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}

// Save writes a meeting to disk, assigning an ID if it has none.
func (s *MeetingStorage) Save(m *Meeting) error {
	if m.Tab.ID == "" {
		m.Tab.ID = uuid.NewString()
	}
	if !validID(m.Tab.ID) {
		return fmt.Errorf("invalid meeting id: %q", m.Tab.ID)
	}

	if m.Tab.UpdatedAt.IsZero() {
		m.Tab.UpdatedAt = s.now()
	}
	if m.Tab.CreatedAt.IsZero() {
		m.Tab.CreatedAt = m.Tab.UpdatedAt
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal meeting: %w", err)
	}

	// 0600: meeting files name the accounts and agents in use
	if err := os.WriteFile(s.path(m.Tab.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write meeting file: %w", err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Storage] Saved meeting %s", m.Tab.ID)
	}
	return nil
}

// Load reads one meeting from disk
func (s *MeetingStorage) Load(id string) (*Meeting, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrMeetingNotFound, id)
	}

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read meeting file: %w", err)
	}

	var m Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meeting: %w", err)
	}
	return &m, nil
}

// List returns all meetings, sorted by update time (newest first).
// Unreadable files are skipped.
func (s *MeetingStorage) List() ([]Meeting, error) {
	entries, err := os.ReadDir(s.meetingsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read meetings directory: %w", err)
	}

	var meetings []Meeting
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		m, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			if config.Debug {
				config.DebugLog.Printf("[Storage] Skipping %s: %v", entry.Name(), err)
			}
			continue
		}
		meetings = append(meetings, *m)
	}

	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].Tab.UpdatedAt.After(meetings[j].Tab.UpdatedAt)
	})
	return meetings, nil
}

// Delete removes a meeting from disk
func (s *MeetingStorage) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", ErrMeetingNotFound, id)
	}

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete meeting file: %w", err)
	}
	return nil
}

func (s *MeetingStorage) dataDir() string {
	return filepath.Dir(s.meetingsDir)
}

// SaveCurrentMeetingID remembers the focused meeting across restarts.
func (s *MeetingStorage) SaveCurrentMeetingID(id string) error {
	path := filepath.Join(s.dataDir(), "current_meeting.id")
	return os.WriteFile(path, []byte(id), 0600)
}

// LoadCurrentMeetingID returns the meeting focused when the app last exited.
func (s *MeetingStorage) LoadCurrentMeetingID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir(), "current_meeting.id"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *MeetingStorage) lockPath() string {
	return filepath.Join(s.dataDir(), "agentbridge.lock")
}

// LockInstance records this process as the running instance.
// Lock file: <data_dir>/agentbridge.lock, content: PID.
func (s *MeetingStorage) LockInstance() error {
	return os.WriteFile(s.lockPath(), []byte(fmt.Sprintf("%d", os.Getpid())), 0600)
}

// UnlockInstance removes the instance lock. A missing lock is not an error.
func (s *MeetingStorage) UnlockInstance() error {
	err := os.Remove(s.lockPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckInstanceLock reports whether another instance holds the lock and
// its PID. Unparseable lock files are removed. A lock held by this process
// does not count.
func (s *MeetingStorage) CheckInstanceLock() (bool, int, error) {
	lockPath := s.lockPath()

	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil || pid <= 0 {
		_ = os.Remove(lockPath)
		return false, 0, nil
	}
	if pid == os.Getpid() {
		return false, 0, nil
	}

	// os.FindProcess always succeeds on Unix; on Windows it fails for
	// processes that have exited.
	if _, err := os.FindProcess(pid); err != nil {
		_ = os.Remove(lockPath)
		return false, 0, nil
	}

	return true, pid, nil
}
