package meeting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentbridge/config"
)

// ErrTabNotFound is returned for operations on a meeting tab that is not open.
var ErrTabNotFound = errors.New("meeting tab not found")

// Tab is one open meeting. A meeting has at most one active provider.
type Tab struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ActiveProviderID string    `json:"active_provider_id,omitempty"`
	AgentName        string    `json:"agent_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Tabs is the ordered set of open meeting tabs. It is safe for concurrent use.
type Tabs struct {
	mu    sync.RWMutex
	order []string
	tabs  map[string]*Tab
	now   func() time.Time
}

func NewTabs() *Tabs {
	return &Tabs{
		tabs: make(map[string]*Tab),
		now:  time.Now,
	}
}

// Open appends a new tab. An empty title becomes "Meeting N".
func (t *Tabs) Open(title string) Tab {
	t.mu.Lock()
	defer t.mu.Unlock()

	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("Meeting %d", len(t.order)+1)
	}

	now := t.now()
	tab := &Tab{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.tabs[tab.ID] = tab
	t.order = append(t.order, tab.ID)

	if config.Debug {
		config.DebugLog.Printf("[Meeting] Opened tab %s (%q)", tab.ID, tab.Title)
	}
	return *tab
}

// Close removes a tab and reports whether it was open.
func (t *Tabs) Close(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tabs[id]; !ok {
		return false
	}
	delete(t.tabs, id)
	for i, tid := range t.order {
		if tid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}

	if config.Debug {
		config.DebugLog.Printf("[Meeting] Closed tab %s", id)
	}
	return true
}

func (t *Tabs) Get(id string) (Tab, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tab, ok := t.tabs[id]
	if !ok {
		return Tab{}, false
	}
	return *tab, true
}

// List returns the tabs in the order they were opened.
func (t *Tabs) List() []Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Tab, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tabs[id])
	}
	return out
}

func (t *Tabs) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Index returns the position of a tab, or -1.
func (t *Tabs) Index(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, tid := range t.order {
		if tid == id {
			return i
		}
	}
	return -1
}

// Restore replaces the open tabs with persisted ones. Tabs without an ID
// and repeated IDs are skipped.
func (t *Tabs) Restore(tabs []Tab) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tabs = make(map[string]*Tab, len(tabs))
	t.order = t.order[:0]
	for _, tab := range tabs {
		if tab.ID == "" {
			continue
		}
		if _, dup := t.tabs[tab.ID]; dup {
			continue
		}
		tab := tab
		t.tabs[tab.ID] = &tab
		t.order = append(t.order, tab.ID)
	}

	if config.Debug {
		config.DebugLog.Printf("[Meeting] Restored %d of %d tabs", len(t.order), len(tabs))
	}
	return len(t.order)
}

// Update applies fn to a tab under the lock, so readers never see a
// partially applied change.
func (t *Tabs) Update(id string, fn func(*Tab)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tab, ok := t.tabs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, id)
	}
	fn(tab)
	tab.UpdatedAt = t.now()
	return nil
}
