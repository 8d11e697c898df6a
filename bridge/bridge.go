// Package bridge wires the application together.
//
// A Bridge is created once at startup and owns the provider registry, the
// instance store, the meeting tabs and the binding between them. Close is
// the matching teardown.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	transport "github.com/mark3labs/mcp-go/client/transport"

	"agentbridge/auth"
	"agentbridge/config"
	"agentbridge/instance"
	"agentbridge/meeting"
	"agentbridge/provider"
	"agentbridge/storage"
)

type Option func(*Bridge)

// WithIdentityFactory replaces the Microsoft identity provider.
func WithIdentityFactory(f meeting.IdentityFactory) Option {
	return func(b *Bridge) { b.identity = f }
}

// WithProberFactory replaces the connectivity probes.
func WithProberFactory(f provider.ProberFactory) Option {
	return func(b *Bridge) { b.probers = f }
}

// WithStorage uses an already opened meeting storage.
func WithStorage(s *storage.MeetingStorage) Option {
	return func(b *Bridge) { b.Storage = s }
}

// WithSessionOptions are passed to every auth session.
func WithSessionOptions(opts ...auth.Option) Option {
	return func(b *Bridge) { b.sessionOpts = append(b.sessionOpts, opts...) }
}

// Bridge owns every long-lived component.
type Bridge struct {
	Config    *config.Config
	Registry  *provider.Registry
	Instances *instance.Store
	Tabs      *meeting.Tabs
	Speech    *meeting.SpeechStore
	Binding   *meeting.Binding
	Storage   *storage.MeetingStorage

	// LoadErrors lists provider entries that were skipped while loading.
	LoadErrors []error

	identity    meeting.IdentityFactory
	probers     provider.ProberFactory
	sessionOpts []auth.Option

	mu        sync.Mutex
	current   string
	defaultID string // set by SetDefaultProvider
	locked    bool
	closed    bool
}

// New builds the bridge from cfg and restores the meetings saved by the
// previous run. Without saved meetings a single tab bound to the default
// provider is opened.
func New(cfg *config.Config, opts ...Option) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	reg, loadErrs := provider.LoadRegistry(cfg)

	b := &Bridge{
		Config:     cfg,
		Registry:   reg,
		Instances:  instance.NewStore(),
		Tabs:       meeting.NewTabs(),
		Speech:     meeting.NewSpeechStore(cfg.Speech.DefaultVoice),
		LoadErrors: loadErrs,
		identity:   MicrosoftIdentityFactory(cfg),
	}
	var creds provider.CredentialSource
	if cfg.CredentialStore != nil {
		creds = cfg.CredentialStore
	}
	b.probers = provider.NewProberFactory(creds)
	for _, opt := range opts {
		opt(b)
	}

	if b.Storage == nil {
		st, err := storage.NewMeetingStorage(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open meeting storage: %w", err)
		}
		b.Storage = st
	}

	sessionOpts := append([]auth.Option{auth.WithMaxNetworkRetries(cfg.Identity.MaxNetworkRetries)}, b.sessionOpts...)
	b.Binding = meeting.NewBinding(b.Registry, b.Instances, b.Tabs, b.Speech,
		meeting.WithIdentityFactory(b.identity),
		meeting.WithProberFactory(b.probers),
		meeting.WithTokenStores(b.tokenStore),
		meeting.WithSessionOptions(sessionOpts...),
	)

	for _, err := range loadErrs {
		if config.Debug {
			config.DebugLog.Printf("[Bridge] Skipped provider: %v", err)
		}
	}

	b.restore()
	return b, nil
}

// MicrosoftIdentityFactory signs in with the [identity] settings, using a
// Copilot Studio provider's own tenant and client IDs when it sets them.
func MicrosoftIdentityFactory(cfg *config.Config) meeting.IdentityFactory {
	return func(p provider.Provider) (auth.IdentityProvider, error) {
		id := cfg.Identity
		id.Scopes = cfg.IdentityScopes()
		if cs, ok := p.Settings.(provider.CopilotStudio); ok {
			if cs.TenantID != "" {
				id.TenantID = cs.TenantID
			}
			if cs.ClientID != "" {
				id.ClientID = cs.ClientID
			}
		}
		return auth.NewMicrosoftIdentity(id)
	}
}

func (b *Bridge) tokenStore(providerID string) transport.TokenStore {
	var encMgr *config.EncryptionManager
	if b.Config.CredentialStore != nil {
		encMgr = b.Config.CredentialStore.GetEncryptionManager()
	}
	return config.NewFileTokenStore(providerID, b.Config.DataDir(), b.Config.Security.Method, encMgr)
}

func (b *Bridge) restore() {
	saved, err := b.Storage.List()
	if err != nil && config.Debug {
		config.DebugLog.Printf("[Bridge] Failed to list meetings: %v", err)
	}

	sort.SliceStable(saved, func(i, j int) bool {
		return saved[i].Tab.CreatedAt.Before(saved[j].Tab.CreatedAt)
	})

	tabs := make([]meeting.Tab, 0, len(saved))
	for _, m := range saved {
		if _, ok := b.Registry.Get(m.Tab.ActiveProviderID); !ok {
			m.Tab.ActiveProviderID = ""
		}
		tabs = append(tabs, m.Tab)
		for _, pid := range m.Providers {
			if _, ok := b.Registry.Get(pid); ok {
				b.Instances.Initialize(m.Tab.ID, pid)
			}
		}
		if m.Tab.ActiveProviderID != "" {
			b.Instances.Initialize(m.Tab.ID, m.Tab.ActiveProviderID)
		}
	}
	b.Tabs.Restore(tabs)

	for _, tab := range b.Tabs.List() {
		if tab.ActiveProviderID == "" {
			continue
		}
		if p, ok := b.Registry.Get(tab.ActiveProviderID); ok && p.VoiceName != "" {
			b.Speech.SetSpeechConfig(tab.ID, meeting.SpeechConfig{VoiceName: p.VoiceName})
		}
		b.Binding.RestoreAuth(context.Background(), tab.ID)
	}

	if b.Tabs.Len() == 0 {
		b.OpenMeeting("")
	}

	current, err := b.Storage.LoadCurrentMeetingID()
	if _, ok := b.Tabs.Get(current); err != nil || !ok {
		current = b.Tabs.List()[0].ID
	}
	b.current = current

	if config.Debug {
		config.DebugLog.Printf("[Bridge] Restored %d meetings, current %s", b.Tabs.Len(), current)
	}
}

// DefaultProvider is the provider new meetings start with.
func (b *Bridge) DefaultProvider() (provider.Provider, bool) {
	b.mu.Lock()
	id := b.defaultID
	b.mu.Unlock()

	if p, ok := b.Registry.Get(id); ok {
		return p, true
	}
	return b.Registry.Default()
}

// SetDefaultProvider saves id as the default provider in config.toml and
// uses it for meetings opened from now on.
func (b *Bridge) SetDefaultProvider(id string) error {
	if _, ok := b.Registry.Get(id); !ok {
		return fmt.Errorf("%w: %s", meeting.ErrUnknownProvider, id)
	}
	if err := config.SetDefaultProvider(b.Config.DataDir(), id); err != nil {
		return fmt.Errorf("failed to save default provider: %w", err)
	}

	b.mu.Lock()
	b.defaultID = id
	b.mu.Unlock()
	return nil
}

// OpenMeeting opens a tab bound to the default provider, if there is one.
func (b *Bridge) OpenMeeting(title string) meeting.Tab {
	tab := b.Tabs.Open(title)
	if p, ok := b.DefaultProvider(); ok {
		if err := b.Binding.SelectProvider(tab.ID, p.ID); err != nil && config.Debug {
			config.DebugLog.Printf("[Bridge] Failed to select default provider: %v", err)
		}
		b.Binding.RestoreAuth(context.Background(), tab.ID)
	}
	tab, _ = b.Tabs.Get(tab.ID)
	return tab
}

// CloseMeeting closes a tab and forgets its saved state. The last tab
// cannot be closed.
func (b *Bridge) CloseMeeting(id string) bool {
	if b.Tabs.Len() <= 1 {
		return false
	}
	if !b.Binding.CloseMeeting(id) {
		return false
	}
	if err := b.Storage.Delete(id); err != nil && !errors.Is(err, storage.ErrMeetingNotFound) && config.Debug {
		config.DebugLog.Printf("[Bridge] Failed to delete meeting %s: %v", id, err)
	}

	b.mu.Lock()
	if b.current == id {
		b.current = b.Tabs.List()[0].ID
	}
	b.mu.Unlock()
	return true
}

// Current returns the focused meeting ID.
func (b *Bridge) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// SetCurrent focuses a meeting.
func (b *Bridge) SetCurrent(id string) error {
	if _, ok := b.Tabs.Get(id); !ok {
		return fmt.Errorf("%w: %s", meeting.ErrTabNotFound, id)
	}
	b.mu.Lock()
	b.current = id
	b.mu.Unlock()
	return nil
}

// SaveMeeting persists one tab together with the providers used in it.
func (b *Bridge) SaveMeeting(id string) error {
	tab, ok := b.Tabs.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", meeting.ErrTabNotFound, id)
	}

	m := &storage.Meeting{Tab: tab}
	for _, inst := range b.Instances.ForMeeting(id) {
		m.Providers = append(m.Providers, inst.ProviderID)
	}
	return b.Storage.Save(m)
}

// Lock claims the single-instance lock; Close releases it.
func (b *Bridge) Lock() error {
	if err := b.Storage.LockInstance(); err != nil {
		return fmt.Errorf("failed to lock instance: %w", err)
	}
	b.mu.Lock()
	b.locked = true
	b.mu.Unlock()
	return nil
}

// Close cancels running sign-ins, saves every tab and releases the lock.
// It is safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	locked, current := b.locked, b.current
	b.mu.Unlock()

	var errs []error

	if n := b.Binding.CancelAll(); n > 0 && config.Debug {
		config.DebugLog.Printf("[Bridge] Cancelled %d sign-in(s) on shutdown", n)
	}

	for _, tab := range b.Tabs.List() {
		if err := b.SaveMeeting(tab.ID); err != nil {
			errs = append(errs, err)
		}
	}
	if current != "" {
		if err := b.Storage.SaveCurrentMeetingID(current); err != nil {
			errs = append(errs, fmt.Errorf("failed to save current meeting: %w", err))
		}
	}

	if locked {
		if err := b.Storage.UnlockInstance(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unlock instance: %w", err))
		}
	}

	return errors.Join(errs...)
}
