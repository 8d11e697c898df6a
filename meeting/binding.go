// Package meeting binds agent providers to meeting tabs.
//
// The Binding owns the auth sessions of every (meeting, provider) pair and
// mirrors their progress into the instance store. It is driven from the
// bubbletea update loop: commands returned by StartAuth produce messages
// that must be passed back through Update.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	transport "github.com/mark3labs/mcp-go/client/transport"
	"golang.org/x/oauth2"

	"agentbridge/auth"
	"agentbridge/config"
	"agentbridge/instance"
	"agentbridge/provider"
)

var (
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrNoActiveProvider = errors.New("meeting has no active provider")
	ErrRequiresAuth     = errors.New("provider requires sign-in")
)

const connectTimeout = 15 * time.Second

// IdentityFactory returns the identity provider used to sign in to p.
type IdentityFactory func(p provider.Provider) (auth.IdentityProvider, error)

// TokenStoreFactory returns the persistent token store for a provider.
type TokenStoreFactory func(providerID string) transport.TokenStore

// ConnectedMsg reports the result of ConnectCmd.
type ConnectedMsg struct {
	MeetingID  string
	ProviderID string
	Err        error
}

type Option func(*Binding)

func WithIdentityFactory(f IdentityFactory) Option {
	return func(b *Binding) { b.identity = f }
}

func WithProberFactory(f provider.ProberFactory) Option {
	return func(b *Binding) { b.probers = f }
}

func WithTokenStores(f TokenStoreFactory) Option {
	return func(b *Binding) { b.tokens = f }
}

// WithSessionOptions are applied to every auth session the binding creates.
func WithSessionOptions(opts ...auth.Option) Option {
	return func(b *Binding) { b.sessionOpts = append(b.sessionOpts, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(b *Binding) { b.now = now }
}

type authEntry struct {
	key     instance.Key
	session *auth.Session
}

// Binding connects tabs, providers, instances and auth sessions.
type Binding struct {
	registry  *provider.Registry
	instances *instance.Store
	tabs      *Tabs
	speech    SpeechConfigurer

	identity    IdentityFactory
	probers     provider.ProberFactory
	tokens      TokenStoreFactory
	sessionOpts []auth.Option
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*authEntry
}

func NewBinding(registry *provider.Registry, instances *instance.Store, tabs *Tabs, speech SpeechConfigurer, opts ...Option) *Binding {
	b := &Binding{
		registry:  registry,
		instances: instances,
		tabs:      tabs,
		speech:    speech,
		now:       time.Now,
		sessions:  make(map[string]*authEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func sessionID(key instance.Key) string {
	return key.MeetingID + "/" + key.ProviderID
}

// ResolveAgentName picks the name shown for an agent: the kind-specific
// name, else the provider name, else the meeting's current name.
func ResolveAgentName(p provider.Provider, current string) string {
	if name := p.AgentName(); name != "" {
		return name
	}
	if p.Name != "" {
		return p.Name
	}
	return current
}

// SelectProvider makes providerID the active provider of a meeting. It
// never starts authentication.
func (b *Binding) SelectProvider(meetingID, providerID string) error {
	p, ok := b.registry.Get(providerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if _, ok := b.tabs.Get(meetingID); !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, meetingID)
	}

	b.instances.Initialize(meetingID, p.ID)

	if p.VoiceName != "" && b.speech != nil {
		b.speech.SetSpeechConfig(meetingID, SpeechConfig{VoiceName: p.VoiceName})
	}

	err := b.tabs.Update(meetingID, func(t *Tab) {
		t.ActiveProviderID = p.ID
		t.AgentName = ResolveAgentName(p, t.AgentName)
	})
	if err != nil {
		return fmt.Errorf("failed to select provider: %w", err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Binding] %s: selected provider %s", meetingID, p.ID)
	}
	return nil
}

// ActiveProvider returns the meeting's active provider.
func (b *Binding) ActiveProvider(meetingID string) (provider.Provider, error) {
	tab, ok := b.tabs.Get(meetingID)
	if !ok {
		return provider.Provider{}, fmt.Errorf("%w: %s", ErrTabNotFound, meetingID)
	}
	if tab.ActiveProviderID == "" {
		return provider.Provider{}, ErrNoActiveProvider
	}
	p, ok := b.registry.Get(tab.ActiveProviderID)
	if !ok {
		return provider.Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, tab.ActiveProviderID)
	}
	return p, nil
}

// sessionFor returns the auth session of a pair, creating it on first use.
func (b *Binding) sessionFor(meetingID string, p provider.Provider) (*authEntry, error) {
	key := instance.Key{MeetingID: meetingID, ProviderID: p.ID}
	id := sessionID(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if entry, ok := b.sessions[id]; ok {
		return entry, nil
	}
	if b.identity == nil {
		return nil, fmt.Errorf("no identity provider configured")
	}
	idp, err := b.identity(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	entry := &authEntry{key: key, session: auth.NewSession(id, idp, b.sessionOpts...)}
	b.sessions[id] = entry
	return entry, nil
}

func (b *Binding) lookup(meetingID, providerID string) *authEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[sessionID(instance.Key{MeetingID: meetingID, ProviderID: providerID})]
}

// StartAuth starts the device-code flow for the meeting's active provider.
// It returns nil when the provider needs no sign-in or a flow is already
// running.
func (b *Binding) StartAuth(meetingID string) tea.Cmd {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		if config.Debug {
			config.DebugLog.Printf("[Binding] %s: start auth: %v", meetingID, err)
		}
		return nil
	}
	if !p.RequiresAuth() {
		return nil
	}

	b.instances.Initialize(meetingID, p.ID)

	entry, err := b.sessionFor(meetingID, p)
	if err != nil {
		if config.Debug {
			config.DebugLog.Printf("[Binding] %s/%s: %v", meetingID, p.ID, err)
		}
		b.instances.Fail(meetingID, p.ID, err.Error())
		return nil
	}

	cmd := entry.session.Start()
	if cmd == nil {
		return nil
	}
	b.instances.SetStatus(meetingID, p.ID, instance.StatusAuthenticating)
	return cmd
}

// CancelAuth abandons the active provider's running flow and returns its
// instance to idle. It reports whether a flow was cancelled.
func (b *Binding) CancelAuth(meetingID string) bool {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		return false
	}
	entry := b.lookup(meetingID, p.ID)
	if entry == nil || !entry.session.Cancel() {
		return false
	}
	b.instances.SetStatus(meetingID, p.ID, instance.StatusIdle)
	return true
}

// SignOut forgets the active provider's token, both in memory and on disk.
// Every meeting signed in to the same provider is signed out with it.
func (b *Binding) SignOut(meetingID string) bool {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		return false
	}
	entry := b.lookup(meetingID, p.ID)
	if entry == nil || !entry.session.IsAuthenticated() {
		return false
	}

	n := 0
	for _, e := range b.sessionsOf(p.ID) {
		if !e.session.SignOut() {
			continue
		}
		b.instances.SetAuth(e.key.MeetingID, e.key.ProviderID, instance.SignedOut())
		b.instances.SetStatus(e.key.MeetingID, e.key.ProviderID, instance.StatusIdle)
		n++
	}

	if b.tokens != nil {
		if d, ok := b.tokens(p.ID).(interface{ DeleteToken() error }); ok {
			if err := d.DeleteToken(); err != nil && config.Debug {
				config.DebugLog.Printf("[Binding] %s: failed to delete token: %v", p.ID, err)
			}
		}
	}

	if config.Debug {
		config.DebugLog.Printf("[Binding] %s: signed out in %d meeting(s)", p.ID, n)
	}
	return true
}

// sessionsOf returns every session signing in to providerID.
func (b *Binding) sessionsOf(providerID string) []*authEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*authEntry
	for _, e := range b.sessions {
		if e.key.ProviderID == providerID {
			out = append(out, e)
		}
	}
	return out
}

// signedInElsewhere returns an authenticated session for providerID held by
// a meeting other than meetingID.
func (b *Binding) signedInElsewhere(meetingID, providerID string) *authEntry {
	for _, e := range b.sessionsOf(providerID) {
		if e.key.MeetingID != meetingID && e.session.IsAuthenticated() {
			return e
		}
	}
	return nil
}

// Update routes an auth message to the session that produced it and
// mirrors the outcome into the instance store. Other messages are ignored.
func (b *Binding) Update(msg tea.Msg) tea.Cmd {
	id, ok := auth.Route(msg)
	if !ok {
		return nil
	}

	b.mu.Lock()
	entry := b.sessions[id]
	b.mu.Unlock()
	if entry == nil {
		if config.Debug {
			config.DebugLog.Printf("[Binding] Dropping message for unknown session %s", id)
		}
		return nil
	}

	cmd, ev := entry.session.Update(msg)
	b.mirror(entry, ev)
	return cmd
}

func (b *Binding) mirror(entry *authEntry, ev auth.Event) {
	key, s := entry.key, entry.session

	switch ev {
	case auth.EventFailed:
		b.instances.Fail(key.MeetingID, key.ProviderID, string(s.Reason()))

	case auth.EventAuthenticated:
		b.markAuthenticated(key, s)
		b.persistToken(key.ProviderID, s.Token())
		b.shareSignIn(key)
	}
}

// shareSignIn reconciles the other meetings whose active provider was just
// signed in to.
func (b *Binding) shareSignIn(key instance.Key) {
	for _, tab := range b.tabs.List() {
		if tab.ID != key.MeetingID && tab.ActiveProviderID == key.ProviderID {
			b.Reconcile(tab.ID)
		}
	}
}

func (b *Binding) markAuthenticated(key instance.Key, s *auth.Session) {
	var expiry time.Time
	if tok := s.Token(); tok != nil {
		expiry = tok.Expiry
	}
	b.instances.SetAuth(key.MeetingID, key.ProviderID, instance.Authenticated(s.Username(), expiry))
	b.instances.SetStatus(key.MeetingID, key.ProviderID, instance.StatusConnected)
}

func (b *Binding) persistToken(providerID string, tok *oauth2.Token) {
	if b.tokens == nil || tok == nil {
		return
	}
	store := b.tokens(providerID)
	if store == nil {
		return
	}
	if err := store.SaveToken(context.Background(), toTransportToken(tok, b.now())); err != nil {
		if config.Debug {
			config.DebugLog.Printf("[Binding] %s: failed to persist token: %v", providerID, err)
		}
	}
}

// Reconcile copies an authenticated session into the active provider's
// instance if the instance does not show it yet. A sign-in to the same
// provider from another meeting counts. It reports whether the instance
// changed.
func (b *Binding) Reconcile(meetingID string) bool {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		return false
	}
	inst, ok := b.instances.Get(meetingID, p.ID)
	if !ok || inst.IsAuthenticated() {
		return false
	}

	entry := b.lookup(meetingID, p.ID)
	if entry == nil || !entry.session.IsAuthenticated() {
		src := b.signedInElsewhere(meetingID, p.ID)
		if src == nil {
			return false
		}
		if entry, err = b.sessionFor(meetingID, p); err != nil {
			return false
		}
		entry.session.Restore(src.session.Token(), src.session.Username())
	}

	b.markAuthenticated(entry.key, entry.session)

	if config.Debug {
		config.DebugLog.Printf("[Binding] %s/%s: reconciled authenticated session", meetingID, p.ID)
	}
	return true
}

// RestoreAuth marks the active provider signed in when an unexpired token
// was persisted by an earlier run. It only applies to idle sessions.
func (b *Binding) RestoreAuth(ctx context.Context, meetingID string) bool {
	p, err := b.ActiveProvider(meetingID)
	if err != nil || !p.RequiresAuth() || b.tokens == nil {
		return false
	}
	store := b.tokens(p.ID)
	if store == nil {
		return false
	}

	tt, err := store.GetToken(ctx)
	if err != nil {
		if !errors.Is(err, transport.ErrNoToken) && config.Debug {
			config.DebugLog.Printf("[Binding] %s: failed to load token: %v", p.ID, err)
		}
		return false
	}
	if tt.AccessToken == "" || (!tt.ExpiresAt.IsZero() && !b.now().Before(tt.ExpiresAt)) {
		return false
	}

	entry, err := b.sessionFor(meetingID, p)
	if err != nil || entry.session.State() != auth.StateIdle {
		return false
	}

	// Entra access tokens carry the same name claims as the id_token.
	entry.session.Restore(fromTransportToken(tt), auth.UsernameFromIDToken(tt.AccessToken))
	b.instances.Initialize(meetingID, p.ID)
	b.markAuthenticated(entry.key, entry.session)

	if config.Debug {
		config.DebugLog.Printf("[Binding] %s/%s: restored persisted sign-in", meetingID, p.ID)
	}
	return true
}

// Connect checks that the meeting's auth-free active provider is reachable
// and records the result in its instance.
func (b *Binding) Connect(ctx context.Context, meetingID string) error {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		return err
	}
	return b.connect(ctx, meetingID, p)
}

func (b *Binding) connect(ctx context.Context, meetingID string, p provider.Provider) error {
	if p.RequiresAuth() {
		return fmt.Errorf("%w: %s", ErrRequiresAuth, p.ID)
	}
	if b.probers == nil {
		return provider.ErrNoProbe
	}

	b.instances.Initialize(meetingID, p.ID)

	prober, err := b.probers(p)
	if err == nil {
		err = prober.Ping(ctx)
	}
	if err != nil {
		b.instances.Fail(meetingID, p.ID, err.Error())
		return fmt.Errorf("failed to connect to %s: %w", p.ID, err)
	}

	b.instances.SetStatus(meetingID, p.ID, instance.StatusConnected)
	return nil
}

// ConnectCmd runs Connect in the background for the provider active when
// it is called.
func (b *Binding) ConnectCmd(meetingID string) tea.Cmd {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return ConnectedMsg{MeetingID: meetingID, ProviderID: p.ID, Err: b.connect(ctx, meetingID, p)}
	}
}

// AuthSession returns the active provider's session, if one was created.
func (b *Binding) AuthSession(meetingID string) (*auth.Session, bool) {
	p, err := b.ActiveProvider(meetingID)
	if err != nil {
		return nil, false
	}
	entry := b.lookup(meetingID, p.ID)
	if entry == nil {
		return nil, false
	}
	return entry.session, true
}

// CloseMeeting cancels the meeting's flows, drops its instances and closes
// its tab.
func (b *Binding) CloseMeeting(meetingID string) bool {
	b.mu.Lock()
	for id, entry := range b.sessions {
		if entry.key.MeetingID == meetingID {
			entry.session.Cancel()
			delete(b.sessions, id)
		}
	}
	b.mu.Unlock()

	b.instances.RemoveMeeting(meetingID)
	if f, ok := b.speech.(interface{ Forget(string) }); ok {
		f.Forget(meetingID)
	}
	return b.tabs.Close(meetingID)
}

// CancelAll cancels every running flow.
func (b *Binding) CancelAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, entry := range b.sessions {
		if entry.session.Cancel() {
			n++
		}
	}
	return n
}

func toTransportToken(t *oauth2.Token, now time.Time) *transport.Token {
	tt := &transport.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
	if !t.Expiry.IsZero() {
		tt.ExpiresIn = int64(t.Expiry.Sub(now).Seconds())
	}
	return tt
}

func fromTransportToken(t *transport.Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}
