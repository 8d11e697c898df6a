package auth

import (
	"context"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"agentbridge/config"
)

const (
	DefaultMaxNetworkRetries = 3
	DefaultPollInterval      = 5 * time.Second
	// DefaultCodeLifetime applies when the server omits expires_in.
	DefaultCodeLifetime = 15 * time.Minute
	slowDownIncrement   = 5 * time.Second
)

// DeviceCodeMsg delivers the result of the device authorization request.
type DeviceCodeMsg struct {
	SessionID  string
	Generation uint64
	Code       DeviceCode
	Err        error
}

// PollTickMsg fires when the next token poll is due.
type PollTickMsg struct {
	SessionID  string
	Generation uint64
}

// PollResultMsg delivers the result of one token poll.
type PollResultMsg struct {
	SessionID  string
	Generation uint64
	Result     PollResult
	Err        error
}

// Route returns the session a message belongs to, or false for messages
// this package does not produce.
func Route(msg tea.Msg) (string, bool) {
	switch m := msg.(type) {
	case DeviceCodeMsg:
		return m.SessionID, true
	case PollTickMsg:
		return m.SessionID, true
	case PollResultMsg:
		return m.SessionID, true
	}
	return "", false
}

// Event reports what an Update changed, for callers mirroring state.
type Event int

const (
	EventNone Event = iota
	EventCodeReady
	EventAuthenticated
	EventFailed
)

// Ticker schedules fn after d. tea.Tick is the production implementation.
type Ticker func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

type Option func(*Session)

// WithMaxNetworkRetries sets how many consecutive transport failures end
// the flow. Values below 1 keep the default.
func WithMaxNetworkRetries(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithTicker(t Ticker) Option {
	return func(s *Session) { s.tick = t }
}

// WithBrowser replaces the function used to open the verification URL.
func WithBrowser(open func(url string) error) Option {
	return func(s *Session) { s.openURL = open }
}

// WithClipboard replaces the function used to copy the user code.
func WithClipboard(write func(text string) error) Option {
	return func(s *Session) { s.copyText = write }
}

// Session is one device-code flow for one (meeting, provider) pair.
type Session struct {
	id         string
	idp        IdentityProvider
	maxRetries int
	now        func() time.Time
	tick       Ticker
	openURL    func(string) error
	copyText   func(string) error

	mu         sync.Mutex
	state      State
	generation uint64
	cancel     context.CancelFunc
	ctx        context.Context
	code       DeviceCode
	interval   time.Duration
	failures   int
	reason     FailureReason
	err        error
	token      *oauth2.Token
	username   string
}

func NewSession(id string, idp IdentityProvider, opts ...Option) *Session {
	s := &Session{
		id:         id,
		idp:        idp,
		maxRetries: DefaultMaxNetworkRetries,
		now:        time.Now,
		tick:       tea.Tick,
		openURL:    browser.OpenURL,
		copyText:   clipboard.WriteAll,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Start begins a new flow from StateIdle or StateFailed and returns the
// command requesting a device code. While a flow is running, or once
// authenticated, Start is ignored and returns nil.
func (s *Session) Start() tea.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAuthenticating || s.state == StateAuthenticated {
		if config.Debug {
			config.DebugLog.Printf("[Auth] %s: start ignored in state %s", s.id, s.state)
		}
		return nil
	}

	s.resetLocked()
	s.generation++
	s.state = StateAuthenticating
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if config.Debug {
		config.DebugLog.Printf("[Auth] %s: starting device-code flow (generation %d)", s.id, s.generation)
	}

	ctx, gen, id, idp := s.ctx, s.generation, s.id, s.idp
	return func() tea.Msg {
		code, err := idp.RequestDeviceCode(ctx)
		return DeviceCodeMsg{SessionID: id, Generation: gen, Code: code, Err: err}
	}
}

// Cancel abandons a running or failed flow and returns to StateIdle.
// Responses already in flight are dropped when they arrive. It reports
// whether there was anything to cancel; an authenticated session is left
// untouched.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIdle || s.state == StateAuthenticated {
		return false
	}

	s.generation++
	s.resetLocked()
	s.state = StateIdle

	if config.Debug {
		config.DebugLog.Printf("[Auth] %s: cancelled (generation %d)", s.id, s.generation)
	}
	return true
}

// Restore marks the session authenticated with a token obtained earlier.
func (s *Session) Restore(token *oauth2.Token, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.resetLocked()
	s.state = StateAuthenticated
	s.token = token
	s.username = username
}

// SignOut drops the token of an authenticated session and returns it to
// StateIdle. It reports false in any other state.
func (s *Session) SignOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return false
	}
	s.generation++
	s.resetLocked()
	s.state = StateIdle

	if config.Debug {
		config.DebugLog.Printf("[Auth] %s: signed out", s.id)
	}
	return true
}

// resetLocked cancels the in-flight context and clears per-flow state.
func (s *Session) resetLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = nil, nil
	s.code = DeviceCode{}
	s.interval = 0
	s.failures = 0
	s.reason = ReasonNone
	s.err = nil
	s.token = nil
	s.username = ""
}

// Update advances the flow for one of this session's messages.
func (s *Session) Update(msg tea.Msg) (tea.Cmd, Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case DeviceCodeMsg:
		if !s.currentLocked(m.SessionID, m.Generation) {
			return nil, EventNone
		}
		if m.Err != nil {
			s.failLocked(ReasonNetwork, &NetworkError{Attempts: 1, Err: m.Err})
			return nil, EventFailed
		}
		s.code = m.Code
		if s.code.ExpiresAt.IsZero() {
			s.code.ExpiresAt = s.now().Add(DefaultCodeLifetime)
		}
		s.interval = m.Code.Interval
		if s.interval <= 0 {
			s.interval = DefaultPollInterval
		}
		if config.Debug {
			config.DebugLog.Printf("[Auth] %s: device code issued, expires %s, interval %s",
				s.id, s.code.ExpiresAt.Format(time.RFC3339), s.interval)
		}
		return s.scheduleLocked(), EventCodeReady

	case PollTickMsg:
		if !s.currentLocked(m.SessionID, m.Generation) {
			return nil, EventNone
		}
		if !s.now().Before(s.code.ExpiresAt) {
			s.failLocked(ReasonExpired, ErrExpired)
			return nil, EventFailed
		}
		ctx, gen, id, idp, deviceCode := s.ctx, s.generation, s.id, s.idp, s.code.DeviceCode
		return func() tea.Msg {
			res, err := idp.PollToken(ctx, deviceCode)
			return PollResultMsg{SessionID: id, Generation: gen, Result: res, Err: err}
		}, EventNone

	case PollResultMsg:
		if !s.currentLocked(m.SessionID, m.Generation) {
			return nil, EventNone
		}
		return s.handlePollLocked(m)
	}

	return nil, EventNone
}

func (s *Session) handlePollLocked(m PollResultMsg) (tea.Cmd, Event) {
	if m.Err != nil {
		s.failures++
		if config.Debug {
			config.DebugLog.Printf("[Auth] %s: poll failed (%d/%d): %v", s.id, s.failures, s.maxRetries, m.Err)
		}
		if s.failures >= s.maxRetries {
			s.failLocked(ReasonNetwork, &NetworkError{Attempts: s.failures, Err: m.Err})
			return nil, EventFailed
		}
		return s.scheduleLocked(), EventNone
	}

	s.failures = 0

	switch m.Result.Outcome {
	case OutcomePending:
		return s.scheduleLocked(), EventNone

	case OutcomeSlowDown:
		s.interval += slowDownIncrement
		return s.scheduleLocked(), EventNone

	case OutcomeSuccess:
		if s.cancel != nil {
			s.cancel()
		}
		s.ctx, s.cancel = nil, nil
		s.state = StateAuthenticated
		s.token = m.Result.Token
		s.username = m.Result.Username
		s.code = DeviceCode{}
		if config.Debug {
			config.DebugLog.Printf("[Auth] %s: authenticated as %q", s.id, s.username)
		}
		return nil, EventAuthenticated

	case OutcomeExpired:
		s.failLocked(ReasonExpired, ErrExpired)
		return nil, EventFailed

	default:
		s.failLocked(ReasonDenied, ErrDenied)
		return nil, EventFailed
	}
}

// currentLocked reports whether a message belongs to the running flow.
func (s *Session) currentLocked(id string, gen uint64) bool {
	if id != s.id || gen != s.generation || s.state != StateAuthenticating {
		if config.Debug {
			config.DebugLog.Printf("[Auth] %s: dropping stale message (generation %d, current %d, state %s)",
				s.id, gen, s.generation, s.state)
		}
		return false
	}
	return true
}

func (s *Session) scheduleLocked() tea.Cmd {
	gen, id := s.generation, s.id
	return s.tick(s.interval, func(time.Time) tea.Msg {
		return PollTickMsg{SessionID: id, Generation: gen}
	})
}

func (s *Session) failLocked(reason FailureReason, err error) {
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = nil, nil
	s.state = StateFailed
	s.reason = reason
	s.err = err
	s.code = DeviceCode{}

	if config.Debug {
		config.DebugLog.Printf("[Auth] %s: failed (%s): %v", s.id, reason, err)
	}
}

// OpenVerificationURL opens the verification page in the default browser.
// It does not change the session state.
func (s *Session) OpenVerificationURL() error {
	url := s.VerificationURL()
	if url == "" {
		return ErrNoDeviceCode
	}
	return s.openURL(url)
}

// CopyUserCode puts the user code on the system clipboard. It does not
// change the session state.
func (s *Session) CopyUserCode() error {
	code := s.UserCode()
	if code == "" {
		return ErrNoDeviceCode
	}
	return s.copyText(code)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

func (s *Session) UserCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code.UserCode
}

func (s *Session) VerificationURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code.VerificationURL
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code.ExpiresAt
}

// TimeLeft is the remaining validity of the displayed code, zero when none.
func (s *Session) TimeLeft() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.code.ExpiresAt.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// Interval is the current delay between polls, including slow_down backoff.
func (s *Session) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Session) Reason() FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}
