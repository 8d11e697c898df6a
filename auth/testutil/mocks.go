package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/oauth2"

	"agentbridge/auth"
)

// PollStep is one scripted answer to PollToken.
type PollStep struct {
	Result auth.PollResult
	Err    error
}

func Pending() PollStep  { return PollStep{Result: auth.PollResult{Outcome: auth.OutcomePending}} }
func SlowDown() PollStep { return PollStep{Result: auth.PollResult{Outcome: auth.OutcomeSlowDown}} }
func Expired() PollStep  { return PollStep{Result: auth.PollResult{Outcome: auth.OutcomeExpired}} }
func Denied() PollStep   { return PollStep{Result: auth.PollResult{Outcome: auth.OutcomeDenied}} }
func NetErr() PollStep   { return PollStep{Err: fmt.Errorf("dial tcp: connection refused")} }

// Success returns a successful poll for username with a one-hour token.
func Success(username string, now time.Time) PollStep {
	return PollStep{Result: auth.PollResult{
		Outcome:  auth.OutcomeSuccess,
		Username: username,
		Token: &oauth2.Token{
			AccessToken:  "access-" + username,
			TokenType:    "Bearer",
			RefreshToken: "refresh-" + username,
			Expiry:       now.Add(time.Hour),
		},
	}}
}

// MockIdentityProvider implements auth.IdentityProvider for testing
type MockIdentityProvider struct {
	// Configurable responses
	RequestDeviceCodeFunc func(ctx context.Context) (auth.DeviceCode, error)
	PollTokenFunc         func(ctx context.Context, deviceCode string) (auth.PollResult, error)

	mu       sync.Mutex
	requests int
	polls    []string
	steps    []PollStep
}

// NewMockIdentityProvider issues a fresh device code per request (USER-1,
// USER-2, ...) valid for ttl from clock, and answers polls from the
// queued steps. An empty queue answers pending.
func NewMockIdentityProvider(clock *Clock, ttl time.Duration) *MockIdentityProvider {
	m := &MockIdentityProvider{}
	m.RequestDeviceCodeFunc = func(ctx context.Context) (auth.DeviceCode, error) {
		n := m.Requests()
		return auth.DeviceCode{
			DeviceCode:      fmt.Sprintf("device-%d", n),
			UserCode:        fmt.Sprintf("USER-%d", n),
			VerificationURL: "https://microsoft.com/devicelogin",
			ExpiresAt:       clock.Now().Add(ttl),
			Interval:        time.Second,
		}, nil
	}
	m.PollTokenFunc = func(ctx context.Context, deviceCode string) (auth.PollResult, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.steps) == 0 {
			return auth.PollResult{Outcome: auth.OutcomePending}, nil
		}
		step := m.steps[0]
		m.steps = m.steps[1:]
		return step.Result, step.Err
	}
	return m
}

// Queue appends scripted poll answers.
func (m *MockIdentityProvider) Queue(steps ...PollStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

func (m *MockIdentityProvider) RequestDeviceCode(ctx context.Context) (auth.DeviceCode, error) {
	m.mu.Lock()
	m.requests++
	m.mu.Unlock()
	return m.RequestDeviceCodeFunc(ctx)
}

func (m *MockIdentityProvider) PollToken(ctx context.Context, deviceCode string) (auth.PollResult, error) {
	m.mu.Lock()
	m.polls = append(m.polls, deviceCode)
	m.mu.Unlock()
	return m.PollTokenFunc(ctx, deviceCode)
}

// Requests returns how many device codes were requested
func (m *MockIdentityProvider) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Polls returns the device codes polled so far, in order
func (m *MockIdentityProvider) Polls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.polls...)
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Ticker is an auth.Ticker that fires immediately at the fake clock's
// current time after advancing it by the requested delay. Delays are
// recorded for assertions.
type Ticker struct {
	clock *Clock

	mu     sync.Mutex
	delays []time.Duration
}

func NewTicker(clock *Clock) *Ticker {
	return &Ticker{clock: clock}
}

func (t *Ticker) Tick(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	t.mu.Lock()
	t.delays = append(t.delays, d)
	t.mu.Unlock()
	return func() tea.Msg {
		t.clock.Advance(d)
		return fn(t.clock.Now())
	}
}

func (t *Ticker) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.delays...)
}

// Run executes cmd and feeds the resulting messages back through update
// until a command is nil or steps messages were delivered. It returns the
// delivered messages.
func Run(cmd tea.Cmd, steps int, update func(tea.Msg) tea.Cmd) []tea.Msg {
	var msgs []tea.Msg
	for i := 0; i < steps && cmd != nil; i++ {
		msg := cmd()
		msgs = append(msgs, msg)
		cmd = update(msg)
	}
	return msgs
}
