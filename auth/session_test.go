package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"agentbridge/auth"
	"agentbridge/auth/testutil"
)

type harness struct {
	clock  *testutil.Clock
	idp    *testutil.MockIdentityProvider
	ticker *testutil.Ticker
	s      *auth.Session
	events []auth.Event
}

func newHarness(t *testing.T, ttl time.Duration, opts ...auth.Option) *harness {
	t.Helper()
	h := &harness{clock: testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))}
	h.idp = testutil.NewMockIdentityProvider(h.clock, ttl)
	h.ticker = testutil.NewTicker(h.clock)
	opts = append([]auth.Option{auth.WithClock(h.clock.Now), auth.WithTicker(h.ticker.Tick)}, opts...)
	h.s = auth.NewSession("m1/p1", h.idp, opts...)
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	cmd, ev := h.s.Update(msg)
	h.events = append(h.events, ev)
	return cmd
}

// run drives the flow until no command is left.
func (h *harness) run(cmd tea.Cmd) {
	testutil.Run(cmd, 100, h.update)
}

func (h *harness) count(ev auth.Event) int {
	n := 0
	for _, e := range h.events {
		if e == ev {
			n++
		}
	}
	return n
}

func TestStartIssuesCode(t *testing.T) {
	h := newHarness(t, 15*time.Minute)

	cmd := h.s.Start()
	if cmd == nil {
		t.Fatal("Start() returned nil command")
	}
	if h.s.State() != auth.StateAuthenticating {
		t.Errorf("State() = %s, want authenticating", h.s.State())
	}

	next := h.update(cmd())
	if h.events[0] != auth.EventCodeReady {
		t.Errorf("event = %v, want EventCodeReady", h.events[0])
	}
	if next == nil {
		t.Error("no poll scheduled after device code")
	}
	if h.s.UserCode() != "USER-1" {
		t.Errorf("UserCode() = %q", h.s.UserCode())
	}
	if h.s.VerificationURL() == "" {
		t.Error("VerificationURL() empty")
	}
	if h.s.TimeLeft() != 15*time.Minute {
		t.Errorf("TimeLeft() = %s", h.s.TimeLeft())
	}
}

func TestStartWhileAuthenticatingIsIgnored(t *testing.T) {
	h := newHarness(t, 15*time.Minute)

	h.update(h.s.Start()())
	if cmd := h.s.Start(); cmd != nil {
		t.Error("second Start() returned a command")
	}
	if h.idp.Requests() != 1 {
		t.Errorf("device code requests = %d, want 1", h.idp.Requests())
	}
	if h.s.UserCode() != "USER-1" {
		t.Errorf("UserCode() changed to %q", h.s.UserCode())
	}
}

func TestSuccessfulExchange(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.idp.Queue(testutil.Pending(), testutil.Pending(), testutil.Success("alice@contoso.com", h.clock.Now()))

	h.run(h.s.Start())

	if h.s.State() != auth.StateAuthenticated {
		t.Fatalf("State() = %s, want authenticated", h.s.State())
	}
	if !h.s.IsAuthenticated() {
		t.Error("IsAuthenticated() = false")
	}
	if h.s.Username() != "alice@contoso.com" {
		t.Errorf("Username() = %q", h.s.Username())
	}
	if h.s.Token() == nil || h.s.Token().AccessToken != "access-alice@contoso.com" {
		t.Errorf("Token() = %+v", h.s.Token())
	}
	if n := h.count(auth.EventAuthenticated); n != 1 {
		t.Errorf("EventAuthenticated emitted %d times, want 1", n)
	}
	if len(h.idp.Polls()) != 3 {
		t.Errorf("polls = %d, want 3", len(h.idp.Polls()))
	}
	if h.s.UserCode() != "" {
		t.Error("user code still shown after success")
	}
	if cmd := h.s.Start(); cmd != nil {
		t.Error("Start() after success returned a command")
	}
}

func TestCancelDropsLateSuccess(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.idp.Queue(testutil.Success("alice", h.clock.Now()))

	tick := h.update(h.s.Start()())
	poll := h.update(tick())
	if poll == nil {
		t.Fatal("no poll command issued")
	}

	if !h.s.Cancel() {
		t.Fatal("Cancel() = false during authentication")
	}

	// The poll was already in flight and now resolves with success.
	late := poll()
	if res, ok := late.(auth.PollResultMsg); !ok || res.Result.Outcome != auth.OutcomeSuccess {
		t.Fatalf("late message = %#v", late)
	}
	if cmd := h.update(late); cmd != nil {
		t.Error("stale message produced a command")
	}

	if h.s.State() != auth.StateIdle {
		t.Errorf("State() = %s, want idle", h.s.State())
	}
	if h.s.Token() != nil || h.count(auth.EventAuthenticated) != 0 {
		t.Error("late success leaked into cancelled session")
	}
	if h.s.UserCode() != "" {
		t.Error("device code kept after cancel")
	}
}

func TestCancelDropsPendingTick(t *testing.T) {
	h := newHarness(t, 15*time.Minute)

	tick := h.update(h.s.Start()())
	h.s.Cancel()

	if cmd := h.update(tick()); cmd != nil {
		t.Error("stale tick issued a poll")
	}
	if len(h.idp.Polls()) != 0 {
		t.Errorf("polls = %d after cancel, want 0", len(h.idp.Polls()))
	}
}

func TestCancelBeforeDeviceCode(t *testing.T) {
	h := newHarness(t, 15*time.Minute)

	start := h.s.Start()
	h.s.Cancel()
	if cmd := h.update(start()); cmd != nil {
		t.Error("stale device code scheduled a poll")
	}
	if h.s.UserCode() != "" || h.s.State() != auth.StateIdle {
		t.Errorf("state=%s code=%q after cancel", h.s.State(), h.s.UserCode())
	}
}

func TestCancelWhenIdle(t *testing.T) {
	h := newHarness(t, time.Minute)
	if h.s.Cancel() {
		t.Error("Cancel() on idle session = true")
	}
}

func TestExpiryThenRetryGetsFreshCode(t *testing.T) {
	h := newHarness(t, 3*time.Second)

	h.run(h.s.Start())

	if h.s.State() != auth.StateFailed {
		t.Fatalf("State() = %s, want failed", h.s.State())
	}
	if h.s.Reason() != auth.ReasonExpired {
		t.Errorf("Reason() = %q, want expired", h.s.Reason())
	}
	if !errors.Is(h.s.Err(), auth.ErrExpired) || !errors.Is(h.s.Err(), auth.ErrAuthFailure) {
		t.Errorf("Err() = %v", h.s.Err())
	}

	cmd := h.s.Start()
	if cmd == nil {
		t.Fatal("Start() after failure returned nil")
	}
	h.update(cmd())
	if h.s.UserCode() != "USER-2" {
		t.Errorf("retry UserCode() = %q, want a fresh USER-2", h.s.UserCode())
	}
	if h.s.Reason() != auth.ReasonNone || h.s.Err() != nil {
		t.Error("failure not cleared by retry")
	}
}

func TestCodeWithoutExpiry(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.idp.RequestDeviceCodeFunc = func(ctx context.Context) (auth.DeviceCode, error) {
		return auth.DeviceCode{
			DeviceCode:      "device-x",
			UserCode:        "USER-X",
			VerificationURL: "https://microsoft.com/devicelogin",
			Interval:        time.Second,
		}, nil
	}

	next := h.update(h.s.Start()())
	if got := h.s.TimeLeft(); got != auth.DefaultCodeLifetime {
		t.Errorf("TimeLeft() = %s, want %s", got, auth.DefaultCodeLifetime)
	}

	h.idp.Queue(testutil.Pending(), testutil.Success("hana", h.clock.Now()))
	h.run(next)

	if h.s.State() != auth.StateAuthenticated {
		t.Errorf("State() = %s, reason %q, want authenticated", h.s.State(), h.s.Reason())
	}
}

func TestServerReportsExpired(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.idp.Queue(testutil.Expired())

	h.run(h.s.Start())

	if h.s.Reason() != auth.ReasonExpired {
		t.Errorf("Reason() = %q, want expired", h.s.Reason())
	}
}

func TestDenied(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.idp.Queue(testutil.Pending(), testutil.Denied())

	h.run(h.s.Start())

	if h.s.State() != auth.StateFailed || h.s.Reason() != auth.ReasonDenied {
		t.Errorf("state=%s reason=%q", h.s.State(), h.s.Reason())
	}
	if !errors.Is(h.s.Err(), auth.ErrDenied) {
		t.Errorf("Err() = %v", h.s.Err())
	}
	if n := h.count(auth.EventFailed); n != 1 {
		t.Errorf("EventFailed emitted %d times", n)
	}
}

func TestNetworkRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		steps      []testutil.PollStep
		wantState  auth.State
	}{
		{
			name:       "bound reached",
			maxRetries: 3,
			steps:      []testutil.PollStep{testutil.NetErr(), testutil.NetErr(), testutil.NetErr()},
			wantState:  auth.StateFailed,
		},
		{
			name:       "success resets counter",
			maxRetries: 3,
			steps: []testutil.PollStep{
				testutil.NetErr(), testutil.NetErr(), testutil.Pending(),
				testutil.NetErr(), testutil.NetErr(), testutil.Success("bob", time.Now()),
			},
			wantState: auth.StateAuthenticated,
		},
		{
			name:       "single retry budget",
			maxRetries: 1,
			steps:      []testutil.PollStep{testutil.NetErr()},
			wantState:  auth.StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, time.Hour, auth.WithMaxNetworkRetries(tt.maxRetries))
			h.idp.Queue(tt.steps...)

			h.run(h.s.Start())

			if h.s.State() != tt.wantState {
				t.Fatalf("State() = %s, want %s", h.s.State(), tt.wantState)
			}
			if tt.wantState != auth.StateFailed {
				return
			}
			if h.s.Reason() != auth.ReasonNetwork {
				t.Errorf("Reason() = %q, want network", h.s.Reason())
			}
			var netErr *auth.NetworkError
			if !errors.As(h.s.Err(), &netErr) {
				t.Fatalf("Err() = %v, want *NetworkError", h.s.Err())
			}
			if netErr.Attempts != tt.maxRetries {
				t.Errorf("Attempts = %d, want %d", netErr.Attempts, tt.maxRetries)
			}
			if !errors.Is(h.s.Err(), auth.ErrAuthFailure) {
				t.Error("NetworkError does not match ErrAuthFailure")
			}
		})
	}
}

func TestDeviceCodeRequestFailure(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.idp.RequestDeviceCodeFunc = func(ctx context.Context) (auth.DeviceCode, error) {
		return auth.DeviceCode{}, fmt.Errorf("no route to host")
	}

	h.run(h.s.Start())

	if h.s.State() != auth.StateFailed || h.s.Reason() != auth.ReasonNetwork {
		t.Errorf("state=%s reason=%q", h.s.State(), h.s.Reason())
	}
}

func TestSlowDownBacksOff(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.idp.Queue(testutil.SlowDown(), testutil.SlowDown(), testutil.Success("carol", time.Now()))

	h.run(h.s.Start())

	want := []time.Duration{time.Second, 6 * time.Second, 11 * time.Second}
	got := h.ticker.Delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestVerificationHelpers(t *testing.T) {
	var opened, copied string
	h := newHarness(t, time.Hour,
		auth.WithBrowser(func(url string) error { opened = url; return nil }),
		auth.WithClipboard(func(text string) error { copied = text; return nil }),
	)

	if err := h.s.OpenVerificationURL(); !errors.Is(err, auth.ErrNoDeviceCode) {
		t.Errorf("OpenVerificationURL() before code = %v", err)
	}
	if err := h.s.CopyUserCode(); !errors.Is(err, auth.ErrNoDeviceCode) {
		t.Errorf("CopyUserCode() before code = %v", err)
	}

	h.update(h.s.Start()())
	before := h.s.State()

	if err := h.s.OpenVerificationURL(); err != nil {
		t.Fatal(err)
	}
	if err := h.s.CopyUserCode(); err != nil {
		t.Fatal(err)
	}
	if opened != "https://microsoft.com/devicelogin" || copied != "USER-1" {
		t.Errorf("opened=%q copied=%q", opened, copied)
	}
	if h.s.State() != before {
		t.Error("verification helpers changed state")
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t, time.Hour)
	tok := testutil.Success("dave", time.Now()).Result.Token

	h.s.Restore(tok, "dave")

	if !h.s.IsAuthenticated() || h.s.Username() != "dave" {
		t.Errorf("Restore() state=%s user=%q", h.s.State(), h.s.Username())
	}
	if h.s.Cancel() {
		t.Error("Cancel() on authenticated session = true")
	}
}

func TestRoute(t *testing.T) {
	msgs := []tea.Msg{
		auth.DeviceCodeMsg{SessionID: "a"},
		auth.PollTickMsg{SessionID: "a"},
		auth.PollResultMsg{SessionID: "a"},
	}
	for _, msg := range msgs {
		if id, ok := auth.Route(msg); !ok || id != "a" {
			t.Errorf("Route(%T) = %q, %v", msg, id, ok)
		}
	}
	if _, ok := auth.Route(tea.KeyMsg{}); ok {
		t.Error("Route(KeyMsg) = true")
	}
}

func TestForeignSessionMessageIgnored(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.update(h.s.Start()())

	cmd, ev := h.s.Update(auth.PollTickMsg{SessionID: "other", Generation: 1})
	if cmd != nil || ev != auth.EventNone {
		t.Error("message for another session was handled")
	}
}

func TestSignOut(t *testing.T) {
	h := newHarness(t, time.Hour)
	if h.s.SignOut() {
		t.Error("SignOut() on idle session = true")
	}

	h.idp.Queue(testutil.Success("erin", h.clock.Now()))
	h.run(h.s.Start())

	if !h.s.SignOut() {
		t.Fatal("SignOut() = false after authentication")
	}
	if h.s.State() != auth.StateIdle || h.s.Token() != nil || h.s.Username() != "" {
		t.Errorf("after SignOut: state=%s token=%v user=%q", h.s.State(), h.s.Token(), h.s.Username())
	}
	if h.s.Start() == nil {
		t.Error("Start() after SignOut returned nil")
	}
}
