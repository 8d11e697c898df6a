// Package auth runs the OAuth 2.0 device authorization grant (RFC 8628)
// as a bubbletea command/message state machine.
//
// A Session is started with Start, which returns the command that requests
// a device code. Every message the session produces carries the session ID
// and a generation number; Cancel bumps the generation, so responses that
// were already in flight are recognised as stale and dropped by Update.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// DeviceCode is the server's answer to a device authorization request.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	ExpiresAt       time.Time
	Interval        time.Duration
}

// Outcome classifies a single token poll.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSlowDown
	OutcomeSuccess
	OutcomeExpired
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSlowDown:
		return "slow_down"
	case OutcomeSuccess:
		return "success"
	case OutcomeExpired:
		return "expired"
	case OutcomeDenied:
		return "denied"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PollResult is the answer to one token poll. Token and Username are set
// only for OutcomeSuccess.
type PollResult struct {
	Outcome  Outcome
	Token    *oauth2.Token
	Username string
}

// IdentityProvider issues device codes and exchanges them for tokens.
// A non-nil error from either method is a network or transport failure;
// protocol answers such as "pending" or "denied" are reported in PollResult.
type IdentityProvider interface {
	RequestDeviceCode(ctx context.Context) (DeviceCode, error)
	PollToken(ctx context.Context, deviceCode string) (PollResult, error)
}

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FailureReason explains why a session ended in StateFailed.
type FailureReason string

const (
	ReasonNone    FailureReason = ""
	ReasonExpired FailureReason = "expired"
	ReasonNetwork FailureReason = "network"
	ReasonDenied  FailureReason = "denied"
)

// ErrAuthFailure matches every failure a Session can end with.
var ErrAuthFailure = errors.New("authentication failed")

var (
	ErrExpired = fmt.Errorf("%w: device code expired", ErrAuthFailure)
	ErrDenied  = fmt.Errorf("%w: sign-in was denied", ErrAuthFailure)
)

// ErrNoDeviceCode is returned by the verification helpers when no code is
// currently displayed.
var ErrNoDeviceCode = errors.New("no device code is active")

// NetworkError is the failure after the retry budget for transport errors
// is spent.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("authentication failed after %d network attempt(s): %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	return []error{ErrAuthFailure, e.Err}
}
