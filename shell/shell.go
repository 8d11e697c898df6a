// Package shell exposes the window the application runs in.
//
// The handle is probed once at startup with Detect and handed to the UI as
// an Option. When the Option is empty the UI hides its window controls.
package shell

import (
	"errors"
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"agentbridge/config"
)

// ErrNotAttached is returned by Terminal operations before Attach.
var ErrNotAttached = errors.New("shell handle is not attached to a program")

// Handle controls the window hosting the application.
type Handle interface {
	Minimize() error
	ToggleMaximize() error
	IsMaximized() bool
	Close() error
}

// Option is a Handle that may be absent.
type Option struct {
	Handle Handle
	OK     bool
}

// Some wraps h in a present Option.
func Some(h Handle) Option {
	return Option{Handle: h, OK: h != nil}
}

// None is the empty Option.
func None() Option {
	return Option{}
}

// OperationError reports a failed window operation. It is never fatal.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("shell %s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Detect reports a Terminal handle when out is an interactive terminal.
// maximized is the initial alternate-screen state of the program.
func Detect(out *os.File, maximized bool) Option {
	if out == nil {
		return None()
	}
	fd := out.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		if config.Debug {
			config.DebugLog.Printf("[Shell] %s is not a terminal, window controls disabled", out.Name())
		}
		return None()
	}
	return Some(NewTerminal(maximized))
}

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Terminal is the Handle for a bubbletea program: minimize suspends the
// process, maximize toggles the alternate screen and close quits.
//
// Send blocks until the program reads the message, so operations must run
// from a tea.Cmd rather than inside Update.
type Terminal struct {
	mu        sync.Mutex
	program   Sender
	maximized bool
}

var _ Handle = (*Terminal)(nil)

func NewTerminal(maximized bool) *Terminal {
	return &Terminal{maximized: maximized}
}

// Attach binds the handle to the running program.
func (t *Terminal) Attach(p Sender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.program = p
}

func (t *Terminal) send(op string, msg tea.Msg) error {
	t.mu.Lock()
	p := t.program
	t.mu.Unlock()

	if p == nil {
		return &OperationError{Op: op, Err: ErrNotAttached}
	}
	p.Send(msg)
	return nil
}

func (t *Terminal) Minimize() error {
	return t.send("minimize", tea.Suspend())
}

func (t *Terminal) ToggleMaximize() error {
	t.mu.Lock()
	next := !t.maximized
	t.mu.Unlock()

	msg := tea.ExitAltScreen()
	if next {
		msg = tea.EnterAltScreen()
	}
	if err := t.send("toggle maximize", msg); err != nil {
		return err
	}

	t.mu.Lock()
	t.maximized = next
	t.mu.Unlock()
	return nil
}

func (t *Terminal) IsMaximized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maximized
}

func (t *Terminal) Close() error {
	return t.send("close", tea.Quit())
}
