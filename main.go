package main

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"agentbridge/bridge"
	"agentbridge/config"
	"agentbridge/shell"
	"agentbridge/storage"
	"agentbridge/ui"
)

const Version = "v0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dataDir string
	var debug, showVersion bool

	flagSet := pflag.NewFlagSet("agentbridge", pflag.ContinueOnError)
	flagSet.StringVar(&dataDir, "data-dir", "", "data directory (overrides settings.toml and AGENTBRIDGE_DATA_DIR)")
	flagSet.BoolVar(&debug, "debug", false, "write a debug log to <data-dir>/debug.log")
	flagSet.BoolVarP(&showVersion, "version", "v", false, "print the version and exit")

	// Flags go before the credentials subcommand
	flagSet.SetInterspersed(false)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) > 0 && args[0] != "credentials" {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	info := config.GetAppInfo(Version)
	if showVersion {
		fmt.Printf("%s %s (%s/%s)\n", info.Name, info.Version, info.Platform, info.Arch)
		return nil
	}

	cfg, err := config.LoadWithDataDir(dataDir)
	if len(args) > 0 {
		if err != nil {
			return err
		}
		config.InitDebugLog(cfg.DataDir(), debug)
		return runCredentials(cfg, args[1:], os.Stdin, os.Stdout)
	}
	if errors.Is(err, config.ErrPassphraseRequired) {
		return showError("SSH Key Locked", fmt.Errorf("%w: set AGENTBRIDGE_SSH_KEY_PASSPHRASE and start again", err))
	}
	if err != nil {
		return showError("Configuration Error", err)
	}

	config.InitDebugLog(cfg.DataDir(), debug)

	kb, err := config.LoadKeybindings(cfg.DataDir())
	if err != nil {
		return showError("Keybindings Error", err)
	}
	if ok, warning := kb.Validate(); !ok {
		if config.Debug {
			config.DebugLog.Printf("Invalid keybindings (%s), using defaults", warning)
		}
		kb = config.DefaultKeybindings()
	}

	meetings, err := storage.NewMeetingStorage(cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to initialize meeting storage: %w", err)
	}

	// Single-instance enforcement per data directory
	locked, runningPID, err := meetings.CheckInstanceLock()
	if err != nil {
		return fmt.Errorf("failed to check instance lock: %w", err)
	}
	if locked {
		final, err := tea.NewProgram(ui.NewInstanceLockedModal(runningPID), tea.WithAltScreen()).Run()
		if err != nil {
			return err
		}
		if m, ok := final.(ui.InstanceLockedModal); !ok || !m.ForceDelete() {
			return nil
		}
		if err := meetings.UnlockInstance(); err != nil {
			return fmt.Errorf("failed to delete lock file: %w", err)
		}
	}

	b, err := bridge.New(cfg, bridge.WithStorage(meetings))
	if err != nil {
		return showError("Startup Error", err)
	}
	if err := b.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	sh := shell.Detect(os.Stdout, true)

	p := tea.NewProgram(
		ui.NewAppView(b, sh, kb, info),
		tea.WithAltScreen(),
	)
	if term, ok := sh.Handle.(*shell.Terminal); ok {
		term.Attach(p)
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run agentbridge: %w", err)
	}
	return nil
}

// showError displays err in a modal before the main view exists and
// returns it for the exit status.
func showError(title string, err error) error {
	if _, runErr := tea.NewProgram(ui.NewErrorModal(title, err.Error()), tea.WithAltScreen()).Run(); runErr != nil {
		return fmt.Errorf("%w (and the error screen failed: %v)", err, runErr)
	}
	return err
}
