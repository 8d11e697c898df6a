package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"agentbridge/config"
)

const credentialsUsage = `usage: agentbridge credentials <command> [keys...]

  set KEY=VALUE...   store credentials; a bare KEY reads its value from stdin
  get KEY...         print stored credentials
  delete KEY...      remove credentials
  list               print stored credential keys

Keys are dotted, e.g. agent.azure-foundry.sales.apiKey`

// runCredentials manages the credential store from the command line. The
// store is saved after every change.
func runCredentials(cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	store := cfg.CredentialStore
	if store == nil {
		return errors.New("credential store not initialized")
	}
	if len(args) == 0 {
		return errors.New(credentialsUsage)
	}

	cmd, keys := args[0], args[1:]
	if cmd != "list" && len(keys) == 0 {
		return fmt.Errorf("credentials %s: at least one key is required", cmd)
	}

	switch cmd {
	case "set":
		creds, err := parseCredentials(keys, in)
		if err != nil {
			return err
		}
		n, err := store.SetBatch(creds)
		if err != nil {
			return fmt.Errorf("failed to store credentials (%d stored): %w", n, err)
		}
		if err := store.Save(cfg.DataDir()); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		fmt.Fprintf(out, "Stored %d credential(s)\n", n)

	case "get":
		found, err := store.GetBatch(keys)
		if err != nil {
			return fmt.Errorf("failed to read credentials: %w", err)
		}
		for _, key := range keys {
			if value, ok := found[key]; ok {
				fmt.Fprintf(out, "%s=%s\n", key, value)
			}
		}
		if len(found) < len(keys) {
			return fmt.Errorf("%d of %d credential(s) not found", len(keys)-len(found), len(keys))
		}

	case "delete":
		n, err := store.DeleteBatch(keys)
		if err != nil {
			return fmt.Errorf("failed to delete credentials (%d deleted): %w", n, err)
		}
		if err := store.Save(cfg.DataDir()); err != nil {
			return fmt.Errorf("failed to save credentials: %w", err)
		}
		fmt.Fprintf(out, "Deleted %d of %d credential(s)\n", n, len(keys))

	case "list":
		all, err := store.Keys()
		if err != nil {
			return err
		}
		for _, key := range all {
			fmt.Fprintln(out, key)
		}

	default:
		return fmt.Errorf("unknown credentials command: %s\n\n%s", cmd, credentialsUsage)
	}

	if config.Debug {
		config.DebugLog.Printf("[Credentials] %s %d key(s) (security=%s)", cmd, len(keys), store.GetMethod())
	}
	return nil
}

// parseCredentials reads KEY=VALUE arguments. Values of bare keys come from
// in, one line per key, so secrets stay out of shell history.
func parseCredentials(args []string, in io.Reader) ([]config.Credential, error) {
	scanner := bufio.NewScanner(in)
	creds := make([]config.Credential, 0, len(args))

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return nil, fmt.Errorf("failed to read value for %s: %w", key, err)
				}
				return nil, fmt.Errorf("no value for %s on stdin", key)
			}
			value = strings.TrimRight(scanner.Text(), "\r")
		}
		if key == "" {
			return nil, fmt.Errorf("empty credential key in %q", arg)
		}
		creds = append(creds, config.Credential{Key: key, Value: value})
	}
	return creds, nil
}
