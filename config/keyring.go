package config

import (
	"fmt"

	"github.com/99designs/keyring"
)

// OpenKeyring opens the platform credential manager (Windows Credential
// Manager, macOS Keychain, Secret Service / KWallet on Linux).
func OpenKeyring(service string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.WinCredBackend,
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
		},
		KeychainTrustApplication: true,
		LibSecretCollectionName:  service,
		KWalletAppID:             service,
		KWalletFolder:            service,
		WinCredPrefix:            service,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s keyring: %w", service, err)
	}

	if Debug {
		DebugLog.Printf("[Credentials] Opened OS keyring for service %s", service)
	}
	return ring, nil
}
