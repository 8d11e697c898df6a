package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/99designs/keyring"
	"github.com/BurntSushi/toml"
)

// SecurityMethod defines the credential storage method
type SecurityMethod string

const (
	SecurityPlainText SecurityMethod = "plaintext"
	SecuritySSHKey    SecurityMethod = "ssh_key"
	SecurityKeyring   SecurityMethod = "keyring"
)

// Credential is one key/value secret, e.g. "agent.azure-foundry.sales.apiKey".
type Credential struct {
	Key   string
	Value string
}

// CredentialKey joins key segments with dots: CredentialKey("acs", "accessKey") == "acs.accessKey".
func CredentialKey(parts ...string) string {
	return strings.Join(parts, ".")
}

// CredentialStore keeps secrets in a plain text TOML file, an SSH-key
// encrypted file, or the operating system's credential manager.
//
// File-backed methods hold credentials in memory until Save is called.
// The keyring method writes through immediately.
type CredentialStore struct {
	method      SecurityMethod
	credentials map[string]string
	sshKeyPath  string
	passphrase  string
	encManager  *EncryptionManager
	ring        keyring.Keyring
	mu          sync.RWMutex
}

// NewCredentialStore creates a credential store for the given method. For
// SecurityKeyring the OS keyring is opened under ServiceName.
func NewCredentialStore(method SecurityMethod, sshKeyPath string) (*CredentialStore, error) {
	c := &CredentialStore{
		method:      method,
		credentials: make(map[string]string),
		sshKeyPath:  sshKeyPath,
	}

	switch method {
	case SecurityPlainText, SecuritySSHKey:
		return c, nil
	case SecurityKeyring:
		ring, err := OpenKeyring(ServiceName)
		if err != nil {
			return nil, err
		}
		c.ring = ring
		return c, nil
	default:
		return nil, fmt.Errorf("unknown security method: %s", method)
	}
}

// NewKeyringCredentialStore wraps an already opened keyring.
func NewKeyringCredentialStore(ring keyring.Keyring) *CredentialStore {
	return &CredentialStore{
		method:      SecurityKeyring,
		credentials: make(map[string]string),
		ring:        ring,
	}
}

// SetPassphrase sets the passphrase for decrypting the SSH key
func (c *CredentialStore) SetPassphrase(passphrase string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passphrase = passphrase
	if c.encManager != nil {
		c.encManager.SetPassphrase(passphrase)
	}
}

// Load loads credentials from disk based on the configured security method
func (c *CredentialStore) Load(dataDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.method {
	case SecurityPlainText:
		creds, err := loadPlainText(dataDir)
		if err != nil {
			return err
		}
		c.credentials = creds
		return nil

	case SecuritySSHKey:
		// Token files need the manager even before credentials.enc exists
		if err := c.ensureEncryption(); err != nil {
			return err
		}
		creds, err := c.loadSSHEncrypted(dataDir)
		if err != nil {
			return err
		}
		c.credentials = creds
		return nil

	case SecurityKeyring:
		return nil

	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

// Save saves credentials to disk based on the configured security method
func (c *CredentialStore) Save(dataDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.method {
	case SecurityPlainText:
		return savePlainText(dataDir, c.credentials)

	case SecuritySSHKey:
		return c.saveSSHEncrypted(dataDir)

	case SecurityKeyring:
		return nil

	default:
		return fmt.Errorf("unknown security method: %s", c.method)
	}
}

// Get returns the credential for key. A missing credential is (_, false, nil);
// an error means the backing store could not be read.
func (c *CredentialStore) Get(key string) (string, bool, error) {
	if c.method == SecurityKeyring {
		item, err := c.ring.Get(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to retrieve credential '%s': %w", key, err)
		}
		return string(item.Data), true, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.credentials[key]
	return value, ok, nil
}

// Set stores a credential
func (c *CredentialStore) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("credential key cannot be empty")
	}

	if c.method == SecurityKeyring {
		if err := c.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + ": " + key}); err != nil {
			return fmt.Errorf("failed to store credential '%s': %w", key, err)
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials[key] = value
	return nil
}

// Delete removes a credential and reports whether it existed
func (c *CredentialStore) Delete(key string) (bool, error) {
	if c.method == SecurityKeyring {
		// Some backends silently ignore removal of unknown keys, so look first.
		if _, ok, err := c.Get(key); err != nil || !ok {
			return false, err
		}
		err := c.ring.Remove(key)
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to delete credential '%s': %w", key, err)
		}
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.credentials[key]
	delete(c.credentials, key)
	return ok, nil
}

// SetBatch stores credentials in order and returns how many were stored
// before the first failure.
func (c *CredentialStore) SetBatch(creds []Credential) (int, error) {
	count := 0
	for _, cred := range creds {
		if err := c.Set(cred.Key, cred.Value); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// GetBatch returns the credentials that exist among keys. Missing keys are skipped.
func (c *CredentialStore) GetBatch(keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		if ok {
			result[key] = value
		}
	}
	return result, nil
}

// DeleteBatch removes keys and returns how many actually existed.
func (c *CredentialStore) DeleteBatch(keys []string) (int, error) {
	count := 0
	for _, key := range keys {
		deleted, err := c.Delete(key)
		if err != nil {
			return count, err
		}
		if deleted {
			count++
		}
	}
	return count, nil
}

// Keys lists stored credential keys in sorted order
func (c *CredentialStore) Keys() ([]string, error) {
	if c.method == SecurityKeyring {
		keys, err := c.ring.Keys()
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", err)
		}
		sort.Strings(keys)
		return keys, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.credentials))
	for k := range c.credentials {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetEncryptionManager returns the encryption manager (for FileTokenStore)
func (c *CredentialStore) GetEncryptionManager() *EncryptionManager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encManager
}

// GetMethod returns the current security method
func (c *CredentialStore) GetMethod() SecurityMethod {
	return c.method
}

func credentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.toml")
}

func encryptedCredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.enc")
}

type credentialsFile struct {
	Credentials map[string]string `toml:"credentials"`
}

// ===== Plain Text Storage =====

func loadPlainText(dataDir string) (map[string]string, error) {
	path := credentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	var cf credentialsFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if cf.Credentials == nil {
		cf.Credentials = make(map[string]string)
	}

	return cf.Credentials, nil
}

func savePlainText(dataDir string, creds map[string]string) error {
	path := credentialsPath(dataDir)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(credentialsFile{Credentials: creds}); err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	return nil
}

// ===== SSH Key Encrypted Storage =====

// ensureEncryption (re)initializes the manager when missing or when a
// passphrase has been supplied since the last attempt. Caller holds c.mu.
func (c *CredentialStore) ensureEncryption() error {
	if c.encManager != nil && c.passphrase == "" {
		return nil
	}
	mgr := NewEncryptionManager(EncryptionSSHKey, c.sshKeyPath)
	mgr.SetPassphrase(c.passphrase)
	if err := mgr.Initialize(); err != nil {
		c.encManager = nil
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	c.encManager = mgr
	return nil
}

func (c *CredentialStore) loadSSHEncrypted(dataDir string) (map[string]string, error) {
	path := encryptedCredentialsPath(dataDir)
	if !FileExists(path) {
		return make(map[string]string), nil
	}

	if err := c.ensureEncryption(); err != nil {
		return nil, err
	}

	encryptedData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted credentials: %w", err)
	}

	decryptedData, err := c.encManager.Decrypt(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	creds := make(map[string]string)
	if err := json.Unmarshal(decryptedData, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse decrypted credentials: %w", err)
	}

	return creds, nil
}

func (c *CredentialStore) saveSSHEncrypted(dataDir string) error {
	if err := c.ensureEncryption(); err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(c.credentials, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	encryptedData, err := c.encManager.Encrypt(jsonData)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := os.WriteFile(encryptedCredentialsPath(dataDir), encryptedData, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted credentials: %w", err)
	}

	return nil
}
