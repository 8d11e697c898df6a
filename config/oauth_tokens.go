package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	transport "github.com/mark3labs/mcp-go/client/transport"
)

// FileTokenStore persists the OAuth token obtained for one provider.
// It implements transport.TokenStore and honours the user's security
// choice: ssh_key encrypts the file, every other method writes JSON with
// 0600 permissions.
type FileTokenStore struct {
	providerID string
	dataDir    string
	security   SecurityMethod
	encMgr     *EncryptionManager
	mu         sync.RWMutex
}

var _ transport.TokenStore = (*FileTokenStore)(nil)

// NewFileTokenStore creates a persistent token store
func NewFileTokenStore(providerID string, dataDir string, security SecurityMethod, encMgr *EncryptionManager) *FileTokenStore {
	return &FileTokenStore{
		providerID: providerID,
		dataDir:    dataDir,
		security:   security,
		encMgr:     encMgr,
	}
}

// GetToken loads the token from disk. A missing file is transport.ErrNoToken.
func (s *FileTokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.tokenPath())
	switch {
	case os.IsNotExist(err):
		return nil, transport.ErrNoToken
	case err != nil:
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	if s.security == SecuritySSHKey {
		if s.encMgr == nil {
			return nil, fmt.Errorf("encryption manager not initialized")
		}
		data, err = s.encMgr.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt token: %w", err)
		}
	}

	var token transport.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// SaveToken writes the token to disk
func (s *FileTokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if s.security == SecuritySSHKey {
		if s.encMgr == nil {
			return fmt.Errorf("encryption manager not initialized")
		}
		data, err = s.encMgr.Encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt token: %w", err)
		}
	}

	tokenPath := s.tokenPath()
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	if err := os.WriteFile(tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

// DeleteToken removes the persisted token; a missing file is not an error.
func (s *FileTokenStore) DeleteToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.tokenPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) tokenPath() string {
	dir := filepath.Join(s.dataDir, "tokens")
	if s.security == SecuritySSHKey {
		return filepath.Join(dir, fmt.Sprintf("oauth_token_%s.enc", s.providerID))
	}
	return filepath.Join(dir, fmt.Sprintf("oauth_token_%s.json", s.providerID))
}
