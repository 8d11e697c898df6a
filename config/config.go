package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// IdentityConfig holds the Microsoft identity platform settings used by the
// device-code flow.
type IdentityConfig struct {
	TenantID          string   `toml:"tenant_id"`
	ClientID          string   `toml:"client_id"`
	Scopes            []string `toml:"scopes"`
	MaxNetworkRetries int      `toml:"max_network_retries"`
}

type SpeechConfig struct {
	Region       string `toml:"region"`
	DefaultVoice string `toml:"default_voice"`
}

type SecurityConfig struct {
	Method     SecurityMethod `toml:"method"`
	SSHKeyPath string         `toml:"ssh_key_path,omitempty"`
}

// ProviderSettingsConfig is the union of every provider kind's settings.
// The provider package picks the fields that belong to each kind.
type ProviderSettingsConfig struct {
	// Copilot Studio
	EnvironmentID string `toml:"environment_id,omitempty"`
	SchemaName    string `toml:"schema_name,omitempty"`
	BotName       string `toml:"bot_name,omitempty"`
	TenantID      string `toml:"tenant_id,omitempty"`
	ClientID      string `toml:"client_id,omitempty"`
	TokenEndpoint string `toml:"token_endpoint,omitempty"`

	// Azure Foundry, Anthropic, Ollama
	Endpoint    string `toml:"endpoint,omitempty"`
	ProjectName string `toml:"project_name,omitempty"`
	AgentID     string `toml:"agent_id,omitempty"`
	APIVersion  string `toml:"api_version,omitempty"`
	BaseURL     string `toml:"base_url,omitempty"`
	Model       string `toml:"model,omitempty"`
	DisplayName string `toml:"display_name,omitempty"`
}

type ProviderConfig struct {
	ID        string                 `toml:"id"`
	Name      string                 `toml:"name"`
	Type      string                 `toml:"type"`
	AuthType  string                 `toml:"auth_type"`
	VoiceName string                 `toml:"voice_name,omitempty"`
	IsDefault bool                   `toml:"is_default,omitempty"`
	Settings  ProviderSettingsConfig `toml:"settings"`
}

type UserConfig struct {
	DefaultProvider string           `toml:"default_provider,omitempty"`
	Identity        IdentityConfig   `toml:"identity"`
	Speech          SpeechConfig     `toml:"speech"`
	Security        SecurityConfig   `toml:"security"`
	Providers       []ProviderConfig `toml:"providers"`
}

type Config struct {
	DataDirectory   string
	DefaultProvider string
	Identity        IdentityConfig
	Speech          SpeechConfig
	Security        SecurityConfig
	Providers       []ProviderConfig

	CredentialStore *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyUserConfig(userCfg *UserConfig) {
	c.DefaultProvider = userCfg.DefaultProvider
	c.Identity = userCfg.Identity
	c.Speech = userCfg.Speech
	c.Security = userCfg.Security
	c.Providers = userCfg.Providers
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("AGENTBRIDGE_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if tenant := os.Getenv("AGENTBRIDGE_TENANT_ID"); tenant != "" {
		c.Identity.TenantID = tenant
	}
	if clientID := os.Getenv("AGENTBRIDGE_CLIENT_ID"); clientID != "" {
		c.Identity.ClientID = clientID
	}
}

func CheckDebug() bool {
	debug := os.Getenv("AGENTBRIDGE_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <dataDir>/debug.log when debugging is requested through
// the environment or the force flag.
func InitDebugLog(dataDir string, force bool) {
	if !force && !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600: the log may contain account names and endpoints
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		Debug = false
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (AGENTBRIDGE_DEBUG=%s) ===", os.Getenv("AGENTBRIDGE_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads the system settings and the user config, applies environment
// overrides, then opens the credential store for the configured security method.
func Load() (*Config, error) {
	return LoadWithDataDir("")
}

// LoadWithDataDir is Load with an explicit data directory taking precedence
// over settings.toml and the environment.
func LoadWithDataDir(dataDirOverride string) (*Config, error) {
	cfg := &Config{
		DataDirectory: DefaultSystemConfig().DataDirectory,
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory

	if dataDir := os.Getenv("AGENTBRIDGE_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}
	if dataDirOverride != "" {
		cfg.DataDirectory = dataDirOverride
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.applyUserConfig(userCfg)
	cfg.applyEnvOverrides()
	if dataDirOverride != "" {
		cfg.DataDirectory = dataDirOverride
	}

	if cfg.Security.Method == "" {
		cfg.Security.Method = SecurityPlainText
	}

	if cfg.Security.Method == SecuritySSHKey && cfg.Security.SSHKeyPath == "" {
		cfg.Security.SSHKeyPath = DefaultSSHKeyPath()
	}

	store, err := NewCredentialStore(cfg.Security.Method, ExpandPath(cfg.Security.SSHKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	if passphrase := os.Getenv("AGENTBRIDGE_SSH_KEY_PASSPHRASE"); passphrase != "" {
		store.SetPassphrase(passphrase)
	}
	if err := store.Load(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cfg.CredentialStore = store

	if Debug {
		DebugLog.Printf("[Config] Loaded %d providers (security=%s, tenant=%s)",
			len(cfg.Providers), cfg.Security.Method, cfg.Identity.TenantID)
	}

	return cfg, nil
}

// IdentityScopes returns the configured scopes or the defaults used for
// Copilot Studio direct-to-engine access.
func (c *Config) IdentityScopes() []string {
	var scopes []string
	for _, s := range c.Identity.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return DefaultIdentityScopes()
	}
	return scopes
}
