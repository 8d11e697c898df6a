// Package provider defines the agent providers a meeting can be bound to.
//
// A provider is loaded once from config.toml and never changes afterwards.
// Each kind of provider carries its own settings payload; the set of kinds is
// closed, so code that switches on Settings only has to handle the variants
// declared here.
//
// # Architecture
//
//   - provider.Provider is the immutable record shared by every meeting
//   - provider.Settings is the sealed per-kind payload
//   - provider.Registry holds the configured providers in config order
//   - provider.Prober checks that an auth-free provider is reachable
//
// # Usage
//
//	reg, errs := provider.LoadRegistry(cfg)
//	for _, err := range errs {
//	    // invalid entries are skipped, not fatal
//	}
//	p, ok := reg.Default()
package provider

// Type identifies the kind of agent service a provider talks to.
type Type string

const (
	TypeCopilotStudio     Type = "copilot-studio"
	TypeCopilotStudioAnon Type = "copilot-studio-anon"
	TypeAzureFoundry      Type = "azure-foundry"
	TypeAnthropic         Type = "anthropic"
	TypeOllama            Type = "ollama"
)

// AuthType identifies how a provider authenticates.
type AuthType string

const (
	AuthNone                AuthType = "none"
	AuthMicrosoftDeviceCode AuthType = "microsoft-device-code"
)

// Settings is the kind-specific payload of a Provider. Only the variants in
// this package implement it.
type Settings interface {
	Kind() Type
	agentName() string
	defaultAuth() AuthType
	supportsAuth(AuthType) bool
}

// CopilotStudio is a Copilot Studio agent reached through the
// direct-to-engine API with a Microsoft Entra user token.
type CopilotStudio struct {
	EnvironmentID string
	SchemaName    string
	BotName       string
	TenantID      string // overrides [identity] tenant_id when set
	ClientID      string // overrides [identity] client_id when set
}

func (CopilotStudio) Kind() Type                   { return TypeCopilotStudio }
func (s CopilotStudio) agentName() string          { return s.BotName }
func (CopilotStudio) defaultAuth() AuthType        { return AuthMicrosoftDeviceCode }
func (CopilotStudio) supportsAuth(a AuthType) bool { return a == AuthMicrosoftDeviceCode }

// CopilotStudioAnon is a Copilot Studio agent published without
// authentication; a conversation token is fetched from TokenEndpoint.
type CopilotStudioAnon struct {
	TokenEndpoint string
	BotName       string
}

func (CopilotStudioAnon) Kind() Type                   { return TypeCopilotStudioAnon }
func (s CopilotStudioAnon) agentName() string          { return s.BotName }
func (CopilotStudioAnon) defaultAuth() AuthType        { return AuthNone }
func (CopilotStudioAnon) supportsAuth(a AuthType) bool { return a == AuthNone }

// AzureFoundry is an Azure AI Foundry agent. Its API key lives in the
// credential store under APIKeyCredential(id).
type AzureFoundry struct {
	Endpoint    string
	ProjectName string
	AgentID     string
	DisplayName string
	APIVersion  string
}

func (AzureFoundry) Kind() Type                   { return TypeAzureFoundry }
func (s AzureFoundry) agentName() string          { return s.DisplayName }
func (AzureFoundry) defaultAuth() AuthType        { return AuthNone }
func (AzureFoundry) supportsAuth(a AuthType) bool { return a == AuthNone }

// Anthropic is a Claude model used as the meeting agent.
type Anthropic struct {
	BaseURL     string
	Model       string
	DisplayName string
}

func (Anthropic) Kind() Type                   { return TypeAnthropic }
func (s Anthropic) agentName() string          { return s.DisplayName }
func (Anthropic) defaultAuth() AuthType        { return AuthNone }
func (Anthropic) supportsAuth(a AuthType) bool { return a == AuthNone }

// Ollama is a local model served by Ollama.
type Ollama struct {
	Host        string
	Model       string
	DisplayName string
}

func (Ollama) Kind() Type                   { return TypeOllama }
func (s Ollama) agentName() string          { return s.DisplayName }
func (Ollama) defaultAuth() AuthType        { return AuthNone }
func (Ollama) supportsAuth(a AuthType) bool { return a == AuthNone }

// Provider is one configured agent provider. Values are immutable once the
// registry is built.
type Provider struct {
	ID        string
	Name      string
	AuthType  AuthType
	Settings  Settings
	VoiceName string
	IsDefault bool
}

// Type returns the provider kind.
func (p Provider) Type() Type {
	if p.Settings == nil {
		return ""
	}
	return p.Settings.Kind()
}

// AgentName returns the kind-specific agent name: the bot name for Copilot
// Studio agents, the display name otherwise. It is empty when unset.
func (p Provider) AgentName() string {
	if p.Settings == nil {
		return ""
	}
	return p.Settings.agentName()
}

func (p Provider) RequiresAuth() bool {
	return p.AuthType == AuthMicrosoftDeviceCode
}

// DisplayName is what the selector shows: Name, else the agent name, else ID.
func (p Provider) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if name := p.AgentName(); name != "" {
		return name
	}
	return p.ID
}
