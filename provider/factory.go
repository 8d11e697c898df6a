package provider

import (
	"fmt"
	"net/url"
	"strings"

	"agentbridge/config"
	"agentbridge/ollama"
)

const (
	DefaultAnthropicBaseURL  = "https://api.anthropic.com"
	DefaultFoundryAPIVersion = "2024-10-21"
)

// FromConfig converts a [[providers]] entry into a typed Provider.
//
// Returns an error if:
//   - the ID is empty or contains a path separator
//   - the type is unknown
//   - the auth type is unknown or not supported by the kind
//   - a setting the kind cannot work without is missing
//
// An empty auth_type takes the kind's default (microsoft-device-code for
// copilot-studio, none for everything else).
func FromConfig(pc config.ProviderConfig) (Provider, error) {
	id := strings.TrimSpace(pc.ID)
	if id == "" {
		return Provider{}, fmt.Errorf("provider id is required")
	}
	// IDs name the provider's token file
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return Provider{}, fmt.Errorf("invalid provider id: %q", id)
	}

	settings, err := settingsFromConfig(Type(pc.Type), pc.Settings)
	if err != nil {
		return Provider{}, fmt.Errorf("provider %s: %w", id, err)
	}

	authType := AuthType(pc.AuthType)
	switch authType {
	case "":
		authType = settings.defaultAuth()
	case AuthNone, AuthMicrosoftDeviceCode:
	default:
		return Provider{}, fmt.Errorf("provider %s: unknown auth type: %s", id, pc.AuthType)
	}
	if !settings.supportsAuth(authType) {
		return Provider{}, fmt.Errorf("provider %s: %s does not support auth type %s", id, settings.Kind(), authType)
	}

	return Provider{
		ID:        id,
		Name:      strings.TrimSpace(pc.Name),
		AuthType:  authType,
		Settings:  settings,
		VoiceName: strings.TrimSpace(pc.VoiceName),
		IsDefault: pc.IsDefault,
	}, nil
}

func settingsFromConfig(t Type, s config.ProviderSettingsConfig) (Settings, error) {
	switch t {
	case TypeCopilotStudio:
		if s.EnvironmentID == "" || s.SchemaName == "" {
			return nil, fmt.Errorf("copilot-studio requires environment_id and schema_name")
		}
		return CopilotStudio{
			EnvironmentID: s.EnvironmentID,
			SchemaName:    s.SchemaName,
			BotName:       s.BotName,
			TenantID:      s.TenantID,
			ClientID:      s.ClientID,
		}, nil

	case TypeCopilotStudioAnon:
		if err := requireURL("token_endpoint", s.TokenEndpoint); err != nil {
			return nil, err
		}
		return CopilotStudioAnon{
			TokenEndpoint: s.TokenEndpoint,
			BotName:       s.BotName,
		}, nil

	case TypeAzureFoundry:
		if err := requireURL("endpoint", s.Endpoint); err != nil {
			return nil, err
		}
		apiVersion := s.APIVersion
		if apiVersion == "" {
			apiVersion = DefaultFoundryAPIVersion
		}
		return AzureFoundry{
			Endpoint:    strings.TrimRight(s.Endpoint, "/"),
			ProjectName: s.ProjectName,
			AgentID:     s.AgentID,
			DisplayName: s.DisplayName,
			APIVersion:  apiVersion,
		}, nil

	case TypeAnthropic:
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = DefaultAnthropicBaseURL
		}
		return Anthropic{
			BaseURL:     baseURL,
			Model:       s.Model,
			DisplayName: s.DisplayName,
		}, nil

	case TypeOllama:
		host := s.BaseURL
		if host == "" {
			host = ollama.DefaultHost
		}
		return Ollama{
			Host:        host,
			Model:       s.Model,
			DisplayName: s.DisplayName,
		}, nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", t)
	}
}

func requireURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %q", field, raw)
	}
	return nil
}
