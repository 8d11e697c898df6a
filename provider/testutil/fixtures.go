package testutil

import "agentbridge/provider"

// CopilotProvider returns a device-code Copilot Studio provider
func CopilotProvider(id, name, botName string) provider.Provider {
	return provider.Provider{
		ID:       id,
		Name:     name,
		AuthType: provider.AuthMicrosoftDeviceCode,
		Settings: provider.CopilotStudio{
			EnvironmentID: "Default-0000",
			SchemaName:    "cr123_" + id,
			BotName:       botName,
		},
	}
}

// AnonProvider returns an auth-free Copilot Studio provider
func AnonProvider(id, name, botName string) provider.Provider {
	return provider.Provider{
		ID:       id,
		Name:     name,
		AuthType: provider.AuthNone,
		Settings: provider.CopilotStudioAnon{
			TokenEndpoint: "https://example.invalid/token",
			BotName:       botName,
		},
	}
}

// OllamaProvider returns a local auth-free provider
func OllamaProvider(id, name string) provider.Provider {
	return provider.Provider{
		ID:       id,
		Name:     name,
		AuthType: provider.AuthNone,
		Settings: provider.Ollama{Host: "http://localhost:11434", Model: "llama3.1"},
	}
}

// WithVoice returns p with VoiceName set
func WithVoice(p provider.Provider, voice string) provider.Provider {
	p.VoiceName = voice
	return p
}

// AsDefault returns p marked as the default provider
func AsDefault(p provider.Provider) provider.Provider {
	p.IsDefault = true
	return p
}

// TestRegistry builds a registry from providers and panics on invalid input
func TestRegistry(providers ...provider.Provider) *provider.Registry {
	reg, err := provider.NewRegistry(providers)
	if err != nil {
		panic(err)
	}
	return reg
}
