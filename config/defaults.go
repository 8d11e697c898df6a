package config

const (
	AppName        = "Agent Bridge"
	AppDescription = "Modular terminal application for joining meetings with AI agents"
	ServiceName    = "agentbridge"
)

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/agentbridge",
	}
}

func DefaultIdentityScopes() []string {
	return []string{
		"https://api.powerplatform.com/.default",
		"offline_access",
		"openid",
		"profile",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Identity: IdentityConfig{
			TenantID:          "organizations",
			Scopes:            DefaultIdentityScopes(),
			MaxNetworkRetries: 3,
		},
		Speech: SpeechConfig{
			DefaultVoice: "en-US-JennyNeural",
		},
		Security: SecurityConfig{
			Method: SecurityPlainText,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Agent Bridge System Configuration
# Location: ~/.config/agentbridge/settings.toml
# This file uses TOML format: https://toml.io

# Directory where meetings, tokens and user config are stored
data_directory = "~/.local/share/agentbridge"
`
}

func GenerateUserConfigTemplate() string {
	return `# Agent Bridge User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider selected for new meetings (optional, overrides is_default)
default_provider = ""

[identity]
# Microsoft Entra tenant ("organizations", "common" or a tenant GUID)
tenant_id = "organizations"
# Public client application ID registered for device-code sign-in
client_id = ""
scopes = ["https://api.powerplatform.com/.default", "offline_access", "openid", "profile"]
# Consecutive network failures tolerated while polling for a token
max_network_retries = 3

[speech]
region = ""
default_voice = "en-US-JennyNeural"

[security]
# plaintext | ssh_key | keyring
method = "plaintext"
ssh_key_path = ""

# Agent providers. Example:
#
# [[providers]]
# id = "helpdesk"
# name = "Helpdesk Agent"
# type = "copilot-studio"
# auth_type = "microsoft-device-code"
# voice_name = "en-US-AriaNeural"
# is_default = true
# [providers.settings]
# environment_id = "Default-0000"
# schema_name = "cr123_helpdesk"
# bot_name = "Helper"
`
}
