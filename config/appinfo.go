package config

import "runtime"

const (
	AppName        = "Agent Bridge"
	AppDescription = "Connects meeting bots to Copilot Studio, Azure Foundry, Anthropic and Ollama agents."
)

// AppInfo describes the running build.
type AppInfo struct {
	Name        string
	Version     string
	Description string
	Platform    string
	Arch        string
}

func GetAppInfo(version string) AppInfo {
	return AppInfo{
		Name:        AppName,
		Version:     version,
		Description: AppDescription,
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
	}
}
