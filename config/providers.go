package config

import (
	"fmt"
	"strconv"
	"strings"
)

// UpdateProviderField updates a single field of a configured provider and
// saves config.toml.
//
// Fields:
//   - "name": display name
//   - "voice_name": speech voice identifier (empty clears it)
//   - "is_default": "true" makes this the only default provider
func UpdateProviderField(dataDir, providerID, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	idx := findProvider(cfg, providerID)
	if idx < 0 {
		return fmt.Errorf("unknown provider: %s", providerID)
	}

	switch fieldName {
	case "name":
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("provider name cannot be empty")
		}
		cfg.Providers[idx].Name = value
	case "voice_name":
		cfg.Providers[idx].VoiceName = strings.TrimSpace(value)
	case "is_default":
		isDefault, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for is_default: %q", value)
		}
		if isDefault {
			setDefaultProvider(cfg, providerID)
		} else {
			cfg.Providers[idx].IsDefault = false
			if cfg.DefaultProvider == providerID {
				cfg.DefaultProvider = ""
			}
		}
	default:
		return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if Debug {
		DebugLog.Printf("[Config] Updated provider %s field %s", providerID, fieldName)
	}
	return nil
}

// SetDefaultProvider marks providerID as the default and clears the flag on
// every other provider.
func SetDefaultProvider(dataDir, providerID string) error {
	return UpdateProviderField(dataDir, providerID, "is_default", "true")
}

func setDefaultProvider(cfg *UserConfig, providerID string) {
	for i := range cfg.Providers {
		cfg.Providers[i].IsDefault = cfg.Providers[i].ID == providerID
	}
	cfg.DefaultProvider = providerID
}

func findProvider(cfg *UserConfig, providerID string) int {
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			return i
		}
	}
	return -1
}
