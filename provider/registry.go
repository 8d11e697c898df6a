package provider

import (
	"fmt"

	"github.com/sahilm/fuzzy"

	"agentbridge/config"
)

// Registry is the read-only list of configured providers. It is built once
// at startup and safe for concurrent reads.
type Registry struct {
	providers []Provider
	byID      map[string]int
}

// NewRegistry builds a registry from providers in the given order. Duplicate
// IDs and more than one default are rejected.
func NewRegistry(providers []Provider) (*Registry, error) {
	r := &Registry{
		providers: make([]Provider, 0, len(providers)),
		byID:      make(map[string]int, len(providers)),
	}

	defaultID := ""
	for _, p := range providers {
		if p.ID == "" {
			return nil, fmt.Errorf("provider id is required")
		}
		if p.Settings == nil {
			return nil, fmt.Errorf("provider %s has no settings", p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		if p.IsDefault {
			if defaultID != "" {
				return nil, fmt.Errorf("providers %s and %s are both marked default", defaultID, p.ID)
			}
			defaultID = p.ID
		}
		r.byID[p.ID] = len(r.providers)
		r.providers = append(r.providers, p)
	}

	return r, nil
}

// LoadRegistry builds the registry from cfg.Providers. Entries that fail to
// convert, repeat an ID, or claim default after another one did are skipped
// and reported; the rest still load. cfg.DefaultProvider, when it names a
// loaded provider, wins over is_default flags.
func LoadRegistry(cfg *config.Config) (*Registry, []error) {
	var errs []error
	var providers []Provider
	seen := make(map[string]bool)
	defaultSeen := false

	for i, pc := range cfg.Providers {
		p, err := FromConfig(pc)
		if err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate provider id: %s", i, p.ID))
			continue
		}
		if p.IsDefault {
			if defaultSeen {
				errs = append(errs, fmt.Errorf("providers[%d]: %s is a second default, ignoring flag", i, p.ID))
				p.IsDefault = false
			}
			defaultSeen = true
		}
		seen[p.ID] = true
		providers = append(providers, p)
	}

	if cfg.DefaultProvider != "" {
		if !seen[cfg.DefaultProvider] {
			errs = append(errs, fmt.Errorf("default_provider %q is not a configured provider", cfg.DefaultProvider))
		} else {
			for i := range providers {
				providers[i].IsDefault = providers[i].ID == cfg.DefaultProvider
			}
		}
	}

	if config.Debug {
		for _, err := range errs {
			config.DebugLog.Printf("[Provider] Skipping config entry: %v", err)
		}
		config.DebugLog.Printf("[Provider] Loaded %d of %d providers", len(providers), len(cfg.Providers))
	}

	// Cannot fail: duplicates and extra defaults were filtered above.
	reg, err := NewRegistry(providers)
	if err != nil {
		errs = append(errs, err)
		reg, _ = NewRegistry(nil)
	}
	return reg, errs
}

// Get returns the provider with id.
func (r *Registry) Get(id string) (Provider, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Provider{}, false
	}
	return r.providers[i], true
}

// List returns the providers in config order. The slice is a copy.
func (r *Registry) List() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

func (r *Registry) Len() int {
	return len(r.providers)
}

// Default returns the provider marked default, else the first one.
func (r *Registry) Default() (Provider, bool) {
	for _, p := range r.providers {
		if p.IsDefault {
			return p, true
		}
	}
	if len(r.providers) > 0 {
		return r.providers[0], true
	}
	return Provider{}, false
}

// Filter fuzzy-matches query against display names, best match first. An
// empty query returns every provider in config order.
func (r *Registry) Filter(query string) []Provider {
	if query == "" {
		return r.List()
	}

	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.DisplayName()
	}

	matches := fuzzy.Find(query, names)
	out := make([]Provider, 0, len(matches))
	for _, m := range matches {
		out = append(out, r.providers[m.Index])
	}
	return out
}
