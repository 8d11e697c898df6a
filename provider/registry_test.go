package provider

import (
	"testing"

	"agentbridge/config"
)

func ollamaProvider(id, name string, isDefault bool) Provider {
	return Provider{ID: id, Name: name, AuthType: AuthNone, Settings: Ollama{Host: "http://localhost:11434"}, IsDefault: isDefault}
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name        string
		providers   []Provider
		expectError bool
	}{
		{"empty", nil, false},
		{"two providers", []Provider{ollamaProvider("a", "A", false), ollamaProvider("b", "B", true)}, false},
		{"duplicate id", []Provider{ollamaProvider("a", "A", false), ollamaProvider("a", "A2", false)}, true},
		{"two defaults", []Provider{ollamaProvider("a", "A", true), ollamaProvider("b", "B", true)}, true},
		{"missing settings", []Provider{{ID: "a"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.providers)
			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry([]Provider{
		ollamaProvider("a", "Alpha", false),
		ollamaProvider("b", "Beta", true),
	})
	if err != nil {
		t.Fatal(err)
	}

	if p, ok := reg.Get("b"); !ok || p.Name != "Beta" {
		t.Errorf("Get(b) = %+v, %v", p, ok)
	}
	if _, ok := reg.Get("zz"); ok {
		t.Error("Get(zz) found a provider")
	}

	list := reg.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() not in config order: %+v", list)
	}
	list[0].Name = "mutated"
	if p, _ := reg.Get("a"); p.Name != "Alpha" {
		t.Error("List() exposed internal state")
	}

	if p, ok := reg.Default(); !ok || p.ID != "b" {
		t.Errorf("Default() = %s, want b", p.ID)
	}
}

func TestRegistryDefaultFallback(t *testing.T) {
	reg, _ := NewRegistry([]Provider{ollamaProvider("a", "A", false), ollamaProvider("b", "B", false)})
	if p, ok := reg.Default(); !ok || p.ID != "a" {
		t.Errorf("Default() = %s, want first provider", p.ID)
	}

	empty, _ := NewRegistry(nil)
	if _, ok := empty.Default(); ok {
		t.Error("Default() on empty registry reported a provider")
	}
}

func TestRegistryFilter(t *testing.T) {
	reg, _ := NewRegistry([]Provider{
		ollamaProvider("hd", "Helpdesk Agent", false),
		ollamaProvider("sales", "Sales Assistant", false),
		ollamaProvider("hr", "HR Bot", false),
	})

	if got := reg.Filter(""); len(got) != 3 {
		t.Errorf("Filter(\"\") returned %d providers", len(got))
	}

	got := reg.Filter("sales")
	if len(got) != 1 || got[0].ID != "sales" {
		t.Errorf("Filter(sales) = %+v", got)
	}

	if got := reg.Filter("qqq"); len(got) != 0 {
		t.Errorf("Filter(qqq) = %+v, want none", got)
	}
}

func TestLoadRegistry(t *testing.T) {
	cfg := &config.Config{
		DefaultProvider: "local",
		Providers: []config.ProviderConfig{
			{ID: "claude", Name: "Claude", Type: "anthropic", IsDefault: true},
			{ID: "bad", Type: "watson"},
			{ID: "claude", Type: "anthropic"},
			{ID: "local", Name: "Local", Type: "ollama"},
		},
	}

	reg, errs := LoadRegistry(cfg)
	if len(errs) != 2 {
		t.Errorf("LoadRegistry() errors = %v, want 2", errs)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}

	p, ok := reg.Default()
	if !ok || p.ID != "local" {
		t.Errorf("Default() = %s, want default_provider local", p.ID)
	}
	if c, _ := reg.Get("claude"); c.IsDefault {
		t.Error("claude still marked default after default_provider override")
	}
}

func TestLoadRegistryUnknownDefault(t *testing.T) {
	cfg := &config.Config{
		DefaultProvider: "missing",
		Providers:       []config.ProviderConfig{{ID: "local", Type: "ollama"}},
	}

	reg, errs := LoadRegistry(cfg)
	if len(errs) != 1 {
		t.Errorf("errors = %v, want 1", errs)
	}
	if p, ok := reg.Default(); !ok || p.ID != "local" {
		t.Errorf("Default() = %s, want fallback to first", p.ID)
	}
}
