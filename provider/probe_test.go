package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type mapCredentials map[string]string

func (m mapCredentials) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func TestNewProberKinds(t *testing.T) {
	creds := mapCredentials{
		APIKeyCredential("sales"):  "foundry-key",
		APIKeyCredential("claude"): "sk-ant",
	}

	tests := []struct {
		name      string
		p         Provider
		creds     CredentialSource
		wantErr   error
		expectErr bool
	}{
		{"copilot studio has no probe", Provider{ID: "p1", Settings: CopilotStudio{}}, creds, ErrNoProbe, true},
		{"foundry", Provider{ID: "sales", Settings: AzureFoundry{Endpoint: "https://x", APIVersion: "v"}}, creds, nil, false},
		{"foundry missing key", Provider{ID: "other", Settings: AzureFoundry{Endpoint: "https://x"}}, creds, ErrMissingAPIKey, true},
		{"anthropic", Provider{ID: "claude", Settings: Anthropic{BaseURL: DefaultAnthropicBaseURL}}, creds, nil, false},
		{"anthropic nil creds", Provider{ID: "claude", Settings: Anthropic{}}, nil, ErrMissingAPIKey, true},
		{"ollama", Provider{ID: "local", Settings: Ollama{Host: "http://localhost:11434"}}, nil, nil, false},
		{"ollama bad host", Provider{ID: "local", Settings: Ollama{Host: "localhost"}}, nil, nil, true},
		{"anon", Provider{ID: "anon", Settings: CopilotStudioAnon{TokenEndpoint: "https://x/token"}}, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, err := NewProber(tt.p, tt.creds)
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pr == nil {
				t.Error("nil prober")
			}
		})
	}
}

func TestTokenEndpointProber(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write([]byte(`{"token":"t"}`))
	}))
	defer srv.Close()

	pr, err := NewProber(Provider{ID: "anon", Settings: CopilotStudioAnon{TokenEndpoint: srv.URL}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := pr.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	status.Store(http.StatusForbidden)
	if err := pr.Ping(context.Background()); err == nil {
		t.Error("expected error for 403")
	}
}

func TestFoundryProberSendsKeyAndVersion(t *testing.T) {
	seen := make(chan *http.Request, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	p := Provider{ID: "sales", Settings: AzureFoundry{Endpoint: srv.URL, APIVersion: "2024-10-21"}}
	pr, err := NewProber(p, mapCredentials{APIKeyCredential("sales"): "foundry-key"})
	if err != nil {
		t.Fatal(err)
	}

	if err := pr.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	req := <-seen
	gotKey := req.Header.Get("api-key")
	gotVersion := req.URL.Query().Get("api-version")
	gotPath := req.URL.Path
	if gotKey != "foundry-key" {
		t.Errorf("api-key header = %q", gotKey)
	}
	if gotVersion != "2024-10-21" {
		t.Errorf("api-version = %q", gotVersion)
	}
	if gotPath != "/openai/models" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestAnthropicProber(t *testing.T) {
	keys := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("x-api-key")
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[],"has_more":false,"first_id":null,"last_id":null}`))
	}))
	defer srv.Close()

	p := Provider{ID: "claude", Settings: Anthropic{BaseURL: srv.URL}}
	pr, err := NewProber(p, mapCredentials{APIKeyCredential("claude"): "sk-ant"})
	if err != nil {
		t.Fatal(err)
	}

	if err := pr.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if gotKey := <-keys; gotKey != "sk-ant" {
		t.Errorf("x-api-key = %q", gotKey)
	}
}

func TestOllamaProberMissingModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"qwen3:latest"}]}`))
	}))
	defer srv.Close()

	ok, err := NewProber(Provider{ID: "local", Settings: Ollama{Host: srv.URL, Model: "qwen3"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ok.Ping(context.Background()); err != nil {
		t.Errorf("Ping() with pulled model error = %v", err)
	}

	missing, _ := NewProber(Provider{ID: "local", Settings: Ollama{Host: srv.URL, Model: "llama3.1"}}, nil)
	if err := missing.Ping(context.Background()); err == nil {
		t.Error("expected error for missing model")
	}
}
