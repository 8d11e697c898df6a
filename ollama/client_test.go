package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTagsServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"models":[{"name":"llama3.1:latest","size":4920753328}]}`))
		} else {
			w.Write([]byte(`{"error":"boom"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		expectError bool
	}{
		{"default host", "", false},
		{"custom host", "http://gpu-box:11434", false},
		{"missing scheme", "gpu-box", true},
		{"unparseable", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.baseURL)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.baseURL == "" && c.BaseURL() != DefaultHost {
				t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), DefaultHost)
			}
		})
	}
}

func TestPingAndModels(t *testing.T) {
	ctx := context.Background()
	srv := newTagsServer(t, http.StatusOK)

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 1 || models[0].Name != "llama3.1:latest" {
		t.Errorf("ListModels() = %+v", models)
	}

	for name, want := range map[string]bool{"llama3.1": true, "llama3.1:latest": true, "qwen3": false, "": true} {
		got, err := c.HasModel(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("HasModel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPingServerError(t *testing.T) {
	srv := newTagsServer(t, http.StatusInternalServerError)

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Error("expected ping error for 500 response")
	}
}
