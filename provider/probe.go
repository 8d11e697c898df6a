package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"agentbridge/config"
	"agentbridge/ollama"
)

// ErrNoProbe is returned by NewProber for kinds whose connectivity is
// established by signing in rather than by a health check.
var ErrNoProbe = errors.New("provider has no connectivity probe")

// ErrMissingAPIKey means the credential store holds no API key for the provider.
var ErrMissingAPIKey = errors.New("API key not found in credential store")

const probeTimeout = 10 * time.Second

// Prober checks that an auth-free provider is reachable with its configured
// settings and credentials.
type Prober interface {
	Ping(ctx context.Context) error
}

// CredentialSource is the read side of config.CredentialStore.
type CredentialSource interface {
	Get(key string) (string, bool, error)
}

// ProberFactory builds a Prober for a provider. NewProber bound to a
// credential store is the production implementation.
type ProberFactory func(Provider) (Prober, error)

// APIKeyCredential is the credential store key holding a provider's API key.
func APIKeyCredential(providerID string) string {
	return config.CredentialKey("agent", providerID, "apiKey")
}

// NewProberFactory binds NewProber to a credential source.
func NewProberFactory(creds CredentialSource) ProberFactory {
	return func(p Provider) (Prober, error) {
		return NewProber(p, creds)
	}
}

// NewProber returns the health check for p's kind.
//
// Supported kinds:
//   - azure-foundry: lists models through the OpenAI-compatible endpoint
//   - anthropic: lists models
//   - ollama: lists local models (5s timeout)
//   - copilot-studio-anon: fetches the token endpoint
//
// copilot-studio returns ErrNoProbe.
func NewProber(p Provider, creds CredentialSource) (Prober, error) {
	switch s := p.Settings.(type) {
	case AzureFoundry:
		key, err := apiKey(p.ID, creds)
		if err != nil {
			return nil, err
		}
		client := openai.NewClient(
			option.WithBaseURL(s.Endpoint+"/openai/"),
			option.WithHeader("api-key", key),
			option.WithQuery("api-version", s.APIVersion),
		)
		return &foundryProber{client: client}, nil

	case Anthropic:
		key, err := apiKey(p.ID, creds)
		if err != nil {
			return nil, err
		}
		client := anthropic.NewClient(
			anthropicoption.WithBaseURL(s.BaseURL),
			anthropicoption.WithAPIKey(key),
		)
		return &anthropicProber{client: client}, nil

	case Ollama:
		client, err := ollama.NewClient(s.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return &ollamaProber{client: client, model: s.Model}, nil

	case CopilotStudioAnon:
		return &tokenEndpointProber{url: s.TokenEndpoint, client: &http.Client{Timeout: probeTimeout}}, nil

	case CopilotStudio:
		return nil, ErrNoProbe

	default:
		return nil, fmt.Errorf("unknown provider type: %s", p.Type())
	}
}

func apiKey(providerID string, creds CredentialSource) (string, error) {
	if creds == nil {
		return "", ErrMissingAPIKey
	}
	key, ok, err := creds.Get(APIKeyCredential(providerID))
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	if !ok || key == "" {
		return "", fmt.Errorf("%w (%s)", ErrMissingAPIKey, APIKeyCredential(providerID))
	}
	return key, nil
}

type foundryProber struct {
	client openai.Client
}

func (p *foundryProber) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("Azure Foundry ping failed: %w", err)
	}
	return nil
}

type anthropicProber struct {
	client anthropic.Client
}

func (p *anthropicProber) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := p.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}

type ollamaProber struct {
	client *ollama.Client
	model  string
}

func (p *ollamaProber) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("Ollama ping failed: %w", err)
	}
	ok, err := p.client.HasModel(ctx, p.model)
	if err != nil {
		return fmt.Errorf("Ollama ping failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("model %s is not available on %s", p.model, p.client.BaseURL())
	}
	return nil
}

type tokenEndpointProber struct {
	url    string
	client *http.Client
}

func (p *tokenEndpointProber) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build token request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("token endpoint returned %s", resp.Status)
	}
	return nil
}
