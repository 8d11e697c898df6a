package testutil

import (
	"context"
	"sync"

	"agentbridge/provider"
)

// MockProber implements provider.Prober for testing
type MockProber struct {
	// Configurable response
	PingFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls int
}

// NewMockProber creates a prober whose Ping returns err
func NewMockProber(err error) *MockProber {
	return &MockProber{
		PingFunc: func(ctx context.Context) error { return err },
	}
}

func (m *MockProber) Ping(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.PingFunc(ctx)
}

// Calls returns how many times Ping ran
func (m *MockProber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ProberFactory returns a provider.ProberFactory that hands out probers from
// the map by provider ID. Unknown IDs get provider.ErrNoProbe.
func ProberFactory(probers map[string]provider.Prober) provider.ProberFactory {
	return func(p provider.Provider) (provider.Prober, error) {
		if pr, ok := probers[p.ID]; ok {
			return pr, nil
		}
		return nil, provider.ErrNoProbe
	}
}

// MockCredentials implements provider.CredentialSource over a map
type MockCredentials map[string]string

func (m MockCredentials) Get(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}
