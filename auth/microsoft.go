package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"agentbridge/config"
)

const deviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// maxTokenResponse bounds how much of a token response is read.
const maxTokenResponse = 1 << 20

// MicrosoftIdentity is the Microsoft Entra ID device-code client.
type MicrosoftIdentity struct {
	oauth  *oauth2.Config
	client *http.Client
	now    func() time.Time
}

var _ IdentityProvider = (*MicrosoftIdentity)(nil)

type MicrosoftOption func(*MicrosoftIdentity)

// WithHTTPClient sets the client used for both device and token requests.
func WithHTTPClient(c *http.Client) MicrosoftOption {
	return func(m *MicrosoftIdentity) { m.client = c }
}

// WithEndpoint overrides the Entra endpoints, mainly for tests.
func WithEndpoint(ep oauth2.Endpoint) MicrosoftOption {
	return func(m *MicrosoftIdentity) { m.oauth.Endpoint = ep }
}

// NewMicrosoftIdentity builds a device-code client for the tenant and
// public client application in cfg. Empty scopes fall back to the
// Power Platform defaults.
func NewMicrosoftIdentity(cfg config.IdentityConfig, opts ...MicrosoftOption) (*MicrosoftIdentity, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("identity client_id is required for device-code sign-in")
	}
	tenant := cfg.TenantID
	if tenant == "" {
		tenant = "organizations"
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = config.DefaultIdentityScopes()
	}

	m := &MicrosoftIdentity{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: endpoints.AzureAD(tenant),
			Scopes:   scopes,
		},
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RequestDeviceCode asks Entra ID for a device code and user code.
func (m *MicrosoftIdentity) RequestDeviceCode(ctx context.Context) (DeviceCode, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	resp, err := m.oauth.DeviceAuth(ctx)
	if err != nil {
		return DeviceCode{}, fmt.Errorf("failed to request device code: %w", err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Identity] Device code issued, verification at %s", resp.VerificationURI)
	}

	return DeviceCode{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURL: resp.VerificationURI,
		ExpiresAt:       resp.Expiry,
		Interval:        time.Duration(resp.Interval) * time.Second,
	}, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	IDToken          string `json:"id_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// PollToken performs exactly one device-code token request. Protocol
// answers map to an Outcome; transport failures and 5xx responses are
// returned as errors so the session can retry them.
func (m *MicrosoftIdentity) PollToken(ctx context.Context, deviceCode string) (PollResult, error) {
	form := url.Values{
		"grant_type":  {deviceCodeGrantType},
		"client_id":   {m.oauth.ClientID},
		"device_code": {deviceCode},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return PollResult{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return PollResult{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return PollResult{}, fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return PollResult{}, fmt.Errorf("failed to parse token response (%s): %w", resp.Status, err)
	}

	if tr.Error != "" {
		outcome := outcomeForError(tr.Error)
		if config.Debug && outcome != OutcomePending {
			config.DebugLog.Printf("[Identity] Token poll: %s (%s)", tr.Error, outcome)
		}
		return PollResult{Outcome: outcome}, nil
	}

	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		return PollResult{}, fmt.Errorf("token endpoint returned %s without an access token", resp.Status)
	}

	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if tr.IDToken != "" {
		token = token.WithExtra(map[string]any{"id_token": tr.IDToken})
	}

	return PollResult{
		Outcome:  OutcomeSuccess,
		Token:    token,
		Username: UsernameFromIDToken(tr.IDToken),
	}, nil
}

// outcomeForError maps RFC 8628 section 3.5 error codes. Anything
// unrecognised ends the flow as denied.
func outcomeForError(code string) Outcome {
	switch code {
	case "authorization_pending":
		return OutcomePending
	case "slow_down":
		return OutcomeSlowDown
	case "expired_token", "code_expired":
		return OutcomeExpired
	default:
		return OutcomeDenied
	}
}

// UsernameFromIDToken reads the signed-in account name from an id_token
// without verifying its signature. Returns "" when no name claim is present.
func UsernameFromIDToken(idToken string) string {
	if idToken == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		if config.Debug {
			config.DebugLog.Printf("[Identity] Could not parse id_token: %v", err)
		}
		return ""
	}

	for _, key := range []string{"preferred_username", "upn", "email", "name"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
