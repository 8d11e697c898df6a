package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"

	"agentbridge/auth"
	"agentbridge/config"
)

func newTestIdentity(t *testing.T, handler http.HandlerFunc) *auth.MicrosoftIdentity {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	idp, err := auth.NewMicrosoftIdentity(
		config.IdentityConfig{TenantID: "contoso", ClientID: "client-123"},
		auth.WithEndpoint(oauth2.Endpoint{
			DeviceAuthURL: srv.URL + "/devicecode",
			TokenURL:      srv.URL + "/token",
		}),
		auth.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return idp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewMicrosoftIdentityRequiresClientID(t *testing.T) {
	if _, err := auth.NewMicrosoftIdentity(config.IdentityConfig{TenantID: "contoso"}); err == nil {
		t.Error("expected error without client_id")
	}
}

func TestRequestDeviceCode(t *testing.T) {
	gotClient := make(chan string, 1)
	idp := newTestIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/devicecode" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		gotClient <- r.PostForm.Get("client_id")
		writeJSON(w, http.StatusOK, map[string]any{
			"device_code":      "dev-abc",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       900,
			"interval":         5,
		})
	})

	before := time.Now()
	code, err := idp.RequestDeviceCode(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got := <-gotClient; got != "client-123" {
		t.Errorf("client_id = %q", got)
	}
	if code.DeviceCode != "dev-abc" || code.UserCode != "ABCD-EFGH" {
		t.Errorf("code = %+v", code)
	}
	if code.VerificationURL != "https://microsoft.com/devicelogin" {
		t.Errorf("VerificationURL = %q", code.VerificationURL)
	}
	if code.Interval != 5*time.Second {
		t.Errorf("Interval = %s", code.Interval)
	}
	if code.ExpiresAt.Before(before.Add(899 * time.Second)) {
		t.Errorf("ExpiresAt = %v, want about 15 minutes out", code.ExpiresAt)
	}
}

func TestRequestDeviceCodeServerError(t *testing.T) {
	idp := newTestIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := idp.RequestDeviceCode(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestPollTokenErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want auth.Outcome
	}{
		{"authorization_pending", auth.OutcomePending},
		{"slow_down", auth.OutcomeSlowDown},
		{"expired_token", auth.OutcomeExpired},
		{"code_expired", auth.OutcomeExpired},
		{"authorization_declined", auth.OutcomeDenied},
		{"access_denied", auth.OutcomeDenied},
		{"bad_verification_code", auth.OutcomeDenied},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			idp := newTestIdentity(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error":             tt.code,
					"error_description": "AADSTS70016: test",
				})
			})

			res, err := idp.PollToken(context.Background(), "dev-abc")
			if err != nil {
				t.Fatalf("PollToken() error = %v", err)
			}
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.want)
			}
			if res.Token != nil {
				t.Error("Token set on non-success outcome")
			}
		})
	}
}

func TestPollTokenTransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"service unavailable", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
		{"html error page", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("<html>proxy error</html>"))
		}},
		{"ok without token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"token_type": "Bearer"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := newTestIdentity(t, tt.handler)
			if _, err := idp.PollToken(context.Background(), "dev-abc"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPollTokenSuccess(t *testing.T) {
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"preferred_username": "alice@contoso.com",
		"name":               "Alice",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	form := make(chan map[string]string, 1)
	idp := newTestIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form <- map[string]string{
			"grant_type":  r.PostForm.Get("grant_type"),
			"device_code": r.PostForm.Get("device_code"),
			"client_id":   r.PostForm.Get("client_id"),
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"id_token":      idToken,
		})
	})

	res, err := idp.PollToken(context.Background(), "dev-abc")
	if err != nil {
		t.Fatal(err)
	}

	sent := <-form
	if sent["grant_type"] != "urn:ietf:params:oauth:grant-type:device_code" {
		t.Errorf("grant_type = %q", sent["grant_type"])
	}
	if sent["device_code"] != "dev-abc" || sent["client_id"] != "client-123" {
		t.Errorf("form = %v", sent)
	}

	if res.Outcome != auth.OutcomeSuccess {
		t.Fatalf("Outcome = %s", res.Outcome)
	}
	if res.Token.AccessToken != "at-1" || res.Token.RefreshToken != "rt-1" {
		t.Errorf("Token = %+v", res.Token)
	}
	if res.Token.Expiry.IsZero() {
		t.Error("Expiry not set")
	}
	if res.Token.Extra("id_token") != idToken {
		t.Error("id_token not kept on token")
	}
	if res.Username != "alice@contoso.com" {
		t.Errorf("Username = %q", res.Username)
	}
}

func TestPollTokenContextCanceled(t *testing.T) {
	idp := newTestIdentity(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "authorization_pending"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idp.PollToken(ctx, "dev-abc")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestUsernameFromIDToken(t *testing.T) {
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"empty", "", ""},
		{"garbage", "not.a.jwt", ""},
		{"preferred_username", sign(jwt.MapClaims{"preferred_username": "a@b.c", "upn": "x"}), "a@b.c"},
		{"upn fallback", sign(jwt.MapClaims{"upn": "u@b.c"}), "u@b.c"},
		{"email fallback", sign(jwt.MapClaims{"email": "e@b.c"}), "e@b.c"},
		{"name fallback", sign(jwt.MapClaims{"name": "Eve"}), "Eve"},
		{"no name claims", sign(jwt.MapClaims{"sub": "123"}), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := auth.UsernameFromIDToken(tt.token); got != tt.want {
				t.Errorf("UsernameFromIDToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
