package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-labs/sercha-marks/internal/core/domain"
)

func testConfig(serverURL string) *domain.OAuthConfig {
	return &domain.OAuthConfig{
		AuthURL:      serverURL + "/authorize",
		TokenURL:     serverURL + "/token",
		RevokeURL:    serverURL + "/revoke",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://127.0.0.1:8976/callback",
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		want := map[string]string{
			"grant_type":    "authorization_code",
			"code":          "auth-code",
			"code_verifier": "verifier",
			"client_id":     "client-id",
			"client_secret": "client-secret",
			"redirect_uri":  "http://127.0.0.1:8976/callback",
		}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("form %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gho_abc","refresh_token":"ghr_def","token_type":"bearer","expires_in":28800,"scope":"repo"}`))
	}))
	defer server.Close()

	token, err := NewClient(nil).ExchangeCode(context.Background(), testConfig(server.URL), "auth-code", "verifier")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if token.AccessToken != "gho_abc" || token.RefreshToken != "ghr_def" || token.ExpiresIn != 28800 {
		t.Errorf("unexpected token: %+v", token)
	}
}

func TestClient_ErrorInOKBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`))
	}))
	defer server.Close()

	_, err := NewClient(nil).ExchangeCode(context.Background(), testConfig(server.URL), "stale", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		t.Error("an oauth error body is not a network failure")
	}
}

func TestClient_RefreshToken_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "refresh" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewClient(nil).RefreshToken(context.Background(), testConfig(server.URL), "refresh")
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if netErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", netErr.StatusCode)
	}
}

func TestClient_RevokeToken(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("expected basic auth with client credentials")
		}
		r.ParseForm()
		if r.PostForm.Get("token") != "access" {
			t.Errorf("unexpected token %q", r.PostForm.Get("token"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewClient(nil).RevokeToken(context.Background(), testConfig(server.URL), "access"); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	if !called {
		t.Error("revoke endpoint not called")
	}

	cfg := testConfig(server.URL)
	cfg.RevokeURL = ""
	called = false
	if err := NewClient(nil).RevokeToken(context.Background(), cfg, "access"); err != nil {
		t.Fatalf("RevokeToken without URL failed: %v", err)
	}
	if called {
		t.Error("no request expected without a revoke URL")
	}
}
