package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func testProvider(t *testing.T, tokenURL string) *ProviderClient {
	t.Helper()
	return NewProviderClient(ProviderConfig{
		AuthorizeURL: "https://ehr.example.com/oauth2/authorize",
		TokenURL:     tokenURL,
		ClientID:     "client-123",
		RedirectURI:  "http://localhost:8000/v1/ehr/callback",
		Scopes:       "openid offline_access patient/Observation.read",
		FHIRBaseURL:  "https://ehr.example.com/api/FHIR/R4",
	})
}

func TestAuthorizeURL_Params(t *testing.T) {
	p := testProvider(t, "https://ehr.example.com/oauth2/token")

	raw := p.AuthorizeURL("state-abc", "challenge-xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("authorize URL does not parse: %v", err)
	}

	q := u.Query()
	want := map[string]string{
		"response_type":         "code",
		"client_id":             "client-123",
		"redirect_uri":          "http://localhost:8000/v1/ehr/callback",
		"scope":                 "openid offline_access patient/Observation.read",
		"state":                 "state-abc",
		"code_challenge":        "challenge-xyz",
		"code_challenge_method": "S256",
		"aud":                   "https://ehr.example.com/api/FHIR/R4",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("param %s: got %q, want %q", k, got, v)
		}
	}
}

func TestAuthorizeURL_OmitsAudWithoutFHIRBase(t *testing.T) {
	p := NewProviderClient(ProviderConfig{
		AuthorizeURL: "https://ehr.example.com/oauth2/authorize",
		ClientID:     "client-123",
	})
	u, _ := url.Parse(p.AuthorizeURL("s", "c"))
	if u.Query().Has("aud") {
		t.Error("aud must be omitted when no FHIR base URL is configured")
	}
}

func TestExchange_SendsVerifierNotChallenge(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at", ExpiresIn: 3600})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	tok, err := p.Exchange(context.Background(), "auth-code", "the-verifier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "at" {
		t.Errorf("access token: got %q", tok.AccessToken)
	}

	if form.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type: got %q", form.Get("grant_type"))
	}
	if form.Get("code") != "auth-code" {
		t.Errorf("code: got %q", form.Get("code"))
	}
	if form.Get("code_verifier") != "the-verifier" {
		t.Errorf("code_verifier: got %q", form.Get("code_verifier"))
	}
	if form.Has("code_challenge") {
		t.Error("exchange must send the verifier, never the challenge")
	}
	if form.Has("client_secret") {
		t.Error("client_secret must be omitted for public clients")
	}
}

func TestRefresh_Form(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		json.NewEncoder(w).Encode(TokenResponse{AccessToken: "new-at"})
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	if _, err := p.Refresh(context.Background(), "rt-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if form.Get("grant_type") != "refresh_token" {
		t.Errorf("grant_type: got %q", form.Get("grant_type"))
	}
	if form.Get("refresh_token") != "rt-1" {
		t.Errorf("refresh_token: got %q", form.Get("refresh_token"))
	}
}

func TestPostToken_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	p := testProvider(t, srv.URL)
	_, err := p.Exchange(context.Background(), "stale-code", "v")

	var upstream *UpstreamAuthError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamAuthError, got %v", err)
	}
	if upstream.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d", upstream.StatusCode)
	}
	if upstream.Body != `{"error":"invalid_grant"}` {
		t.Errorf("body not captured for operators: %q", upstream.Body)
	}
}

func TestComputeExpiry(t *testing.T) {
	p := testProvider(t, "https://ehr.example.com/oauth2/token")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	cases := []struct {
		name      string
		expiresIn int64
		want      time.Time
	}{
		{"explicit", 1800, fixed.Add(30 * time.Minute)},
		{"zero defaults to an hour", 0, fixed.Add(time.Hour)},
		{"negative defaults to an hour", -5, fixed.Add(time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.ComputeExpiry(tc.expiresIn); !got.Equal(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
