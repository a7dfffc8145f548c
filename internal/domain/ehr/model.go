package ehr

import "time"

// Connection is a user's live link to the EHR provider. There is at most one
// per user; token refreshes and re-authorizations mutate it in place.
type Connection struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	PatientID    string    `json:"patient_id,omitempty"`
	FHIRBaseURL  string    `json:"fhir_base_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PendingAuthorization binds an in-flight authorization redirect to the user
// and PKCE verifier that initiated it, keyed by the anti-CSRF state token.
// Entries are one-shot: consumed on callback, swept after retention expires.
type PendingAuthorization struct {
	State        string
	UserID       string
	CodeVerifier string
	CreatedAt    time.Time
}

// TokenResponse is the provider's raw token endpoint payload for both the
// authorization_code and refresh_token grants. Fields the provider omits are
// left at their zero values; an ExpiresIn of zero means "unspecified".
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	Patient      string `json:"patient"`
}

// VitalRecord is a normalized vital-sign observation for display. Value is
// rendered as text because magnitude and units vary by observation type.
// Records are produced fresh on every fetch and never persisted.
type VitalRecord struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Unit       *string `json:"unit"`
	RecordedAt *string `json:"recorded_at"`
}

// ConnectionStatus is the externally visible summary of a connection. The
// bearer credentials themselves are never exposed.
type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	PatientID   string     `json:"patient_id,omitempty"`
	FHIRBaseURL string     `json:"fhir_base_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
