package ehr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means required provider configuration (client id or
	// FHIR base URL) is absent. Surfaced as service-unavailable.
	ErrNotConfigured = errors.New("ehr provider not configured")

	// ErrInvalidCallback means the authorization redirect was missing its
	// code or state parameter.
	ErrInvalidCallback = errors.New("malformed authorization callback")

	// ErrSessionExpired means the callback's state does not match any
	// pending authorization; the user must restart the flow.
	ErrSessionExpired = errors.New("authorization session unknown or expired")

	// ErrNotConnected means the user has no EHR connection record.
	ErrNotConnected = errors.New("no ehr connection")

	// ErrPatientNotFound means no patient could be resolved for the
	// connection's access token.
	ErrPatientNotFound = errors.New("patient not found")
)

// AuthorizationDeniedError is returned when the provider reports a denial on
// the authorization redirect (e.g. the user declined consent).
type AuthorizationDeniedError struct {
	Reason string
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("authorization denied by provider: %s", e.Reason)
}

// UpstreamAuthError is returned when the provider's token endpoint rejects an
// exchange or refresh. Body is for operator logs only and must never be
// relayed to end users verbatim.
type UpstreamAuthError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
}

// UpstreamFetchError is returned when a FHIR query fails with a non-success
// status. Same body handling rules as UpstreamAuthError.
type UpstreamFetchError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fhir endpoint returned status %d", e.StatusCode)
}
