package account

import "time"

// User is the companion's own record of a principal. Identity lives at the
// upstream provider; this row holds app-level profile data and is created
// lazily the first time an authenticated user touches the API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateInput is the editable slice of a profile.
type UpdateInput struct {
	Name     *string `json:"name"`
	Timezone *string `json:"timezone"`
}
