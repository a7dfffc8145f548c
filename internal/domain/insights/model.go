package insights

import "time"

// Insight is a short narrative summary of the user's recent health data.
type Insight struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	// SourceModel marks summaries produced by the language model.
	SourceModel = "model"
	// SourceRules marks summaries from the deterministic fallback.
	SourceRules = "rules"
)
