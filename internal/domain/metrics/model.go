package metrics

import "time"

// Metric is one self-reported or device-reported health measurement.
type Metric struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordInput is the client payload for recording a measurement. RecordedAt
// defaults to the server clock when omitted, which covers manual entry; a
// syncing device supplies its own timestamps.
type RecordInput struct {
	Kind       string     `json:"kind"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit"`
	RecordedAt *time.Time `json:"recorded_at"`
}
