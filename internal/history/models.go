package history

import "time"

// Delivery outcomes.
const (
	OutcomeIgnored  = "ignored"  // payload did not match the target
	OutcomeDeployed = "deployed" // every command exited 0
	OutcomeFailed   = "failed"   // at least one command failed
)

// Delivery is one received push notification.
type Delivery struct {
	ID              int64      `json:"id"`
	DeliveryID      *string    `json:"delivery_id,omitempty"` // X-GitHub-Delivery
	Event           *string    `json:"event,omitempty"`       // X-GitHub-Event
	FullName        string     `json:"full_name"`
	Ref             string     `json:"ref"`
	Outcome         string     `json:"outcome"`
	ReceivedAt      time.Time  `json:"received_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	CommitHash      *string    `json:"commit_hash,omitempty"` // "after" from the payload
	HeadBefore      *string    `json:"head_before,omitempty"`
	HeadAfter       *string    `json:"head_after,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}
