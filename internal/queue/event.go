// Package queue defines message payloads exchanged over the message broker
// and the background consumer that delivers them.
package queue

// Notification kinds published by the admission workflow. Delivery is
// best-effort: admission-state correctness never depends on it.
const (
	KindSpotAvailable  = "spot_available"  // a reservation was created for the user
	KindJoinedWaitlist = "joined_waitlist" // the user was appended to the waitlist
	KindRSVPConfirmed  = "rsvp_confirmed"  // the user verified their RSVP in time
)

// NotificationEvent is published to the rsvp.notifications queue whenever an
// admission transition should notify a user. It carries enough information
// for downstream consumers to render and deliver the message without
// querying the primary database.
type NotificationEvent struct {
	Kind       string `json:"kind"`
	UserID     uint64 `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	SpotRef    string `json:"spot_ref,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"` // RFC3339, set for spot_available
	OccurredAt string `json:"occurred_at"`          // RFC3339
}
