package model

import "time"

// WaitlistEntry represents a user waiting for an admission spot when none
// was available at join time. Entries are served strictly FIFO by
// (JoinedAt, ID); a user has at most one active entry.
type WaitlistEntry struct {
	ID       uint64    // waitlist_entries.id
	UserID   uint64    // waitlist_entries.user_id (unique)
	JoinedAt time.Time // waitlist_entries.joined_at
}

// SpotReservation is a time-boxed claim on one admission spot. It is
// created either directly at join time when capacity exists, or when a
// confirmed user withdraws and the oldest waitlist entry is promoted.
// The reservation must be verified before ExpiresAt or the spot is
// reclaimed. Ref is an opaque reference returned to the client.
type SpotReservation struct {
	ID        uint64    // spot_reservations.id
	UserID    uint64    // spot_reservations.user_id (unique)
	Ref       string    // spot_reservations.ref
	ExpiresAt time.Time // spot_reservations.expires_at
	CreatedAt time.Time // spot_reservations.created_at
}

// Expired reports whether the reservation's deadline has passed at the
// given instant. Comparisons are done in UTC.
func (r SpotReservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now.UTC())
}
