package model

import "time"

// Team groups confirmed attendees for the event. Only users with a
// verified RSVP may create or join teams; membership is capped by
// configuration (TEAM_MAX_SIZE).
type Team struct {
	ID        uint64    // teams.id
	Name      string    // teams.name
	OwnerID   uint64    // teams.owner_id
	CreatedAt time.Time // teams.created_at
}

// TeamMember links a user to a team. A user belongs to at most one team
// (user_id is unique across the table).
type TeamMember struct {
	ID       uint64    // team_members.id
	TeamID   uint64    // team_members.team_id
	UserID   uint64    // team_members.user_id (unique)
	JoinedAt time.Time // team_members.joined_at
}
