package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/hackathon-admission/internal/model"
)

// TeamRepo provides data access to the teams and team_members tables.
// Membership-changing methods come in *Tx variants taking an existing
// transaction; the caller owns commit/rollback. Member counting locks the
// team row so concurrent joins cannot overshoot the size cap.
type TeamRepo struct{ DB *sql.DB }

func NewTeamRepo(db *sql.DB) *TeamRepo { return &TeamRepo{DB: db} }

// CreateTx inserts a team and its founding member in one transaction.
// Returns ErrAlreadyInTeam when the owner already belongs to a team.
func (r *TeamRepo) CreateTx(ctx context.Context, tx *sql.Tx, name string, ownerID uint64) (*model.Team, error) {
	if member, err := r.memberByUserTx(ctx, tx, ownerID); err != nil {
		return nil, err
	} else if member != nil {
		return nil, ErrAlreadyInTeam
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO teams (name, owner_id) VALUES (?, ?)", name, ownerID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	team := &model.Team{ID: uint64(id), Name: name, OwnerID: ownerID}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO team_members (team_id, user_id) VALUES (?, ?)", team.ID, ownerID); err != nil {
		return nil, err
	}
	if err := tx.QueryRowContext(ctx,
		"SELECT created_at FROM teams WHERE id = ?", team.ID).Scan(&team.CreatedAt); err != nil {
		return nil, err
	}
	return team, nil
}

// JoinTx adds a user to a team, enforcing the member cap under a row lock
// on the team. Returns sql.ErrNoRows when the team does not exist,
// ErrAlreadyInTeam when the user belongs to any team, and ErrTeamFull when
// the team is at capacity.
func (r *TeamRepo) JoinTx(ctx context.Context, tx *sql.Tx, teamID, userID uint64, maxSize int) error {
	var id uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM teams WHERE id = ? FOR UPDATE", teamID).Scan(&id); err != nil {
		return err
	}
	if member, err := r.memberByUserTx(ctx, tx, userID); err != nil {
		return err
	} else if member != nil {
		return ErrAlreadyInTeam
	}
	var count int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM team_members WHERE team_id = ?", teamID).Scan(&count); err != nil {
		return err
	}
	if maxSize > 0 && count >= maxSize {
		return ErrTeamFull
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO team_members (team_id, user_id) VALUES (?, ?)", teamID, userID)
	return err
}

// LeaveTx removes the user from their team. When the last member leaves,
// the team row is deleted as well. If the owner leaves a non-empty team,
// ownership passes to the longest-standing remaining member.
func (r *TeamRepo) LeaveTx(ctx context.Context, tx *sql.Tx, userID uint64) error {
	member, err := r.memberByUserTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrNotInTeam
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM team_members WHERE id = ?", member.ID); err != nil {
		return err
	}
	var remaining int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM team_members WHERE team_id = ?", member.TeamID).Scan(&remaining); err != nil {
		return err
	}
	if remaining == 0 {
		_, err := tx.ExecContext(ctx, "DELETE FROM teams WHERE id = ?", member.TeamID)
		return err
	}
	var ownerID uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT owner_id FROM teams WHERE id = ?", member.TeamID).Scan(&ownerID); err != nil {
		return err
	}
	if ownerID == userID {
		var nextOwner uint64
		if err := tx.QueryRowContext(ctx,
			`SELECT user_id FROM team_members WHERE team_id = ?
			 ORDER BY joined_at ASC, id ASC LIMIT 1`, member.TeamID).Scan(&nextOwner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE teams SET owner_id = ? WHERE id = ?", nextOwner, member.TeamID); err != nil {
			return err
		}
	}
	return nil
}

// TeamDetail is the response shape for team lookups: the team plus its
// member roster.
type TeamDetail struct {
	ID        uint64       `json:"id"`
	Name      string       `json:"name"`
	OwnerID   uint64       `json:"owner_id"`
	CreatedAt time.Time    `json:"created_at"`
	Members   []TeamRoster `json:"members"`
}

// TeamRoster is one member line in a TeamDetail.
type TeamRoster struct {
	UserID   uint64    `json:"user_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// GetByID returns a team and its roster. sql.ErrNoRows when absent.
func (r *TeamRepo) GetByID(ctx context.Context, teamID uint64) (*TeamDetail, error) {
	var det TeamDetail
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, owner_id, created_at FROM teams WHERE id = ?",
		teamID).Scan(&det.ID, &det.Name, &det.OwnerID, &det.CreatedAt)
	if err != nil {
		return nil, err
	}
	det.Members = []TeamRoster{}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT tm.user_id, u.name, tm.joined_at
		 FROM team_members tm
		 JOIN users u ON u.id = tm.user_id
		 WHERE tm.team_id = ?
		 ORDER BY tm.joined_at ASC, tm.id ASC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m TeamRoster
		if err := rows.Scan(&m.UserID, &m.Name, &m.JoinedAt); err != nil {
			return nil, err
		}
		det.Members = append(det.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &det, nil
}

// List returns all teams with their member counts, newest first.
func (r *TeamRepo) List(ctx context.Context) ([]TeamSummary, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT t.id, t.name, t.owner_id, t.created_at, COUNT(tm.id)
		 FROM teams t
		 LEFT JOIN team_members tm ON tm.team_id = t.id
		 GROUP BY t.id, t.name, t.owner_id, t.created_at
		 ORDER BY t.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]TeamSummary, 0)
	for rows.Next() {
		var s TeamSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.OwnerID, &s.CreatedAt, &s.MemberCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TeamSummary is one row of the team listing.
type TeamSummary struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     uint64    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	MemberCount int       `json:"member_count"`
}

// memberByUserTx returns the user's membership row, nil when they are not
// in any team.
func (r *TeamRepo) memberByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (*model.TeamMember, error) {
	var m model.TeamMember
	err := tx.QueryRowContext(ctx,
		"SELECT id, team_id, user_id, joined_at FROM team_members WHERE user_id = ? FOR UPDATE",
		userID).Scan(&m.ID, &m.TeamID, &m.UserID, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NormalizeTeamName trims and collapses inner whitespace for storage.
func NormalizeTeamName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
