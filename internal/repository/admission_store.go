package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/hackathon-admission/internal/model"
	"github.com/iliyamo/hackathon-admission/internal/service"
)

// AdmissionStore implements service.AdmissionStore on MySQL. Every RunTx
// call maps to one database transaction; the reads that feed writes
// (capacity row, queue head, a user's reservation) use SELECT ... FOR
// UPDATE so two concurrent transactions serialize on the rows they are
// about to change instead of both acting on the same observation.
type AdmissionStore struct{ DB *sql.DB }

func NewAdmissionStore(db *sql.DB) *AdmissionStore { return &AdmissionStore{DB: db} }

// EnsureCapacity seeds the singleton capacity row on first boot. The insert
// is a no-op when the row already exists, so restarting the service never
// resets capacity that has been partially allocated.
func (s *AdmissionStore) EnsureCapacity(ctx context.Context, spots int) error {
	if spots < 0 {
		spots = 0
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT IGNORE INTO event_capacity (id, spots_available) VALUES (1, ?)", spots)
	return err
}

// RunTx executes fn inside a database transaction, committing when it
// returns nil and rolling back otherwise.
func (s *AdmissionStore) RunTx(ctx context.Context, fn func(tx service.AdmissionTx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&admissionTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// admissionTx adapts a *sql.Tx to the service.AdmissionTx interface.
type admissionTx struct{ tx *sql.Tx }

func (t *admissionTx) SpotsAvailable(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		"SELECT spots_available FROM event_capacity WHERE id = 1 FOR UPDATE").Scan(&n)
	return n, err
}

func (t *admissionTx) SetSpotsAvailable(ctx context.Context, n int) error {
	if n < 0 {
		return errors.New("capacity counter must not go negative")
	}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE event_capacity SET spots_available = ? WHERE id = 1", n)
	return err
}

func (t *admissionTx) UserByID(ctx context.Context, userID uint64) (model.User, error) {
	var u model.User
	// Lock the user row so concurrent verify/withdraw calls for the same
	// user serialize on it.
	err := t.tx.QueryRowContext(ctx,
		"SELECT "+userCols+" FROM users WHERE id = ? FOR UPDATE",
		userID).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RSVPVerified, &u.TokenVersion, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (t *admissionTx) SetRSVPVerified(ctx context.Context, userID uint64, verified bool) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE users SET rsvp_verified = ? WHERE id = ?", verified, userID)
	return err
}

func (t *admissionTx) WaitlistEntryByUser(ctx context.Context, userID uint64) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := t.tx.QueryRowContext(ctx,
		"SELECT id, user_id, joined_at FROM waitlist_entries WHERE user_id = ? FOR UPDATE",
		userID).Scan(&e.ID, &e.UserID, &e.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *admissionTx) CreateWaitlistEntry(ctx context.Context, userID uint64, joinedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO waitlist_entries (user_id, joined_at) VALUES (?, ?)",
		userID, joinedAt.UTC())
	return err
}

// OldestWaitlistEntry returns the queue head under a row lock so two
// concurrent withdrawals cannot both promote the same entry. The id
// tie-break keeps ordering deterministic when two entries share a
// joined_at timestamp.
func (t *admissionTx) OldestWaitlistEntry(ctx context.Context) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, joined_at FROM waitlist_entries
		 ORDER BY joined_at ASC, id ASC LIMIT 1 FOR UPDATE`).Scan(&e.ID, &e.UserID, &e.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *admissionTx) DeleteWaitlistEntry(ctx context.Context, id uint64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM waitlist_entries WHERE id = ?", id)
	return err
}

// WaitlistPosition returns the 1-based position of an entry in FIFO order.
func (t *admissionTx) WaitlistPosition(ctx context.Context, e model.WaitlistEntry) (int, error) {
	var ahead int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waitlist_entries
		 WHERE joined_at < ? OR (joined_at = ? AND id < ?)`,
		e.JoinedAt.UTC(), e.JoinedAt.UTC(), e.ID).Scan(&ahead)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

func (t *admissionTx) ReservationByUser(ctx context.Context, userID uint64) (*model.SpotReservation, error) {
	var r model.SpotReservation
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, ref, expires_at, created_at FROM spot_reservations
		 WHERE user_id = ? FOR UPDATE`,
		userID).Scan(&r.ID, &r.UserID, &r.Ref, &r.ExpiresAt, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *admissionTx) CreateReservation(ctx context.Context, r *model.SpotReservation) error {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO spot_reservations (user_id, ref, expires_at) VALUES (?, ?, ?)",
		r.UserID, r.Ref, r.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return nil
}

func (t *admissionTx) DeleteReservation(ctx context.Context, id uint64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM spot_reservations WHERE id = ?", id)
	return err
}

func (t *admissionTx) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.SpotReservation, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, user_id, ref, expires_at, created_at FROM spot_reservations
		 WHERE expires_at <= ? ORDER BY expires_at ASC LIMIT ? FOR UPDATE`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SpotReservation
	for rows.Next() {
		var r model.SpotReservation
		if err := rows.Scan(&r.ID, &r.UserID, &r.Ref, &r.ExpiresAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
