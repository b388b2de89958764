// Package service implements the admission workflow: the state machine that
// moves a user between the waitlist, a time-limited spot reservation and a
// confirmed RSVP, under transactional guarantees provided by the store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/hackathon-admission/internal/model"
	"github.com/iliyamo/hackathon-admission/internal/queue"
)

// AdmissionState names the mutually exclusive membership states of the
// admission state machine. A user is in exactly one of them at any time.
type AdmissionState string

const (
	StateNone       AdmissionState = "none"
	StateWaitlisted AdmissionState = "waitlisted"
	StateReserved   AdmissionState = "reserved"
	StateConfirmed  AdmissionState = "confirmed"
)

var (
	// ErrAlreadyActive is returned by JoinWaitlist when the user is already
	// waitlisted, holds a reservation or has a confirmed RSVP.
	ErrAlreadyActive = errors.New("already waitlisted, reserved or confirmed")
	// ErrNotConfirmed is returned by WithdrawRSVP when the caller has no
	// confirmed RSVP to withdraw.
	ErrNotConfirmed = errors.New("no confirmed rsvp to withdraw")
)

// Verification outcome reasons returned by VerifyRSVP.
const (
	ReasonVerified        = "verified"
	ReasonAlreadyVerified = "already verified"
	ReasonNoReservation   = "no reservation"
	ReasonExpired         = "reservation expired"
)

// AdmissionTx is the set of reads and conditional writes available inside a
// single atomic transaction against the backing store. Reads that feed a
// subsequent write (capacity, queue head, the user's reservation) must lock
// the rows they return so two concurrent transactions cannot both act on
// the same observation.
//
// Lookup methods return (nil, nil) when no matching row exists.
type AdmissionTx interface {
	SpotsAvailable(ctx context.Context) (int, error)
	SetSpotsAvailable(ctx context.Context, n int) error

	UserByID(ctx context.Context, userID uint64) (model.User, error)
	SetRSVPVerified(ctx context.Context, userID uint64, verified bool) error

	WaitlistEntryByUser(ctx context.Context, userID uint64) (*model.WaitlistEntry, error)
	CreateWaitlistEntry(ctx context.Context, userID uint64, joinedAt time.Time) error
	OldestWaitlistEntry(ctx context.Context) (*model.WaitlistEntry, error)
	DeleteWaitlistEntry(ctx context.Context, id uint64) error
	WaitlistPosition(ctx context.Context, e model.WaitlistEntry) (int, error)

	ReservationByUser(ctx context.Context, userID uint64) (*model.SpotReservation, error)
	CreateReservation(ctx context.Context, r *model.SpotReservation) error
	DeleteReservation(ctx context.Context, id uint64) error
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]model.SpotReservation, error)
}

// AdmissionStore runs a function inside an atomic transaction. If fn
// returns an error the transaction is rolled back and the error returned;
// otherwise it is committed. Partial state is never visible to other
// transactions.
type AdmissionStore interface {
	RunTx(ctx context.Context, fn func(tx AdmissionTx) error) error
}

// Identity revokes a user's sessions so a withdrawn RSVP cannot linger in
// tokens already handed to clients.
type Identity interface {
	RevokeSessions(ctx context.Context, userID uint64) error
}

// Notifier dispatches a notification event. Implementations must be safe
// for concurrent use; failures are the implementation's to log, never the
// admission workflow's to propagate.
type Notifier interface {
	Notify(ctx context.Context, ev queue.NotificationEvent) error
}

// AdmissionService orchestrates joinWaitlist, verifyRSVP and withdrawRSVP.
// It holds no mutable state of its own; all shared state lives behind the
// store so concurrent invocations coordinate purely through transactions.
type AdmissionService struct {
	store    AdmissionStore
	identity Identity
	notifier Notifier
	spotTTL  time.Duration
	log      *slog.Logger
}

// NewAdmissionService wires an AdmissionService. notifier may be nil, in
// which case transitions happen silently. spotTTL <= 0 defaults to 24h.
func NewAdmissionService(store AdmissionStore, identity Identity, notifier Notifier, spotTTL time.Duration, log *slog.Logger) *AdmissionService {
	if store == nil || identity == nil {
		panic("nil store or identity passed to NewAdmissionService")
	}
	if spotTTL <= 0 {
		spotTTL = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdmissionService{store: store, identity: identity, notifier: notifier, spotTTL: spotTTL, log: log}
}

// JoinResult describes the outcome of JoinWaitlist: either a reservation
// was created directly (StateReserved) or the user was queued
// (StateWaitlisted, with their 1-based position).
type JoinResult struct {
	State     AdmissionState `json:"state"`
	SpotRef   string         `json:"spot_ref,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Position  int            `json:"position,omitempty"`
}

// VerifyResult describes the outcome of VerifyRSVP.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

// StatusResult describes a user's current admission state.
type StatusResult struct {
	State     AdmissionState `json:"state"`
	SpotRef   string         `json:"spot_ref,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Position  int            `json:"position,omitempty"`
}

// JoinWaitlist admits the user to the admission workflow. When unallocated
// capacity exists the counter is decremented and a spot reservation created
// directly, skipping the queue; otherwise a waitlist entry is appended.
// Users that are already waitlisted, reserved or confirmed get
// ErrAlreadyActive. A notification is dispatched best-effort after commit.
func (s *AdmissionService) JoinWaitlist(ctx context.Context, userID uint64) (JoinResult, error) {
	var (
		res JoinResult
		ev  queue.NotificationEvent
	)
	err := s.store.RunTx(ctx, func(tx AdmissionTx) error {
		user, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.RSVPVerified {
			return ErrAlreadyActive
		}
		// A reservation blocks re-joining even when expired: the stale
		// reservation is reclaimed by VerifyRSVP or the sweep, after which
		// the user restarts from NONE.
		if hold, err := tx.ReservationByUser(ctx, userID); err != nil {
			return err
		} else if hold != nil {
			return ErrAlreadyActive
		}
		if entry, err := tx.WaitlistEntryByUser(ctx, userID); err != nil {
			return err
		} else if entry != nil {
			return ErrAlreadyActive
		}

		now := time.Now().UTC()
		spots, err := tx.SpotsAvailable(ctx)
		if err != nil {
			return err
		}
		if spots > 0 {
			hold := &model.SpotReservation{
				UserID:    userID,
				Ref:       uuid.NewString(),
				ExpiresAt: now.Add(s.spotTTL),
			}
			if err := tx.SetSpotsAvailable(ctx, spots-1); err != nil {
				return err
			}
			if err := tx.CreateReservation(ctx, hold); err != nil {
				return err
			}
			expires := hold.ExpiresAt
			res = JoinResult{State: StateReserved, SpotRef: hold.Ref, ExpiresAt: &expires}
			ev = queue.NotificationEvent{
				Kind:      queue.KindSpotAvailable,
				UserID:    user.ID,
				Email:     user.Email,
				Name:      user.Name,
				SpotRef:   hold.Ref,
				ExpiresAt: hold.ExpiresAt.Format(time.RFC3339),
			}
			return nil
		}
		if err := tx.CreateWaitlistEntry(ctx, userID, now); err != nil {
			return err
		}
		entry, err := tx.WaitlistEntryByUser(ctx, userID)
		if err != nil {
			return err
		}
		pos := 0
		if entry != nil {
			if pos, err = tx.WaitlistPosition(ctx, *entry); err != nil {
				return err
			}
		}
		res = JoinResult{State: StateWaitlisted, Position: pos}
		ev = queue.NotificationEvent{
			Kind:   queue.KindJoinedWaitlist,
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
		}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	s.dispatch(ev)
	return res, nil
}

// VerifyRSVP promotes a live reservation to a confirmed RSVP. Calling it
// when already confirmed is idempotent and returns success without
// mutation. An expired reservation is deleted and its spot reclaimed (the
// next waitlisted user is promoted, or the counter incremented); the caller
// must rejoin from scratch.
func (s *AdmissionService) VerifyRSVP(ctx context.Context, userID uint64) (VerifyResult, error) {
	var (
		res    VerifyResult
		events []queue.NotificationEvent
	)
	err := s.store.RunTx(ctx, func(tx AdmissionTx) error {
		events = events[:0]
		user, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.RSVPVerified {
			res = VerifyResult{Verified: true, Reason: ReasonAlreadyVerified}
			return nil
		}
		hold, err := tx.ReservationByUser(ctx, userID)
		if err != nil {
			return err
		}
		if hold == nil {
			res = VerifyResult{Verified: false, Reason: ReasonNoReservation}
			return nil
		}
		if err := tx.DeleteReservation(ctx, hold.ID); err != nil {
			return err
		}
		// A reserved user should never also be queued, but the entry is
		// cleared here so a historical race cannot violate exclusivity.
		if entry, err := tx.WaitlistEntryByUser(ctx, userID); err != nil {
			return err
		} else if entry != nil {
			if err := tx.DeleteWaitlistEntry(ctx, entry.ID); err != nil {
				return err
			}
		}
		if hold.Expired(time.Now()) {
			ev, err := s.reclaimSpotTx(ctx, tx)
			if err != nil {
				return err
			}
			if ev != nil {
				events = append(events, *ev)
			}
			res = VerifyResult{Verified: false, Reason: ReasonExpired}
			return nil
		}
		if err := tx.SetRSVPVerified(ctx, userID, true); err != nil {
			return err
		}
		res = VerifyResult{Verified: true, Reason: ReasonVerified}
		events = append(events, queue.NotificationEvent{
			Kind:    queue.KindRSVPConfirmed,
			UserID:  user.ID,
			Email:   user.Email,
			Name:    user.Name,
			SpotRef: hold.Ref,
		})
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}
	for _, ev := range events {
		s.dispatch(ev)
	}
	return res, nil
}

// WithdrawRSVP reverts a confirmed RSVP. The freed spot goes to the oldest
// waitlisted user as a fresh reservation, or back to the capacity counter
// when the queue is empty. The withdrawing user's sessions are revoked
// after commit so stale verified claims cannot linger client-side.
// Callers that are not currently confirmed get ErrNotConfirmed.
func (s *AdmissionService) WithdrawRSVP(ctx context.Context, userID uint64) error {
	var promoted *queue.NotificationEvent
	err := s.store.RunTx(ctx, func(tx AdmissionTx) error {
		promoted = nil
		user, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if !user.RSVPVerified {
			return ErrNotConfirmed
		}
		if err := tx.SetRSVPVerified(ctx, userID, false); err != nil {
			return err
		}
		if promoted, err = s.reclaimSpotTx(ctx, tx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.identity.RevokeSessions(ctx, userID); err != nil {
		// Withdrawal already committed. Outstanding tokens then live until
		// their natural expiry, but they grant nothing: RSVP-gated routes
		// re-read rsvp_verified from the database, which is already false.
		// Log and carry on.
		s.log.Error("revoke sessions after withdrawal failed", "user_id", userID, "error", err)
	}
	if promoted != nil {
		s.dispatch(*promoted)
	}
	return nil
}

// Status reports the user's current admission state without mutating it.
func (s *AdmissionService) Status(ctx context.Context, userID uint64) (StatusResult, error) {
	var res StatusResult
	err := s.store.RunTx(ctx, func(tx AdmissionTx) error {
		user, err := tx.UserByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.RSVPVerified {
			res = StatusResult{State: StateConfirmed}
			return nil
		}
		if hold, err := tx.ReservationByUser(ctx, userID); err != nil {
			return err
		} else if hold != nil {
			expires := hold.ExpiresAt
			res = StatusResult{State: StateReserved, SpotRef: hold.Ref, ExpiresAt: &expires}
			return nil
		}
		if entry, err := tx.WaitlistEntryByUser(ctx, userID); err != nil {
			return err
		} else if entry != nil {
			pos, err := tx.WaitlistPosition(ctx, *entry)
			if err != nil {
				return err
			}
			res = StatusResult{State: StateWaitlisted, Position: pos}
			return nil
		}
		res = StatusResult{State: StateNone}
		return nil
	})
	if err != nil {
		return StatusResult{}, err
	}
	return res, nil
}

// ReclaimExpired deletes up to limit expired reservations and returns their
// spots to the waitlist head or the capacity counter. It is invoked by the
// periodic sweep; lazy reclamation in VerifyRSVP remains authoritative for
// correctness, the sweep just stops expired spots sitting idle until
// touched. Returns the number of reservations reclaimed.
func (s *AdmissionService) ReclaimExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		reclaimed int
		events    []queue.NotificationEvent
	)
	err := s.store.RunTx(ctx, func(tx AdmissionTx) error {
		reclaimed = 0
		events = events[:0]
		expired, err := tx.ExpiredReservations(ctx, time.Now().UTC(), limit)
		if err != nil {
			return err
		}
		for _, hold := range expired {
			if err := tx.DeleteReservation(ctx, hold.ID); err != nil {
				return err
			}
			ev, err := s.reclaimSpotTx(ctx, tx)
			if err != nil {
				return err
			}
			if ev != nil {
				events = append(events, *ev)
			}
			reclaimed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		s.dispatch(ev)
	}
	return reclaimed, nil
}

// reclaimSpotTx hands one freed spot to the oldest waitlisted user as a new
// reservation, or returns it to the capacity counter when the queue is
// empty. Runs inside the caller's transaction. Returns the notification to
// dispatch for a promoted user, or nil.
func (s *AdmissionService) reclaimSpotTx(ctx context.Context, tx AdmissionTx) (*queue.NotificationEvent, error) {
	oldest, err := tx.OldestWaitlistEntry(ctx)
	if err != nil {
		return nil, err
	}
	if oldest == nil {
		spots, err := tx.SpotsAvailable(ctx)
		if err != nil {
			return nil, err
		}
		return nil, tx.SetSpotsAvailable(ctx, spots+1)
	}
	if err := tx.DeleteWaitlistEntry(ctx, oldest.ID); err != nil {
		return nil, err
	}
	hold := &model.SpotReservation{
		UserID:    oldest.UserID,
		Ref:       uuid.NewString(),
		ExpiresAt: time.Now().UTC().Add(s.spotTTL),
	}
	if err := tx.CreateReservation(ctx, hold); err != nil {
		return nil, err
	}
	next, err := tx.UserByID(ctx, oldest.UserID)
	if err != nil {
		return nil, err
	}
	return &queue.NotificationEvent{
		Kind:      queue.KindSpotAvailable,
		UserID:    next.ID,
		Email:     next.Email,
		Name:      next.Name,
		SpotRef:   hold.Ref,
		ExpiresAt: hold.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// dispatch hands a notification to the notifier without letting delivery
// failures reach the caller. Runs detached from the request context so a
// client disconnect cannot cancel a notification for a committed
// transition.
func (s *AdmissionService) dispatch(ev queue.NotificationEvent) {
	if s.notifier == nil || ev.Kind == "" {
		return
	}
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.log.Error("notification dispatch failed", "kind", ev.Kind, "user_id", ev.UserID, "error", err)
		}
	}()
}
