package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hackathon-admission/internal/model"
	"github.com/iliyamo/hackathon-admission/internal/queue"
)

// memStore is an in-memory AdmissionStore. RunTx serializes callers on a
// mutex and restores a snapshot on error, mirroring the atomicity the SQL
// implementation gets from transactions.
type memStore struct {
	mu     sync.Mutex
	spots  int
	users  map[uint64]model.User
	wl     []model.WaitlistEntry
	holds  []model.SpotReservation
	nextID uint64
}

func newMemStore(spots int, users ...model.User) *memStore {
	s := &memStore{spots: spots, users: map[uint64]model.User{}, nextID: 1}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) RunTx(_ context.Context, fn func(tx AdmissionTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapSpots := s.spots
	snapUsers := make(map[uint64]model.User, len(s.users))
	for k, v := range s.users {
		snapUsers[k] = v
	}
	snapWL := append([]model.WaitlistEntry(nil), s.wl...)
	snapHolds := append([]model.SpotReservation(nil), s.holds...)
	if err := fn(&memTx{s: s}); err != nil {
		s.spots, s.users, s.wl, s.holds = snapSpots, snapUsers, snapWL, snapHolds
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t *memTx) SpotsAvailable(context.Context) (int, error) { return t.s.spots, nil }

func (t *memTx) SetSpotsAvailable(_ context.Context, n int) error {
	if n < 0 {
		return errors.New("capacity counter must not go negative")
	}
	t.s.spots = n
	return nil
}

func (t *memTx) UserByID(_ context.Context, userID uint64) (model.User, error) {
	u, ok := t.s.users[userID]
	if !ok {
		return model.User{}, errors.New("user not found")
	}
	return u, nil
}

func (t *memTx) SetRSVPVerified(_ context.Context, userID uint64, verified bool) error {
	u := t.s.users[userID]
	u.RSVPVerified = verified
	t.s.users[userID] = u
	return nil
}

func (t *memTx) WaitlistEntryByUser(_ context.Context, userID uint64) (*model.WaitlistEntry, error) {
	for _, e := range t.s.wl {
		if e.UserID == userID {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateWaitlistEntry(_ context.Context, userID uint64, joinedAt time.Time) error {
	t.s.wl = append(t.s.wl, model.WaitlistEntry{ID: t.s.nextID, UserID: userID, JoinedAt: joinedAt})
	t.s.nextID++
	return nil
}

func (t *memTx) OldestWaitlistEntry(context.Context) (*model.WaitlistEntry, error) {
	if len(t.s.wl) == 0 {
		return nil, nil
	}
	oldest := t.s.wl[0]
	for _, e := range t.s.wl[1:] {
		if e.JoinedAt.Before(oldest.JoinedAt) ||
			(e.JoinedAt.Equal(oldest.JoinedAt) && e.ID < oldest.ID) {
			oldest = e
		}
	}
	cp := oldest
	return &cp, nil
}

func (t *memTx) DeleteWaitlistEntry(_ context.Context, id uint64) error {
	for i, e := range t.s.wl {
		if e.ID == id {
			t.s.wl = append(t.s.wl[:i], t.s.wl[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) WaitlistPosition(_ context.Context, e model.WaitlistEntry) (int, error) {
	ahead := 0
	for _, o := range t.s.wl {
		if o.JoinedAt.Before(e.JoinedAt) || (o.JoinedAt.Equal(e.JoinedAt) && o.ID < e.ID) {
			ahead++
		}
	}
	return ahead + 1, nil
}

func (t *memTx) ReservationByUser(_ context.Context, userID uint64) (*model.SpotReservation, error) {
	for _, r := range t.s.holds {
		if r.UserID == userID {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateReservation(_ context.Context, r *model.SpotReservation) error {
	r.ID = t.s.nextID
	t.s.nextID++
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	t.s.holds = append(t.s.holds, *r)
	return nil
}

func (t *memTx) DeleteReservation(_ context.Context, id uint64) error {
	for i, r := range t.s.holds {
		if r.ID == id {
			t.s.holds = append(t.s.holds[:i], t.s.holds[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) ExpiredReservations(_ context.Context, now time.Time, limit int) ([]model.SpotReservation, error) {
	var out []model.SpotReservation
	for _, r := range t.s.holds {
		if !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeIdentity struct {
	mu      sync.Mutex
	revoked []uint64
	err     error
}

func (f *fakeIdentity) RevokeSessions(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, userID)
	return nil
}

func (f *fakeIdentity) revokedIDs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.revoked...)
}

type fakeNotifier struct{ ch chan queue.NotificationEvent }

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan queue.NotificationEvent, 16)}
}

func (f *fakeNotifier) Notify(_ context.Context, ev queue.NotificationEvent) error {
	f.ch <- ev
	return nil
}

func testUser(id uint64) model.User {
	return model.User{ID: id, Email: "u@example.com", Name: "U"}
}

// requireConserved checks that every spot is accounted for exactly once:
// unallocated counter, live reservation, or confirmed RSVP.
func requireConserved(t *testing.T, s *memStore, capacity int) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	confirmed := 0
	for _, u := range s.users {
		if u.RSVPVerified {
			confirmed++
		}
	}
	require.Equal(t, capacity, s.spots+len(s.holds)+confirmed,
		"spots=%d holds=%d confirmed=%d", s.spots, len(s.holds), confirmed)
}

func newTestService(s *memStore) (*AdmissionService, *fakeIdentity) {
	id := &fakeIdentity{}
	return NewAdmissionService(s, id, nil, time.Hour, nil), id
}

func TestJoinWaitlist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("reserves directly while capacity remains", func(t *testing.T) {
		store := newMemStore(2, testUser(1), testUser(2))
		svc, _ := newTestService(store)

		res, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, StateReserved, res.State)
		require.NotEmpty(t, res.SpotRef)
		require.NotNil(t, res.ExpiresAt)
		require.True(t, res.ExpiresAt.After(time.Now()))

		res, err = svc.JoinWaitlist(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, StateReserved, res.State)

		require.Equal(t, 0, store.spots)
		requireConserved(t, store, 2)
	})

	t.Run("queues in fifo order once full", func(t *testing.T) {
		store := newMemStore(1, testUser(1), testUser(2), testUser(3))
		svc, _ := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)

		res, err := svc.JoinWaitlist(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, StateWaitlisted, res.State)
		require.Equal(t, 1, res.Position)

		res, err = svc.JoinWaitlist(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, StateWaitlisted, res.State)
		require.Equal(t, 2, res.Position)
		requireConserved(t, store, 1)
	})

	t.Run("rejects a second join from any active state", func(t *testing.T) {
		store := newMemStore(1, testUser(1), testUser(2))
		svc, _ := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1) // reserved
		require.NoError(t, err)
		_, err = svc.JoinWaitlist(ctx, 1)
		require.ErrorIs(t, err, ErrAlreadyActive)

		_, err = svc.JoinWaitlist(ctx, 2) // waitlisted
		require.NoError(t, err)
		_, err = svc.JoinWaitlist(ctx, 2)
		require.ErrorIs(t, err, ErrAlreadyActive)

		_, err = svc.VerifyRSVP(ctx, 1) // confirmed
		require.NoError(t, err)
		_, err = svc.JoinWaitlist(ctx, 1)
		require.ErrorIs(t, err, ErrAlreadyActive)
	})

	t.Run("rejoining with an expired reservation is still rejected", func(t *testing.T) {
		store := newMemStore(0, testUser(1))
		store.holds = append(store.holds, model.SpotReservation{
			ID: 99, UserID: 1, Ref: "stale", ExpiresAt: time.Now().UTC().Add(-time.Minute),
		})
		svc, _ := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.ErrorIs(t, err, ErrAlreadyActive)
	})
}

func TestVerifyRSVP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("promotes a live reservation", func(t *testing.T) {
		store := newMemStore(1, testUser(1))
		svc, _ := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)

		res, err := svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)
		require.True(t, res.Verified)
		require.Equal(t, ReasonVerified, res.Reason)
		require.True(t, store.users[1].RSVPVerified)
		require.Empty(t, store.holds)
		requireConserved(t, store, 1)
	})

	t.Run("is idempotent once confirmed", func(t *testing.T) {
		store := newMemStore(1, testUser(1))
		svc, _ := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)
		_, err = svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)

		res, err := svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)
		require.True(t, res.Verified)
		require.Equal(t, ReasonAlreadyVerified, res.Reason)
		requireConserved(t, store, 1)
	})

	t.Run("fails without a reservation", func(t *testing.T) {
		store := newMemStore(1, testUser(1))
		svc, _ := newTestService(store)

		res, err := svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Equal(t, ReasonNoReservation, res.Reason)
	})

	t.Run("expired reservation promotes the next waitlisted user", func(t *testing.T) {
		store := newMemStore(0, testUser(1), testUser(2))
		store.holds = append(store.holds, model.SpotReservation{
			ID: 50, UserID: 1, Ref: "stale", ExpiresAt: time.Now().UTC().Add(-time.Minute),
		})
		store.wl = append(store.wl, model.WaitlistEntry{ID: 51, UserID: 2, JoinedAt: time.Now().UTC()})
		svc, _ := newTestService(store)

		res, err := svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Equal(t, ReasonExpired, res.Reason)

		require.Empty(t, store.wl)
		require.Len(t, store.holds, 1)
		require.Equal(t, uint64(2), store.holds[0].UserID)
		requireConserved(t, store, 1)

		// The expired holder restarts from scratch.
		st, err := svc.Status(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, StateNone, st.State)
	})

	t.Run("expired reservation with empty queue frees the counter", func(t *testing.T) {
		store := newMemStore(0, testUser(1))
		store.holds = append(store.holds, model.SpotReservation{
			ID: 60, UserID: 1, Ref: "stale", ExpiresAt: time.Now().UTC().Add(-time.Minute),
		})
		svc, _ := newTestService(store)

		res, err := svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Equal(t, ReasonExpired, res.Reason)
		require.Equal(t, 1, store.spots)
		require.Empty(t, store.holds)
	})
}

func TestWithdrawRSVP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires a confirmed rsvp", func(t *testing.T) {
		store := newMemStore(1, testUser(1), testUser(2))
		svc, _ := newTestService(store)

		require.ErrorIs(t, svc.WithdrawRSVP(ctx, 1), ErrNotConfirmed)

		_, err := svc.JoinWaitlist(ctx, 1) // reserved, not yet confirmed
		require.NoError(t, err)
		require.ErrorIs(t, svc.WithdrawRSVP(ctx, 1), ErrNotConfirmed)
	})

	t.Run("promotes the oldest waitlisted user", func(t *testing.T) {
		store := newMemStore(1, testUser(1), testUser(2), testUser(3))
		svc, identity := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)
		_, err = svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)
		_, err = svc.JoinWaitlist(ctx, 2)
		require.NoError(t, err)
		_, err = svc.JoinWaitlist(ctx, 3)
		require.NoError(t, err)

		require.NoError(t, svc.WithdrawRSVP(ctx, 1))

		require.False(t, store.users[1].RSVPVerified)
		require.Equal(t, []uint64{1}, identity.revokedIDs())

		// User 2 joined first, so they get the freed spot.
		st, err := svc.Status(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, StateReserved, st.State)

		st, err = svc.Status(ctx, 3)
		require.NoError(t, err)
		require.Equal(t, StateWaitlisted, st.State)
		require.Equal(t, 1, st.Position)
		requireConserved(t, store, 1)
	})

	t.Run("returns the spot when the queue is empty", func(t *testing.T) {
		store := newMemStore(1, testUser(1))
		svc, _ := newTestService(store)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)
		_, err = svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)

		require.NoError(t, svc.WithdrawRSVP(ctx, 1))
		require.Equal(t, 1, store.spots)
		requireConserved(t, store, 1)
	})

	t.Run("commits even when session revocation fails", func(t *testing.T) {
		store := newMemStore(1, testUser(1))
		identity := &fakeIdentity{err: errors.New("identity backend down")}
		svc := NewAdmissionService(store, identity, nil, time.Hour, nil)

		_, err := svc.JoinWaitlist(ctx, 1)
		require.NoError(t, err)
		_, err = svc.VerifyRSVP(ctx, 1)
		require.NoError(t, err)

		// Revocation failure is logged, not propagated; the withdrawal
		// itself already committed and the spot is back in the pool.
		require.NoError(t, svc.WithdrawRSVP(ctx, 1))
		require.False(t, store.users[1].RSVPVerified)
		require.Equal(t, 1, store.spots)
		requireConserved(t, store, 1)
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newMemStore(1, testUser(1), testUser(2))
	svc, _ := newTestService(store)

	st, err := svc.Status(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StateNone, st.State)

	_, err = svc.JoinWaitlist(ctx, 1)
	require.NoError(t, err)
	st, err = svc.Status(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StateReserved, st.State)
	require.NotEmpty(t, st.SpotRef)
	require.NotNil(t, st.ExpiresAt)

	_, err = svc.JoinWaitlist(ctx, 2)
	require.NoError(t, err)
	st, err = svc.Status(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, StateWaitlisted, st.State)
	require.Equal(t, 1, st.Position)

	_, err = svc.VerifyRSVP(ctx, 1)
	require.NoError(t, err)
	st, err = svc.Status(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, st.State)
}

func TestReclaimExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newMemStore(0, testUser(1), testUser(2), testUser(3), testUser(4))
	now := time.Now().UTC()
	store.holds = append(store.holds,
		model.SpotReservation{ID: 10, UserID: 1, Ref: "a", ExpiresAt: now.Add(-2 * time.Hour)},
		model.SpotReservation{ID: 11, UserID: 2, Ref: "b", ExpiresAt: now.Add(-time.Hour)},
		model.SpotReservation{ID: 12, UserID: 3, Ref: "c", ExpiresAt: now.Add(time.Hour)},
	)
	store.wl = append(store.wl, model.WaitlistEntry{ID: 13, UserID: 4, JoinedAt: now})
	svc, _ := newTestService(store)

	n, err := svc.ReclaimExpired(ctx, 50)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// One expired spot went to the sole waitlisted user, the other back to
	// the counter. The live reservation is untouched.
	require.Equal(t, 1, store.spots)
	require.Empty(t, store.wl)
	require.Len(t, store.holds, 2)
	requireConserved(t, store, 3)

	st, err := svc.Status(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, StateReserved, st.State)
}

func TestFullAdmissionCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newMemStore(1, testUser(1), testUser(2))
	svc, _ := newTestService(store)

	res, err := svc.JoinWaitlist(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StateReserved, res.State)

	res, err = svc.JoinWaitlist(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, StateWaitlisted, res.State)

	v, err := svc.VerifyRSVP(ctx, 1)
	require.NoError(t, err)
	require.True(t, v.Verified)
	requireConserved(t, store, 1)

	require.NoError(t, svc.WithdrawRSVP(ctx, 1))
	requireConserved(t, store, 1)

	v, err = svc.VerifyRSVP(ctx, 2)
	require.NoError(t, err)
	require.True(t, v.Verified)
	requireConserved(t, store, 1)

	st, err := svc.Status(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, StateConfirmed, st.State)
}

func TestNotificationsDispatched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newMemStore(1, testUser(1), testUser(2))
	notifier := newFakeNotifier()
	svc := NewAdmissionService(store, &fakeIdentity{}, notifier, time.Hour, nil)

	_, err := svc.JoinWaitlist(ctx, 1)
	require.NoError(t, err)

	select {
	case ev := <-notifier.ch:
		require.Equal(t, queue.KindSpotAvailable, ev.Kind)
		require.Equal(t, uint64(1), ev.UserID)
		require.NotEmpty(t, ev.SpotRef)
	case <-time.After(time.Second):
		t.Fatal("no notification for direct reservation")
	}

	_, err = svc.JoinWaitlist(ctx, 2)
	require.NoError(t, err)
	select {
	case ev := <-notifier.ch:
		require.Equal(t, queue.KindJoinedWaitlist, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no notification for waitlist join")
	}

	_, err = svc.VerifyRSVP(ctx, 1)
	require.NoError(t, err)
	select {
	case ev := <-notifier.ch:
		require.Equal(t, queue.KindRSVPConfirmed, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no notification for confirmation")
	}

	// Withdrawal promotes user 2 and notifies them of their new spot.
	require.NoError(t, svc.WithdrawRSVP(ctx, 1))
	select {
	case ev := <-notifier.ch:
		require.Equal(t, queue.KindSpotAvailable, ev.Kind)
		require.Equal(t, uint64(2), ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("no notification for promotion")
	}
}
