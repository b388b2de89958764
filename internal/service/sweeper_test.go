package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hackathon-admission/internal/model"
)

func TestReclaimSweeper(t *testing.T) {
	t.Parallel()

	store := newMemStore(0, testUser(1))
	store.holds = append(store.holds, model.SpotReservation{
		ID: 1, UserID: 1, Ref: "stale", ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	svc, _ := newTestService(store)

	sweeper := NewReclaimSweeper(svc, 10*time.Millisecond, nil)
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.holds) == 0 && store.spots == 1
	}, 2*time.Second, 10*time.Millisecond, "expired reservation should be swept")
}

func TestReclaimSweeperStop(t *testing.T) {
	t.Parallel()

	store := newMemStore(0)
	svc, _ := newTestService(store)

	sweeper := NewReclaimSweeper(svc, 10*time.Millisecond, nil)
	sweeper.Start()

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
