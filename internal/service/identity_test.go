package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeUserVersions struct {
	version uint32
	bumpErr error
}

func (f *fakeUserVersions) TokenVersion(context.Context, uint64) (uint32, error) {
	return f.version, nil
}

func (f *fakeUserVersions) BumpTokenVersion(context.Context, uint64) (uint32, error) {
	if f.bumpErr != nil {
		return 0, f.bumpErr
	}
	f.version++
	return f.version, nil
}

type fakeRevoker struct {
	revokedFor []uint64
}

func (f *fakeRevoker) RevokeAllForUser(_ context.Context, userID uint64) error {
	f.revokedFor = append(f.revokedFor, userID)
	return nil
}

func TestIdentityManagerRevokeSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("bumps the version and revokes refresh tokens", func(t *testing.T) {
		users := &fakeUserVersions{version: 3}
		tokens := &fakeRevoker{}
		m := NewIdentityManager(users, tokens, nil, nil)

		require.NoError(t, m.RevokeSessions(ctx, 7))
		require.Equal(t, uint32(4), users.version)
		require.Equal(t, []uint64{7}, tokens.revokedFor)

		v, err := m.CurrentTokenVersion(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, uint32(4), v)
	})

	t.Run("a failed bump leaves refresh tokens alone", func(t *testing.T) {
		users := &fakeUserVersions{version: 1, bumpErr: errors.New("db down")}
		tokens := &fakeRevoker{}
		m := NewIdentityManager(users, tokens, nil, nil)

		require.Error(t, m.RevokeSessions(ctx, 7))
		require.Empty(t, tokens.revokedFor)
		require.Equal(t, uint32(1), users.version)
	})
}
