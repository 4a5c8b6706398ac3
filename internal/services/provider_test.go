package services_test

import (
	"context"
	"testing"
	"time"

	"taskflow/backend/internal/services"
	"taskflow/backend/internal/session"
	"taskflow/backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newProvider(t *testing.T) (*services.AuthServiceImpl, services.TokenPair) {
	t.Helper()
	svc := services.NewAuthService(testutil.NewDB(t), testAuthConfig())
	_, pair, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)
	return svc, pair
}

func waitResolved(t *testing.T, store *session.Store) session.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := store.Wait(ctx)
	require.NoError(t, err)
	return snap
}

func TestWatch_ResolvesValidToken(t *testing.T) {
	svc, pair := newProvider(t)

	store := session.NewStore(svc, pair.AccessToken)
	defer store.Close()

	snap := waitResolved(t, store)
	assert.Equal(t, session.Authenticated, snap.State)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "ana@example.com", snap.Identity.Email)
}

func TestWatch_InvalidTokenResolvesUnauthenticated(t *testing.T) {
	svc, _ := newProvider(t)

	store := session.NewStore(svc, "not-a-jwt")
	defer store.Close()

	snap := waitResolved(t, store)
	assert.Equal(t, session.Unauthenticated, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Zero(t, svc.ActiveWatchers())
}

func TestWatch_SignOutNotifiesWatchers(t *testing.T) {
	svc, pair := newProvider(t)

	first := session.NewStore(svc, pair.AccessToken)
	defer first.Close()
	second := session.NewStore(svc, pair.AccessToken)
	defer second.Close()

	snap := waitResolved(t, first)
	require.Equal(t, session.Authenticated, snap.State)
	waitResolved(t, second)

	changed := make(chan session.Snapshot, 1)
	first.Observe(func(s session.Snapshot) { changed <- s })

	require.NoError(t, svc.SignOut(context.Background(), snap.Identity.SessionID))

	select {
	case s := <-changed:
		assert.Equal(t, session.Unauthenticated, s.State)
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out was not delivered")
	}
	assert.Equal(t, session.Unauthenticated, second.Snapshot().State)
	assert.Zero(t, svc.ActiveWatchers())
}

func TestWatch_CloseUnregisters(t *testing.T) {
	svc, pair := newProvider(t)

	store := session.NewStore(svc, pair.AccessToken)
	waitResolved(t, store)
	require.Equal(t, 1, svc.ActiveWatchers())

	store.Close()
	assert.Zero(t, svc.ActiveWatchers())
}

func TestWatch_SlowLookupOutlastsScreenWait(t *testing.T) {
	cfg := testAuthConfig()
	cfg.SessionResolveTimeout = 50 * time.Millisecond
	db := testutil.NewDB(t)
	svc := services.NewAuthService(db, cfg)
	_, pair, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)

	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:slow_lookup", func(*gorm.DB) {
		time.Sleep(100 * time.Millisecond)
	}))

	store := session.NewStore(svc, pair.AccessToken)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SessionResolveTimeout)
	defer cancel()
	_, err = store.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, session.Resolving, store.Snapshot().State)

	snap := waitResolved(t, store)
	assert.Equal(t, session.Authenticated, snap.State)
}
