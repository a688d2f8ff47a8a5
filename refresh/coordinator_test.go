package refresh_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/refresh"
)

// fakeBackend counts refresh calls and can hold them open on a gate so tests
// can pile callers onto one in-flight refresh.
type fakeBackend struct {
	calls    atomic.Int64
	gate     chan struct{}
	pair     credentials.TokenPair
	identity *credentials.Identity
	err      error
}

func (f *fakeBackend) Refresh(_ context.Context, _ string) (credentials.TokenPair, *credentials.Identity, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return credentials.TokenPair{}, nil, f.err
	}
	return f.pair, f.identity, nil
}

func seedStore(t *testing.T) *credentials.MemoryStore {
	t.Helper()

	store := credentials.NewMemoryStore()
	err := store.Set(context.Background(), credentials.Session{
		Identity: credentials.Identity{ID: "user-1", Username: "johndoe", Email: "john.doe@example.com"},
		Tokens:   credentials.TokenPair{AccessToken: "old-access", RefreshToken: "old-refresh"},
	})
	require.NoError(t, err)
	return store
}

func TestConcurrentCallersShareOneBackendCall(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{
		gate: make(chan struct{}),
		pair: credentials.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"},
	}
	coordinator, err := refresh.NewCoordinator(store, backend)
	require.NoError(t, err)

	const callers = 10
	results := make(chan credentials.TokenPair, callers)
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := coordinator.Refresh(context.Background())
			results <- pair
			errs <- err
		}()
	}

	// Give every caller a chance to join the in-flight refresh, then let the
	// single backend call complete.
	time.Sleep(50 * time.Millisecond)
	close(backend.gate)
	wg.Wait()
	close(results)
	close(errs)

	require.Equal(t, int64(1), backend.calls.Load(), "exactly one backend refresh call")
	for err := range errs {
		require.NoError(t, err)
	}
	for pair := range results {
		require.Equal(t, "new-access", pair.AccessToken)
		require.Equal(t, "new-refresh", pair.RefreshToken)
	}

	session, err := store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new-access", session.Tokens.AccessToken)
	require.Equal(t, "user-1", session.Identity.ID, "identity preserved")
}

func TestSequentialRefreshesMakeSeparateCalls(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{pair: credentials.TokenPair{AccessToken: "a2", RefreshToken: "r2"}}
	coordinator, err := refresh.NewCoordinator(store, backend)
	require.NoError(t, err)

	_, err = coordinator.Refresh(context.Background())
	require.NoError(t, err)
	_, err = coordinator.Refresh(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(2), backend.calls.Load())
}

func TestFailedRefreshClearsStoreAndExpiresSession(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{err: errors.New("refresh token rejected")}
	coordinator, err := refresh.NewCoordinator(store, backend)
	require.NoError(t, err)

	_, err = coordinator.Refresh(context.Background())
	require.ErrorIs(t, err, refresh.ErrSessionExpired)

	session, err := store.Get(context.Background())
	require.NoError(t, err)
	require.Nil(t, session, "store cleared after unrecoverable refresh failure")
}

func TestConcurrentCallersShareFailureOutcome(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{gate: make(chan struct{}), err: errors.New("rotated away")}
	coordinator, err := refresh.NewCoordinator(store, backend)
	require.NoError(t, err)

	const callers = 5
	errs := make(chan error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.Refresh(context.Background())
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.gate)
	wg.Wait()
	close(errs)

	require.Equal(t, int64(1), backend.calls.Load())
	for err := range errs {
		require.ErrorIs(t, err, refresh.ErrSessionExpired)
	}
}

func TestRefreshWithoutSessionExpiresImmediately(t *testing.T) {
	backend := &fakeBackend{}
	coordinator, err := refresh.NewCoordinator(credentials.NewMemoryStore(), backend)
	require.NoError(t, err)

	_, err = coordinator.Refresh(context.Background())
	require.ErrorIs(t, err, refresh.ErrSessionExpired)
	require.Zero(t, backend.calls.Load(), "no backend call without a refresh token")
}

func TestRefreshAdoptsServerReportedIdentity(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{
		pair:     credentials.TokenPair{AccessToken: "a2", RefreshToken: "r2"},
		identity: &credentials.Identity{ID: "user-1", Username: "john.renamed", Email: "john.doe@example.com"},
	}
	coordinator, err := refresh.NewCoordinator(store, backend)
	require.NoError(t, err)

	_, err = coordinator.Refresh(context.Background())
	require.NoError(t, err)

	session, err := store.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "john.renamed", session.Identity.Username)
}

func TestRefreshSurvivesCallerCancellation(t *testing.T) {
	store := seedStore(t)
	backend := &fakeBackend{
		gate: make(chan struct{}),
		pair: credentials.TokenPair{AccessToken: "a2", RefreshToken: "r2"},
	}
	coordinator, err := refresh.NewCoordinator(store, backend)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = coordinator.Refresh(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	close(backend.gate)
	<-done

	// The abandoned call still completes and its result is still applied.
	require.Eventually(t, func() bool {
		session, err := store.Get(context.Background())
		return err == nil && session != nil && session.Tokens.AccessToken == "a2"
	}, time.Second, 10*time.Millisecond)
}
