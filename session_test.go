package parseredux

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStorage wraps MemStorage and counts reads, so tests can
// assert which paths touch storage.
type countingStorage struct {
	*MemStorage
	gets atomic.Int64
}

func (cs *countingStorage) Get(ctx context.Context, key string) ([]byte, error) {
	cs.gets.Add(1)
	return cs.MemStorage.Get(ctx, key)
}

// asyncStorage pretends its I/O is scheduled elsewhere.
type asyncStorage struct {
	*MemStorage
}

func (as *asyncStorage) Sync() bool { return false }

type fakeTransport struct {
	requests chan map[string]any
}

func (ft *fakeTransport) Request(ctx context.Context, method, path string, body map[string]any) (map[string]any, error) {
	ft.requests <- map[string]any{"method": method, "path": path, "body": body}
	return map[string]any{}, nil
}

func testUser(id, token string) *CurrentUser {
	return &CurrentUser{
		Identity: Identity{Type: "_User", ID: id},
		Attrs:    map[string]any{"objectId": id, "sessionToken": token, "username": "fred"},
	}
}

func TestSetCurrentUserReadYourWrites(t *testing.T) {
	storage := &countingStorage{MemStorage: NewMemStorage()}
	st, err := Open(Options{Storage: storage})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SetCurrentUser(ctx, testUser("u1", "plain-token")))

	u, err := st.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.Identity.ID)
	assert.Equal(t, int64(0), storage.gets.Load())

	// The owner's attributes read like any object's.
	assert.Equal(t, "fred", st.GetServerData(u.Identity)["username"])
}

func TestCurrentUserLoadsFromStorageOnce(t *testing.T) {
	storage := &countingStorage{MemStorage: NewMemStorage()}
	st, err := Open(Options{Storage: storage})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SetCurrentUser(ctx, testUser("u1", "tok")))

	// A second store sharing the backend loads from storage, then
	// answers from memory.
	st2, err := Open(Options{Storage: storage})
	require.NoError(t, err)
	before := storage.gets.Load()

	u, err := st2.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.Identity.ID)
	assert.Equal(t, before+1, storage.gets.Load())

	_, err = st2.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, storage.gets.Load())
}

func TestLogoutIsAuthoritativelyAbsent(t *testing.T) {
	storage := &countingStorage{MemStorage: NewMemStorage()}
	st, err := Open(Options{Storage: storage})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SetCurrentUser(ctx, testUser("u1", "tok")))
	require.NoError(t, st.Logout(ctx))

	before := storage.gets.Load()
	u, err := st.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)
	// Absent is answered from memory, no storage read.
	assert.Equal(t, before, storage.gets.Load())

	_, err = storage.Get(ctx, st.currentUserKey())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogoutRevokesRevocableSession(t *testing.T) {
	transport := &fakeTransport{requests: make(chan map[string]any, 1)}
	st, err := Open(Options{Transport: transport})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SetCurrentUser(ctx, testUser("u1", "r:abc")))
	require.NoError(t, st.Logout(ctx))

	select {
	case req := <-transport.requests:
		assert.Equal(t, "POST", req["method"])
		assert.Equal(t, "/logout", req["path"])
	case <-time.After(time.Second):
		t.Fatal("no revocation request issued")
	}
}

func TestLogoutSkipsRevocationForLegacyToken(t *testing.T) {
	transport := &fakeTransport{requests: make(chan map[string]any, 1)}
	st, err := Open(Options{Transport: transport})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SetCurrentUser(ctx, testUser("u1", "legacy-token")))
	require.NoError(t, st.Logout(ctx))

	select {
	case <-transport.requests:
		t.Fatal("legacy token must not be revoked")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCurrentUserSyncRejectsAsyncStorage(t *testing.T) {
	st, err := Open(Options{Storage: &asyncStorage{NewMemStorage()}})
	require.NoError(t, err)

	_, err = st.CurrentUserSync()
	assert.ErrorIs(t, err, ErrSyncUnavailable)

	// Once memory is populated, the sync read answers without I/O.
	require.NoError(t, st.SetCurrentUser(context.Background(), testUser("u1", "tok")))
	u, err := st.CurrentUserSync()
	require.NoError(t, err)
	assert.Equal(t, "u1", u.Identity.ID)
}

func TestLegacySnapshotTranslation(t *testing.T) {
	storage := NewMemStorage()
	st, err := Open(Options{Storage: storage})
	require.NoError(t, err)
	ctx := context.Background()

	legacy := []byte(`{"_id":"u9","_sessionToken":"r:zzz","username":"old"}`)
	require.NoError(t, storage.Set(ctx, st.currentUserKey(), legacy))

	u, err := st.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, Identity{Type: "_User", ID: "u9"}, u.Identity)
	assert.Equal(t, "r:zzz", u.SessionToken())
	assert.Equal(t, "old", u.Attrs["username"])
	_, hasLegacy := u.Attrs["_id"]
	assert.False(t, hasLegacy)
}

func TestMalformedSnapshotPropagates(t *testing.T) {
	storage := NewMemStorage()
	st, err := Open(Options{Storage: storage})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, st.currentUserKey(), []byte("{not json")))
	_, err = st.CurrentUser(ctx)
	assert.Error(t, err)
}
