package parseredux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStorage(t *testing.T) {
	ms := NewMemStorage()
	ctx := context.Background()

	_, err := ms.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ms.Set(ctx, "k", []byte("v")))
	val, err := ms.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	// Returned slices are detached from the stored copy.
	val[0] = 'x'
	val, err = ms.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, ms.Remove(ctx, "k"))
	_, err = ms.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, ms.Sync())
}

func TestPebbleStorage(t *testing.T) {
	ps, err := OpenPebbleStorage(t.TempDir())
	require.NoError(t, err)
	defer ps.Close()
	ctx := context.Background()

	_, err = ps.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ps.Set(ctx, "k", []byte("v")))
	val, err := ps.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, ps.Remove(ctx, "k"))
	_, err = ps.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, ps.Sync())
}

func TestStoreWithPebbleStorage(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Options{StorageDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, st.SetCurrentUser(ctx, testUser("u1", "tok")))
	require.NoError(t, st.Close())

	// A fresh store over the same dir sees the persisted owner.
	st2, err := Open(Options{StorageDir: dir})
	require.NoError(t, err)
	defer st2.Close()
	u, err := st2.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.Identity.ID)

	assert.NotEmpty(t, st2.Collectors())
}
