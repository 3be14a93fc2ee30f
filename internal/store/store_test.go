package store

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sockrest/internal/errors"
)

type note struct {
	ID   uint64 `gorm:"primaryKey"`
	Body string `gorm:"size:500"`
}

func newTestRepo(t *testing.T) *Repository[note] {
	t.Helper()
	db, err := Open(":memory:", nil, &note{})
	require.NoError(t, err)
	return NewRepository[note](db)
}

func TestRepositoryCreateBackfillsPK(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n := note{Body: "first"}
	require.NoError(t, repo.Create(ctx, &n))
	assert.NotZero(t, n.ID)

	loaded, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", loaded.Body)
}

func TestRepositoryGetMissingMapsToNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestRepositorySave(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n := note{Body: "before"}
	require.NoError(t, repo.Create(ctx, &n))

	n.Body = "after"
	require.NoError(t, repo.Save(ctx, &n))

	loaded, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", loaded.Body)
}

func TestRepositoryDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n := note{Body: "gone"}
	require.NoError(t, repo.Create(ctx, &n))
	require.NoError(t, repo.Delete(ctx, &n))

	_, err := repo.Get(ctx, n.ID)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	ok, err := repo.Exists(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositoryListEmptyIsNonNil(t *testing.T) {
	repo := newTestRepo(t)

	notes, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestRepositoryListOrderedByPK(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, &note{Body: body}))
	}

	notes, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.True(t, notes[0].ID < notes[1].ID && notes[1].ID < notes[2].ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestRepositoryExists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	n := note{Body: "here"}
	require.NoError(t, repo.Create(ctx, &n))

	ok, err := repo.Exists(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, n.ID+100)
	require.NoError(t, err)
	assert.False(t, ok)
}
