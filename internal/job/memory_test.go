package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_SaveAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jb := NewWithID("job-mem-1")
	require.NoError(t, repo.Save(ctx, jb))

	found, err := repo.FindByID(ctx, "job-mem-1")
	require.NoError(t, err)
	assert.Equal(t, "job-mem-1", found.ID)
	assert.Equal(t, StatusPending, found.Status)
}

func TestMemoryRepository_FindNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryRepository_SaveClones(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jb := NewWithID("job-mem-2")
	require.NoError(t, repo.Save(ctx, jb))

	// Mutating the original after save must not affect the stored copy.
	jb.Input = "mutated"

	found, err := repo.FindByID(ctx, "job-mem-2")
	require.NoError(t, err)
	assert.Empty(t, found.Input)
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, NewWithID("job-a")))
	require.NoError(t, repo.Save(ctx, NewWithID("job-b")))

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, NewWithID("job-del")))
	require.NoError(t, repo.Delete(ctx, "job-del"))

	_, err := repo.FindByID(ctx, "job-del")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "job-del"), ErrJobNotFound)
}
