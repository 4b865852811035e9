// Package storetest holds the behaviour every ports.JobStore backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"browserq/internal/domain"
	"browserq/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Run(t *testing.T, newStore func(t *testing.T) ports.JobStore) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), domain.JobID("missing"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		j := domain.NewJob("round trip", 42, time.Now())
		require.NoError(t, j.Start())
		require.NoError(t, j.Complete("pong"))
		j.Touch(time.Now())

		require.NoError(t, s.Put(ctx, j))
		got, err := s.Get(ctx, j.ID)
		require.NoError(t, err)
		AssertJobEqual(t, j, got)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		j := domain.NewJob("overwrite", 10, time.Now())
		require.NoError(t, j.Start())
		require.NoError(t, s.Put(ctx, j))

		fresh := domain.NewJob("overwrite", 20, time.Now())
		require.NoError(t, s.Put(ctx, fresh))

		got, err := s.Get(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Equal(t, 20, got.Timeout)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		empty, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		want := map[string]bool{}
		for _, task := range []string{"a", "b", "c"} {
			j := domain.NewJob(task, 10, time.Now())
			require.NoError(t, s.Put(ctx, j))
			want[j.ID] = true
		}

		got, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for _, j := range got {
			assert.True(t, want[j.ID], "unexpected job %s", j.ID)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		j := domain.NewJob("delete me", 10, time.Now())
		require.NoError(t, s.Put(ctx, j))
		require.NoError(t, s.Delete(ctx, j.ID))

		_, err := s.Get(ctx, j.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, j.ID), domain.ErrNotFound)

		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

// AssertJobEqual compares two records field by field, using time.Equal for
// timestamps so that location and monotonic readings do not matter.
func AssertJobEqual(t *testing.T, want, got domain.Job) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Task, got.Task)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Timeout, got.Timeout)
	assert.Equal(t, want.Result, got.Result)
	assert.Equal(t, want.Error, got.Error)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt: want %s, got %s", want.CreatedAt, got.CreatedAt)
	if want.UpdatedAt == nil {
		assert.Nil(t, got.UpdatedAt)
	} else if assert.NotNil(t, got.UpdatedAt) {
		assert.True(t, want.UpdatedAt.Equal(*got.UpdatedAt), "updatedAt: want %s, got %s", want.UpdatedAt, got.UpdatedAt)
	}
}
