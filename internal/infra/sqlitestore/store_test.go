package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"browserq/internal/domain"
	"browserq/internal/infra/storetest"
	"browserq/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.JobStore { return openTemp(t) })
}

func TestStatusColumnFollowsDocument(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	j := domain.NewJob("ping", 10, time.Now())
	require.NoError(t, s.Put(ctx, j))
	require.NoError(t, j.Start())
	j.Touch(time.Now())
	require.NoError(t, s.Put(ctx, j))

	var status string
	var updated *int64
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT status, updated_at FROM jobs WHERE id = ?`, j.ID).Scan(&status, &updated))
	assert.Equal(t, "running", status)
	assert.NotNil(t, updated)
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	j := domain.NewJob("durable", 10, time.Now())
	require.NoError(t, s.Put(ctx, j))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	storetest.AssertJobEqual(t, j, got)
}

func TestListSkipsCorruptRecords(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	good := domain.NewJob("good", 10, time.Now())
	require.NoError(t, s.Put(ctx, good))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, doc) VALUES (?, 'pending', 0, '{not json')`,
		domain.JobID("broken"))
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, good.ID, all[0].ID)
}
