package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"browserq/internal/domain"
	"browserq/internal/ports"

	"github.com/rs/zerolog/log"
)

var _ ports.JobStore = (*SQLite)(nil)

// SQLite keeps the JSON snapshot of each job in a single table. The status
// and timestamp columns mirror the document for ad-hoc queries only.
type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER,
  doc TEXT NOT NULL
);
`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(ctx context.Context, id string) (domain.Job, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM jobs WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("select job: %w", err)
	}
	return decode(doc)
}

func (s *SQLite) Put(ctx context.Context, job domain.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	var updated any
	if job.UpdatedAt != nil {
		updated = job.UpdatedAt.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, updated_at, doc)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             status = excluded.status,
             created_at = excluded.created_at,
             updated_at = excluded.updated_at,
             doc = excluded.doc`,
		job.ID,
		string(job.Status),
		job.CreatedAt.UnixMilli(),
		updated,
		string(b),
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc FROM jobs`)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	out := []domain.Job{}
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		j, err := decode(doc)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("job_id", id).Msg("skipping unreadable job record")
			continue
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func decode(doc string) (domain.Job, error) {
	var j domain.Job
	if err := json.Unmarshal([]byte(doc), &j); err != nil {
		return domain.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}
