// Package filestore persists each job as <dir>/<id>.json.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"browserq/internal/domain"
	"browserq/internal/ports"

	"github.com/rs/zerolog/log"
)

const ext = ".json"

var _ ports.JobStore = (*Store)(nil)

type Store struct {
	Dir string
}

// Open creates dir if needed. The directory is created once here and is
// assumed to exist for every later call.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs directory: %w", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+ext)
}

func (s *Store) Get(ctx context.Context, id string) (domain.Job, error) {
	if !domain.ValidID(id) {
		return domain.Job{}, domain.ErrNotFound
	}
	return s.read(s.path(id))
}

func (s *Store) read(path string) (domain.Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("read job file: %w", err)
	}
	var j domain.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return domain.Job{}, fmt.Errorf("decode job file %s: %w", filepath.Base(path), err)
	}
	return j, nil
}

// Put writes the full record to a temp file in the same directory and
// renames it over the old one, so readers never see a partial record.
func (s *Store) Put(ctx context.Context, job domain.Job) error {
	if !domain.ValidID(job.ID) {
		return fmt.Errorf("invalid job id %q", job.ID)
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write job file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close job file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(job.ID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	tmpName = ""
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.Job, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs directory: %w", err)
	}

	out := make([]domain.Job, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) || !domain.ValidID(strings.TrimSuffix(name, ext)) {
			continue
		}
		j, err := s.read(filepath.Join(s.Dir, name))
		if errors.Is(err, domain.ErrNotFound) {
			// deleted between ReadDir and ReadFile
			continue
		}
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("skipping unreadable job record")
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !domain.ValidID(id) {
		return domain.ErrNotFound
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("remove job file: %w", err)
	}
	return nil
}
