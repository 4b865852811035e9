package memstore

import (
	"context"
	"sync"

	"browserq/internal/domain"
	"browserq/internal/ports"
)

var _ ports.JobStore = (*Store)(nil)

type Store struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

func New() *Store {
	return &Store{jobs: make(map[string]domain.Job)}
}

func (s *Store) Get(_ context.Context, id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *Store) Put(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) List(_ context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}
