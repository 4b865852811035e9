package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"browserq/internal/domain"
	"browserq/internal/usecase"
	"browserq/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// createJobRequest keeps the optional fields raw so that an explicit null can
// be told apart from an omitted field.
type createJobRequest struct {
	Task      *string         `json:"task"`
	Overwrite json.RawMessage `json:"overwrite"`
	Timeout   json.RawMessage `json:"timeout"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Task == nil {
		writeErr(w, r, domain.ErrEmptyTask)
		return
	}
	overwrite := false
	if err := optionalField(req.Overwrite, "overwrite", &overwrite); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	timeout := domain.DefaultTimeout
	if err := optionalField(req.Timeout, "timeout", &timeout); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := domain.ValidateTimeout(timeout); err != nil {
		writeErr(w, r, err)
		return
	}

	ctx := r.Context()
	job, scheduled, err := s.jobs.Submit(ctx, usecase.SubmitInput{
		Task:      *req.Task,
		Overwrite: overwrite,
		Timeout:   timeout,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}

	if scheduled {
		if err := s.scheduler.Submit(job); err != nil {
			// the record is saved as pending; fail it so it does not look queued forever
			reason := fmt.Sprintf("not scheduled: %v", err)
			_, ferr := s.jobs.Update(ctx, job.ID, func(j *domain.Job) error {
				if !j.CreatedAt.Equal(job.CreatedAt) || j.Status != domain.StatusPending {
					return usecase.ErrUnchanged
				}
				return j.Fail(reason)
			})
			if ferr != nil && !errors.Is(ferr, usecase.ErrUnchanged) && !errors.Is(ferr, domain.ErrNotFound) {
				log.Ctx(ctx).Error().Err(ferr).Str("job_id", job.ID).Msg("mark unscheduled job failed")
			}
			writeErr(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, job)
}

// optionalField decodes raw into v unless the field was omitted. An explicit
// null is an error.
func optionalField(raw json.RawMessage, name string, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%s must not be null", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	return nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, domain.ErrInvalidTimeout), errors.Is(err, domain.ErrEmptyTask):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrStopped):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}
