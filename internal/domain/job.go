package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusTimedOut  JobStatus = "timedOut"
	StatusFailed    JobStatus = "failed"
)

const (
	DefaultTimeout = 300
	MinTimeout     = 1
	MaxTimeout     = 3600
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidTimeout    = fmt.Errorf("timeout must be between %d and %d seconds", MinTimeout, MaxTimeout)
	ErrEmptyTask         = errors.New("task is required")
	// ErrSuperseded is returned when a record was overwritten by a newer
	// submission while an older execution still held a reference to it.
	ErrSuperseded = errors.New("job superseded by a newer submission")
)

// Job is one unit of browser automation work. The JSON field names are part
// of the public API and of the persisted record format.
type Job struct {
	ID        string     `json:"id" yaml:"id"`
	Task      string     `json:"task" yaml:"task"`
	Result    *string    `json:"result" yaml:"result"`
	Status    JobStatus  `json:"status" yaml:"status"`
	CreatedAt time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt" yaml:"updatedAt"`
	Timeout   int        `json:"timeout" yaml:"timeout"`
	Error     *string    `json:"error" yaml:"error"`
}

// JobID derives the identifier of a job from its task text.
func JobID(task string) string {
	sum := sha256.Sum256([]byte(task))
	return hex.EncodeToString(sum[:])
}

// ValidID reports whether id has the shape produced by JobID.
func ValidID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func ValidateTimeout(seconds int) error {
	if seconds < MinTimeout || seconds > MaxTimeout {
		return ErrInvalidTimeout
	}
	return nil
}

// NewJob builds a pending job. It does not persist anything.
func NewJob(task string, timeout int, now time.Time) Job {
	return Job{
		ID:        JobID(task),
		Task:      task,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
		Timeout:   timeout,
	}
}

func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusTimedOut, StatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusTimedOut || s == StatusFailed
}

var transitions = map[JobStatus][]JobStatus{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusCompleted, StatusTimedOut, StatusFailed},
}

func CanTransition(from, to JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (j Job) TimeoutDuration() time.Duration {
	return time.Duration(j.Timeout) * time.Second
}

// Deadline is the instant after which a running job counts as timed out.
func (j Job) Deadline() time.Time {
	return j.CreatedAt.Add(j.TimeoutDuration())
}

// TimedOut reports whether more than Timeout seconds have elapsed since
// creation. It says nothing about the status.
func (j Job) TimedOut(now time.Time) bool {
	return now.Sub(j.CreatedAt) > j.TimeoutDuration()
}

// ShouldTimeOut reports whether the lazy timeout promotion applies.
func (j Job) ShouldTimeOut(now time.Time) bool {
	return j.Status == StatusRunning && j.TimedOut(now)
}

func (j *Job) transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	return nil
}

func (j *Job) Start() error {
	return j.transition(StatusRunning)
}

func (j *Job) Complete(result string) error {
	if err := j.transition(StatusCompleted); err != nil {
		return err
	}
	j.Result = &result
	return nil
}

func (j *Job) TimeOut() error {
	return j.transition(StatusTimedOut)
}

func (j *Job) Fail(reason string) error {
	if err := j.transition(StatusFailed); err != nil {
		return err
	}
	j.Error = &reason
	return nil
}

// Touch stamps the mutation time.
func (j *Job) Touch(now time.Time) {
	t := now.UTC()
	j.UpdatedAt = &t
}

// Validate checks the record-level invariants that must hold before a
// snapshot is written.
func (j Job) Validate() error {
	if j.ID != JobID(j.Task) {
		return fmt.Errorf("job id %q does not match task hash", j.ID)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("unknown status %q", j.Status)
	}
	if (j.Result != nil) != (j.Status == StatusCompleted) {
		return fmt.Errorf("result must be set only when status is %s", StatusCompleted)
	}
	if (j.Error != nil) != (j.Status == StatusFailed) {
		return fmt.Errorf("error must be set only when status is %s", StatusFailed)
	}
	return nil
}

func (j Job) String() string {
	return fmt.Sprintf("Job{ID: %s, Status: %s}", j.ID, j.Status)
}

// Clone returns a copy that shares no pointers with j.
func (j Job) Clone() Job {
	c := j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.UpdatedAt != nil {
		u := *j.UpdatedAt
		c.UpdatedAt = &u
	}
	return c
}
