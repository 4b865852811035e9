package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"browserq/internal/domain"
	"browserq/internal/infra/memstore"
	"browserq/internal/ports"
	"browserq/internal/usecase"
	"browserq/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

type agentFunc func(ctx context.Context, task string, timeout time.Duration) (string, error)

func (f agentFunc) Configure(context.Context) (ports.Session, error) { return f, nil }

func (f agentFunc) Execute(ctx context.Context, task string, timeout time.Duration) (string, error) {
	return f(ctx, task, timeout)
}

func (f agentFunc) Close() error { return nil }

func echoPong(ctx context.Context, task string, _ time.Duration) (string, error) {
	if task == "ping" {
		return "pong", nil
	}
	return "done: " + task, nil
}

func sleepy(d time.Duration) agentFunc {
	return func(ctx context.Context, task string, _ time.Duration) (string, error) {
		select {
		case <-time.After(d):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

type fixture struct {
	srv   *httptest.Server
	jobs  *usecase.Jobs
	store *memstore.Store
}

func newFixture(t *testing.T, agent agentFunc, queueSize int) *fixture {
	t.Helper()
	store := memstore.New()
	jobs := usecase.NewJobs(store)
	d := worker.NewDispatcher(usecase.Runner{Jobs: jobs, Agent: agent}, 2, queueSize)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	srv := httptest.NewServer(NewServer(jobs, d, testKey).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		d.Stop()
	})
	return &fixture{srv: srv, jobs: jobs, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any, key string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func (f *fixture) getJob(t *testing.T, id string) domain.Job {
	t.Helper()
	resp, body := f.do(t, http.MethodGet, "/jobs/"+id, nil, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var j domain.Job
	require.NoError(t, json.Unmarshal(body, &j))
	return j
}

func detail(t *testing.T, body []byte) string {
	t.Helper()
	var d struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &d))
	return d.Detail
}

func TestCreateJobRunsToCompletion(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	resp, body := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "ping"}, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, domain.JobID("ping"), raw["id"])
	assert.Equal(t, "ping", raw["task"])
	assert.Equal(t, "pending", raw["status"])
	assert.Nil(t, raw["result"])
	assert.Nil(t, raw["updatedAt"])
	assert.EqualValues(t, domain.DefaultTimeout, raw["timeout"])

	id := domain.JobID("ping")
	require.Eventually(t, func() bool {
		return f.getJob(t, id).Status == domain.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	j := f.getJob(t, id)
	require.NotNil(t, j.Result)
	assert.Equal(t, "pong", *j.Result)
	assert.NotNil(t, j.UpdatedAt)
}

func TestJobTimesOut(t *testing.T) {
	f := newFixture(t, sleepy(2*time.Second), 16)

	resp, body := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "slow", "timeout": 1}, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	time.Sleep(1500 * time.Millisecond)
	j := f.getJob(t, domain.JobID("slow"))
	assert.Equal(t, domain.StatusTimedOut, j.Status)
	assert.Nil(t, j.Result)

	// the late agent return must not revive the job
	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, domain.StatusTimedOut, f.getJob(t, domain.JobID("slow")).Status)
}

func TestGetUnknownJob(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	resp, body := f.do(t, http.MethodGet, "/jobs/does-not-exist", nil, testKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Job not found", detail(t, body))
}

func TestAuth(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	for _, key := range []string{"", "wrong"} {
		resp, body := f.do(t, http.MethodGet, "/jobs", nil, key)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Invalid API key", detail(t, body))
	}

	resp, _ := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "ping"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_, err := f.store.Get(context.Background(), domain.JobID("ping"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	resp, body := f.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestDuplicateSubmissionIsNotRescheduled(t *testing.T) {
	calls := make(chan struct{}, 8)
	agent := agentFunc(func(ctx context.Context, task string, timeout time.Duration) (string, error) {
		calls <- struct{}{}
		return "once", nil
	})
	f := newFixture(t, agent, 16)

	resp, _ := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "dup"}, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool {
		return f.getJob(t, domain.JobID("dup")).Status == domain.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp, body := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "dup"}, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var j domain.Job
	require.NoError(t, json.Unmarshal(body, &j))
	assert.Equal(t, domain.StatusCompleted, j.Status)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, calls, 1)
}

func TestOverwriteResetsJob(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "ping"}, testKey)
	require.Eventually(t, func() bool {
		return f.getJob(t, domain.JobID("ping")).Status == domain.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	resp, body := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "ping", "overwrite": true, "timeout": 30}, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var j domain.Job
	require.NoError(t, json.Unmarshal(body, &j))
	assert.Equal(t, domain.StatusPending, j.Status)
	assert.Nil(t, j.Result)
	assert.Nil(t, j.UpdatedAt)
	assert.Equal(t, 30, j.Timeout)

	require.Eventually(t, func() bool {
		return f.getJob(t, domain.JobID("ping")).Status == domain.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCreateJobValidation(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	cases := map[string]any{
		"missing task":    map[string]any{"overwrite": true},
		"zero timeout":    map[string]any{"task": "x", "timeout": 0},
		"timeout too big": map[string]any{"task": "x", "timeout": domain.MaxTimeout + 1},
		"negative":        map[string]any{"task": "x", "timeout": -5},
		"wrong type":      map[string]any{"task": 12},
		"null task":       map[string]any{"task": nil},
		"null timeout":    map[string]any{"task": "x", "timeout": nil},
		"null overwrite":  map[string]any{"task": "x", "overwrite": nil},
		"string timeout":  map[string]any{"task": "x", "timeout": "soon"},
		"float timeout":   map[string]any{"task": "x", "timeout": 1.5},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp, out := f.do(t, http.MethodPost, "/jobs", body, testKey)
			assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(out))
			assert.NotEmpty(t, detail(t, out))
		})
	}

	_, err := f.store.Get(context.Background(), domain.JobID("x"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueueFullFailsJob(t *testing.T) {
	store := memstore.New()
	jobs := usecase.NewJobs(store)
	// never started, so nothing drains the queue
	d := worker.NewDispatcher(usecase.Runner{Jobs: jobs, Agent: agentFunc(echoPong)}, 1, 0)
	srv := httptest.NewServer(NewServer(jobs, d, testKey).Handler())
	t.Cleanup(srv.Close)
	f := &fixture{srv: srv, jobs: jobs, store: store}

	resp, body := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "overflow"}, testKey)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))

	j := f.getJob(t, domain.JobID("overflow"))
	assert.Equal(t, domain.StatusFailed, j.Status)
	require.NotNil(t, j.Error)
	assert.Contains(t, *j.Error, "queue is full")
}

func TestListAndDeleteJobs(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	resp, body := f.do(t, http.MethodGet, "/jobs", nil, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "a"}, testKey)
	f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "b"}, testKey)

	resp, body = f.do(t, http.MethodGet, "/jobs", nil, testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []domain.Job
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 2)

	require.Eventually(t, func() bool {
		return f.getJob(t, domain.JobID("a")).Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	resp, _ = f.do(t, http.MethodDelete, "/jobs/"+domain.JobID("a"), nil, testKey)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/jobs/"+domain.JobID("a"), nil, testKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/jobs/"+domain.JobID("a"), nil, testKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, echoPong, 16)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	resp, _ = f.do(t, http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

type overwritingScheduler struct {
	jobs *usecase.Jobs
	t    *testing.T
}

// Submit replaces the record with a new submission of the same task, then
// reports the queue as full.
func (s overwritingScheduler) Submit(job domain.Job) error {
	_, _, err := s.jobs.Submit(context.Background(), usecase.SubmitInput{Task: job.Task, Overwrite: true, Timeout: 60})
	require.NoError(s.t, err)
	return worker.ErrQueueFull
}

func TestUnscheduledJobLeavesNewerSubmissionUntouched(t *testing.T) {
	store := memstore.New()
	jobs := usecase.NewJobs(store)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jobs.Now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	srv := httptest.NewServer(NewServer(jobs, overwritingScheduler{jobs: jobs, t: t}, testKey).Handler())
	t.Cleanup(srv.Close)
	f := &fixture{srv: srv, jobs: jobs, store: store}

	resp, body := f.do(t, http.MethodPost, "/jobs", map[string]any{"task": "raced"}, testKey)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))

	got, err := store.Get(context.Background(), domain.JobID("raced"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 60, got.Timeout)
	assert.Nil(t, got.UpdatedAt)
	assert.Nil(t, got.Error)
}
