package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chaos-io/bgstrip/errors"
	"github.com/chaos-io/bgstrip/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// gatedRunner blocks each run until release is closed or the run is
// canceled.
type gatedRunner struct {
	started chan string
	release chan struct{}
}

func newGatedRunner() *gatedRunner {
	return &gatedRunner{started: make(chan string, 4), release: make(chan struct{})}
}

func (g *gatedRunner) run(ctx context.Context, id string) (*pipeline.Report, error) {
	g.started <- id
	report := &pipeline.Report{RunID: id, StartedAt: time.Now()}
	select {
	case <-g.release:
		report.Results = []pipeline.Result{
			{Input: "a.png", Status: pipeline.StatusSucceeded, Output: "frames/a.png"},
			{Input: "b.png", Status: pipeline.StatusRejected, Reason: "symlink"},
		}
		report.FinishedAt = time.Now()
		return report, nil
	case <-ctx.Done():
		report.Canceled = true
		return report, ctx.Err()
	}
}

func newTestServer(t *testing.T, runner Runner) *Server {
	t.Helper()

	s, err := New(runner, Options{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func waitFor(t *testing.T, s *Server, id string, state RunState) RunDetail {
	t.Helper()

	var run RunDetail
	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+id, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var got RunDetail
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		run = got
		return got.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return run
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newGatedRunner().run)
	rec := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRuns_Lifecycle(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	s := newTestServer(t, runner.run)

	rec := do(t, s, http.MethodPost, "/v1/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/v1/runs/"+id, rec.Header().Get("Location"))
	assert.Equal(t, id, <-runner.started)

	// one run at a time
	rec = do(t, s, http.MethodPost, "/v1/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, id, decode[map[string]string](t, rec)["id"])

	running := waitFor(t, s, id, RunRunning)
	assert.Nil(t, running.Report)
	assert.Nil(t, running.FinishedAt)

	close(runner.release)
	done := waitFor(t, s, id, RunCompleted)
	require.NotNil(t, done.Report)
	assert.Equal(t, id, done.Report.RunID)
	require.NotNil(t, done.Counts)
	assert.Equal(t, pipeline.Counts{Succeeded: 1, Rejected: 1}, *done.Counts)
	assert.NotNil(t, done.FinishedAt)

	// a new run may start once the previous one finished
	rec = do(t, s, http.MethodPost, "/v1/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)
	second := decode[map[string]string](t, rec)["id"]
	<-runner.started
	waitFor(t, s, second, RunCompleted)

	rec = do(t, s, http.MethodGet, "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Runs []RunSummary `json:"runs"`
	}](t, rec)
	require.Len(t, list.Runs, 2)
	assert.Equal(t, second, list.Runs[0].ID)
	assert.Equal(t, id, list.Runs[1].ID)
}

func TestRuns_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newGatedRunner().run)

	rec := do(t, s, http.MethodGet, "/v1/runs/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/v1/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuns_FailedAndPanicked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runner  Runner
		wantErr string
	}{
		{
			name: "fatal",
			runner: func(context.Context, string) (*pipeline.Report, error) {
				return nil, errors.Fatalf("input root is gone")
			},
			wantErr: "input root is gone",
		},
		{
			name: "panic",
			runner: func(context.Context, string) (*pipeline.Report, error) {
				panic("boom")
			},
			wantErr: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestServer(t, tt.runner)
			rec := do(t, s, http.MethodPost, "/v1/runs")
			require.Equal(t, http.StatusAccepted, rec.Code)
			id := decode[map[string]string](t, rec)["id"]

			run := waitFor(t, s, id, RunFailed)
			assert.Contains(t, run.Error, tt.wantErr)
			assert.Nil(t, run.Report)
		})
	}
}

func TestClose_CancelsActiveRun(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	s, err := New(runner.run, Options{})
	require.NoError(t, err)

	rec := do(t, s, http.MethodPost, "/v1/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[map[string]string](t, rec)["id"]
	<-runner.started

	s.Close()
	run, ok := s.store.get(id)
	require.True(t, ok)
	assert.Equal(t, RunCanceled, run.State)
	assert.True(t, run.Report.Canceled)
}

func TestRunStore_Evicts(t *testing.T) {
	t.Parallel()

	store := newRunStore(2)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Second)
		_, ok := store.begin(id, at)
		require.True(t, ok)
		store.finish(id, &pipeline.Report{RunID: id}, nil, at)
	}

	list := store.list()
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	_, ok := store.get("a")
	assert.False(t, ok)
}

func TestNew_NilRunner(t *testing.T) {
	t.Parallel()

	s, err := New(nil, Options{})
	assert.Nil(t, s)
	assert.True(t, errors.IsFatal(err))
}
