package server

import (
	"sort"
	"sync"
	"time"

	"github.com/chaos-io/bgstrip/pipeline"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCanceled  RunState = "canceled"
	RunFailed    RunState = "failed"
)

// RunSummary describes one run without its per-file results.
type RunSummary struct {
	ID         string           `json:"id"`
	State      RunState         `json:"state"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Counts     *pipeline.Counts `json:"counts,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// RunDetail is a summary plus the report once the run has finished.
type RunDetail struct {
	RunSummary
	Report *pipeline.Report `json:"report,omitempty"`
}

type runRecord struct {
	summary RunSummary
	report  *pipeline.Report
}

// runStore keeps the most recent runs in memory. At most one run is
// active at a time.
type runStore struct {
	mu      sync.Mutex
	runs    map[string]*runRecord
	active  string
	maxRuns int
}

func newRunStore(maxRuns int) *runStore {
	return &runStore{runs: make(map[string]*runRecord), maxRuns: maxRuns}
}

// begin registers id as the active run. It returns the ID of the run
// already active, if any, without registering.
func (s *runStore) begin(id string, now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return s.active, false
	}
	s.active = id
	s.runs[id] = &runRecord{summary: RunSummary{ID: id, State: RunRunning, StartedAt: now}}
	s.evict()
	return id, true
}

func (s *runStore) finish(id string, report *pipeline.Report, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok {
		return
	}
	if s.active == id {
		s.active = ""
	}

	rec.report = report
	rec.summary.FinishedAt = &now
	if report != nil {
		counts := report.Counts()
		rec.summary.Counts = &counts
	}
	switch {
	case report != nil && report.Canceled:
		rec.summary.State = RunCanceled
	case err != nil:
		rec.summary.State = RunFailed
	default:
		rec.summary.State = RunCompleted
	}
	if err != nil {
		rec.summary.Error = err.Error()
	}
}

func (s *runStore) get(id string) (RunDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[id]
	if !ok {
		return RunDetail{}, false
	}
	return RunDetail{RunSummary: rec.summary, Report: rec.report}, true
}

// list returns summaries newest first.
func (s *runStore) list() []RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunSummary, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec.summary)
	}
	sortNewestFirst(out)
	return out
}

// evict drops the oldest finished runs beyond maxRuns. Caller holds mu.
func (s *runStore) evict() {
	if s.maxRuns <= 0 || len(s.runs) <= s.maxRuns {
		return
	}
	all := make([]RunSummary, 0, len(s.runs))
	for _, rec := range s.runs {
		all = append(all, rec.summary)
	}
	sortNewestFirst(all)
	for _, sum := range all[s.maxRuns:] {
		if sum.ID != s.active {
			delete(s.runs, sum.ID)
		}
	}
}

// ksuids sort by creation time, so ID breaks ties between runs started in
// the same instant.
func sortNewestFirst(runs []RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}
