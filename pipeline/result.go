package pipeline

import (
	"sort"
	"sync"
	"time"
)

// Status is the outcome class of one input file.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// Failure reasons. Rejection reasons come from ingest.Reason.
const (
	FailIO        = "io error"
	FailInference = "inference error"
	FailTimeout   = "timeout"
	FailCanceled  = "canceled"
	FailInternal  = "internal fault"
)

// Result is the outcome record for one enumerated file.
type Result struct {
	Input    string        `json:"input"`
	Status   Status        `json:"status"`
	Output   string        `json:"output,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Counts tallies results by status.
type Counts struct {
	Succeeded int `json:"succeeded"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

func (c Counts) Total() int { return c.Succeeded + c.Rejected + c.Failed }

// Report is the full record of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	InputRoot  string    `json:"input_root"`
	OutputDir  string    `json:"output_dir"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Canceled   bool      `json:"canceled,omitempty"`
	Results    []Result  `json:"results"`
}

func (r *Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		switch res.Status {
		case StatusSucceeded:
			c.Succeeded++
		case StatusRejected:
			c.Rejected++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Result returns the record for input, if present.
func (r *Report) Result(input string) (Result, bool) {
	for _, res := range r.Results {
		if res.Input == input {
			return res, true
		}
	}
	return Result{}, false
}

// collector is the append-only accumulator shared by workers.
type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

// sorted returns a copy ordered by input path.
func (c *collector) sorted() []Result {
	c.mu.Lock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Input < out[j].Input })
	return out
}
