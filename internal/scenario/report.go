package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cerrors "github.com/acwooding/dmp-test-ci/internal/common/errors"
)

// Status is the outcome of a scenario
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Result is one scenario's outcome
type Result struct {
	Scenario  string         `json:"scenario"`
	Status    Status         `json:"status"`
	Slow      bool           `json:"slow,omitempty"`
	Timeout   time.Duration  `json:"timeout"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  time.Duration  `json:"duration"`
	Failure   *cerrors.Error `json:"failure,omitempty"`
	Error     string         `json:"error,omitempty"`
	// Artifacts are files written for this scenario, relative to the results directory.
	Artifacts []string `json:"artifacts,omitempty"`
	// UpdatedBaselines lists baselines written by this scenario.
	UpdatedBaselines []string `json:"updatedBaselines,omitempty"`
}

// Report is the outcome of one suite run
type Report struct {
	Suite      string    `json:"suite"`
	URL        string    `json:"url"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Results    []Result  `json:"results"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
}

// OK reports whether every scenario passed
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Duration is the wall time of the run
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) tally() {
	r.Passed, r.Failed = 0, 0
	for _, res := range r.Results {
		if res.Status == StatusPassed {
			r.Passed++
		} else {
			r.Failed++
		}
	}
}

// ReportFile is the JSON report's name inside the results directory
const ReportFile = "report.json"

// WriteJSON writes the report to dir/report.json and returns the path
func (r *Report) WriteJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	path := filepath.Join(dir, ReportFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// ReadJSON loads a report written by WriteJSON
func ReadJSON(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}
