// Package health defines project health analysis reports.
package health

import "time"

// Analysis types accepted by the analyzer.
const (
	AnalysisQuick = "quick"
	AnalysisFull  = "full"
)

// Check is a single health check outcome.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report is the result of analyzing a project directory. Score is a 0-100
// heuristic derived from the failed checks.
type Report struct {
	ProjectPath  string    `json:"project_path"`
	AnalysisType string    `json:"analysis_type"`
	Score        int       `json:"score"`
	Checks       []Check   `json:"checks"`
	FileCount    int       `json:"file_count"`
	TodoCount    int       `json:"todo_count,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}
