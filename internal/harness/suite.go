package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int             `json:"total"`
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Failures []SuiteFailure  `json:"failures,omitempty"`
	Results  []ScenarioEntry `json:"results"`
}

// ScenarioEntry is the outcome of one scenario in a suite.
type ScenarioEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Pass bool   `json:"pass"`

	// Result is nil when the scenario could not be loaded or run.
	Result *Result `json:"-"`
}

// SuiteFailure represents a scenario that could not be loaded, could not
// run, or failed its checks.
type SuiteFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Error        string   `json:"error"`
	Details      []string `json:"details,omitempty"`
}

// ScenarioFiles lists the .yaml and .yml files in dir, sorted by name.
// A path naming a file is returned as is.
func ScenarioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario under path.
//
// For each scenario file:
// 1. Load and validate it
// 2. Run it via harness.Run
// 3. Collect and report results
//
// Stops early only if ctx is cancelled.
func RunSuite(ctx context.Context, path string, opts ...Option) (*SuiteResult, error) {
	files, err := ScenarioFiles(path)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{Results: []ScenarioEntry{}}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++

		scenario, err := LoadScenario(file)
		if err != nil {
			result.fail(file, "", fmt.Sprintf("failed to load scenario: %v", err), nil)
			continue
		}

		runResult, err := Run(scenario, opts...)
		if err != nil {
			result.fail(file, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err), nil)
			continue
		}
		if !runResult.Pass {
			result.fail(file, scenario.Name, "scenario assertions failed", runResult.Errors)
			result.Results[len(result.Results)-1].Result = runResult
			continue
		}

		result.Passed++
		result.Results = append(result.Results, ScenarioEntry{Name: scenario.Name, Path: file, Pass: true, Result: runResult})
	}
	return result, nil
}

func (r *SuiteResult) fail(path, name, msg string, details []string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{ScenarioPath: path, Error: msg, Details: details})
	if name == "" {
		name = filepath.Base(path)
	}
	r.Results = append(r.Results, ScenarioEntry{Name: name, Path: path, Pass: false})
}
