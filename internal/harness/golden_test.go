package harness

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func TestScenarios_Golden(t *testing.T) {
	files, err := ScenarioFiles(scenarioDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			// Regenerate with: go test ./internal/harness -update
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestScenarios_Replay(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join(scenarioDir, "simulate_batch.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.AddStep(StepRecord{
		Op:     "toggle",
		Args:   map[string]interface{}{"post": "id-1", "actor": "Tom", "emoji": "👍"},
		Case:   CaseOK,
		Result: map[string]interface{}{"removed": false},
		Error:  "not serialized",
	})

	data, err := Snapshot("format", result)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var snap TraceSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "format", snap.ScenarioName)
	require.Len(t, snap.Trace, 1)
	assert.Equal(t, 1, snap.Trace[0].Step)
	assert.Empty(t, snap.Trace[0].Error)
	assert.NotContains(t, string(data), "not serialized")
	assert.Less(t,
		strings.Index(string(data), `"actor"`),
		strings.Index(string(data), `"emoji"`),
		"map keys are sorted")
}

func TestRunSuite(t *testing.T) {
	res, err := RunSuite(context.Background(), scenarioDir)
	require.NoError(t, err)
	assert.Equal(t, res.Total, res.Passed)
	assert.Zero(t, res.Failed)
	assert.Len(t, res.Results, res.Total)
}

func TestRunSuite_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\n")
	writeScenario(t, dir, "failing.yaml", `
name: failing
description: "Expects a reaction the flow never makes"
server:
  personas: [Clara, Tom]
setup:
  - action: create_post
    args: { bot: Clara, text: "hello" }
flow:
  - invoke: load_feed
    args: {}
assertions:
  - type: trace_contains
    op: toggle
`)
	writeScenario(t, dir, "notes.txt", "ignored")

	res, err := RunSuite(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0, res.Passed)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0].Error, "failed to load scenario")
	assert.Equal(t, "scenario assertions failed", res.Failures[1].Error)
	assert.NotEmpty(t, res.Failures[1].Details)
	assert.Equal(t, "failing", res.Results[1].Name)
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := RunSuite(ctx, scenarioDir)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Total)
}

func TestScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yml", "x")
	writeScenario(t, dir, "a.yaml", "x")
	writeScenario(t, dir, "c.json", "x")

	files, err := ScenarioFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)

	single, err := ScenarioFiles(filepath.Join(dir, "c.json"))
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = ScenarioFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestRunSuite_KeepsResults(t *testing.T) {
	res, err := RunSuite(context.Background(), filepath.Join(scenarioDir, "toggle_reaction.yaml"))
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	require.NotNil(t, res.Results[0].Result)
	assert.Len(t, res.Results[0].Result.Trace, 4)
}
