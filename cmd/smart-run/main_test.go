package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/awaistahir/smart-run-planner/internal/engine"
	"github.com/awaistahir/smart-run-planner/internal/uiapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, "data", "smartrun.db")
}

func TestPlanFromDatabase(t *testing.T) {
	db := isolate(t)

	_, err := runCLI(t, "--db", db, "init", "--template", "peak-valley", "--budget", "5")
	require.NoError(t, err)

	for _, args := range [][]string{
		{"--name", "washer", "--power", "1", "--runtime", "2", "--start", "8", "--end", "22", "--priority", "2"},
		{"--name", "heater", "--power", "2", "--runtime", "3", "--start", "6", "--end", "10", "--fixed", "--priority", "3"},
		{"--name", "ac", "--power", "1.5", "--runtime", "5", "--start", "12", "--end", "22", "--priority", "1"},
	} {
		_, err := runCLI(t, append([]string{"--db", db, "appliance", "add"}, args...)...)
		require.NoError(t, err)
	}

	out, err := runCLI(t, "--db", db, "plan")
	require.NoError(t, err)

	var doc uiapi.ScheduleDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, map[string]int{"washer": 21, "heater": 6, "ac": 12}, doc.Starts)
	assert.InDelta(t, 14.9, doc.TotalCost, 1e-9)

	out, err = runCLI(t, "--db", db, "appliance", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "heater")

	_, err = runCLI(t, "--db", db, "appliance", "remove", "ac")
	require.NoError(t, err)
	_, err = runCLI(t, "--db", db, "appliance", "remove", "ac")
	assert.Error(t, err)
}

func TestTariffCommands(t *testing.T) {
	db := isolate(t)

	_, err := runCLI(t, "--db", db, "tariff", "show")
	assert.Error(t, err)

	_, err = runCLI(t, "--db", db, "tariff", "template", "night-discount", "--budget", "3")
	require.NoError(t, err)

	out, err := runCLI(t, "--db", db, "tariff", "show")
	require.NoError(t, err)
	var tariff struct {
		Prices   []float64 `json:"prices"`
		BudgetKW float64   `json:"budget_kw"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tariff))
	assert.Equal(t, 3.0, tariff.BudgetKW)
	assert.Equal(t, 0.4, tariff.Prices[0])

	// Budget is kept when only prices change.
	_, err = runCLI(t, "--db", db, "tariff", "set", "--prices",
		"1,1,1,1,1,1,1,1,1,1,1,1,2,2,2,2,2,2,2,2,2,2,2,2")
	require.NoError(t, err)
	out, err = runCLI(t, "--db", db, "tariff", "show")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &tariff))
	assert.Equal(t, 3.0, tariff.BudgetKW)
	assert.Equal(t, 2.0, tariff.Prices[23])

	_, err = runCLI(t, "--db", db, "tariff", "set", "--prices", "1,2,3")
	assert.True(t, engine.IsValidation(err))

	_, err = runCLI(t, "--db", db, "tariff", "template", "solar")
	assert.True(t, engine.IsValidation(err))
}

const contestedPlan = `
prices: [0.1, 0.1, 1.0, 0.2, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5]
budget_kw: 3
appliances:
  - name: a
    power_kw: 2
    runtime_hours: 1
    window: {start: 0, end: 3}
    priority: 2
  - name: b
    power_kw: 2
    runtime_hours: 2
    window: {start: 0, end: 3}
    priority: 1
`

func TestPlanFileCompare(t *testing.T) {
	db := isolate(t)
	file := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(file, []byte(contestedPlan), 0644))

	out, err := runCLI(t, "--db", db, "plan", "--file", file, "--strategy", "both")
	require.NoError(t, err)

	var cmp uiapi.ComparisonDocument
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, cmp.Greedy.Starts)
	assert.Equal(t, map[string]int{"a": 3, "b": 0}, cmp.Exact.Starts)
	assert.InDelta(t, 1.6, cmp.Comparison.Savings, 1e-9)
}

func TestPlanErrors(t *testing.T) {
	db := isolate(t)
	file := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(file, []byte(contestedPlan), 0644))

	_, err := runCLI(t, "--db", db, "plan", "--file", file, "--strategy", "random")
	assert.Error(t, err)

	t.Setenv("SMARTRUN_SOLVER_BACKEND", "")
	_, err = runCLI(t, "--db", db, "plan", "--file", file, "--strategy", "exact")
	assert.True(t, engine.IsDependency(err))

	_, err = runCLI(t, "--db", db, "plan", "--strategy", "greedy")
	assert.Error(t, err, "no tariff stored")
}
