package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assemblyYAML = `
name: assembly
currency: usd
resources:
  - name: widget
    quantity: 10
processes:
  - name: build
    type: assembly
events:
  - type: work
    process: build
    from: alice
    quantity: 6
    unit_value: 10
    resource_type: labor
    contribution: true
  - type: work
    process: build
    from: bob
    quantity: 4
    unit_value: "10"
    resource_type: labor
    contribution: true
  - type: produce
    process: build
    resource: widget
    quantity: 10
value_equation:
  buckets:
    - name: builders
      percentage: 100
      filter_method: process
      processes: [build]
      rules:
        - event_type: work
          equation: value
          rule_type: debt-like
target:
  resource: widget
  quantity: 10
distribution:
  amount: "100.00"
`

const assemblyTOML = `
name = "assembly"
currency = "usd"

[[resources]]
name = "widget"
quantity = 10

[[processes]]
name = "build"
type = "assembly"

[[events]]
type = "work"
process = "build"
from = "alice"
quantity = 6
unit_value = 10
contribution = true

[[events]]
type = "produce"
process = "build"
resource = "widget"
quantity = 10

[target]
resource = "widget"
`

func writeScenario(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseScenarioYAML(t *testing.T) {
	s, err := parseScenario([]byte(assemblyYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, "usd", s.Currency)
	require.Len(t, s.Events, 3)
	assert.Equal(t, "10", s.Events[1].UnitValue.String())
	require.NotNil(t, s.ValueEquation)
	assert.Equal(t, "100", s.ValueEquation.Buckets[0].Percentage.String())
	assert.Equal(t, "100", s.Distribution.Amount.String())
}

func TestParseScenarioTOML(t *testing.T) {
	s, err := parseScenario([]byte(assemblyTOML), ".toml")
	require.NoError(t, err)

	require.Len(t, s.Events, 2)
	assert.Equal(t, "alice", s.Events[0].From)
	assert.Equal(t, "widget", s.Target.Resource)
}

func TestParseScenarioRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "resources:\n  - name: widget\n    colour: red\n"},
		{"unknown event type", "events:\n  - type: teleport\n"},
		{"bad amount", "distribution:\n  amount: lots\n"},
		{"bad rule type", "value_equation:\n  buckets:\n    - name: b\n      percentage: 1\n      rules:\n        - {event_type: work, equation: value, rule_type: loan}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScenario([]byte(tt.body), ".yaml")
			assert.ErrorContains(t, err, "invalid scenario")
		})
	}
}

func TestBuildRejectsUnknownNames(t *testing.T) {
	s, err := parseScenario([]byte("events:\n  - type: work\n    process: missing\n"), ".yaml")
	require.NoError(t, err)

	_, err = s.build(t.Context(), nil)
	assert.ErrorContains(t, err, `unknown process "missing"`)
}

func TestRollupCommand(t *testing.T) {
	path := writeScenario(t, "assembly.yaml", assemblyYAML)

	out, err := execute(t, "rollup", "--scenario", path)
	require.NoError(t, err)
	assert.Contains(t, out, "widget: 10.00 per unit")
	assert.Contains(t, out, "build")
}

func TestSharesCommandJSON(t *testing.T) {
	path := writeScenario(t, "assembly.yaml", assemblyYAML)

	out, err := execute(t, "shares", "--scenario", path, "--output", "json")
	require.NoError(t, err)

	var shares []struct {
		Amount decimal.Decimal `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shares))
	require.Len(t, shares, 2)
	assert.True(t, shares[0].Amount.Equal(decimal.NewFromInt(60)), shares[0].Amount.String())
	assert.True(t, shares[1].Amount.Equal(decimal.NewFromInt(40)), shares[1].Amount.String())
}

func TestDistributeCommand(t *testing.T) {
	path := writeScenario(t, "assembly.yaml", assemblyYAML)

	out, err := execute(t, "distribute", "--scenario", path)
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "$60.00")
	assert.Contains(t, out, "$40.00")
	assert.Contains(t, out, "amount:        $100.00")
	assert.Contains(t, out, "distributed:   $100.00")
	assert.Contains(t, out, "undistributed: $0.00")
}

func TestDistributeAmountOverride(t *testing.T) {
	path := writeScenario(t, "assembly.yaml", assemblyYAML)

	out, err := execute(t, "distribute", "--scenario", path, "--amount", "50", "--preview")
	require.NoError(t, err)
	assert.Contains(t, out, "$30.00")
	assert.Contains(t, out, "$20.00")

	_, err = execute(t, "distribute", "--scenario", path, "--amount", "lots", "--preview")
	assert.ErrorContains(t, err, "invalid --amount")
}

func TestScenarioFlagRequired(t *testing.T) {
	_, err := execute(t, "rollup")
	assert.Error(t, err)
}
