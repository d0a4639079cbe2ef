package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// SQLSnapshot renders the synthesized SQL of every query that produced
// one, in scenario order:
//
//	-- <query name>
//	<sql>
func SQLSnapshot(result *Result) []byte {
	var b strings.Builder
	for _, q := range result.Queries {
		for _, o := range q.Outcomes {
			if o.SQL == "" {
				continue
			}
			b.WriteString("-- " + q.Name + "\n")
			b.WriteString(o.SQL + "\n")
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its synthesized SQL
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can assert on it too.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, Options{})
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's SQL snapshot against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, SQLSnapshot(result))
}
