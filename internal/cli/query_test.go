package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// importClub imports the club fixtures into a fresh store of backend and
// returns the store path.
func importClub(t *testing.T, backend string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "club."+backend)
	out, err := execute(t, "import", "--backend", backend, "--db", db, "--schema", "testdata/schema", "testdata/club.yaml")
	require.NoError(t, err, out)
	assert.Equal(t, "Imported 6 record(s) and 1 link(s) into "+backend+" store "+db+"\n", out)
	return db
}

func storeArgs(backend, db string, args ...string) []string {
	return append([]string{"--backend", backend, "--db", db, "--schema", "testdata/schema"}, args...)
}

func TestImportThenQuery(t *testing.T) {
	for _, backend := range []string{"sets", "series"} {
		t.Run(backend, func(t *testing.T) {
			db := importClub(t, backend)

			tests := []struct {
				name string
				args []string
				want string
			}{
				{
					name: "sorted_ids",
					args: []string{"--class", "Example", "--step", "intersect:active=true", "--step", "sort:name"},
					want: "3\n1\n",
				},
				{
					name: "count",
					args: []string{"--class", "Example", "--step", "intersect:active=true", "--count"},
					want: "2\n",
				},
				{
					name: "diff",
					args: []string{"--class", "Example", "--step", "diff:active=true"},
					want: "2\n",
				},
				{
					name: "scoped",
					args: []string{"--class", "Child", "--scope", "Example/1/children", "--step", "sort:name"},
					want: "12\n10\n11\n",
				},
				{
					name: "scoped_rank",
					args: []string{"--class", "Child", "--scope", "Example/1/children", "--step", "intersect:@rank=0..0"},
					want: "11\n",
				},
				{
					name: "no_match",
					args: []string{"--class", "Example", "--step", "intersect:name=Nobody", "--count"},
					want: "0\n",
				},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					out, err := execute(t, append([]string{"query"}, storeArgs(backend, db, tt.args...)...)...)
					require.NoError(t, err)
					assert.Equal(t, tt.want, out)
				})
			}
		})
	}
}

func TestQueryRecords(t *testing.T) {
	db := importClub(t, "series")

	out, err := execute(t, append([]string{"query"}, storeArgs("series", db, "--class", "Example", "--step", "intersect:name=Jane", "--records")...)...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Example/1 "), lines[0])
	assert.Contains(t, lines[0], `name="Jane"`)
	assert.Contains(t, lines[0], `rank="1"`)
	assert.NotContains(t, lines[0], "email")
}

func TestQueryJSON(t *testing.T) {
	db := importClub(t, "sets")

	out, err := execute(t, append([]string{"--format", "json", "query"}, storeArgs("sets", db, "--class", "Example", "--step", "union:name=John", "--step", "sort:rank:desc")...)...)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sets", resp.Data.Backend)
	assert.Equal(t, []string{"3", "2", "1"}, resp.Data.IDs)
	assert.Equal(t, 3, resp.Data.Count)
}

func TestQueryErrors(t *testing.T) {
	db := importClub(t, "series")

	tests := []struct {
		name    string
		args    []string
		code    int
		wantOut string
	}{
		{
			name:    "bad_step",
			args:    storeArgs("series", db, "--class", "Example", "--step", "sideways:a=b"),
			code:    ExitCommandError,
			wantOut: "Error [E006]: invalid --step",
		},
		{
			name:    "unknown_class",
			args:    storeArgs("series", db, "--class", "Nope"),
			code:    ExitCommandError,
			wantOut: "unknown class",
		},
		{
			name:    "unknown_backend",
			args:    storeArgs("redis", db, "--class", "Example"),
			code:    ExitCommandError,
			wantOut: "Error [E001]: invalid --backend",
		},
		{
			name:    "missing_schema",
			args:    []string{"--db", db, "--schema", "testdata/nope", "--class", "Example"},
			code:    ExitCommandError,
			wantOut: "Error [E002]: schema directory not found",
		},
		{
			name:    "scope_class_mismatch",
			args:    storeArgs("series", db, "--class", "Example", "--scope", "Example/1/children"),
			code:    ExitCommandError,
			wantOut: "holds Child records",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"query"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestExplain(t *testing.T) {
	db := importClub(t, "series")

	out, err := execute(t, append([]string{"explain"}, storeArgs("series", db, "--class", "Example", "--step", "intersect:active=true")...)...)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "series", "id" FROM "example" WHERE "seq" IN (SELECT MAX("seq") FROM "example" GROUP BY "series") AND "_deleted" = 0 AND ("active" = 'true') ORDER BY "id" ASC`+"\n", out)
}

func TestExplainJSON(t *testing.T) {
	db := importClub(t, "series")

	out, err := execute(t, append([]string{"--format", "json", "explain"}, storeArgs("series", db, "--class", "Child", "--scope", "Example/1/children")...)...)
	require.NoError(t, err)

	var resp struct {
		Data ExplainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Child", resp.Data.Class)
	assert.Contains(t, resp.Data.SQL, `FROM "child"`)
	assert.Contains(t, resp.Data.SQL, `("id" = 10) OR ("id" = 11) OR ("id" = 12)`)
}

func TestExplainNeedsSeries(t *testing.T) {
	db := importClub(t, "sets")

	out, err := execute(t, append([]string{"explain"}, storeArgs("sets", db, "--class", "Example")...)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E007]: explain needs the series backend, not sets")
}

func TestImportErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "club.db")

	out, err := execute(t, "import", "--db", db, "--schema", "testdata/schema", "testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]: failed to load fixtures")
}
