package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

func compileClass(t *testing.T, src, path string) (*record.Class, error) {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileClass(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileClassBasic(t *testing.T) {
	c, err := compileClass(t, `
		class: Example: {
			key: "example"
			attributes: { name: "string", active: "bool", rank: "int" }
			indexed: ["name", "active"]
			score: "rank"
			has_many: children: { class: "Child", inverse: "example", dependent: true }
		}
	`, "class.Example")
	require.NoError(t, err)

	assert.Equal(t, "Example", c.Name)
	assert.Equal(t, "example", c.Key)
	assert.Equal(t, "rank", c.Score)
	assert.Equal(t, []record.Attribute{
		{Name: "name", Type: value.TypeString, Indexed: true},
		{Name: "active", Type: value.TypeBool, Indexed: true},
		{Name: "rank", Type: value.TypeInt},
	}, c.Attributes)
	assert.Equal(t, []record.Association{
		{Name: "children", Kind: record.HasMany, Class: "Child", Inverse: "example", Dependent: true},
	}, c.Associations)
}

func TestCompileClassErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "unknown type",
			src:   `class: Bad: { attributes: { price: "money" } }`,
			field: "attributes.price",
		},
		{
			name:  "non-string type",
			src:   `class: Bad: { attributes: { price: 3 } }`,
			field: "attributes.price",
		},
		{
			name:  "indexed undeclared",
			src:   `class: Bad: { attributes: { name: "string" }, indexed: ["email"] }`,
			field: "indexed",
		},
		{
			name:  "indexed not indexable",
			src:   `class: Bad: { attributes: { rank: "int" }, indexed: ["rank"] }`,
			field: "indexed",
		},
		{
			name:  "score undeclared",
			src:   `class: Bad: { attributes: { name: "string" }, score: "rank" }`,
			field: "score",
		},
		{
			name:  "association without class",
			src:   `class: Bad: { has_many: things: { inverse: "bad" } }`,
			field: "has_many.things",
		},
		{
			name:  "score not numeric",
			src:   `class: Bad: { attributes: { name: "string" }, score: "name" }`,
			field: "class",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileClass(t, tt.src, "class.Bad")
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	err := (&CompileError{Field: "indexed", Message: "attribute \"x\" is not declared"}).Error()
	assert.Equal(t, `indexed: attribute "x" is not declared`, err)
}

func TestLoad(t *testing.T) {
	reg, err := Load(filepath.Join("testdata", "zoo"))
	require.NoError(t, err)

	names := make([]string, 0)
	for _, c := range reg.Classes() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Child", "Example", "Pet", "Toy"}, names)

	child, ok := reg.Class("Child")
	require.True(t, ok)
	assert.Equal(t, "child", child.Key)
	fk, ok := child.Attribute("example_id")
	require.True(t, ok, "belongs_to adds its foreign key")
	assert.True(t, fk.Indexed)

	example, ok := reg.ClassByKey("example")
	require.True(t, ok)
	children, ok := example.Association("children")
	require.True(t, ok)
	assert.Equal(t, record.HasSortedSet, children.Kind)
	inv, ok := reg.Inverse(example, children)
	require.True(t, ok)
	assert.Equal(t, "example", inv.Name)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := t.TempDir()
	_, err = Load(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")

	dir := t.TempDir()
	src := `package bad

class: Parent: {
	has_many: kids: {class: "Nobody"}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(src), 0644))
	_, err = Load(dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown class")
}
