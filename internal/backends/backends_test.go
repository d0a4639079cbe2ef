package backends

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zermelo/internal/filter"
	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/testutil"
	"github.com/roach88/zermelo/internal/value"
)

func testRegistry(t *testing.T) *record.Registry {
	t.Helper()
	reg, err := record.NewRegistry(
		&record.Class{
			Name:         "Owner",
			Attributes:   []record.Attribute{{Name: "name", Type: value.TypeString, Indexed: true}},
			Associations: []record.Association{{Name: "pets", Kind: record.HasMany, Class: "Pet", Inverse: "owner"}},
		},
		&record.Class{
			Name:         "Pet",
			Attributes:   []record.Attribute{{Name: "name", Type: value.TypeString}},
			Associations: []record.Association{{Name: "owner", Kind: record.BelongsTo, Class: "Owner", Inverse: "pets"}},
		},
	)
	require.NoError(t, err)
	return reg
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("series")
	require.NoError(t, err)
	assert.Equal(t, Series, k)

	_, err = ParseKind("redis")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestHandlesBehaveAlike(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(string(kind), func(t *testing.T) {
			ctx := context.Background()
			h, err := Open(kind, "", testRegistry(t), Options{IDs: testutil.NewSequentialIDs(), Clock: testutil.NewDeterministicClock()})
			require.NoError(t, err)
			defer h.Close()

			ownerClass, err := h.Registry().Lookup("Owner")
			require.NoError(t, err)
			owner := record.New(ownerClass, "")
			require.NoError(t, owner.Set("name", "Jane"))
			require.NoError(t, h.Save(ctx, owner))

			pets, err := h.HasMany(owner, "pets")
			require.NoError(t, err)
			petClass, err := h.Registry().Lookup("Pet")
			require.NoError(t, err)
			require.NoError(t, pets.Add(ctx, record.New(petClass, ""), record.New(petClass, "")))

			ids, err := pets.IDs(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"2", "3"}, ids)

			loaded, err := h.Load(ctx, ownerClass, "1")
			require.NoError(t, err)
			require.NotNil(t, loaded)
			assert.Equal(t, value.NewString("Jane"), loaded.Get("name"))

			n, err := h.Filter(ownerClass).Intersect(filter.Attrs{"name": "Jane"}).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = h.HasMany(owner, "missing")
			assert.ErrorIs(t, err, record.ErrUnknownAssociation)
		})
	}
}

func TestExplain(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)
	owner, err := reg.Lookup("Owner")
	require.NoError(t, err)

	sets, err := Open(Sets, "", reg, Options{})
	require.NoError(t, err)
	defer sets.Close()
	_, err = sets.Explain(ctx, sets.Filter(owner).Query())
	assert.ErrorIs(t, err, ErrExplainUnsupported)

	ser, err := Open(Series, "", reg, Options{})
	require.NoError(t, err)
	defer ser.Close()
	text, err := ser.Explain(ctx, ser.Filter(owner).Query())
	require.NoError(t, err)
	assert.Contains(t, text, `FROM "owner"`)
}

func TestSetsSnapshotOnClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.zst")
	reg := testRegistry(t)
	owner, err := reg.Lookup("Owner")
	require.NoError(t, err)

	h, err := Open(Sets, path, reg, Options{})
	require.NoError(t, err)
	rec := record.New(owner, "jane")
	require.NoError(t, rec.Set("name", "Jane"))
	require.NoError(t, h.Save(ctx, rec))
	require.NoError(t, h.Close())

	reopened, err := Open(Sets, path, reg, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	ids, err := reopened.Filter(owner).IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jane"}, ids)
}
