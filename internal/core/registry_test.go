package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	Register(transit())
	Register(placesDataset(500))

	ds, ok := Get("transit")
	require.True(t, ok)
	assert.Len(t, ds.Kinds, 5)

	_, ok = Get("nope")
	assert.False(t, ok)

	assert.Equal(t, []string{"places", "transit"}, Names())

	assert.Panics(t, func() { Register(transit()) }, "duplicate name")
}

func TestRegisterRejectsInvalidDataset(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	bad := transit()
	bad.Name = "bad"
	bad.Kinds[0], bad.Kinds[1] = bad.Kinds[1], bad.Kinds[0]
	assert.Panics(t, func() { Register(bad) })
}

func TestValidateDataset(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateDataset(transit()))
	})

	t.Run("undeclared key field", func(t *testing.T) {
		ds := transit()
		ds.Kinds[0].Key = []string{"agency_code"}
		err := ValidateDataset(ds)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("unknown relationship endpoint", func(t *testing.T) {
		ds := transit()
		ds.Relationships = append(ds.Relationships, RelationshipSpec{Kind: "SERVES", Source: "route", Target: "depot", Rule: DirectRule{Field: "depot_id"}})
		assert.Error(t, ValidateDataset(ds))
	})

	t.Run("missing rule", func(t *testing.T) {
		ds := transit()
		ds.Relationships[0].Rule = nil
		assert.Error(t, ValidateDataset(ds))
	})
}

func TestSelectKinds(t *testing.T) {
	ds := transit()

	all, err := SelectKinds(ds, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	// Requested order does not matter; dependency order is kept.
	some, err := SelectKinds(ds, []string{"trip", " agency"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "agency", some[0].Name)
	assert.Equal(t, "trip", some[1].Name)

	_, err = SelectKinds(ds, []string{"depot"})
	assert.True(t, IsConfigError(err))
}

func TestDatasetProgressKeys(t *testing.T) {
	assert.Equal(t,
		[]string{"agency", "route", "stop", "calendar", "trip", "rel:OPERATES", "rel:HAS_TRIP"},
		transit().ProgressKeys(),
	)
}
