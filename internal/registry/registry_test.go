package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup_Venue(t *testing.T) {
	cfg, err := Lookup("venue")
	require.NoError(t, err)
	require.Equal(t, "venues", cfg.EntityTable)
	require.Contains(t, cfg.ListingFields, "phone")
	require.Contains(t, cfg.EntityFields, "padel_total_courts")
}

func TestLookup_UnknownType(t *testing.T) {
	_, err := Lookup("restaurant")
	require.ErrorIs(t, err, ErrUnknownEntityType)
	require.Contains(t, err.Error(), "restaurant")
}

func TestFieldSetsDisjoint(t *testing.T) {
	cfg, err := Lookup("venue")
	require.NoError(t, err)
	for field := range cfg.EntityFields {
		require.NotContains(t, cfg.ListingFields, field)
	}
}

func TestExtractableFields_ExcludesInternalFields(t *testing.T) {
	fields, err := ExtractableFields("venue")
	require.NoError(t, err)

	require.NotContains(t, fields, "entity_name")
	require.NotContains(t, fields, "entity_type")
	require.NotContains(t, fields, "canonical_categories")
	require.Contains(t, fields, "categories")
	require.Contains(t, fields, "tennis_total_courts")
}

func TestExtractableFields_SortedAndStable(t *testing.T) {
	first, err := ExtractableFields("venue")
	require.NoError(t, err)
	second, err := ExtractableFields("venue")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.IsIncreasing(t, first)
}

func TestExtractableFields_UnknownType(t *testing.T) {
	_, err := ExtractableFields("gym")
	require.ErrorIs(t, err, ErrUnknownEntityType)
}
