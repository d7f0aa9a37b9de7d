package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeep_NilValuesSkipped(t *testing.T) {
	dst := map[string]any{"city": "Edinburgh"}
	out := Deep(dst, map[string]any{"city": nil, "phone": nil})

	require.Equal(t, "Edinburgh", out["city"])
	require.NotContains(t, out, "phone")
}

func TestDeep_ScalarsFillOnce(t *testing.T) {
	dst := map[string]any{"postcode": "EH3 9AW"}
	out := Deep(dst, map[string]any{"postcode": "EH1 1AA", "city": "Edinburgh"})

	require.Equal(t, "EH3 9AW", out["postcode"])
	require.Equal(t, "Edinburgh", out["city"])
}

func TestDeep_DoesNotMutateInputs(t *testing.T) {
	dst := map[string]any{"hours": map[string]any{"monday": "09:00"}}
	src := map[string]any{"hours": map[string]any{"sunday": "CLOSED"}}

	out := Deep(dst, src)

	require.NotContains(t, dst["hours"], "sunday")
	require.Contains(t, out["hours"], "sunday")
	require.Equal(t, map[string]any{"sunday": "CLOSED"}, src["hours"])
}

func TestDeep_EmptyMergedMapNeverWritten(t *testing.T) {
	out := Deep(map[string]any{}, map[string]any{"opening_hours": map[string]any{}})
	require.NotContains(t, out, "opening_hours")
}

func TestLists_AppendOnlyFirstAppearanceOrder(t *testing.T) {
	dst := []any{"a", "b"}
	src := []any{"b", "c", "a", "c"}

	out := Lists(dst, src, false)

	require.Equal(t, []any{"a", "b", "c"}, out)
}

func TestLists_DedupHandlesNonScalars(t *testing.T) {
	dst := []any{map[string]any{"day": "monday"}}
	src := []any{map[string]any{"day": "monday"}, map[string]any{"day": "sunday"}}

	out := Lists(dst, src, false)

	require.Len(t, out, 2)
}

// The merged list never exceeds the size of the union of its inputs.
func TestLists_BoundedByUnion(t *testing.T) {
	dst := []any{"tennis", "padel"}
	src := []any{"padel", "tennis", "squash", "tennis"}

	out := Lists(dst, src, false)
	require.LessOrEqual(t, len(out), 3)
	require.Equal(t, []any{"tennis", "padel", "squash"}, out)
}

func TestLists_CaseInsensitiveKeepsFirstSeenCasing(t *testing.T) {
	dst := []any{"Padel"}
	src := []any{"PADEL", "padel", "Tennis"}

	out := Lists(dst, src, true)

	require.Equal(t, []any{"Padel", "Tennis"}, out)
}

func TestDeep_CategoriesDedupCaseInsensitively(t *testing.T) {
	dst := map[string]any{"categories": []any{"Tennis"}}
	src := map[string]any{"categories": []any{"tennis", "Padel"}}

	out := Deep(dst, src)

	require.Equal(t, []any{"Tennis", "Padel"}, out["categories"])
}

func TestAttributeList_DedupByLowercasedKey(t *testing.T) {
	dst := []any{
		map[string]any{"key": "Surface", "value": "clay"},
	}
	src := []any{
		map[string]any{"key": "surface", "value": "hard"},
		map[string]any{"key": "parking", "value": "free"},
		map[string]any{"key": "membership", "value": nil},
	}

	out := AttributeList(dst, src)

	require.Len(t, out, 2)
	first := out[0].(map[string]any)
	require.Equal(t, "Surface", first["key"])
	require.Equal(t, "clay", first["value"])
	second := out[1].(map[string]any)
	require.Equal(t, "parking", second["key"])
}

func TestDeep_OtherAttributesMergedAsAttributeList(t *testing.T) {
	dst := map[string]any{
		"other_attributes": []any{map[string]any{"key": "parking", "value": "free"}},
	}
	src := map[string]any{
		"other_attributes": []any{
			map[string]any{"key": "Parking", "value": "paid"},
			map[string]any{"key": "cafe", "value": true},
		},
	}

	out := Deep(dst, src)

	attrs := out["other_attributes"].([]any)
	require.Len(t, attrs, 2)
	require.Equal(t, "free", attrs[0].(map[string]any)["value"])
	require.Equal(t, "cafe", attrs[1].(map[string]any)["key"])
}

func TestDeep_NestedMapsRecurseAndFill(t *testing.T) {
	dst := map[string]any{
		"opening_hours": map[string]any{
			"monday": map[string]any{"open": "09:00"},
		},
	}
	src := map[string]any{
		"opening_hours": map[string]any{
			"monday": map[string]any{"open": "06:00", "close": "22:00"},
			"sunday": "CLOSED",
		},
	}

	out := Deep(dst, src)

	hours := out["opening_hours"].(map[string]any)
	monday := hours["monday"].(map[string]any)
	require.Equal(t, "09:00", monday["open"])
	require.Equal(t, "22:00", monday["close"])
	require.Equal(t, "CLOSED", hours["sunday"])
}
