package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edinburgh-finds/backend/internal/record"
)

func TestApplyField_ReaffirmationNeverDegradesConfidence(t *testing.T) {
	fields := record.Fields{"phone": "+441315397071"}
	conf := record.Confidence{"phone": 0.88}

	changed := ApplyField(fields, &conf, "phone", "+441315397071", 0.97)
	require.False(t, changed)
	require.Equal(t, "+441315397071", fields["phone"])
	require.Equal(t, 0.97, conf.Get("phone"))

	changed = ApplyField(fields, &conf, "phone", "+441315397071", 0.40)
	require.False(t, changed)
	require.Equal(t, 0.97, conf.Get("phone"))
}

func TestApplyField_HigherConfidenceWins(t *testing.T) {
	fields := record.Fields{"city": "Leith"}
	conf := record.Confidence{"city": 0.5}

	changed := ApplyField(fields, &conf, "city", "Edinburgh", 0.6)

	require.True(t, changed)
	require.Equal(t, "Edinburgh", fields["city"])
	require.Equal(t, 0.6, conf.Get("city"))
}

func TestApplyField_LowConfidenceCannotClobber(t *testing.T) {
	fields := record.Fields{"email": "info@club.example"}
	conf := record.Confidence{"email": 0.9}

	changed := ApplyField(fields, &conf, "email", "wrong@club.example", 0.5)

	require.False(t, changed)
	require.Equal(t, "info@club.example", fields["email"])
	require.Equal(t, 0.9, conf.Get("email"))
}

// The absolute bar is inclusive: exactly 0.7 overwrites a more confident
// stored value, and the stored confidence drops to 0.7.
func TestApplyField_ThresholdBoundaryInclusive(t *testing.T) {
	fields := record.Fields{"website_url": "https://a.com"}
	conf := record.Confidence{"website_url": 0.90}

	changed := ApplyField(fields, &conf, "website_url", "https://b.com", 0.70)

	require.True(t, changed)
	require.Equal(t, "https://b.com", fields["website_url"])
	require.Equal(t, 0.70, conf.Get("website_url"))
}

func TestApplyField_JustBelowThresholdRejected(t *testing.T) {
	fields := record.Fields{"website_url": "https://a.com"}
	conf := record.Confidence{"website_url": 0.90}

	changed := ApplyField(fields, &conf, "website_url", "https://b.com", 0.699)

	require.False(t, changed)
	require.Equal(t, "https://a.com", fields["website_url"])
	require.Equal(t, 0.90, conf.Get("website_url"))
}

func TestApplyField_ZeroConfidenceCannotFillDifferingValue(t *testing.T) {
	fields := record.Fields{"postcode": "EH3 9AW"}
	conf := record.Confidence{"postcode": 0.0}

	// 0.0 is not strictly greater than 0.0 and below the bar.
	changed := ApplyField(fields, &conf, "postcode", "EH1 1AA", 0.0)

	require.False(t, changed)
	require.Equal(t, "EH3 9AW", fields["postcode"])
}

func TestApplyField_FillsAbsentFieldWithAnyPositiveConfidence(t *testing.T) {
	fields := record.Fields{}
	conf := record.Confidence{}

	changed := ApplyField(fields, &conf, "city", "Edinburgh", 0.1)

	require.True(t, changed)
	require.Equal(t, "Edinburgh", fields["city"])
	require.Equal(t, 0.1, conf.Get("city"))
}

func TestApplyField_CompositeMapsMergeInsteadOfReplace(t *testing.T) {
	fields := record.Fields{
		"opening_hours": map[string]any{
			"monday": map[string]any{"open": "09:00", "close": "17:00"},
		},
	}
	conf := record.Confidence{"opening_hours": 0.8}

	changed := ApplyField(fields, &conf, "opening_hours", map[string]any{
		"monday": map[string]any{"open": "06:00", "close": "22:00"},
		"sunday": "CLOSED",
	}, 0.9)

	require.True(t, changed)
	hours := fields["opening_hours"].(map[string]any)
	// nested scalars fill once; the stored monday times stay.
	monday := hours["monday"].(map[string]any)
	require.Equal(t, "09:00", monday["open"])
	require.Equal(t, "CLOSED", hours["sunday"])
	require.Equal(t, 0.9, conf.Get("opening_hours"))
}

func TestApplyField_CompositeReaffirmationNotChanged(t *testing.T) {
	fields := record.Fields{
		"opening_hours": map[string]any{"sunday": "CLOSED"},
	}
	conf := record.Confidence{"opening_hours": 0.8}

	changed := ApplyField(fields, &conf, "opening_hours", map[string]any{"sunday": "CLOSED"}, 0.6)

	require.False(t, changed)
	require.Equal(t, 0.8, conf.Get("opening_hours"))
}

func TestApplyUpdates_ReturnsSortedChangedFields(t *testing.T) {
	fields := record.Fields{}
	conf := record.Confidence{}

	changed := ApplyUpdates(fields, &conf, record.Fields{
		"phone": "+441315397071",
		"city":  "Edinburgh",
		"email": "info@club.example",
	}, record.Confidence{"phone": 0.9, "city": 0.8, "email": 0.7})

	require.Equal(t, []string{"city", "email", "phone"}, changed)
}

func TestApplyUpdates_Idempotent(t *testing.T) {
	fields := record.Fields{}
	conf := record.Confidence{}
	updates := record.Fields{"city": "Edinburgh", "latitude": 55.95326}
	confidences := record.Confidence{"city": 0.8, "latitude": 0.75}

	first := ApplyUpdates(fields, &conf, updates, confidences)
	require.Len(t, first, 2)

	second := ApplyUpdates(fields, &conf, updates, confidences)
	require.Empty(t, second)
	require.Equal(t, "Edinburgh", fields["city"])
	require.Equal(t, 0.8, conf.Get("city"))
}
