// Package normalize canonicalizes contact and location values before they hit
// the confidence gate, so representation drift between sources does not
// register as a field change.
package normalize

import (
	"math"

	"github.com/nyaruka/phonenumbers"
)

// CoordinatePrecision is the number of decimal places kept on stored
// latitude/longitude values.
const CoordinatePrecision = 5

// Phone formats a phone number as E.164 when it parses as a valid number for
// the given region. Unparseable or invalid input is returned verbatim —
// a wrong-looking number is still a fact worth keeping.
func Phone(raw, region string) string {
	if raw == "" {
		return raw
	}

	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return raw
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return raw
	}

	return phonenumbers.Format(parsed, phonenumbers.E164)
}

// Coordinate rounds a latitude or longitude to CoordinatePrecision decimal
// places for consistent deduplication and display.
func Coordinate(value float64) float64 {
	scale := math.Pow10(CoordinatePrecision)
	return math.Round(value*scale) / scale
}
