package model

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestLegKeyRoundTrip(t *testing.T) {
	legs := []Leg{
		{Underlying: "NIFTY", OptionType: Call, ExpiryClass: Weekly, StrikeOffset: 0},
		{Underlying: "BANKNIFTY", OptionType: Put, ExpiryClass: Monthly, StrikeOffset: -2},
		{Underlying: "SENSEX", OptionType: Call, ExpiryClass: Weekly, StrikeOffset: 3},
	}
	for _, leg := range legs {
		parsed, err := ParseLeg(leg.Key())
		assert.NoError(t, err)
		assert.Equal(t, leg, parsed)
	}
	assert.Equal(t, "NIFTY:CE:WEEK:+0", legs[0].Key())
	assert.Equal(t, "BANKNIFTY:PE:MONTH:-2", legs[1].Key())
}

func TestParseLegRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "NIFTY", "NIFTY:XX:WEEK:0", "NIFTY:CE:DAY:0", "NIFTY:CE:WEEK:x", ":CE:WEEK:0"} {
		_, err := ParseLeg(s)
		assert.Error(t, err)
	}
}

func TestPaiseConversion(t *testing.T) {
	assert.Equal(t, "150.5", Rupees(15050).String())
	assert.Equal(t, int64(15803), Paise(Rupees(15050).Mul(Rupees(105))))
	assert.Equal(t, int64(-1), Paise(Rupees(-1)))
}
