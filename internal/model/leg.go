package model

import (
	"fmt"
	"strconv"
	"strings"
)

// OptionType is the option side of a leg.
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// ExpiryClass selects which listed expiry a leg tracks.
type ExpiryClass string

const (
	Weekly  ExpiryClass = "WEEK"
	Monthly ExpiryClass = "MONTH"
)

// Leg identifies one option contract tracked independently:
// underlying + option type + expiry class + strike offset from ATM.
type Leg struct {
	Underlying   string      `json:"underlying"`
	OptionType   OptionType  `json:"option_type"`
	ExpiryClass  ExpiryClass `json:"expiry_class"`
	StrikeOffset int         `json:"strike_offset"`
}

// Key returns the canonical leg identifier, e.g. "NIFTY:CE:WEEK:+0".
func (l Leg) Key() string {
	off := Itoa(l.StrikeOffset)
	if l.StrikeOffset >= 0 {
		off = "+" + off
	}
	return l.Underlying + ":" + string(l.OptionType) + ":" + string(l.ExpiryClass) + ":" + off
}

func (l Leg) String() string { return l.Key() }

// ParseLeg parses the identifier produced by Leg.Key.
func ParseLeg(s string) (Leg, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return Leg{}, fmt.Errorf("leg %q: expected UNDERLYING:TYPE:EXPIRY:OFFSET", s)
	}
	leg := Leg{
		Underlying:  strings.ToUpper(parts[0]),
		OptionType:  OptionType(strings.ToUpper(parts[1])),
		ExpiryClass: ExpiryClass(strings.ToUpper(parts[2])),
	}
	if leg.Underlying == "" {
		return Leg{}, fmt.Errorf("leg %q: empty underlying", s)
	}
	if leg.OptionType != Call && leg.OptionType != Put {
		return Leg{}, fmt.Errorf("leg %q: option type must be CE or PE", s)
	}
	if leg.ExpiryClass != Weekly && leg.ExpiryClass != Monthly {
		return Leg{}, fmt.Errorf("leg %q: expiry class must be WEEK or MONTH", s)
	}
	off, err := strconv.Atoi(strings.TrimPrefix(parts[3], "+"))
	if err != nil {
		return Leg{}, fmt.Errorf("leg %q: strike offset: %w", s, err)
	}
	leg.StrikeOffset = off
	return leg, nil
}
