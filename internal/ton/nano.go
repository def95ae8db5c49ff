package ton

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const tonDecimals = 9

// ErrInvalidAmount is returned for amounts that are not positive or have more than 9 decimals.
var ErrInvalidAmount = errors.New("invalid TON amount")

// Nano is an integer amount of nano-TON (1 TON = 1e9 nano).
type Nano struct {
	d decimal.Decimal
}

// ParseTON parses a decimal TON amount such as "1.5".
func ParseTON(s string) (Nano, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Nano{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return fromDecimal(d.Shift(tonDecimals), s)
}

// ParseNano parses an integer nano-TON string as returned by the TON API.
func ParseNano(s string) (Nano, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Nano{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsInteger() || d.IsNegative() {
		return Nano{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Nano{d: d}, nil
}

// FromTON converts a float TON amount, rounding to the nearest nano.
func FromTON(ton float64) Nano {
	return Nano{d: decimal.NewFromFloat(ton).Shift(tonDecimals).Round(0)}
}

func fromDecimal(nano decimal.Decimal, input string) (Nano, error) {
	if !nano.IsPositive() || !nano.IsInteger() {
		return Nano{}, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}
	return Nano{d: nano}, nil
}

// String is the integer nano-TON string expected by wallet bridges.
func (n Nano) String() string { return n.d.StringFixed(0) }

// TON formats the amount in TON without trailing zeros.
func (n Nano) TON() string { return n.d.Shift(-tonDecimals).String() }

// Float64 returns the amount in TON.
func (n Nano) Float64() float64 {
	f, _ := n.d.Shift(-tonDecimals).Float64()
	return f
}

func (n Nano) IsZero() bool { return n.d.IsZero() }

func (n Nano) MarshalJSON() ([]byte, error) {
	return []byte(`"` + n.String() + `"`), nil
}

// FormatUnits renders a raw integer token amount with the given number of decimals.
func FormatUnits(raw string, decimals int) (string, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d.Shift(int32(-decimals)).String(), nil
}
