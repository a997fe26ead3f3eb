package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents)
type Money int64

const moneyScale = 2

// ParseMoney parses a decimal amount such as "12.50" into Money.
// More than two fractional digits are rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts a decimal amount into Money
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(moneyScale)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %s has more than %d decimal places", ErrValidation, d, moneyScale)
	}
	if cents.Abs().GreaterThan(decimal.New(1, 15)) {
		return 0, fmt.Errorf("%w: amount %s out of range", ErrValidation, d)
	}
	return Money(cents.IntPart()), nil
}

// Decimal returns the amount in major units
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -moneyScale)
}

// Times multiplies a unit price by a quantity
func (m Money) Times(qty int) Money {
	return m * Money(qty)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(moneyScale)
}

// MarshalJSON renders money as a decimal string so clients never see float rounding
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: invalid amount", ErrValidation)
		}
		s = n.String()
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalCSV renders money for CSV reports
func (m Money) MarshalCSV() (string, error) {
	return m.String(), nil
}
