package ledger

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Decimals serialize as JSON numbers, the same as Amount.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Amount is a monetary value expressed in the reporting currency.
// The zero value is a valid zero amount.
type Amount struct {
	d decimal.Decimal
}

// NewAmount wraps a decimal that is already in the reporting currency.
func NewAmount(d decimal.Decimal) Amount { return Amount{d: d} }

// AmountFromFloat is a convenience for literals and decoded YAML numbers.
func AmountFromFloat(f float64) Amount { return Amount{d: decimal.NewFromFloat(f)} }

func (a Amount) Decimal() decimal.Decimal          { return a.d }
func (a Amount) Add(b Amount) Amount               { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount               { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Mul(shares decimal.Decimal) Amount { return Amount{d: a.d.Mul(shares)} }
func (a Amount) Neg() Amount                       { return Amount{d: a.d.Neg()} }
func (a Amount) Equal(b Amount) bool               { return a.d.Equal(b.d) }
func (a Amount) LessThan(b Amount) bool            { return a.d.LessThan(b.d) }
func (a Amount) GreaterThan(b Amount) bool         { return a.d.GreaterThan(b.d) }
func (a Amount) IsZero() bool                      { return a.d.IsZero() }
func (a Amount) IsNegative() bool                  { return a.d.IsNegative() }
func (a Amount) IsPositive() bool                  { return a.d.IsPositive() }
func (a Amount) String() string                    { return a.d.String() }

// Float64 is meant for display and CSV output only; arithmetic stays in decimal.
func (a Amount) Float64() float64 { return a.d.InexactFloat64() }

// MarshalJSON encodes the amount as a bare JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	return a.d.UnmarshalJSON(b)
}

// percentOf returns part/base*100 rounded to 4 places, or zero for a zero base.
func percentOf(part, base Amount) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return part.d.Div(base.d).Mul(hundred).Round(4)
}

// Format renders an amount with the symbol and separators of currency,
// e.g. "€1,234.56". Unknown currency codes fall back to "1234.56 XYZ".
func Format(a Amount, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return fmt.Sprintf("%s %s", a.d.StringFixed(2), currency)
	}
	minor := a.d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// FormatSigned is Format with an explicit "+" on positive amounts.
func FormatSigned(a Amount, currency string) string {
	if a.IsPositive() {
		return "+" + Format(a, currency)
	}
	return Format(a, currency)
}

// Converter normalizes native instrument prices into the reporting currency.
type Converter struct {
	Base string
	// Rates holds units of Base per one unit of the keyed currency.
	Rates map[string]decimal.Decimal
}

// Supports reports whether amounts in currency can be converted.
func (c Converter) Supports(currency string) bool {
	cur := strings.ToUpper(currency)
	if cur == "" || cur == strings.ToUpper(c.Base) {
		return true
	}
	_, ok := c.Rates[cur]
	return ok
}

// Convert turns a native price quoted in currency into a reporting Amount.
// An empty currency is read as the base currency.
func (c Converter) Convert(native decimal.Decimal, currency string) (Amount, error) {
	cur := strings.ToUpper(currency)
	if cur == "" || cur == strings.ToUpper(c.Base) {
		return Amount{d: native}, nil
	}
	rate, ok := c.Rates[cur]
	if !ok {
		return Amount{}, fmt.Errorf("no %s rate for %s", c.Base, cur)
	}
	return Amount{d: native.Mul(rate)}, nil
}
