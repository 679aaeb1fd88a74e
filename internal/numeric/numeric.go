// Package numeric provides fixed-point scalars and decimal conversion helpers.
package numeric

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/praveen686/omlaxmiquant/internal/errs"
)

// Scale is the fixed-point multiplier shared by Price and Qty.
const Scale = 10_000

// ScaleDigits is the number of fractional digits encoded by Scale.
const ScaleDigits = 4

// Price is a fixed-point price scaled by Scale.
type Price int64

// Qty is a fixed-point quantity scaled by Scale.
type Qty int64

// Sentinels marking unset scalars.
const (
	PriceInvalid Price = math.MaxInt64
	QtyInvalid   Qty   = math.MaxInt64
)

// Valid reports whether p carries a real value.
func (p Price) Valid() bool { return p != PriceInvalid }

// Valid reports whether q carries a real value.
func (q Qty) Valid() bool { return q != QtyInvalid }

// Decimal converts p to its decimal representation.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -ScaleDigits)
}

// Decimal converts q to its decimal representation.
func (q Qty) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -ScaleDigits)
}

// String renders p as a decimal string without trailing zeros.
func (p Price) String() string {
	if !p.Valid() {
		return "INVALID"
	}
	return p.Decimal().String()
}

// String renders q as a decimal string without trailing zeros.
func (q Qty) String() string {
	if !q.Valid() {
		return "INVALID"
	}
	return q.Decimal().String()
}

// Fixed renders p with exactly places fractional digits, as exchange APIs expect.
func (p Price) Fixed(places int32) string {
	return p.Decimal().StringFixed(places)
}

// Fixed renders q with exactly places fractional digits.
func (q Qty) Fixed(places int32) string {
	return q.Decimal().StringFixed(places)
}

// PriceFromString parses a decimal string into a fixed-point price.
// Conversion is exact rational arithmetic; sub-scale digits round to nearest.
func PriceFromString(s string) (Price, error) {
	v, err := fixedFromString(s)
	if err != nil {
		return PriceInvalid, err
	}
	return Price(v), nil
}

// QtyFromString parses a decimal string into a fixed-point quantity.
func QtyFromString(s string) (Qty, error) {
	v, err := fixedFromString(s)
	if err != nil {
		return QtyInvalid, err
	}
	return Qty(v), nil
}

// PriceFromDecimal converts d to a fixed-point price, rounding to Scale.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Shift(ScaleDigits).Round(0).IntPart())
}

// QtyFromDecimal converts d to a fixed-point quantity, rounding to Scale.
func QtyFromDecimal(d decimal.Decimal) Qty {
	return Qty(d.Shift(ScaleDigits).Round(0).IntPart())
}

func fixedFromString(s string) (int64, error) {
	r, ok := Parse(s)
	if !ok {
		return 0, errs.New("numeric/parse", errs.CodeProtocol, errs.WithMessage("malformed decimal: "+s))
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt64(Scale))
	num := new(big.Int).Abs(scaled.Num())
	den := scaled.Denom()
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	// Round half away from zero on the sub-scale remainder.
	if new(big.Int).Lsh(rem, 1).Cmp(den) >= 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if !quo.IsInt64() {
		return 0, errs.New("numeric/parse", errs.CodeProtocol, errs.WithMessage("decimal overflows fixed point: "+s))
	}
	v := quo.Int64()
	if scaled.Sign() < 0 {
		v = -v
	}
	return v, nil
}

// Format converts r into a fixed-scale decimal string rounded toward zero.
// When r is nil the empty string is returned.
func Format(r *big.Rat, scale int) string {
	if r == nil {
		return ""
	}
	pow10 := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(pow10))
	i := new(big.Int)
	if scaled.Sign() >= 0 {
		i.Div(scaled.Num(), scaled.Denom())
	} else {
		tmp := new(big.Int).Div(new(big.Int).Abs(scaled.Num()), scaled.Denom())
		i.Neg(tmp)
	}
	s := i.String()
	if scale == 0 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= scale {
		s = strings.Repeat("0", scale-len(s)+1) + s
	}
	dot := len(s) - scale
	out := s[:dot] + "." + s[dot:]
	if neg {
		out = "-" + out
	}
	return out
}

// Parse converts a decimal string into a rational number.
// On failure, it returns (nil, false).
func Parse(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	r := new(big.Rat)
	if _, ok := r.SetString(s); !ok {
		return nil, false
	}
	return r, true
}

// ScaleFromStep derives the effective fractional precision from a decimal "step" string.
func ScaleFromStep(step string) int {
	step = strings.TrimSpace(step)
	if step == "" {
		return 0
	}
	idx := strings.IndexByte(step, '.')
	if idx < 0 {
		return 0
	}
	frac := strings.TrimRight(step[idx+1:], "0")
	return len(frac)
}
