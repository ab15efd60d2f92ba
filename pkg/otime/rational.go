package otime

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

// Rate is a rational frame (or sample) rate in units per second.
type Rate struct {
	Num int64
	Den int64
}

var (
	Rate24     = Rate{24, 1}
	Rate25     = Rate{25, 1}
	Rate30     = Rate{30, 1}
	Rate48     = Rate{48, 1}
	Rate50     = Rate{50, 1}
	Rate60     = Rate{60, 1}
	Rate23_976 = Rate{24000, 1001}
	Rate29_97  = Rate{30000, 1001}
	Rate47_952 = Rate{48000, 1001}
	Rate59_94  = Rate{60000, 1001}
)

// ntscRates are recovered exactly from their float approximation
var ntscRates = []Rate{Rate23_976, Rate29_97, Rate47_952, Rate59_94, {120000, 1001}}

// NewRate returns the normalized rate num/den
func NewRate(num, den int64) Rate {
	if den == 0 {
		return Rate{}
	}
	if den < 0 {
		num, den = -num, -den
	}
	g := gcd(abs(num), den)
	if g > 1 {
		num /= g
		den /= g
	}
	return Rate{Num: num, Den: den}
}

// RateFromFloat converts a float rate, mapping NTSC approximations back to x000/1001
func RateFromFloat(f float64) Rate {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return Rate{}
	}
	for _, r := range ntscRates {
		if math.Abs(r.Float()-f) < 0.001 {
			return r
		}
	}
	if math.Abs(f-math.Round(f)) < 1e-9 {
		return Rate{int64(math.Round(f)), 1}
	}
	return NewRate(int64(math.Round(f*1000)), 1000)
}

func (r Rate) IsValid() bool {
	return r.Num > 0 && r.Den > 0
}

func (r Rate) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Equal compares the reduced fractions
func (r Rate) Equal(o Rate) bool {
	return NewRate(r.Num, r.Den) == NewRate(o.Num, o.Den)
}

// Less reports whether r is a slower rate than o
func (r Rate) Less(o Rate) bool {
	return r.Num*o.Den < o.Num*r.Den
}

// FrameDuration is the wall time covered by a single unit at this rate
func (r Rate) FrameDuration() time.Duration {
	if !r.IsValid() {
		return 0
	}
	return time.Duration(mulDivRound(int64(time.Second), r.Den, r.Num))
}

func (r Rate) String() string {
	if r.Den == 1 {
		return fmt.Sprintf("%d", r.Num)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// RationalTime is Value units of Rate
type RationalTime struct {
	Value int64
	Rate  Rate
}

func New(value int64, rate Rate) RationalTime {
	return RationalTime{Value: value, Rate: rate}
}

// FromSeconds returns the nearest unit at rate, halves go to even
func FromSeconds(s float64, rate Rate) RationalTime {
	return RationalTime{Value: int64(math.RoundToEven(s * rate.Float())), Rate: rate}
}

// FromDuration converts a duration to the nearest unit at rate
func FromDuration(d time.Duration, rate Rate) RationalTime {
	if !rate.IsValid() {
		return RationalTime{Rate: rate}
	}
	return RationalTime{Value: mulDivRound(int64(d), rate.Num, rate.Den*int64(time.Second)), Rate: rate}
}

func (t RationalTime) IsValid() bool {
	return t.Rate.IsValid()
}

func (t RationalTime) ToSeconds() float64 {
	if !t.Rate.IsValid() {
		return 0
	}
	return float64(t.Value) * float64(t.Rate.Den) / float64(t.Rate.Num)
}

func (t RationalTime) ToDuration() time.Duration {
	if !t.Rate.IsValid() {
		return 0
	}
	return time.Duration(mulDivRound(t.Value, t.Rate.Den*int64(time.Second), t.Rate.Num))
}

// RescaledTo converts to rate, rounding halves to even
func (t RationalTime) RescaledTo(rate Rate) RationalTime {
	if t.Rate == rate || !t.Rate.IsValid() || !rate.IsValid() {
		return RationalTime{Value: t.Value, Rate: rate}
	}
	return RationalTime{Value: mulDivRound(t.Value, rate.Num*t.Rate.Den, rate.Den*t.Rate.Num), Rate: rate}
}

// FloorTo converts to rate, selecting the unit at or immediately preceding t
func (t RationalTime) FloorTo(rate Rate) RationalTime {
	if t.Rate == rate || !t.Rate.IsValid() || !rate.IsValid() {
		return RationalTime{Value: t.Value, Rate: rate}
	}
	return RationalTime{Value: mulDivFloor(t.Value, rate.Num*t.Rate.Den, rate.Den*t.Rate.Num), Rate: rate}
}

// common picks the faster of both rates so that no precision is lost for the finer operand
func common(a, b Rate) Rate {
	if !a.IsValid() {
		return b
	}
	if !b.IsValid() || b.Less(a) {
		return a
	}
	return b
}

func (t RationalTime) Add(o RationalTime) RationalTime {
	if t.Rate == o.Rate {
		return RationalTime{Value: t.Value + o.Value, Rate: t.Rate}
	}
	r := common(t.Rate, o.Rate)
	return RationalTime{Value: t.RescaledTo(r).Value + o.RescaledTo(r).Value, Rate: r}
}

func (t RationalTime) Sub(o RationalTime) RationalTime {
	return t.Add(o.Neg())
}

func (t RationalTime) Neg() RationalTime {
	return RationalTime{Value: -t.Value, Rate: t.Rate}
}

// Compare returns -1, 0 or +1 comparing the exact instants
func (t RationalTime) Compare(o RationalTime) int {
	if t.Rate == o.Rate {
		switch {
		case t.Value < o.Value:
			return -1
		case t.Value > o.Value:
			return 1
		}
		return 0
	}
	if !t.Rate.IsValid() || !o.Rate.IsValid() {
		return big.NewInt(t.Value).Cmp(big.NewInt(o.Value))
	}
	// t.Value*t.Den/t.Num <=> o.Value*o.Den/o.Num, rates are positive
	l := new(big.Int).Mul(big.NewInt(t.Value), big.NewInt(t.Rate.Den*o.Rate.Num))
	r := new(big.Int).Mul(big.NewInt(o.Value), big.NewInt(o.Rate.Den*t.Rate.Num))
	return l.Cmp(r)
}

func (t RationalTime) Equal(o RationalTime) bool  { return t.Compare(o) == 0 }
func (t RationalTime) Before(o RationalTime) bool { return t.Compare(o) < 0 }
func (t RationalTime) After(o RationalTime) bool  { return t.Compare(o) > 0 }

func (t RationalTime) IsZero() bool {
	return t.Value == 0
}

func (t RationalTime) String() string {
	return fmt.Sprintf("%d@%s", t.Value, t.Rate)
}

func Min(a, b RationalTime) RationalTime {
	if b.Before(a) {
		return b
	}
	return a
}

func Max(a, b RationalTime) RationalTime {
	if b.After(a) {
		return b
	}
	return a
}

// mulDivRound returns v*mul/div rounded to nearest, halves to even
func mulDivRound(v, mul, div int64) int64 {
	if mul%div == 0 {
		return v * (mul / div)
	}
	n := new(big.Int).Mul(big.NewInt(v), big.NewInt(mul))
	d := big.NewInt(div)
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	if r.Sign() == 0 {
		return q.Int64()
	}
	twice := new(big.Int).Abs(r)
	twice.Lsh(twice, 1)
	c := twice.Cmp(new(big.Int).Abs(d))
	if c > 0 || (c == 0 && q.Bit(0) == 1) {
		if n.Sign()*d.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

// mulDivFloor returns floor(v*mul/div) for div > 0
func mulDivFloor(v, mul, div int64) int64 {
	n := new(big.Int).Mul(big.NewInt(v), big.NewInt(mul))
	return new(big.Int).Div(n, big.NewInt(div)).Int64()
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}
