package fixed

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every fixed-point
// value.
const Decimals = 18

var (
	ErrOverflow       = errors.New("fixed: arithmetic overflow")
	ErrUnderflow      = errors.New("fixed: arithmetic underflow")
	ErrDivisionByZero = errors.New("fixed: division by zero")
	ErrNegative       = errors.New("fixed: negative value")
	ErrInvalidString  = errors.New("fixed: invalid decimal string")
)

var (
	accuracy    = uint256.NewInt(1_000_000_000_000_000_000)
	accuracyBig = accuracy.ToBig()
	// inner values are bounded to 128 bits so they fit the ledger's balance
	// width once multiplied back out.
	maxInner = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// Rounding selects how a fixed-point product is truncated to an integer.
type Rounding uint8

const (
	Floor Rounding = iota
	Ceil
)

// Unsigned is a non-negative decimal with 18 fractional digits. The zero
// value is 0 and every operation returns a fresh value.
type Unsigned struct {
	inner *uint256.Int
}

func (u Unsigned) raw() *uint256.Int {
	if u.inner == nil {
		return new(uint256.Int)
	}
	return u.inner
}

func bounded(v *uint256.Int) (Unsigned, error) {
	if v.Gt(maxInner) {
		return Unsigned{}, ErrOverflow
	}
	return Unsigned{inner: v}, nil
}

// Zero returns 0.
func Zero() Unsigned { return Unsigned{} }

// One returns 1.
func One() Unsigned { return Unsigned{inner: accuracy.Clone()} }

// FromInt lifts an integer into fixed point.
func FromInt(n uint64) Unsigned {
	v := new(uint256.Int).Mul(uint256.NewInt(n), accuracy)
	return Unsigned{inner: v}
}

// FromRational returns num/den rounded down.
func FromRational(num, den uint64) (Unsigned, error) {
	if den == 0 {
		return Unsigned{}, ErrDivisionByZero
	}
	v, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(num), accuracy, uint256.NewInt(den))
	if overflow {
		return Unsigned{}, ErrOverflow
	}
	return bounded(v)
}

// MustRational is FromRational for constants known to be valid.
func MustRational(num, den uint64) Unsigned {
	v, err := FromRational(num, den)
	if err != nil {
		panic(err)
	}
	return v
}

// RatioOf returns num/den for arbitrary integer amounts, rounded down.
func RatioOf(num, den *big.Int) (Unsigned, error) {
	if den == nil || den.Sign() == 0 {
		return Unsigned{}, ErrDivisionByZero
	}
	if num == nil {
		return Unsigned{}, nil
	}
	if num.Sign() < 0 || den.Sign() < 0 {
		return Unsigned{}, ErrNegative
	}
	scaled := new(big.Int).Mul(num, accuracyBig)
	scaled.Quo(scaled, den)
	return FromInner(scaled)
}

// FromInner wraps an already scaled integer.
func FromInner(inner *big.Int) (Unsigned, error) {
	if inner == nil {
		return Unsigned{}, nil
	}
	if inner.Sign() < 0 {
		return Unsigned{}, ErrNegative
	}
	v, overflow := uint256.FromBig(inner)
	if overflow {
		return Unsigned{}, ErrOverflow
	}
	return bounded(v)
}

// Parse reads a decimal string such as "1.5" or "0.005".
func Parse(s string) (Unsigned, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Unsigned{}, fmt.Errorf("%w: %v", ErrInvalidString, err)
	}
	if d.IsNegative() {
		return Unsigned{}, ErrNegative
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return Unsigned{}, fmt.Errorf("%w: more than %d decimals", ErrInvalidString, Decimals)
	}
	return FromInner(scaled.BigInt())
}

// MustParse is Parse for constants known to be valid.
func MustParse(s string) Unsigned {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Inner returns the scaled integer representation.
func (u Unsigned) Inner() *big.Int { return u.raw().ToBig() }

func (u Unsigned) IsZero() bool { return u.raw().IsZero() }

func (u Unsigned) Cmp(o Unsigned) int { return u.raw().Cmp(o.raw()) }

func (u Unsigned) String() string {
	return decimal.NewFromBigInt(u.Inner(), -Decimals).String()
}

func (u Unsigned) Add(o Unsigned) (Unsigned, error) {
	v, overflow := new(uint256.Int).AddOverflow(u.raw(), o.raw())
	if overflow {
		return Unsigned{}, ErrOverflow
	}
	return bounded(v)
}

func (u Unsigned) Sub(o Unsigned) (Unsigned, error) {
	v, underflow := new(uint256.Int).SubOverflow(u.raw(), o.raw())
	if underflow {
		return Unsigned{}, ErrUnderflow
	}
	return Unsigned{inner: v}, nil
}

// SaturatingSub returns max(u-o, 0).
func (u Unsigned) SaturatingSub(o Unsigned) Unsigned {
	if u.Cmp(o) <= 0 {
		return Unsigned{}
	}
	return Unsigned{inner: new(uint256.Int).Sub(u.raw(), o.raw())}
}

func (u Unsigned) Mul(o Unsigned) (Unsigned, error) {
	v, overflow := new(uint256.Int).MulDivOverflow(u.raw(), o.raw(), accuracy)
	if overflow {
		return Unsigned{}, ErrOverflow
	}
	return bounded(v)
}

func (u Unsigned) Div(o Unsigned) (Unsigned, error) {
	if o.IsZero() {
		return Unsigned{}, ErrDivisionByZero
	}
	v, overflow := new(uint256.Int).MulDivOverflow(u.raw(), accuracy, o.raw())
	if overflow {
		return Unsigned{}, ErrOverflow
	}
	return bounded(v)
}

// MulInt multiplies an integer amount by u and rounds the result to an
// integer in the requested direction.
func (u Unsigned) MulInt(amount *big.Int, rounding Rounding) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 || u.IsZero() {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegative
	}
	product := new(big.Int).Mul(amount, u.Inner())
	quo, rem := new(big.Int).QuoRem(product, accuracyBig, new(big.Int))
	if rounding == Ceil && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if quo.BitLen() > 128 {
		return nil, ErrOverflow
	}
	return quo, nil
}

// DivInt returns floor(amount / u).
func (u Unsigned) DivInt(amount *big.Int) (*big.Int, error) {
	if u.IsZero() {
		return nil, ErrDivisionByZero
	}
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegative
	}
	scaled := new(big.Int).Mul(amount, accuracyBig)
	scaled.Quo(scaled, u.Inner())
	if scaled.BitLen() > 128 {
		return nil, ErrOverflow
	}
	return scaled, nil
}

// Max returns the larger of a and b.
func Max(a, b Unsigned) Unsigned {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Unsigned) Unsigned {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// EncodeRLP stores the scaled integer.
func (u Unsigned) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, u.Inner())
}

func (u *Unsigned) DecodeRLP(s *rlp.Stream) error {
	inner, err := s.BigInt()
	if err != nil {
		return err
	}
	decoded, err := FromInner(inner)
	if err != nil {
		return err
	}
	*u = decoded
	return nil
}

// MarshalText renders the decimal form for JSON documents.
func (u Unsigned) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *Unsigned) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
