package fixed

import (
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/shopspring/decimal"
)

var (
	maxSigned = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minSigned = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Signed is a signed decimal with 18 fractional digits bounded to the i128
// range. It backs reward and slash accumulators whose tallies may go
// negative.
type Signed struct {
	inner *big.Int
}

func (s Signed) raw() *big.Int {
	if s.inner == nil {
		return new(big.Int)
	}
	return s.inner
}

func checkedSigned(v *big.Int) (Signed, error) {
	if v.Cmp(maxSigned) > 0 || v.Cmp(minSigned) < 0 {
		return Signed{}, ErrOverflow
	}
	return Signed{inner: v}, nil
}

// SignedFromInt lifts an integer amount.
func SignedFromInt(amount *big.Int) (Signed, error) {
	if amount == nil {
		return Signed{}, nil
	}
	return checkedSigned(new(big.Int).Mul(amount, accuracyBig))
}

// SignedFromUnsigned converts u into a signed value.
func SignedFromUnsigned(u Unsigned) Signed {
	return Signed{inner: u.Inner()}
}

// SignedRatio returns num/den truncated toward zero.
func SignedRatio(num, den *big.Int) (Signed, error) {
	if den == nil || den.Sign() == 0 {
		return Signed{}, ErrDivisionByZero
	}
	if num == nil {
		return Signed{}, nil
	}
	scaled := new(big.Int).Mul(num, accuracyBig)
	return checkedSigned(scaled.Quo(scaled, den))
}

func (s Signed) Inner() *big.Int { return new(big.Int).Set(s.raw()) }

func (s Signed) IsZero() bool { return s.raw().Sign() == 0 }

func (s Signed) Sign() int { return s.raw().Sign() }

func (s Signed) Cmp(o Signed) int { return s.raw().Cmp(o.raw()) }

func (s Signed) String() string {
	return decimal.NewFromBigInt(s.raw(), -Decimals).String()
}

func (s Signed) Add(o Signed) (Signed, error) {
	return checkedSigned(new(big.Int).Add(s.raw(), o.raw()))
}

func (s Signed) Sub(o Signed) (Signed, error) {
	return checkedSigned(new(big.Int).Sub(s.raw(), o.raw()))
}

// Mul multiplies two values, truncating toward zero.
func (s Signed) Mul(o Signed) (Signed, error) {
	product := new(big.Int).Mul(s.raw(), o.raw())
	return checkedSigned(product.Quo(product, accuracyBig))
}

func (s Signed) Div(o Signed) (Signed, error) {
	if o.IsZero() {
		return Signed{}, ErrDivisionByZero
	}
	scaled := new(big.Int).Mul(s.raw(), accuracyBig)
	return checkedSigned(scaled.Quo(scaled, o.raw()))
}

// MulInt multiplies by an integer amount without rounding.
func (s Signed) MulInt(amount *big.Int) (Signed, error) {
	if amount == nil {
		return Signed{}, nil
	}
	return checkedSigned(new(big.Int).Mul(s.raw(), amount))
}

// TruncInt drops the fractional part, rounding toward zero.
func (s Signed) TruncInt() *big.Int {
	return new(big.Int).Quo(s.raw(), accuracyBig)
}

// FloorInt rounds toward negative infinity.
func (s Signed) FloorInt() *big.Int {
	quo, rem := new(big.Int).QuoRem(s.raw(), accuracyBig, new(big.Int))
	if rem.Sign() < 0 {
		quo.Sub(quo, big.NewInt(1))
	}
	return quo
}

type signedRLP struct {
	Negative bool
	Abs      *big.Int
}

func (s Signed) EncodeRLP(w io.Writer) error {
	v := s.raw()
	return rlp.Encode(w, signedRLP{Negative: v.Sign() < 0, Abs: new(big.Int).Abs(v)})
}

func (s *Signed) DecodeRLP(stream *rlp.Stream) error {
	var enc signedRLP
	if err := stream.Decode(&enc); err != nil {
		return err
	}
	v := new(big.Int)
	if enc.Abs != nil {
		v.Set(enc.Abs)
	}
	if enc.Negative {
		v.Neg(v)
	}
	decoded, err := checkedSigned(v)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
