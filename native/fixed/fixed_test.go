package fixed

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func TestParseAndString(t *testing.T) {
	v, err := Parse("1.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.String() != "1.5" {
		t.Fatalf("unexpected string %s", v)
	}
	if v.Cmp(MustRational(3, 2)) != 0 {
		t.Fatalf("parse disagrees with rational")
	}
	if _, err := Parse("-1"); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected negative error, got %v", err)
	}
	if _, err := Parse("0.0000000000000000001"); !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected precision error, got %v", err)
	}
}

func TestMulIntRounding(t *testing.T) {
	rate := MustParse("0.005")
	floor, err := rate.MulInt(big.NewInt(250), Floor)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if floor.Int64() != 1 {
		t.Fatalf("floor: got %s", floor)
	}
	ceil, err := rate.MulInt(big.NewInt(250), Ceil)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if ceil.Int64() != 2 {
		t.Fatalf("ceil: got %s", ceil)
	}
	exact, err := MustParse("1.5").MulInt(big.NewInt(200), Ceil)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if exact.Int64() != 300 {
		t.Fatalf("exact product should not round up, got %s", exact)
	}
}

func TestDivIntAndDivisionByZero(t *testing.T) {
	got, err := FromInt(2).DivInt(big.NewInt(7))
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if got.Int64() != 3 {
		t.Fatalf("expected 3, got %s", got)
	}
	if _, err := Zero().DivInt(big.NewInt(1)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := One().Div(Zero()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestUnsignedOverflow(t *testing.T) {
	huge, err := FromInner(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))
	if err != nil {
		t.Fatalf("max inner should be accepted: %v", err)
	}
	if _, err := huge.Add(One()); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := FromInner(new(big.Int).Lsh(big.NewInt(1), 128)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Zero().Sub(One()); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if !Zero().SaturatingSub(One()).IsZero() {
		t.Fatalf("saturating sub should clamp to zero")
	}
}

func TestMulDiv(t *testing.T) {
	a := MustParse("1.5")
	b := MustParse("0.05")
	product, err := a.Mul(b)
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if product.String() != "0.075" {
		t.Fatalf("unexpected product %s", product)
	}
	quotient, err := a.Div(b)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if quotient.String() != "30" {
		t.Fatalf("unexpected quotient %s", quotient)
	}
}

func TestSignedArithmetic(t *testing.T) {
	rpt, err := SignedRatio(big.NewInt(1), big.NewInt(4))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	tally, err := rpt.MulInt(big.NewInt(-10))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if tally.String() != "-2.5" {
		t.Fatalf("unexpected tally %s", tally)
	}
	if tally.TruncInt().Int64() != -2 {
		t.Fatalf("trunc: %s", tally.TruncInt())
	}
	if tally.FloorInt().Int64() != -3 {
		t.Fatalf("floor: %s", tally.FloorInt())
	}
	if _, err := SignedFromInt(new(big.Int).Lsh(big.NewInt(1), 120)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestRLPEncoding(t *testing.T) {
	type record struct {
		Rate  Unsigned
		Tally Signed
	}
	tally, _ := SignedFromInt(big.NewInt(-42))
	in := record{Rate: MustParse("1.35"), Tally: tally}
	raw, err := rlp.EncodeToBytes(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out record
	if err := rlp.DecodeBytes(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Rate.Cmp(in.Rate) != 0 || out.Tally.Cmp(in.Tally) != 0 {
		t.Fatalf("rlp mismatch: %s %s", out.Rate, out.Tally)
	}
}
