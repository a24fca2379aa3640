package types

import (
	"fmt"
	"strconv"
	"strings"
)

// CurrencyKind tags the variant of a CurrencyID.
type CurrencyKind uint8

const (
	CurrencyNative CurrencyKind = iota
	CurrencyWrapped
	CurrencyToken
	CurrencyLendToken
	CurrencyForeign
)

// CurrencyID is a tagged union over every asset the ledger tracks. Symbol is
// only set for tokens, ID only for lend and foreign assets.
type CurrencyID struct {
	Kind   CurrencyKind
	Symbol string
	ID     uint32
}

func Native() CurrencyID  { return CurrencyID{Kind: CurrencyNative} }
func Wrapped() CurrencyID { return CurrencyID{Kind: CurrencyWrapped} }

func Token(symbol string) CurrencyID {
	return CurrencyID{Kind: CurrencyToken, Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

func LendToken(id uint32) CurrencyID { return CurrencyID{Kind: CurrencyLendToken, ID: id} }
func Foreign(id uint32) CurrencyID   { return CurrencyID{Kind: CurrencyForeign, ID: id} }

func (c CurrencyID) IsWrapped() bool { return c.Kind == CurrencyWrapped }

// Validate reports whether the variant carries the payload it requires.
func (c CurrencyID) Validate() error {
	switch c.Kind {
	case CurrencyNative, CurrencyWrapped:
		if c.Symbol != "" || c.ID != 0 {
			return fmt.Errorf("currency %d carries unexpected payload", c.Kind)
		}
	case CurrencyToken:
		if c.Symbol == "" {
			return fmt.Errorf("token currency requires a symbol")
		}
	case CurrencyLendToken, CurrencyForeign:
		if c.Symbol != "" {
			return fmt.Errorf("currency %d carries unexpected symbol", c.Kind)
		}
	default:
		return fmt.Errorf("unknown currency kind %d", c.Kind)
	}
	return nil
}

func (c CurrencyID) String() string {
	switch c.Kind {
	case CurrencyNative:
		return "native"
	case CurrencyWrapped:
		return "wrapped"
	case CurrencyToken:
		return "token:" + c.Symbol
	case CurrencyLendToken:
		return "lend:" + strconv.FormatUint(uint64(c.ID), 10)
	case CurrencyForeign:
		return "foreign:" + strconv.FormatUint(uint64(c.ID), 10)
	default:
		return "unknown"
	}
}

// Bytes returns the canonical key encoding of the currency.
func (c CurrencyID) Bytes() []byte { return []byte(c.String()) }

// ParseCurrencyID is the inverse of String.
func ParseCurrencyID(s string) (CurrencyID, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	switch trimmed {
	case "native":
		return Native(), nil
	case "wrapped":
		return Wrapped(), nil
	}
	kind, payload, ok := strings.Cut(trimmed, ":")
	if !ok || payload == "" {
		return CurrencyID{}, fmt.Errorf("invalid currency %q", s)
	}
	switch kind {
	case "token":
		return Token(payload), nil
	case "lend", "foreign":
		id, err := strconv.ParseUint(payload, 10, 32)
		if err != nil {
			return CurrencyID{}, fmt.Errorf("invalid currency %q: %w", s, err)
		}
		if kind == "lend" {
			return LendToken(uint32(id)), nil
		}
		return Foreign(uint32(id)), nil
	default:
		return CurrencyID{}, fmt.Errorf("invalid currency %q", s)
	}
}

func (c CurrencyID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CurrencyID) UnmarshalText(text []byte) error {
	parsed, err := ParseCurrencyID(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// VaultCurrencyPair couples a collateral currency with the wrapped currency it
// backs.
type VaultCurrencyPair struct {
	Collateral CurrencyID
	Wrapped    CurrencyID
}

func (p VaultCurrencyPair) String() string {
	return p.Collateral.String() + "/" + p.Wrapped.String()
}

func (p VaultCurrencyPair) Bytes() []byte { return []byte(p.String()) }

// VaultID identifies a vault: one account may run a vault per pair.
type VaultID struct {
	AccountID  AccountID
	Currencies VaultCurrencyPair
}

func NewVaultID(account AccountID, collateral, wrapped CurrencyID) VaultID {
	return VaultID{AccountID: account, Currencies: VaultCurrencyPair{Collateral: collateral, Wrapped: wrapped}}
}

func (v VaultID) CollateralCurrency() CurrencyID { return v.Currencies.Collateral }
func (v VaultID) WrappedCurrency() CurrencyID    { return v.Currencies.Wrapped }

func (v VaultID) String() string {
	return v.AccountID.String() + "@" + v.Currencies.String()
}

func (v VaultID) Bytes() []byte {
	buf := make([]byte, 0, 20+len(v.Currencies.String()))
	buf = append(buf, v.AccountID[:]...)
	return append(buf, v.Currencies.Bytes()...)
}
