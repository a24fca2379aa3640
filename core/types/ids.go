package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"vaultbridge/crypto"
)

// AccountID identifies an account on the ledger.
type AccountID [20]byte

// AccountFromAddress converts a bech32 address into an AccountID.
func AccountFromAddress(addr crypto.Address) AccountID {
	var id AccountID
	copy(id[:], addr.Bytes())
	return id
}

// ParseAccountID decodes a bech32 encoded account.
func ParseAccountID(s string) (AccountID, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(s))
	if err != nil {
		return AccountID{}, err
	}
	if addr.Prefix() != crypto.AccountPrefix {
		return AccountID{}, fmt.Errorf("unexpected address prefix %q", addr.Prefix())
	}
	return AccountFromAddress(addr), nil
}

func (a AccountID) String() string {
	return crypto.NewAddress(crypto.AccountPrefix, a).String()
}

func (a AccountID) Bytes() []byte { return a[:] }

func (a AccountID) IsZero() bool { return a == AccountID{} }

// MarshalText renders the account as bech32 for JSON documents.
func (a AccountID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccountID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// H256 is a 32-byte identifier, used for request ids and block hashes.
type H256 [32]byte

func (h H256) String() string { return hex.EncodeToString(h[:]) }

func (h H256) Bytes() []byte { return h[:] }

func (h H256) IsZero() bool { return h == H256{} }

// ParseH256 decodes a hex string with or without 0x prefix.
func ParseH256(s string) (H256, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return H256{}, err
	}
	if len(raw) != 32 {
		return H256{}, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	var h H256
	copy(h[:], raw)
	return h, nil
}
