package types

import (
	"encoding/json"
	"testing"
)

func TestParseCurrencyIDRoundTrip(t *testing.T) {
	cases := []CurrencyID{Native(), Wrapped(), Token("dot"), LendToken(7), Foreign(3)}
	for _, c := range cases {
		parsed, err := ParseCurrencyID(c.String())
		if err != nil {
			t.Fatalf("parse %s: %v", c, err)
		}
		if parsed != c {
			t.Fatalf("round trip mismatch: %+v vs %+v", parsed, c)
		}
		if err := parsed.Validate(); err != nil {
			t.Fatalf("validate %s: %v", c, err)
		}
	}
	if _, err := ParseCurrencyID("token:"); err == nil {
		t.Fatalf("expected error for empty token symbol")
	}
	if _, err := ParseCurrencyID("lend:x"); err == nil {
		t.Fatalf("expected error for non numeric lend id")
	}
}

func TestVaultIDKeysDistinguishPairs(t *testing.T) {
	var acct AccountID
	acct[0] = 1
	a := NewVaultID(acct, Token("DOT"), Wrapped())
	b := NewVaultID(acct, Token("KSM"), Wrapped())
	if string(a.Bytes()) == string(b.Bytes()) {
		t.Fatalf("vault keys collide across pairs")
	}
	if a == b {
		t.Fatalf("vault ids should differ")
	}
}

func TestAccountIDJSON(t *testing.T) {
	var acct AccountID
	acct[19] = 0xaa
	raw, err := json.Marshal(map[string]AccountID{"a": acct})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]AccountID
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["a"] != acct {
		t.Fatalf("account mismatch")
	}
}
