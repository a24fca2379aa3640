package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "vb1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Prefix() != AccountPrefix || !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestPrivateKeyRestore(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if restored.PubKey().Address() != key.PubKey().Address() {
		t.Fatalf("restored key derives a different address")
	}
	compressed := key.PubKey().SerializeCompressed()
	if len(compressed) != 33 || (compressed[0] != 0x02 && compressed[0] != 0x03) {
		t.Fatalf("unexpected compressed key %x", compressed)
	}
	if _, err := PrivateKeyFromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
	if _, err := PrivateKeyFromHex("zz"); err == nil {
		t.Fatalf("expected bad hex to be rejected")
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	a := ModuleAddress("fee-pool")
	b := ModuleAddress("fee-pool")
	c := ModuleAddress("treasury")
	if a.String() != b.String() {
		t.Fatalf("module address not deterministic")
	}
	if a.String() == c.String() {
		t.Fatalf("distinct modules share an address")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("vb1notanaddress"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}
