package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part of a bech32 address.
type AddressPrefix string

// AccountPrefix is used for every account on the ledger.
const AccountPrefix AddressPrefix = "vb"

var ErrInvalidAddress = errors.New("crypto: invalid address")

// Address is a 20-byte account address with a bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  [20]byte
}

func NewAddress(prefix AddressPrefix, b [20]byte) Address {
	return Address{prefix: prefix, bytes: b}
}

func (a Address) String() string {
	encoded, err := bech32.EncodeFromBase256(string(a.prefix), a.bytes[:])
	if err != nil {
		return ""
	}
	return encoded
}

func (a Address) Bytes() []byte { return append([]byte(nil), a.bytes[:]...) }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

func DecodeAddress(s string) (Address, error) {
	prefix, decoded, err := bech32.DecodeToBase256(strings.TrimSpace(s))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(decoded) != 20 {
		return Address{}, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(decoded))
	}
	var b [20]byte
	copy(b[:], decoded)
	return NewAddress(AddressPrefix(prefix), b), nil
}

// ModuleAddress derives a deterministic account for protocol-owned funds
// (fee pool, liquidation vault, treasury defaults).
func ModuleAddress(name string) Address {
	digest := crypto.Keccak256([]byte("module:" + name))
	var b [20]byte
	copy(b[:], digest[12:])
	return NewAddress(AccountPrefix, b)
}

// --- Operator keys ---

// PrivateKey is a secp256k1 operator key. The same key names the operator's
// account and, compressed, is the bitcoin key its vaults derive deposit
// addresses from.
type PrivateKey struct {
	key *btcec.PrivateKey
}

type PublicKey struct {
	key *btcec.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("crypto: private key must be %d bytes", btcec.PrivKeyBytesLen)
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key: %w", err)
	}
	return PrivateKeyFromBytes(raw)
}

// Bytes returns the 32-byte scalar of the key.
func (k *PrivateKey) Bytes() []byte { return k.key.Serialize() }

func (k *PrivateKey) PubKey() *PublicKey { return &PublicKey{key: k.key.PubKey()} }

// SerializeCompressed returns the 33-byte SEC encoding registered as a
// vault's bitcoin public key.
func (k *PublicKey) SerializeCompressed() []byte { return k.key.SerializeCompressed() }

// Address hashes the uncompressed key the way account addresses are derived
// on the ledger.
func (k *PublicKey) Address() Address {
	digest := crypto.Keccak256(k.key.SerializeUncompressed()[1:])
	var b [20]byte
	copy(b[:], digest[12:])
	return NewAddress(AccountPrefix, b)
}
