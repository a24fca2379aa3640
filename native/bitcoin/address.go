package bitcoin

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"vaultbridge/core/types"
)

var (
	ErrInvalidPublicKey = errors.New("bitcoin: invalid public key")
	ErrInvalidAddress   = errors.New("bitcoin: invalid address")
	ErrInvalidTweak     = errors.New("bitcoin: tweak out of range")
)

// PublicKey is a compressed secp256k1 key registered by a vault operator.
type PublicKey [33]byte

// ParsePublicKey validates a compressed or uncompressed encoding and stores
// the compressed form.
func ParsePublicKey(raw []byte) (PublicKey, error) {
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var out PublicKey
	copy(out[:], pub.SerializeCompressed())
	return out, nil
}

// ParsePublicKeyHex is ParsePublicKey for hex input.
func ParsePublicKeyHex(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return ParsePublicKey(raw)
}

func (p PublicKey) String() string { return hex.EncodeToString(p[:]) }

func (p PublicKey) IsZero() bool { return p == PublicKey{} }

func (p PublicKey) key() (*btcec.PublicKey, error) {
	pub, err := btcec.ParsePubKey(p[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// DeriveDepositKey tweaks the vault key with a request id:
// c = sha256(P || id) mod n, P' = c·P. Every request therefore pays to its
// own address while the vault can still derive the spending key.
func DeriveDepositKey(vaultKey PublicKey, id types.H256) (PublicKey, error) {
	pub, err := vaultKey.key()
	if err != nil {
		return PublicKey{}, err
	}
	digest := sha256.New()
	digest.Write(vaultKey[:])
	digest.Write(id[:])
	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(digest.Sum(nil)); overflow || scalar.IsZero() {
		return PublicKey{}, ErrInvalidTweak
	}
	var point, result btcec.JacobianPoint
	pub.AsJacobian(&point)
	btcec.ScalarMultNonConst(&scalar, &point, &result)
	result.ToAffine()
	derived := btcec.NewPublicKey(&result.X, &result.Y)
	var out PublicKey
	copy(out[:], derived.SerializeCompressed())
	return out, nil
}

// Address is an encoded bitcoin address.
type Address string

// DepositAddress returns the P2WPKH address of a derived deposit key.
func DepositAddress(key PublicKey, params *chaincfg.Params) (Address, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key[:]), params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return Address(addr.EncodeAddress()), nil
}

// ParseAddress validates an address for the given network.
func ParseAddress(s string, params *chaincfg.Params) (Address, error) {
	trimmed := strings.TrimSpace(s)
	decoded, err := btcutil.DecodeAddress(trimmed, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(params) {
		return "", fmt.Errorf("%w: %s is not a %s address", ErrInvalidAddress, trimmed, params.Name)
	}
	return Address(decoded.EncodeAddress()), nil
}

// Script returns the output script paying to the address.
func (a Address) Script(params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(string(a), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return txscript.PayToAddrScript(decoded)
}

// NetworkParams maps a configured network name onto chain parameters.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("bitcoin: unknown network %q", name)
	}
}
