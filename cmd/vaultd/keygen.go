package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"vaultbridge/core/types"
	"vaultbridge/crypto"
)

// keygen prints a fresh operator key: the account it controls, the bitcoin
// public key to register for its vaults and the private key.
func keygen(w io.Writer) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	pub := key.PubKey()
	account := types.AccountFromAddress(pub.Address())
	if _, err := fmt.Fprintf(w, "account:     %s\n", account); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "bitcoin key: %s\n", hex.EncodeToString(pub.SerializeCompressed())); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "private key: %s\n", hex.EncodeToString(key.Bytes()))
	return err
}
