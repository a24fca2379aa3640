package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultbridge/core/types"
	"vaultbridge/crypto"
	"vaultbridge/native/bitcoin"
)

func TestKeygenPrintsMatchingKeys(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, keygen(&out))

	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		name, value, ok := strings.Cut(line, ":")
		require.True(t, ok, line)
		fields[name] = strings.TrimSpace(value)
	}
	require.Len(t, fields, 3)

	account, err := types.ParseAccountID(fields["account"])
	require.NoError(t, err)
	key, err := bitcoin.ParsePublicKeyHex(fields["bitcoin key"])
	require.NoError(t, err)
	priv, err := crypto.PrivateKeyFromHex(fields["private key"])
	require.NoError(t, err)

	require.Equal(t, account, types.AccountFromAddress(priv.PubKey().Address()))
	require.Equal(t, priv.PubKey().SerializeCompressed(), key[:])
}
