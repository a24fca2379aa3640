package vaultregistry_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"vaultbridge/core"
	"vaultbridge/core/genesis"
	"vaultbridge/core/state"
	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/fixed"
	"vaultbridge/native/vaultregistry"
	"vaultbridge/storage"
	"vaultbridge/storage/trie"
)

var (
	rootAccount     = types.AccountID{0xaa}
	feederAccount   = types.AccountID{0xfe}
	operatorAccount = types.AccountID{0x01}

	dot  = types.Token("DOT")
	pair = types.VaultCurrencyPair{Collateral: dot, Wrapped: types.Wrapped()}
)

func newRuntime(t *testing.T) *core.Runtime {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)

	spec := &genesis.Spec{
		Root: rootAccount,
		Balances: map[string]map[string]string{
			operatorAccount.String(): {"token:dot": "10000000"},
		},
		Pairs: []genesis.PairSpec{{
			Collateral:           dot,
			SecureThreshold:      fixed.MustParse("1.5"),
			PremiumThreshold:     fixed.MustParse("1.35"),
			LiquidationThreshold: fixed.MustParse("1.1"),
		}},
		MinimumCollateral: map[string]string{"token:dot": "1000"},
		PunishmentDelay:   20,
		Issue:             genesis.RequestSpec{Period: 10, BtcDustValue: "1000"},
		Redeem:            genesis.RequestSpec{Period: 10, BtcDustValue: "1000"},
		Replace:           genesis.RequestSpec{Period: 10, BtcDustValue: "1000"},
		Oracle: genesis.OracleSpec{
			Feeders:        []types.AccountID{feederAccount},
			MaxDelayMillis: 3_600_000,
			ExchangeRates:  map[string]fixed.Unsigned{"token:dot": fixed.FromInt(2)},
		},
	}
	relay := btcrelay.NewStore(&chaincfg.RegressionNetParams, 1)
	rt, err := core.NewRuntime(state.NewManager(tr), relay, spec.RuntimeOptions(core.Options{
		BitcoinParams: &chaincfg.RegressionNetParams,
	}))
	require.NoError(t, err)
	require.NoError(t, genesis.Apply(rt, spec))
	require.NoError(t, rt.AdvanceBlocks(1))
	return rt
}

func registerKey(t *testing.T, rt *core.Runtime, account types.AccountID) {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	key, err := bitcoin.ParsePublicKey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)
	require.NoError(t, rt.RegisterPublicKey(account, key))
}

func TestVaultStatusTransitions(t *testing.T) {
	next, err := vaultregistry.VaultActive.Liquidate()
	require.NoError(t, err)
	require.Equal(t, vaultregistry.VaultLiquidated, next)

	_, err = next.Liquidate()
	require.ErrorIs(t, err, vaultregistry.ErrVaultLiquidated)
	_, err = next.ReportTheft()
	require.ErrorIs(t, err, vaultregistry.ErrVaultLiquidated)

	recovered, err := next.Recover()
	require.NoError(t, err)
	require.Equal(t, vaultregistry.VaultActive, recovered)

	theft, err := vaultregistry.VaultActive.ReportTheft()
	require.NoError(t, err)
	_, err = theft.Recover()
	require.ErrorIs(t, err, vaultregistry.ErrVaultNotRecoverable)
	require.Equal(t, "committed_theft", theft.String())
}

func TestCalculateCollateral(t *testing.T) {
	require.Equal(t, "25", vaultregistry.CalculateCollateral(big.NewInt(100), big.NewInt(1), big.NewInt(4)).String())
	require.Equal(t, "33", vaultregistry.CalculateCollateral(big.NewInt(100), big.NewInt(1), big.NewInt(3)).String())
	require.Zero(t, vaultregistry.CalculateCollateral(big.NewInt(100), big.NewInt(1), big.NewInt(0)).Sign())
}

func TestRegisterVaultChecks(t *testing.T) {
	rt := newRuntime(t)
	err := rt.RegisterVault(operatorAccount, pair, big.NewInt(5_000))
	require.ErrorIs(t, err, vaultregistry.ErrNoBitcoinPublicKey)

	registerKey(t, rt, operatorAccount)
	err = rt.RegisterVault(operatorAccount, pair, big.NewInt(500))
	require.ErrorIs(t, err, vaultregistry.ErrInsufficientVaultCollateralAmount)

	unknown := types.VaultCurrencyPair{Collateral: types.Token("KSM"), Wrapped: types.Wrapped()}
	err = rt.RegisterVault(operatorAccount, unknown, big.NewInt(5_000))
	require.ErrorIs(t, err, vaultregistry.ErrPairNotFound)

	require.NoError(t, rt.RegisterVault(operatorAccount, pair, big.NewInt(5_000)))
	err = rt.RegisterVault(operatorAccount, pair, big.NewInt(5_000))
	require.ErrorIs(t, err, vaultregistry.ErrVaultAlreadyRegistered)

	free, err := rt.Currency().FreeBalance(operatorAccount, dot)
	require.NoError(t, err)
	require.Equal(t, "9995000", free.String())
}

func TestIssuableTokensFollowCollateral(t *testing.T) {
	rt := newRuntime(t)
	registerKey(t, rt, operatorAccount)
	require.NoError(t, rt.RegisterVault(operatorAccount, pair, big.NewInt(3_000_000)))
	id := types.VaultID{AccountID: operatorAccount, Currencies: pair}
	registry := rt.Registry()

	issuable, err := registry.IssuableTokens(id)
	require.NoError(t, err)
	require.Equal(t, "1000000", issuable.String())

	require.NoError(t, registry.TryIncreaseToBeIssuedTokens(id, big.NewInt(400_000)))
	issuable, err = registry.IssuableTokens(id)
	require.NoError(t, err)
	require.Equal(t, "600000", issuable.String())
	err = registry.TryIncreaseToBeIssuedTokens(id, big.NewInt(700_000))
	require.ErrorIs(t, err, vaultregistry.ErrInsufficientCollateral)

	// 400000 tokens need 1200000 DOT at the secure threshold.
	allowed, err := registry.IsAllowedToWithdrawCollateral(id, big.NewInt(2_000_000))
	require.NoError(t, err)
	require.False(t, allowed)
	allowed, err = registry.IsAllowedToWithdrawCollateral(id, big.NewInt(1_800_000))
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, rt.SetAcceptNewIssues(operatorAccount, id, false))
	issuable, err = registry.IssuableTokens(id)
	require.NoError(t, err)
	require.Zero(t, issuable.Sign())
}

func TestBanExpiresAfterPunishmentDelay(t *testing.T) {
	rt := newRuntime(t)
	registerKey(t, rt, operatorAccount)
	require.NoError(t, rt.RegisterVault(operatorAccount, pair, big.NewInt(5_000)))
	id := types.VaultID{AccountID: operatorAccount, Currencies: pair}

	require.NoError(t, rt.Registry().EnsureNotBanned(id))
	require.NoError(t, rt.Registry().BanVault(id))
	require.ErrorIs(t, rt.Registry().EnsureNotBanned(id), vaultregistry.ErrVaultBanned)

	require.NoError(t, rt.AdvanceBlocks(20))
	require.ErrorIs(t, rt.Registry().EnsureNotBanned(id), vaultregistry.ErrVaultBanned)
	require.NoError(t, rt.AdvanceBlocks(1))
	require.NoError(t, rt.Registry().EnsureNotBanned(id))
}
