package core_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultbridge/core"
	"vaultbridge/core/types"
	"vaultbridge/native/replace"
)

func TestCancelReplaceCompensatesNewVault(t *testing.T) {
	h := newHarness(t)
	oldVault := h.registerVault(operatorAccount, 3_000_000)
	h.issue(oldVault, 100_000)
	newVault := h.registerVault(newOperator, 3_000_000)

	require.NoError(t, h.rt.RequestReplace(operatorAccount, oldVault, big.NewInt(50_000)))
	id, err := h.rt.AcceptReplace(newOperator, oldVault, newVault, big.NewInt(50_000), big.NewInt(200_000), h.newAddress())
	require.NoError(t, err)
	old := h.vault(oldVault)
	require.Equal(t, "5000", old.ActiveReplaceCollateral.String())
	require.Equal(t, "50000", old.ToBeRedeemed.String())
	require.Equal(t, "50000", h.vault(newVault).ToBeIssued.String())

	require.ErrorIs(t, h.rt.CancelReplace(operatorAccount, id), replace.ErrUnauthorizedVault)
	require.ErrorIs(t, h.rt.CancelReplace(newOperator, id), replace.ErrTimeNotExpired)
	h.expire()
	require.ErrorIs(t, h.rt.CancelReplace(operatorAccount, id), replace.ErrUnauthorizedVault)
	require.NoError(t, h.rt.CancelReplace(newOperator, id))

	require.Equal(t, "1005000", h.free(newOperator, types.Native()))
	require.Equal(t, "995000", h.free(operatorAccount, types.Native()))
	require.Equal(t, "6800000", h.free(newOperator, dot))
	old = h.vault(oldVault)
	require.Zero(t, old.ActiveReplaceCollateral.Sign())
	require.Zero(t, old.ToBeRedeemed.Sign())
	require.Equal(t, "100000", old.Issued.String())
	require.Zero(t, h.vault(newVault).ToBeIssued.Sign())

	req, err := h.rt.Replace().Request(id)
	require.NoError(t, err)
	require.Equal(t, replace.StatusCancelled, req.Status)
	require.ErrorIs(t, h.rt.CancelReplace(newOperator, id), replace.ErrRequestCancelled)
	h.checkInvariants(oldVault, newVault)
}

func TestWithdrawReplaceReleasesGriefing(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)
	h.issue(vault, 100_000)

	require.ErrorIs(t, h.rt.WithdrawReplace(operatorAccount, vault, big.NewInt(1_000)), replace.ErrNoTokensToReplace)
	require.NoError(t, h.rt.RequestReplace(operatorAccount, vault, big.NewInt(50_000)))
	require.Equal(t, "995000", h.free(operatorAccount, types.Native()))

	require.ErrorIs(t, h.rt.WithdrawReplace(userAccount, vault, big.NewInt(20_000)), core.ErrNotVaultOwner)
	require.NoError(t, h.rt.WithdrawReplace(operatorAccount, vault, big.NewInt(20_000)))
	require.Equal(t, "997000", h.free(operatorAccount, types.Native()))
	v := h.vault(vault)
	require.Equal(t, "30000", v.ToBeReplaced.String())
	require.Equal(t, "3000", v.ReplaceCollateral.String())

	// Asking for more than is offered withdraws the rest.
	require.NoError(t, h.rt.WithdrawReplace(operatorAccount, vault, big.NewInt(40_000)))
	require.Equal(t, "1000000", h.free(operatorAccount, types.Native()))
	v = h.vault(vault)
	require.Zero(t, v.ToBeReplaced.Sign())
	require.Zero(t, v.ReplaceCollateral.Sign())

	require.ErrorIs(t, h.rt.WithdrawReplace(operatorAccount, vault, big.NewInt(1_000)), replace.ErrNoTokensToReplace)
}
