package vaultregistry

import (
	"errors"
	"math/big"

	"vaultbridge/core/types"
)

var ErrInvalidNonce = errors.New("vaultregistry: staking nonce not reached")

// RefundNominators starts a fresh staking pool holding only the operator's
// stake. The vault must stay above its secure threshold without the
// nominated collateral. Nominators withdraw from the previous nonce.
func (e *Engine) RefundNominators(id types.VaultID) (*big.Int, error) {
	v, err := e.loadActiveVault(id)
	if err != nil {
		return nil, err
	}
	backing, err := e.BackingCollateral(id)
	if err != nil {
		return nil, err
	}
	own, err := e.staking.ComputeStake(id, id.AccountID)
	if err != nil {
		return nil, err
	}
	nominated := new(big.Int).Sub(backing, own)
	if nominated.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	if err := e.checkWithdrawal(v, nominated); err != nil {
		return nil, err
	}
	err = e.withPoolUpdate(id, func() error {
		_, err := e.staking.ForceRefund(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.emit(vaultEvent("vaultregistry.nominators_refunded", id, nominated))
	return nominated, nil
}

// WithdrawCollateralAt releases a stake left in an earlier staking pool of
// the vault. The current pool goes through TryWithdrawCollateral.
func (e *Engine) WithdrawCollateralAt(nonce uint64, id types.VaultID, withdrawer types.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	current, err := e.staking.Nonce(id)
	if err != nil {
		return err
	}
	if nonce > current {
		return ErrInvalidNonce
	}
	if nonce == current {
		return e.TryWithdrawCollateral(id, withdrawer, amount)
	}
	if _, err := e.loadVault(id); err != nil {
		return err
	}
	stake, err := e.staking.ComputeStakeAt(nonce, id, withdrawer)
	if err != nil {
		return err
	}
	if stake.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	if err := e.staking.WithdrawStakeAt(nonce, id, withdrawer, amount); err != nil {
		return err
	}
	if err := e.moveFunds(id.AccountID, reservedSide, withdrawer, freeSide, id.CollateralCurrency(), amount); err != nil {
		return err
	}
	e.emit(stakeEvent("vaultregistry.collateral_withdrawn", id, withdrawer, amount))
	return nil
}
