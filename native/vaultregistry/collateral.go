package vaultregistry

import (
	"errors"
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/currency"
	"vaultbridge/native/fixed"
	"vaultbridge/native/oracle"
	"vaultbridge/native/reward"
)

// SecureThreshold returns the vault's effective secure threshold: the pair
// threshold or the vault's custom one when that is higher.
func (e *Engine) SecureThreshold(id types.VaultID) (fixed.Unsigned, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return fixed.Unsigned{}, err
	}
	return e.secureThreshold(v)
}

func (e *Engine) secureThreshold(v *Vault) (fixed.Unsigned, error) {
	params, err := e.Pair(v.ID.Currencies)
	if err != nil {
		return fixed.Unsigned{}, err
	}
	return fixed.Max(params.SecureThreshold, v.CustomSecureThreshold), nil
}

// RequiredCollateral returns ceil(floor(tokens in collateral) * threshold).
func (e *Engine) RequiredCollateral(tokens *big.Int, threshold fixed.Unsigned, cur types.CurrencyID) (*big.Int, error) {
	if tokens.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	converted, err := e.oracle.WrappedToCollateral(tokens, cur)
	if err != nil {
		return nil, err
	}
	return threshold.MulInt(converted, fixed.Ceil)
}

// BackingCollateral is the collateral staked behind the vault by its
// operator and nominators.
func (e *Engine) BackingCollateral(id types.VaultID) (*big.Int, error) {
	return e.staking.TotalCurrentStake(id)
}

// VaultCollateral is the operator's own share of the backing collateral.
func (e *Engine) VaultCollateral(id types.VaultID) (*big.Int, error) {
	return e.staking.ComputeStake(id, id.AccountID)
}

func (e *Engine) isBelow(v *Vault, tokens *big.Int, threshold fixed.Unsigned) (bool, error) {
	backing, err := e.BackingCollateral(v.ID)
	if err != nil {
		return false, err
	}
	required, err := e.RequiredCollateral(tokens, threshold, v.ID.CollateralCurrency())
	if err != nil {
		return false, err
	}
	return backing.Cmp(required) < 0, nil
}

func (e *Engine) IsVaultBelowSecureThreshold(id types.VaultID) (bool, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return false, err
	}
	threshold, err := e.secureThreshold(v)
	if err != nil {
		return false, err
	}
	return e.isBelow(v, v.Exposure(), threshold)
}

func (e *Engine) IsVaultBelowPremiumThreshold(id types.VaultID) (bool, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return false, err
	}
	params, err := e.Pair(id.Currencies)
	if err != nil {
		return false, err
	}
	return e.isBelow(v, v.Exposure(), params.PremiumThreshold)
}

func (e *Engine) IsVaultBelowLiquidationThreshold(id types.VaultID) (bool, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return false, err
	}
	params, err := e.Pair(id.Currencies)
	if err != nil {
		return false, err
	}
	return e.isBelow(v, v.Exposure(), params.LiquidationThreshold)
}

// Collateralization returns backing collateral in wrapped units divided by
// the vault's token exposure.
func (e *Engine) Collateralization(id types.VaultID) (fixed.Unsigned, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return fixed.Unsigned{}, err
	}
	backing, err := e.BackingCollateral(id)
	if err != nil {
		return fixed.Unsigned{}, err
	}
	inWrapped, err := e.oracle.CollateralToWrapped(backing, id.CollateralCurrency())
	if err != nil {
		return fixed.Unsigned{}, err
	}
	return fixed.RatioOf(inWrapped, v.Exposure())
}

// IssuableTokens returns how many more tokens the vault can take on at its
// secure threshold.
func (e *Engine) IssuableTokens(id types.VaultID) (*big.Int, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	if !v.AcceptsIssues() {
		return big.NewInt(0), nil
	}
	threshold, err := e.secureThreshold(v)
	if err != nil {
		return nil, err
	}
	backing, err := e.BackingCollateral(id)
	if err != nil {
		return nil, err
	}
	inWrapped, err := e.oracle.CollateralToWrapped(backing, id.CollateralCurrency())
	if err != nil {
		return nil, err
	}
	limit, err := threshold.DivInt(inWrapped)
	if err != nil {
		return nil, err
	}
	limit.Sub(limit, v.Issued)
	limit.Sub(limit, v.ToBeIssued)
	if limit.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return limit, nil
}

// RegisterVault creates a vault backed by collateral from the operator's
// free balance.
func (e *Engine) RegisterVault(id types.VaultID, collateral *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if err := checkAmount(collateral); err != nil {
		return err
	}
	if _, err := e.Pair(id.Currencies); err != nil {
		return err
	}
	if _, err := e.PublicKey(id.AccountID); err != nil {
		return err
	}
	existing, err := e.state.Vault(id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrVaultAlreadyRegistered
	}
	minimum, err := e.MinimumCollateral(id.CollateralCurrency())
	if err != nil {
		return err
	}
	if collateral.Cmp(minimum) < 0 {
		return ErrInsufficientVaultCollateralAmount
	}
	if err := e.state.PutVault(newVault(id)); err != nil {
		return err
	}
	if err := e.state.AppendVaultID(id); err != nil {
		return err
	}
	if err := e.TransferFunds(FreeBalance(id.AccountID), Collateral(id), id.CollateralCurrency(), collateral); err != nil {
		return err
	}
	e.emit(vaultEvent("vaultregistry.vault_registered", id, collateral))
	return nil
}

// TryDepositCollateral stakes amount of the depositor's free collateral
// behind the vault.
func (e *Engine) TryDepositCollateral(id types.VaultID, depositor types.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, err := e.loadActiveVault(id); err != nil {
		return err
	}
	if err := e.depositCollateral(id, depositor, depositor, freeSide, amount); err != nil {
		return err
	}
	e.emit(stakeEvent("vaultregistry.collateral_deposited", id, depositor, amount))
	return nil
}

// TryWithdrawCollateral releases amount of the withdrawer's stake to its
// free balance if the vault stays above its secure threshold.
func (e *Engine) TryWithdrawCollateral(id types.VaultID, withdrawer types.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadActiveVault(id)
	if err != nil {
		return err
	}
	own, err := e.staking.ComputeStake(id, withdrawer)
	if err != nil {
		return err
	}
	if own.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	if err := e.checkWithdrawal(v, amount); err != nil {
		return err
	}
	err = e.withPoolUpdate(id, func() error {
		if err := e.staking.WithdrawStake(id, withdrawer, amount); err != nil {
			return err
		}
		return e.moveFunds(id.AccountID, reservedSide, withdrawer, freeSide, id.CollateralCurrency(), amount)
	})
	if err != nil {
		return err
	}
	e.emit(stakeEvent("vaultregistry.collateral_withdrawn", id, withdrawer, amount))
	return nil
}

// IsAllowedToWithdrawCollateral reports whether amount can leave the vault's
// backing.
func (e *Engine) IsAllowedToWithdrawCollateral(id types.VaultID, amount *big.Int) (bool, error) {
	v, err := e.loadActiveVault(id)
	if err != nil {
		return false, err
	}
	err = e.checkWithdrawal(v, amount)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInsufficientCollateral), errors.Is(err, ErrInsufficientVaultCollateralAmount):
		return false, nil
	default:
		return false, err
	}
}

func (e *Engine) checkWithdrawal(v *Vault, amount *big.Int) error {
	backing, err := e.BackingCollateral(v.ID)
	if err != nil {
		return err
	}
	if backing.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	remaining := new(big.Int).Sub(backing, amount)
	tokens := new(big.Int).Add(v.Issued, v.ToBeIssued)
	threshold, err := e.secureThreshold(v)
	if err != nil {
		return err
	}
	required, err := e.RequiredCollateral(tokens, threshold, v.ID.CollateralCurrency())
	if err != nil {
		return err
	}
	if remaining.Cmp(required) < 0 {
		return ErrInsufficientCollateral
	}
	minimum, err := e.MinimumCollateral(v.ID.CollateralCurrency())
	if err != nil {
		return err
	}
	if remaining.Cmp(minimum) < 0 {
		emptied := remaining.Sign() == 0 && tokens.Sign() == 0 && v.ToBeRedeemed.Sign() == 0
		if !emptied {
			return ErrInsufficientVaultCollateralAmount
		}
	}
	return nil
}

type balanceSide uint8

const (
	freeSide balanceSide = iota
	reservedSide
)

// moveFunds moves amount between the free or reserved sides of two accounts.
func (e *Engine) moveFunds(from types.AccountID, fromSide balanceSide, to types.AccountID, toSide balanceSide, cur types.CurrencyID, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	switch {
	case fromSide == reservedSide && toSide == reservedSide:
		return e.currency.TransferReserved(from, to, cur, amount, currency.Reserved)
	case fromSide == reservedSide:
		return e.currency.TransferReserved(from, to, cur, amount, currency.Free)
	case toSide == freeSide:
		return e.currency.Transfer(from, to, cur, amount)
	default:
		if from != to {
			if err := e.currency.Transfer(from, to, cur, amount); err != nil {
				return err
			}
		}
		return e.currency.Lock(to, cur, amount)
	}
}

// depositCollateral moves funds into the vault account's reserved balance
// and stakes them for nominator.
func (e *Engine) depositCollateral(id types.VaultID, nominator, from types.AccountID, fromSide balanceSide, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.checkCeiling(id.Currencies, amount); err != nil {
		return err
	}
	return e.withPoolUpdate(id, func() error {
		if err := e.moveFunds(from, fromSide, id.AccountID, reservedSide, id.CollateralCurrency(), amount); err != nil {
			return err
		}
		return e.staking.DepositStake(id, nominator, amount)
	})
}

// withPoolUpdate pulls the vault's pending rewards, applies a change to its
// backing collateral and refreshes the reward stakes that depend on it.
func (e *Engine) withPoolUpdate(id types.VaultID, apply func() error) error {
	if e.distributor != nil {
		if err := e.distributor.DistributeAllVaultRewards(id); err != nil {
			return err
		}
	}
	before, err := e.staking.TotalCurrentStake(id)
	if err != nil {
		return err
	}
	if err := apply(); err != nil {
		return err
	}
	after, err := e.staking.TotalCurrentStake(id)
	if err != nil {
		return err
	}
	if err := e.adjustPairCollateral(id.Currencies, new(big.Int).Sub(after, before)); err != nil {
		return err
	}
	return e.updateRewardStake(id)
}

// updateRewardStake sets the vault's stake in the vault-rewards tier to its
// backing collateral, or zero when it does not accept issues.
func (e *Engine) updateRewardStake(id types.VaultID) error {
	if e.vaultRewards == nil {
		return nil
	}
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	stake := big.NewInt(0)
	if v.AcceptsIssues() {
		if stake, err = e.staking.TotalCurrentStake(id); err != nil {
			return err
		}
	}
	if err := e.vaultRewards.SetStake(id.CollateralCurrency(), id, stake); err != nil {
		return err
	}
	return e.RefreshCapacityStake(id.CollateralCurrency())
}

// RefreshCapacityStake re-weights the collateral currency in the capacity
// tier by its total reward stake valued in wrapped units. A currency without
// a fresh exchange rate gets no capacity share.
func (e *Engine) RefreshCapacityStake(cur types.CurrencyID) error {
	if e.vaultRewards == nil || e.capacity == nil {
		return nil
	}
	total, err := e.vaultRewards.TotalStake(cur)
	if err != nil {
		return err
	}
	inWrapped, err := e.oracle.CollateralToWrapped(total, cur)
	if errors.Is(err, oracle.ErrMissingExchangeRate) {
		inWrapped = big.NewInt(0)
	} else if err != nil {
		return err
	}
	return e.capacity.SetStake(reward.CapacityKey{}, cur, inWrapped)
}

// SetAcceptNewIssues lets the operator open or close the vault to new
// issue requests.
func (e *Engine) SetAcceptNewIssues(id types.VaultID, accept bool) error {
	v, err := e.loadActiveVault(id)
	if err != nil {
		return err
	}
	return e.withPoolUpdate(id, func() error {
		v.AcceptNewIssues = accept
		return e.state.PutVault(v)
	})
}

// SetCustomSecureThreshold raises the vault's secure threshold above the
// pair's. A zero threshold clears it.
func (e *Engine) SetCustomSecureThreshold(id types.VaultID, threshold fixed.Unsigned) error {
	v, err := e.loadActiveVault(id)
	if err != nil {
		return err
	}
	if !threshold.IsZero() {
		params, err := e.Pair(id.Currencies)
		if err != nil {
			return err
		}
		if threshold.Cmp(params.SecureThreshold) < 0 {
			return ErrInvalidThreshold
		}
	}
	v.CustomSecureThreshold = threshold
	return e.state.PutVault(v)
}
