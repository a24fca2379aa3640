package vaultregistry

import (
	"math/big"

	"vaultbridge/core/types"
)

// LiquidateVault liquidates a vault whose backing has fallen below the
// pair's liquidation threshold. It returns the collateral moved to the
// liquidation vault.
func (e *Engine) LiquidateVault(id types.VaultID) (*big.Int, error) {
	below, err := e.IsVaultBelowLiquidationThreshold(id)
	if err != nil {
		return nil, err
	}
	if !below {
		return nil, ErrVaultNotBelowLiquidationThreshold
	}
	return e.liquidate(id, VaultStatus.Liquidate)
}

// LiquidateTheftVault liquidates a vault that was proven to move BTC it
// holds for users, regardless of its collateralization.
func (e *Engine) LiquidateTheftVault(id types.VaultID) (*big.Int, error) {
	return e.liquidate(id, VaultStatus.ReportTheft)
}

// liquidate confiscates the vault's backing. The share that covers its
// in-flight redeems stays with the vault as liquidated collateral; the rest
// moves to the liquidation vault together with all token obligations.
func (e *Engine) liquidate(id types.VaultID, transition func(VaultStatus) (VaultStatus, error)) (*big.Int, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	status, err := transition(v.Status)
	if err != nil {
		return nil, err
	}
	backing, err := e.BackingCollateral(id)
	if err != nil {
		return nil, err
	}
	tokens := new(big.Int).Add(v.Issued, v.ToBeIssued)
	keep := CalculateCollateral(backing, v.ToBeRedeemed, tokens)
	confiscated := new(big.Int).Sub(backing, keep)

	if v.ReplaceCollateral.Sign() > 0 {
		if err := e.moveFunds(id.AccountID, reservedSide, id.AccountID, freeSide, ReplaceGriefingCurrency, v.ReplaceCollateral); err != nil {
			return nil, err
		}
	}

	lv, err := e.loadLiquidationVault(id.Currencies)
	if err != nil {
		return nil, err
	}
	lv.Issued.Add(lv.Issued, v.Issued)
	lv.ToBeIssued.Add(lv.ToBeIssued, v.ToBeIssued)
	lv.ToBeRedeemed.Add(lv.ToBeRedeemed, v.ToBeRedeemed)
	lv.Collateral.Add(lv.Collateral, confiscated)
	if err := e.state.PutLiquidationVault(lv); err != nil {
		return nil, err
	}

	v.Status = status
	v.LiquidatedCollateral.Add(v.LiquidatedCollateral, keep)
	v.LiquidatedToBeRedeemed.Add(v.LiquidatedToBeRedeemed, v.ToBeRedeemed)
	v.Issued.SetInt64(0)
	v.ToBeIssued.SetInt64(0)
	v.ToBeRedeemed.SetInt64(0)
	v.ToBeReplaced.SetInt64(0)
	v.ReplaceCollateral.SetInt64(0)
	if err := e.state.PutVault(v); err != nil {
		return nil, err
	}

	err = e.withPoolUpdate(id, func() error {
		if backing.Sign() == 0 {
			return nil
		}
		if err := e.staking.SlashStake(id, backing); err != nil {
			return err
		}
		return e.moveFunds(id.AccountID, reservedSide, types.LiquidationAccount, reservedSide, id.CollateralCurrency(), confiscated)
	})
	if err != nil {
		return nil, err
	}
	if _, err := e.staking.IncrementNonce(id); err != nil {
		return nil, err
	}
	e.emit(&types.Event{
		Type: "vaultregistry.vault_liquidated",
		Attributes: map[string]string{
			"vault":                 id.String(),
			"pair":                  id.Currencies.String(),
			"status":                status.String(),
			"confiscated":           formatAmount(confiscated),
			"liquidated_collateral": formatAmount(keep),
			"issued":                formatAmount(tokens),
		},
	})
	return confiscated, nil
}

// RecoverVaultID reopens a liquidated vault once its in-flight redeems have
// settled. Leftover liquidated collateral returns to the operator.
func (e *Engine) RecoverVaultID(id types.VaultID) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	status, err := v.Status.Recover()
	if err != nil {
		return err
	}
	if v.LiquidatedToBeRedeemed.Sign() != 0 {
		return ErrVaultNotRecoverable
	}
	if v.LiquidatedCollateral.Sign() > 0 {
		if err := e.TransferFunds(LiquidatedCollateral(id), FreeBalance(id.AccountID), id.CollateralCurrency(), v.LiquidatedCollateral); err != nil {
			return err
		}
		if v, err = e.loadVault(id); err != nil {
			return err
		}
	}
	v.Status = status
	v.AcceptNewIssues = true
	if err := e.state.PutVault(v); err != nil {
		return err
	}
	if err := e.updateRewardStake(id); err != nil {
		return err
	}
	e.emit(vaultEvent("vaultregistry.vault_recovered", id, nil))
	return nil
}
