package fee

import (
	"math/big"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
	"vaultbridge/native/reward"
)

// Undistributed returns fees of cur held back in the fee pool account.
func (e *Engine) Undistributed(cur types.CurrencyID) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	amount, err := e.state.FeeUndistributed(cur)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (e *Engine) holdBack(cur types.CurrencyID, amount *big.Int, cause error) error {
	total, err := e.Undistributed(cur)
	if err != nil {
		return err
	}
	total.Add(total, amount)
	if err := e.state.PutFeeUndistributed(cur, total); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "fee.distribution_deferred",
		Attributes: map[string]string{
			"currency": cur.String(),
			"amount":   events.FormatAmount(amount),
			"reason":   cause.Error(),
		},
	})
	return nil
}

// DistributeRewards hands a fee already minted to the fee pool account to
// the capacity tier. A tier that cannot take the fee, most often because
// no collateral is staked yet, leaves it in the pool account as
// undistributed instead of failing the caller.
func (e *Engine) DistributeRewards(cur types.CurrencyID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.capacity.DistributeReward(reward.CapacityKey{}, cur, amount); err != nil {
		return e.holdBack(cur, amount, err)
	}
	return nil
}

// SweepUndistributed sends held-back fees of cur to the treasury.
func (e *Engine) SweepUndistributed(cur types.CurrencyID) (*big.Int, error) {
	amount, err := e.Undistributed(cur)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := e.currency.Transfer(types.FeePoolAccount, e.treasury, cur, amount); err != nil {
		return nil, err
	}
	if err := e.state.PutFeeUndistributed(cur, big.NewInt(0)); err != nil {
		return nil, err
	}
	e.emit(&types.Event{
		Type: "fee.undistributed_swept",
		Attributes: map[string]string{
			"currency": cur.String(),
			"amount":   events.FormatAmount(amount),
			"treasury": e.treasury.String(),
		},
	})
	return amount, nil
}

// DistributeAllVaultRewards pulls the vault's pending rewards down the
// tiers: the currency's capacity share into the vault-rewards pool, the
// vault's share of that into commission for the operator and the rest into
// the vault's staking pool.
func (e *Engine) DistributeAllVaultRewards(vault types.VaultID) error {
	collateral := vault.CollateralCurrency()
	for _, cur := range e.rewardCurrencies {
		pulled, err := e.capacity.WithdrawReward(reward.CapacityKey{}, collateral, cur)
		if err != nil {
			return err
		}
		if pulled.Sign() > 0 {
			if err := e.vaultRewards.DistributeReward(collateral, cur, pulled); err != nil {
				if err := e.holdBack(cur, pulled, err); err != nil {
					return err
				}
			}
		}
		share, err := e.vaultRewards.WithdrawReward(collateral, vault, cur)
		if err != nil {
			return err
		}
		if share.Sign() == 0 {
			continue
		}
		if err := e.payVault(vault, cur, share); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) payVault(vault types.VaultID, cur types.CurrencyID, share *big.Int) error {
	rate, err := e.Commission(vault)
	if err != nil {
		return err
	}
	commission, err := rate.MulInt(share, fixed.Floor)
	if err != nil {
		return err
	}
	if commission.Sign() > 0 {
		if err := e.currency.Transfer(types.FeePoolAccount, vault.AccountID, cur, commission); err != nil {
			return err
		}
	}
	rest := new(big.Int).Sub(share, commission)
	if err := e.staking.DistributeReward(vault, cur, rest); err != nil {
		if err := e.holdBack(cur, rest, err); err != nil {
			return err
		}
	}
	e.emit(&types.Event{
		Type: "fee.vault_rewarded",
		Attributes: map[string]string{
			"vault":      vault.String(),
			"currency":   cur.String(),
			"amount":     events.FormatAmount(share),
			"commission": events.FormatAmount(commission),
		},
	})
	return nil
}

// WithdrawRewards pays the nominator's rewards in the vault's pool at nonce
// from the fee pool account.
func (e *Engine) WithdrawRewards(vault types.VaultID, nominator types.AccountID, nonce uint64) (reward.Amounts, error) {
	current, err := e.staking.Nonce(vault)
	if err != nil {
		return nil, err
	}
	if nonce == current {
		if err := e.DistributeAllVaultRewards(vault); err != nil {
			return nil, err
		}
	}
	var paid reward.Amounts
	for _, cur := range e.rewardCurrencies {
		amount, err := e.staking.WithdrawReward(nonce, vault, nominator, cur)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			continue
		}
		if err := e.currency.Transfer(types.FeePoolAccount, nominator, cur, amount); err != nil {
			return nil, err
		}
		paid = paid.Set(cur, amount)
		e.emit(&types.Event{
			Type: "fee.rewards_withdrawn",
			Attributes: map[string]string{
				"vault":     vault.String(),
				"nominator": nominator.String(),
				"currency":  cur.String(),
				"amount":    events.FormatAmount(amount),
			},
		})
	}
	return paid, nil
}

// ComputeRewards returns what WithdrawRewards would pay out of rewards
// already distributed to the vault's staking pool.
func (e *Engine) ComputeRewards(vault types.VaultID, nominator types.AccountID, nonce uint64) (reward.Amounts, error) {
	var out reward.Amounts
	for _, cur := range e.rewardCurrencies {
		amount, err := e.staking.ComputeRewardAt(nonce, vault, nominator, cur)
		if err != nil {
			return nil, err
		}
		out = out.Set(cur, amount)
	}
	return out, nil
}

func ratesEvent(r Rates) *types.Event {
	return &types.Event{
		Type: "fee.rates_updated",
		Attributes: map[string]string{
			"issue_fee":                   r.IssueFee.String(),
			"issue_griefing_collateral":   r.IssueGriefingCollateral.String(),
			"redeem_fee":                  r.RedeemFee.String(),
			"premium_redeem_fee":          r.PremiumRedeemFee.String(),
			"punishment_fee":              r.PunishmentFee.String(),
			"replace_griefing_collateral": r.ReplaceGriefingCollateral.String(),
		},
	}
}
