package vaultregistry

import (
	"math/big"

	"vaultbridge/core/types"
)

func decrease(field *big.Int, amount *big.Int) error {
	if field.Cmp(amount) < 0 {
		return ErrInvariantViolation
	}
	field.Sub(field, amount)
	return nil
}

func (e *Engine) updateVault(v *Vault, kind string, amount *big.Int) error {
	if err := e.state.PutVault(v); err != nil {
		return err
	}
	e.emit(vaultEvent(kind, v.ID, amount))
	return nil
}

func (e *Engine) updateLiquidationVault(lv *LiquidationVault) error {
	return e.state.PutLiquidationVault(lv)
}

// EnsureNotBanned fails with ErrVaultBanned while the vault serves a ban.
func (e *Engine) EnsureNotBanned(id types.VaultID) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if v.IsBanned(e.now()) {
		return ErrVaultBanned
	}
	return nil
}

// BanVault bans the vault for the punishment delay.
func (e *Engine) BanVault(id types.VaultID) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	delay, err := e.PunishmentDelay()
	if err != nil {
		return err
	}
	v.BannedUntil = e.now() + delay
	if err := e.state.PutVault(v); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "vaultregistry.vault_banned",
		Attributes: map[string]string{
			"vault":        id.String(),
			"banned_until": formatUint(v.BannedUntil),
		},
	})
	return nil
}

// TryIncreaseToBeIssuedTokens reserves issuance capacity for amount tokens.
// The vault's collateral must cover issued + to-be-issued + amount at its
// secure threshold.
func (e *Engine) TryIncreaseToBeIssuedTokens(id types.VaultID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadActiveVault(id)
	if err != nil {
		return err
	}
	tokens := new(big.Int).Add(v.Issued, v.ToBeIssued)
	tokens.Add(tokens, amount)
	threshold, err := e.secureThreshold(v)
	if err != nil {
		return err
	}
	below, err := e.isBelow(v, tokens, threshold)
	if err != nil {
		return err
	}
	if below {
		return ErrInsufficientCollateral
	}
	v.ToBeIssued.Add(v.ToBeIssued, amount)
	return e.updateVault(v, "vaultregistry.to_be_issued_increased", amount)
}

// DecreaseToBeIssuedTokens releases reserved issuance capacity.
func (e *Engine) DecreaseToBeIssuedTokens(id types.VaultID, amount *big.Int) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		lv, err := e.loadLiquidationVault(id.Currencies)
		if err != nil {
			return err
		}
		if err := decrease(lv.ToBeIssued, amount); err != nil {
			return err
		}
		return e.updateLiquidationVault(lv)
	}
	if err := decrease(v.ToBeIssued, amount); err != nil {
		return err
	}
	return e.updateVault(v, "vaultregistry.to_be_issued_decreased", amount)
}

// IssueTokens moves amount from to-be-issued to issued.
func (e *Engine) IssueTokens(id types.VaultID, amount *big.Int) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		lv, err := e.loadLiquidationVault(id.Currencies)
		if err != nil {
			return err
		}
		if err := decrease(lv.ToBeIssued, amount); err != nil {
			return err
		}
		lv.Issued.Add(lv.Issued, amount)
		return e.updateLiquidationVault(lv)
	}
	if err := decrease(v.ToBeIssued, amount); err != nil {
		return err
	}
	v.Issued.Add(v.Issued, amount)
	return e.updateVault(v, "vaultregistry.tokens_issued", amount)
}

// TryIncreaseToBeRedeemedTokens commits amount of the vault's issued tokens
// to a redeem. To-be-replaced tokens that no longer fit are withdrawn from
// the replace offer along with their share of griefing collateral.
func (e *Engine) TryIncreaseToBeRedeemedTokens(id types.VaultID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadActiveVault(id)
	if err != nil {
		return err
	}
	if v.RedeemableTokens().Cmp(amount) < 0 {
		return ErrInsufficientTokensCommitted
	}
	v.ToBeRedeemed.Add(v.ToBeRedeemed, amount)
	excess := new(big.Int).Add(v.ToBeRedeemed, v.ToBeReplaced)
	excess.Sub(excess, v.Issued)
	if err := e.updateVault(v, "vaultregistry.to_be_redeemed_increased", amount); err != nil {
		return err
	}
	if excess.Sign() <= 0 {
		return nil
	}
	_, griefing, err := e.DecreaseToBeReplacedTokens(id, excess)
	if err != nil {
		return err
	}
	return e.TransferFunds(AvailableReplaceCollateral(id), FreeBalance(id.AccountID), ReplaceGriefingCurrency, griefing)
}

// releaseLiquidated hands the liquidated collateral backing tokens to dest.
func (e *Engine) releaseLiquidated(v *Vault, tokens *big.Int, dest CurrencySource) error {
	share := CalculateCollateral(v.LiquidatedCollateral, tokens, v.LiquidatedToBeRedeemed)
	if err := decrease(v.LiquidatedToBeRedeemed, tokens); err != nil {
		return err
	}
	if err := e.state.PutVault(v); err != nil {
		return err
	}
	return e.TransferFunds(LiquidatedCollateral(v.ID), dest, v.ID.CollateralCurrency(), share)
}

// settleLiquidated settles tokens of a liquidated vault's in-flight redeem
// on the liquidation vault. burned tokens also leave its issued supply.
func (e *Engine) settleLiquidated(v *Vault, tokens *big.Int, burned bool, dest CurrencySource) error {
	lv, err := e.loadLiquidationVault(v.ID.Currencies)
	if err != nil {
		return err
	}
	if err := decrease(lv.ToBeRedeemed, tokens); err != nil {
		return err
	}
	if burned {
		if err := decrease(lv.Issued, tokens); err != nil {
			return err
		}
	}
	if err := e.updateLiquidationVault(lv); err != nil {
		return err
	}
	return e.releaseLiquidated(v, tokens, dest)
}

// DecreaseToBeRedeemedTokens releases a redeem or replace commitment
// without burning tokens. For a liquidated vault the collateral set aside
// for it moves to the liquidation vault.
func (e *Engine) DecreaseToBeRedeemedTokens(id types.VaultID, amount *big.Int) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		return e.settleLiquidated(v, amount, false, LiquidationVaultSource(id.Currencies))
	}
	if err := decrease(v.ToBeRedeemed, amount); err != nil {
		return err
	}
	return e.updateVault(v, "vaultregistry.to_be_redeemed_decreased", amount)
}

// DecreaseTokens burns amount from issued and to-be-redeemed after a
// cancelled redeem. A liquidated vault's set-aside collateral goes to user.
func (e *Engine) DecreaseTokens(id types.VaultID, user types.AccountID, amount *big.Int) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		return e.settleLiquidated(v, amount, true, FreeBalance(user))
	}
	if err := decrease(v.ToBeRedeemed, amount); err != nil {
		return err
	}
	if err := decrease(v.Issued, amount); err != nil {
		return err
	}
	return e.updateVault(v, "vaultregistry.tokens_decreased", amount)
}

// RedeemTokens settles an executed redeem: amount leaves issued and
// to-be-redeemed and the premium is paid from the vault's collateral. A
// liquidated vault gets back the collateral set aside for the redeem.
func (e *Engine) RedeemTokens(id types.VaultID, amount, premium *big.Int, redeemer types.AccountID) error {
	v, err := e.loadVault(id)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		return e.settleLiquidated(v, amount, true, FreeBalance(id.AccountID))
	}
	if err := decrease(v.ToBeRedeemed, amount); err != nil {
		return err
	}
	if err := decrease(v.Issued, amount); err != nil {
		return err
	}
	if err := e.updateVault(v, "vaultregistry.tokens_redeemed", amount); err != nil {
		return err
	}
	if premium != nil && premium.Sign() > 0 {
		return e.TransferFunds(Collateral(id), FreeBalance(redeemer), id.CollateralCurrency(), premium)
	}
	return nil
}

// RedeemTokensLiquidation burns amount against the pair's liquidation vault
// and returns the collateral paid to the redeemer.
func (e *Engine) RedeemTokensLiquidation(pair types.VaultCurrencyPair, redeemer types.AccountID, amount *big.Int) (*big.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	lv, err := e.loadLiquidationVault(pair)
	if err != nil {
		return nil, err
	}
	redeemable := new(big.Int).Sub(lv.Issued, lv.ToBeRedeemed)
	if redeemable.Cmp(amount) < 0 {
		return nil, ErrInsufficientTokensCommitted
	}
	payout := CalculateCollateral(lv.Collateral, amount, lv.Backed())
	lv.Issued.Sub(lv.Issued, amount)
	if err := e.updateLiquidationVault(lv); err != nil {
		return nil, err
	}
	if err := e.TransferFunds(LiquidationVaultSource(pair), FreeBalance(redeemer), pair.Collateral, payout); err != nil {
		return nil, err
	}
	e.emit(&types.Event{
		Type: "vaultregistry.liquidation_redeemed",
		Attributes: map[string]string{
			"pair":       pair.String(),
			"redeemer":   redeemer.String(),
			"amount":     formatAmount(amount),
			"collateral": formatAmount(payout),
		},
	})
	return payout, nil
}

// TryIncreaseToBeReplacedTokens offers amount of the vault's redeemable
// tokens for replacement.
func (e *Engine) TryIncreaseToBeReplacedTokens(id types.VaultID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := e.loadActiveVault(id)
	if err != nil {
		return err
	}
	committed := new(big.Int).Add(v.ToBeRedeemed, v.ToBeReplaced)
	committed.Add(committed, amount)
	if committed.Cmp(v.Issued) > 0 {
		return ErrInsufficientTokensCommitted
	}
	v.ToBeReplaced.Add(v.ToBeReplaced, amount)
	return e.updateVault(v, "vaultregistry.to_be_replaced_increased", amount)
}

// DecreaseToBeReplacedTokens withdraws up to amount from the replace offer.
// It returns the tokens withdrawn and the proportional share of replace
// collateral; moving that collateral is left to the caller.
func (e *Engine) DecreaseToBeReplacedTokens(id types.VaultID, amount *big.Int) (*big.Int, *big.Int, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, nil, err
	}
	tokens := new(big.Int).Set(amount)
	if tokens.Cmp(v.ToBeReplaced) > 0 {
		tokens.Set(v.ToBeReplaced)
	}
	griefing := CalculateCollateral(v.ReplaceCollateral, tokens, v.ToBeReplaced)
	v.ToBeReplaced.Sub(v.ToBeReplaced, tokens)
	if v.ToBeReplaced.Sign() == 0 {
		griefing.Set(v.ReplaceCollateral)
	}
	if err := e.updateVault(v, "vaultregistry.to_be_replaced_decreased", tokens); err != nil {
		return nil, nil, err
	}
	return tokens, griefing, nil
}

// ReplaceTokens settles an executed replace: the old vault hands amount of
// its issued tokens to the new vault.
func (e *Engine) ReplaceTokens(oldVault, newVault types.VaultID, amount *big.Int) error {
	if err := e.RedeemTokens(oldVault, amount, nil, oldVault.AccountID); err != nil {
		return err
	}
	return e.IssueTokens(newVault, amount)
}

// CancelReplaceTokens releases both sides of an expired replace.
func (e *Engine) CancelReplaceTokens(oldVault, newVault types.VaultID, amount *big.Int) error {
	if err := e.DecreaseToBeRedeemedTokens(oldVault, amount); err != nil {
		return err
	}
	return e.DecreaseToBeIssuedTokens(newVault, amount)
}
