package vaultregistry

import (
	"math/big"

	"vaultbridge/core/types"
)

func (s CurrencySource) account() types.AccountID {
	switch s.Kind {
	case SourceCollateral, SourceAvailableReplaceCollateral, SourceActiveReplaceCollateral, SourceLiquidatedCollateral:
		return s.Vault.AccountID
	case SourceLiquidationVault:
		return types.LiquidationAccount
	default:
		return s.Account
	}
}

func (s CurrencySource) side() balanceSide {
	if s.Kind == SourceFreeBalance {
		return freeSide
	}
	return reservedSide
}

// checkSourceCurrency rejects collateral-denominated sources moving another
// currency.
func checkSourceCurrency(s CurrencySource, cur types.CurrencyID) error {
	switch s.Kind {
	case SourceCollateral, SourceLiquidatedCollateral:
		if s.Vault.CollateralCurrency() != cur {
			return ErrInvalidCurrency
		}
	case SourceLiquidationVault:
		if s.Pair.Collateral != cur {
			return ErrInvalidCurrency
		}
	case SourceAvailableReplaceCollateral, SourceActiveReplaceCollateral:
		if cur != ReplaceGriefingCurrency {
			return ErrInvalidCurrency
		}
	}
	return nil
}

// TransferFunds moves amount of cur between two sources and keeps the
// registry records that track each source in step. Collateral leaving a
// vault slashes its staking pool; collateral entering one is staked for the
// operator.
func (e *Engine) TransferFunds(from, to CurrencySource, cur types.CurrencyID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := checkSourceCurrency(from, cur); err != nil {
		return err
	}
	if err := checkSourceCurrency(to, cur); err != nil {
		return err
	}
	if to.Kind == SourceCollateral {
		if _, err := e.loadActiveVault(to.Vault); err != nil {
			return err
		}
	}

	if from.Kind == SourceCollateral {
		err := e.withPoolUpdate(from.Vault, func() error {
			backing, err := e.staking.TotalCurrentStake(from.Vault)
			if err != nil {
				return err
			}
			if backing.Cmp(amount) < 0 {
				return ErrInsufficientCollateral
			}
			return e.staking.SlashStake(from.Vault, amount)
		})
		if err != nil {
			return err
		}
	} else if err := e.debitRecord(from, amount); err != nil {
		return err
	}

	if to.Kind == SourceCollateral {
		if err := e.depositCollateral(to.Vault, to.Vault.AccountID, from.account(), from.side(), amount); err != nil {
			return err
		}
	} else {
		if err := e.moveFunds(from.account(), from.side(), to.account(), to.side(), cur, amount); err != nil {
			return err
		}
		if err := e.creditRecord(to, amount); err != nil {
			return err
		}
	}
	e.emit(&types.Event{
		Type: "vaultregistry.funds_transferred",
		Attributes: map[string]string{
			"from":     from.String(),
			"to":       to.String(),
			"currency": cur.String(),
			"amount":   formatAmount(amount),
		},
	})
	return nil
}

func subChecked(field *big.Int, amount *big.Int) error {
	if field.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	field.Sub(field, amount)
	return nil
}

func (e *Engine) debitRecord(s CurrencySource, amount *big.Int) error {
	switch s.Kind {
	case SourceAvailableReplaceCollateral, SourceActiveReplaceCollateral, SourceLiquidatedCollateral:
		v, err := e.loadVault(s.Vault)
		if err != nil {
			return err
		}
		if err := subChecked(vaultField(v, s.Kind), amount); err != nil {
			return err
		}
		return e.state.PutVault(v)
	case SourceLiquidationVault:
		lv, err := e.loadLiquidationVault(s.Pair)
		if err != nil {
			return err
		}
		if err := subChecked(lv.Collateral, amount); err != nil {
			return err
		}
		return e.state.PutLiquidationVault(lv)
	}
	return nil
}

func (e *Engine) creditRecord(s CurrencySource, amount *big.Int) error {
	switch s.Kind {
	case SourceAvailableReplaceCollateral, SourceActiveReplaceCollateral, SourceLiquidatedCollateral:
		v, err := e.loadVault(s.Vault)
		if err != nil {
			return err
		}
		field := vaultField(v, s.Kind)
		field.Add(field, amount)
		return e.state.PutVault(v)
	case SourceLiquidationVault:
		lv, err := e.loadLiquidationVault(s.Pair)
		if err != nil {
			return err
		}
		lv.Collateral.Add(lv.Collateral, amount)
		return e.state.PutLiquidationVault(lv)
	}
	return nil
}

func vaultField(v *Vault, kind SourceKind) *big.Int {
	switch kind {
	case SourceAvailableReplaceCollateral:
		return v.ReplaceCollateral
	case SourceActiveReplaceCollateral:
		return v.ActiveReplaceCollateral
	default:
		return v.LiquidatedCollateral
	}
}
