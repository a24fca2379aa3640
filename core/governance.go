package core

import (
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/fee"
	"vaultbridge/native/fixed"
	"vaultbridge/native/security"
	"vaultbridge/native/vaultregistry"
)

// SetPairParams replaces the thresholds and ceiling of a currency pair.
func (r *Runtime) SetPairParams(origin types.AccountID, pair types.VaultCurrencyPair, p vaultregistry.PairParams) error {
	return r.governance(origin, "set_pair_params", func() error {
		return r.registry.SetPairParams(pair, p)
	})
}

func (r *Runtime) SetSecureThreshold(origin types.AccountID, pair types.VaultCurrencyPair, threshold fixed.Unsigned) error {
	return r.governance(origin, "set_secure_threshold", func() error {
		return r.registry.SetSecureThreshold(pair, threshold)
	})
}

func (r *Runtime) SetPremiumThreshold(origin types.AccountID, pair types.VaultCurrencyPair, threshold fixed.Unsigned) error {
	return r.governance(origin, "set_premium_threshold", func() error {
		return r.registry.SetPremiumThreshold(pair, threshold)
	})
}

func (r *Runtime) SetLiquidationThreshold(origin types.AccountID, pair types.VaultCurrencyPair, threshold fixed.Unsigned) error {
	return r.governance(origin, "set_liquidation_threshold", func() error {
		return r.registry.SetLiquidationThreshold(pair, threshold)
	})
}

func (r *Runtime) SetSystemCollateralCeiling(origin types.AccountID, pair types.VaultCurrencyPair, ceiling *big.Int) error {
	return r.governance(origin, "set_system_collateral_ceiling", func() error {
		return r.registry.SetSystemCollateralCeiling(pair, ceiling)
	})
}

func (r *Runtime) SetMinimumCollateral(origin types.AccountID, cur types.CurrencyID, amount *big.Int) error {
	return r.governance(origin, "set_minimum_collateral", func() error {
		return r.registry.SetMinimumCollateral(cur, amount)
	})
}

func (r *Runtime) SetPunishmentDelay(origin types.AccountID, blocks uint64) error {
	return r.governance(origin, "set_punishment_delay", func() error {
		return r.registry.SetPunishmentDelay(blocks)
	})
}

// SetFeeRates replaces every fee rate at once.
func (r *Runtime) SetFeeRates(origin types.AccountID, rates fee.Rates) error {
	return r.governance(origin, "set_fee_rates", func() error {
		return r.fee.SetRates(rates)
	})
}

func (r *Runtime) SetIssueFee(origin types.AccountID, rate fixed.Unsigned) error {
	return r.governance(origin, "set_issue_fee", func() error {
		return r.fee.SetIssueFee(rate)
	})
}

func (r *Runtime) SetIssueGriefingCollateral(origin types.AccountID, rate fixed.Unsigned) error {
	return r.governance(origin, "set_issue_griefing_collateral", func() error {
		return r.fee.SetIssueGriefingCollateral(rate)
	})
}

func (r *Runtime) SetRedeemFee(origin types.AccountID, rate fixed.Unsigned) error {
	return r.governance(origin, "set_redeem_fee", func() error {
		return r.fee.SetRedeemFee(rate)
	})
}

func (r *Runtime) SetPremiumRedeemFee(origin types.AccountID, rate fixed.Unsigned) error {
	return r.governance(origin, "set_premium_redeem_fee", func() error {
		return r.fee.SetPremiumRedeemFee(rate)
	})
}

func (r *Runtime) SetPunishmentFee(origin types.AccountID, rate fixed.Unsigned) error {
	return r.governance(origin, "set_punishment_fee", func() error {
		return r.fee.SetPunishmentFee(rate)
	})
}

func (r *Runtime) SetReplaceGriefingCollateral(origin types.AccountID, rate fixed.Unsigned) error {
	return r.governance(origin, "set_replace_griefing_collateral", func() error {
		return r.fee.SetReplaceGriefingCollateral(rate)
	})
}

func (r *Runtime) SetIssuePeriod(origin types.AccountID, period uint64) error {
	return r.governance(origin, "set_issue_period", func() error {
		return r.issue.SetIssuePeriod(period)
	})
}

func (r *Runtime) SetIssueBtcDustValue(origin types.AccountID, amount *big.Int) error {
	return r.governance(origin, "set_issue_btc_dust_value", func() error {
		return r.issue.SetIssueBtcDustValue(amount)
	})
}

func (r *Runtime) SetRedeemPeriod(origin types.AccountID, period uint64) error {
	return r.governance(origin, "set_redeem_period", func() error {
		return r.redeem.SetRedeemPeriod(period)
	})
}

func (r *Runtime) SetRedeemBtcDustValue(origin types.AccountID, amount *big.Int) error {
	return r.governance(origin, "set_redeem_btc_dust_value", func() error {
		return r.redeem.SetRedeemBtcDustValue(amount)
	})
}

func (r *Runtime) SetReplacePeriod(origin types.AccountID, period uint64) error {
	return r.governance(origin, "set_replace_period", func() error {
		return r.replace.SetReplacePeriod(period)
	})
}

func (r *Runtime) SetReplaceBtcDustValue(origin types.AccountID, amount *big.Int) error {
	return r.governance(origin, "set_replace_btc_dust_value", func() error {
		return r.replace.SetReplaceBtcDustValue(amount)
	})
}

func (r *Runtime) SetNominationEnabled(origin types.AccountID, enabled bool) error {
	return r.governance(origin, "set_nomination_enabled", func() error {
		return r.nomination.SetEnabled(enabled)
	})
}

func (r *Runtime) InsertAuthorizedOracle(origin, feeder types.AccountID) error {
	return r.governance(origin, "insert_authorized_oracle", func() error {
		return r.oracle.InsertAuthorizedOracle(feeder)
	})
}

func (r *Runtime) RemoveAuthorizedOracle(origin, feeder types.AccountID) error {
	return r.governance(origin, "remove_authorized_oracle", func() error {
		return r.oracle.RemoveAuthorizedOracle(feeder)
	})
}

func (r *Runtime) SetOracleMaxDelay(origin types.AccountID, ms uint64) error {
	return r.governance(origin, "set_oracle_max_delay", func() error {
		return r.oracle.SetMaxDelay(ms)
	})
}

func (r *Runtime) SetRedeemTransactionSize(origin types.AccountID, vbytes uint64) error {
	return r.governance(origin, "set_redeem_transaction_size", func() error {
		return r.oracle.SetRedeemTransactionSize(vbytes)
	})
}

// SetBridgeStatus moves the bridge between running, error and shutdown.
// It is the one call that still lands while the bridge is halted.
func (r *Runtime) SetBridgeStatus(origin types.AccountID, status security.Status) error {
	return r.governance(origin, "set_bridge_status", func() error {
		return r.security.SetStatus(status)
	})
}

// SetPaused toggles the pause switch of one module.
func (r *Runtime) SetPaused(origin types.AccountID, module string, paused bool) error {
	return r.governance(origin, "set_paused", func() error {
		return r.params.SetPaused(module, paused)
	})
}

// SweepUndistributed moves rewards that found no stake to the treasury.
func (r *Runtime) SweepUndistributed(origin types.AccountID, cur types.CurrencyID) (*big.Int, error) {
	var swept *big.Int
	err := r.governance(origin, "sweep_undistributed", func() error {
		var err error
		swept, err = r.fee.SweepUndistributed(cur)
		return err
	})
	return swept, err
}

// ReportVaultTheft liquidates a vault proven to have moved backing bitcoin
// without a matching request.
func (r *Runtime) ReportVaultTheft(origin types.AccountID, vault types.VaultID) error {
	return r.governance(origin, "report_vault_theft", func() error {
		_, err := r.registry.LiquidateTheftVault(vault)
		return err
	})
}
