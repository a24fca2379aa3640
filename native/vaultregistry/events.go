package vaultregistry

import (
	"math/big"
	"strconv"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
)

func formatAmount(v *big.Int) string { return events.FormatAmount(v) }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func vaultEvent(kind string, id types.VaultID, amount *big.Int) *types.Event {
	attrs := map[string]string{"vault": id.String()}
	if amount != nil {
		attrs["amount"] = formatAmount(amount)
	}
	return &types.Event{Type: kind, Attributes: attrs}
}

func stakeEvent(kind string, id types.VaultID, account types.AccountID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"vault":   id.String(),
			"account": account.String(),
			"amount":  formatAmount(amount),
		},
	}
}

func pairEvent(pair types.VaultCurrencyPair, params *PairParams) *types.Event {
	return &types.Event{
		Type: "vaultregistry.pair_params_updated",
		Attributes: map[string]string{
			"pair":                  pair.String(),
			"secure_threshold":      params.SecureThreshold.String(),
			"premium_threshold":     params.PremiumThreshold.String(),
			"liquidation_threshold": params.LiquidationThreshold.String(),
			"collateral_ceiling":    formatAmount(params.SystemCollateralCeiling),
		},
	}
}
