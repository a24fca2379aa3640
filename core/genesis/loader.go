package genesis

import (
	"fmt"
	"sort"

	"vaultbridge/core"
	"vaultbridge/core/types"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/fee"
	"vaultbridge/native/oracle"
	"vaultbridge/native/vaultregistry"
)

// RuntimeOptions fills the accounts of opts from the spec.
func (s *Spec) RuntimeOptions(opts core.Options) core.Options {
	opts.Root = s.Root
	opts.Treasury = s.TreasuryAccount()
	return opts
}

// Apply initialises a fresh runtime state from spec. It fails with
// core.ErrGenesisApplied when the state was already initialised.
func Apply(rt *core.Runtime, spec *Spec) error {
	if rt == nil {
		return fmt.Errorf("runtime must not be nil")
	}
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if spec.minimums == nil {
		if err := spec.validate(); err != nil {
			return err
		}
	}
	return rt.Genesis(func() error {
		// 1) Balances (accounts sorted, currencies sorted)
		for _, alloc := range spec.balances {
			if alloc.amount.Sign() == 0 {
				continue
			}
			if err := rt.Currency().Mint(alloc.account, alloc.currency, alloc.amount); err != nil {
				return fmt.Errorf("balance %s/%s: %w", alloc.account, alloc.currency, err)
			}
		}

		// 2) Fees and request protocols
		rates := fee.Rates{
			IssueFee:                  spec.Fees.IssueFee,
			IssueGriefingCollateral:   spec.Fees.IssueGriefingCollateral,
			RedeemFee:                 spec.Fees.RedeemFee,
			PremiumRedeemFee:          spec.Fees.PremiumRedeemFee,
			PunishmentFee:             spec.Fees.PunishmentFee,
			ReplaceGriefingCollateral: spec.Fees.ReplaceGriefingCollateral,
		}
		if err := rt.Fee().SetRates(rates); err != nil {
			return fmt.Errorf("fees: %w", err)
		}
		if err := rt.Issue().SetIssuePeriod(spec.Issue.Period); err != nil {
			return fmt.Errorf("issue: %w", err)
		}
		if err := rt.Issue().SetIssueBtcDustValue(spec.Issue.dust); err != nil {
			return fmt.Errorf("issue: %w", err)
		}
		if err := rt.Redeem().SetRedeemPeriod(spec.Redeem.Period); err != nil {
			return fmt.Errorf("redeem: %w", err)
		}
		if err := rt.Redeem().SetRedeemBtcDustValue(spec.Redeem.dust); err != nil {
			return fmt.Errorf("redeem: %w", err)
		}
		if err := rt.Replace().SetReplacePeriod(spec.Replace.Period); err != nil {
			return fmt.Errorf("replace: %w", err)
		}
		if err := rt.Replace().SetReplaceBtcDustValue(spec.Replace.dust); err != nil {
			return fmt.Errorf("replace: %w", err)
		}

		// 3) Vault registry
		for _, p := range spec.Pairs {
			pair := types.VaultCurrencyPair{Collateral: p.Collateral, Wrapped: types.Wrapped()}
			params := vaultregistry.PairParams{
				SecureThreshold:         p.SecureThreshold,
				PremiumThreshold:        p.PremiumThreshold,
				LiquidationThreshold:    p.LiquidationThreshold,
				SystemCollateralCeiling: p.ceiling,
			}
			if err := rt.Registry().SetPairParams(pair, params); err != nil {
				return fmt.Errorf("pair %s: %w", pair, err)
			}
		}
		currencies := make([]types.CurrencyID, 0, len(spec.minimums))
		for cur := range spec.minimums {
			currencies = append(currencies, cur)
		}
		sort.Slice(currencies, func(i, j int) bool { return currencies[i].String() < currencies[j].String() })
		for _, cur := range currencies {
			if err := rt.Registry().SetMinimumCollateral(cur, spec.minimums[cur]); err != nil {
				return fmt.Errorf("minimum collateral %s: %w", cur, err)
			}
		}
		if err := rt.Registry().SetPunishmentDelay(spec.PunishmentDelay); err != nil {
			return fmt.Errorf("punishment delay: %w", err)
		}
		if err := rt.Nomination().SetEnabled(spec.NominationEnabled); err != nil {
			return fmt.Errorf("nomination: %w", err)
		}

		// 4) Oracle
		return applyOracle(rt.Oracle(), spec.Oracle)
	})
}

func applyOracle(o *oracle.Engine, spec OracleSpec) error {
	if spec.MaxDelayMillis > 0 {
		if err := o.SetMaxDelay(spec.MaxDelayMillis); err != nil {
			return fmt.Errorf("oracle: %w", err)
		}
	}
	if spec.RedeemTransactionSize > 0 {
		if err := o.SetRedeemTransactionSize(spec.RedeemTransactionSize); err != nil {
			return fmt.Errorf("oracle: %w", err)
		}
	}
	for _, feeder := range spec.Feeders {
		if err := o.InsertAuthorizedOracle(feeder); err != nil {
			return fmt.Errorf("oracle feeder %s: %w", feeder, err)
		}
	}
	var values []oracle.Value
	keys := make([]string, 0, len(spec.ExchangeRates))
	for cur := range spec.ExchangeRates {
		keys = append(keys, cur)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cur, err := types.ParseCurrencyID(key)
		if err != nil {
			return fmt.Errorf("oracle rate %q: %w", key, err)
		}
		values = append(values, oracle.Value{Key: oracle.ExchangeRateKey(cur), Value: spec.ExchangeRates[key]})
	}
	if spec.FeeEstimation != nil {
		values = append(values, oracle.Value{Key: oracle.FeeEstimationKey(), Value: *spec.FeeEstimation})
	}
	if len(values) == 0 {
		return nil
	}
	if err := o.FeedValues(spec.Feeders[0], values); err != nil {
		return fmt.Errorf("oracle values: %w", err)
	}
	return nil
}

// InitRelay seeds relay with the trusted header of the spec. The relay keeps
// headers in memory, so this runs on every start.
func InitRelay(relay *btcrelay.Store, spec *Spec) error {
	header, height, ok := spec.RelayHeader()
	if !ok {
		return nil
	}
	if spec.Relay.StableConfirmations > 0 {
		relay.SetStableConfirmations(spec.Relay.StableConfirmations)
	}
	if err := relay.Initialize(header, height); err != nil {
		return fmt.Errorf("initialise relay: %w", err)
	}
	return nil
}
