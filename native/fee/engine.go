package fee

import (
	"errors"
	"math/big"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
	"vaultbridge/native/reward"
)

var (
	ErrInvalidRate   = errors.New("fee: rate above maximum expected value")
	ErrInvalidAmount = errors.New("fee: amount must not be negative")
	errNilState      = errors.New("fee: state not configured")
)

// MaxExpectedValue bounds every rate and commission.
var MaxExpectedValue = fixed.One()

// Rates are the governance-controlled fee parameters.
type Rates struct {
	IssueFee                  fixed.Unsigned
	IssueGriefingCollateral   fixed.Unsigned
	RedeemFee                 fixed.Unsigned
	PremiumRedeemFee          fixed.Unsigned
	PunishmentFee             fixed.Unsigned
	ReplaceGriefingCollateral fixed.Unsigned
}

// Validate rejects rates above MaxExpectedValue.
func (r Rates) Validate() error {
	for _, rate := range []fixed.Unsigned{
		r.IssueFee, r.IssueGriefingCollateral, r.RedeemFee,
		r.PremiumRedeemFee, r.PunishmentFee, r.ReplaceGriefingCollateral,
	} {
		if rate.Cmp(MaxExpectedValue) > 0 {
			return ErrInvalidRate
		}
	}
	return nil
}

type engineState interface {
	FeeRates() (*Rates, error)
	PutFeeRates(rates *Rates) error
	VaultCommission(vault types.VaultID) (fixed.Unsigned, error)
	PutVaultCommission(vault types.VaultID, rate fixed.Unsigned) error
	FeeUndistributed(currency types.CurrencyID) (*big.Int, error)
	PutFeeUndistributed(currency types.CurrencyID, amount *big.Int) error
}

// Currency moves reward payouts out of the fee pool account.
type Currency interface {
	Transfer(from, to types.AccountID, cur types.CurrencyID, amount *big.Int) error
}

// CapacityRewards is the top tier: one pool, staked per collateral currency.
type CapacityRewards interface {
	DistributeReward(pool reward.CapacityKey, cur types.CurrencyID, amount *big.Int) error
	WithdrawReward(pool reward.CapacityKey, stake types.CurrencyID, cur types.CurrencyID) (*big.Int, error)
}

// VaultRewards is the middle tier: one pool per collateral currency, staked
// per vault.
type VaultRewards interface {
	DistributeReward(pool types.CurrencyID, cur types.CurrencyID, amount *big.Int) error
	WithdrawReward(pool types.CurrencyID, stake types.VaultID, cur types.CurrencyID) (*big.Int, error)
}

// Staking is the bottom tier: the nominators of each vault.
type Staking interface {
	Nonce(vault types.VaultID) (uint64, error)
	DistributeReward(vault types.VaultID, cur types.CurrencyID, amount *big.Int) error
	ComputeRewardAt(nonce uint64, vault types.VaultID, nominator types.AccountID, cur types.CurrencyID) (*big.Int, error)
	WithdrawReward(nonce uint64, vault types.VaultID, nominator types.AccountID, cur types.CurrencyID) (*big.Int, error)
}

// Engine holds the fee rates and routes minted fees through the reward
// tiers to vault operators and nominators.
type Engine struct {
	state            engineState
	emitter          events.Emitter
	currency         Currency
	capacity         CapacityRewards
	vaultRewards     VaultRewards
	staking          Staking
	treasury         types.AccountID
	rewardCurrencies []types.CurrencyID
}

func NewEngine() *Engine {
	return &Engine{
		emitter:          events.NoopEmitter{},
		treasury:         types.DefaultTreasuryAccount,
		rewardCurrencies: []types.CurrencyID{types.Wrapped()},
	}
}

func (e *Engine) SetState(state engineState)           { e.state = state }
func (e *Engine) SetCurrency(c Currency)               { e.currency = c }
func (e *Engine) SetCapacityRewards(c CapacityRewards) { e.capacity = c }
func (e *Engine) SetVaultRewards(v VaultRewards)       { e.vaultRewards = v }
func (e *Engine) SetStaking(s Staking)                 { e.staking = s }

// SetTreasury selects the account swept fees are sent to.
func (e *Engine) SetTreasury(account types.AccountID) {
	if !account.IsZero() {
		e.treasury = account
	}
}

func (e *Engine) Treasury() types.AccountID { return e.treasury }

// SetRewardCurrencies lists the currencies fees are paid in.
func (e *Engine) SetRewardCurrencies(currencies []types.CurrencyID) {
	if len(currencies) > 0 {
		e.rewardCurrencies = append([]types.CurrencyID(nil), currencies...)
	}
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Structured{Evt: evt})
	}
}

// Rates returns the current fee rates.
func (e *Engine) Rates() (Rates, error) {
	if e.state == nil {
		return Rates{}, errNilState
	}
	rates, err := e.state.FeeRates()
	if err != nil {
		return Rates{}, err
	}
	if rates == nil {
		return Rates{}, nil
	}
	return *rates, nil
}

// SetRates replaces all rates at once.
func (e *Engine) SetRates(rates Rates) error {
	if e.state == nil {
		return errNilState
	}
	if err := rates.Validate(); err != nil {
		return err
	}
	if err := e.state.PutFeeRates(&rates); err != nil {
		return err
	}
	e.emit(ratesEvent(rates))
	return nil
}

func (e *Engine) updateRate(rate fixed.Unsigned, set func(*Rates)) error {
	if rate.Cmp(MaxExpectedValue) > 0 {
		return ErrInvalidRate
	}
	rates, err := e.Rates()
	if err != nil {
		return err
	}
	set(&rates)
	return e.SetRates(rates)
}

func (e *Engine) SetIssueFee(rate fixed.Unsigned) error {
	return e.updateRate(rate, func(r *Rates) { r.IssueFee = rate })
}

func (e *Engine) SetIssueGriefingCollateral(rate fixed.Unsigned) error {
	return e.updateRate(rate, func(r *Rates) { r.IssueGriefingCollateral = rate })
}

func (e *Engine) SetRedeemFee(rate fixed.Unsigned) error {
	return e.updateRate(rate, func(r *Rates) { r.RedeemFee = rate })
}

func (e *Engine) SetPremiumRedeemFee(rate fixed.Unsigned) error {
	return e.updateRate(rate, func(r *Rates) { r.PremiumRedeemFee = rate })
}

func (e *Engine) SetPunishmentFee(rate fixed.Unsigned) error {
	return e.updateRate(rate, func(r *Rates) { r.PunishmentFee = rate })
}

func (e *Engine) SetReplaceGriefingCollateral(rate fixed.Unsigned) error {
	return e.updateRate(rate, func(r *Rates) { r.ReplaceGriefingCollateral = rate })
}

// Commission returns the vault's commission rate.
func (e *Engine) Commission(vault types.VaultID) (fixed.Unsigned, error) {
	if e.state == nil {
		return fixed.Unsigned{}, errNilState
	}
	return e.state.VaultCommission(vault)
}

// SetCommission sets the share of vault rewards paid straight to the
// operator.
func (e *Engine) SetCommission(vault types.VaultID, rate fixed.Unsigned) error {
	if e.state == nil {
		return errNilState
	}
	if rate.Cmp(MaxExpectedValue) > 0 {
		return ErrInvalidRate
	}
	if err := e.state.PutVaultCommission(vault, rate); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "fee.commission_set",
		Attributes: map[string]string{
			"vault": vault.String(),
			"rate":  rate.String(),
		},
	})
	return nil
}

func (e *Engine) apply(amount *big.Int, pick func(Rates) fixed.Unsigned) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	rates, err := e.Rates()
	if err != nil {
		return nil, err
	}
	return pick(rates).MulInt(amount, fixed.Floor)
}

// IssueFee is the wrapped fee on an issue of amount.
func (e *Engine) IssueFee(amount *big.Int) (*big.Int, error) {
	return e.apply(amount, func(r Rates) fixed.Unsigned { return r.IssueFee })
}

// IssueGriefingCollateral is the griefing locked for an issue worth amount
// in the griefing currency.
func (e *Engine) IssueGriefingCollateral(amount *big.Int) (*big.Int, error) {
	return e.apply(amount, func(r Rates) fixed.Unsigned { return r.IssueGriefingCollateral })
}

func (e *Engine) RedeemFee(amount *big.Int) (*big.Int, error) {
	return e.apply(amount, func(r Rates) fixed.Unsigned { return r.RedeemFee })
}

// PremiumRedeemFee caps the premium on a redeem worth amount in collateral.
func (e *Engine) PremiumRedeemFee(amount *big.Int) (*big.Int, error) {
	return e.apply(amount, func(r Rates) fixed.Unsigned { return r.PremiumRedeemFee })
}

func (e *Engine) PunishmentFee(amount *big.Int) (*big.Int, error) {
	return e.apply(amount, func(r Rates) fixed.Unsigned { return r.PunishmentFee })
}

func (e *Engine) ReplaceGriefingCollateral(amount *big.Int) (*big.Int, error) {
	return e.apply(amount, func(r Rates) fixed.Unsigned { return r.ReplaceGriefingCollateral })
}
