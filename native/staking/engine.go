package staking

import (
	"errors"
	"math/big"
	"strconv"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
	"vaultbridge/native/reward"
)

var (
	ErrInsufficientStake = errors.New("staking: insufficient stake")
	ErrZeroTotalStake    = errors.New("staking: zero total stake")
	ErrInvalidAmount     = errors.New("staking: amount must not be negative")
	errNilState          = errors.New("staking: state not configured")
)

// Pool is the staking pool of one vault at one nonce.
type Pool struct {
	// TotalStake is the sum of nominal stakes; slashes are subtracted from it
	// lazily as each participant settles.
	TotalStake        fixed.Signed
	TotalCurrentStake fixed.Signed
	SlashPerToken     fixed.Signed
	RewardPerToken    reward.Accumulators
	TotalRewards      reward.Amounts
}

// Stake is one nominator's position in a pool.
type Stake struct {
	Amount      fixed.Signed
	SlashTally  fixed.Signed
	RewardTally reward.Accumulators
}

type engineState interface {
	StakingNonce(vault types.VaultID) (uint64, error)
	PutStakingNonce(vault types.VaultID, nonce uint64) error
	StakingPool(nonce uint64, vault types.VaultID) (*Pool, error)
	PutStakingPool(nonce uint64, vault types.VaultID, pool *Pool) error
	StakingStake(nonce uint64, vault types.VaultID, nominator types.AccountID) (*Stake, error)
	PutStakingStake(nonce uint64, vault types.VaultID, nominator types.AccountID, stake *Stake) error
}

// Engine tracks slashable vault stakes and the rewards paid on them. Every
// vault has a nonce; incrementing it starts a fresh pool while older pools
// stay readable for nominators that have not withdrawn yet.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }

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

// Nonce returns the vault's current pool nonce.
func (e *Engine) Nonce(vault types.VaultID) (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	return e.state.StakingNonce(vault)
}

type position struct {
	nonce     uint64
	vault     types.VaultID
	nominator types.AccountID
	pool      *Pool
	stake     *Stake
}

func (e *Engine) load(nonce uint64, vault types.VaultID, nominator types.AccountID) (*position, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.StakingPool(nonce, vault)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &Pool{}
	}
	stake, err := e.state.StakingStake(nonce, vault, nominator)
	if err != nil {
		return nil, err
	}
	if stake == nil {
		stake = &Stake{}
	}
	return &position{nonce: nonce, vault: vault, nominator: nominator, pool: pool, stake: stake}, nil
}

func (e *Engine) loadCurrent(vault types.VaultID, nominator types.AccountID) (*position, error) {
	nonce, err := e.Nonce(vault)
	if err != nil {
		return nil, err
	}
	return e.load(nonce, vault, nominator)
}

func (e *Engine) store(p *position) error {
	if err := e.state.PutStakingPool(p.nonce, p.vault, p.pool); err != nil {
		return err
	}
	return e.state.PutStakingStake(p.nonce, p.vault, p.nominator, p.stake)
}

// pendingSlash is stake * slash_per_token - slash_tally.
func (p *position) pendingSlash() (fixed.Signed, error) {
	slashed, err := p.stake.Amount.Mul(p.pool.SlashPerToken)
	if err != nil {
		return fixed.Signed{}, err
	}
	return slashed.Sub(p.stake.SlashTally)
}

// applySlash settles outstanding slashes into the nominal stake. Reward
// tallies shrink by the settled amount so pending rewards are unchanged.
func (p *position) applySlash() error {
	slash, err := p.pendingSlash()
	if err != nil {
		return err
	}
	if slash.IsZero() {
		return nil
	}
	amount, err := p.stake.Amount.Sub(slash)
	if err != nil {
		return err
	}
	total, err := p.pool.TotalStake.Sub(slash)
	if err != nil {
		return err
	}
	tally, err := amount.Mul(p.pool.SlashPerToken)
	if err != nil {
		return err
	}
	for _, entry := range p.pool.RewardPerToken {
		lost, err := entry.Value.Mul(slash)
		if err != nil {
			return err
		}
		next, err := p.stake.RewardTally.Get(entry.Currency).Sub(lost)
		if err != nil {
			return err
		}
		p.stake.RewardTally = p.stake.RewardTally.Set(entry.Currency, next)
	}
	p.stake.Amount = amount
	p.stake.SlashTally = tally
	p.pool.TotalStake = total
	return nil
}

// shift moves the nominal stake by delta, keeping the slash and reward tallies
// in step.
func (p *position) shift(delta fixed.Signed) error {
	var err error
	if p.stake.Amount, err = p.stake.Amount.Add(delta); err != nil {
		return err
	}
	if p.pool.TotalStake, err = p.pool.TotalStake.Add(delta); err != nil {
		return err
	}
	if p.pool.TotalCurrentStake, err = p.pool.TotalCurrentStake.Add(delta); err != nil {
		return err
	}
	if p.pool.TotalCurrentStake.Sign() < 0 {
		p.pool.TotalCurrentStake = fixed.Signed{}
	}
	slash, err := p.pool.SlashPerToken.Mul(delta)
	if err != nil {
		return err
	}
	if p.stake.SlashTally, err = p.stake.SlashTally.Add(slash); err != nil {
		return err
	}
	for _, entry := range p.pool.RewardPerToken {
		owed, err := entry.Value.Mul(delta)
		if err != nil {
			return err
		}
		next, err := p.stake.RewardTally.Get(entry.Currency).Add(owed)
		if err != nil {
			return err
		}
		p.stake.RewardTally = p.stake.RewardTally.Set(entry.Currency, next)
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// DepositStake adds amount to the nominator's stake in the vault's current
// pool.
func (e *Engine) DepositStake(vault types.VaultID, nominator types.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	p, err := e.loadCurrent(vault, nominator)
	if err != nil {
		return err
	}
	if err := p.applySlash(); err != nil {
		return err
	}
	delta, err := fixed.SignedFromInt(amount)
	if err != nil {
		return err
	}
	if err := p.shift(delta); err != nil {
		return err
	}
	if err := e.store(p); err != nil {
		return err
	}
	e.emit(stakeEvent("staking.deposited", p.nonce, vault, nominator, amount))
	return nil
}

// WithdrawStake removes amount from the nominator's stake in the current pool.
func (e *Engine) WithdrawStake(vault types.VaultID, nominator types.AccountID, amount *big.Int) error {
	nonce, err := e.Nonce(vault)
	if err != nil {
		return err
	}
	return e.WithdrawStakeAt(nonce, vault, nominator, amount)
}

// WithdrawStakeAt removes amount from the nominator's stake in the pool at
// nonce.
func (e *Engine) WithdrawStakeAt(nonce uint64, vault types.VaultID, nominator types.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	p, err := e.load(nonce, vault, nominator)
	if err != nil {
		return err
	}
	if err := p.applySlash(); err != nil {
		return err
	}
	delta, err := fixed.SignedFromInt(amount)
	if err != nil {
		return err
	}
	if p.stake.Amount.Cmp(delta) < 0 {
		return ErrInsufficientStake
	}
	if err := p.shift(neg(delta)); err != nil {
		return err
	}
	if err := e.store(p); err != nil {
		return err
	}
	e.emit(stakeEvent("staking.withdrawn", nonce, vault, nominator, amount))
	return nil
}

func neg(v fixed.Signed) fixed.Signed {
	out, _ := fixed.Signed{}.Sub(v)
	return out
}

// SlashStake removes amount from the pool's current stake, spread over all
// nominators pro rata to their nominal stake.
func (e *Engine) SlashStake(vault types.VaultID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	nonce, err := e.Nonce(vault)
	if err != nil {
		return err
	}
	pool, err := e.state.StakingPool(nonce, vault)
	if err != nil {
		return err
	}
	if pool == nil || pool.TotalStake.Sign() <= 0 {
		return ErrInsufficientStake
	}
	slash, err := fixed.SignedFromInt(amount)
	if err != nil {
		return err
	}
	perToken, err := slash.Div(pool.TotalStake)
	if err != nil {
		return err
	}
	if pool.SlashPerToken, err = pool.SlashPerToken.Add(perToken); err != nil {
		return err
	}
	if pool.TotalCurrentStake.Cmp(slash) < 0 {
		return ErrInsufficientStake
	}
	if pool.TotalCurrentStake, err = pool.TotalCurrentStake.Sub(slash); err != nil {
		return err
	}
	if err := e.state.PutStakingPool(nonce, vault, pool); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "staking.slashed",
		Attributes: map[string]string{
			"vault":  vault.String(),
			"nonce":  strconv.FormatUint(nonce, 10),
			"amount": events.FormatAmount(amount),
		},
	})
	return nil
}

// ComputeStake returns the nominator's stake net of slashes in the current
// pool.
func (e *Engine) ComputeStake(vault types.VaultID, nominator types.AccountID) (*big.Int, error) {
	nonce, err := e.Nonce(vault)
	if err != nil {
		return nil, err
	}
	return e.ComputeStakeAt(nonce, vault, nominator)
}

// ComputeStakeAt returns the nominator's stake net of slashes at nonce.
func (e *Engine) ComputeStakeAt(nonce uint64, vault types.VaultID, nominator types.AccountID) (*big.Int, error) {
	p, err := e.load(nonce, vault, nominator)
	if err != nil {
		return nil, err
	}
	slash, err := p.pendingSlash()
	if err != nil {
		return nil, err
	}
	current, err := p.stake.Amount.Sub(slash)
	if err != nil {
		return nil, err
	}
	out := current.TruncInt()
	if out.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return out, nil
}

// TotalCurrentStake returns the vault's backing collateral in the current
// pool.
func (e *Engine) TotalCurrentStake(vault types.VaultID) (*big.Int, error) {
	nonce, err := e.Nonce(vault)
	if err != nil {
		return nil, err
	}
	return e.TotalCurrentStakeAt(nonce, vault)
}

func (e *Engine) TotalCurrentStakeAt(nonce uint64, vault types.VaultID) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.StakingPool(nonce, vault)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return big.NewInt(0), nil
	}
	out := pool.TotalCurrentStake.TruncInt()
	if out.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return out, nil
}

// DistributeReward credits amount of currency to the vault's current pool.
func (e *Engine) DistributeReward(vault types.VaultID, currency types.CurrencyID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	nonce, err := e.Nonce(vault)
	if err != nil {
		return err
	}
	pool, err := e.state.StakingPool(nonce, vault)
	if err != nil {
		return err
	}
	if pool == nil || pool.TotalStake.Sign() <= 0 {
		return ErrZeroTotalStake
	}
	value, err := fixed.SignedFromInt(amount)
	if err != nil {
		return err
	}
	perToken, err := value.Div(pool.TotalStake)
	if err != nil {
		return err
	}
	rpt, err := pool.RewardPerToken.Get(currency).Add(perToken)
	if err != nil {
		return err
	}
	pool.RewardPerToken = pool.RewardPerToken.Set(currency, rpt)
	total := pool.TotalRewards.Get(currency)
	pool.TotalRewards = pool.TotalRewards.Set(currency, total.Add(total, amount))
	return e.state.PutStakingPool(nonce, vault, pool)
}

func (p *position) pendingReward(currency types.CurrencyID) (*big.Int, error) {
	accrued, err := p.stake.Amount.Mul(p.pool.RewardPerToken.Get(currency))
	if err != nil {
		return nil, err
	}
	owed, err := accrued.Sub(p.stake.RewardTally.Get(currency))
	if err != nil {
		return nil, err
	}
	out := owed.TruncInt()
	if out.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return out, nil
}

// ComputeReward returns the nominator's claimable reward in the current pool.
func (e *Engine) ComputeReward(vault types.VaultID, nominator types.AccountID, currency types.CurrencyID) (*big.Int, error) {
	nonce, err := e.Nonce(vault)
	if err != nil {
		return nil, err
	}
	return e.ComputeRewardAt(nonce, vault, nominator, currency)
}

func (e *Engine) ComputeRewardAt(nonce uint64, vault types.VaultID, nominator types.AccountID, currency types.CurrencyID) (*big.Int, error) {
	p, err := e.load(nonce, vault, nominator)
	if err != nil {
		return nil, err
	}
	if err := p.applySlash(); err != nil {
		return nil, err
	}
	return p.pendingReward(currency)
}

// WithdrawReward claims the nominator's reward from the pool at nonce.
func (e *Engine) WithdrawReward(nonce uint64, vault types.VaultID, nominator types.AccountID, currency types.CurrencyID) (*big.Int, error) {
	p, err := e.load(nonce, vault, nominator)
	if err != nil {
		return nil, err
	}
	if err := p.applySlash(); err != nil {
		return nil, err
	}
	amount, err := p.pendingReward(currency)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	paid, err := fixed.SignedFromInt(amount)
	if err != nil {
		return nil, err
	}
	tally, err := p.stake.RewardTally.Get(currency).Add(paid)
	if err != nil {
		return nil, err
	}
	p.stake.RewardTally = p.stake.RewardTally.Set(currency, tally)
	total := p.pool.TotalRewards.Get(currency)
	total.Sub(total, amount)
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	p.pool.TotalRewards = p.pool.TotalRewards.Set(currency, total)
	if err := e.store(p); err != nil {
		return nil, err
	}
	e.emit(stakeEvent("staking.reward_withdrawn", nonce, vault, nominator, amount))
	return amount, nil
}

// TotalRewards returns distributed and unclaimed rewards at nonce.
func (e *Engine) TotalRewards(nonce uint64, vault types.VaultID, currency types.CurrencyID) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.StakingPool(nonce, vault)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return big.NewInt(0), nil
	}
	return pool.TotalRewards.Get(currency), nil
}

// IncrementNonce starts a fresh pool for the vault.
func (e *Engine) IncrementNonce(vault types.VaultID) (uint64, error) {
	nonce, err := e.Nonce(vault)
	if err != nil {
		return 0, err
	}
	nonce++
	if err := e.state.PutStakingNonce(vault, nonce); err != nil {
		return 0, err
	}
	e.emit(&types.Event{
		Type: "staking.nonce_incremented",
		Attributes: map[string]string{
			"vault": vault.String(),
			"nonce": strconv.FormatUint(nonce, 10),
		},
	})
	return nonce, nil
}

// ForceRefund moves the operator's own stake into a fresh pool. Nominators
// stay behind in the old pool and withdraw from it by nonce. It returns the
// operator stake that was carried over.
func (e *Engine) ForceRefund(vault types.VaultID) (*big.Int, error) {
	own, err := e.ComputeStake(vault, vault.AccountID)
	if err != nil {
		return nil, err
	}
	if err := e.WithdrawStake(vault, vault.AccountID, own); err != nil {
		return nil, err
	}
	if _, err := e.IncrementNonce(vault); err != nil {
		return nil, err
	}
	if err := e.DepositStake(vault, vault.AccountID, own); err != nil {
		return nil, err
	}
	return own, nil
}

func stakeEvent(kind string, nonce uint64, vault types.VaultID, nominator types.AccountID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"vault":     vault.String(),
			"nonce":     strconv.FormatUint(nonce, 10),
			"nominator": nominator.String(),
			"amount":    events.FormatAmount(amount),
		},
	}
}
