package reward

import (
	"errors"
	"math/big"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
)

var (
	ErrZeroTotalStake    = errors.New("reward: zero total stake")
	ErrInsufficientStake = errors.New("reward: insufficient stake")
	ErrInvalidAmount     = errors.New("reward: amount must not be negative")
	errNilState          = errors.New("reward: state not configured")
)

// Key identifies pools and stakes in storage.
type Key interface {
	Bytes() []byte
}

// CapacityKey is the single pool of the capacity tier.
type CapacityKey struct{}

func (CapacityKey) Bytes() []byte { return []byte("capacity") }

type engineState interface {
	RewardPool(tier string, pool []byte) (*Pool, error)
	PutRewardPool(tier string, pool []byte, record *Pool) error
	RewardStake(tier string, pool, stake []byte) (*Stake, error)
	PutRewardStake(tier string, pool, stake []byte, record *Stake) error
}

// Engine is a pull-based reward pool. Distributing advances a per-currency
// reward-per-token accumulator; every participant keeps a tally so that its
// claim is stake * reward_per_token - tally.
type Engine[P Key, S Key] struct {
	tier    string
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a pool tier. The tier name namespaces its storage.
func NewEngine[P Key, S Key](tier string) *Engine[P, S] {
	return &Engine[P, S]{tier: tier, emitter: events.NoopEmitter{}}
}

func (e *Engine[P, S]) SetState(state engineState) { e.state = state }

func (e *Engine[P, S]) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Tier returns the pool tier name.
func (e *Engine[P, S]) Tier() string { return e.tier }

func (e *Engine[P, S]) loadPool(pool P) (*Pool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	rec, err := e.state.RewardPool(e.tier, pool.Bytes())
	if err != nil {
		return nil, err
	}
	return rec.ensure(), nil
}

func (e *Engine[P, S]) loadStake(pool P, stake S) (*Stake, error) {
	if e.state == nil {
		return nil, errNilState
	}
	rec, err := e.state.RewardStake(e.tier, pool.Bytes(), stake.Bytes())
	if err != nil {
		return nil, err
	}
	return rec.ensure(), nil
}

func (e *Engine[P, S]) store(pool P, stake S, p *Pool, s *Stake) error {
	if err := e.state.PutRewardPool(e.tier, pool.Bytes(), p); err != nil {
		return err
	}
	return e.state.PutRewardStake(e.tier, pool.Bytes(), stake.Bytes(), s)
}

// adjustTallies adds (or subtracts when negative) reward_per_token * amount
// to each currency tally.
func adjustTallies(p *Pool, s *Stake, amount *big.Int) error {
	for _, entry := range p.RewardPerToken {
		delta, err := entry.Value.MulInt(amount)
		if err != nil {
			return err
		}
		tally, err := s.RewardTally.Get(entry.Currency).Add(delta)
		if err != nil {
			return err
		}
		s.RewardTally = s.RewardTally.Set(entry.Currency, tally)
	}
	return nil
}

// DepositStake adds amount to the stake.
func (e *Engine[P, S]) DepositStake(pool P, stake S, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	p, err := e.loadPool(pool)
	if err != nil {
		return err
	}
	s, err := e.loadStake(pool, stake)
	if err != nil {
		return err
	}
	if err := adjustTallies(p, s, amount); err != nil {
		return err
	}
	s.Amount = new(big.Int).Add(s.Amount, amount)
	p.TotalStake = new(big.Int).Add(p.TotalStake, amount)
	return e.store(pool, stake, p, s)
}

// WithdrawStake removes amount from the stake. Accrued rewards stay
// claimable.
func (e *Engine[P, S]) WithdrawStake(pool P, stake S, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	p, err := e.loadPool(pool)
	if err != nil {
		return err
	}
	s, err := e.loadStake(pool, stake)
	if err != nil {
		return err
	}
	if s.Amount.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	if err := adjustTallies(p, s, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	s.Amount = new(big.Int).Sub(s.Amount, amount)
	p.TotalStake = new(big.Int).Sub(p.TotalStake, amount)
	return e.store(pool, stake, p, s)
}

// SetStake moves the stake to exactly amount.
func (e *Engine[P, S]) SetStake(pool P, stake S, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	current, err := e.Stake(pool, stake)
	if err != nil {
		return err
	}
	switch current.Cmp(amount) {
	case -1:
		return e.DepositStake(pool, stake, new(big.Int).Sub(amount, current))
	case 1:
		return e.WithdrawStake(pool, stake, new(big.Int).Sub(current, amount))
	default:
		return nil
	}
}

// DistributeReward spreads amount of currency over the pool's stake.
func (e *Engine[P, S]) DistributeReward(pool P, currency types.CurrencyID, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	p, err := e.loadPool(pool)
	if err != nil {
		return err
	}
	if p.TotalStake.Sign() == 0 {
		return ErrZeroTotalStake
	}
	increment, err := fixed.SignedRatio(amount, p.TotalStake)
	if err != nil {
		return err
	}
	rpt, err := p.RewardPerToken.Get(currency).Add(increment)
	if err != nil {
		return err
	}
	p.RewardPerToken = p.RewardPerToken.Set(currency, rpt)
	total := p.TotalRewards.Get(currency)
	p.TotalRewards = p.TotalRewards.Set(currency, total.Add(total, amount))
	if err := e.state.PutRewardPool(e.tier, pool.Bytes(), p); err != nil {
		return err
	}
	e.emitter.Emit(events.Structured{Evt: distributedEvent(e.tier, pool.Bytes(), currency, amount)})
	return nil
}

func pending(p *Pool, s *Stake, currency types.CurrencyID) (*big.Int, error) {
	stake, err := fixed.SignedFromInt(s.Amount)
	if err != nil {
		return nil, err
	}
	accrued, err := stake.Mul(p.RewardPerToken.Get(currency))
	if err != nil {
		return nil, err
	}
	owed, err := accrued.Sub(s.RewardTally.Get(currency))
	if err != nil {
		return nil, err
	}
	reward := owed.FloorInt()
	if reward.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return reward, nil
}

// ComputeReward returns the claimable reward, rounded down.
func (e *Engine[P, S]) ComputeReward(pool P, stake S, currency types.CurrencyID) (*big.Int, error) {
	p, err := e.loadPool(pool)
	if err != nil {
		return nil, err
	}
	s, err := e.loadStake(pool, stake)
	if err != nil {
		return nil, err
	}
	return pending(p, s, currency)
}

// WithdrawReward claims the reward and resets the tally.
func (e *Engine[P, S]) WithdrawReward(pool P, stake S, currency types.CurrencyID) (*big.Int, error) {
	p, err := e.loadPool(pool)
	if err != nil {
		return nil, err
	}
	s, err := e.loadStake(pool, stake)
	if err != nil {
		return nil, err
	}
	reward, err := pending(p, s, currency)
	if err != nil {
		return nil, err
	}
	if reward.Sign() == 0 {
		return reward, nil
	}
	// only the paid integer part is booked; the fractional remainder stays
	// claimable.
	paid, err := fixed.SignedFromInt(reward)
	if err != nil {
		return nil, err
	}
	tally, err := s.RewardTally.Get(currency).Add(paid)
	if err != nil {
		return nil, err
	}
	s.RewardTally = s.RewardTally.Set(currency, tally)
	total := p.TotalRewards.Get(currency)
	total.Sub(total, reward)
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	p.TotalRewards = p.TotalRewards.Set(currency, total)
	if err := e.store(pool, stake, p, s); err != nil {
		return nil, err
	}
	return reward, nil
}

// Stake returns the participant's stake.
func (e *Engine[P, S]) Stake(pool P, stake S) (*big.Int, error) {
	s, err := e.loadStake(pool, stake)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(s.Amount), nil
}

// TotalStake returns the pool's total stake.
func (e *Engine[P, S]) TotalStake(pool P) (*big.Int, error) {
	p, err := e.loadPool(pool)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.TotalStake), nil
}

// TotalRewards returns distributed but not yet withdrawn rewards.
func (e *Engine[P, S]) TotalRewards(pool P, currency types.CurrencyID) (*big.Int, error) {
	p, err := e.loadPool(pool)
	if err != nil {
		return nil, err
	}
	return p.TotalRewards.Get(currency), nil
}

func distributedEvent(tier string, pool []byte, currency types.CurrencyID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: "reward.distributed",
		Attributes: map[string]string{
			"tier":     tier,
			"pool":     string(pool),
			"currency": currency.String(),
			"amount":   events.FormatAmount(amount),
		},
	}
}
