package reward

import (
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
)

// Accumulator is a per-currency fixed-point entry. Records keep them in
// slices because RLP has no map encoding.
type Accumulator struct {
	Currency types.CurrencyID
	Value    fixed.Signed
}

// Accumulators is an ordered per-currency set.
type Accumulators []Accumulator

func (a Accumulators) Get(currency types.CurrencyID) fixed.Signed {
	for _, entry := range a {
		if entry.Currency == currency {
			return entry.Value
		}
	}
	return fixed.Signed{}
}

func (a Accumulators) Set(currency types.CurrencyID, value fixed.Signed) Accumulators {
	for i := range a {
		if a[i].Currency == currency {
			a[i].Value = value
			return a
		}
	}
	return append(a, Accumulator{Currency: currency, Value: value})
}

// Currencies lists the currencies with an entry.
func (a Accumulators) Currencies() []types.CurrencyID {
	out := make([]types.CurrencyID, 0, len(a))
	for _, entry := range a {
		out = append(out, entry.Currency)
	}
	return out
}

// Amount is a per-currency integer entry.
type Amount struct {
	Currency types.CurrencyID
	Value    *big.Int
}

// Amounts is an ordered per-currency set of balances.
type Amounts []Amount

func (a Amounts) Get(currency types.CurrencyID) *big.Int {
	for _, entry := range a {
		if entry.Currency == currency && entry.Value != nil {
			return new(big.Int).Set(entry.Value)
		}
	}
	return big.NewInt(0)
}

func (a Amounts) Set(currency types.CurrencyID, value *big.Int) Amounts {
	for i := range a {
		if a[i].Currency == currency {
			a[i].Value = new(big.Int).Set(value)
			return a
		}
	}
	return append(a, Amount{Currency: currency, Value: new(big.Int).Set(value)})
}

// Pool is the persisted state of one reward pool.
type Pool struct {
	TotalStake     *big.Int
	RewardPerToken Accumulators
	TotalRewards   Amounts
}

func (p *Pool) ensure() *Pool {
	if p == nil {
		p = &Pool{}
	}
	if p.TotalStake == nil {
		p.TotalStake = big.NewInt(0)
	}
	return p
}

// Stake is the persisted state of one participant in a pool.
type Stake struct {
	Amount      *big.Int
	RewardTally Accumulators
}

func (s *Stake) ensure() *Stake {
	if s == nil {
		s = &Stake{}
	}
	if s.Amount == nil {
		s.Amount = big.NewInt(0)
	}
	return s
}
