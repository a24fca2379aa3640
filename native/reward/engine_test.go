package reward

import (
	"errors"
	"math/big"
	"testing"

	"vaultbridge/core/types"
)

type mockState struct {
	pools  map[string]*Pool
	stakes map[string]*Stake
}

func newMockState() *mockState {
	return &mockState{pools: make(map[string]*Pool), stakes: make(map[string]*Stake)}
}

func (m *mockState) RewardPool(tier string, pool []byte) (*Pool, error) {
	p, ok := m.pools[tier+"/"+string(pool)]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.RewardPerToken = append(Accumulators(nil), p.RewardPerToken...)
	cp.TotalRewards = append(Amounts(nil), p.TotalRewards...)
	return &cp, nil
}

func (m *mockState) PutRewardPool(tier string, pool []byte, record *Pool) error {
	m.pools[tier+"/"+string(pool)] = record
	return nil
}

func (m *mockState) RewardStake(tier string, pool, stake []byte) (*Stake, error) {
	s, ok := m.stakes[tier+"/"+string(pool)+"/"+string(stake)]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.RewardTally = append(Accumulators(nil), s.RewardTally...)
	return &cp, nil
}

func (m *mockState) PutRewardStake(tier string, pool, stake []byte, record *Stake) error {
	m.stakes[tier+"/"+string(pool)+"/"+string(stake)] = record
	return nil
}

type account byte

func (a account) Bytes() []byte { return []byte{byte(a)} }

func newTestEngine() *Engine[CapacityKey, account] {
	engine := NewEngine[CapacityKey, account]("test")
	engine.SetState(newMockState())
	return engine
}

func mustReward(t *testing.T, e *Engine[CapacityKey, account], who account, cur types.CurrencyID) int64 {
	t.Helper()
	r, err := e.ComputeReward(CapacityKey{}, who, cur)
	if err != nil {
		t.Fatalf("compute reward: %v", err)
	}
	return r.Int64()
}

func TestDistributeProportionalToStake(t *testing.T) {
	e := newTestEngine()
	wrapped := types.Wrapped()
	pool := CapacityKey{}

	if err := e.DepositStake(pool, account(1), big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.DepositStake(pool, account(2), big.NewInt(300)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.DistributeReward(pool, wrapped, big.NewInt(1000)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := mustReward(t, e, account(1), wrapped); got != 250 {
		t.Fatalf("expected 250, got %d", got)
	}
	if got := mustReward(t, e, account(2), wrapped); got != 750 {
		t.Fatalf("expected 750, got %d", got)
	}
}

func TestLateDepositDoesNotShareEarlierRewards(t *testing.T) {
	e := newTestEngine()
	wrapped := types.Wrapped()
	pool := CapacityKey{}

	if err := e.DepositStake(pool, account(1), big.NewInt(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.DistributeReward(pool, wrapped, big.NewInt(100)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if err := e.DepositStake(pool, account(2), big.NewInt(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.DistributeReward(pool, wrapped, big.NewInt(100)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if got := mustReward(t, e, account(1), wrapped); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
	if got := mustReward(t, e, account(2), wrapped); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestWithdrawStakeKeepsAccruedRewards(t *testing.T) {
	e := newTestEngine()
	wrapped := types.Wrapped()
	pool := CapacityKey{}

	if err := e.DepositStake(pool, account(1), big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.DistributeReward(pool, wrapped, big.NewInt(40)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if err := e.WithdrawStake(pool, account(1), big.NewInt(10)); err != nil {
		t.Fatalf("withdraw stake: %v", err)
	}
	if got := mustReward(t, e, account(1), wrapped); got != 40 {
		t.Fatalf("expected 40 after withdrawing stake, got %d", got)
	}
	if err := e.WithdrawStake(pool, account(1), big.NewInt(1)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected insufficient stake, got %v", err)
	}
	if err := e.DistributeReward(pool, wrapped, big.NewInt(1)); !errors.Is(err, ErrZeroTotalStake) {
		t.Fatalf("expected zero total stake, got %v", err)
	}
}

func TestWithdrawRewardConservesTotals(t *testing.T) {
	e := newTestEngine()
	wrapped := types.Wrapped()
	pool := CapacityKey{}

	for i, amount := range []int64{1, 1, 1} {
		if err := e.DepositStake(pool, account(i+1), big.NewInt(amount)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	if err := e.DistributeReward(pool, wrapped, big.NewInt(10)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	var paid int64
	for i := 1; i <= 3; i++ {
		r, err := e.WithdrawReward(pool, account(i), wrapped)
		if err != nil {
			t.Fatalf("withdraw reward: %v", err)
		}
		if r.Int64() != 3 {
			t.Fatalf("expected 3, got %s", r)
		}
		paid += r.Int64()
	}
	left, err := e.TotalRewards(pool, wrapped)
	if err != nil {
		t.Fatalf("total rewards: %v", err)
	}
	if paid+left.Int64() != 10 {
		t.Fatalf("paid %d + unclaimed %s != distributed 10", paid, left)
	}
	if got := mustReward(t, e, account(1), wrapped); got != 0 {
		t.Fatalf("expected nothing left to claim, got %d", got)
	}
}

func TestSetStake(t *testing.T) {
	e := newTestEngine()
	pool := CapacityKey{}
	for _, target := range []int64{10, 4, 4, 0} {
		if err := e.SetStake(pool, account(1), big.NewInt(target)); err != nil {
			t.Fatalf("set stake %d: %v", target, err)
		}
		got, err := e.Stake(pool, account(1))
		if err != nil || got.Int64() != target {
			t.Fatalf("stake: expected %d, got %v %v", target, got, err)
		}
		total, _ := e.TotalStake(pool)
		if total.Int64() != target {
			t.Fatalf("total stake: expected %d, got %s", target, total)
		}
	}
}
