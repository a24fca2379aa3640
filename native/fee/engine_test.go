package fee

import (
	"errors"
	"math/big"
	"testing"

	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
	"vaultbridge/native/reward"
	"vaultbridge/native/staking"
)

type mockState struct {
	rates         *Rates
	commission    map[types.VaultID]fixed.Unsigned
	undistributed map[types.CurrencyID]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		commission:    make(map[types.VaultID]fixed.Unsigned),
		undistributed: make(map[types.CurrencyID]*big.Int),
	}
}

func (m *mockState) FeeRates() (*Rates, error) { return m.rates, nil }
func (m *mockState) PutFeeRates(r *Rates) error {
	cp := *r
	m.rates = &cp
	return nil
}
func (m *mockState) VaultCommission(v types.VaultID) (fixed.Unsigned, error) {
	return m.commission[v], nil
}
func (m *mockState) PutVaultCommission(v types.VaultID, rate fixed.Unsigned) error {
	m.commission[v] = rate
	return nil
}
func (m *mockState) FeeUndistributed(cur types.CurrencyID) (*big.Int, error) {
	if v, ok := m.undistributed[cur]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, nil
}
func (m *mockState) PutFeeUndistributed(cur types.CurrencyID, amount *big.Int) error {
	m.undistributed[cur] = new(big.Int).Set(amount)
	return nil
}

type transfer struct {
	from, to types.AccountID
	amount   int64
}

type mockCurrency struct{ transfers []transfer }

func (m *mockCurrency) Transfer(from, to types.AccountID, _ types.CurrencyID, amount *big.Int) error {
	m.transfers = append(m.transfers, transfer{from: from, to: to, amount: amount.Int64()})
	return nil
}

type mockCapacity struct {
	empty       bool
	fail        error
	distributed int64
	pending     int64
}

func (m *mockCapacity) DistributeReward(_ reward.CapacityKey, _ types.CurrencyID, amount *big.Int) error {
	if m.empty {
		return reward.ErrZeroTotalStake
	}
	if m.fail != nil {
		return m.fail
	}
	m.distributed += amount.Int64()
	return nil
}

func (m *mockCapacity) WithdrawReward(reward.CapacityKey, types.CurrencyID, types.CurrencyID) (*big.Int, error) {
	out := big.NewInt(m.pending)
	m.pending = 0
	return out, nil
}

type mockVaultRewards struct {
	fail        error
	distributed int64
	share       int64
}

func (m *mockVaultRewards) DistributeReward(_ types.CurrencyID, _ types.CurrencyID, amount *big.Int) error {
	if m.fail != nil {
		return m.fail
	}
	m.distributed += amount.Int64()
	return nil
}

func (m *mockVaultRewards) WithdrawReward(types.CurrencyID, types.VaultID, types.CurrencyID) (*big.Int, error) {
	out := big.NewInt(m.share)
	m.share = 0
	return out, nil
}

type mockStaking struct {
	empty       bool
	distributed int64
	owed        int64
}

func (m *mockStaking) Nonce(types.VaultID) (uint64, error) { return 0, nil }
func (m *mockStaking) DistributeReward(_ types.VaultID, _ types.CurrencyID, amount *big.Int) error {
	if m.empty {
		return staking.ErrZeroTotalStake
	}
	m.distributed += amount.Int64()
	return nil
}
func (m *mockStaking) ComputeRewardAt(uint64, types.VaultID, types.AccountID, types.CurrencyID) (*big.Int, error) {
	return big.NewInt(m.owed), nil
}
func (m *mockStaking) WithdrawReward(uint64, types.VaultID, types.AccountID, types.CurrencyID) (*big.Int, error) {
	out := big.NewInt(m.owed)
	m.owed = 0
	return out, nil
}

type harness struct {
	engine   *Engine
	state    *mockState
	currency *mockCurrency
	capacity *mockCapacity
	vaults   *mockVaultRewards
	staking  *mockStaking
}

func newHarness() *harness {
	h := &harness{
		engine:   NewEngine(),
		state:    newMockState(),
		currency: &mockCurrency{},
		capacity: &mockCapacity{},
		vaults:   &mockVaultRewards{},
		staking:  &mockStaking{},
	}
	h.engine.SetState(h.state)
	h.engine.SetCurrency(h.currency)
	h.engine.SetCapacityRewards(h.capacity)
	h.engine.SetVaultRewards(h.vaults)
	h.engine.SetStaking(h.staking)
	return h
}

func testVault() types.VaultID {
	var account types.AccountID
	account[0] = 0x0a
	return types.NewVaultID(account, types.Token("DOT"), types.Wrapped())
}

func TestRateSettersRejectAboveMaximum(t *testing.T) {
	h := newHarness()
	if err := h.engine.SetIssueFee(fixed.MustParse("1.000000000000000001")); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	if err := h.engine.SetPunishmentFee(fixed.One()); err != nil {
		t.Fatalf("rate of exactly one: %v", err)
	}
	if err := h.engine.SetCommission(testVault(), fixed.MustParse("1.5")); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate for commission, got %v", err)
	}
	rates, err := h.engine.Rates()
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if !rates.IssueFee.IsZero() || rates.PunishmentFee.Cmp(fixed.One()) != 0 {
		t.Fatalf("unexpected rates: %+v", rates)
	}
}

func TestFeesRoundDown(t *testing.T) {
	h := newHarness()
	if err := h.engine.SetIssueFee(fixed.MustParse("0.005")); err != nil {
		t.Fatalf("set issue fee: %v", err)
	}
	cases := map[int64]int64{200: 1, 250: 1, 399: 1, 400: 2, 199: 0}
	for amount, want := range cases {
		got, err := h.engine.IssueFee(big.NewInt(amount))
		if err != nil {
			t.Fatalf("issue fee %d: %v", amount, err)
		}
		if got.Int64() != want {
			t.Fatalf("issue fee of %d: expected %d, got %s", amount, want, got)
		}
	}
	if _, err := h.engine.RedeemFee(big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestDistributeRewardsHoldsBackWithoutStake(t *testing.T) {
	h := newHarness()
	h.capacity.empty = true
	if err := h.engine.DistributeRewards(types.Wrapped(), big.NewInt(7)); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	held, err := h.engine.Undistributed(types.Wrapped())
	if err != nil {
		t.Fatalf("undistributed: %v", err)
	}
	if held.Int64() != 7 {
		t.Fatalf("expected 7 held back, got %s", held)
	}
	swept, err := h.engine.SweepUndistributed(types.Wrapped())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept.Int64() != 7 || len(h.currency.transfers) != 1 {
		t.Fatalf("unexpected sweep %s transfers %+v", swept, h.currency.transfers)
	}
	tr := h.currency.transfers[0]
	if tr.from != types.FeePoolAccount || tr.to != types.DefaultTreasuryAccount {
		t.Fatalf("sweep went %s -> %s", tr.from, tr.to)
	}
	held, _ = h.engine.Undistributed(types.Wrapped())
	if held.Sign() != 0 {
		t.Fatalf("expected nothing held after sweep, got %s", held)
	}
}

func TestDistributeAllVaultRewardsPaysCommission(t *testing.T) {
	h := newHarness()
	vault := testVault()
	if err := h.engine.SetCommission(vault, fixed.MustParse("0.1")); err != nil {
		t.Fatalf("commission: %v", err)
	}
	h.capacity.pending = 40
	h.vaults.share = 25
	if err := h.engine.DistributeAllVaultRewards(vault); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if h.vaults.distributed != 40 {
		t.Fatalf("expected 40 pulled into vault rewards, got %d", h.vaults.distributed)
	}
	if h.staking.distributed != 23 {
		t.Fatalf("expected 23 to nominators, got %d", h.staking.distributed)
	}
	if len(h.currency.transfers) != 1 || h.currency.transfers[0].amount != 2 || h.currency.transfers[0].to != vault.AccountID {
		t.Fatalf("unexpected commission transfers %+v", h.currency.transfers)
	}
}

func TestWithdrawRewardsPaysFromFeePool(t *testing.T) {
	h := newHarness()
	vault := testVault()
	var nominator types.AccountID
	nominator[0] = 0x0b
	h.staking.owed = 9
	computed, err := h.engine.ComputeRewards(vault, nominator, 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if computed.Get(types.Wrapped()).Int64() != 9 {
		t.Fatalf("expected 9 computed, got %s", computed.Get(types.Wrapped()))
	}
	paid, err := h.engine.WithdrawRewards(vault, nominator, 0)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Get(types.Wrapped()).Int64() != 9 {
		t.Fatalf("expected 9 paid, got %s", paid.Get(types.Wrapped()))
	}
	if len(h.currency.transfers) != 1 || h.currency.transfers[0].from != types.FeePoolAccount {
		t.Fatalf("unexpected transfers %+v", h.currency.transfers)
	}
}

func TestEmptyStakingPoolDefersVaultShare(t *testing.T) {
	h := newHarness()
	vault := testVault()
	h.staking.empty = true
	h.vaults.share = 5
	if err := h.engine.DistributeAllVaultRewards(vault); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	held, _ := h.engine.Undistributed(types.Wrapped())
	if held.Int64() != 5 {
		t.Fatalf("expected 5 held back, got %s", held)
	}
}

func TestDistributionErrorsDeferRewards(t *testing.T) {
	h := newHarness()
	h.capacity.fail = fixed.ErrOverflow
	if err := h.engine.DistributeRewards(types.Wrapped(), big.NewInt(11)); err != nil {
		t.Fatalf("distribute must not fail: %v", err)
	}
	held, _ := h.engine.Undistributed(types.Wrapped())
	if held.Int64() != 11 {
		t.Fatalf("expected 11 held back, got %s", held)
	}

	h.vaults.fail = errors.New("vault pool unavailable")
	h.capacity.pending = 6
	if err := h.engine.DistributeAllVaultRewards(testVault()); err != nil {
		t.Fatalf("distribute vault rewards must not fail: %v", err)
	}
	held, _ = h.engine.Undistributed(types.Wrapped())
	if held.Int64() != 17 {
		t.Fatalf("expected 17 held back, got %s", held)
	}
}
