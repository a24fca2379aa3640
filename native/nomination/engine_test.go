package nomination

import (
	"errors"
	"math/big"
	"testing"

	"vaultbridge/core/types"
	"vaultbridge/native/vaultregistry"
)

type mockState struct {
	enabled bool
	opted   map[types.VaultID]bool
}

func newMockState() *mockState { return &mockState{opted: make(map[types.VaultID]bool)} }

func (m *mockState) NominationEnabled() (bool, error)  { return m.enabled, nil }
func (m *mockState) PutNominationEnabled(v bool) error { m.enabled = v; return nil }
func (m *mockState) NominationOptedIn(id types.VaultID) (bool, error) {
	return m.opted[id], nil
}
func (m *mockState) PutNominationOptedIn(id types.VaultID, v bool) error {
	m.opted[id] = v
	return nil
}

type withdrawal struct {
	nonce  uint64
	amount int64
}

type mockRegistry struct {
	vault       *vaultregistry.Vault
	deposits    map[types.AccountID]int64
	withdrawals []withdrawal
	refunded    int
}

func (m *mockRegistry) Vault(types.VaultID) (*vaultregistry.Vault, error) { return m.vault, nil }

func (m *mockRegistry) TryDepositCollateral(_ types.VaultID, depositor types.AccountID, amount *big.Int) error {
	m.deposits[depositor] += amount.Int64()
	return nil
}

func (m *mockRegistry) WithdrawCollateralAt(nonce uint64, _ types.VaultID, _ types.AccountID, amount *big.Int) error {
	m.withdrawals = append(m.withdrawals, withdrawal{nonce: nonce, amount: amount.Int64()})
	return nil
}

func (m *mockRegistry) RefundNominators(types.VaultID) (*big.Int, error) {
	m.refunded++
	return big.NewInt(30), nil
}

type mockStaking struct{ nonce uint64 }

func (m *mockStaking) Nonce(types.VaultID) (uint64, error) { return m.nonce, nil }
func (m *mockStaking) ComputeStakeAt(nonce uint64, _ types.VaultID, _ types.AccountID) (*big.Int, error) {
	return big.NewInt(int64(nonce) * 10), nil
}

func setup(t *testing.T) (*Engine, *mockState, *mockRegistry, types.VaultID) {
	t.Helper()
	vault := types.NewVaultID(types.AccountID{1}, types.Token("DOT"), types.Wrapped())
	state := newMockState()
	registry := &mockRegistry{
		vault:    &vaultregistry.Vault{ID: vault, Status: vaultregistry.VaultActive, ToBeReplaced: big.NewInt(0)},
		deposits: make(map[types.AccountID]int64),
	}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetRegistry(registry)
	engine.SetStaking(&mockStaking{nonce: 2})
	return engine, state, registry, vault
}

func TestOptInRequiresNominationEnabled(t *testing.T) {
	engine, state, _, vault := setup(t)
	if err := engine.OptIn(vault); !errors.Is(err, ErrNominationDisabled) {
		t.Fatalf("expected ErrNominationDisabled, got %v", err)
	}
	state.enabled = true
	if err := engine.OptIn(vault); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	if err := engine.OptIn(vault); !errors.Is(err, ErrVaultAlreadyOptedIn) {
		t.Fatalf("expected ErrVaultAlreadyOptedIn, got %v", err)
	}
}

func TestOptInRejectsPendingReplace(t *testing.T) {
	engine, state, registry, vault := setup(t)
	state.enabled = true
	registry.vault.ToBeReplaced = big.NewInt(5)
	if err := engine.OptIn(vault); !errors.Is(err, ErrVaultHasPendingReplace) {
		t.Fatalf("expected ErrVaultHasPendingReplace, got %v", err)
	}
}

func TestDepositRequiresOptIn(t *testing.T) {
	engine, state, registry, vault := setup(t)
	state.enabled = true
	nominator := types.AccountID{9}
	if err := engine.DepositCollateral(vault, nominator, big.NewInt(10)); !errors.Is(err, ErrVaultNotOptedIn) {
		t.Fatalf("expected ErrVaultNotOptedIn, got %v", err)
	}
	if err := engine.OptIn(vault); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	if err := engine.DepositCollateral(vault, nominator, big.NewInt(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if registry.deposits[nominator] != 10 {
		t.Fatalf("expected deposit of 10, got %d", registry.deposits[nominator])
	}
}

func TestOptOutRefundsAndClearsFlag(t *testing.T) {
	engine, state, registry, vault := setup(t)
	state.enabled = true
	if err := engine.OptOut(vault); !errors.Is(err, ErrVaultNotOptedIn) {
		t.Fatalf("expected ErrVaultNotOptedIn, got %v", err)
	}
	if err := engine.OptIn(vault); err != nil {
		t.Fatalf("opt in: %v", err)
	}
	if err := engine.OptOut(vault); err != nil {
		t.Fatalf("opt out: %v", err)
	}
	if registry.refunded != 1 {
		t.Fatalf("expected one refund, got %d", registry.refunded)
	}
	if opted, _ := engine.IsOptedIn(vault); opted {
		t.Fatalf("vault still opted in")
	}
}

func TestWithdrawDefaultsToCurrentNonce(t *testing.T) {
	engine, _, registry, vault := setup(t)
	nominator := types.AccountID{9}
	if err := engine.WithdrawCollateral(vault, nominator, big.NewInt(4), nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	old := uint64(1)
	if err := engine.WithdrawCollateral(vault, nominator, big.NewInt(3), &old); err != nil {
		t.Fatalf("withdraw old nonce: %v", err)
	}
	want := []withdrawal{{nonce: 2, amount: 4}, {nonce: 1, amount: 3}}
	if len(registry.withdrawals) != len(want) {
		t.Fatalf("unexpected withdrawals %+v", registry.withdrawals)
	}
	for i := range want {
		if registry.withdrawals[i] != want[i] {
			t.Fatalf("withdrawal %d: got %+v want %+v", i, registry.withdrawals[i], want[i])
		}
	}
	stake, err := engine.NominatorCollateral(vault, nominator, &old)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if stake.Int64() != 10 {
		t.Fatalf("expected stake 10 at nonce 1, got %s", stake)
	}
}
