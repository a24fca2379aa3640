package security

import (
	"errors"
	"testing"

	"vaultbridge/core/types"
)

type mockState struct {
	rec *Record
}

func (m *mockState) SecurityRecord() (*Record, error) {
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

func (m *mockState) PutSecurityRecord(rec *Record) error {
	cp := *rec
	m.rec = &cp
	return nil
}

func TestActiveBlockOnlyAdvancesWhileRunning(t *testing.T) {
	engine := NewEngine()
	engine.SetState(&mockState{})

	if err := engine.BeginBlock(types.H256{1}); err != nil {
		t.Fatalf("begin block: %v", err)
	}
	if got := engine.ActiveBlockNumber(); got != 1 {
		t.Fatalf("expected active block 1, got %d", got)
	}
	if err := engine.SetStatus(StatusError); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := engine.BeginBlock(types.H256{2}); err != nil {
		t.Fatalf("begin block: %v", err)
	}
	if got := engine.ActiveBlockNumber(); got != 1 {
		t.Fatalf("active block advanced while halted: %d", got)
	}
	if err := engine.EnsureRunning(); !errors.Is(err, ErrParachainNotRunning) {
		t.Fatalf("expected not running, got %v", err)
	}
}

func TestGenerateSecureIDIsUniqueAndDeterministic(t *testing.T) {
	engine := NewEngine()
	engine.SetState(&mockState{})
	parent := types.H256{9}
	if err := engine.BeginBlock(parent); err != nil {
		t.Fatalf("begin block: %v", err)
	}
	var acct types.AccountID
	acct[0] = 7

	first, err := engine.GenerateSecureID(acct)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := engine.GenerateSecureID(acct)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatalf("ids must differ across nonces")
	}
	if first != SecureID(acct, 1, parent) {
		t.Fatalf("id does not match derivation")
	}
}

func TestHasRequestExpiredNeedsBothChains(t *testing.T) {
	state := &mockState{rec: &Record{ActiveBlock: 200}}
	engine := NewEngine()
	engine.SetState(state)

	// parachain deadline passed, bitcoin deadline not yet (period 100 => 10 btc blocks)
	if engine.HasRequestExpired(50, 1000, 100, 1010, 10) {
		t.Fatalf("should not expire before bitcoin deadline")
	}
	if !engine.HasRequestExpired(50, 1000, 100, 1011, 10) {
		t.Fatalf("should expire after both deadlines")
	}
	if engine.HasRequestExpired(100, 1000, 100, 2000, 10) {
		t.Fatalf("should not expire at exactly opentime+period")
	}
}
