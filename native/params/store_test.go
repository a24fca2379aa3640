package params

import (
	"errors"
	"testing"

	"vaultbridge/native/common"
)

type memStore map[string][]byte

func (m memStore) ParamStoreSet(name string, value []byte) error {
	m[name] = append([]byte(nil), value...)
	return nil
}

func (m memStore) ParamStoreGet(name string) ([]byte, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func TestPausesDefaultToRunning(t *testing.T) {
	store := NewStore(memStore{})
	pauses, err := store.Pauses()
	if err != nil {
		t.Fatalf("pauses: %v", err)
	}
	if err := common.Guard(pauses, ModuleIssue); err != nil {
		t.Fatalf("expected issue to run, got %v", err)
	}
}

func TestSetPausedGuardsModule(t *testing.T) {
	store := NewStore(memStore{})
	if err := store.SetPaused(ModuleRedeem, true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	pauses, err := store.Pauses()
	if err != nil {
		t.Fatalf("pauses: %v", err)
	}
	if err := common.Guard(pauses, ModuleRedeem); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := common.Guard(pauses, ModuleIssue); err != nil {
		t.Fatalf("issue should stay open, got %v", err)
	}
	if err := store.SetPaused("lending", true); err == nil {
		t.Fatalf("expected unknown module to be rejected")
	}
}
