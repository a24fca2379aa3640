package indexer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
)

type plainEvent string

func (p plainEvent) EventType() string { return string(p) }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func structured(eventType string, attrs map[string]string) events.Event {
	return events.Structured{Evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func TestEmitPersistsAttributesAndHeight(t *testing.T) {
	store := newTestStore(t)
	store.SetHeight(7)
	store.Emit(structured("issue.requested", map[string]string{"id": "ab", "amount": "1000"}))
	store.SetHeight(8)
	store.Emit(structured("issue.executed", map[string]string{"id": "ab"}))
	store.Emit(plainEvent("redeem.requested"))
	require.NoError(t, store.Err())

	count, err := store.Count()
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	requested, err := store.ByType("issue.requested", 0)
	require.NoError(t, err)
	require.Len(t, requested, 1)
	require.Equal(t, uint64(7), requested[0].Height)
	require.Equal(t, "issue", requested[0].Module)
	attrs, err := requested[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "1000", attrs["amount"])

	plain, err := store.ByType("redeem.requested", 0)
	require.NoError(t, err)
	require.Len(t, plain, 1)
	attrs, err = plain[0].Decode()
	require.NoError(t, err)
	require.Empty(t, attrs)
}

func TestByModuleFiltersHeight(t *testing.T) {
	store := newTestStore(t)
	for h := uint64(1); h <= 4; h++ {
		store.SetHeight(h)
		store.Emit(structured("vaultregistry.collateral_deposited", map[string]string{"height": fmt.Sprint(h)}))
		store.Emit(structured("fee.rewards_withdrawn", nil))
	}
	records, err := store.ByModule("vaultregistry", 3)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(3), records[0].Height)
	require.Equal(t, uint64(4), records[1].Height)
}

func TestByTypeLimitKeepsOldestFirst(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		store.Emit(structured("oracle.fed", map[string]string{"n": fmt.Sprint(i)}))
	}
	records, err := store.ByType("oracle.fed", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	first, err := records[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "0", first["n"])
}
