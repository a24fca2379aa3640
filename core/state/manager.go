package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vaultbridge/storage/trie"
)

// Manager persists every protocol record in the state trie. Records are RLP
// encoded and stored under the keccak256 hash of a readable key.
//
// Manager is not safe for concurrent use.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

// Trie exposes the trie the manager writes to.
func (m *Manager) Trie() *trie.Trie { return m.trie }

// Snapshot returns a copy of the current trie that Restore can reinstate.
func (m *Manager) Snapshot() (*trie.Trie, error) {
	return m.trie.Copy()
}

// Restore discards every change made since snap was taken.
func (m *Manager) Restore(snap *trie.Trie) {
	if snap != nil {
		m.trie = snap
	}
}

// Commit persists pending changes and returns the new state root.
func (m *Manager) Commit(height uint64) (common.Hash, error) {
	return m.trie.Commit(height)
}

// Root returns the root hash including uncommitted changes.
func (m *Manager) Root() common.Hash { return m.trie.Hash() }

var errEmptyKey = errors.New("state: empty key")

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	return m.trie.Delete(kvKey(key))
}

// KVAppend appends value to the byte slice list stored under key. Duplicates
// are ignored to keep indexes deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	hashed := kvKey(key)
	data, err := m.trie.Get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.trie.Update(hashed, encoded)
}

// KVGetList decodes the list stored under key into out, which must point to
// a slice. Missing keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("state: list destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("state: list destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

// getRecord loads the record under key, returning nil when it is absent.
func getRecord[T any](m *Manager, key []byte) (*T, error) {
	var out T
	ok, err := m.KVGet(key, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// ParamStoreSet stores a raw governance parameter.
func (m *Manager) ParamStoreSet(name string, value []byte) error {
	return m.KVPut(paramKey(name), value)
}

// ParamStoreGet loads a raw governance parameter.
func (m *Manager) ParamStoreGet(name string) ([]byte, bool, error) {
	var out []byte
	ok, err := m.KVGet(paramKey(name), &out)
	return out, ok, err
}
