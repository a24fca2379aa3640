package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"vaultbridge/storage"
)

// Trie is the bridge state trie. It holds the root of the last committed
// block and the pending changes on top of it. Keys are keccak256 hashes
// chosen by the caller.
//
// Trie is not safe for concurrent use.
type Trie struct {
	nodes     *triedb.Database
	pending   *gethtrie.Trie
	committed common.Hash
}

// NewTrie opens the trie at root. A nil or empty root opens the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	committed := gethtypes.EmptyRootHash
	if len(root) > 0 {
		committed = common.BytesToHash(root)
	}
	t := &Trie{nodes: store.TrieDB()}
	if err := t.open(committed); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Trie) open(root common.Hash) error {
	pending, err := gethtrie.New(gethtrie.TrieID(root), t.nodes)
	if err != nil {
		return fmt.Errorf("trie: open root %s: %w", root, err)
	}
	t.pending = pending
	t.committed = root
	return nil
}

func (t *Trie) Get(key []byte) ([]byte, error) { return t.pending.Get(key) }
func (t *Trie) Update(key, value []byte) error { return t.pending.Update(key, value) }
func (t *Trie) Delete(key []byte) error        { return t.pending.Delete(key) }

// Hash returns the root including pending changes.
func (t *Trie) Hash() common.Hash { return t.pending.Hash() }

// Root returns the last committed root.
func (t *Trie) Root() common.Hash { return t.committed }

// Reset drops pending changes and reopens the trie at root.
func (t *Trie) Reset(root common.Hash) error { return t.open(root) }

// Copy returns an independent copy of the pending trie over the same node
// database. Mutating one never affects the other.
func (t *Trie) Copy() (*Trie, error) {
	return &Trie{nodes: t.nodes, pending: t.pending.Copy(), committed: t.committed}, nil
}

// Commit writes the pending changes of block height through to the node
// database and reopens the trie at the new root.
func (t *Trie) Commit(height uint64) (common.Hash, error) {
	root, nodes := t.pending.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.nodes.Update(root, t.committed, height, merged, nil); err != nil {
			return common.Hash{}, fmt.Errorf("trie: update block %d: %w", height, err)
		}
		if err := t.nodes.Commit(root, false); err != nil {
			return common.Hash{}, fmt.Errorf("trie: commit block %d: %w", height, err)
		}
	}
	if err := t.open(root); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}
