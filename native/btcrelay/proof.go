package btcrelay

import (
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TxProof proves inclusion of a transaction in a block known to the relay.
type TxProof struct {
	BlockHash  chainhash.Hash
	TxIndex    uint32
	MerklePath []chainhash.Hash
	Tx         *wire.MsgTx
}

// FullTransactionProof carries the user transaction together with the
// coinbase of the same block. Proving the coinbase at index 0 pins the tree
// depth so an inner node cannot be passed off as a transaction.
type FullTransactionProof struct {
	UserTx     TxProof
	CoinbaseTx TxProof
}

func hashPair(left, right *chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// merkleLevels returns every level of the tree, leaves first. Odd levels
// duplicate their last node as bitcoin does.
func merkleLevels(leaves []chainhash.Hash) [][]chainhash.Hash {
	if len(leaves) == 0 {
		return nil
	}
	levels := [][]chainhash.Hash{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([]chainhash.Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			right := current[i]
			if i+1 < len(current) {
				right = current[i+1]
			}
			next = append(next, hashPair(&current[i], &right))
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}

// MerkleRoot computes the root over the transaction ids of txs.
func MerkleRoot(txs []*wire.MsgTx) chainhash.Hash {
	levels := merkleLevels(txHashes(txs))
	if len(levels) == 0 {
		return chainhash.Hash{}
	}
	return levels[len(levels)-1][0]
}

// MerklePath returns the sibling hashes from leaf index up to the root.
func MerklePath(txs []*wire.MsgTx, index int) []chainhash.Hash {
	levels := merkleLevels(txHashes(txs))
	var path []chainhash.Hash
	for _, level := range levels[:max(len(levels)-1, 0)] {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		path = append(path, level[sibling])
		index >>= 1
	}
	return path
}

func txHashes(txs []*wire.MsgTx) []chainhash.Hash {
	out := make([]chainhash.Hash, len(txs))
	for i, tx := range txs {
		out[i] = tx.TxHash()
	}
	return out
}

// ComputeMerkleRoot folds a proof's path over the transaction hash.
func (p TxProof) ComputeMerkleRoot() chainhash.Hash {
	current := p.Tx.TxHash()
	index := p.TxIndex
	for i := range p.MerklePath {
		if index&1 == 0 {
			current = hashPair(&current, &p.MerklePath[i])
		} else {
			current = hashPair(&p.MerklePath[i], &current)
		}
		index >>= 1
	}
	return current
}

func isCoinbase(tx *wire.MsgTx) bool {
	if tx == nil || len(tx.TxIn) != 1 {
		return false
	}
	prev := tx.TxIn[0].PreviousOutPoint
	return prev.Index == math.MaxUint32 && prev.Hash == (chainhash.Hash{})
}
