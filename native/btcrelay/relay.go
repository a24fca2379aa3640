package btcrelay

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
)

var (
	ErrNotInitialized            = errors.New("btcrelay: relay not initialized")
	ErrAlreadyInitialized        = errors.New("btcrelay: relay already initialized")
	ErrBlockNotFound             = errors.New("btcrelay: block not found")
	ErrPrevBlockMismatch         = errors.New("btcrelay: header does not extend the best chain")
	ErrInvalidMerkleProof        = errors.New("btcrelay: invalid merkle proof")
	ErrInvalidCoinbase           = errors.New("btcrelay: invalid coinbase proof")
	ErrInsufficientConfirmations = errors.New("btcrelay: insufficient confirmations")
	ErrInvalidOpReturn           = errors.New("btcrelay: invalid op_return")
	ErrInvalidPaymentRecipient   = errors.New("btcrelay: transaction does not pay the recipient")
	ErrMissingTransaction        = errors.New("btcrelay: proof carries no transaction")
	ErrInvalidPaymentAmount      = errors.New("btcrelay: invalid payment amount")
	errPaymentAmountOutOfRange   = errors.New("btcrelay: payment amount out of range")
)

// Payment is the verified result of a proof.
type Payment struct {
	Amount uint64
	Height uint32
}

// Relay is the view of the bitcoin light client consumed by the protocol
// modules.
type Relay interface {
	IsInitialized() bool
	BestBlockHeight() uint32
	VerifyPayment(proof *FullTransactionProof, recipient bitcoin.Address, opReturn *types.H256) (Payment, error)
}

type storedHeader struct {
	header wire.BlockHeader
	height uint32
}

// Store is an in-memory header relay. It follows a single chain extended by
// SubmitHeader and verifies payments against it.
type Store struct {
	mu                  sync.RWMutex
	params              *chaincfg.Params
	stableConfirmations uint32
	headers             map[chainhash.Hash]storedHeader
	best                chainhash.Hash
	bestHeight          uint32
	initialized         bool
}

// NewStore creates an empty relay for the given network.
func NewStore(params *chaincfg.Params, stableConfirmations uint32) *Store {
	if params == nil {
		params = &chaincfg.RegressionNetParams
	}
	return &Store{
		params:              params,
		stableConfirmations: stableConfirmations,
		headers:             make(map[chainhash.Hash]storedHeader),
	}
}

// Params returns the network parameters used for address decoding.
func (s *Store) Params() *chaincfg.Params { return s.params }

// SetStableConfirmations changes the required confirmation depth.
func (s *Store) SetStableConfirmations(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stableConfirmations = n
}

// Initialize seeds the relay with a trusted header.
func (s *Store) Initialize(header wire.BlockHeader, height uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return ErrAlreadyInitialized
	}
	hash := header.BlockHash()
	s.headers[hash] = storedHeader{header: header, height: height}
	s.best = hash
	s.bestHeight = height
	s.initialized = true
	return nil
}

// SubmitHeader appends a header to the best chain.
func (s *Store) SubmitHeader(header wire.BlockHeader) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, ErrNotInitialized
	}
	if header.PrevBlock != s.best {
		return 0, ErrPrevBlockMismatch
	}
	hash := header.BlockHash()
	s.bestHeight++
	s.headers[hash] = storedHeader{header: header, height: s.bestHeight}
	s.best = hash
	return s.bestHeight, nil
}

func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) BestBlockHeight() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestHeight
}

// BestBlockHash returns the tip of the relayed chain.
func (s *Store) BestBlockHash() chainhash.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.best
}

// VerifyPayment checks inclusion and confirmation depth of the proof, that
// the coinbase proof belongs to the same block, that the expected OP_RETURN
// is present, and returns the amount paid to recipient.
func (s *Store) VerifyPayment(proof *FullTransactionProof, recipient bitcoin.Address, opReturn *types.H256) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return Payment{}, ErrNotInitialized
	}
	if proof == nil || proof.UserTx.Tx == nil || proof.CoinbaseTx.Tx == nil {
		return Payment{}, ErrMissingTransaction
	}
	stored, ok := s.headers[proof.UserTx.BlockHash]
	if !ok {
		return Payment{}, ErrBlockNotFound
	}
	if s.bestHeight-stored.height+1 < s.stableConfirmations {
		return Payment{}, ErrInsufficientConfirmations
	}
	if proof.UserTx.ComputeMerkleRoot() != stored.header.MerkleRoot {
		return Payment{}, ErrInvalidMerkleProof
	}
	coinbase := proof.CoinbaseTx
	if coinbase.BlockHash != proof.UserTx.BlockHash || coinbase.TxIndex != 0 || !isCoinbase(coinbase.Tx) {
		return Payment{}, ErrInvalidCoinbase
	}
	if coinbase.ComputeMerkleRoot() != stored.header.MerkleRoot {
		return Payment{}, ErrInvalidCoinbase
	}
	if len(coinbase.MerklePath) != len(proof.UserTx.MerklePath) {
		return Payment{}, ErrInvalidMerkleProof
	}

	tx := proof.UserTx.Tx
	if opReturn != nil {
		expected, err := txscript.NullDataScript(opReturn[:])
		if err != nil {
			return Payment{}, fmt.Errorf("btcrelay: build op_return: %w", err)
		}
		found := false
		for _, out := range tx.TxOut {
			if bytes.Equal(out.PkScript, expected) {
				found = true
				break
			}
		}
		if !found {
			return Payment{}, ErrInvalidOpReturn
		}
	}

	script, err := recipient.Script(s.params)
	if err != nil {
		return Payment{}, err
	}
	var total uint64
	paid := false
	for _, out := range tx.TxOut {
		if !bytes.Equal(out.PkScript, script) {
			continue
		}
		if out.Value < 0 || uint64(out.Value) > math.MaxUint64-total {
			return Payment{}, errPaymentAmountOutOfRange
		}
		total += uint64(out.Value)
		paid = true
	}
	if !paid {
		return Payment{}, ErrInvalidPaymentRecipient
	}
	return Payment{Amount: total, Height: stored.height}, nil
}

// MineBlock builds a block on top of the tip containing a fresh coinbase
// followed by txs, submits its header and returns the block. It lets devnets
// and tests produce real proofs without a bitcoin node.
func (s *Store) MineBlock(txs ...*wire.MsgTx) (*wire.MsgBlock, error) {
	s.mu.RLock()
	prev := s.best
	height := s.bestHeight + 1
	s.mu.RUnlock()

	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: math.MaxUint32},
		SignatureScript:  []byte{byte(height), byte(height >> 8), byte(height >> 16), byte(height >> 24)},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	coinbase.AddTxOut(wire.NewTxOut(0, []byte{txscript.OP_TRUE}))

	block := wire.NewMsgBlock(&wire.BlockHeader{
		Version:   4,
		PrevBlock: prev,
		Timestamp: time.Unix(int64(height)*600, 0),
		Bits:      s.params.PowLimitBits,
	})
	if err := block.AddTransaction(coinbase); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if err := block.AddTransaction(tx); err != nil {
			return nil, err
		}
	}
	block.Header.MerkleRoot = MerkleRoot(block.Transactions)
	if _, err := s.SubmitHeader(block.Header); err != nil {
		return nil, err
	}
	return block, nil
}

// ProofFor builds the full proof for the transaction at index in block.
func ProofFor(block *wire.MsgBlock, index int) *FullTransactionProof {
	hash := block.BlockHash()
	return &FullTransactionProof{
		UserTx: TxProof{
			BlockHash:  hash,
			TxIndex:    uint32(index),
			MerklePath: MerklePath(block.Transactions, index),
			Tx:         block.Transactions[index],
		},
		CoinbaseTx: TxProof{
			BlockHash:  hash,
			TxIndex:    0,
			MerklePath: MerklePath(block.Transactions, 0),
			Tx:         block.Transactions[0],
		},
	}
}

// BuildPaymentTx creates an unsigned transaction paying amount satoshis to
// recipient and, when opReturn is set, tagging it with the request id.
func BuildPaymentTx(params *chaincfg.Params, recipient bitcoin.Address, amount int64, opReturn *types.H256) (*wire.MsgTx, error) {
	script, err := recipient.Script(params)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	var funding chainhash.Hash
	if opReturn != nil {
		funding = chainhash.DoubleHashH(opReturn[:])
	}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&funding, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(amount, script))
	if opReturn != nil {
		nullData, err := txscript.NullDataScript(opReturn[:])
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(wire.NewTxOut(0, nullData))
	}
	return tx, nil
}
