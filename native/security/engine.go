package security

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
)

var (
	ErrParachainNotRunning = errors.New("security: parachain is not running")
	ErrInvalidStatus       = errors.New("security: invalid status")
	errNilState            = errors.New("security: state not configured")
)

// Status is the operational state of the bridge.
type Status uint8

const (
	StatusRunning Status = iota
	StatusError
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusError:
		return "error"
	case StatusShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// Record is the persisted security state.
type Record struct {
	Status      Status
	ActiveBlock uint64
	ParentHash  types.H256
	Nonce       uint64
}

type engineState interface {
	SecurityRecord() (*Record, error)
	PutSecurityRecord(*Record) error
}

// Engine tracks the bridge status, the active block counter used for request
// deadlines, and the nonce feeding request id derivation.
type Engine struct {
	state                 engineState
	emitter               events.Emitter
	blocksPerBitcoinBlock uint64
}

// DefaultBlocksPerBitcoinBlock is the expected number of bridge blocks per
// bitcoin block.
const DefaultBlocksPerBitcoinBlock = 100

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, blocksPerBitcoinBlock: DefaultBlocksPerBitcoinBlock}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetBlocksPerBitcoinBlock(n uint64) {
	if n > 0 {
		e.blocksPerBitcoinBlock = n
	}
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) load() (*Record, error) {
	if e.state == nil {
		return nil, errNilState
	}
	rec, err := e.state.SecurityRecord()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{}
	}
	return rec, nil
}

// Status returns the current bridge status.
func (e *Engine) Status() (Status, error) {
	rec, err := e.load()
	if err != nil {
		return 0, err
	}
	return rec.Status, nil
}

// SetStatus changes the bridge status.
func (e *Engine) SetStatus(status Status) error {
	if status > StatusShutdown {
		return ErrInvalidStatus
	}
	rec, err := e.load()
	if err != nil {
		return err
	}
	previous := rec.Status
	rec.Status = status
	if err := e.state.PutSecurityRecord(rec); err != nil {
		return err
	}
	if previous != status {
		e.emitter.Emit(events.Structured{Evt: &types.Event{
			Type: "security.status_changed",
			Attributes: map[string]string{
				"from": previous.String(),
				"to":   status.String(),
			},
		}})
	}
	return nil
}

// EnsureRunning fails unless the bridge is running.
func (e *Engine) EnsureRunning() error {
	status, err := e.Status()
	if err != nil {
		return err
	}
	if status != StatusRunning {
		return ErrParachainNotRunning
	}
	return nil
}

// ActiveBlockNumber returns the number of blocks processed while running.
func (e *Engine) ActiveBlockNumber() uint64 {
	rec, err := e.load()
	if err != nil {
		return 0
	}
	return rec.ActiveBlock
}

// BeginBlock records the parent hash and advances the active block counter
// when the bridge is running.
func (e *Engine) BeginBlock(parent types.H256) error {
	rec, err := e.load()
	if err != nil {
		return err
	}
	rec.ParentHash = parent
	if rec.Status == StatusRunning {
		rec.ActiveBlock++
	}
	return e.state.PutSecurityRecord(rec)
}

// GenerateSecureID derives a fresh request id as
// blake2b-256(account || nonce_le || parent_hash) and bumps the nonce.
func (e *Engine) GenerateSecureID(account types.AccountID) (types.H256, error) {
	rec, err := e.load()
	if err != nil {
		return types.H256{}, err
	}
	rec.Nonce++
	id := SecureID(account, rec.Nonce, rec.ParentHash)
	if err := e.state.PutSecurityRecord(rec); err != nil {
		return types.H256{}, err
	}
	return id, nil
}

// SecureID is the pure id derivation.
func SecureID(account types.AccountID, nonce uint64, parent types.H256) types.H256 {
	buf := make([]byte, 0, 20+8+32)
	buf = append(buf, account[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, nonce)
	buf = append(buf, parent[:]...)
	return types.H256(blake2b.Sum256(buf))
}

// HasRequestExpired reports whether a request opened at opentime (active
// block) and btcHeight (relay height) has passed its period on both chains.
// The bitcoin side uses ceil(period / blocksPerBitcoinBlock) blocks.
func (e *Engine) HasRequestExpired(opentime uint64, btcHeight uint32, period uint64, btcBest uint32, blocksPerBitcoinBlock uint64) bool {
	if e.ActiveBlockNumber() <= opentime+period {
		return false
	}
	if blocksPerBitcoinBlock == 0 {
		blocksPerBitcoinBlock = 1
	}
	btcPeriod := (period + blocksPerBitcoinBlock - 1) / blocksPerBitcoinBlock
	return uint64(btcBest) > uint64(btcHeight)+btcPeriod
}

// HasExpired is HasRequestExpired with the configured bitcoin block ratio.
func (e *Engine) HasExpired(opentime uint64, btcHeight uint32, period uint64, btcBest uint32) bool {
	return e.HasRequestExpired(opentime, btcHeight, period, btcBest, e.blocksPerBitcoinBlock)
}
