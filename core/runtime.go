package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"vaultbridge/core/events"
	"vaultbridge/core/state"
	"vaultbridge/core/types"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/common"
	"vaultbridge/native/currency"
	"vaultbridge/native/fee"
	"vaultbridge/native/issue"
	"vaultbridge/native/nomination"
	"vaultbridge/native/oracle"
	"vaultbridge/native/params"
	"vaultbridge/native/redeem"
	"vaultbridge/native/replace"
	"vaultbridge/native/reward"
	"vaultbridge/native/security"
	"vaultbridge/native/staking"
	"vaultbridge/native/vaultregistry"
	"vaultbridge/observability"
)

var (
	ErrBadOrigin      = errors.New("core: bad origin")
	ErrNotVaultOwner  = errors.New("core: origin does not operate the vault")
	ErrGenesisApplied = errors.New("core: genesis already applied")
)

const (
	capacityTier = "capacity"
	vaultTier    = "vault"
)

// Options configure a Runtime.
type Options struct {
	// Root is the governance account allowed to change parameters.
	Root types.AccountID
	// Treasury receives cancelled griefing and swept fees. Defaults to
	// types.DefaultTreasuryAccount.
	Treasury              types.AccountID
	BitcoinParams         *chaincfg.Params
	MillisPerBlock        uint64
	BlocksPerBitcoinBlock uint64
	// Emitter receives the events of committed extrinsics.
	Emitter events.Emitter
	Logger  *slog.Logger
	Metrics *observability.ProtocolMetrics
}

// Runtime wires the protocol engines over one state trie and dispatches
// extrinsics against them. Each extrinsic either applies fully or leaves
// no trace.
//
// Runtime is not safe for concurrent use.
type Runtime struct {
	state   *state.Manager
	relay   btcrelay.Relay
	root    types.AccountID
	height  uint64
	buffer  *events.Buffer
	sink    events.Emitter
	logger  *slog.Logger
	metrics *observability.ProtocolMetrics

	currency   *currency.Engine
	security   *security.Engine
	oracle     *oracle.Engine
	capacity   *reward.Engine[reward.CapacityKey, types.CurrencyID]
	vaultPool  *reward.Engine[types.CurrencyID, types.VaultID]
	staking    *staking.Engine
	registry   *vaultregistry.Engine
	fee        *fee.Engine
	issue      *issue.Engine
	redeem     *redeem.Engine
	replace    *replace.Engine
	nomination *nomination.Engine
	params     *params.Store
}

// NewRuntime builds a runtime over st that verifies bitcoin payments with
// relay.
func NewRuntime(st *state.Manager, relay btcrelay.Relay, opts Options) (*Runtime, error) {
	if st == nil {
		return nil, fmt.Errorf("core: state manager required")
	}
	if relay == nil {
		return nil, fmt.Errorf("core: bitcoin relay required")
	}
	if opts.BitcoinParams == nil {
		opts.BitcoinParams = &chaincfg.MainNetParams
	}
	if opts.Treasury.IsZero() {
		opts.Treasury = types.DefaultTreasuryAccount
	}
	if opts.BlocksPerBitcoinBlock == 0 {
		opts.BlocksPerBitcoinBlock = security.DefaultBlocksPerBitcoinBlock
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Runtime{
		state:      st,
		relay:      relay,
		root:       opts.Root,
		buffer:     &events.Buffer{},
		sink:       opts.Emitter,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		currency:   currency.NewEngine(),
		security:   security.NewEngine(),
		oracle:     oracle.NewEngine(opts.MillisPerBlock),
		capacity:   reward.NewEngine[reward.CapacityKey, types.CurrencyID](capacityTier),
		vaultPool:  reward.NewEngine[types.CurrencyID, types.VaultID](vaultTier),
		staking:    staking.NewEngine(),
		registry:   vaultregistry.NewEngine(),
		fee:        fee.NewEngine(),
		issue:      issue.NewEngine(),
		redeem:     redeem.NewEngine(),
		replace:    replace.NewEngine(),
		nomination: nomination.NewEngine(),
		params:     params.NewStore(st),
	}
	r.wire(opts)
	head, err := st.ChainHead()
	if err != nil {
		return nil, fmt.Errorf("core: load chain head: %w", err)
	}
	r.height = head.Height
	return r, nil
}

func (r *Runtime) wire(opts Options) {
	st := r.state

	r.currency.SetState(st)
	r.currency.SetEmitter(r.buffer)

	r.security.SetState(st)
	r.security.SetBlocksPerBitcoinBlock(opts.BlocksPerBitcoinBlock)
	r.security.SetEmitter(r.buffer)

	r.oracle.SetState(st)
	r.oracle.SetClock(r.security)
	r.oracle.SetEmitter(r.buffer)

	r.capacity.SetState(st)
	r.capacity.SetEmitter(r.buffer)
	r.vaultPool.SetState(st)
	r.vaultPool.SetEmitter(r.buffer)
	r.staking.SetState(st)
	r.staking.SetEmitter(r.buffer)

	r.fee.SetState(st)
	r.fee.SetCurrency(r.currency)
	r.fee.SetCapacityRewards(r.capacity)
	r.fee.SetVaultRewards(r.vaultPool)
	r.fee.SetStaking(r.staking)
	r.fee.SetTreasury(opts.Treasury)
	r.fee.SetEmitter(r.buffer)

	r.registry.SetState(st)
	r.registry.SetCurrency(r.currency)
	r.registry.SetStaking(r.staking)
	r.registry.SetOracle(r.oracle)
	r.registry.SetVaultRewards(r.vaultPool)
	r.registry.SetCapacityRewards(r.capacity)
	r.registry.SetRewardDistributor(r.fee)
	r.registry.SetClock(r.security)
	r.registry.SetBitcoinParams(opts.BitcoinParams)
	r.registry.SetEmitter(r.buffer)
	r.oracle.OnRateChange(r.registry.RefreshCapacityStake)

	r.issue.SetState(st)
	r.issue.SetRegistry(r.registry)
	r.issue.SetFee(r.fee)
	r.issue.SetCurrency(r.currency)
	r.issue.SetOracle(r.oracle)
	r.issue.SetSecurity(r.security)
	r.issue.SetRelay(r.relay)
	r.issue.SetTreasury(opts.Treasury)
	r.issue.SetEmitter(r.buffer)

	r.redeem.SetState(st)
	r.redeem.SetRegistry(r.registry)
	r.redeem.SetFee(r.fee)
	r.redeem.SetCurrency(r.currency)
	r.redeem.SetOracle(r.oracle)
	r.redeem.SetSecurity(r.security)
	r.redeem.SetRelay(r.relay)
	r.redeem.SetEmitter(r.buffer)

	r.nomination.SetState(st)
	r.nomination.SetRegistry(r.registry)
	r.nomination.SetStaking(r.staking)
	r.nomination.SetEmitter(r.buffer)

	r.replace.SetState(st)
	r.replace.SetRegistry(r.registry)
	r.replace.SetFee(r.fee)
	r.replace.SetOracle(r.oracle)
	r.replace.SetNomination(r.nomination)
	r.replace.SetSecurity(r.security)
	r.replace.SetRelay(r.relay)
	r.replace.SetEmitter(r.buffer)
}

// dispatch runs fn as one extrinsic. On error every state change and event
// of fn is dropped.
func (r *Runtime) dispatch(module, call string, fn func() error) error {
	start := time.Now()
	snap, err := r.state.Snapshot()
	if err != nil {
		return err
	}
	r.buffer.Discard()
	err = fn()
	r.metrics.ObserveExtrinsic(module, call, err, time.Since(start))
	if err != nil {
		r.state.Restore(snap)
		r.buffer.Discard()
		r.logger.Debug("extrinsic failed", "module", module, "call", call, "error", err)
		return err
	}
	r.flush()
	return nil
}

func (r *Runtime) flush() {
	for _, evt := range r.buffer.Drain() {
		observability.Events().Record(evt.EventType())
		if payload := events.Payload(evt); payload != nil {
			switch payload.Type {
			case "vaultregistry.vault_liquidated":
				r.metrics.RecordLiquidation(payload.Attributes["pair"])
				r.logger.Warn("vault liquidated", "vault", payload.Attributes["vault"], "pair", payload.Attributes["pair"])
			case "fee.distribution_deferred":
				r.logger.Warn("reward distribution deferred", "currency", payload.Attributes["currency"], "amount", payload.Attributes["amount"])
			}
		}
		r.sink.Emit(evt)
	}
}

// user runs a user extrinsic: the bridge must be running and the module not
// paused.
func (r *Runtime) user(module, call string, fn func() error) error {
	return r.dispatch(module, call, func() error {
		if err := r.security.EnsureRunning(); err != nil {
			return err
		}
		pauses, err := r.params.Pauses()
		if err != nil {
			return err
		}
		if err := common.Guard(pauses, module); err != nil {
			return err
		}
		return fn()
	})
}

// governance runs a root-only extrinsic.
func (r *Runtime) governance(origin types.AccountID, call string, fn func() error) error {
	return r.dispatch("governance", call, func() error {
		if r.root.IsZero() || origin != r.root {
			return ErrBadOrigin
		}
		return fn()
	})
}

func ensureOwner(origin types.AccountID, vault types.VaultID) error {
	if origin != vault.AccountID {
		return ErrNotVaultOwner
	}
	return nil
}

// Genesis applies fn as the one-off initialisation of a fresh state. Its
// events reach the sink like those of any extrinsic.
func (r *Runtime) Genesis(fn func() error) error {
	return r.dispatch("genesis", "init", func() error {
		head, err := r.state.ChainHead()
		if err != nil {
			return err
		}
		if head.GenesisApplied {
			return ErrGenesisApplied
		}
		if err := fn(); err != nil {
			return err
		}
		head.GenesisApplied = true
		return r.state.PutChainHead(head)
	})
}

// GenesisApplied reports whether the state has been initialised.
func (r *Runtime) GenesisApplied() (bool, error) {
	head, err := r.state.ChainHead()
	if err != nil {
		return false, err
	}
	return head.GenesisApplied, nil
}

// BeginBlock opens the next block with the hash of its parent.
func (r *Runtime) BeginBlock(parent types.H256) error {
	if err := r.security.BeginBlock(parent); err != nil {
		return err
	}
	head, err := r.state.ChainHead()
	if err != nil {
		return err
	}
	head.Height = r.height + 1
	if err := r.state.PutChainHead(head); err != nil {
		return err
	}
	r.height = head.Height
	r.flush()
	return nil
}

// Commit persists the block and returns the new state root.
func (r *Runtime) Commit() (ethcommon.Hash, error) {
	root, err := r.state.Commit(r.height)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	r.metrics.SetHeight(r.height)
	r.publishIssued()
	return root, nil
}

// AdvanceBlocks begins and commits n empty blocks.
func (r *Runtime) AdvanceBlocks(n int) error {
	for i := 0; i < n; i++ {
		parent := types.H256(r.state.Root())
		if err := r.BeginBlock(parent); err != nil {
			return err
		}
		if _, err := r.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) publishIssued() {
	if r.metrics == nil {
		return
	}
	ids, err := r.registry.VaultIDs()
	if err != nil {
		return
	}
	totals := make(map[string]*big.Int)
	for _, id := range ids {
		v, err := r.registry.Vault(id)
		if err != nil {
			continue
		}
		pair := id.Currencies.String()
		if totals[pair] == nil {
			totals[pair] = new(big.Int)
		}
		totals[pair].Add(totals[pair], v.Issued)
	}
	for pair, total := range totals {
		f, _ := new(big.Float).SetInt(total).Float64()
		r.metrics.SetIssued(pair, f)
	}
}

// Height returns the number of blocks begun.
func (r *Runtime) Height() uint64 { return r.height }

func (r *Runtime) State() *state.Manager                 { return r.state }
func (r *Runtime) Currency() *currency.Engine            { return r.currency }
func (r *Runtime) Security() *security.Engine            { return r.security }
func (r *Runtime) Oracle() *oracle.Engine                { return r.oracle }
func (r *Runtime) Staking() *staking.Engine              { return r.staking }
func (r *Runtime) Registry() *vaultregistry.Engine       { return r.registry }
func (r *Runtime) Fee() *fee.Engine                      { return r.fee }
func (r *Runtime) Issue() *issue.Engine                  { return r.issue }
func (r *Runtime) Redeem() *redeem.Engine                { return r.redeem }
func (r *Runtime) Replace() *replace.Engine              { return r.replace }
func (r *Runtime) Nomination() *nomination.Engine        { return r.nomination }
func (r *Runtime) Params() *params.Store                 { return r.params }
func (r *Runtime) Relay() btcrelay.Relay                 { return r.relay }
func (r *Runtime) VaultRewards() *reward.Engine[types.CurrencyID, types.VaultID] {
	return r.vaultPool
}
