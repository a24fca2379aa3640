package nomination

import (
	"errors"
	"math/big"
	"strconv"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/vaultregistry"
)

var (
	ErrNominationDisabled     = errors.New("nomination: nomination disabled")
	ErrVaultNotOptedIn        = errors.New("nomination: vault not opted in")
	ErrVaultAlreadyOptedIn    = errors.New("nomination: vault already opted in")
	ErrVaultHasPendingReplace = errors.New("nomination: vault has tokens offered for replacement")
	ErrInvalidAmount          = errors.New("nomination: amount must be positive")
	errNilState               = errors.New("nomination: state not configured")
)

type engineState interface {
	NominationEnabled() (bool, error)
	PutNominationEnabled(enabled bool) error
	NominationOptedIn(vault types.VaultID) (bool, error)
	PutNominationOptedIn(vault types.VaultID, opted bool) error
}

// Registry is the vault registry as seen by nominators.
type Registry interface {
	Vault(id types.VaultID) (*vaultregistry.Vault, error)
	TryDepositCollateral(id types.VaultID, depositor types.AccountID, amount *big.Int) error
	WithdrawCollateralAt(nonce uint64, id types.VaultID, withdrawer types.AccountID, amount *big.Int) error
	RefundNominators(id types.VaultID) (*big.Int, error)
}

// Staking answers stake queries per pool nonce.
type Staking interface {
	Nonce(vault types.VaultID) (uint64, error)
	ComputeStakeAt(nonce uint64, vault types.VaultID, nominator types.AccountID) (*big.Int, error)
}

// Engine lets third parties stake collateral behind vaults that opted in.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	registry Registry
	staking  Staking
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }
func (e *Engine) SetRegistry(r Registry)     { e.registry = r }
func (e *Engine) SetStaking(s Staking)       { e.staking = s }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter != nil {
		e.emitter.Emit(events.Structured{Evt: evt})
	}
}

// Enabled reports the governance switch.
func (e *Engine) Enabled() (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return e.state.NominationEnabled()
}

func (e *Engine) SetEnabled(enabled bool) error {
	if e.state == nil {
		return errNilState
	}
	if err := e.state.PutNominationEnabled(enabled); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type:       "nomination.enabled_set",
		Attributes: map[string]string{"enabled": strconv.FormatBool(enabled)},
	})
	return nil
}

func (e *Engine) IsOptedIn(vault types.VaultID) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return e.state.NominationOptedIn(vault)
}

func (e *Engine) ensureEnabled() error {
	enabled, err := e.Enabled()
	if err != nil {
		return err
	}
	if !enabled {
		return ErrNominationDisabled
	}
	return nil
}

// OptIn opens the vault to nominators.
func (e *Engine) OptIn(vault types.VaultID) error {
	if err := e.ensureEnabled(); err != nil {
		return err
	}
	v, err := e.registry.Vault(vault)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		return vaultregistry.ErrVaultLiquidated
	}
	if v.ToBeReplaced.Sign() > 0 {
		return ErrVaultHasPendingReplace
	}
	opted, err := e.IsOptedIn(vault)
	if err != nil {
		return err
	}
	if opted {
		return ErrVaultAlreadyOptedIn
	}
	if err := e.state.PutNominationOptedIn(vault, true); err != nil {
		return err
	}
	e.emit(&types.Event{Type: "nomination.opted_in", Attributes: map[string]string{"vault": vault.String()}})
	return nil
}

// OptOut closes the vault to nominators and refunds them into the previous
// staking pool, where they withdraw by nonce.
func (e *Engine) OptOut(vault types.VaultID) error {
	opted, err := e.IsOptedIn(vault)
	if err != nil {
		return err
	}
	if !opted {
		return ErrVaultNotOptedIn
	}
	refunded, err := e.registry.RefundNominators(vault)
	if err != nil {
		return err
	}
	if err := e.state.PutNominationOptedIn(vault, false); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "nomination.opted_out",
		Attributes: map[string]string{
			"vault":    vault.String(),
			"refunded": events.FormatAmount(refunded),
		},
	})
	return nil
}

// DepositCollateral stakes the nominator's free collateral behind an
// opted-in vault.
func (e *Engine) DepositCollateral(vault types.VaultID, nominator types.AccountID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.ensureEnabled(); err != nil {
		return err
	}
	opted, err := e.IsOptedIn(vault)
	if err != nil {
		return err
	}
	if !opted {
		return ErrVaultNotOptedIn
	}
	if err := e.registry.TryDepositCollateral(vault, nominator, amount); err != nil {
		return err
	}
	e.emit(nominatorEvent("nomination.deposited", vault, nominator, amount))
	return nil
}

// WithdrawCollateral withdraws the nominator's stake from the vault's pool
// at nonce. A nil nonce means the current pool.
func (e *Engine) WithdrawCollateral(vault types.VaultID, nominator types.AccountID, amount *big.Int, nonce *uint64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	at, err := e.resolveNonce(vault, nonce)
	if err != nil {
		return err
	}
	if err := e.registry.WithdrawCollateralAt(at, vault, nominator, amount); err != nil {
		return err
	}
	e.emit(nominatorEvent("nomination.withdrawn", vault, nominator, amount))
	return nil
}

// NominatorCollateral returns the nominator's stake in the vault's pool at
// nonce, nil meaning the current pool.
func (e *Engine) NominatorCollateral(vault types.VaultID, nominator types.AccountID, nonce *uint64) (*big.Int, error) {
	at, err := e.resolveNonce(vault, nonce)
	if err != nil {
		return nil, err
	}
	return e.staking.ComputeStakeAt(at, vault, nominator)
}

func (e *Engine) resolveNonce(vault types.VaultID, nonce *uint64) (uint64, error) {
	if nonce != nil {
		return *nonce, nil
	}
	return e.staking.Nonce(vault)
}

func nominatorEvent(kind string, vault types.VaultID, nominator types.AccountID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"vault":     vault.String(),
			"nominator": nominator.String(),
			"amount":    events.FormatAmount(amount),
		},
	}
}
