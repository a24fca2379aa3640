package vaultregistry

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/currency"
	"vaultbridge/native/fixed"
	"vaultbridge/native/reward"
)

var (
	ErrVaultNotFound                     = errors.New("vaultregistry: vault not found")
	ErrVaultAlreadyRegistered            = errors.New("vaultregistry: vault already registered")
	ErrVaultLiquidated                   = errors.New("vaultregistry: vault liquidated")
	ErrVaultBanned                       = errors.New("vaultregistry: vault banned")
	ErrVaultNotAcceptingIssues           = errors.New("vaultregistry: vault not accepting new issues")
	ErrVaultNotRecoverable               = errors.New("vaultregistry: vault cannot be recovered")
	ErrVaultNotBelowLiquidationThreshold = errors.New("vaultregistry: vault not below liquidation threshold")
	ErrPairNotFound                      = errors.New("vaultregistry: currency pair not found")
	ErrInvalidCurrency                   = errors.New("vaultregistry: invalid currency")
	ErrInvalidThreshold                  = errors.New("vaultregistry: invalid threshold")
	ErrInsufficientCollateral            = errors.New("vaultregistry: insufficient collateral")
	ErrInsufficientVaultCollateralAmount = errors.New("vaultregistry: collateral below vault minimum")
	ErrExceedingVaultLimit               = errors.New("vaultregistry: exceeding system collateral ceiling")
	ErrInsufficientTokensCommitted       = errors.New("vaultregistry: insufficient tokens committed")
	ErrInvariantViolation                = errors.New("vaultregistry: token commitment underflow")
	ErrNoBitcoinPublicKey                = errors.New("vaultregistry: no bitcoin public key registered")
	ErrPublicKeyAlreadyRegistered        = errors.New("vaultregistry: bitcoin public key already registered")
	ErrReservedDepositAddress            = errors.New("vaultregistry: deposit address already in use")
	ErrInvalidAmount                     = errors.New("vaultregistry: amount must not be negative")
	errNilState                          = errors.New("vaultregistry: state not configured")
)

// ReplaceGriefingCurrency is the currency replace griefing is pledged in.
var ReplaceGriefingCurrency = types.Native()

type engineState interface {
	Vault(id types.VaultID) (*Vault, error)
	PutVault(vault *Vault) error
	VaultIDs() ([]types.VaultID, error)
	AppendVaultID(id types.VaultID) error
	LiquidationVault(pair types.VaultCurrencyPair) (*LiquidationVault, error)
	PutLiquidationVault(vault *LiquidationVault) error
	VaultPairParams(pair types.VaultCurrencyPair) (*PairParams, error)
	PutVaultPairParams(pair types.VaultCurrencyPair, params *PairParams) error
	MinimumCollateral(currency types.CurrencyID) (*big.Int, error)
	PutMinimumCollateral(currency types.CurrencyID, amount *big.Int) error
	PunishmentDelay() (uint64, error)
	PutPunishmentDelay(blocks uint64) error
	TotalUserVaultCollateral(pair types.VaultCurrencyPair) (*big.Int, error)
	PutTotalUserVaultCollateral(pair types.VaultCurrencyPair, amount *big.Int) error
	VaultPublicKey(account types.AccountID) (bitcoin.PublicKey, error)
	PutVaultPublicKey(account types.AccountID, key bitcoin.PublicKey) error
	DepositAddressOwner(addr bitcoin.Address) (types.H256, bool, error)
	PutDepositAddress(addr bitcoin.Address, id types.H256) error
}

// Currency is the balance ledger collateral moves through.
type Currency interface {
	FreeBalance(account types.AccountID, cur types.CurrencyID) (*big.Int, error)
	ReservedBalance(account types.AccountID, cur types.CurrencyID) (*big.Int, error)
	Lock(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	Unlock(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	Transfer(from, to types.AccountID, cur types.CurrencyID, amount *big.Int) error
	TransferReserved(from, to types.AccountID, cur types.CurrencyID, amount *big.Int, dest currency.Status) error
}

// Staking holds the backing collateral of each vault.
type Staking interface {
	Nonce(vault types.VaultID) (uint64, error)
	DepositStake(vault types.VaultID, nominator types.AccountID, amount *big.Int) error
	WithdrawStake(vault types.VaultID, nominator types.AccountID, amount *big.Int) error
	WithdrawStakeAt(nonce uint64, vault types.VaultID, nominator types.AccountID, amount *big.Int) error
	SlashStake(vault types.VaultID, amount *big.Int) error
	ComputeStake(vault types.VaultID, nominator types.AccountID) (*big.Int, error)
	ComputeStakeAt(nonce uint64, vault types.VaultID, nominator types.AccountID) (*big.Int, error)
	TotalCurrentStake(vault types.VaultID) (*big.Int, error)
	IncrementNonce(vault types.VaultID) (uint64, error)
	ForceRefund(vault types.VaultID) (*big.Int, error)
}

// Oracle converts between wrapped and collateral amounts.
type Oracle interface {
	WrappedToCollateral(amount *big.Int, cur types.CurrencyID) (*big.Int, error)
	CollateralToWrapped(amount *big.Int, cur types.CurrencyID) (*big.Int, error)
}

// VaultRewards is the per collateral currency reward tier.
type VaultRewards interface {
	SetStake(pool types.CurrencyID, stake types.VaultID, amount *big.Int) error
	TotalStake(pool types.CurrencyID) (*big.Int, error)
}

// CapacityRewards is the top reward tier, staked per collateral currency.
type CapacityRewards interface {
	SetStake(pool reward.CapacityKey, stake types.CurrencyID, amount *big.Int) error
}

// RewardDistributor pulls a vault's pending rewards through the tiers.
type RewardDistributor interface {
	DistributeAllVaultRewards(vault types.VaultID) error
}

// Clock exposes the active block height.
type Clock interface {
	ActiveBlockNumber() uint64
}

// Engine is the vault registry: the authority over vault token commitments,
// collateralization and liquidation.
type Engine struct {
	state        engineState
	emitter      events.Emitter
	currency     Currency
	staking      Staking
	oracle       Oracle
	vaultRewards VaultRewards
	capacity     CapacityRewards
	distributor  RewardDistributor
	clock        Clock
	btcParams    *chaincfg.Params
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, btcParams: &chaincfg.MainNetParams}
}

func (e *Engine) SetState(state engineState)               { e.state = state }
func (e *Engine) SetCurrency(c Currency)                   { e.currency = c }
func (e *Engine) SetStaking(s Staking)                     { e.staking = s }
func (e *Engine) SetOracle(o Oracle)                       { e.oracle = o }
func (e *Engine) SetVaultRewards(r VaultRewards)           { e.vaultRewards = r }
func (e *Engine) SetCapacityRewards(r CapacityRewards)     { e.capacity = r }
func (e *Engine) SetRewardDistributor(d RewardDistributor) { e.distributor = d }
func (e *Engine) SetClock(c Clock)                         { e.clock = c }

// SetBitcoinParams selects the network deposit addresses are encoded for.
func (e *Engine) SetBitcoinParams(params *chaincfg.Params) {
	if params != nil {
		e.btcParams = params
	}
}

func (e *Engine) BitcoinParams() *chaincfg.Params { return e.btcParams }

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

func (e *Engine) now() uint64 {
	if e.clock == nil {
		return 0
	}
	return e.clock.ActiveBlockNumber()
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// CalculateCollateral returns total * numerator / denominator rounded down,
// or zero when the denominator is zero.
func CalculateCollateral(total, numerator, denominator *big.Int) *big.Int {
	if denominator == nil || denominator.Sign() == 0 || total == nil || numerator == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(total, numerator)
	out.Quo(out, denominator)
	if out.Cmp(currency.MaxBalance) > 0 {
		return new(big.Int).Set(currency.MaxBalance)
	}
	return out
}

func (e *Engine) loadVault(id types.VaultID) (*Vault, error) {
	if e.state == nil {
		return nil, errNilState
	}
	v, err := e.state.Vault(id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVaultNotFound
	}
	return v.ensure(), nil
}

func (e *Engine) loadActiveVault(id types.VaultID) (*Vault, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	if v.IsLiquidated() {
		return nil, ErrVaultLiquidated
	}
	return v, nil
}

func (e *Engine) loadLiquidationVault(pair types.VaultCurrencyPair) (*LiquidationVault, error) {
	if e.state == nil {
		return nil, errNilState
	}
	lv, err := e.state.LiquidationVault(pair)
	if err != nil {
		return nil, err
	}
	if lv == nil {
		lv = &LiquidationVault{Currencies: pair}
	}
	return lv.ensure(), nil
}

// Vault returns a copy of the vault record.
func (e *Engine) Vault(id types.VaultID) (*Vault, error) {
	v, err := e.loadVault(id)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

// VaultExists reports whether the vault is registered.
func (e *Engine) VaultExists(id types.VaultID) (bool, error) {
	_, err := e.loadVault(id)
	if errors.Is(err, ErrVaultNotFound) {
		return false, nil
	}
	return err == nil, err
}

// VaultIDs lists every registered vault in registration order.
func (e *Engine) VaultIDs() ([]types.VaultID, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.VaultIDs()
}

// LiquidationVault returns the pair's liquidation vault.
func (e *Engine) LiquidationVault(pair types.VaultCurrencyPair) (*LiquidationVault, error) {
	return e.loadLiquidationVault(pair)
}

// Pair returns the pair parameters.
func (e *Engine) Pair(pair types.VaultCurrencyPair) (*PairParams, error) {
	if e.state == nil {
		return nil, errNilState
	}
	params, err := e.state.VaultPairParams(pair)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, ErrPairNotFound
	}
	if params.SystemCollateralCeiling == nil {
		params.SystemCollateralCeiling = big.NewInt(0)
	}
	return params, nil
}

func validatePair(pair types.VaultCurrencyPair, params *PairParams) error {
	if !pair.Wrapped.IsWrapped() || pair.Collateral.IsWrapped() {
		return ErrInvalidCurrency
	}
	if err := pair.Collateral.Validate(); err != nil {
		return ErrInvalidCurrency
	}
	secure, premium, liquidation := params.SecureThreshold, params.PremiumThreshold, params.LiquidationThreshold
	if secure.IsZero() || premium.IsZero() || liquidation.IsZero() {
		return ErrInvalidThreshold
	}
	if premium.Cmp(secure) > 0 || liquidation.Cmp(premium) > 0 {
		return ErrInvalidThreshold
	}
	if params.SystemCollateralCeiling != nil && params.SystemCollateralCeiling.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// SetPairParams registers or replaces a currency pair.
func (e *Engine) SetPairParams(pair types.VaultCurrencyPair, params PairParams) error {
	if e.state == nil {
		return errNilState
	}
	if err := validatePair(pair, &params); err != nil {
		return err
	}
	if params.SystemCollateralCeiling == nil {
		params.SystemCollateralCeiling = big.NewInt(0)
	}
	if err := e.state.PutVaultPairParams(pair, &params); err != nil {
		return err
	}
	e.emit(pairEvent(pair, &params))
	return nil
}

func (e *Engine) updatePair(pair types.VaultCurrencyPair, update func(*PairParams)) error {
	params, err := e.Pair(pair)
	if err != nil {
		return err
	}
	update(params)
	return e.SetPairParams(pair, *params)
}

func (e *Engine) SetSecureThreshold(pair types.VaultCurrencyPair, threshold fixed.Unsigned) error {
	return e.updatePair(pair, func(p *PairParams) { p.SecureThreshold = threshold })
}

func (e *Engine) SetPremiumThreshold(pair types.VaultCurrencyPair, threshold fixed.Unsigned) error {
	return e.updatePair(pair, func(p *PairParams) { p.PremiumThreshold = threshold })
}

func (e *Engine) SetLiquidationThreshold(pair types.VaultCurrencyPair, threshold fixed.Unsigned) error {
	return e.updatePair(pair, func(p *PairParams) { p.LiquidationThreshold = threshold })
}

// SetSystemCollateralCeiling caps the pair's total collateral. Zero removes
// the cap.
func (e *Engine) SetSystemCollateralCeiling(pair types.VaultCurrencyPair, ceiling *big.Int) error {
	if err := checkAmount(ceiling); err != nil {
		return err
	}
	return e.updatePair(pair, func(p *PairParams) { p.SystemCollateralCeiling = new(big.Int).Set(ceiling) })
}

// MinimumCollateral returns the smallest collateral a vault may hold.
func (e *Engine) MinimumCollateral(cur types.CurrencyID) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	amount, err := e.state.MinimumCollateral(cur)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (e *Engine) SetMinimumCollateral(cur types.CurrencyID, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	return e.state.PutMinimumCollateral(cur, new(big.Int).Set(amount))
}

func (e *Engine) PunishmentDelay() (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	return e.state.PunishmentDelay()
}

func (e *Engine) SetPunishmentDelay(blocks uint64) error {
	if e.state == nil {
		return errNilState
	}
	return e.state.PutPunishmentDelay(blocks)
}

// TotalUserVaultCollateral returns the collateral all vaults of the pair
// hold.
func (e *Engine) TotalUserVaultCollateral(pair types.VaultCurrencyPair) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	total, err := e.state.TotalUserVaultCollateral(pair)
	if err != nil {
		return nil, err
	}
	if total == nil {
		return big.NewInt(0), nil
	}
	return total, nil
}

func (e *Engine) adjustPairCollateral(pair types.VaultCurrencyPair, delta *big.Int) error {
	if delta.Sign() == 0 {
		return nil
	}
	total, err := e.TotalUserVaultCollateral(pair)
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	return e.state.PutTotalUserVaultCollateral(pair, total)
}

func (e *Engine) checkCeiling(pair types.VaultCurrencyPair, amount *big.Int) error {
	params, err := e.Pair(pair)
	if err != nil {
		return err
	}
	if params.SystemCollateralCeiling.Sign() == 0 {
		return nil
	}
	total, err := e.TotalUserVaultCollateral(pair)
	if err != nil {
		return err
	}
	if total.Add(total, amount).Cmp(params.SystemCollateralCeiling) > 0 {
		return ErrExceedingVaultLimit
	}
	return nil
}

// RegisterPublicKey sets the key deposit addresses of account's vaults are
// derived from.
func (e *Engine) RegisterPublicKey(account types.AccountID, key bitcoin.PublicKey) error {
	if e.state == nil {
		return errNilState
	}
	if key.IsZero() {
		return bitcoin.ErrInvalidPublicKey
	}
	existing, err := e.state.VaultPublicKey(account)
	if err != nil {
		return err
	}
	if !existing.IsZero() {
		return ErrPublicKeyAlreadyRegistered
	}
	if err := e.state.PutVaultPublicKey(account, key); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "vaultregistry.public_key_registered",
		Attributes: map[string]string{
			"account":    account.String(),
			"public_key": key.String(),
		},
	})
	return nil
}

// PublicKey returns the account's registered key.
func (e *Engine) PublicKey(account types.AccountID) (bitcoin.PublicKey, error) {
	if e.state == nil {
		return bitcoin.PublicKey{}, errNilState
	}
	key, err := e.state.VaultPublicKey(account)
	if err != nil {
		return bitcoin.PublicKey{}, err
	}
	if key.IsZero() {
		return bitcoin.PublicKey{}, ErrNoBitcoinPublicKey
	}
	return key, nil
}

// RegisterDepositAddress derives the unique address for a request from the
// vault operator's key.
func (e *Engine) RegisterDepositAddress(vault types.VaultID, id types.H256) (bitcoin.Address, error) {
	key, err := e.PublicKey(vault.AccountID)
	if err != nil {
		return "", err
	}
	derived, err := bitcoin.DeriveDepositKey(key, id)
	if err != nil {
		return "", err
	}
	addr, err := bitcoin.DepositAddress(derived, e.btcParams)
	if err != nil {
		return "", err
	}
	if _, used, err := e.state.DepositAddressOwner(addr); err != nil {
		return "", err
	} else if used {
		return "", ErrReservedDepositAddress
	}
	if err := e.state.PutDepositAddress(addr, id); err != nil {
		return "", err
	}
	return addr, nil
}
