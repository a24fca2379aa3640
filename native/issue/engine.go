package issue

import (
	"errors"
	"math/big"
	"strconv"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/vaultregistry"
)

var (
	ErrRequestNotFound  = errors.New("issue: request not found")
	ErrRequestCompleted = errors.New("issue: request already completed")
	ErrRequestCancelled = errors.New("issue: request already cancelled")
	ErrTimeNotExpired   = errors.New("issue: request has not expired")
	ErrAmountBelowDust  = errors.New("issue: amount below dust value")
	ErrUnauthorizedUser = errors.New("issue: only the requester may do this")
	ErrInvalidAmount    = errors.New("issue: amount must be positive")
	errNilState         = errors.New("issue: state not configured")
)

type engineState interface {
	IssueRequest(id types.H256) (*Request, error)
	PutIssueRequest(req *Request) error
	IssueRequestIndex(owner []byte) ([]types.H256, error)
	AppendIssueRequestIndex(owner []byte, id types.H256) error
	IssueParams() (*Params, error)
	PutIssueParams(params *Params) error
}

// Registry is the vault registry as seen by the issue protocol.
type Registry interface {
	Vault(id types.VaultID) (*vaultregistry.Vault, error)
	EnsureNotBanned(id types.VaultID) error
	TryIncreaseToBeIssuedTokens(id types.VaultID, amount *big.Int) error
	DecreaseToBeIssuedTokens(id types.VaultID, amount *big.Int) error
	IssueTokens(id types.VaultID, amount *big.Int) error
	RegisterDepositAddress(id types.VaultID, request types.H256) (bitcoin.Address, error)
	TransferFunds(from, to vaultregistry.CurrencySource, cur types.CurrencyID, amount *big.Int) error
}

// Fee computes issue fees and distributes them.
type Fee interface {
	IssueFee(amount *big.Int) (*big.Int, error)
	IssueGriefingCollateral(amount *big.Int) (*big.Int, error)
	DistributeRewards(cur types.CurrencyID, amount *big.Int) error
}

// Currency mints the issued tokens.
type Currency interface {
	Mint(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
}

// Oracle prices the griefing collateral.
type Oracle interface {
	Convert(amount *big.Int, from, to types.CurrencyID) (*big.Int, error)
}

// Security provides request ids and deadlines.
type Security interface {
	ActiveBlockNumber() uint64
	GenerateSecureID(account types.AccountID) (types.H256, error)
	HasExpired(opentime uint64, btcHeight uint32, period uint64, btcBest uint32) bool
}

// Engine runs the issue protocol: a user locks griefing collateral, pays
// BTC to a vault and receives wrapped tokens once the payment is proven.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	registry Registry
	fee      Fee
	currency Currency
	oracle   Oracle
	security Security
	relay    btcrelay.Relay
	treasury types.AccountID
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, treasury: types.DefaultTreasuryAccount}
}

func (e *Engine) SetState(state engineState)    { e.state = state }
func (e *Engine) SetRegistry(r Registry)        { e.registry = r }
func (e *Engine) SetFee(f Fee)                  { e.fee = f }
func (e *Engine) SetCurrency(c Currency)        { e.currency = c }
func (e *Engine) SetOracle(o Oracle)            { e.oracle = o }
func (e *Engine) SetSecurity(s Security)        { e.security = s }
func (e *Engine) SetRelay(r btcrelay.Relay)     { e.relay = r }
func (e *Engine) SetTreasury(a types.AccountID) { e.treasury = a }

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

// Params returns the module parameters.
func (e *Engine) Params() (Params, error) {
	if e.state == nil {
		return Params{}, errNilState
	}
	params, err := e.state.IssueParams()
	if err != nil {
		return Params{}, err
	}
	if params == nil {
		params = &Params{}
	}
	if params.BtcDustValue == nil {
		params.BtcDustValue = big.NewInt(0)
	}
	return *params, nil
}

func (e *Engine) SetIssuePeriod(period uint64) error {
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.Period = period
	return e.state.PutIssueParams(&params)
}

func (e *Engine) SetIssueBtcDustValue(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.BtcDustValue = new(big.Int).Set(amount)
	return e.state.PutIssueParams(&params)
}

// Request returns a copy of the issue request.
func (e *Engine) Request(id types.H256) (*Request, error) {
	req, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// RequestsFor lists the ids of the account's issue requests.
func (e *Engine) RequestsFor(account types.AccountID) ([]types.H256, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.IssueRequestIndex(account.Bytes())
}

// RequestsForVault lists the ids of issue requests made to the vault.
func (e *Engine) RequestsForVault(vault types.VaultID) ([]types.H256, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.IssueRequestIndex(vault.Bytes())
}

func (e *Engine) load(id types.H256) (*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	req, err := e.state.IssueRequest(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req.ensure(), nil
}

// RequestIssue opens an issue request for amount wrapped tokens against
// vault and locks the requester's griefing collateral.
func (e *Engine) RequestIssue(requester types.AccountID, amount *big.Int, vault types.VaultID, griefingCurrency types.CurrencyID) (types.H256, error) {
	if amount == nil || amount.Sign() <= 0 {
		return types.H256{}, ErrInvalidAmount
	}
	if !e.relay.IsInitialized() {
		return types.H256{}, btcrelay.ErrNotInitialized
	}
	v, err := e.registry.Vault(vault)
	if err != nil {
		return types.H256{}, err
	}
	if v.IsLiquidated() {
		return types.H256{}, vaultregistry.ErrVaultLiquidated
	}
	if !v.AcceptsIssues() {
		return types.H256{}, vaultregistry.ErrVaultNotAcceptingIssues
	}
	if err := e.registry.EnsureNotBanned(vault); err != nil {
		return types.H256{}, err
	}
	params, err := e.Params()
	if err != nil {
		return types.H256{}, err
	}

	worth, err := e.oracle.Convert(amount, vault.WrappedCurrency(), griefingCurrency)
	if err != nil {
		return types.H256{}, err
	}
	griefing, err := e.fee.IssueGriefingCollateral(worth)
	if err != nil {
		return types.H256{}, err
	}
	if err := e.registry.TransferFunds(vaultregistry.FreeBalance(requester), vaultregistry.UserGriefing(requester), griefingCurrency, griefing); err != nil {
		return types.H256{}, err
	}
	if amount.Cmp(params.BtcDustValue) < 0 {
		return types.H256{}, ErrAmountBelowDust
	}
	if err := e.registry.TryIncreaseToBeIssuedTokens(vault, amount); err != nil {
		return types.H256{}, err
	}
	fee, err := e.fee.IssueFee(amount)
	if err != nil {
		return types.H256{}, err
	}
	id, err := e.security.GenerateSecureID(requester)
	if err != nil {
		return types.H256{}, err
	}
	addr, err := e.registry.RegisterDepositAddress(vault, id)
	if err != nil {
		return types.H256{}, err
	}
	req := &Request{
		ID:                 id,
		Vault:              vault,
		Requester:          requester,
		Opentime:           e.security.ActiveBlockNumber(),
		Period:             params.Period,
		BtcHeight:          e.relay.BestBlockHeight(),
		BtcAddress:         addr,
		Amount:             new(big.Int).Sub(amount, fee),
		Fee:                fee,
		GriefingCollateral: griefing,
		GriefingCurrency:   griefingCurrency,
		Status:             StatusPending,
	}
	if err := e.state.PutIssueRequest(req); err != nil {
		return types.H256{}, err
	}
	if err := e.state.AppendIssueRequestIndex(requester.Bytes(), id); err != nil {
		return types.H256{}, err
	}
	if err := e.state.AppendIssueRequestIndex(vault.Bytes(), id); err != nil {
		return types.H256{}, err
	}
	e.emit(requestedEvent(req))
	return id, nil
}

// ExecuteIssue completes a request with a proof of the vault's BTC receipt.
// Overpayment is honoured as far as the vault has capacity; underpayment may
// only be settled by the requester and forfeits griefing pro rata.
func (e *Engine) ExecuteIssue(executor types.AccountID, id types.H256, proof *btcrelay.FullTransactionProof) error {
	req, err := e.load(id)
	if err != nil {
		return err
	}
	next, err := req.Status.Complete()
	if err != nil {
		return err
	}
	if req.Status == StatusCancelled {
		if executor != req.Requester {
			return ErrUnauthorizedUser
		}
		v, err := e.registry.Vault(req.Vault)
		if err != nil {
			return err
		}
		if !v.AcceptsIssues() {
			return vaultregistry.ErrVaultNotAcceptingIssues
		}
		if err := e.registry.TryIncreaseToBeIssuedTokens(req.Vault, req.Expected()); err != nil {
			return err
		}
	}
	payment, err := e.relay.VerifyPayment(proof, req.BtcAddress, &req.ID)
	if err != nil {
		return err
	}
	transferred := new(big.Int).SetUint64(payment.Amount)
	expected := req.Expected()
	switch transferred.Cmp(expected) {
	case -1:
		if executor != req.Requester {
			return ErrUnauthorizedUser
		}
		if err := e.decreaseAmount(req, transferred, expected); err != nil {
			return err
		}
	case 1:
		if err := e.tryIncreaseAmount(req, transferred, expected); err != nil {
			return err
		}
	}

	wrapped := req.Vault.WrappedCurrency()
	if err := e.registry.IssueTokens(req.Vault, req.Expected()); err != nil {
		return err
	}
	if err := e.currency.Mint(req.Requester, wrapped, req.Amount); err != nil {
		return err
	}
	if req.Fee.Sign() > 0 {
		if err := e.currency.Mint(types.FeePoolAccount, wrapped, req.Fee); err != nil {
			return err
		}
		if err := e.fee.DistributeRewards(wrapped, req.Fee); err != nil {
			return err
		}
	}
	if err := e.registry.TransferFunds(vaultregistry.UserGriefing(req.Requester), vaultregistry.FreeBalance(req.Requester), req.GriefingCurrency, req.GriefingCollateral); err != nil {
		return err
	}
	req.GriefingCollateral = big.NewInt(0)
	req.Status = next
	if err := e.state.PutIssueRequest(req); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "issue.executed",
		Attributes: map[string]string{
			"id":          req.ID.String(),
			"vault":       req.Vault.String(),
			"requester":   req.Requester.String(),
			"amount":      events.FormatAmount(req.Amount),
			"fee":         events.FormatAmount(req.Fee),
			"transferred": events.FormatAmount(transferred),
		},
	})
	return nil
}

// decreaseAmount scales an underpaid request down to what was transferred
// and slashes the unearned part of the griefing to the treasury.
func (e *Engine) decreaseAmount(req *Request, transferred, expected *big.Int) error {
	released := vaultregistry.CalculateCollateral(req.GriefingCollateral, transferred, expected)
	slashed := new(big.Int).Sub(req.GriefingCollateral, released)
	if err := e.registry.TransferFunds(vaultregistry.UserGriefing(req.Requester), vaultregistry.FreeBalance(e.treasury), req.GriefingCurrency, slashed); err != nil {
		return err
	}
	req.GriefingCollateral = released
	if err := e.registry.DecreaseToBeIssuedTokens(req.Vault, new(big.Int).Sub(expected, transferred)); err != nil {
		return err
	}
	if err := e.rescale(req, transferred); err != nil {
		return err
	}
	e.emit(amountChangedEvent("issue.amount_decreased", req, slashed))
	return nil
}

// tryIncreaseAmount extends an overpaid request when the vault can take on
// the surplus. Otherwise the surplus stays with the vault.
func (e *Engine) tryIncreaseAmount(req *Request, transferred, expected *big.Int) error {
	v, err := e.registry.Vault(req.Vault)
	if err != nil {
		return err
	}
	if v.IsLiquidated() {
		return nil
	}
	surplus := new(big.Int).Sub(transferred, expected)
	err = e.registry.TryIncreaseToBeIssuedTokens(req.Vault, surplus)
	switch {
	case errors.Is(err, vaultregistry.ErrInsufficientCollateral), errors.Is(err, vaultregistry.ErrExceedingVaultLimit):
		return nil
	case err != nil:
		return err
	}
	if err := e.rescale(req, transferred); err != nil {
		return err
	}
	e.emit(amountChangedEvent("issue.amount_increased", req, big.NewInt(0)))
	return nil
}

func (e *Engine) rescale(req *Request, total *big.Int) error {
	fee, err := e.fee.IssueFee(total)
	if err != nil {
		return err
	}
	req.Fee = fee
	req.Amount = new(big.Int).Sub(total, fee)
	return nil
}

// CancelIssue cancels an expired request. The griefing goes to the
// treasury, or back to the requester when the vault has been liquidated.
func (e *Engine) CancelIssue(id types.H256) error {
	req, err := e.load(id)
	if err != nil {
		return err
	}
	next, err := req.Status.Cancel()
	if err != nil {
		return err
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	period := req.Period
	if params.Period > period {
		period = params.Period
	}
	if !e.security.HasExpired(req.Opentime, req.BtcHeight, period, e.relay.BestBlockHeight()) {
		return ErrTimeNotExpired
	}
	if err := e.registry.DecreaseToBeIssuedTokens(req.Vault, req.Expected()); err != nil {
		return err
	}
	v, err := e.registry.Vault(req.Vault)
	if err != nil {
		return err
	}
	dest := e.treasury
	if v.IsLiquidated() {
		dest = req.Requester
	}
	if err := e.registry.TransferFunds(vaultregistry.UserGriefing(req.Requester), vaultregistry.FreeBalance(dest), req.GriefingCurrency, req.GriefingCollateral); err != nil {
		return err
	}
	slashed := req.GriefingCollateral
	req.GriefingCollateral = big.NewInt(0)
	req.Status = next
	if err := e.state.PutIssueRequest(req); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "issue.cancelled",
		Attributes: map[string]string{
			"id":        req.ID.String(),
			"vault":     req.Vault.String(),
			"requester": req.Requester.String(),
			"griefing":  events.FormatAmount(slashed),
			"recipient": dest.String(),
		},
	})
	return nil
}

func requestedEvent(req *Request) *types.Event {
	return &types.Event{
		Type: "issue.requested",
		Attributes: map[string]string{
			"id":          req.ID.String(),
			"vault":       req.Vault.String(),
			"requester":   req.Requester.String(),
			"amount":      events.FormatAmount(req.Amount),
			"fee":         events.FormatAmount(req.Fee),
			"griefing":    events.FormatAmount(req.GriefingCollateral),
			"btc_address": string(req.BtcAddress),
			"opentime":    strconv.FormatUint(req.Opentime, 10),
		},
	}
}

func amountChangedEvent(kind string, req *Request, slashed *big.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"id":      req.ID.String(),
			"amount":  events.FormatAmount(req.Amount),
			"fee":     events.FormatAmount(req.Fee),
			"slashed": events.FormatAmount(slashed),
		},
	}
}
