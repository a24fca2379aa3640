package replace

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/vaultregistry"
)

var (
	ErrRequestNotFound          = errors.New("replace: request not found")
	ErrRequestCompleted         = errors.New("replace: request already completed")
	ErrRequestCancelled         = errors.New("replace: request already cancelled")
	ErrTimeNotExpired           = errors.New("replace: request has not expired")
	ErrAmountBelowDust          = errors.New("replace: amount below dust value")
	ErrReplaceSelfNotAllowed    = errors.New("replace: vault cannot replace itself")
	ErrInvalidWrappedCurrency   = errors.New("replace: vaults back different wrapped currencies")
	ErrVaultOptedIntoNomination = errors.New("replace: vault opted into nomination")
	ErrNoTokensToReplace        = errors.New("replace: no tokens offered for replacement")
	ErrUnauthorizedVault        = errors.New("replace: only the new vault may do this")
	ErrInvalidAmount            = errors.New("replace: amount must be positive")
	errNilState                 = errors.New("replace: state not configured")
)

type engineState interface {
	ReplaceRequest(id types.H256) (*Request, error)
	PutReplaceRequest(req *Request) error
	ReplaceRequestIndex(owner []byte) ([]types.H256, error)
	AppendReplaceRequestIndex(owner []byte, id types.H256) error
	ReplaceParams() (*Params, error)
	PutReplaceParams(params *Params) error
}

// Registry is the vault registry as seen by the replace protocol.
type Registry interface {
	Vault(id types.VaultID) (*vaultregistry.Vault, error)
	EnsureNotBanned(id types.VaultID) error
	BitcoinParams() *chaincfg.Params
	TryDepositCollateral(id types.VaultID, depositor types.AccountID, amount *big.Int) error
	TryIncreaseToBeIssuedTokens(id types.VaultID, amount *big.Int) error
	TryIncreaseToBeRedeemedTokens(id types.VaultID, amount *big.Int) error
	TryIncreaseToBeReplacedTokens(id types.VaultID, amount *big.Int) error
	DecreaseToBeReplacedTokens(id types.VaultID, amount *big.Int) (*big.Int, *big.Int, error)
	ReplaceTokens(oldVault, newVault types.VaultID, amount *big.Int) error
	CancelReplaceTokens(oldVault, newVault types.VaultID, amount *big.Int) error
	TransferFunds(from, to vaultregistry.CurrencySource, cur types.CurrencyID, amount *big.Int) error
}

// Fee prices replace griefing.
type Fee interface {
	ReplaceGriefingCollateral(amount *big.Int) (*big.Int, error)
}

// Oracle values replaced tokens in the griefing currency.
type Oracle interface {
	Convert(amount *big.Int, from, to types.CurrencyID) (*big.Int, error)
}

// Nomination reports vaults that accept nominated collateral.
type Nomination interface {
	IsOptedIn(vault types.VaultID) (bool, error)
}

// Security provides request ids and deadlines.
type Security interface {
	ActiveBlockNumber() uint64
	GenerateSecureID(account types.AccountID) (types.H256, error)
	HasExpired(opentime uint64, btcHeight uint32, period uint64, btcBest uint32) bool
}

// Engine runs the replace protocol: a vault hands issued tokens and their
// BTC over to another vault.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	registry   Registry
	fee        Fee
	oracle     Oracle
	nomination Nomination
	security   Security
	relay      btcrelay.Relay
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }
func (e *Engine) SetRegistry(r Registry)     { e.registry = r }
func (e *Engine) SetFee(f Fee)               { e.fee = f }
func (e *Engine) SetOracle(o Oracle)         { e.oracle = o }
func (e *Engine) SetNomination(n Nomination) { e.nomination = n }
func (e *Engine) SetSecurity(s Security)     { e.security = s }
func (e *Engine) SetRelay(r btcrelay.Relay)  { e.relay = r }

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
	params, err := e.state.ReplaceParams()
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

func (e *Engine) SetReplacePeriod(period uint64) error {
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.Period = period
	return e.state.PutReplaceParams(&params)
}

func (e *Engine) SetReplaceBtcDustValue(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.BtcDustValue = new(big.Int).Set(amount)
	return e.state.PutReplaceParams(&params)
}

func (e *Engine) load(id types.H256) (*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	req, err := e.state.ReplaceRequest(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req.ensure(), nil
}

// Request returns a copy of the replace request.
func (e *Engine) Request(id types.H256) (*Request, error) {
	req, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// RequestsForVault lists replace requests the vault takes part in, on
// either side.
func (e *Engine) RequestsForVault(vault types.VaultID) ([]types.H256, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.ReplaceRequestIndex(vault.Bytes())
}

func (e *Engine) checkDust(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	if amount.Cmp(params.BtcDustValue) < 0 {
		return ErrAmountBelowDust
	}
	return nil
}

// RequestReplace offers amount of the vault's issued tokens to other vaults
// and pledges griefing collateral alongside them.
func (e *Engine) RequestReplace(oldVault types.VaultID, amount *big.Int) error {
	if err := e.checkDust(amount); err != nil {
		return err
	}
	if e.nomination != nil {
		opted, err := e.nomination.IsOptedIn(oldVault)
		if err != nil {
			return err
		}
		if opted {
			return ErrVaultOptedIntoNomination
		}
	}
	if err := e.registry.EnsureNotBanned(oldVault); err != nil {
		return err
	}
	worth, err := e.oracle.Convert(amount, oldVault.WrappedCurrency(), vaultregistry.ReplaceGriefingCurrency)
	if err != nil {
		return err
	}
	griefing, err := e.fee.ReplaceGriefingCollateral(worth)
	if err != nil {
		return err
	}
	if err := e.registry.TryIncreaseToBeReplacedTokens(oldVault, amount); err != nil {
		return err
	}
	if err := e.registry.TransferFunds(vaultregistry.FreeBalance(oldVault.AccountID), vaultregistry.AvailableReplaceCollateral(oldVault), vaultregistry.ReplaceGriefingCurrency, griefing); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "replace.requested",
		Attributes: map[string]string{
			"old_vault": oldVault.String(),
			"amount":    events.FormatAmount(amount),
			"griefing":  events.FormatAmount(griefing),
		},
	})
	return nil
}

// WithdrawReplace takes up to amount back out of the replace offer and
// releases its share of the griefing collateral.
func (e *Engine) WithdrawReplace(oldVault types.VaultID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	tokens, griefing, err := e.registry.DecreaseToBeReplacedTokens(oldVault, amount)
	if err != nil {
		return err
	}
	if tokens.Sign() == 0 {
		return ErrNoTokensToReplace
	}
	if err := e.registry.TransferFunds(vaultregistry.AvailableReplaceCollateral(oldVault), vaultregistry.FreeBalance(oldVault.AccountID), vaultregistry.ReplaceGriefingCurrency, griefing); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "replace.withdrawn",
		Attributes: map[string]string{
			"old_vault": oldVault.String(),
			"amount":    events.FormatAmount(tokens),
			"griefing":  events.FormatAmount(griefing),
		},
	})
	return nil
}

// AcceptReplace lets newVault take over up to amount of oldVault's offered
// tokens, backed by collateral added from the new vault operator's free
// balance in proportion to what is accepted.
func (e *Engine) AcceptReplace(oldVault, newVault types.VaultID, amount, collateral *big.Int, btcAddress bitcoin.Address) (types.H256, error) {
	if oldVault == newVault {
		return types.H256{}, ErrReplaceSelfNotAllowed
	}
	if oldVault.WrappedCurrency() != newVault.WrappedCurrency() {
		return types.H256{}, ErrInvalidWrappedCurrency
	}
	if err := e.checkDust(amount); err != nil {
		return types.H256{}, err
	}
	if collateral == nil || collateral.Sign() < 0 {
		return types.H256{}, ErrInvalidAmount
	}
	addr, err := bitcoin.ParseAddress(string(btcAddress), e.registry.BitcoinParams())
	if err != nil {
		return types.H256{}, err
	}
	nv, err := e.registry.Vault(newVault)
	if err != nil {
		return types.H256{}, err
	}
	if nv.IsLiquidated() {
		return types.H256{}, vaultregistry.ErrVaultLiquidated
	}
	if err := e.registry.EnsureNotBanned(newVault); err != nil {
		return types.H256{}, err
	}

	accepted, griefing, err := e.registry.DecreaseToBeReplacedTokens(oldVault, amount)
	if err != nil {
		return types.H256{}, err
	}
	if accepted.Sign() == 0 {
		return types.H256{}, ErrNoTokensToReplace
	}
	if err := e.checkDust(accepted); err != nil {
		return types.H256{}, err
	}
	added := vaultregistry.CalculateCollateral(collateral, accepted, amount)
	if err := e.registry.TryDepositCollateral(newVault, newVault.AccountID, added); err != nil {
		return types.H256{}, err
	}
	if err := e.registry.TryIncreaseToBeIssuedTokens(newVault, accepted); err != nil {
		return types.H256{}, err
	}
	if err := e.registry.TryIncreaseToBeRedeemedTokens(oldVault, accepted); err != nil {
		return types.H256{}, err
	}
	if err := e.registry.TransferFunds(vaultregistry.AvailableReplaceCollateral(oldVault), vaultregistry.ActiveReplaceCollateral(oldVault), vaultregistry.ReplaceGriefingCurrency, griefing); err != nil {
		return types.H256{}, err
	}
	params, err := e.Params()
	if err != nil {
		return types.H256{}, err
	}
	id, err := e.security.GenerateSecureID(newVault.AccountID)
	if err != nil {
		return types.H256{}, err
	}
	req := &Request{
		ID:                 id,
		OldVault:           oldVault,
		NewVault:           newVault,
		Amount:             accepted,
		GriefingCollateral: griefing,
		Collateral:         added,
		AcceptTime:         e.security.ActiveBlockNumber(),
		Period:             params.Period,
		BtcHeight:          e.relay.BestBlockHeight(),
		BtcAddress:         addr,
		Status:             StatusPending,
	}
	if err := e.state.PutReplaceRequest(req); err != nil {
		return types.H256{}, err
	}
	if err := e.state.AppendReplaceRequestIndex(oldVault.Bytes(), id); err != nil {
		return types.H256{}, err
	}
	if err := e.state.AppendReplaceRequestIndex(newVault.Bytes(), id); err != nil {
		return types.H256{}, err
	}
	e.emit(&types.Event{
		Type: "replace.accepted",
		Attributes: map[string]string{
			"id":          id.String(),
			"old_vault":   oldVault.String(),
			"new_vault":   newVault.String(),
			"amount":      events.FormatAmount(accepted),
			"collateral":  events.FormatAmount(added),
			"griefing":    events.FormatAmount(griefing),
			"btc_address": string(addr),
		},
	})
	return id, nil
}

// ExecuteReplace completes a replace with a proof that the old vault paid
// the new vault Amount. The old vault gets its griefing back.
func (e *Engine) ExecuteReplace(id types.H256, proof *btcrelay.FullTransactionProof) error {
	req, err := e.load(id)
	if err != nil {
		return err
	}
	next, err := req.Status.Complete()
	if err != nil {
		return err
	}
	payment, err := e.relay.VerifyPayment(proof, req.BtcAddress, &req.ID)
	if err != nil {
		return err
	}
	if new(big.Int).SetUint64(payment.Amount).Cmp(req.Amount) != 0 {
		return btcrelay.ErrInvalidPaymentAmount
	}
	if err := e.registry.ReplaceTokens(req.OldVault, req.NewVault, req.Amount); err != nil {
		return err
	}
	if err := e.registry.TransferFunds(vaultregistry.ActiveReplaceCollateral(req.OldVault), vaultregistry.FreeBalance(req.OldVault.AccountID), vaultregistry.ReplaceGriefingCurrency, req.GriefingCollateral); err != nil {
		return err
	}
	req.Status = next
	if err := e.state.PutReplaceRequest(req); err != nil {
		return err
	}
	e.emit(replaceEvent("replace.executed", req))
	return nil
}

// CancelReplace cancels an expired replace. The new vault keeps the old
// vault's griefing collateral.
func (e *Engine) CancelReplace(origin types.AccountID, id types.H256) error {
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if origin != req.NewVault.AccountID {
		return ErrUnauthorizedVault
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
	if !e.security.HasExpired(req.AcceptTime, req.BtcHeight, period, e.relay.BestBlockHeight()) {
		return ErrTimeNotExpired
	}
	if err := e.registry.CancelReplaceTokens(req.OldVault, req.NewVault, req.Amount); err != nil {
		return err
	}
	if err := e.registry.TransferFunds(vaultregistry.ActiveReplaceCollateral(req.OldVault), vaultregistry.FreeBalance(req.NewVault.AccountID), vaultregistry.ReplaceGriefingCurrency, req.GriefingCollateral); err != nil {
		return err
	}
	req.Status = next
	if err := e.state.PutReplaceRequest(req); err != nil {
		return err
	}
	e.emit(replaceEvent("replace.cancelled", req))
	return nil
}

func replaceEvent(kind string, req *Request) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"id":        req.ID.String(),
			"old_vault": req.OldVault.String(),
			"new_vault": req.NewVault.String(),
			"amount":    events.FormatAmount(req.Amount),
			"griefing":  events.FormatAmount(req.GriefingCollateral),
		},
	}
}
