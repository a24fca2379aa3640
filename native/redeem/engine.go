package redeem

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/currency"
	"vaultbridge/native/fee"
	"vaultbridge/native/fixed"
	"vaultbridge/native/vaultregistry"
)

var (
	ErrRequestNotFound          = errors.New("redeem: request not found")
	ErrRequestCompleted         = errors.New("redeem: request already completed")
	ErrRequestCancelled         = errors.New("redeem: request already cancelled")
	ErrInvalidRequestStatus     = errors.New("redeem: request not reimbursed without mint")
	ErrTimeNotExpired           = errors.New("redeem: request has not expired")
	ErrAmountBelowDust          = errors.New("redeem: amount below dust value")
	ErrAmountExceedsUserBalance = errors.New("redeem: amount exceeds user balance")
	ErrUnauthorizedRedeemer     = errors.New("redeem: only the redeemer may do this")
	ErrUnauthorizedVault        = errors.New("redeem: only the vault may do this")
	ErrInvalidAmount            = errors.New("redeem: amount must be positive")
	errNilState                 = errors.New("redeem: state not configured")
)

type engineState interface {
	RedeemRequest(id types.H256) (*Request, error)
	PutRedeemRequest(req *Request) error
	RedeemRequestIndex(owner []byte) ([]types.H256, error)
	AppendRedeemRequestIndex(owner []byte, id types.H256) error
	RedeemParams() (*Params, error)
	PutRedeemParams(params *Params) error
}

// Registry is the vault registry as seen by the redeem protocol.
type Registry interface {
	Vault(id types.VaultID) (*vaultregistry.Vault, error)
	EnsureNotBanned(id types.VaultID) error
	BanVault(id types.VaultID) error
	BitcoinParams() *chaincfg.Params
	SecureThreshold(id types.VaultID) (fixed.Unsigned, error)
	RequiredCollateral(tokens *big.Int, threshold fixed.Unsigned, cur types.CurrencyID) (*big.Int, error)
	BackingCollateral(id types.VaultID) (*big.Int, error)
	IsVaultBelowPremiumThreshold(id types.VaultID) (bool, error)
	TryIncreaseToBeRedeemedTokens(id types.VaultID, amount *big.Int) error
	DecreaseToBeRedeemedTokens(id types.VaultID, amount *big.Int) error
	DecreaseTokens(id types.VaultID, user types.AccountID, amount *big.Int) error
	RedeemTokens(id types.VaultID, amount, premium *big.Int, redeemer types.AccountID) error
	RedeemTokensLiquidation(pair types.VaultCurrencyPair, redeemer types.AccountID, amount *big.Int) (*big.Int, error)
	TryIncreaseToBeIssuedTokens(id types.VaultID, amount *big.Int) error
	IssueTokens(id types.VaultID, amount *big.Int) error
	TransferFunds(from, to vaultregistry.CurrencySource, cur types.CurrencyID, amount *big.Int) error
}

// Fee computes redeem fees and distributes them.
type Fee interface {
	Rates() (fee.Rates, error)
	RedeemFee(amount *big.Int) (*big.Int, error)
	PremiumRedeemFee(amount *big.Int) (*big.Int, error)
	PunishmentFee(amount *big.Int) (*big.Int, error)
	DistributeRewards(cur types.CurrencyID, amount *big.Int) error
}

// Currency holds the redeemer's wrapped tokens.
type Currency interface {
	FreeBalance(account types.AccountID, cur types.CurrencyID) (*big.Int, error)
	Mint(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	BurnFree(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	BurnReserved(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	Lock(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	Unlock(account types.AccountID, cur types.CurrencyID, amount *big.Int) error
	TransferReserved(from, to types.AccountID, cur types.CurrencyID, amount *big.Int, dest currency.Status) error
}

// Oracle prices redeemed tokens in collateral and estimates bitcoin fees.
type Oracle interface {
	WrappedToCollateral(amount *big.Int, cur types.CurrencyID) (*big.Int, error)
	InclusionFee() (*big.Int, error)
}

// Security provides request ids and deadlines.
type Security interface {
	ActiveBlockNumber() uint64
	GenerateSecureID(account types.AccountID) (types.H256, error)
	HasExpired(opentime uint64, btcHeight uint32, period uint64, btcBest uint32) bool
}

// Engine runs the redeem protocol: a user locks wrapped tokens, the vault
// pays BTC and the tokens are burned once the payment is proven.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	registry Registry
	fee      Fee
	currency Currency
	oracle   Oracle
	security Security
	relay    btcrelay.Relay
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }
func (e *Engine) SetRegistry(r Registry)     { e.registry = r }
func (e *Engine) SetFee(f Fee)               { e.fee = f }
func (e *Engine) SetCurrency(c Currency)     { e.currency = c }
func (e *Engine) SetOracle(o Oracle)         { e.oracle = o }
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
	params, err := e.state.RedeemParams()
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

func (e *Engine) SetRedeemPeriod(period uint64) error {
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.Period = period
	return e.state.PutRedeemParams(&params)
}

func (e *Engine) SetRedeemBtcDustValue(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	params, err := e.Params()
	if err != nil {
		return err
	}
	params.BtcDustValue = new(big.Int).Set(amount)
	return e.state.PutRedeemParams(&params)
}

func (e *Engine) load(id types.H256) (*Request, error) {
	if e.state == nil {
		return nil, errNilState
	}
	req, err := e.state.RedeemRequest(id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req.ensure(), nil
}

// Request returns a copy of the redeem request.
func (e *Engine) Request(id types.H256) (*Request, error) {
	req, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

func (e *Engine) RequestsFor(account types.AccountID) ([]types.H256, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.RedeemRequestIndex(account.Bytes())
}

func (e *Engine) RequestsForVault(vault types.VaultID) ([]types.H256, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.RedeemRequestIndex(vault.Bytes())
}

func (e *Engine) checkBalance(account types.AccountID, cur types.CurrencyID, amount *big.Int) error {
	free, err := e.currency.FreeBalance(account, cur)
	if err != nil {
		return err
	}
	if free.Cmp(amount) < 0 {
		return ErrAmountExceedsUserBalance
	}
	return nil
}

// RequestRedeem locks amount of the redeemer's wrapped tokens and commits
// the vault to pay the BTC equivalent to btcAddress.
func (e *Engine) RequestRedeem(redeemer types.AccountID, amount *big.Int, btcAddress bitcoin.Address, vault types.VaultID) (types.H256, error) {
	if amount == nil || amount.Sign() <= 0 {
		return types.H256{}, ErrInvalidAmount
	}
	wrapped := vault.WrappedCurrency()
	if err := e.checkBalance(redeemer, wrapped, amount); err != nil {
		return types.H256{}, err
	}
	addr, err := bitcoin.ParseAddress(string(btcAddress), e.registry.BitcoinParams())
	if err != nil {
		return types.H256{}, err
	}
	v, err := e.registry.Vault(vault)
	if err != nil {
		return types.H256{}, err
	}
	if v.IsLiquidated() {
		return types.H256{}, vaultregistry.ErrVaultLiquidated
	}
	if err := e.registry.EnsureNotBanned(vault); err != nil {
		return types.H256{}, err
	}
	params, err := e.Params()
	if err != nil {
		return types.H256{}, err
	}

	fee := big.NewInt(0)
	if redeemer != vault.AccountID {
		if fee, err = e.fee.RedeemFee(amount); err != nil {
			return types.H256{}, err
		}
	}
	burned := new(big.Int).Sub(amount, fee)
	inclusionFee, err := e.oracle.InclusionFee()
	if err != nil {
		return types.H256{}, err
	}
	if burned.Cmp(new(big.Int).Add(params.BtcDustValue, inclusionFee)) < 0 {
		return types.H256{}, ErrAmountBelowDust
	}
	amountBtc := new(big.Int).Sub(burned, inclusionFee)

	premium := big.NewInt(0)
	below, err := e.registry.IsVaultBelowPremiumThreshold(vault)
	if err != nil {
		return types.H256{}, err
	}
	if below {
		if premium, err = e.premium(v, burned); err != nil {
			return types.H256{}, err
		}
	}
	if err := e.registry.TryIncreaseToBeRedeemedTokens(vault, burned); err != nil {
		return types.H256{}, err
	}
	if err := e.currency.Lock(redeemer, wrapped, amount); err != nil {
		return types.H256{}, err
	}
	id, err := e.security.GenerateSecureID(redeemer)
	if err != nil {
		return types.H256{}, err
	}
	req := &Request{
		ID:             id,
		Vault:          vault,
		Redeemer:       redeemer,
		Opentime:       e.security.ActiveBlockNumber(),
		Period:         params.Period,
		BtcHeight:      e.relay.BestBlockHeight(),
		Fee:            fee,
		TransferFeeBtc: inclusionFee,
		AmountBtc:      amountBtc,
		Premium:        premium,
		BtcAddress:     addr,
		Status:         StatusPending,
	}
	if err := e.state.PutRedeemRequest(req); err != nil {
		return types.H256{}, err
	}
	if err := e.state.AppendRedeemRequestIndex(redeemer.Bytes(), id); err != nil {
		return types.H256{}, err
	}
	if err := e.state.AppendRedeemRequestIndex(vault.Bytes(), id); err != nil {
		return types.H256{}, err
	}
	e.emit(requestedEvent(req))
	return id, nil
}

// premium is the collateral paid on top of a redeem from a vault below the
// premium threshold. It covers only what brings the vault back to its
// secure threshold and is capped by the premium redeem fee on the redeemed
// amount.
func (e *Engine) premium(v *vaultregistry.Vault, burned *big.Int) (*big.Int, error) {
	cur := v.ID.CollateralCurrency()
	secure, err := e.registry.SecureThreshold(v.ID)
	if err != nil {
		return nil, err
	}
	required, err := e.registry.RequiredCollateral(v.Exposure(), secure, cur)
	if err != nil {
		return nil, err
	}
	backing, err := e.registry.BackingCollateral(v.ID)
	if err != nil {
		return nil, err
	}
	worth, err := e.oracle.WrappedToCollateral(burned, cur)
	if err != nil {
		return nil, err
	}
	limit, err := e.fee.PremiumRedeemFee(worth)
	if err != nil {
		return nil, err
	}
	if required.Cmp(backing) <= 0 {
		return big.NewInt(0), nil
	}
	rates, err := e.fee.Rates()
	if err != nil {
		return nil, err
	}
	rate := rates.PremiumRedeemFee
	if secure.Cmp(rate) <= 0 {
		return limit, nil
	}
	factor, err := rate.Div(secure.SaturatingSub(rate))
	if err != nil {
		return nil, err
	}
	maxPremium, err := factor.MulInt(new(big.Int).Sub(required, backing), fixed.Floor)
	if err != nil {
		return nil, err
	}
	if maxPremium.Cmp(limit) < 0 {
		return maxPremium, nil
	}
	return limit, nil
}

// ExecuteRedeem completes a request with a proof that the vault paid the
// redeemer exactly AmountBtc.
func (e *Engine) ExecuteRedeem(id types.H256, proof *btcrelay.FullTransactionProof) error {
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
	if new(big.Int).SetUint64(payment.Amount).Cmp(req.AmountBtc) != 0 {
		return btcrelay.ErrInvalidPaymentAmount
	}
	if err := e.payFee(req); err != nil {
		return err
	}
	wrapped := req.Vault.WrappedCurrency()
	if err := e.currency.BurnReserved(req.Redeemer, wrapped, req.Burned()); err != nil {
		return err
	}
	if err := e.registry.RedeemTokens(req.Vault, req.Burned(), req.Premium, req.Redeemer); err != nil {
		return err
	}
	req.Status = next
	if err := e.state.PutRedeemRequest(req); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "redeem.executed",
		Attributes: map[string]string{
			"id":       req.ID.String(),
			"vault":    req.Vault.String(),
			"redeemer": req.Redeemer.String(),
			"amount":   events.FormatAmount(req.AmountBtc),
			"fee":      events.FormatAmount(req.Fee),
			"premium":  events.FormatAmount(req.Premium),
		},
	})
	return nil
}

func (e *Engine) payFee(req *Request) error {
	if req.Fee.Sign() == 0 {
		return nil
	}
	wrapped := req.Vault.WrappedCurrency()
	if err := e.currency.TransferReserved(req.Redeemer, types.FeePoolAccount, wrapped, req.Fee, currency.Free); err != nil {
		return err
	}
	return e.fee.DistributeRewards(wrapped, req.Fee)
}

// CancelRedeem cancels an expired request. With reimburse the redeemer is
// paid the collateral worth of the tokens; otherwise the tokens are unlocked
// for a retry. Either way an active vault pays the punishment fee and is
// banned.
func (e *Engine) CancelRedeem(origin types.AccountID, id types.H256, reimburse bool) error {
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if origin != req.Redeemer {
		return ErrUnauthorizedRedeemer
	}
	if err := req.Status.pending(); err != nil {
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
	v, err := e.registry.Vault(req.Vault)
	if err != nil {
		return err
	}
	shortfall := big.NewInt(0)
	if v.IsLiquidated() {
		err = e.cancelLiquidated(req, reimburse)
	} else {
		shortfall, err = e.cancelActive(req, reimburse)
	}
	if err != nil {
		return err
	}
	if err := e.state.PutRedeemRequest(req); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "redeem.cancelled",
		Attributes: map[string]string{
			"id":              req.ID.String(),
			"vault":           req.Vault.String(),
			"redeemer":        req.Redeemer.String(),
			"status":          req.Status.String(),
			"reimburse":       strconv.FormatBool(reimburse),
			"slash_shortfall": events.FormatAmount(shortfall),
		},
	})
	return nil
}

func (e *Engine) cancelLiquidated(req *Request, reimburse bool) error {
	wrapped := req.Vault.WrappedCurrency()
	burned := req.Burned()
	if !reimburse {
		next, err := req.Status.Retry()
		if err != nil {
			return err
		}
		if err := e.registry.DecreaseToBeRedeemedTokens(req.Vault, burned); err != nil {
			return err
		}
		if err := e.currency.Unlock(req.Redeemer, wrapped, req.Locked()); err != nil {
			return err
		}
		req.Status = next
		return nil
	}
	next, err := req.Status.Reimburse(false)
	if err != nil {
		return err
	}
	if err := e.payFee(req); err != nil {
		return err
	}
	if err := e.currency.BurnReserved(req.Redeemer, wrapped, burned); err != nil {
		return err
	}
	if err := e.registry.DecreaseTokens(req.Vault, req.Redeemer, burned); err != nil {
		return err
	}
	req.Status = next
	return nil
}

func (e *Engine) cancelActive(req *Request, reimburse bool) (*big.Int, error) {
	wrapped := req.Vault.WrappedCurrency()
	cur := req.Vault.CollateralCurrency()
	burned := req.Burned()
	worth, err := e.oracle.WrappedToCollateral(burned, cur)
	if err != nil {
		return nil, err
	}
	punishment, err := e.fee.PunishmentFee(worth)
	if err != nil {
		return nil, err
	}

	if !reimburse {
		next, err := req.Status.Retry()
		if err != nil {
			return nil, err
		}
		shortfall, err := e.slash(req, punishment)
		if err != nil {
			return nil, err
		}
		if err := e.currency.Unlock(req.Redeemer, wrapped, req.Locked()); err != nil {
			return nil, err
		}
		if err := e.registry.DecreaseToBeRedeemedTokens(req.Vault, burned); err != nil {
			return nil, err
		}
		req.Status = next
		return shortfall, e.registry.BanVault(req.Vault)
	}

	shortfall, err := e.slash(req, new(big.Int).Add(worth, punishment))
	if err != nil {
		return nil, err
	}
	if err := e.payFee(req); err != nil {
		return nil, err
	}
	keep, err := e.canKeepTokens(req)
	if err != nil {
		return nil, err
	}
	next, err := req.Status.Reimburse(keep)
	if err != nil {
		return nil, err
	}
	if keep {
		if err := e.currency.TransferReserved(req.Redeemer, req.Vault.AccountID, wrapped, burned, currency.Free); err != nil {
			return nil, err
		}
		if err := e.registry.DecreaseToBeRedeemedTokens(req.Vault, burned); err != nil {
			return nil, err
		}
	} else {
		if err := e.currency.BurnReserved(req.Redeemer, wrapped, burned); err != nil {
			return nil, err
		}
		if err := e.registry.DecreaseTokens(req.Vault, req.Redeemer, burned); err != nil {
			return nil, err
		}
	}
	req.Status = next
	return shortfall, e.registry.BanVault(req.Vault)
}

// slash pays up to amount of the vault's backing collateral to the
// redeemer and returns the part the backing could not cover.
func (e *Engine) slash(req *Request, amount *big.Int) (*big.Int, error) {
	backing, err := e.registry.BackingCollateral(req.Vault)
	if err != nil {
		return nil, err
	}
	shortfall := big.NewInt(0)
	if amount.Cmp(backing) > 0 {
		shortfall.Sub(amount, backing)
		amount = backing
	}
	if err := e.registry.TransferFunds(vaultregistry.Collateral(req.Vault), vaultregistry.FreeBalance(req.Redeemer), req.Vault.CollateralCurrency(), amount); err != nil {
		return nil, err
	}
	return shortfall, nil
}

// canKeepTokens reports whether the vault stays at its secure threshold if
// the request's tokens stay issued and become the vault's own.
func (e *Engine) canKeepTokens(req *Request) (bool, error) {
	v, err := e.registry.Vault(req.Vault)
	if err != nil {
		return false, err
	}
	exposure := v.Exposure()
	exposure.Add(exposure, req.Burned())
	secure, err := e.registry.SecureThreshold(req.Vault)
	if err != nil {
		return false, err
	}
	required, err := e.registry.RequiredCollateral(exposure, secure, req.Vault.CollateralCurrency())
	if err != nil {
		return false, err
	}
	backing, err := e.registry.BackingCollateral(req.Vault)
	if err != nil {
		return false, err
	}
	return backing.Cmp(required) >= 0, nil
}

// MintTokensForReimbursedRedeem lets the vault re-mint the tokens burned by
// an unminted reimbursement into its own free balance once it has the
// collateral to back them.
func (e *Engine) MintTokensForReimbursedRedeem(origin types.AccountID, vault types.VaultID, id types.H256) error {
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if origin != vault.AccountID || req.Vault != vault {
		return ErrUnauthorizedVault
	}
	next, err := req.Status.MintReimbursed()
	if err != nil {
		return err
	}
	burned := req.Burned()
	if err := e.registry.TryIncreaseToBeIssuedTokens(vault, burned); err != nil {
		return err
	}
	if err := e.registry.IssueTokens(vault, burned); err != nil {
		return err
	}
	if err := e.currency.Mint(vault.AccountID, vault.WrappedCurrency(), burned); err != nil {
		return err
	}
	req.Status = next
	if err := e.state.PutRedeemRequest(req); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "redeem.reimbursed_minted",
		Attributes: map[string]string{
			"id":     req.ID.String(),
			"vault":  vault.String(),
			"amount": events.FormatAmount(burned),
		},
	})
	return nil
}

// SelfRedeem burns amount of the vault operator's own wrapped tokens
// against its issuance without a bitcoin payment.
func (e *Engine) SelfRedeem(vault types.VaultID, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	wrapped := vault.WrappedCurrency()
	if err := e.checkBalance(vault.AccountID, wrapped, amount); err != nil {
		return err
	}
	if err := e.registry.TryIncreaseToBeRedeemedTokens(vault, amount); err != nil {
		return err
	}
	if err := e.registry.RedeemTokens(vault, amount, nil, vault.AccountID); err != nil {
		return err
	}
	if err := e.currency.BurnFree(vault.AccountID, wrapped, amount); err != nil {
		return err
	}
	e.emit(&types.Event{
		Type: "redeem.self_redeemed",
		Attributes: map[string]string{
			"vault":  vault.String(),
			"amount": events.FormatAmount(amount),
		},
	})
	return nil
}

// LiquidationRedeem burns amount of the redeemer's wrapped tokens against
// the pair's liquidation vault for a proportional share of its collateral.
func (e *Engine) LiquidationRedeem(redeemer types.AccountID, pair types.VaultCurrencyPair, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := e.checkBalance(redeemer, pair.Wrapped, amount); err != nil {
		return nil, err
	}
	if err := e.currency.BurnFree(redeemer, pair.Wrapped, amount); err != nil {
		return nil, err
	}
	return e.registry.RedeemTokensLiquidation(pair, redeemer, amount)
}

func requestedEvent(req *Request) *types.Event {
	return &types.Event{
		Type: "redeem.requested",
		Attributes: map[string]string{
			"id":               req.ID.String(),
			"vault":            req.Vault.String(),
			"redeemer":         req.Redeemer.String(),
			"amount_btc":       events.FormatAmount(req.AmountBtc),
			"transfer_fee_btc": events.FormatAmount(req.TransferFeeBtc),
			"fee":              events.FormatAmount(req.Fee),
			"premium":          events.FormatAmount(req.Premium),
			"btc_address":      string(req.BtcAddress),
		},
	}
}
