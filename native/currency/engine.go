package currency

import (
	"errors"
	"math/big"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
)

var (
	ErrInsufficientFreeBalance     = errors.New("currency: insufficient free balance")
	ErrInsufficientReservedBalance = errors.New("currency: insufficient reserved balance")
	ErrOverflow                    = errors.New("currency: balance overflow")
	ErrInvalidAmount               = errors.New("currency: amount must not be negative")
	errNilState                    = errors.New("currency: state not configured")
)

// MaxBalance is the largest balance any account or total issuance may hold.
var MaxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Balance holds the free and reserved parts of an account's holding in one
// currency. Reserved funds are locked by a protocol module.
type Balance struct {
	Free     *big.Int
	Reserved *big.Int
}

func (b *Balance) ensure() *Balance {
	if b == nil {
		b = &Balance{}
	}
	if b.Free == nil {
		b.Free = big.NewInt(0)
	}
	if b.Reserved == nil {
		b.Reserved = big.NewInt(0)
	}
	return b
}

// Status selects which side of the destination balance receives funds.
type Status uint8

const (
	Free Status = iota
	Reserved
)

type engineState interface {
	CurrencyBalance(account types.AccountID, currency types.CurrencyID) (*Balance, error)
	PutCurrencyBalance(account types.AccountID, currency types.CurrencyID, balance *Balance) error
	CurrencyTotalIssuance(currency types.CurrencyID) (*big.Int, error)
	PutCurrencyTotalIssuance(currency types.CurrencyID, total *big.Int) error
}

// Engine implements the multi-currency ledger the protocol modules move
// collateral, griefing deposits and wrapped tokens through.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Structured{Evt: evt})
}

func (e *Engine) load(account types.AccountID, currency types.CurrencyID) (*Balance, error) {
	if e.state == nil {
		return nil, errNilState
	}
	bal, err := e.state.CurrencyBalance(account, currency)
	if err != nil {
		return nil, err
	}
	return bal.ensure(), nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(MaxBalance) > 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}

// FreeBalance returns the spendable balance.
func (e *Engine) FreeBalance(account types.AccountID, currency types.CurrencyID) (*big.Int, error) {
	bal, err := e.load(account, currency)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(bal.Free), nil
}

// ReservedBalance returns the locked balance.
func (e *Engine) ReservedBalance(account types.AccountID, currency types.CurrencyID) (*big.Int, error) {
	bal, err := e.load(account, currency)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(bal.Reserved), nil
}

// TotalIssuance returns the supply of a currency.
func (e *Engine) TotalIssuance(currency types.CurrencyID) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	total, err := e.state.CurrencyTotalIssuance(currency)
	if err != nil {
		return nil, err
	}
	if total == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(total), nil
}

func (e *Engine) adjustIssuance(currency types.CurrencyID, delta *big.Int) error {
	total, err := e.TotalIssuance(currency)
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return ErrInsufficientFreeBalance
	}
	if total.Cmp(MaxBalance) > 0 {
		return ErrOverflow
	}
	return e.state.PutCurrencyTotalIssuance(currency, total)
}

// Mint credits new free funds to the account.
func (e *Engine) Mint(account types.AccountID, currency types.CurrencyID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := e.load(account, currency)
	if err != nil {
		return err
	}
	if bal.Free, err = addChecked(bal.Free, amount); err != nil {
		return err
	}
	if err := e.adjustIssuance(currency, amount); err != nil {
		return err
	}
	if err := e.state.PutCurrencyBalance(account, currency, bal); err != nil {
		return err
	}
	e.emit(mintedEvent(account, currency, amount))
	return nil
}

// BurnFree destroys free funds.
func (e *Engine) BurnFree(account types.AccountID, currency types.CurrencyID, amount *big.Int) error {
	return e.burn(account, currency, amount, Free)
}

// BurnReserved destroys locked funds.
func (e *Engine) BurnReserved(account types.AccountID, currency types.CurrencyID, amount *big.Int) error {
	return e.burn(account, currency, amount, Reserved)
}

func (e *Engine) burn(account types.AccountID, currency types.CurrencyID, amount *big.Int, from Status) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := e.load(account, currency)
	if err != nil {
		return err
	}
	if err := debit(bal, amount, from); err != nil {
		return err
	}
	if err := e.adjustIssuance(currency, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	if err := e.state.PutCurrencyBalance(account, currency, bal); err != nil {
		return err
	}
	e.emit(burnedEvent(account, currency, amount))
	return nil
}

func debit(bal *Balance, amount *big.Int, from Status) error {
	switch from {
	case Reserved:
		if bal.Reserved.Cmp(amount) < 0 {
			return ErrInsufficientReservedBalance
		}
		bal.Reserved = new(big.Int).Sub(bal.Reserved, amount)
	default:
		if bal.Free.Cmp(amount) < 0 {
			return ErrInsufficientFreeBalance
		}
		bal.Free = new(big.Int).Sub(bal.Free, amount)
	}
	return nil
}

func credit(bal *Balance, amount *big.Int, to Status) error {
	var err error
	switch to {
	case Reserved:
		bal.Reserved, err = addChecked(bal.Reserved, amount)
	default:
		bal.Free, err = addChecked(bal.Free, amount)
	}
	return err
}

// Lock moves free funds into the reserved balance. Funds that are already
// reserved cannot be locked again.
func (e *Engine) Lock(account types.AccountID, currency types.CurrencyID, amount *big.Int) error {
	return e.move(account, currency, amount, Free, Reserved)
}

// Unlock returns reserved funds to the free balance.
func (e *Engine) Unlock(account types.AccountID, currency types.CurrencyID, amount *big.Int) error {
	return e.move(account, currency, amount, Reserved, Free)
}

func (e *Engine) move(account types.AccountID, currency types.CurrencyID, amount *big.Int, from, to Status) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, err := e.load(account, currency)
	if err != nil {
		return err
	}
	if err := debit(bal, amount, from); err != nil {
		return err
	}
	if err := credit(bal, amount, to); err != nil {
		return err
	}
	return e.state.PutCurrencyBalance(account, currency, bal)
}

// Transfer moves free funds between accounts.
func (e *Engine) Transfer(from, to types.AccountID, currency types.CurrencyID, amount *big.Int) error {
	return e.transfer(from, to, currency, amount, Free, Free)
}

// TransferReserved moves locked funds from one account into the chosen side
// of another account's balance.
func (e *Engine) TransferReserved(from, to types.AccountID, currency types.CurrencyID, amount *big.Int, dest Status) error {
	return e.transfer(from, to, currency, amount, Reserved, dest)
}

func (e *Engine) transfer(from, to types.AccountID, currency types.CurrencyID, amount *big.Int, src, dest Status) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if from == to {
		return e.moveSelf(from, currency, amount, src, dest)
	}
	fromBal, err := e.load(from, currency)
	if err != nil {
		return err
	}
	toBal, err := e.load(to, currency)
	if err != nil {
		return err
	}
	if err := debit(fromBal, amount, src); err != nil {
		return err
	}
	if err := credit(toBal, amount, dest); err != nil {
		return err
	}
	if err := e.state.PutCurrencyBalance(from, currency, fromBal); err != nil {
		return err
	}
	if err := e.state.PutCurrencyBalance(to, currency, toBal); err != nil {
		return err
	}
	e.emit(transferredEvent(from, to, currency, amount))
	return nil
}

func (e *Engine) moveSelf(account types.AccountID, currency types.CurrencyID, amount *big.Int, src, dest Status) error {
	if src == dest {
		bal, err := e.load(account, currency)
		if err != nil {
			return err
		}
		if src == Reserved && bal.Reserved.Cmp(amount) < 0 {
			return ErrInsufficientReservedBalance
		}
		if src == Free && bal.Free.Cmp(amount) < 0 {
			return ErrInsufficientFreeBalance
		}
		return nil
	}
	return e.move(account, currency, amount, src, dest)
}
