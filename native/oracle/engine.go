package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
)

var (
	ErrMissingExchangeRate = errors.New("oracle: missing exchange rate")
	ErrUnauthorizedFeeder  = errors.New("oracle: unauthorized feeder")
	ErrInvalidValue        = errors.New("oracle: invalid value")
	ErrEmptySubmission     = errors.New("oracle: empty submission")
	errNilState            = errors.New("oracle: state not configured")
)

// KeyKind distinguishes the values the oracle publishes.
type KeyKind uint8

const (
	KeyExchangeRate KeyKind = iota
	KeyFeeEstimation
)

// Key names a published value. Exchange rates are quoted as units of
// Currency per unit of the wrapped currency; the fee estimation is the
// bitcoin fee rate in satoshi per virtual byte.
type Key struct {
	Kind     KeyKind
	Currency types.CurrencyID
}

func ExchangeRateKey(currency types.CurrencyID) Key {
	return Key{Kind: KeyExchangeRate, Currency: currency}
}

func FeeEstimationKey() Key { return Key{Kind: KeyFeeEstimation} }

func (k Key) String() string {
	if k.Kind == KeyFeeEstimation {
		return "fee-estimation"
	}
	return "rate:" + k.Currency.String()
}

func (k Key) Bytes() []byte { return []byte(k.String()) }

// Value is one entry of a feed submission.
type Value struct {
	Key   Key
	Value fixed.Unsigned
}

// Submission is the latest value a feeder reported for a key.
type Submission struct {
	Feeder    types.AccountID
	Value     fixed.Unsigned
	Timestamp uint64
}

// Params are the governance controlled oracle settings.
type Params struct {
	// MaxDelay is the age in milliseconds after which a submission is stale.
	MaxDelay uint64
	// RedeemTransactionSize is the virtual size of a vault's redeem payment,
	// used to turn the fee rate into an inclusion fee.
	RedeemTransactionSize uint64
}

type engineState interface {
	OracleParams() (*Params, error)
	PutOracleParams(*Params) error
	OracleAuthorized(feeder types.AccountID) (bool, error)
	PutOracleAuthorized(feeder types.AccountID, authorized bool) error
	OracleSubmissions(key Key) ([]Submission, error)
	PutOracleSubmissions(key Key, submissions []Submission) error
}

// Clock exposes the active block height.
type Clock interface {
	ActiveBlockNumber() uint64
}

// RateListener is notified after an exchange rate submission lands.
type RateListener func(currency types.CurrencyID) error

// Engine aggregates feeder submissions and performs currency conversions.
type Engine struct {
	state          engineState
	clock          Clock
	emitter        events.Emitter
	millisPerBlock uint64
	listeners      []RateListener
}

func NewEngine(millisPerBlock uint64) *Engine {
	if millisPerBlock == 0 {
		millisPerBlock = 6000
	}
	return &Engine{emitter: events.NoopEmitter{}, millisPerBlock: millisPerBlock}
}

func (e *Engine) SetState(state engineState) { e.state = state }
func (e *Engine) SetClock(clock Clock)        { e.clock = clock }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// OnRateChange registers a listener for exchange rate submissions.
func (e *Engine) OnRateChange(listener RateListener) {
	if listener != nil {
		e.listeners = append(e.listeners, listener)
	}
}

func (e *Engine) now() uint64 {
	if e.clock == nil {
		return 0
	}
	return e.clock.ActiveBlockNumber() * e.millisPerBlock
}

// Params returns the current settings.
func (e *Engine) Params() (Params, error) {
	if e.state == nil {
		return Params{}, errNilState
	}
	params, err := e.state.OracleParams()
	if err != nil {
		return Params{}, err
	}
	if params == nil {
		return Params{}, nil
	}
	return *params, nil
}

func (e *Engine) putParams(update func(*Params)) error {
	params, err := e.Params()
	if err != nil {
		return err
	}
	update(&params)
	return e.state.PutOracleParams(&params)
}

func (e *Engine) SetMaxDelay(ms uint64) error {
	return e.putParams(func(p *Params) { p.MaxDelay = ms })
}

func (e *Engine) SetRedeemTransactionSize(vbytes uint64) error {
	return e.putParams(func(p *Params) { p.RedeemTransactionSize = vbytes })
}

// InsertAuthorizedOracle allows feeder to submit values.
func (e *Engine) InsertAuthorizedOracle(feeder types.AccountID) error {
	if e.state == nil {
		return errNilState
	}
	return e.state.PutOracleAuthorized(feeder, true)
}

// RemoveAuthorizedOracle revokes feeder. Its earlier submissions stop
// counting immediately.
func (e *Engine) RemoveAuthorizedOracle(feeder types.AccountID) error {
	if e.state == nil {
		return errNilState
	}
	return e.state.PutOracleAuthorized(feeder, false)
}

// IsAuthorized reports whether feeder may submit.
func (e *Engine) IsAuthorized(feeder types.AccountID) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return e.state.OracleAuthorized(feeder)
}

// FeedValues records the feeder's latest values.
func (e *Engine) FeedValues(feeder types.AccountID, values []Value) error {
	if e.state == nil {
		return errNilState
	}
	if len(values) == 0 {
		return ErrEmptySubmission
	}
	ok, err := e.state.OracleAuthorized(feeder)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorizedFeeder
	}
	now := e.now()
	for _, v := range values {
		if v.Key.Kind == KeyExchangeRate {
			if v.Value.IsZero() {
				return fmt.Errorf("%w: zero exchange rate for %s", ErrInvalidValue, v.Key.Currency)
			}
			if v.Key.Currency.IsWrapped() {
				return fmt.Errorf("%w: wrapped currency has a fixed rate", ErrInvalidValue)
			}
		}
		subs, err := e.state.OracleSubmissions(v.Key)
		if err != nil {
			return err
		}
		replaced := false
		for i := range subs {
			if subs[i].Feeder == feeder {
				subs[i].Value = v.Value
				subs[i].Timestamp = now
				replaced = true
				break
			}
		}
		if !replaced {
			subs = append(subs, Submission{Feeder: feeder, Value: v.Value, Timestamp: now})
		}
		if err := e.state.PutOracleSubmissions(v.Key, subs); err != nil {
			return err
		}
		e.emitter.Emit(events.Structured{Evt: feedEvent(feeder, v.Key, v.Value)})
	}
	for _, v := range values {
		if v.Key.Kind != KeyExchangeRate {
			continue
		}
		for _, listener := range e.listeners {
			if err := listener(v.Key.Currency); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetPrice returns the median of fresh submissions from authorized feeders.
func (e *Engine) GetPrice(key Key) (fixed.Unsigned, error) {
	if e.state == nil {
		return fixed.Unsigned{}, errNilState
	}
	params, err := e.Params()
	if err != nil {
		return fixed.Unsigned{}, err
	}
	subs, err := e.state.OracleSubmissions(key)
	if err != nil {
		return fixed.Unsigned{}, err
	}
	now := e.now()
	fresh := make([]fixed.Unsigned, 0, len(subs))
	for _, sub := range subs {
		if now > sub.Timestamp && now-sub.Timestamp > params.MaxDelay {
			continue
		}
		ok, err := e.state.OracleAuthorized(sub.Feeder)
		if err != nil {
			return fixed.Unsigned{}, err
		}
		if ok {
			fresh = append(fresh, sub.Value)
		}
	}
	if len(fresh) == 0 {
		return fixed.Unsigned{}, fmt.Errorf("%w: %s", ErrMissingExchangeRate, key)
	}
	return median(fresh)
}

func median(values []fixed.Unsigned) (fixed.Unsigned, error) {
	sort.Slice(values, func(i, j int) bool { return values[i].Cmp(values[j]) < 0 })
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], nil
	}
	sum, err := values[mid-1].Add(values[mid])
	if err != nil {
		return fixed.Unsigned{}, err
	}
	return sum.Div(fixed.FromInt(2))
}

// ExchangeRate returns units of currency per wrapped unit.
func (e *Engine) ExchangeRate(currency types.CurrencyID) (fixed.Unsigned, error) {
	if currency.IsWrapped() {
		return fixed.One(), nil
	}
	return e.GetPrice(ExchangeRateKey(currency))
}

// WrappedToCollateral converts a wrapped amount into currency, rounding down.
func (e *Engine) WrappedToCollateral(amount *big.Int, currency types.CurrencyID) (*big.Int, error) {
	rate, err := e.ExchangeRate(currency)
	if err != nil {
		return nil, err
	}
	return rate.MulInt(amount, fixed.Floor)
}

// CollateralToWrapped converts an amount of currency into wrapped units,
// rounding down.
func (e *Engine) CollateralToWrapped(amount *big.Int, currency types.CurrencyID) (*big.Int, error) {
	rate, err := e.ExchangeRate(currency)
	if err != nil {
		return nil, err
	}
	return rate.DivInt(amount)
}

// Convert converts between any two currencies through their wrapped rates.
func (e *Engine) Convert(amount *big.Int, from, to types.CurrencyID) (*big.Int, error) {
	switch {
	case from == to:
		return new(big.Int).Set(amount), nil
	case from.IsWrapped():
		return e.WrappedToCollateral(amount, to)
	case to.IsWrapped():
		return e.CollateralToWrapped(amount, from)
	}
	fromRate, err := e.ExchangeRate(from)
	if err != nil {
		return nil, err
	}
	toRate, err := e.ExchangeRate(to)
	if err != nil {
		return nil, err
	}
	cross, err := toRate.Div(fromRate)
	if err != nil {
		return nil, err
	}
	return cross.MulInt(amount, fixed.Floor)
}

// InclusionFee estimates the bitcoin fee of a redeem payment in wrapped units.
func (e *Engine) InclusionFee() (*big.Int, error) {
	params, err := e.Params()
	if err != nil {
		return nil, err
	}
	rate, err := e.GetPrice(FeeEstimationKey())
	if err != nil {
		return nil, err
	}
	return rate.MulInt(new(big.Int).SetUint64(params.RedeemTransactionSize), fixed.Floor)
}

func feedEvent(feeder types.AccountID, key Key, value fixed.Unsigned) *types.Event {
	return &types.Event{
		Type: "oracle.fed",
		Attributes: map[string]string{
			"feeder": feeder.String(),
			"key":    key.String(),
			"value":  value.String(),
		},
	}
}
