package oracle

import (
	"errors"
	"math/big"
	"testing"

	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
)

type mockState struct {
	params     *Params
	authorized map[types.AccountID]bool
	subs       map[Key][]Submission
}

func newMockState() *mockState {
	return &mockState{
		params:     &Params{MaxDelay: 60_000, RedeemTransactionSize: 400},
		authorized: make(map[types.AccountID]bool),
		subs:       make(map[Key][]Submission),
	}
}

func (m *mockState) OracleParams() (*Params, error) { cp := *m.params; return &cp, nil }
func (m *mockState) PutOracleParams(p *Params) error { cp := *p; m.params = &cp; return nil }
func (m *mockState) OracleAuthorized(f types.AccountID) (bool, error) {
	return m.authorized[f], nil
}
func (m *mockState) PutOracleAuthorized(f types.AccountID, ok bool) error {
	m.authorized[f] = ok
	return nil
}
func (m *mockState) OracleSubmissions(k Key) ([]Submission, error) {
	return append([]Submission(nil), m.subs[k]...), nil
}
func (m *mockState) PutOracleSubmissions(k Key, subs []Submission) error {
	m.subs[k] = subs
	return nil
}

type fakeClock struct{ height uint64 }

func (c *fakeClock) ActiveBlockNumber() uint64 { return c.height }

func feeder(b byte) types.AccountID {
	var id types.AccountID
	id[0] = b
	return id
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{height: 1}
	engine := NewEngine(6000)
	engine.SetState(newMockState())
	engine.SetClock(clock)
	for i := byte(1); i <= 3; i++ {
		if err := engine.InsertAuthorizedOracle(feeder(i)); err != nil {
			t.Fatalf("authorize: %v", err)
		}
	}
	return engine, clock
}

func TestMedianOfFreshSubmissions(t *testing.T) {
	engine, _ := newTestEngine(t)
	dot := types.Token("DOT")
	for i, rate := range []string{"1", "5", "2"} {
		if err := engine.FeedValues(feeder(byte(i+1)), []Value{{Key: ExchangeRateKey(dot), Value: fixed.MustParse(rate)}}); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	rate, err := engine.ExchangeRate(dot)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.String() != "2" {
		t.Fatalf("expected median 2, got %s", rate)
	}

	if err := engine.RemoveAuthorizedOracle(feeder(3)); err != nil {
		t.Fatalf("remove: %v", err)
	}
	rate, err = engine.ExchangeRate(dot)
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate.String() != "3" {
		t.Fatalf("expected even median 3, got %s", rate)
	}
}

func TestStaleRateIsMissing(t *testing.T) {
	engine, clock := newTestEngine(t)
	dot := types.Token("DOT")
	if err := engine.FeedValues(feeder(1), []Value{{Key: ExchangeRateKey(dot), Value: fixed.One()}}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	clock.height += 10 // 60s at 6s blocks, still fresh
	if _, err := engine.ExchangeRate(dot); err != nil {
		t.Fatalf("rate should be fresh: %v", err)
	}
	clock.height++
	if _, err := engine.ExchangeRate(dot); !errors.Is(err, ErrMissingExchangeRate) {
		t.Fatalf("expected missing rate, got %v", err)
	}
}

func TestFeedRejectsUnauthorizedAndZero(t *testing.T) {
	engine, _ := newTestEngine(t)
	dot := types.Token("DOT")
	if err := engine.FeedValues(feeder(9), []Value{{Key: ExchangeRateKey(dot), Value: fixed.One()}}); !errors.Is(err, ErrUnauthorizedFeeder) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := engine.FeedValues(feeder(1), []Value{{Key: ExchangeRateKey(dot), Value: fixed.Zero()}}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}

func TestConversionsAndInclusionFee(t *testing.T) {
	engine, _ := newTestEngine(t)
	dot, ksm := types.Token("DOT"), types.Token("KSM")
	var notified []types.CurrencyID
	engine.OnRateChange(func(c types.CurrencyID) error {
		notified = append(notified, c)
		return nil
	})
	err := engine.FeedValues(feeder(1), []Value{
		{Key: ExchangeRateKey(dot), Value: fixed.MustParse("2.5")},
		{Key: ExchangeRateKey(ksm), Value: fixed.MustParse("0.5")},
		{Key: FeeEstimationKey(), Value: fixed.MustParse("1.5")},
	})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(notified) != 2 {
		t.Fatalf("expected two rate notifications, got %d", len(notified))
	}

	got, err := engine.WrappedToCollateral(big.NewInt(101), dot)
	if err != nil || got.Int64() != 252 {
		t.Fatalf("wrapped->dot: %v %v", got, err)
	}
	got, err = engine.CollateralToWrapped(big.NewInt(252), dot)
	if err != nil || got.Int64() != 100 {
		t.Fatalf("dot->wrapped: %v %v", got, err)
	}
	got, err = engine.Convert(big.NewInt(10), dot, ksm)
	if err != nil || got.Int64() != 2 {
		t.Fatalf("dot->ksm: %v %v", got, err)
	}
	fee, err := engine.InclusionFee()
	if err != nil || fee.Int64() != 600 {
		t.Fatalf("inclusion fee: %v %v", fee, err)
	}
}
