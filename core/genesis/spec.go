package genesis

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/wire"

	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
)

// Spec is the JSON document that seeds a fresh bridge. Amounts are decimal
// integer strings in the smallest unit; ratios are decimal strings.
type Spec struct {
	Root     types.AccountID  `json:"root"`
	Treasury *types.AccountID `json:"treasury,omitempty"`

	// Balances maps account -> currency -> free balance.
	Balances map[string]map[string]string `json:"balances,omitempty"`

	Pairs             []PairSpec        `json:"pairs"`
	MinimumCollateral map[string]string `json:"minimumCollateral,omitempty"`
	PunishmentDelay   uint64            `json:"punishmentDelay"`
	NominationEnabled bool              `json:"nominationEnabled"`

	Fees    FeeSpec     `json:"fees"`
	Issue   RequestSpec `json:"issue"`
	Redeem  RequestSpec `json:"redeem"`
	Replace RequestSpec `json:"replace"`
	Oracle  OracleSpec  `json:"oracle"`
	Relay   *RelaySpec  `json:"relay,omitempty"`

	balances    []allocation
	minimums    map[types.CurrencyID]*big.Int
	relayHeader *wire.BlockHeader
}

// PairSpec registers one collateral currency against the wrapped currency.
type PairSpec struct {
	Collateral           types.CurrencyID `json:"collateral"`
	SecureThreshold      fixed.Unsigned   `json:"secureThreshold"`
	PremiumThreshold     fixed.Unsigned   `json:"premiumThreshold"`
	LiquidationThreshold fixed.Unsigned   `json:"liquidationThreshold"`
	Ceiling              string           `json:"ceiling,omitempty"`

	ceiling *big.Int
}

type FeeSpec struct {
	IssueFee                  fixed.Unsigned `json:"issueFee"`
	IssueGriefingCollateral   fixed.Unsigned `json:"issueGriefingCollateral"`
	RedeemFee                 fixed.Unsigned `json:"redeemFee"`
	PremiumRedeemFee          fixed.Unsigned `json:"premiumRedeemFee"`
	PunishmentFee             fixed.Unsigned `json:"punishmentFee"`
	ReplaceGriefingCollateral fixed.Unsigned `json:"replaceGriefingCollateral"`
}

// RequestSpec carries the expiry period (in blocks) and bitcoin dust value
// (in satoshi) of one request protocol.
type RequestSpec struct {
	Period       uint64 `json:"period"`
	BtcDustValue string `json:"btcDustValue"`

	dust *big.Int
}

type OracleSpec struct {
	Feeders               []types.AccountID `json:"feeders"`
	MaxDelayMillis        uint64            `json:"maxDelayMillis"`
	RedeemTransactionSize uint64            `json:"redeemTransactionSize"`
	// ExchangeRates maps collateral currency -> units per wrapped unit.
	ExchangeRates map[string]fixed.Unsigned `json:"exchangeRates,omitempty"`
	// FeeEstimation is the bitcoin fee rate in satoshi per vbyte.
	FeeEstimation *fixed.Unsigned `json:"feeEstimation,omitempty"`
}

// RelaySpec is the trusted bitcoin header the relay starts from.
type RelaySpec struct {
	Header              string `json:"header"`
	Height              uint32 `json:"height"`
	StableConfirmations uint32 `json:"stableConfirmations"`
}

type allocation struct {
	account  types.AccountID
	currency types.CurrencyID
	amount   *big.Int
}

// LoadSpec reads and validates a genesis document.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a genesis document. Unknown fields are
// rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// TreasuryAccount returns the configured treasury or the default module
// account.
func (s *Spec) TreasuryAccount() types.AccountID {
	if s.Treasury == nil || s.Treasury.IsZero() {
		return types.DefaultTreasuryAccount
	}
	return *s.Treasury
}

// RelayHeader returns the decoded trusted header, if any.
func (s *Spec) RelayHeader() (wire.BlockHeader, uint32, bool) {
	if s.relayHeader == nil {
		return wire.BlockHeader{}, 0, false
	}
	return *s.relayHeader, s.Relay.Height, true
}

func (s *Spec) validate() error {
	if s.Root.IsZero() {
		return fmt.Errorf("root must be provided")
	}

	accounts := make([]string, 0, len(s.Balances))
	for account := range s.Balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	s.balances = s.balances[:0]
	for _, account := range accounts {
		id, err := types.ParseAccountID(account)
		if err != nil {
			return fmt.Errorf("balances[%q]: %w", account, err)
		}
		currencies := make([]string, 0, len(s.Balances[account]))
		for cur := range s.Balances[account] {
			currencies = append(currencies, cur)
		}
		sort.Strings(currencies)
		for _, cur := range currencies {
			currency, err := types.ParseCurrencyID(cur)
			if err != nil {
				return fmt.Errorf("balances[%q][%q]: %w", account, cur, err)
			}
			amount, err := parseAmountString(s.Balances[account][cur])
			if err != nil {
				return fmt.Errorf("balances[%q][%q]: %w", account, cur, err)
			}
			s.balances = append(s.balances, allocation{account: id, currency: currency, amount: amount})
		}
	}

	if len(s.Pairs) == 0 {
		return fmt.Errorf("at least one pair must be provided")
	}
	seen := make(map[types.CurrencyID]struct{}, len(s.Pairs))
	for i := range s.Pairs {
		p := &s.Pairs[i]
		if p.Collateral.IsWrapped() {
			return fmt.Errorf("pairs[%d]: collateral must not be the wrapped currency", i)
		}
		if _, dup := seen[p.Collateral]; dup {
			return fmt.Errorf("pairs[%d]: duplicate collateral %s", i, p.Collateral)
		}
		seen[p.Collateral] = struct{}{}
		ceiling, err := parseAmountString(p.Ceiling)
		if err != nil {
			return fmt.Errorf("pairs[%d].ceiling: %w", i, err)
		}
		p.ceiling = ceiling
	}

	s.minimums = make(map[types.CurrencyID]*big.Int, len(s.MinimumCollateral))
	for cur, raw := range s.MinimumCollateral {
		currency, err := types.ParseCurrencyID(cur)
		if err != nil {
			return fmt.Errorf("minimumCollateral[%q]: %w", cur, err)
		}
		amount, err := parseAmountString(raw)
		if err != nil {
			return fmt.Errorf("minimumCollateral[%q]: %w", cur, err)
		}
		s.minimums[currency] = amount
	}

	for name, req := range map[string]*RequestSpec{"issue": &s.Issue, "redeem": &s.Redeem, "replace": &s.Replace} {
		if req.Period == 0 {
			return fmt.Errorf("%s.period must be greater than zero", name)
		}
		dust, err := parseAmountString(req.BtcDustValue)
		if err != nil {
			return fmt.Errorf("%s.btcDustValue: %w", name, err)
		}
		req.dust = dust
	}

	if len(s.Oracle.ExchangeRates) > 0 || s.Oracle.FeeEstimation != nil {
		if len(s.Oracle.Feeders) == 0 {
			return fmt.Errorf("oracle: initial values require at least one feeder")
		}
	}
	for cur := range s.Oracle.ExchangeRates {
		if _, err := types.ParseCurrencyID(cur); err != nil {
			return fmt.Errorf("oracle.exchangeRates[%q]: %w", cur, err)
		}
	}

	s.relayHeader = nil
	if s.Relay != nil {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s.Relay.Header), "0x"))
		if err != nil {
			return fmt.Errorf("relay.header: %w", err)
		}
		var header wire.BlockHeader
		if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("relay.header: %w", err)
		}
		s.relayHeader = &header
	}
	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
