package core_test

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"vaultbridge/core"
	"vaultbridge/core/events"
	"vaultbridge/core/genesis"
	"vaultbridge/core/state"
	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/common"
	"vaultbridge/native/fee"
	"vaultbridge/native/fixed"
	"vaultbridge/native/issue"
	"vaultbridge/native/nomination"
	"vaultbridge/native/oracle"
	"vaultbridge/native/params"
	"vaultbridge/native/redeem"
	"vaultbridge/native/replace"
	"vaultbridge/native/security"
	"vaultbridge/native/vaultregistry"
	"vaultbridge/storage"
	"vaultbridge/storage/trie"
)

var (
	btcParams = &chaincfg.RegressionNetParams

	rootAccount     = types.AccountID{0xaa}
	feederAccount   = types.AccountID{0xfe}
	operatorAccount = types.AccountID{0x01}
	userAccount     = types.AccountID{0x02}
	newOperator     = types.AccountID{0x03}

	dot  = types.Token("DOT")
	pair = types.VaultCurrencyPair{Collateral: dot, Wrapped: types.Wrapped()}
)

type harness struct {
	t     *testing.T
	rt    *core.Runtime
	relay *btcrelay.Store
	sink  *events.Buffer
}

func bridgeSpec() *genesis.Spec {
	feeRate := fixed.FromInt(1)
	return &genesis.Spec{
		Root: rootAccount,
		Balances: map[string]map[string]string{
			operatorAccount.String(): {"token:dot": "10000000", "native": "1000000"},
			userAccount.String():     {"token:dot": "1000000"},
			newOperator.String():     {"token:dot": "10000000", "native": "1000000"},
		},
		Pairs: []genesis.PairSpec{{
			Collateral:           dot,
			SecureThreshold:      fixed.MustParse("1.5"),
			PremiumThreshold:     fixed.MustParse("1.35"),
			LiquidationThreshold: fixed.MustParse("1.1"),
		}},
		MinimumCollateral: map[string]string{"token:dot": "1000"},
		PunishmentDelay:   20,
		NominationEnabled: true,
		Fees: genesis.FeeSpec{
			IssueFee:                  fixed.MustParse("0.005"),
			IssueGriefingCollateral:   fixed.MustParse("0.00005"),
			RedeemFee:                 fixed.MustParse("0.005"),
			PremiumRedeemFee:          fixed.MustParse("0.05"),
			PunishmentFee:             fixed.MustParse("0.1"),
			ReplaceGriefingCollateral: fixed.MustParse("0.1"),
		},
		Issue:   genesis.RequestSpec{Period: 10, BtcDustValue: "1000"},
		Redeem:  genesis.RequestSpec{Period: 10, BtcDustValue: "1000"},
		Replace: genesis.RequestSpec{Period: 10, BtcDustValue: "1000"},
		Oracle: genesis.OracleSpec{
			Feeders:               []types.AccountID{feederAccount},
			MaxDelayMillis:        3_600_000,
			RedeemTransactionSize: 400,
			ExchangeRates: map[string]fixed.Unsigned{
				"token:dot": fixed.FromInt(2),
				"native":    fixed.FromInt(1),
			},
			FeeEstimation: &feeRate,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := trie.NewTrie(db, nil)
	require.NoError(t, err)

	relay := btcrelay.NewStore(btcParams, 1)
	require.NoError(t, relay.Initialize(btcParams.GenesisBlock.Header, 0))

	spec := bridgeSpec()
	sink := &events.Buffer{}
	rt, err := core.NewRuntime(state.NewManager(tr), relay, spec.RuntimeOptions(core.Options{
		BitcoinParams:         btcParams,
		BlocksPerBitcoinBlock: 10,
		Emitter:               sink,
	}))
	require.NoError(t, err)
	require.NoError(t, genesis.Apply(rt, spec))
	require.NoError(t, rt.AdvanceBlocks(1))
	return &harness{t: t, rt: rt, relay: relay, sink: sink}
}

func (h *harness) newKey() bitcoin.PublicKey {
	h.t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(h.t, err)
	key, err := bitcoin.ParsePublicKey(priv.PubKey().SerializeCompressed())
	require.NoError(h.t, err)
	return key
}

func (h *harness) newAddress() bitcoin.Address {
	h.t.Helper()
	addr, err := bitcoin.DepositAddress(h.newKey(), btcParams)
	require.NoError(h.t, err)
	return addr
}

func (h *harness) registerVault(operator types.AccountID, collateral int64) types.VaultID {
	h.t.Helper()
	require.NoError(h.t, h.rt.RegisterPublicKey(operator, h.newKey()))
	require.NoError(h.t, h.rt.RegisterVault(operator, pair, big.NewInt(collateral)))
	return types.VaultID{AccountID: operator, Currencies: pair}
}

// pay mines a bitcoin block with a payment tagged with id and returns its
// proof.
func (h *harness) pay(addr bitcoin.Address, amount *big.Int, id types.H256) *btcrelay.FullTransactionProof {
	h.t.Helper()
	tx, err := btcrelay.BuildPaymentTx(btcParams, addr, amount.Int64(), &id)
	require.NoError(h.t, err)
	block, err := h.relay.MineBlock(tx)
	require.NoError(h.t, err)
	return btcrelay.ProofFor(block, 1)
}

func (h *harness) mineEmpty(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		_, err := h.relay.MineBlock()
		require.NoError(h.t, err)
	}
}

func (h *harness) issue(vault types.VaultID, amount int64) *issue.Request {
	h.t.Helper()
	id, err := h.rt.RequestIssue(userAccount, big.NewInt(amount), vault, dot)
	require.NoError(h.t, err)
	req, err := h.rt.Issue().Request(id)
	require.NoError(h.t, err)
	require.NoError(h.t, h.rt.ExecuteIssue(userAccount, id, h.pay(req.BtcAddress, req.Expected(), id)))
	done, err := h.rt.Issue().Request(id)
	require.NoError(h.t, err)
	return done
}

func (h *harness) free(account types.AccountID, cur types.CurrencyID) string {
	h.t.Helper()
	bal, err := h.rt.Currency().FreeBalance(account, cur)
	require.NoError(h.t, err)
	return bal.String()
}

func (h *harness) vault(id types.VaultID) *vaultregistry.Vault {
	h.t.Helper()
	v, err := h.rt.Registry().Vault(id)
	require.NoError(h.t, err)
	return v
}

func (h *harness) liquidationVault() *vaultregistry.LiquidationVault {
	h.t.Helper()
	lv, err := h.rt.Registry().LiquidationVault(pair)
	require.NoError(h.t, err)
	return lv
}

func (h *harness) requestRedeem(vault types.VaultID, amount int64) *redeem.Request {
	h.t.Helper()
	id, err := h.rt.RequestRedeem(userAccount, big.NewInt(amount), h.newAddress(), vault)
	require.NoError(h.t, err)
	return h.redeemRequest(id)
}

func (h *harness) redeemRequest(id types.H256) *redeem.Request {
	h.t.Helper()
	req, err := h.rt.Redeem().Request(id)
	require.NoError(h.t, err)
	return req
}

func (h *harness) feedRate(rate uint64) {
	h.t.Helper()
	value := oracle.Value{Key: oracle.ExchangeRateKey(dot), Value: fixed.FromInt(rate)}
	require.NoError(h.t, h.rt.FeedValues(feederAccount, []oracle.Value{value}))
}

// expire moves both chains past the request period.
func (h *harness) expire() {
	h.t.Helper()
	require.NoError(h.t, h.rt.AdvanceBlocks(11))
	h.mineEmpty(2)
}

// lastEvent drains the sink and returns the last event of kind.
func (h *harness) lastEvent(kind string) *types.Event {
	h.t.Helper()
	var found *types.Event
	for _, evt := range h.sink.Drain() {
		if evt.EventType() == kind {
			found = events.Payload(evt)
		}
	}
	require.NotNil(h.t, found, kind)
	return found
}

// checkInvariants asserts the token accounting of the pair. vaults must list
// every vault registered for it.
func (h *harness) checkInvariants(vaults ...types.VaultID) {
	h.t.Helper()
	issued := new(big.Int).Set(h.liquidationVault().Issued)
	for _, id := range vaults {
		v := h.vault(id)
		require.LessOrEqual(h.t, v.ToBeRedeemed.Cmp(v.Issued), 0)
		committed := new(big.Int).Add(v.ToBeRedeemed, v.ToBeReplaced)
		require.LessOrEqual(h.t, committed.Cmp(v.Issued), 0)
		if !v.IsLiquidated() {
			below, err := h.rt.Registry().IsVaultBelowSecureThreshold(id)
			require.NoError(h.t, err)
			require.False(h.t, below, id.String())
		}
		issued.Add(issued, v.Issued)
	}
	supply, err := h.rt.Currency().TotalIssuance(types.Wrapped())
	require.NoError(h.t, err)
	require.Equal(h.t, issued.String(), supply.String())
}

func TestIssueAndRedeemLifecycle(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)
	require.Equal(t, "7000000", h.free(operatorAccount, dot))

	id, err := h.rt.RequestIssue(userAccount, big.NewInt(100_000), vault, dot)
	require.NoError(t, err)
	req, err := h.rt.Issue().Request(id)
	require.NoError(t, err)
	require.Equal(t, "100000", req.Expected().String())
	require.Equal(t, "500", req.Fee.String())
	require.Equal(t, 1, req.GriefingCollateral.Sign())
	locked := new(big.Int).Sub(big.NewInt(1_000_000), req.GriefingCollateral)
	require.Equal(t, locked.String(), h.free(userAccount, dot))
	require.Equal(t, "100000", h.vault(vault).ToBeIssued.String())

	require.NoError(t, h.rt.ExecuteIssue(userAccount, id, h.pay(req.BtcAddress, req.Expected(), id)))
	require.Equal(t, "99500", h.free(userAccount, types.Wrapped()))
	require.Equal(t, "1000000", h.free(userAccount, dot))
	v := h.vault(vault)
	require.Equal(t, "100000", v.Issued.String())
	require.Zero(t, v.ToBeIssued.Sign())

	err = h.rt.ExecuteIssue(userAccount, id, h.pay(req.BtcAddress, req.Expected(), id))
	require.ErrorIs(t, err, issue.ErrRequestCompleted)

	dest := h.newAddress()
	rid, err := h.rt.RequestRedeem(userAccount, big.NewInt(50_000), dest, vault)
	require.NoError(t, err)
	rreq, err := h.rt.Redeem().Request(rid)
	require.NoError(t, err)
	require.Equal(t, "250", rreq.Fee.String())
	require.Equal(t, "400", rreq.TransferFeeBtc.String())
	require.Equal(t, "49350", rreq.AmountBtc.String())
	require.Zero(t, rreq.Premium.Sign())
	require.Equal(t, "49500", h.free(userAccount, types.Wrapped()))

	short := new(big.Int).Sub(rreq.AmountBtc, big.NewInt(1))
	err = h.rt.ExecuteRedeem(operatorAccount, rid, h.pay(dest, short, rid))
	require.ErrorIs(t, err, btcrelay.ErrInvalidPaymentAmount)

	require.NoError(t, h.rt.ExecuteRedeem(operatorAccount, rid, h.pay(dest, rreq.AmountBtc, rid)))
	reserved, err := h.rt.Currency().ReservedBalance(userAccount, types.Wrapped())
	require.NoError(t, err)
	require.Zero(t, reserved.Sign())
	v = h.vault(vault)
	require.Equal(t, new(big.Int).Sub(big.NewInt(100_000), rreq.Burned()).String(), v.Issued.String())
	require.Zero(t, v.ToBeRedeemed.Sign())

	done, err := h.rt.Redeem().Request(rid)
	require.NoError(t, err)
	require.Equal(t, redeem.StatusCompleted, done.Status)
	h.checkInvariants(vault)
}

func TestCancelIssueAfterExpiry(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)

	id, err := h.rt.RequestIssue(userAccount, big.NewInt(100_000), vault, dot)
	require.NoError(t, err)
	req, err := h.rt.Issue().Request(id)
	require.NoError(t, err)
	griefing := req.GriefingCollateral.String()

	require.ErrorIs(t, h.rt.CancelIssue(operatorAccount, id), issue.ErrTimeNotExpired)
	require.NoError(t, h.rt.AdvanceBlocks(11))
	require.ErrorIs(t, h.rt.CancelIssue(operatorAccount, id), issue.ErrTimeNotExpired)
	h.mineEmpty(2)
	require.NoError(t, h.rt.CancelIssue(operatorAccount, id))

	require.Equal(t, griefing, h.free(types.DefaultTreasuryAccount, dot))
	require.Zero(t, h.vault(vault).ToBeIssued.Sign())
	require.ErrorIs(t, h.rt.CancelIssue(operatorAccount, id), issue.ErrRequestCancelled)

	proof := h.pay(req.BtcAddress, req.Expected(), id)
	require.ErrorIs(t, h.rt.ExecuteIssue(operatorAccount, id, proof), issue.ErrUnauthorizedUser)
	require.NoError(t, h.rt.ExecuteIssue(userAccount, id, proof))
	require.Equal(t, req.Amount.String(), h.free(userAccount, types.Wrapped()))
	require.Equal(t, "100000", h.vault(vault).Issued.String())
}

func TestLiquidationAfterPriceDrop(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)
	h.issue(vault, 100_000)

	err := h.rt.LiquidateVault(userAccount, vault)
	require.ErrorIs(t, err, vaultregistry.ErrVaultNotBelowLiquidationThreshold)

	drop := []oracle.Value{{Key: oracle.ExchangeRateKey(dot), Value: fixed.FromInt(40)}}
	require.ErrorIs(t, h.rt.FeedValues(userAccount, drop), oracle.ErrUnauthorizedFeeder)
	require.NoError(t, h.rt.FeedValues(feederAccount, drop))

	require.ErrorIs(t, h.rt.RecoverVault(operatorAccount, vault), vaultregistry.ErrVaultNotRecoverable)
	require.NoError(t, h.rt.LiquidateVault(userAccount, vault))
	require.True(t, h.vault(vault).IsLiquidated())
	require.Zero(t, h.vault(vault).LiquidatedCollateral.Sign())
	lv := h.liquidationVault()
	require.Equal(t, "100000", lv.Issued.String())
	require.Equal(t, "3000000", lv.Collateral.String())

	_, err = h.rt.RequestIssue(userAccount, big.NewInt(10_000), vault, dot)
	require.ErrorIs(t, err, vaultregistry.ErrVaultLiquidated)
	err = h.rt.WithdrawCollateral(operatorAccount, vault, big.NewInt(1_000))
	require.ErrorIs(t, err, vaultregistry.ErrVaultLiquidated)

	paid, err := h.rt.LiquidationRedeem(userAccount, pair, big.NewInt(10_000))
	require.NoError(t, err)
	require.Equal(t, "300000", paid.String())
	require.Equal(t, "89500", h.free(userAccount, types.Wrapped()))
	require.Equal(t, new(big.Int).Add(big.NewInt(1_000_000), paid).String(), h.free(userAccount, dot))

	require.ErrorIs(t, h.rt.RecoverVault(userAccount, vault), core.ErrNotVaultOwner)
	require.NoError(t, h.rt.RecoverVault(operatorAccount, vault))
	require.False(t, h.vault(vault).IsLiquidated())
	require.ErrorIs(t, h.rt.RecoverVault(operatorAccount, vault), vaultregistry.ErrVaultNotRecoverable)
}

func TestLiquidationSetsAsideCollateralForPendingRedeems(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)
	h.issue(vault, 100_000)

	retried := h.requestRedeem(vault, 10_000)
	reimbursed := h.requestRedeem(vault, 20_000)
	require.Equal(t, "29850", h.vault(vault).ToBeRedeemed.String())

	h.feedRate(40)
	require.NoError(t, h.rt.LiquidateVault(userAccount, vault))

	// 29850 of 100000 tokens are in flight, so that share of the backing stays.
	v := h.vault(vault)
	require.Equal(t, "895500", v.LiquidatedCollateral.String())
	require.Equal(t, "29850", v.LiquidatedToBeRedeemed.String())
	require.Zero(t, v.Issued.Sign())
	require.Zero(t, v.ToBeRedeemed.Sign())
	lv := h.liquidationVault()
	require.Equal(t, "2104500", lv.Collateral.String())
	require.Equal(t, "100000", lv.Issued.String())
	require.Equal(t, "29850", lv.ToBeRedeemed.String())

	h.expire()
	require.NoError(t, h.rt.CancelRedeem(userAccount, retried.ID, false))
	require.Equal(t, redeem.StatusRetried, h.redeemRequest(retried.ID).Status)
	require.Equal(t, "79500", h.free(userAccount, types.Wrapped()))
	v = h.vault(vault)
	require.Equal(t, "597000", v.LiquidatedCollateral.String())
	require.Equal(t, "19900", v.LiquidatedToBeRedeemed.String())
	require.Zero(t, v.BannedUntil)
	lv = h.liquidationVault()
	require.Equal(t, "2403000", lv.Collateral.String())
	require.Equal(t, "19900", lv.ToBeRedeemed.String())
	require.Equal(t, "100000", lv.Issued.String())
	require.ErrorIs(t, h.rt.RecoverVault(operatorAccount, vault), vaultregistry.ErrVaultNotRecoverable)

	require.NoError(t, h.rt.CancelRedeem(userAccount, reimbursed.ID, true))
	require.Equal(t, redeem.StatusReimbursedUnminted, h.redeemRequest(reimbursed.ID).Status)
	require.Equal(t, "1597000", h.free(userAccount, dot))
	reserved, err := h.rt.Currency().ReservedBalance(userAccount, types.Wrapped())
	require.NoError(t, err)
	require.Zero(t, reserved.Sign())
	v = h.vault(vault)
	require.Zero(t, v.LiquidatedCollateral.Sign())
	require.Zero(t, v.LiquidatedToBeRedeemed.Sign())
	lv = h.liquidationVault()
	require.Equal(t, "80100", lv.Issued.String())
	require.Zero(t, lv.ToBeRedeemed.Sign())
	require.Equal(t, "2403000", lv.Collateral.String())

	require.NoError(t, h.rt.RecoverVault(operatorAccount, vault))
	require.False(t, h.vault(vault).IsLiquidated())
	require.Equal(t, "7000000", h.free(operatorAccount, dot))
	h.checkInvariants(vault)
}

func TestReplaceMovesIssuedTokens(t *testing.T) {
	h := newHarness(t)
	oldVault := h.registerVault(operatorAccount, 3_000_000)
	h.issue(oldVault, 100_000)
	newVault := h.registerVault(newOperator, 3_000_000)

	require.ErrorIs(t, h.rt.RequestReplace(userAccount, oldVault, big.NewInt(50_000)), core.ErrNotVaultOwner)
	require.ErrorIs(t, h.rt.RequestReplace(operatorAccount, oldVault, big.NewInt(10)), replace.ErrAmountBelowDust)
	require.NoError(t, h.rt.RequestReplace(operatorAccount, oldVault, big.NewInt(50_000)))
	require.Equal(t, "995000", h.free(operatorAccount, types.Native()))
	require.Equal(t, "50000", h.vault(oldVault).ToBeReplaced.String())

	addr := h.newAddress()
	_, err := h.rt.AcceptReplace(operatorAccount, oldVault, newVault, big.NewInt(50_000), big.NewInt(200_000), addr)
	require.ErrorIs(t, err, core.ErrNotVaultOwner)
	id, err := h.rt.AcceptReplace(newOperator, oldVault, newVault, big.NewInt(50_000), big.NewInt(200_000), addr)
	require.NoError(t, err)
	req, err := h.rt.Replace().Request(id)
	require.NoError(t, err)
	require.Equal(t, "50000", req.Amount.String())
	require.Equal(t, "200000", req.Collateral.String())
	require.Equal(t, "6800000", h.free(newOperator, dot))

	require.NoError(t, h.rt.ExecuteReplace(userAccount, id, h.pay(addr, req.Amount, id)))
	require.Equal(t, "50000", h.vault(oldVault).Issued.String())
	require.Equal(t, "50000", h.vault(newVault).Issued.String())
	require.Zero(t, h.vault(newVault).ToBeIssued.Sign())
	require.Equal(t, "1000000", h.free(operatorAccount, types.Native()))

	require.ErrorIs(t, h.rt.CancelReplace(newOperator, id), replace.ErrRequestCompleted)
	h.checkInvariants(oldVault, newVault)
}

func TestNominationLifecycle(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)

	require.ErrorIs(t, h.rt.NominateCollateral(userAccount, vault, big.NewInt(100_000)), nomination.ErrVaultNotOptedIn)
	require.ErrorIs(t, h.rt.OptInToNomination(userAccount, vault), core.ErrNotVaultOwner)
	require.NoError(t, h.rt.OptInToNomination(operatorAccount, vault))
	require.ErrorIs(t, h.rt.OptInToNomination(operatorAccount, vault), nomination.ErrVaultAlreadyOptedIn)

	require.NoError(t, h.rt.NominateCollateral(userAccount, vault, big.NewInt(100_000)))
	require.Equal(t, "900000", h.free(userAccount, dot))
	stake, err := h.rt.Nomination().NominatorCollateral(vault, userAccount, nil)
	require.NoError(t, err)
	require.Equal(t, "100000", stake.String())

	err = h.rt.RequestReplace(operatorAccount, vault, big.NewInt(10_000))
	require.ErrorIs(t, err, replace.ErrVaultOptedIntoNomination)

	require.NoError(t, h.rt.WithdrawNominatedCollateral(userAccount, vault, big.NewInt(40_000), nil))
	require.Equal(t, "940000", h.free(userAccount, dot))

	require.NoError(t, h.rt.OptOutOfNomination(operatorAccount, vault))
	require.ErrorIs(t, h.rt.NominateCollateral(userAccount, vault, big.NewInt(1_000)), nomination.ErrVaultNotOptedIn)

	require.NoError(t, h.rt.SetNominationEnabled(rootAccount, false))
	require.ErrorIs(t, h.rt.OptInToNomination(operatorAccount, vault), nomination.ErrNominationDisabled)
}

func TestFailedExtrinsicLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)
	h.sink.Discard()
	root := h.rt.State().Root()

	// The griefing lock happens before the dust check and must be undone.
	_, err := h.rt.RequestIssue(userAccount, big.NewInt(500), vault, dot)
	require.ErrorIs(t, err, issue.ErrAmountBelowDust)
	require.Equal(t, root, h.rt.State().Root())
	require.Equal(t, "1000000", h.free(userAccount, dot))
	require.Zero(t, h.sink.Len())

	_, err = h.rt.RequestIssue(userAccount, big.NewInt(5_000), vault, dot)
	require.NoError(t, err)
	require.NotZero(t, h.sink.Len())
	var sawRequest bool
	for _, evt := range h.sink.Drain() {
		if evt.EventType() == "issue.requested" {
			sawRequest = true
		}
	}
	require.True(t, sawRequest)
}

func TestGovernanceRequiresRoot(t *testing.T) {
	h := newHarness(t)

	require.ErrorIs(t, h.rt.SetIssueFee(userAccount, fixed.MustParse("0.01")), core.ErrBadOrigin)
	require.NoError(t, h.rt.SetIssueFee(rootAccount, fixed.MustParse("0.01")))
	rates, err := h.rt.Fee().Rates()
	require.NoError(t, err)
	require.Zero(t, rates.IssueFee.Cmp(fixed.MustParse("0.01")))

	require.ErrorIs(t, h.rt.InsertAuthorizedOracle(userAccount, userAccount), core.ErrBadOrigin)
	require.NoError(t, h.rt.InsertAuthorizedOracle(rootAccount, userAccount))
	require.NoError(t, h.rt.FeedValues(userAccount, []oracle.Value{{Key: oracle.ExchangeRateKey(dot), Value: fixed.FromInt(3)}}))

	_, err = h.rt.SweepUndistributed(userAccount, types.Wrapped())
	require.ErrorIs(t, err, core.ErrBadOrigin)
}

func TestFeeRatesCappedAtOne(t *testing.T) {
	h := newHarness(t)

	require.ErrorIs(t, h.rt.SetIssueFee(rootAccount, fixed.MustParse("1.01")), fee.ErrInvalidRate)
	require.ErrorIs(t, h.rt.SetRedeemFee(rootAccount, fixed.FromInt(2)), fee.ErrInvalidRate)
	require.ErrorIs(t, h.rt.SetPremiumRedeemFee(rootAccount, fixed.MustParse("1.5")), fee.ErrInvalidRate)
	require.ErrorIs(t, h.rt.SetPunishmentFee(rootAccount, fixed.MustParse("1.000001")), fee.ErrInvalidRate)
	require.ErrorIs(t, h.rt.SetIssueGriefingCollateral(rootAccount, fixed.FromInt(3)), fee.ErrInvalidRate)
	require.ErrorIs(t, h.rt.SetReplaceGriefingCollateral(rootAccount, fixed.MustParse("1.1")), fee.ErrInvalidRate)
	rates, err := h.rt.Fee().Rates()
	require.NoError(t, err)
	require.Zero(t, rates.RedeemFee.Cmp(fixed.MustParse("0.005")))
	require.Zero(t, rates.PunishmentFee.Cmp(fixed.MustParse("0.1")))

	require.NoError(t, h.rt.SetPunishmentFee(rootAccount, fixed.One()))
	rates, err = h.rt.Fee().Rates()
	require.NoError(t, err)
	require.Zero(t, rates.PunishmentFee.Cmp(fixed.One()))
}

func TestPauseAndShutdownBlockUserCalls(t *testing.T) {
	h := newHarness(t)
	vault := h.registerVault(operatorAccount, 3_000_000)

	require.NoError(t, h.rt.SetPaused(rootAccount, params.ModuleIssue, true))
	_, err := h.rt.RequestIssue(userAccount, big.NewInt(5_000), vault, dot)
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.NoError(t, h.rt.DepositCollateral(operatorAccount, vault, big.NewInt(1_000)))
	require.NoError(t, h.rt.SetPaused(rootAccount, params.ModuleIssue, false))
	_, err = h.rt.RequestIssue(userAccount, big.NewInt(5_000), vault, dot)
	require.NoError(t, err)

	require.NoError(t, h.rt.SetBridgeStatus(rootAccount, security.StatusShutdown))
	require.ErrorIs(t, h.rt.RegisterPublicKey(newOperator, h.newKey()), security.ErrParachainNotRunning)
	active := h.rt.Security().ActiveBlockNumber()
	height := h.rt.Height()
	require.NoError(t, h.rt.AdvanceBlocks(3))
	require.Equal(t, active, h.rt.Security().ActiveBlockNumber())
	require.Equal(t, height+3, h.rt.Height())

	require.NoError(t, h.rt.SetBridgeStatus(rootAccount, security.StatusRunning))
	require.NoError(t, h.rt.RegisterPublicKey(newOperator, h.newKey()))
}
