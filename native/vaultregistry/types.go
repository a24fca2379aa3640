package vaultregistry

import (
	"fmt"
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/fixed"
)

// VaultStatus is the lifecycle state of a vault.
type VaultStatus uint8

const (
	VaultActive VaultStatus = iota
	VaultLiquidated
	VaultCommittedTheft
)

func (s VaultStatus) String() string {
	switch s {
	case VaultActive:
		return "active"
	case VaultLiquidated:
		return "liquidated"
	case VaultCommittedTheft:
		return "committed_theft"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Liquidate returns the status after a threshold liquidation.
func (s VaultStatus) Liquidate() (VaultStatus, error) {
	if s != VaultActive {
		return s, ErrVaultLiquidated
	}
	return VaultLiquidated, nil
}

// ReportTheft returns the status after a theft liquidation.
func (s VaultStatus) ReportTheft() (VaultStatus, error) {
	if s != VaultActive {
		return s, ErrVaultLiquidated
	}
	return VaultCommittedTheft, nil
}

// Recover returns the status of a liquidated vault that settled its
// obligations.
func (s VaultStatus) Recover() (VaultStatus, error) {
	if s != VaultLiquidated {
		return s, ErrVaultNotRecoverable
	}
	return VaultActive, nil
}

// Vault is the registry record of one vault.
type Vault struct {
	ID              types.VaultID
	Status          VaultStatus
	AcceptNewIssues bool
	// BannedUntil is the last active block of a ban, zero when never banned.
	BannedUntil uint64
	// CustomSecureThreshold overrides the pair threshold when non-zero.
	CustomSecureThreshold fixed.Unsigned

	Issued       *big.Int
	ToBeIssued   *big.Int
	ToBeRedeemed *big.Int
	ToBeReplaced *big.Int

	// ReplaceCollateral is griefing pledged for to-be-replaced tokens that no
	// vault has accepted yet.
	ReplaceCollateral *big.Int
	// ActiveReplaceCollateral is griefing tied to accepted replace requests.
	ActiveReplaceCollateral *big.Int

	// LiquidatedCollateral backs LiquidatedToBeRedeemed, the redeem and
	// replace tokens that were in flight when the vault was liquidated.
	LiquidatedCollateral   *big.Int
	LiquidatedToBeRedeemed *big.Int
}

func newVault(id types.VaultID) *Vault {
	return (&Vault{ID: id, Status: VaultActive, AcceptNewIssues: true}).ensure()
}

func (v *Vault) ensure() *Vault {
	for _, field := range []**big.Int{
		&v.Issued, &v.ToBeIssued, &v.ToBeRedeemed, &v.ToBeReplaced,
		&v.ReplaceCollateral, &v.ActiveReplaceCollateral,
		&v.LiquidatedCollateral, &v.LiquidatedToBeRedeemed,
	} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return v
}

// Clone returns a deep copy.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	cp := *v
	cp.Issued = new(big.Int).Set(v.Issued)
	cp.ToBeIssued = new(big.Int).Set(v.ToBeIssued)
	cp.ToBeRedeemed = new(big.Int).Set(v.ToBeRedeemed)
	cp.ToBeReplaced = new(big.Int).Set(v.ToBeReplaced)
	cp.ReplaceCollateral = new(big.Int).Set(v.ReplaceCollateral)
	cp.ActiveReplaceCollateral = new(big.Int).Set(v.ActiveReplaceCollateral)
	cp.LiquidatedCollateral = new(big.Int).Set(v.LiquidatedCollateral)
	cp.LiquidatedToBeRedeemed = new(big.Int).Set(v.LiquidatedToBeRedeemed)
	return &cp
}

func (v *Vault) IsLiquidated() bool { return v.Status != VaultActive }

// IsBanned reports whether the vault is banned at height.
func (v *Vault) IsBanned(height uint64) bool {
	return v.BannedUntil != 0 && height <= v.BannedUntil
}

// AcceptsIssues reports whether new issue requests may target the vault.
func (v *Vault) AcceptsIssues() bool {
	return v.Status == VaultActive && v.AcceptNewIssues
}

// RedeemableTokens is issued minus to-be-redeemed.
func (v *Vault) RedeemableTokens() *big.Int {
	return new(big.Int).Sub(v.Issued, v.ToBeRedeemed)
}

// Exposure is issued + to-be-issued - to-be-redeemed.
func (v *Vault) Exposure() *big.Int {
	out := new(big.Int).Add(v.Issued, v.ToBeIssued)
	return out.Sub(out, v.ToBeRedeemed)
}

// LiquidationVault aggregates the obligations of the liquidated vaults of a
// pair.
type LiquidationVault struct {
	Currencies   types.VaultCurrencyPair
	Issued       *big.Int
	ToBeIssued   *big.Int
	ToBeRedeemed *big.Int
	ToBeReplaced *big.Int
	Collateral   *big.Int
}

func (l *LiquidationVault) ensure() *LiquidationVault {
	for _, field := range []**big.Int{&l.Issued, &l.ToBeIssued, &l.ToBeRedeemed, &l.ToBeReplaced, &l.Collateral} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return l
}

// Backed is issued + to-be-issued - to-be-redeemed, the tokens the
// liquidation vault collateral stands behind.
func (l *LiquidationVault) Backed() *big.Int {
	out := new(big.Int).Add(l.Issued, l.ToBeIssued)
	return out.Sub(out, l.ToBeRedeemed)
}

// PairParams are the governance parameters of one currency pair.
type PairParams struct {
	SecureThreshold      fixed.Unsigned
	PremiumThreshold     fixed.Unsigned
	LiquidationThreshold fixed.Unsigned
	// SystemCollateralCeiling caps the collateral all vaults of the pair may
	// hold together.
	SystemCollateralCeiling *big.Int
}

// SourceKind selects where funds are held.
type SourceKind uint8

const (
	SourceCollateral SourceKind = iota
	SourceAvailableReplaceCollateral
	SourceActiveReplaceCollateral
	SourceUserGriefing
	SourceLiquidatedCollateral
	SourceLiquidationVault
	SourceFreeBalance
)

// CurrencySource names a balance that TransferFunds can move between.
type CurrencySource struct {
	Kind    SourceKind
	Vault   types.VaultID
	Account types.AccountID
	Pair    types.VaultCurrencyPair
}

func Collateral(vault types.VaultID) CurrencySource {
	return CurrencySource{Kind: SourceCollateral, Vault: vault}
}

func AvailableReplaceCollateral(vault types.VaultID) CurrencySource {
	return CurrencySource{Kind: SourceAvailableReplaceCollateral, Vault: vault}
}

func ActiveReplaceCollateral(vault types.VaultID) CurrencySource {
	return CurrencySource{Kind: SourceActiveReplaceCollateral, Vault: vault}
}

func UserGriefing(account types.AccountID) CurrencySource {
	return CurrencySource{Kind: SourceUserGriefing, Account: account}
}

func LiquidatedCollateral(vault types.VaultID) CurrencySource {
	return CurrencySource{Kind: SourceLiquidatedCollateral, Vault: vault}
}

func LiquidationVaultSource(pair types.VaultCurrencyPair) CurrencySource {
	return CurrencySource{Kind: SourceLiquidationVault, Pair: pair}
}

func FreeBalance(account types.AccountID) CurrencySource {
	return CurrencySource{Kind: SourceFreeBalance, Account: account}
}

func (s CurrencySource) String() string {
	switch s.Kind {
	case SourceCollateral:
		return "collateral:" + s.Vault.String()
	case SourceAvailableReplaceCollateral:
		return "available_replace_collateral:" + s.Vault.String()
	case SourceActiveReplaceCollateral:
		return "active_replace_collateral:" + s.Vault.String()
	case SourceUserGriefing:
		return "griefing:" + s.Account.String()
	case SourceLiquidatedCollateral:
		return "liquidated_collateral:" + s.Vault.String()
	case SourceLiquidationVault:
		return "liquidation_vault:" + s.Pair.String()
	default:
		return "free:" + s.Account.String()
	}
}
