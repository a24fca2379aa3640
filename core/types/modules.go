package types

import "vaultbridge/crypto"

// ModuleAccount returns the protocol-owned account of a module.
func ModuleAccount(name string) AccountID {
	return AccountFromAddress(crypto.ModuleAddress(name))
}

var (
	// FeePoolAccount holds minted fees until nominators withdraw them.
	FeePoolAccount = ModuleAccount("fee-pool")
	// LiquidationAccount holds the collateral of every liquidation vault.
	LiquidationAccount = ModuleAccount("liquidation")
	// DefaultTreasuryAccount receives slashed griefing unless genesis names
	// a treasury.
	DefaultTreasuryAccount = ModuleAccount("treasury")
)
