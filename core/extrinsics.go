package core

import (
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/btcrelay"
	"vaultbridge/native/fixed"
	"vaultbridge/native/oracle"
	"vaultbridge/native/params"
	"vaultbridge/native/reward"
)

// RegisterPublicKey sets the bitcoin key the origin's vaults derive deposit
// addresses from.
func (r *Runtime) RegisterPublicKey(origin types.AccountID, key bitcoin.PublicKey) error {
	return r.user(params.ModuleVaults, "register_public_key", func() error {
		return r.registry.RegisterPublicKey(origin, key)
	})
}

// RegisterVault opens a vault for pair backed by collateral from the origin.
func (r *Runtime) RegisterVault(origin types.AccountID, pair types.VaultCurrencyPair, collateral *big.Int) error {
	return r.user(params.ModuleVaults, "register_vault", func() error {
		return r.registry.RegisterVault(types.VaultID{AccountID: origin, Currencies: pair}, collateral)
	})
}

// DepositCollateral adds operator collateral to the vault.
func (r *Runtime) DepositCollateral(origin types.AccountID, vault types.VaultID, amount *big.Int) error {
	return r.user(params.ModuleVaults, "deposit_collateral", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.registry.TryDepositCollateral(vault, origin, amount)
	})
}

// WithdrawCollateral releases operator collateral while the vault stays
// above its secure threshold.
func (r *Runtime) WithdrawCollateral(origin types.AccountID, vault types.VaultID, amount *big.Int) error {
	return r.user(params.ModuleVaults, "withdraw_collateral", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.registry.TryWithdrawCollateral(vault, origin, amount)
	})
}

func (r *Runtime) SetAcceptNewIssues(origin types.AccountID, vault types.VaultID, accept bool) error {
	return r.user(params.ModuleVaults, "accept_new_issues", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.registry.SetAcceptNewIssues(vault, accept)
	})
}

func (r *Runtime) SetCustomSecureThreshold(origin types.AccountID, vault types.VaultID, threshold fixed.Unsigned) error {
	return r.user(params.ModuleVaults, "set_custom_secure_threshold", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.registry.SetCustomSecureThreshold(vault, threshold)
	})
}

// SetCommission sets the share of the vault's rewards paid to its operator.
func (r *Runtime) SetCommission(origin types.AccountID, vault types.VaultID, rate fixed.Unsigned) error {
	return r.user(params.ModuleVaults, "set_commission", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.fee.SetCommission(vault, rate)
	})
}

// LiquidateVault liquidates a vault below its liquidation threshold. Anyone
// may call it.
func (r *Runtime) LiquidateVault(_ types.AccountID, vault types.VaultID) error {
	return r.user(params.ModuleVaults, "liquidate_vault", func() error {
		_, err := r.registry.LiquidateVault(vault)
		return err
	})
}

// RecoverVault reopens a liquidated vault whose obligations are settled.
func (r *Runtime) RecoverVault(origin types.AccountID, vault types.VaultID) error {
	return r.user(params.ModuleVaults, "recover_vault", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.registry.RecoverVaultID(vault)
	})
}

// WithdrawRewards pays the origin's rewards from the vault's staking pool
// at nonce.
func (r *Runtime) WithdrawRewards(origin types.AccountID, vault types.VaultID, nonce uint64) (reward.Amounts, error) {
	var out reward.Amounts
	err := r.user(params.ModuleVaults, "withdraw_rewards", func() error {
		var err error
		out, err = r.fee.WithdrawRewards(vault, origin, nonce)
		return err
	})
	return out, err
}

// FeedValues submits oracle values from an authorized feeder.
func (r *Runtime) FeedValues(origin types.AccountID, values []oracle.Value) error {
	return r.user(params.ModuleOracle, "feed_values", func() error {
		return r.oracle.FeedValues(origin, values)
	})
}

func (r *Runtime) RequestIssue(origin types.AccountID, amount *big.Int, vault types.VaultID, griefingCurrency types.CurrencyID) (types.H256, error) {
	var id types.H256
	err := r.user(params.ModuleIssue, "request_issue", func() error {
		var err error
		id, err = r.issue.RequestIssue(origin, amount, vault, griefingCurrency)
		return err
	})
	return id, err
}

func (r *Runtime) ExecuteIssue(origin types.AccountID, id types.H256, proof *btcrelay.FullTransactionProof) error {
	return r.user(params.ModuleIssue, "execute_issue", func() error {
		return r.issue.ExecuteIssue(origin, id, proof)
	})
}

func (r *Runtime) CancelIssue(_ types.AccountID, id types.H256) error {
	return r.user(params.ModuleIssue, "cancel_issue", func() error {
		return r.issue.CancelIssue(id)
	})
}

func (r *Runtime) RequestRedeem(origin types.AccountID, amount *big.Int, btcAddress bitcoin.Address, vault types.VaultID) (types.H256, error) {
	var id types.H256
	err := r.user(params.ModuleRedeem, "request_redeem", func() error {
		var err error
		id, err = r.redeem.RequestRedeem(origin, amount, btcAddress, vault)
		return err
	})
	return id, err
}

// ExecuteRedeem may be submitted by anyone holding the payment proof.
func (r *Runtime) ExecuteRedeem(_ types.AccountID, id types.H256, proof *btcrelay.FullTransactionProof) error {
	return r.user(params.ModuleRedeem, "execute_redeem", func() error {
		return r.redeem.ExecuteRedeem(id, proof)
	})
}

func (r *Runtime) CancelRedeem(origin types.AccountID, id types.H256, reimburse bool) error {
	return r.user(params.ModuleRedeem, "cancel_redeem", func() error {
		return r.redeem.CancelRedeem(origin, id, reimburse)
	})
}

func (r *Runtime) MintTokensForReimbursedRedeem(origin types.AccountID, vault types.VaultID, id types.H256) error {
	return r.user(params.ModuleRedeem, "mint_tokens_for_reimbursed_redeem", func() error {
		return r.redeem.MintTokensForReimbursedRedeem(origin, vault, id)
	})
}

// SelfRedeem burns the vault operator's own wrapped tokens against the
// vault without a bitcoin transfer.
func (r *Runtime) SelfRedeem(origin types.AccountID, vault types.VaultID, amount *big.Int) error {
	return r.user(params.ModuleRedeem, "self_redeem", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.redeem.SelfRedeem(vault, amount)
	})
}

// LiquidationRedeem burns wrapped tokens for collateral of the pair's
// liquidation vault.
func (r *Runtime) LiquidationRedeem(origin types.AccountID, pair types.VaultCurrencyPair, amount *big.Int) (*big.Int, error) {
	var out *big.Int
	err := r.user(params.ModuleRedeem, "liquidation_redeem", func() error {
		var err error
		out, err = r.redeem.LiquidationRedeem(origin, pair, amount)
		return err
	})
	return out, err
}

func (r *Runtime) RequestReplace(origin types.AccountID, vault types.VaultID, amount *big.Int) error {
	return r.user(params.ModuleReplace, "request_replace", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.replace.RequestReplace(vault, amount)
	})
}

func (r *Runtime) WithdrawReplace(origin types.AccountID, vault types.VaultID, amount *big.Int) error {
	return r.user(params.ModuleReplace, "withdraw_replace", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.replace.WithdrawReplace(vault, amount)
	})
}

func (r *Runtime) AcceptReplace(origin types.AccountID, oldVault, newVault types.VaultID, amount, collateral *big.Int, btcAddress bitcoin.Address) (types.H256, error) {
	var id types.H256
	err := r.user(params.ModuleReplace, "accept_replace", func() error {
		if err := ensureOwner(origin, newVault); err != nil {
			return err
		}
		var err error
		id, err = r.replace.AcceptReplace(oldVault, newVault, amount, collateral, btcAddress)
		return err
	})
	return id, err
}

func (r *Runtime) ExecuteReplace(_ types.AccountID, id types.H256, proof *btcrelay.FullTransactionProof) error {
	return r.user(params.ModuleReplace, "execute_replace", func() error {
		return r.replace.ExecuteReplace(id, proof)
	})
}

func (r *Runtime) CancelReplace(origin types.AccountID, id types.H256) error {
	return r.user(params.ModuleReplace, "cancel_replace", func() error {
		return r.replace.CancelReplace(origin, id)
	})
}

func (r *Runtime) OptInToNomination(origin types.AccountID, vault types.VaultID) error {
	return r.user(params.ModuleNomination, "opt_in", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.nomination.OptIn(vault)
	})
}

func (r *Runtime) OptOutOfNomination(origin types.AccountID, vault types.VaultID) error {
	return r.user(params.ModuleNomination, "opt_out", func() error {
		if err := ensureOwner(origin, vault); err != nil {
			return err
		}
		return r.nomination.OptOut(vault)
	})
}

// NominateCollateral stakes the origin's collateral behind an opted-in
// vault.
func (r *Runtime) NominateCollateral(origin types.AccountID, vault types.VaultID, amount *big.Int) error {
	return r.user(params.ModuleNomination, "deposit_collateral", func() error {
		return r.nomination.DepositCollateral(vault, origin, amount)
	})
}

// WithdrawNominatedCollateral withdraws the origin's stake from the vault's
// pool at nonce, nil meaning the current pool.
func (r *Runtime) WithdrawNominatedCollateral(origin types.AccountID, vault types.VaultID, amount *big.Int, nonce *uint64) error {
	return r.user(params.ModuleNomination, "withdraw_collateral", func() error {
		return r.nomination.WithdrawCollateral(vault, origin, amount, nonce)
	})
}
