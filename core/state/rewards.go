package state

import (
	"vaultbridge/core/types"
	"vaultbridge/native/reward"
	"vaultbridge/native/staking"
)

func (m *Manager) RewardPool(tier string, pool []byte) (*reward.Pool, error) {
	return getRecord[reward.Pool](m, join(rewardPoolPrefix, []byte(tier), pool))
}

func (m *Manager) PutRewardPool(tier string, pool []byte, record *reward.Pool) error {
	return m.KVPut(join(rewardPoolPrefix, []byte(tier), pool), record)
}

func (m *Manager) RewardStake(tier string, pool, stake []byte) (*reward.Stake, error) {
	return getRecord[reward.Stake](m, join(rewardStakePrefix, []byte(tier), pool, stake))
}

func (m *Manager) PutRewardStake(tier string, pool, stake []byte, record *reward.Stake) error {
	return m.KVPut(join(rewardStakePrefix, []byte(tier), pool, stake), record)
}

func (m *Manager) StakingNonce(vault types.VaultID) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(join(stakingNoncePrefix, vault.Bytes()), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (m *Manager) PutStakingNonce(vault types.VaultID, nonce uint64) error {
	return m.KVPut(join(stakingNoncePrefix, vault.Bytes()), nonce)
}

func (m *Manager) StakingPool(nonce uint64, vault types.VaultID) (*staking.Pool, error) {
	return getRecord[staking.Pool](m, join(stakingPoolPrefix, u64(nonce), vault.Bytes()))
}

func (m *Manager) PutStakingPool(nonce uint64, vault types.VaultID, pool *staking.Pool) error {
	return m.KVPut(join(stakingPoolPrefix, u64(nonce), vault.Bytes()), pool)
}

func (m *Manager) StakingStake(nonce uint64, vault types.VaultID, nominator types.AccountID) (*staking.Stake, error) {
	return getRecord[staking.Stake](m, join(stakingStakePrefix, u64(nonce), vault.Bytes(), nominator.Bytes()))
}

func (m *Manager) PutStakingStake(nonce uint64, vault types.VaultID, nominator types.AccountID, stake *staking.Stake) error {
	return m.KVPut(join(stakingStakePrefix, u64(nonce), vault.Bytes(), nominator.Bytes()), stake)
}
