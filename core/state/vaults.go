package state

import (
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
	"vaultbridge/native/vaultregistry"
)

func (m *Manager) Vault(id types.VaultID) (*vaultregistry.Vault, error) {
	return getRecord[vaultregistry.Vault](m, join(vaultPrefix, id.Bytes()))
}

func (m *Manager) PutVault(vault *vaultregistry.Vault) error {
	return m.KVPut(join(vaultPrefix, vault.ID.Bytes()), vault)
}

func (m *Manager) VaultIDs() ([]types.VaultID, error) {
	var ids []types.VaultID
	if err := m.KVGetList(vaultListKeyBytes, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) AppendVaultID(id types.VaultID) error {
	ids, err := m.VaultIDs()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return m.KVPut(vaultListKeyBytes, append(ids, id))
}

func (m *Manager) LiquidationVault(pair types.VaultCurrencyPair) (*vaultregistry.LiquidationVault, error) {
	return getRecord[vaultregistry.LiquidationVault](m, join(liquidationPrefix, pair.Bytes()))
}

func (m *Manager) PutLiquidationVault(vault *vaultregistry.LiquidationVault) error {
	return m.KVPut(join(liquidationPrefix, vault.Currencies.Bytes()), vault)
}

func (m *Manager) VaultPairParams(pair types.VaultCurrencyPair) (*vaultregistry.PairParams, error) {
	return getRecord[vaultregistry.PairParams](m, join(pairParamsPrefix, pair.Bytes()))
}

func (m *Manager) PutVaultPairParams(pair types.VaultCurrencyPair, params *vaultregistry.PairParams) error {
	return m.KVPut(join(pairParamsPrefix, pair.Bytes()), params)
}

func (m *Manager) bigInt(key []byte) (*big.Int, error) {
	out := new(big.Int)
	ok, err := m.KVGet(key, out)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

func (m *Manager) MinimumCollateral(cur types.CurrencyID) (*big.Int, error) {
	return m.bigInt(join(minCollateralPrefix, cur.Bytes()))
}

func (m *Manager) PutMinimumCollateral(cur types.CurrencyID, amount *big.Int) error {
	return m.KVPut(join(minCollateralPrefix, cur.Bytes()), amount)
}

func (m *Manager) PunishmentDelay() (uint64, error) {
	var blocks uint64
	if _, err := m.KVGet(punishmentKeyBytes, &blocks); err != nil {
		return 0, err
	}
	return blocks, nil
}

func (m *Manager) PutPunishmentDelay(blocks uint64) error {
	return m.KVPut(punishmentKeyBytes, blocks)
}

func (m *Manager) TotalUserVaultCollateral(pair types.VaultCurrencyPair) (*big.Int, error) {
	return m.bigInt(join(pairTotalPrefix, pair.Bytes()))
}

func (m *Manager) PutTotalUserVaultCollateral(pair types.VaultCurrencyPair, amount *big.Int) error {
	return m.KVPut(join(pairTotalPrefix, pair.Bytes()), amount)
}

func (m *Manager) VaultPublicKey(account types.AccountID) (bitcoin.PublicKey, error) {
	var key bitcoin.PublicKey
	if _, err := m.KVGet(join(publicKeyPrefix, account.Bytes()), &key); err != nil {
		return bitcoin.PublicKey{}, err
	}
	return key, nil
}

func (m *Manager) PutVaultPublicKey(account types.AccountID, key bitcoin.PublicKey) error {
	return m.KVPut(join(publicKeyPrefix, account.Bytes()), key)
}

func (m *Manager) DepositAddressOwner(addr bitcoin.Address) (types.H256, bool, error) {
	var id types.H256
	ok, err := m.KVGet(join(depositAddressPrefix, []byte(addr)), &id)
	return id, ok, err
}

func (m *Manager) PutDepositAddress(addr bitcoin.Address, id types.H256) error {
	return m.KVPut(join(depositAddressPrefix, []byte(addr)), id)
}
