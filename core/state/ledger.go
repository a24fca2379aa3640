package state

import (
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/currency"
	"vaultbridge/native/oracle"
	"vaultbridge/native/security"
)

func (m *Manager) CurrencyBalance(account types.AccountID, cur types.CurrencyID) (*currency.Balance, error) {
	return getRecord[currency.Balance](m, balanceKey(account, cur))
}

func (m *Manager) PutCurrencyBalance(account types.AccountID, cur types.CurrencyID, balance *currency.Balance) error {
	return m.KVPut(balanceKey(account, cur), balance)
}

func (m *Manager) CurrencyTotalIssuance(cur types.CurrencyID) (*big.Int, error) {
	total := new(big.Int)
	ok, err := m.KVGet(issuanceKey(cur), total)
	if err != nil || !ok {
		return nil, err
	}
	return total, nil
}

func (m *Manager) PutCurrencyTotalIssuance(cur types.CurrencyID, total *big.Int) error {
	return m.KVPut(issuanceKey(cur), total)
}

func (m *Manager) SecurityRecord() (*security.Record, error) {
	return getRecord[security.Record](m, securityKeyBytes)
}

func (m *Manager) PutSecurityRecord(rec *security.Record) error {
	return m.KVPut(securityKeyBytes, rec)
}

func (m *Manager) OracleParams() (*oracle.Params, error) {
	return getRecord[oracle.Params](m, oracleParamsKeyBytes)
}

func (m *Manager) PutOracleParams(params *oracle.Params) error {
	return m.KVPut(oracleParamsKeyBytes, params)
}

func (m *Manager) OracleAuthorized(feeder types.AccountID) (bool, error) {
	var authorized bool
	if _, err := m.KVGet(join(oracleFeederPrefix, feeder.Bytes()), &authorized); err != nil {
		return false, err
	}
	return authorized, nil
}

func (m *Manager) PutOracleAuthorized(feeder types.AccountID, authorized bool) error {
	key := join(oracleFeederPrefix, feeder.Bytes())
	if !authorized {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

func (m *Manager) OracleSubmissions(key oracle.Key) ([]oracle.Submission, error) {
	var subs []oracle.Submission
	if err := m.KVGetList(join(oracleSubmitPrefix, key.Bytes()), &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (m *Manager) PutOracleSubmissions(key oracle.Key, subs []oracle.Submission) error {
	return m.KVPut(join(oracleSubmitPrefix, key.Bytes()), subs)
}
