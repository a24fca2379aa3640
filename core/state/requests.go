package state

import (
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/fee"
	"vaultbridge/native/fixed"
	"vaultbridge/native/issue"
	"vaultbridge/native/redeem"
	"vaultbridge/native/replace"
)

const (
	issueModule   = "issue"
	redeemModule  = "redeem"
	replaceModule = "replace"
)

func (m *Manager) requestIndex(module string, owner []byte) ([]types.H256, error) {
	var raw [][]byte
	if err := m.KVGetList(requestIndexKey(module, owner), &raw); err != nil {
		return nil, err
	}
	ids := make([]types.H256, len(raw))
	for i, b := range raw {
		copy(ids[i][:], b)
	}
	return ids, nil
}

func (m *Manager) FeeRates() (*fee.Rates, error) {
	return getRecord[fee.Rates](m, feeRatesKeyBytes)
}

func (m *Manager) PutFeeRates(rates *fee.Rates) error {
	return m.KVPut(feeRatesKeyBytes, rates)
}

func (m *Manager) VaultCommission(vault types.VaultID) (fixed.Unsigned, error) {
	var rate fixed.Unsigned
	if _, err := m.KVGet(join(commissionPrefix, vault.Bytes()), &rate); err != nil {
		return fixed.Unsigned{}, err
	}
	return rate, nil
}

func (m *Manager) PutVaultCommission(vault types.VaultID, rate fixed.Unsigned) error {
	return m.KVPut(join(commissionPrefix, vault.Bytes()), rate)
}

func (m *Manager) FeeUndistributed(cur types.CurrencyID) (*big.Int, error) {
	return m.bigInt(join(undistributedPrefix, cur.Bytes()))
}

func (m *Manager) PutFeeUndistributed(cur types.CurrencyID, amount *big.Int) error {
	return m.KVPut(join(undistributedPrefix, cur.Bytes()), amount)
}

func (m *Manager) IssueRequest(id types.H256) (*issue.Request, error) {
	return getRecord[issue.Request](m, requestKey(issueModule, id))
}

func (m *Manager) PutIssueRequest(req *issue.Request) error {
	return m.KVPut(requestKey(issueModule, req.ID), req)
}

func (m *Manager) IssueRequestIndex(owner []byte) ([]types.H256, error) {
	return m.requestIndex(issueModule, owner)
}

func (m *Manager) AppendIssueRequestIndex(owner []byte, id types.H256) error {
	return m.KVAppend(requestIndexKey(issueModule, owner), id.Bytes())
}

func (m *Manager) IssueParams() (*issue.Params, error) {
	return getRecord[issue.Params](m, requestParamsKey(issueModule))
}

func (m *Manager) PutIssueParams(params *issue.Params) error {
	return m.KVPut(requestParamsKey(issueModule), params)
}

func (m *Manager) RedeemRequest(id types.H256) (*redeem.Request, error) {
	return getRecord[redeem.Request](m, requestKey(redeemModule, id))
}

func (m *Manager) PutRedeemRequest(req *redeem.Request) error {
	return m.KVPut(requestKey(redeemModule, req.ID), req)
}

func (m *Manager) RedeemRequestIndex(owner []byte) ([]types.H256, error) {
	return m.requestIndex(redeemModule, owner)
}

func (m *Manager) AppendRedeemRequestIndex(owner []byte, id types.H256) error {
	return m.KVAppend(requestIndexKey(redeemModule, owner), id.Bytes())
}

func (m *Manager) RedeemParams() (*redeem.Params, error) {
	return getRecord[redeem.Params](m, requestParamsKey(redeemModule))
}

func (m *Manager) PutRedeemParams(params *redeem.Params) error {
	return m.KVPut(requestParamsKey(redeemModule), params)
}

func (m *Manager) ReplaceRequest(id types.H256) (*replace.Request, error) {
	return getRecord[replace.Request](m, requestKey(replaceModule, id))
}

func (m *Manager) PutReplaceRequest(req *replace.Request) error {
	return m.KVPut(requestKey(replaceModule, req.ID), req)
}

func (m *Manager) ReplaceRequestIndex(owner []byte) ([]types.H256, error) {
	return m.requestIndex(replaceModule, owner)
}

func (m *Manager) AppendReplaceRequestIndex(owner []byte, id types.H256) error {
	return m.KVAppend(requestIndexKey(replaceModule, owner), id.Bytes())
}

func (m *Manager) ReplaceParams() (*replace.Params, error) {
	return getRecord[replace.Params](m, requestParamsKey(replaceModule))
}

func (m *Manager) PutReplaceParams(params *replace.Params) error {
	return m.KVPut(requestParamsKey(replaceModule), params)
}

func (m *Manager) NominationEnabled() (bool, error) {
	var enabled bool
	if _, err := m.KVGet(nominationKeyBytes, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (m *Manager) PutNominationEnabled(enabled bool) error {
	return m.KVPut(nominationKeyBytes, enabled)
}

func (m *Manager) NominationOptedIn(vault types.VaultID) (bool, error) {
	var opted bool
	if _, err := m.KVGet(join(optedInPrefix, vault.Bytes()), &opted); err != nil {
		return false, err
	}
	return opted, nil
}

func (m *Manager) PutNominationOptedIn(vault types.VaultID, opted bool) error {
	key := join(optedInPrefix, vault.Bytes())
	if !opted {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}
