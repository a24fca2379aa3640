package state

import (
	"encoding/binary"

	"vaultbridge/core/types"
)

var (
	paramPrefix          = []byte("params/")
	balancePrefix        = []byte("currency/balance/")
	issuancePrefix       = []byte("currency/issuance/")
	securityKeyBytes     = []byte("security/record")
	oracleParamsKeyBytes = []byte("oracle/params")
	oracleFeederPrefix   = []byte("oracle/feeder/")
	oracleSubmitPrefix   = []byte("oracle/submissions/")
	rewardPoolPrefix     = []byte("reward/pool/")
	rewardStakePrefix    = []byte("reward/stake/")
	stakingNoncePrefix   = []byte("staking/nonce/")
	stakingPoolPrefix    = []byte("staking/pool/")
	stakingStakePrefix   = []byte("staking/stake/")
	vaultPrefix          = []byte("vault/record/")
	vaultListKeyBytes    = []byte("vault/list")
	liquidationPrefix    = []byte("vault/liquidation/")
	pairParamsPrefix     = []byte("vault/pair/")
	minCollateralPrefix  = []byte("vault/minimum-collateral/")
	punishmentKeyBytes   = []byte("vault/punishment-delay")
	pairTotalPrefix      = []byte("vault/total-collateral/")
	publicKeyPrefix      = []byte("vault/public-key/")
	depositAddressPrefix = []byte("vault/deposit-address/")
	feeRatesKeyBytes     = []byte("fee/rates")
	commissionPrefix     = []byte("fee/commission/")
	undistributedPrefix  = []byte("fee/undistributed/")
	nominationKeyBytes   = []byte("nomination/enabled")
	optedInPrefix        = []byte("nomination/opted-in/")
	chainHeadKeyBytes    = []byte("chain/head")
)

// join concatenates key segments separated by '/'.
func join(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, p...)
	}
	return buf
}

func u64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func paramKey(name string) []byte { return join(paramPrefix, []byte(name)) }

func balanceKey(account types.AccountID, cur types.CurrencyID) []byte {
	return join(balancePrefix, cur.Bytes(), account.Bytes())
}

func issuanceKey(cur types.CurrencyID) []byte { return join(issuancePrefix, cur.Bytes()) }

func requestKey(module string, id types.H256) []byte {
	return join([]byte(module+"/request/"), id.Bytes())
}

func requestIndexKey(module string, owner []byte) []byte {
	return join([]byte(module+"/index/"), owner)
}

func requestParamsKey(module string) []byte { return []byte(module + "/params") }
