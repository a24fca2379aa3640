package issue

import (
	"fmt"
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
)

// Status is the lifecycle state of an issue request.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Complete returns the status after a successful execution. Cancelled
// requests may still complete.
func (s Status) Complete() (Status, error) {
	switch s {
	case StatusPending, StatusCancelled:
		return StatusCompleted, nil
	default:
		return s, ErrRequestCompleted
	}
}

// Cancel returns the status after an expired request is cancelled.
func (s Status) Cancel() (Status, error) {
	switch s {
	case StatusPending:
		return StatusCancelled, nil
	case StatusCancelled:
		return s, ErrRequestCancelled
	default:
		return s, ErrRequestCompleted
	}
}

// Request is an issue request record. Amount is what the requester
// receives; Amount+Fee is the BTC the vault expects. GriefingCollateral is
// the griefing still locked on the requester.
type Request struct {
	ID                 types.H256
	Vault              types.VaultID
	Requester          types.AccountID
	Opentime           uint64
	Period             uint64
	BtcHeight          uint32
	BtcAddress         bitcoin.Address
	Amount             *big.Int
	Fee                *big.Int
	GriefingCollateral *big.Int
	GriefingCurrency   types.CurrencyID
	Status             Status
}

func (r *Request) ensure() *Request {
	for _, field := range []**big.Int{&r.Amount, &r.Fee, &r.GriefingCollateral} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return r
}

// Expected is the BTC amount the vault must receive.
func (r *Request) Expected() *big.Int {
	return new(big.Int).Add(r.Amount, r.Fee)
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Amount = new(big.Int).Set(r.Amount)
	cp.Fee = new(big.Int).Set(r.Fee)
	cp.GriefingCollateral = new(big.Int).Set(r.GriefingCollateral)
	return &cp
}

// Params are the governance parameters of the issue module.
type Params struct {
	Period       uint64
	BtcDustValue *big.Int
}
