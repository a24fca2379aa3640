package redeem

import (
	"fmt"
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
)

// Status is the lifecycle state of a redeem request.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompleted
	// StatusReimbursed is Reimbursed(minted): the vault holds the user's
	// tokens as free balance.
	StatusReimbursed
	// StatusReimbursedUnminted is Reimbursed(not minted): the user's tokens
	// were burned and the vault may re-mint them once it is collateralized.
	StatusReimbursedUnminted
	StatusRetried
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusReimbursed:
		return "reimbursed(true)"
	case StatusReimbursedUnminted:
		return "reimbursed(false)"
	case StatusRetried:
		return "retried"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Reimbursed returns the reimbursed status for minted.
func Reimbursed(minted bool) Status {
	if minted {
		return StatusReimbursed
	}
	return StatusReimbursedUnminted
}

func (s Status) pending() error {
	switch s {
	case StatusPending:
		return nil
	case StatusCompleted:
		return ErrRequestCompleted
	default:
		return ErrRequestCancelled
	}
}

func (s Status) Complete() (Status, error) {
	if err := s.pending(); err != nil {
		return s, err
	}
	return StatusCompleted, nil
}

func (s Status) Reimburse(minted bool) (Status, error) {
	if err := s.pending(); err != nil {
		return s, err
	}
	return Reimbursed(minted), nil
}

func (s Status) Retry() (Status, error) {
	if err := s.pending(); err != nil {
		return s, err
	}
	return StatusRetried, nil
}

// MintReimbursed returns the status after the vault re-mints the tokens of
// an unminted reimbursement.
func (s Status) MintReimbursed() (Status, error) {
	if s != StatusReimbursedUnminted {
		return s, ErrInvalidRequestStatus
	}
	return StatusReimbursed, nil
}

// Request is a redeem request record. The redeemer locked
// AmountBtc+TransferFeeBtc+Fee wrapped tokens; the vault owes AmountBtc on
// bitcoin.
type Request struct {
	ID             types.H256
	Vault          types.VaultID
	Redeemer       types.AccountID
	Opentime       uint64
	Period         uint64
	BtcHeight      uint32
	Fee            *big.Int
	TransferFeeBtc *big.Int
	AmountBtc      *big.Int
	Premium        *big.Int
	BtcAddress     bitcoin.Address
	Status         Status
}

func (r *Request) ensure() *Request {
	for _, field := range []**big.Int{&r.Fee, &r.TransferFeeBtc, &r.AmountBtc, &r.Premium} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return r
}

// Burned is the part of the locked tokens taken out of the vault's issuance.
func (r *Request) Burned() *big.Int {
	return new(big.Int).Add(r.AmountBtc, r.TransferFeeBtc)
}

// Locked is everything the redeemer locked.
func (r *Request) Locked() *big.Int {
	return new(big.Int).Add(r.Burned(), r.Fee)
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Fee = new(big.Int).Set(r.Fee)
	cp.TransferFeeBtc = new(big.Int).Set(r.TransferFeeBtc)
	cp.AmountBtc = new(big.Int).Set(r.AmountBtc)
	cp.Premium = new(big.Int).Set(r.Premium)
	return &cp
}

// Params are the governance parameters of the redeem module.
type Params struct {
	Period       uint64
	BtcDustValue *big.Int
}
