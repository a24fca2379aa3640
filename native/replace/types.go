package replace

import (
	"fmt"
	"math/big"

	"vaultbridge/core/types"
	"vaultbridge/native/bitcoin"
)

// Status is the lifecycle state of a replace request.
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

func (s Status) Cancel() (Status, error) {
	if err := s.pending(); err != nil {
		return s, err
	}
	return StatusCancelled, nil
}

// Request is an accepted replace: NewVault takes over Amount of OldVault's
// issued tokens once OldVault pays the BTC to BtcAddress. GriefingCollateral
// is the old vault's replace griefing tied to the request and Collateral is
// what the new vault added to back the tokens.
type Request struct {
	ID                 types.H256
	OldVault           types.VaultID
	NewVault           types.VaultID
	Amount             *big.Int
	GriefingCollateral *big.Int
	Collateral         *big.Int
	AcceptTime         uint64
	Period             uint64
	BtcHeight          uint32
	BtcAddress         bitcoin.Address
	Status             Status
}

func (r *Request) ensure() *Request {
	for _, field := range []**big.Int{&r.Amount, &r.GriefingCollateral, &r.Collateral} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
	return r
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Amount = new(big.Int).Set(r.Amount)
	cp.GriefingCollateral = new(big.Int).Set(r.GriefingCollateral)
	cp.Collateral = new(big.Int).Set(r.Collateral)
	return &cp
}

// Params are the governance parameters of the replace module.
type Params struct {
	Period       uint64
	BtcDustValue *big.Int
}
