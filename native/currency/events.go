package currency

import (
	"math/big"

	"vaultbridge/core/events"
	"vaultbridge/core/types"
)

const (
	EventTypeMinted      = "currency.minted"
	EventTypeBurned      = "currency.burned"
	EventTypeTransferred = "currency.transferred"
)

func mintedEvent(account types.AccountID, currency types.CurrencyID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"account":  account.String(),
			"currency": currency.String(),
			"amount":   events.FormatAmount(amount),
		},
	}
}

func burnedEvent(account types.AccountID, currency types.CurrencyID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeBurned,
		Attributes: map[string]string{
			"account":  account.String(),
			"currency": currency.String(),
			"amount":   events.FormatAmount(amount),
		},
	}
}

func transferredEvent(from, to types.AccountID, currency types.CurrencyID, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransferred,
		Attributes: map[string]string{
			"from":     from.String(),
			"to":       to.String(),
			"currency": currency.String(),
			"amount":   events.FormatAmount(amount),
		},
	}
}
