package events

import (
	"math/big"

	"vaultbridge/core/types"
)

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Structured adapts a types.Event to the Event interface. Engines build their
// payloads with typed constructors and emit them wrapped in Structured.
type Structured struct {
	Evt *types.Event
}

func (s Structured) EventType() string {
	if s.Evt == nil {
		return ""
	}
	return s.Evt.Type
}

func (s Structured) Event() *types.Event { return s.Evt }

// Payload extracts the attribute map carried by an event when available.
func Payload(evt Event) *types.Event {
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		return carrier.Event()
	}
	return nil
}

// Buffer collects events emitted while an extrinsic executes. The runtime
// drains it on success and discards it on failure.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	out := b.events
	b.events = nil
	return out
}

// Discard drops everything buffered so far.
func (b *Buffer) Discard() { b.events = nil }

// Len reports how many events are buffered.
func (b *Buffer) Len() int { return len(b.events) }

// FormatAmount renders balances for event attributes.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
