package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vaultbridge/config"
	"vaultbridge/core"
	"vaultbridge/core/events"
	"vaultbridge/core/genesis"
	"vaultbridge/core/state"
	"vaultbridge/core/types"
	"vaultbridge/native/btcrelay"
	"vaultbridge/observability"
	"vaultbridge/storage"
	"vaultbridge/storage/trie"
)

var headRootKey = []byte("vaultd/head-root")

// blockSink stamps the indexer with the height of the block being built.
type blockSink interface {
	events.Emitter
	SetHeight(uint64)
}

// node drives one runtime over a database, committing a block per tick.
type node struct {
	db      storage.Database
	runtime *core.Runtime
	relay   *btcrelay.Store
	sink    blockSink
	logger  *slog.Logger
}

func openNode(cfg *config.Config, spec *genesis.Spec, db storage.Database, sink blockSink, logger *slog.Logger) (*node, error) {
	params, err := cfg.BitcoinParams()
	if err != nil {
		return nil, err
	}
	var root []byte
	switch stored, err := db.Get(headRootKey); {
	case err == nil:
		root = stored
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load head root: %w", err)
	}
	tr, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}

	relay := btcrelay.NewStore(params, 0)
	if err := genesis.InitRelay(relay, spec); err != nil {
		return nil, err
	}

	var emitter events.Emitter = events.NoopEmitter{}
	if sink != nil {
		emitter = sink
	}
	rt, err := core.NewRuntime(state.NewManager(tr), relay, spec.RuntimeOptions(core.Options{
		BitcoinParams:         params,
		MillisPerBlock:        cfg.BlockTimeMillis,
		BlocksPerBitcoinBlock: cfg.BlocksPerBitcoinBlock,
		Emitter:               emitter,
		Logger:                logger,
		Metrics:               observability.Protocol(),
	}))
	if err != nil {
		return nil, err
	}
	n := &node{db: db, runtime: rt, relay: relay, sink: sink, logger: logger}

	applied, err := rt.GenesisApplied()
	if err != nil {
		return nil, err
	}
	if !applied {
		n.stamp(0)
		if err := genesis.Apply(rt, spec); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		if err := n.commit(); err != nil {
			return nil, err
		}
		logger.Info("genesis applied", "root", rt.State().Root().Hex())
	}
	return n, nil
}

func (n *node) stamp(height uint64) {
	if n.sink != nil {
		n.sink.SetHeight(height)
	}
}

func (n *node) commit() error {
	root, err := n.runtime.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := n.db.Put(headRootKey, root.Bytes()); err != nil {
		return fmt.Errorf("persist head root: %w", err)
	}
	return nil
}

// step produces one empty block.
func (n *node) step() error {
	parent := types.H256(n.runtime.State().Root())
	n.stamp(n.runtime.Height() + 1)
	if err := n.runtime.BeginBlock(parent); err != nil {
		return fmt.Errorf("begin block: %w", err)
	}
	if err := n.commit(); err != nil {
		return err
	}
	n.logger.Info("block committed", "height", n.runtime.Height(), "root", n.runtime.State().Root().Hex())
	return nil
}

// run produces a block every interval until ctx is done.
func (n *node) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := n.step(); err != nil {
				return err
			}
		}
	}
}
