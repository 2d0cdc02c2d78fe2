// Package node wires the consensus core: block tree, vote index, schedule
// engine, finality gadget and slot driver, plus the bank, directory,
// pools, persistence and gossip.
//
// The components are single-writer actors multiplexed on one core
// goroutine; the network feeds it over bounded channels and FIFO order is
// preserved per sender. The core goroutine is the only writer of
// consensus state, so no component takes locks and none are held across a
// suspension point.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/solsticelabs/solstice/bank"
	"github.com/solsticelabs/solstice/blocktree"
	"github.com/solsticelabs/solstice/config"
	"github.com/solsticelabs/solstice/directory"
	"github.com/solsticelabs/solstice/driver"
	"github.com/solsticelabs/solstice/events"
	"github.com/solsticelabs/solstice/finality"
	"github.com/solsticelabs/solstice/keys"
	"github.com/solsticelabs/solstice/metrics"
	"github.com/solsticelabs/solstice/network"
	"github.com/solsticelabs/solstice/pools"
	"github.com/solsticelabs/solstice/schedule"
	"github.com/solsticelabs/solstice/storage"
	"github.com/solsticelabs/solstice/types"
	"github.com/solsticelabs/solstice/voteindex"
)

// inboundQueueSize bounds the network-to-core channels; the bound is the
// backpressure mechanism.
const inboundQueueSize = 256

// Options configures a Node beyond its Config.
type Options struct {
	Keypair         *keys.Keypair
	GenesisAccounts []GenesisAccount
	Store           storage.Store
	Logger          *slog.Logger
	// EnforceLeaders disables the schedule check at block insertion when
	// false (replay from trusted storage).
	EnforceLeaders bool
}

// Node is the assembled consensus node.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	tree   *blocktree.Tree
	index  *voteindex.Index
	gadget *finality.Gadget
	sched  *schedule.Engine
	drv    *driver.Driver

	bank  *bank.Bank
	snaps *bank.SnapshotStore
	dir   *directory.Directory
	pool  *pools.Pools
	store storage.Store
	net   *network.Service

	keypair *keys.Keypair

	blocksCh chan *types.Block
	votesCh  chan *types.Vote

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	halted bool
}

// gatedBlock and gatedVote adapt messages to the driver's holding area.
type gatedBlock struct{ b *types.Block }
type gatedVote struct{ v *types.Vote }

func (g gatedBlock) MessageSlot() types.Slot { return g.b.Slot }
func (g gatedVote) MessageSlot() types.Slot  { return g.v.Slot() }

// New assembles a node. Store and network are optional; a nil network
// makes the node a local-only simulator, which tests rely on.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)

	n := &Node{
		cfg:      cfg,
		logger:   logger,
		bank:     bank.New(logger),
		snaps:    bank.NewSnapshotStore(),
		dir:      directory.New(),
		pool:     pools.New(),
		store:    opts.Store,
		keypair:  opts.Keypair,
		blocksCh: make(chan *types.Block, inboundQueueSize),
		votesCh:  make(chan *types.Vote, inboundQueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	genesis, err := BuildGenesis(cfg, n.bank, n.dir, opts.GenesisAccounts)
	if err != nil {
		cancel()
		return nil, err
	}
	n.snaps.Put(n.bank.Snapshot(cfg.PrincipalThreshold))

	tree, err := blocktree.New(genesis, cfg.EpochLength, nil, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create tree: %w", err)
	}
	n.tree = tree

	n.sched = schedule.New(cfg, tree, nil, n.snaps, n.dir, logger)
	n.index = voteindex.New(tree, n.sched, cfg.EpochLength, logger)
	n.sched.SetParticipation(n.index)
	if opts.EnforceLeaders {
		tree.SetLeaderSource(n.sched)
	}

	n.gadget = finality.New(tree, n.index, n.sched, n.emit, logger)

	var local types.Pubkey
	if opts.Keypair != nil {
		local = opts.Keypair.Public
	}
	clock := driver.NewClock(cfg.GenesisTime, cfg.SlotDuration)
	n.drv = driver.New(cfg, clock, n.sched, n.gadget, n, local, n.emit, n.redeliver, logger)

	return n, nil
}

// AttachNetwork connects the node to a running network service.
func (n *Node) AttachNetwork(svc *network.Service) {
	n.net = svc
}

// Handlers returns the gossip callbacks feeding the core channels.
// Sends block on a full queue rather than dropping: the bounded channel
// is the backpressure.
func (n *Node) Handlers() *network.MessageHandlers {
	return &network.MessageHandlers{
		OnBlock: func(ctx context.Context, b *types.Block, _ peer.ID) error {
			select {
			case n.blocksCh <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnVote: func(ctx context.Context, v *types.Vote, _ peer.ID) error {
			select {
			case n.votesCh <- v:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Start launches the core loop.
func (n *Node) Start() {
	n.wg.Add(1)
	go n.coreLoop()
	n.logger.Info("node started",
		"genesis_time", n.cfg.GenesisTime,
		"slot_duration", n.cfg.SlotDuration,
		"epoch_length", n.cfg.EpochLength,
	)
}

// Stop shuts the node down.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.logger.Warn("close store", "error", err)
		}
	}
	n.logger.Info("node stopped")
}

// coreLoop is the consensus actor: the single writer of all consensus
// state. Slot ticks, inbound messages and event handling interleave here
// cooperatively.
func (n *Node) coreLoop() {
	defer n.wg.Done()

	timer := time.NewTimer(n.untilFirstTick())
	defer timer.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-timer.C:
			n.drv.Advance()
			timer.Reset(n.drv.UntilNextSlot())
		case b := <-n.blocksCh:
			n.handleBlock(b, true)
		case v := <-n.votesCh:
			n.handleVote(v, true)
		}
	}
}

func (n *Node) untilFirstTick() time.Duration {
	start := time.Unix(int64(n.cfg.GenesisTime), 0)
	if wait := time.Until(start); wait > 0 {
		n.logger.Info("waiting for genesis", "in", wait)
		return wait
	}
	return 0
}

// emit handles core events synchronously; every emitter runs on the core
// goroutine, so this is a direct dispatch, not a suspension point.
func (n *Node) emit(ev events.Event) {
	n.handleEvent(ev)
}

// redeliver reprocesses a message released from the holding area.
func (n *Node) redeliver(msg driver.Message) {
	switch m := msg.(type) {
	case gatedBlock:
		n.handleBlock(m.b, false)
	case gatedVote:
		n.handleVote(m.v, false)
	}
	metrics.HeldMessages.Set(float64(n.drv.HeldCount()))
}

// handleBlock validates and installs an incoming block. gate is false for
// redeliveries to avoid re-holding expired messages in a loop.
func (n *Node) handleBlock(b *types.Block, gate bool) {
	if n.halted {
		return
	}
	if gate && !n.drv.Gate(gatedBlock{b: b}) {
		metrics.HeldMessages.Set(float64(n.drv.HeldCount()))
		return
	}

	err := n.tree.Insert(b)
	switch {
	case err == nil:
		metrics.BlocksProcessed.Inc()
		n.drv.ObserveBlock(b.Slot)
		n.gadget.OnBlock(b.Hash())
		// A new block can unblock held children and votes.
		n.drv.RetryHeld()
	case errors.Is(err, blocktree.ErrUnknownParent):
		metrics.BlocksRejected.WithLabelValues("unknown_parent").Inc()
		if gate {
			n.drv.Hold(gatedBlock{b: b})
		}
	case errors.Is(err, blocktree.ErrDuplicateSlot):
		metrics.BlocksRejected.WithLabelValues("duplicate_slot").Inc()
		if evBlocks, ok := n.tree.S1Evidence(b.Author); ok {
			ev := n.index.RecordS1(b.Author, evBlocks)
			n.emit(events.Slash{Author: b.Author, Evidence: ev})
		}
	default:
		metrics.BlocksRejected.WithLabelValues("structural").Inc()
		n.logger.Debug("block dropped", "slot", b.Slot, "error", err)
	}
}

// handleVote validates and records an incoming vote.
func (n *Node) handleVote(v *types.Vote, gate bool) {
	if n.halted {
		return
	}
	if gate && !n.drv.Gate(gatedVote{v: v}) {
		metrics.HeldMessages.Set(float64(n.drv.HeldCount()))
		return
	}

	status, err := n.index.Insert(v)
	if err != nil {
		if errors.Is(err, voteindex.ErrUnknownBlock) {
			metrics.VotesRejected.WithLabelValues("unknown_block").Inc()
			if gate {
				n.drv.Hold(gatedVote{v: v})
			}
			return
		}
		metrics.VotesRejected.WithLabelValues("structural").Inc()
		n.logger.Debug("vote dropped", "slot", v.Slot(), "error", err)
		return
	}

	switch status {
	case voteindex.AlreadyKnown:
		return
	case voteindex.DuplicateTarget, voteindex.OverrideAttempt:
		if ev, ok := n.index.LatestEvidence(v.Author); ok {
			n.emit(events.Slash{Author: v.Author, Evidence: ev})
		}
	}

	metrics.VotesProcessed.Inc()
	// Offending votes keep counting until the slash finalizes on-chain.
	n.gadget.OnVote(v)
	metrics.JustifiedSlot.Set(float64(n.gadget.HighestJustifiedSlot()))
}

// handleEvent reacts to core events, matched exhaustively.
func (n *Node) handleEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.StartLeaderMode:
		n.logger.Info("entering leader mode", "first_slot", e.FirstSlot)
	case events.EndLeaderMode:
		n.logger.Info("leaving leader mode", "last_slot", e.LastSlot)
	case events.NewLeaderSlot:
		metrics.LeaderSlots.Inc()
	case events.Finalize:
		n.onFinalize(e)
	case events.Slash:
		metrics.SlashEvents.Inc()
		n.logger.Warn("representative slashed",
			"author", e.Author.Short(),
			"kind", e.Evidence.Kind.String(),
		)
	}
}

// onFinalize persists the finalized block and, when the local bank has
// executed up to it, the committed account table. Persistence failures on
// the finalized prefix halt the node.
func (n *Node) onFinalize(e events.Finalize) {
	metrics.FinalizedSlot.Set(float64(e.Slot))
	n.logger.Info("block finalized", "slot", e.Slot, "block", e.Block.Short())

	n.tree.Prune()

	if n.store == nil {
		return
	}
	block, ok := n.tree.Block(e.Block)
	if !ok {
		return
	}
	if err := n.store.PutFinalizedBlock(block); err != nil {
		n.fatal(fmt.Errorf("persist finalized block: %w", err))
		return
	}
	if n.bank.StateRoot() == block.StateRoot {
		if err := n.store.PutAccountTable(block.StateRoot, n.bank.Accounts()); err != nil {
			n.fatal(fmt.Errorf("persist account table: %w", err))
		}
	}
}

// fatal halts the core rather than risking double-finalization.
func (n *Node) fatal(err error) {
	n.logger.Error("fatal", "error", err)
	n.halted = true
	n.cancel()
}

// BuildBlock assembles, signs and installs a block for a local leader
// slot, then publishes it. Implements driver.Builder.
func (n *Node) BuildBlock(slot types.Slot, parent types.Hash) (*types.Block, error) {
	if n.keypair == nil {
		return nil, fmt.Errorf("no signing key")
	}
	payload, err := encodePayload(n.pool.Collect())
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	block := &types.Block{
		Author:     n.keypair.Public,
		Slot:       slot,
		ParentRoot: parent,
		Payload:    payload,
		StateRoot:  n.bank.StateRoot(),
	}
	block.Sign(n.keypair.Private)

	if err := n.tree.Insert(block); err != nil {
		return nil, fmt.Errorf("install own block: %w", err)
	}
	metrics.BlocksProcessed.Inc()
	n.gadget.OnBlock(block.Hash())

	if n.net != nil {
		if err := n.net.PublishBlock(n.ctx, block); err != nil {
			n.logger.Warn("publish block", "slot", slot, "error", err)
		}
	}
	return block, nil
}

// CaptureSnapshot records the bank's current weight distribution so
// schedule derivation can reference it. The external executor calls this
// after applying an epoch boundary block.
func (n *Node) CaptureSnapshot() {
	n.snaps.Put(n.bank.Snapshot(n.cfg.PrincipalThreshold))
}

// SubmitBlock feeds a block into the core from outside the network path.
func (n *Node) SubmitBlock(b *types.Block) { n.blocksCh <- b }

// SubmitVote feeds a vote into the core from outside the network path.
func (n *Node) SubmitVote(v *types.Vote) { n.votesCh <- v }

// Bank returns the node's account table.
func (n *Node) Bank() *bank.Bank { return n.bank }

// Directory returns the node's key index.
func (n *Node) Directory() *directory.Directory { return n.dir }

// Pools returns the node's admission pools.
func (n *Node) Pools() *pools.Pools { return n.pool }

// Head returns the current fork-choice head.
func (n *Node) Head() types.Hash { return n.gadget.Head() }

// CurrentSlot returns the local slot counter.
func (n *Node) CurrentSlot() types.Slot { return n.drv.CurrentSlot() }

// PeerCount returns the number of connected peers, 0 without a network.
func (n *Node) PeerCount() int {
	if n.net == nil {
		return 0
	}
	return n.net.PeerCount()
}
