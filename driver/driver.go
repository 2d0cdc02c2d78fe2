package driver

import (
	"log/slog"
	"time"

	"github.com/solsticelabs/solstice/config"
	"github.com/solsticelabs/solstice/events"
	"github.com/solsticelabs/solstice/types"
)

// LeaderSource answers leader queries and precomputes epoch schedules.
type LeaderSource interface {
	LeaderFor(slot types.Slot, fork types.Hash) (types.Pubkey, bool)
	Precompute(epoch types.Epoch, fork types.Hash) bool
}

// HeadSource returns the tip of the heaviest justified chain.
type HeadSource interface {
	Head() types.Hash
}

// Builder assembles, signs and locally installs a block for a leader slot.
// Implemented by the node: it collects queued transactions, opens and
// votes from the pools, computes the new state root, and signs.
type Builder interface {
	BuildBlock(slot types.Slot, parent types.Hash) (*types.Block, error)
}

// Driver is the slot driver. It owns the slot counter and the holding
// area; it is the only component coupled to wall-clock time.
type Driver struct {
	cfg     *config.Config
	clock   *Clock
	leaders LeaderSource
	heads   HeadSource
	builder Builder
	local   types.Pubkey
	emit    func(events.Event)
	release func(Message)
	logger  *slog.Logger

	holding *Holding

	slot         types.Slot
	leading      bool
	lastSeenSlot types.Slot
	// missed records slots whose scheduled leader produced no block.
	missed map[types.Slot]types.Pubkey
	// epochReady records whether the schedule for an epoch was derived
	// before its first slot; if not, the node refuses to lead that epoch.
	epochReady map[types.Epoch]bool
}

// holdingTTL bounds how long transient and future messages are buffered.
const holdingTTL = 30 * time.Second

// New creates a slot driver. release is invoked for every message leaving
// the holding area; emit receives leader-mode and slot events.
func New(cfg *config.Config, clock *Clock, leaders LeaderSource, heads HeadSource, builder Builder, local types.Pubkey, emit func(events.Event), release func(Message), logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(events.Event) {}
	}
	if release == nil {
		release = func(Message) {}
	}
	return &Driver{
		cfg:        cfg,
		clock:      clock,
		leaders:    leaders,
		heads:      heads,
		builder:    builder,
		local:      local,
		emit:       emit,
		release:    release,
		logger:     logger,
		holding:    NewHolding(holdingTTL),
		missed:     make(map[types.Slot]types.Pubkey),
		epochReady: make(map[types.Epoch]bool),
	}
}

// CurrentSlot returns the local slot counter.
func (d *Driver) CurrentSlot() types.Slot { return d.slot }

// UntilNextSlot returns the wall-clock time until the next slot boundary.
func (d *Driver) UntilNextSlot() time.Duration { return d.clock.UntilNextSlot() }

// Gate accepts a message if its slot is at or below the local slot;
// otherwise the message is held and redelivered when the clock advances.
// Returns true if the message may be processed now.
func (d *Driver) Gate(msg Message) bool {
	if msg.MessageSlot() <= d.slot {
		return true
	}
	d.holding.Add(msg, d.clock.timeFunc())
	return false
}

// Hold buffers a message that failed transiently (unknown parent, unknown
// vote blocks) for retry on the next slot advance.
func (d *Driver) Hold(msg Message) {
	d.holding.Add(msg, d.clock.timeFunc())
}

// RetryHeld redelivers every unexpired held message at or below the
// current slot. Called on relevant state changes (a new block may make
// buffered children and votes processable).
func (d *Driver) RetryHeld() {
	now := d.clock.timeFunc()
	for _, msg := range d.holding.ReleaseUpTo(d.slot, now) {
		d.release(msg)
	}
}

// HeldCount returns the number of buffered messages.
func (d *Driver) HeldCount() int { return d.holding.Len() }

// ObserveBlock records that a block for the slot was seen, for missed-slot
// accounting.
func (d *Driver) ObserveBlock(slot types.Slot) {
	if slot > d.lastSeenSlot {
		d.lastSeenSlot = slot
	}
}

// MissedLeader returns the leader recorded as missed for a slot.
func (d *Driver) MissedLeader(slot types.Slot) (types.Pubkey, bool) {
	leader, ok := d.missed[slot]
	return leader, ok
}

// maxCatchup bounds per-slot catch-up after downtime; older slots are
// skipped wholesale since their leader windows are long gone.
const maxCatchup = 64

// Advance catches the slot counter up to the wall clock, entering each
// intermediate slot in order. Ticks are strictly monotonic; a missed
// wall-clock deadline fast-forwards through at most the last maxCatchup
// intermediate slots one at a time, determining and recording each one's
// leader. Slots older than that are skipped without being entered, so
// their leaders are not determined or recorded.
func (d *Driver) Advance() {
	target := d.clock.CurrentSlot()
	if target > d.slot+maxCatchup {
		d.slot = target - maxCatchup
	}
	for d.slot < target {
		d.slot++
		d.enterSlot(d.slot)
	}
}

func (d *Driver) enterSlot(s types.Slot) {
	now := d.clock.timeFunc()
	for _, msg := range d.holding.ReleaseUpTo(s, now) {
		d.release(msg)
	}

	head := d.heads.Head()
	d.ensureSchedule(s, head)
	d.recordMissed(s, head)

	cur, curOK := d.leaders.LeaderFor(s, head)
	next, nextOK := d.leaders.LeaderFor(s+1, head)

	localLeads := curOK && cur == d.local && d.mayLead(s)
	switch {
	case localLeads:
		d.leading = true
		d.emit(events.NewLeaderSlot{Slot: s})
		d.produce(s, head)
	case d.leading:
		d.leading = false
		d.emit(events.EndLeaderMode{LastSlot: s - 1})
	}

	// Announce an upcoming leader run one slot in advance.
	if nextOK && next == d.local && !localLeads && d.mayLead(s+1) {
		d.emit(events.StartLeaderMode{FirstSlot: s + 1})
	}
}

// ensureSchedule derives the schedule of the slot's epoch on first entry
// and precomputes the next epoch when the current one nears its end. An
// epoch whose derivation was not ready by its first slot stays unready:
// the node refuses to lead it (liveness loss, never safety loss).
func (d *Driver) ensureSchedule(s types.Slot, head types.Hash) {
	e := s.EpochOf(d.cfg.EpochLength)
	if _, done := d.epochReady[e]; !done {
		ready := d.leaders.Precompute(e, head)
		if s == e.Start(d.cfg.EpochLength) || ready {
			d.epochReady[e] = ready
			if !ready {
				d.logger.Warn("schedule not ready, refusing leadership for epoch", "epoch", uint64(e))
			}
		}
	}
	if s+1 == e.End(d.cfg.EpochLength) {
		if ok := d.leaders.Precompute(e+1, head); ok {
			d.epochReady[e+1] = true
		}
	}
}

func (d *Driver) mayLead(s types.Slot) bool {
	return d.epochReady[s.EpochOf(d.cfg.EpochLength)]
}

// recordMissed notes the previous slot's leader if no block arrived for it.
func (d *Driver) recordMissed(s types.Slot, head types.Hash) {
	if s == 0 {
		return
	}
	prev := s - 1
	if d.lastSeenSlot >= prev {
		return
	}
	if _, done := d.missed[prev]; done {
		return
	}
	if leader, ok := d.leaders.LeaderFor(prev, head); ok {
		d.missed[prev] = leader
		d.logger.Debug("slot missed", "slot", prev, "leader", leader.Short())
	}
}

func (d *Driver) produce(s types.Slot, head types.Hash) {
	block, err := d.builder.BuildBlock(s, head)
	if err != nil {
		d.logger.Warn("block production failed", "slot", s, "error", err)
		return
	}
	d.ObserveBlock(s)
	d.logger.Info("block produced",
		"slot", s,
		"hash", block.Hash().Short(),
		"parent", head.Short(),
	)
}
