package driver

import (
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/solsticelabs/solstice/config"
	"github.com/solsticelabs/solstice/events"
	"github.com/solsticelabs/solstice/types"
)

var localKey = types.Pubkey{0xaa}

// stubLeaders schedules by a slot -> key map; unlisted slots go to other.
type stubLeaders struct {
	bySlot     map[types.Slot]types.Pubkey
	other      types.Pubkey
	precompute bool
}

func (s *stubLeaders) LeaderFor(slot types.Slot, _ types.Hash) (types.Pubkey, bool) {
	if k, ok := s.bySlot[slot]; ok {
		return k, true
	}
	return s.other, true
}

func (s *stubLeaders) Precompute(types.Epoch, types.Hash) bool { return s.precompute }

type stubHeads struct{ head types.Hash }

func (s stubHeads) Head() types.Hash { return s.head }

// stubBuilder records production requests.
type stubBuilder struct {
	slots []types.Slot
	fail  bool
}

func (b *stubBuilder) BuildBlock(slot types.Slot, parent types.Hash) (*types.Block, error) {
	if b.fail {
		return nil, errFailed
	}
	b.slots = append(b.slots, slot)
	return &types.Block{Slot: slot, ParentRoot: parent}, nil
}

var errFailed = &buildError{}

type buildError struct{}

func (*buildError) Error() string { return "build failed" }

type testMsg struct{ slot types.Slot }

func (m testMsg) MessageSlot() types.Slot { return m.slot }

// rig is a driver with a hand-cranked clock.
type rig struct {
	drv      *Driver
	leaders  *stubLeaders
	builder  *stubBuilder
	now      time.Time
	events   []events.Event
	released []Message
}

const testGenesisUnix = 1_700_000_000

func newRig(t *testing.T, leaders *stubLeaders) *rig {
	t.Helper()
	cfg := &config.Config{
		SlotDuration:       500 * time.Millisecond,
		EpochLength:        10,
		PrincipalThreshold: uint256.NewInt(1),
		GenesisTime:        testGenesisUnix,
	}
	r := &rig{leaders: leaders, builder: &stubBuilder{}}
	r.now = time.Unix(testGenesisUnix, 0)
	clock := NewClockWithTimeFunc(cfg.GenesisTime, cfg.SlotDuration, func() time.Time { return r.now })
	r.drv = New(cfg, clock, leaders, stubHeads{head: types.Hash{0x9}}, r.builder, localKey,
		func(ev events.Event) { r.events = append(r.events, ev) },
		func(msg Message) { r.released = append(r.released, msg) },
		nil,
	)
	return r
}

// tick moves the wall clock to the start of the slot and advances.
func (r *rig) tick(slot types.Slot) {
	r.now = time.Unix(testGenesisUnix, 0).Add(time.Duration(slot) * 500 * time.Millisecond)
	r.drv.Advance()
}

func TestClockMath(t *testing.T) {
	now := time.Unix(testGenesisUnix, 0)
	clock := NewClockWithTimeFunc(testGenesisUnix, 500*time.Millisecond, func() time.Time { return now })

	if s := clock.CurrentSlot(); s != 0 {
		t.Errorf("slot at genesis = %d", s)
	}
	now = now.Add(1700 * time.Millisecond)
	if s := clock.CurrentSlot(); s != 3 {
		t.Errorf("slot at +1.7s = %d, want 3", s)
	}
	if d := clock.UntilNextSlot(); d != 300*time.Millisecond {
		t.Errorf("until next slot = %s, want 300ms", d)
	}
	if start := clock.SlotStart(4); !start.Equal(time.Unix(testGenesisUnix+2, 0)) {
		t.Errorf("slot 4 start = %s", start)
	}

	now = time.Unix(testGenesisUnix-5, 0)
	if !clock.IsBeforeGenesis() {
		t.Error("not before genesis")
	}
	if s := clock.CurrentSlot(); s != 0 {
		t.Errorf("pre-genesis slot = %d", s)
	}
}

func TestLeaderRunEvents(t *testing.T) {
	other := types.Pubkey{0xbb}
	leaders := &stubLeaders{
		bySlot: map[types.Slot]types.Pubkey{
			2: localKey,
			3: localKey,
		},
		other:      other,
		precompute: true,
	}
	r := newRig(t, leaders)

	for s := types.Slot(1); s <= 4; s++ {
		r.tick(s)
	}

	want := []events.Event{
		events.StartLeaderMode{FirstSlot: 2},
		events.NewLeaderSlot{Slot: 2},
		events.NewLeaderSlot{Slot: 3},
		events.EndLeaderMode{LastSlot: 3},
	}
	if len(r.events) != len(want) {
		t.Fatalf("events = %+v, want %+v", r.events, want)
	}
	for i := range want {
		if r.events[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, r.events[i], want[i])
		}
	}
	if len(r.builder.slots) != 2 || r.builder.slots[0] != 2 || r.builder.slots[1] != 3 {
		t.Errorf("built slots = %v, want [2 3]", r.builder.slots)
	}
}

func TestFastForwardVisitsEverySlot(t *testing.T) {
	leaders := &stubLeaders{
		bySlot:     map[types.Slot]types.Pubkey{3: localKey},
		other:      types.Pubkey{0xbb},
		precompute: true,
	}
	r := newRig(t, leaders)

	// Jump straight to slot 5: slots 1..5 are entered in order, slot 3
	// still produces, and intermediate slots are recorded missed.
	r.tick(5)

	if r.drv.CurrentSlot() != 5 {
		t.Fatalf("slot = %d, want 5", r.drv.CurrentSlot())
	}
	if len(r.builder.slots) != 1 || r.builder.slots[0] != 3 {
		t.Errorf("built slots = %v, want [3]", r.builder.slots)
	}
	// Slot 3 was produced locally; slots 1, 2 and 4 had no blocks.
	for _, s := range []types.Slot{1, 2, 4} {
		if _, ok := r.drv.MissedLeader(s); !ok {
			t.Errorf("slot %d not recorded missed", s)
		}
	}
	if _, ok := r.drv.MissedLeader(3); ok {
		t.Error("produced slot recorded missed")
	}
}

func TestGateHoldsFutureMessages(t *testing.T) {
	leaders := &stubLeaders{other: types.Pubkey{0xbb}, precompute: true}
	r := newRig(t, leaders)

	msg := testMsg{slot: 3}
	if r.drv.Gate(msg) {
		t.Fatal("future message passed the gate")
	}
	if r.drv.Gate(testMsg{slot: 0}) != true {
		t.Fatal("current-slot message gated")
	}

	r.tick(2)
	if len(r.released) != 0 {
		t.Fatalf("released early: %+v", r.released)
	}
	r.tick(3)
	if len(r.released) != 1 || r.released[0].MessageSlot() != 3 {
		t.Fatalf("released = %+v, want the slot-3 message", r.released)
	}
}

func TestHoldingExpiry(t *testing.T) {
	h := NewHolding(10 * time.Second)
	now := time.Unix(0, 0)
	h.Add(testMsg{slot: 1}, now)

	released := h.ReleaseUpTo(5, now.Add(11*time.Second))
	if len(released) != 0 {
		t.Errorf("expired message released: %+v", released)
	}
	if h.Len() != 0 {
		t.Errorf("expired message retained: %d", h.Len())
	}
}

func TestRetryHeld(t *testing.T) {
	leaders := &stubLeaders{other: types.Pubkey{0xbb}, precompute: true}
	r := newRig(t, leaders)
	r.tick(2)

	// A transiently failed message at the current slot is redelivered on
	// RetryHeld without waiting for the next slot.
	r.drv.Hold(testMsg{slot: 2})
	r.drv.RetryHeld()
	if len(r.released) != 1 {
		t.Fatalf("released = %+v, want one redelivery", r.released)
	}
}

func TestRefusesLeadershipWithoutSchedule(t *testing.T) {
	leaders := &stubLeaders{
		bySlot:     map[types.Slot]types.Pubkey{1: localKey, 2: localKey},
		other:      types.Pubkey{0xbb},
		precompute: false,
	}
	r := newRig(t, leaders)

	r.tick(1)
	r.tick(2)

	if len(r.builder.slots) != 0 {
		t.Errorf("produced %v without a derived schedule", r.builder.slots)
	}
	for _, ev := range r.events {
		if _, ok := ev.(events.NewLeaderSlot); ok {
			t.Errorf("NewLeaderSlot emitted without a derived schedule")
		}
	}
}
