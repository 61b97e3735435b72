package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lyrad/internal/keymap"
	"lyrad/internal/metrics"
	"lyrad/internal/transport"
)

type keyEvent struct {
	key     keymap.Key
	pressed bool
	scan    int
}

// recSink records emitted events. It is mutex-protected so the poller tests
// can read it while the poll goroutine writes.
type recSink struct {
	mu   sync.Mutex
	keys []keyEvent
	rels [][2]int32
}

func (s *recSink) EmitKey(k keymap.Key, pressed bool, scan int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, keyEvent{k, pressed, scan})
	return nil
}

func (s *recSink) EmitRel(dx, dy int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels = append(s.rels, [2]int32{dx, dy})
	return nil
}

// scanned returns the key events that carry a hardware scan code, filtering
// out modifier-sync and power traffic.
func (s *recSink) scanned() []keyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []keyEvent
	for _, e := range s.keys {
		if e.scan >= 0 {
			out = append(out, e)
		}
	}
	return out
}

func (s *recSink) allKeys() []keyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]keyEvent(nil), s.keys...)
}

func (s *recSink) relEvents() [][2]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]int32(nil), s.rels...)
}

func newTestEngine(t *testing.T) (*Engine, *transport.SimDevice, *recSink, *metrics.Driver) {
	t.Helper()
	sim := transport.NewSim()
	sink := &recSink{}
	met := metrics.NewDriver(metrics.NewRegistry("test"))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := New(sim, sink, keymap.Default(), NewParams(), log, met)
	return eng, sim, sink, met
}

func cycle(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.PollCycle())
}

func TestReleaseMirrorsPressAcrossLayerChange(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	// Press on the normal layer, then switch to fn before releasing. The
	// release must report the key the press resolved to, or the host input
	// state ends up with one key stuck down and another spuriously released.
	sim.PushKey(transport.FIFOKindPress, 48)
	cycle(t, eng)
	sim.SetModifiers(false, false, true)
	sim.PushKey(transport.FIFOKindRel, 48)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 2)
	assert.Equal(t, keyEvent{keymap.BtnLeft, true, 48}, got[0])
	assert.Equal(t, keyEvent{keymap.BtnLeft, false, 48}, got[1])
	assert.Equal(t, 0, eng.Snapshot().HeldKeys)
}

func TestLayerPriorityFnOverShift(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	sim.SetModifiers(true, false, false)
	sim.PushKey(transport.FIFOKindPress, 48)
	cycle(t, eng)

	sim.PushKey(transport.FIFOKindRel, 48)
	sim.SetModifiers(true, false, true)
	sim.PushKey(transport.FIFOKindPress, 48)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 3)
	assert.Equal(t, keymap.BtnRight, got[0].key, "shift layer applies")
	assert.Equal(t, keymap.BtnRight, got[1].key, "release mirrors press")
	assert.Equal(t, keymap.BtnMiddle, got[2].key, "fn wins over shift")
}

func TestHoldConsumedWithoutOutput(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	sim.PushKey(transport.FIFOKindPress, 2)
	sim.PushKey(transport.FIFOKindHold, 2)
	sim.PushKey(transport.FIFOKindHold, 2)
	sim.PushKey(transport.FIFOKindHold, 2)
	sim.PushKey(transport.FIFOKindRel, 2)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 2)
	assert.True(t, got[0].pressed)
	assert.False(t, got[1].pressed)
	assert.Equal(t, uint64(3), met.HoldsDropped.Value())
	assert.Equal(t, 0, sim.QueueLen())
}

func TestModifierScansNeverReported(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	for _, code := range []uint8{keymap.ScanShiftLeft, keymap.ScanShiftRight, keymap.ScanAlt, keymap.ScanFn} {
		sim.PushKey(transport.FIFOKindPress, code)
		sim.PushKey(transport.FIFOKindRel, code)
	}
	cycle(t, eng)

	assert.Empty(t, sink.scanned())
	assert.Equal(t, 0, sim.QueueLen())
}

func TestCtrlBypassesLayerResolution(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	sim.SetModifiers(false, false, true)
	sim.PushKey(transport.FIFOKindPress, keymap.ScanCtrl)
	sim.PushKey(transport.FIFOKindRel, keymap.ScanCtrl)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 2)
	assert.Equal(t, keymap.KeyLeftCtrl, got[0].key)
	assert.Equal(t, keymap.KeyLeftCtrl, got[1].key)
}

func TestReleaseWithoutRecordFallsBackToLiveLayer(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	// A release whose press was never seen (lost to an overflow, or queued
	// before the daemon started) resolves against the current layer rather
	// than being dropped.
	sim.SetModifiers(true, false, false)
	cycle(t, eng) // picks up the shift level
	sim.PushKey(transport.FIFOKindRel, 48)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 1)
	assert.Equal(t, keyEvent{keymap.BtnRight, false, 48}, got[0])
}

func TestOutOfRangeScanDroppedDrainContinues(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	sim.PushRaw(transport.FIFOKindPress | 60<<transport.FIFOCodeShift)
	sim.PushKey(transport.FIFOKindPress, 2)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 1, "valid slot after the bad one still processed")
	assert.Equal(t, keymap.Key7, got[0].key)
	assert.Equal(t, uint64(1), met.DecodeErrors.Value())
}

func TestModifierSyncEmitsShiftAndAltLevels(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	sim.SetModifiers(true, true, true)
	cycle(t, eng)

	got := sink.allKeys()
	require.Len(t, got, 2, "fn has no key of its own")
	assert.Equal(t, keyEvent{keymap.KeyLeftShift, true, -1}, got[0])
	assert.Equal(t, keyEvent{keymap.KeyLeftAlt, true, -1}, got[1])

	st := eng.Snapshot()
	assert.True(t, st.Shift)
	assert.True(t, st.Alt)
	assert.True(t, st.Fn)
}

func TestModifierSnapshotReadPerPress(t *testing.T) {
	eng, sim, _, _ := newTestEngine(t)

	sim.PushKey(transport.FIFOKindPress, 2)
	sim.PushKey(transport.FIFOKindPress, 3)
	cycle(t, eng)

	// One depth read plus one fresh modifier read per press: the layer is
	// decided at the event, not once per cycle.
	assert.Equal(t, 3, sim.Reads[transport.RegKeyStatus])
}

func TestCombinedInterruptDispatchOrder(t *testing.T) {
	eng, sim, sink, _ := newTestEngine(t)

	// Fn change and a queued press arrive in the same cycle (bitmask 0b10100).
	// The modifier resync runs first, so the press resolves on the fn layer.
	sim.SetModifiers(false, false, true)
	sim.PushKey(transport.FIFOKindPress, 48)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 1)
	assert.Equal(t, keymap.BtnMiddle, got[0].key)
}

func TestMouseScaling(t *testing.T) {
	cases := []struct {
		name  string
		raw   int8
		speed int
		want  int32
	}{
		{"unity", 5, 100, 5},
		{"double", 10, 200, 20},
		{"truncates toward zero", 3, 50, 1},
		{"negative truncates toward zero", -3, 50, -1},
		{"floor positive", 1, 10, 1},
		{"floor negative", -1, 10, -1},
		{"slow large delta", 10, 10, 1},
		{"max positive", 127, 500, 635},
		{"max negative", -128, 500, -640},
		{"zero stays zero", 0, 500, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scaleDelta(tc.raw, tc.speed))
		})
	}
}

func TestMouseAxesScaleIndependently(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	require.NoError(t, eng.params.SetSpeedX(200))
	require.NoError(t, eng.params.SetSpeedY(50))
	sim.MoveMouse(10, 10)
	cycle(t, eng)

	rels := sink.relEvents()
	require.Len(t, rels, 1)
	assert.Equal(t, [2]int32{20, 5}, rels[0])
	assert.Equal(t, uint64(1), met.MouseSamples.Value())
}

func TestMouseZeroDeltaNotForwarded(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	sim.MoveMouse(0, 0)
	cycle(t, eng)

	assert.Empty(t, sink.relEvents())
	assert.Equal(t, uint64(0), met.MouseSamples.Value())
}

func TestPowerButtonToggles(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	sim.PressPower()
	cycle(t, eng)
	sim.PressPower()
	cycle(t, eng)

	got := sink.allKeys()
	require.Len(t, got, 2)
	assert.Equal(t, keyEvent{keymap.KeyPower, true, -1}, got[0])
	assert.Equal(t, keyEvent{keymap.KeyPower, false, -1}, got[1])
	assert.Equal(t, uint64(2), met.PowerToggles.Value())

	// The override hook realigns a drifted tracker.
	eng.SetPowerState(false)
	sim.PressPower()
	cycle(t, eng)
	assert.True(t, eng.Snapshot().PowerDown)
}

func TestFIFOPopFailureAbortsDrain(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	sim.PushKey(transport.FIFOKindPress, 2)
	sim.PushKey(transport.FIFOKindPress, 3)
	sim.PushKey(transport.FIFOKindPress, 4)
	sim.FailNext(transport.RegFIFOAccess, 1)
	cycle(t, eng)

	assert.Empty(t, sink.scanned())
	assert.Equal(t, 3, sim.QueueLen(), "a failed pop leaves the queue intact")
	assert.Equal(t, uint64(1), met.TransportErrors.Value())

	// The next key-event interrupt recovers the stranded slots.
	sim.RaiseInterrupt(transport.IntKeyEvent)
	cycle(t, eng)
	assert.Len(t, sink.scanned(), 3)
	assert.Equal(t, 0, sim.QueueLen())
}

func TestInterruptReadFailureAbortsCycle(t *testing.T) {
	eng, sim, _, met := newTestEngine(t)

	sim.FailNext(transport.RegIntStatus, 1)
	err := eng.PollCycle()
	require.ErrorIs(t, err, transport.ErrRead)
	assert.Equal(t, uint64(1), met.TransportErrors.Value())

	// And the engine keeps working afterwards.
	sim.PushKey(transport.FIFOKindPress, 2)
	cycle(t, eng)
}

func TestModifierReadFailureDropsOnlyThatPress(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	sim.PushKey(transport.FIFOKindPress, 2)
	sim.PushKey(transport.FIFOKindPress, 3)
	// The drain reads the status register once for the depth, then once per
	// press for the modifier snapshot. Fail only the first per-press read.
	sim.FailAfter(transport.RegKeyStatus, 1, 1)
	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 1, "only the press with the failed snapshot is dropped")
	assert.Equal(t, keymap.Key6, got[0].key)
	assert.Equal(t, uint64(1), met.TransportErrors.Value())
	assert.Equal(t, 0, sim.QueueLen())
}

func TestOverflowCountedOnFullQueue(t *testing.T) {
	eng, sim, sink, met := newTestEngine(t)

	for i := 0; i < 20; i++ {
		sim.PushKey(transport.FIFOKindPress, uint8(i%10))
	}
	cycle(t, eng)

	assert.Equal(t, uint64(1), met.FIFOOverflows.Value())
	assert.Len(t, sink.scanned(), 15, "the surviving slots all drain")
	assert.Equal(t, 0, sim.QueueLen())
}

// regScript serves scripted register values without the simulator's queue
// bookkeeping, for device behaviors the register map allows but the sim
// never produces (a lagging depth nibble, a FIFO that never runs empty).
type regScript struct {
	ints   uint8
	status uint8
	fifo   []uint8
	pops   int
}

func (d *regScript) ReadRegister(addr uint8) (uint8, error) {
	switch addr {
	case transport.RegIntStatus:
		v := d.ints
		d.ints = 0
		return v, nil
	case transport.RegKeyStatus:
		return d.status, nil
	case transport.RegFIFOAccess:
		d.pops++
		if len(d.fifo) == 0 {
			return 0, nil
		}
		v := d.fifo[0]
		d.fifo = d.fifo[1:]
		return v, nil
	}
	return 0, nil
}

func newScriptEngine(t *testing.T, dev *regScript) (*Engine, *recSink) {
	t.Helper()
	sink := &recSink{}
	met := metrics.NewDriver(metrics.NewRegistry("test"))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(dev, sink, keymap.Default(), NewParams(), log, met), sink
}

func TestStaleDepthNibbleDoesNotStopDrain(t *testing.T) {
	// The depth nibble lags the queue on real hardware; a read of zero with
	// slots still queued must not leave them stranded.
	dev := &regScript{
		ints:   transport.IntKeyEvent,
		status: 0,
		fifo: []uint8{
			transport.FIFOKindPress | 2<<transport.FIFOCodeShift,
			transport.FIFOKindRel | 2<<transport.FIFOCodeShift,
		},
	}
	eng, sink := newScriptEngine(t, dev)

	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 2, "drain ignores the depth nibble")
	assert.Equal(t, keyEvent{keymap.Key7, true, 2}, got[0])
	assert.Equal(t, keyEvent{keymap.Key7, false, 2}, got[1])
}

func TestDrainBoundedAtSixteenPops(t *testing.T) {
	dev := &regScript{ints: transport.IntKeyEvent}
	for i := 0; i < 32; i++ {
		dev.fifo = append(dev.fifo, transport.FIFOKindPress|uint8(1+i%10)<<transport.FIFOCodeShift)
	}
	eng, sink := newScriptEngine(t, dev)

	cycle(t, eng)
	assert.Equal(t, 16, dev.pops, "the pop budget bounds a drain, not the depth nibble")
	assert.Len(t, sink.scanned(), 16)

	// The remainder drains on the next key-event interrupt.
	dev.ints = transport.IntKeyEvent
	cycle(t, eng)
	assert.Len(t, sink.scanned(), 32)
}

func TestReleaseFallbackReadsFreshModifiers(t *testing.T) {
	// The engine's cached levels say no modifiers, but the register reports
	// fn held; a recordless release resolves against the register, the same
	// snapshot a press gets.
	dev := &regScript{
		ints:   transport.IntKeyEvent,
		status: transport.KeyStatusFn,
		fifo:   []uint8{transport.FIFOKindRel | 48<<transport.FIFOCodeShift},
	}
	eng, sink := newScriptEngine(t, dev)

	cycle(t, eng)

	got := sink.scanned()
	require.Len(t, got, 1)
	assert.Equal(t, keyEvent{keymap.BtnMiddle, false, 48}, got[0])
}
