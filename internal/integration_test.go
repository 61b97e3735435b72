// Package internal provides integration tests for the lyrad input pipeline.
//
// These tests exercise the complete path a scan event travels:
// 1. The simulated controller latches interrupts and queues FIFO slots
// 2. The engine drains them through the layered keymap
// 3. The poller schedules cycles and honors suspend/resume
// 4. Runtime parameters from a config file shape mouse scaling
package internal

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lyrad/internal/config"
	"lyrad/internal/engine"
	"lyrad/internal/keymap"
	"lyrad/internal/metrics"
	"lyrad/internal/transport"

	"github.com/stretchr/testify/require"
)

type emitted struct {
	key     keymap.Key
	pressed bool
	scan    int
}

// pipeSink records everything the engine hands to the virtual devices.
type pipeSink struct {
	mu   sync.Mutex
	keys []emitted
	rels [][2]int32
}

func (s *pipeSink) EmitKey(k keymap.Key, pressed bool, scan int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, emitted{key: k, pressed: pressed, scan: scan})
	return nil
}

func (s *pipeSink) EmitRel(dx, dy int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels = append(s.rels, [2]int32{dx, dy})
	return nil
}

func (s *pipeSink) snapshot() ([]emitted, [][2]int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]emitted(nil), s.keys...), append([][2]int32(nil), s.rels...)
}

func newPipeline(t *testing.T) (*engine.Engine, *transport.SimDevice, *pipeSink, *engine.Params, *metrics.Driver) {
	t.Helper()
	sim := transport.NewSim()
	sink := &pipeSink{}
	params := engine.NewParams()
	met := metrics.NewDriver(metrics.NewRegistry("integration"))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(sim, sink, keymap.Default(), params, log, met)
	return eng, sim, sink, params, met
}

// TestFullInputPipeline walks a realistic typing session end to end: a plain
// key, a shifted key, an fn-layer mouse button and a mouse sample, each
// latched by the controller and drained by poll cycles.
func TestFullInputPipeline(t *testing.T) {
	eng, sim, sink, _, met := newPipeline(t)

	// Plain press and release of scan 2 on the normal layer.
	sim.PushKey(transport.FIFOKindPress, 2)
	sim.PushKey(transport.FIFOKindRel, 2)
	require.NoError(t, eng.PollCycle())

	// Shift goes down, then the same scan resolves on the shift layer.
	sim.SetModifiers(true, false, false)
	sim.PushKey(transport.FIFOKindPress, 2)
	require.NoError(t, eng.PollCycle())
	sim.SetModifiers(false, false, false)
	sim.PushKey(transport.FIFOKindRel, 2)
	require.NoError(t, eng.PollCycle())

	// Fn layer turns scan 48 into a mouse button; motion arrives in the
	// same cycle and must come out after the key events.
	sim.SetModifiers(false, false, true)
	sim.PushKey(transport.FIFOKindPress, 48)
	sim.PushKey(transport.FIFOKindRel, 48)
	sim.MoveMouse(10, -4)
	require.NoError(t, eng.PollCycle())

	keys, rels := sink.snapshot()

	var scanKeys []emitted
	for _, e := range keys {
		if e.scan >= 0 {
			scanKeys = append(scanKeys, e)
		}
	}

	normal, shift, fn := keymap.Default().Normal[2], keymap.Default().Shift[2], keymap.Default().Fn[48]
	want := []emitted{
		{key: normal, pressed: true, scan: 2},
		{key: normal, pressed: false, scan: 2},
		{key: shift, pressed: true, scan: 2},
		// Release resolves through the press record, not the live layer.
		{key: shift, pressed: false, scan: 2},
		{key: fn, pressed: true, scan: 48},
		{key: fn, pressed: false, scan: 48},
	}
	require.Equal(t, want, scanKeys)

	require.Equal(t, [][2]int32{{10, -4}}, rels)
	require.Equal(t, uint64(6), met.KeyEvents.Value())
	require.Equal(t, uint64(1), met.MouseSamples.Value())
	require.Zero(t, met.TransportErrors.Value())
}

// TestPollerSuspendStopsBusTraffic verifies that a suspended poller leaves
// the controller untouched and that resume picks queued events back up.
func TestPollerSuspendStopsBusTraffic(t *testing.T) {
	eng, sim, sink, params, met := newPipeline(t)
	require.NoError(t, params.SetPollIntervalMs(5))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := engine.NewPoller(eng, params, log, met)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Suspend())
	quiesced := sim.ReadCount(transport.RegIntStatus)

	sim.PushKey(transport.FIFOKindPress, 5)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, quiesced, sim.ReadCount(transport.RegIntStatus),
		"suspended poller still touched the bus")

	require.NoError(t, p.Resume())
	require.Eventually(t, func() bool {
		keys, _ := sink.snapshot()
		return len(keys) > 0
	}, time.Second, 5*time.Millisecond, "queued press not delivered after resume")
}

// TestConfigDrivesMouseScaling loads a config file and checks the parameters
// it carries reach the scaling math.
func TestConfigDrivesMouseScaling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[mouse]\nspeed_x = 200\nspeed_y = 50\n\n[poll]\ninterval_ms = 20\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	eng, sim, sink, params, _ := newPipeline(t)
	require.NoError(t, params.SetSpeedX(cfg.Mouse.SpeedX))
	require.NoError(t, params.SetSpeedY(cfg.Mouse.SpeedY))
	require.NoError(t, params.SetPollIntervalMs(cfg.Poll.IntervalMs))
	require.Equal(t, 20*time.Millisecond, params.PollInterval())

	sim.MoveMouse(10, 10)
	require.NoError(t, eng.PollCycle())

	_, rels := sink.snapshot()
	require.Equal(t, [][2]int32{{20, 5}}, rels)
}
