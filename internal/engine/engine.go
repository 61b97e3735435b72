// Package engine turns raw controller registers into input events.
//
// The engine owns the per-cycle protocol: read the interrupt register,
// resynchronize modifier levels, drain the key FIFO, sample mouse deltas
// and forward the power button. It is driven by a single poller goroutine;
// only Status and the runtime parameters are safe to touch from outside.
package engine

import (
	"log/slog"

	"lyrad/internal/keymap"
	"lyrad/internal/metrics"
	"lyrad/internal/transport"
)

// fifoMaxDrain bounds the work done in one cycle. The controller FIFO holds
// fewer slots than this, so a single drain empties it unless the device
// misreports its depth.
const fifoMaxDrain = 16

// Sink receives translated input events. EmitKey carries the originating
// scan code for MSC_SCAN reporting; scan < 0 means the event has no
// hardware position (modifier resync, power button).
type Sink interface {
	EmitKey(key keymap.Key, pressed bool, scan int) error
	EmitRel(dx, dy int32) error
}

// pressRecord remembers which key a press resolved to, so the matching
// release mirrors it even if the modifier state changed in between.
type pressRecord struct {
	key   keymap.Key
	valid bool
}

// Engine translates controller state into sink events.
type Engine struct {
	dev    transport.RegisterReader
	sink   Sink
	layers *keymap.Layers
	params *Params
	log    *slog.Logger
	met    *metrics.Driver

	pressed [keymap.NumScanCodes]pressRecord
	shift   bool
	alt     bool
	fn      bool

	// The controller reports only power button edges, not the level, so
	// the host mirrors it with a toggle. SetPowerState exists for firmware
	// that learns to report the level explicitly.
	powerDown bool

	// Optional notifications, set before the poller starts. Both run on
	// the poll goroutine and must not block.
	OnPowerButton func(down bool)
	OnOverflow    func()
}

// New creates an engine over the given device and sink.
func New(dev transport.RegisterReader, sink Sink, layers *keymap.Layers, params *Params, log *slog.Logger, met *metrics.Driver) *Engine {
	return &Engine{
		dev:    dev,
		sink:   sink,
		layers: layers,
		params: params,
		log:    log,
		met:    met,
	}
}

// Status is a point-in-time snapshot of engine state.
type Status struct {
	Shift     bool `json:"shift"`
	Alt       bool `json:"alt"`
	Fn        bool `json:"fn"`
	PowerDown bool `json:"power_down"`
	HeldKeys  int  `json:"held_keys"`
}

// Snapshot reports the current modifier and press-tracking state. It must
// only be called while the poller is quiescent (stopped or suspended); the
// IPC layer suspends around it.
func (e *Engine) Snapshot() Status {
	s := Status{Shift: e.shift, Alt: e.alt, Fn: e.fn, PowerDown: e.powerDown}
	for _, r := range e.pressed {
		if r.valid {
			s.HeldKeys++
		}
	}
	return s
}

// SetPowerState overrides the tracked power button level. The edge tracker
// drifts if an interrupt is lost; callers with better knowledge (an explicit
// level register on newer firmware) can correct it here.
func (e *Engine) SetPowerState(down bool) {
	e.powerDown = down
}

// SetLayers swaps the active keymap. Safe only while quiescent.
func (e *Engine) SetLayers(l *keymap.Layers) {
	e.layers = l
}

// PollCycle performs one full poll: read and clear the interrupt register,
// then service each pending condition. A transport failure on the interrupt
// read aborts the cycle; per-condition failures are counted and logged but
// do not stop the remaining conditions.
func (e *Engine) PollCycle() error {
	ints, err := e.dev.ReadRegister(transport.RegIntStatus)
	if err != nil {
		e.met.TransportErrors.Inc()
		return err
	}
	if ints == 0 {
		return nil
	}

	if ints&(transport.IntShiftChange|transport.IntFnChange|transport.IntAltChange) != 0 {
		if err := e.SyncModifiers(); err != nil {
			e.met.TransportErrors.Inc()
			e.log.Warn("modifier resync failed", "error", err)
		}
	}
	if ints&transport.IntFIFOOverflow != 0 {
		e.met.FIFOOverflows.Inc()
		e.log.Warn("controller fifo overflow, key events were lost")
		if e.OnOverflow != nil {
			e.OnOverflow()
		}
	}
	if ints&transport.IntKeyEvent != 0 {
		if err := e.drainFIFO(); err != nil {
			e.met.TransportErrors.Inc()
			e.log.Warn("fifo drain aborted", "error", err)
		}
	}
	if ints&transport.IntMouseEvent != 0 {
		if err := e.sampleMouse(); err != nil {
			e.met.TransportErrors.Inc()
			e.log.Warn("mouse sample failed", "error", err)
		}
	}
	if ints&transport.IntPowerButton != 0 {
		if err := e.togglePower(); err != nil {
			e.log.Warn("power event failed", "error", err)
		}
	}
	return nil
}

// SyncModifiers reads the live modifier levels and mirrors shift and alt to
// the sink. Fn is a layer selector only and never appears as a key event.
// Called once at startup and again whenever a modifier change interrupt
// fires, so a level change during suspend is still picked up.
func (e *Engine) SyncModifiers() error {
	status, err := e.dev.ReadRegister(transport.RegKeyStatus)
	if err != nil {
		return err
	}
	e.shift = status&transport.KeyStatusShift != 0
	e.alt = status&transport.KeyStatusAlt != 0
	e.fn = status&transport.KeyStatusFn != 0

	if err := e.sink.EmitKey(keymap.KeyLeftShift, e.shift, -1); err != nil {
		return err
	}
	if err := e.sink.EmitKey(keymap.KeyLeftAlt, e.alt, -1); err != nil {
		return err
	}
	e.met.ModifierSyncs.Inc()
	return nil
}

// drainFIFO pops queued key events until the FIFO is empty or the per-cycle
// bound is hit. A failed pop aborts the drain: the slot's state is unknown
// and retrying risks duplicating or reordering events.
func (e *Engine) drainFIFO() error {
	// The depth nibble is informational only and may lag the queue; it
	// feeds the gauge and nothing else. The drain is bounded by the pop
	// limit and terminated by the in-band empty slot.
	if status, err := e.dev.ReadRegister(transport.RegKeyStatus); err == nil {
		e.met.FIFODepth.Set(int64(transport.FIFODepth(status)))
	} else {
		e.met.TransportErrors.Inc()
	}

	for i := 0; i < fifoMaxDrain; i++ {
		raw, err := e.dev.ReadRegister(transport.RegFIFOAccess)
		if err != nil {
			return err
		}
		ev := DecodeFIFO(raw)
		if ev.Kind == KindNone {
			break
		}
		e.handleKey(ev, raw)
	}
	return nil
}

// handleKey processes one decoded FIFO slot. Failures here drop only the
// one event; the rest of the drain continues.
func (e *Engine) handleKey(ev ScanEvent, raw uint8) {
	if int(ev.Code) >= keymap.NumScanCodes {
		e.met.DecodeErrors.Inc()
		e.log.Warn("dropping fifo slot", "error", &DecodeError{Raw: raw, Code: ev.Code})
		return
	}
	if keymap.IsModifierScan(ev.Code) {
		// Modifier levels travel through the status register, not the
		// FIFO. Their queued press/release slots carry no information.
		return
	}

	switch ev.Kind {
	case KindHold:
		e.met.HoldsDropped.Inc()
	case KindPress:
		key, err := e.resolvePress(ev.Code)
		if err != nil {
			e.met.TransportErrors.Inc()
			e.log.Warn("dropping press, modifier read failed", "scan", ev.Code, "error", err)
			return
		}
		e.pressed[ev.Code] = pressRecord{key: key, valid: true}
		if err := e.sink.EmitKey(key, true, int(ev.Code)); err != nil {
			e.log.Warn("emit press failed", "key", key.Name(), "error", err)
		}
		e.met.KeyEvents.Inc()
	case KindRelease:
		key := e.resolveRelease(ev.Code)
		if err := e.sink.EmitKey(key, false, int(ev.Code)); err != nil {
			e.log.Warn("emit release failed", "key", key.Name(), "error", err)
		}
		e.met.KeyEvents.Inc()
	}
}

// resolvePress picks the key for a scan code from a fresh modifier
// snapshot. Reading the status register at the event rather than reusing
// the cycle's earlier read keeps a press that raced a layer change on the
// layer the user held at the time.
func (e *Engine) resolvePress(code uint8) (keymap.Key, error) {
	if code == keymap.ScanCtrl {
		// Ctrl is a plain key on this keyboard, not a layer selector.
		return keymap.KeyLeftCtrl, nil
	}
	status, err := e.dev.ReadRegister(transport.RegKeyStatus)
	if err != nil {
		return 0, err
	}
	return e.lookup(code, status&transport.KeyStatusShift != 0, status&transport.KeyStatusFn != 0), nil
}

// resolveRelease returns the key recorded at press time, guaranteeing the
// release matches even across a layer change. A release with no record
// (press lost to an overflow, or delivered before the daemon started)
// falls back to a fresh modifier snapshot, the same read a press gets; the
// cached levels serve only when that read fails.
func (e *Engine) resolveRelease(code uint8) keymap.Key {
	if code == keymap.ScanCtrl {
		return keymap.KeyLeftCtrl
	}
	rec := e.pressed[code]
	e.pressed[code] = pressRecord{}
	if rec.valid {
		return rec.key
	}
	status, err := e.dev.ReadRegister(transport.RegKeyStatus)
	if err != nil {
		e.met.TransportErrors.Inc()
		return e.lookup(code, e.shift, e.fn)
	}
	return e.lookup(code, status&transport.KeyStatusShift != 0, status&transport.KeyStatusFn != 0)
}

// lookup applies layer priority: fn wins over shift wins over normal.
func (e *Engine) lookup(code uint8, shift, fn bool) keymap.Key {
	switch {
	case fn:
		return e.layers.Fn[code]
	case shift:
		return e.layers.Shift[code]
	default:
		return e.layers.Normal[code]
	}
}

// sampleMouse reads and clears both delta registers, scales them and
// forwards any motion. Both registers are read even when X fails; otherwise
// half the sample would stay queued and replay on the next cycle.
func (e *Engine) sampleMouse() error {
	rawX, errX := e.dev.ReadRegister(transport.RegMouseX)
	rawY, errY := e.dev.ReadRegister(transport.RegMouseY)
	if errX != nil {
		return errX
	}
	if errY != nil {
		return errY
	}

	dx := scaleDelta(int8(rawX), e.params.SpeedX())
	dy := scaleDelta(int8(rawY), e.params.SpeedY())
	if dx == 0 && dy == 0 {
		return nil
	}
	if err := e.sink.EmitRel(dx, dy); err != nil {
		return err
	}
	e.met.MouseSamples.Inc()
	return nil
}

// scaleDelta applies a percentage multiplier with truncation toward zero.
// Non-zero input never scales to zero: slow pointer settings must still
// move the cursor one unit, or low speeds would dead-zone small motions.
func scaleDelta(raw int8, speed int) int32 {
	if raw == 0 {
		return 0
	}
	scaled := int32(raw) * int32(speed) / 100
	if scaled == 0 {
		if raw > 0 {
			return 1
		}
		return -1
	}
	return scaled
}

// togglePower forwards one power button edge. The interrupt carries no
// level, so the tracked state flips on every event.
func (e *Engine) togglePower() error {
	e.powerDown = !e.powerDown
	if err := e.sink.EmitKey(keymap.KeyPower, e.powerDown, -1); err != nil {
		return err
	}
	e.met.PowerToggles.Inc()
	if e.OnPowerButton != nil {
		e.OnPowerButton(e.powerDown)
	}
	return nil
}
