// Package keymap holds the three scan-code layers of the Lyra keyboard and
// the logical key vocabulary they resolve to.
//
// A scan code is a dense index in [0, 52] identifying a physical key
// position. Each layer maps the full scan-code space to Linux key codes;
// which layer applies is decided per event by the engine from live modifier
// state (fn overrides shift overrides normal). The layers are fixed data:
// they are built once at startup and never mutated afterwards, optionally
// with a user overlay applied first (see overlay.go).
package keymap

// NumScanCodes is the size of the scan-code space. Codes at or above this
// are dropped before any layer lookup.
const NumScanCodes = 53

// Scan codes with reserved roles. The two shift positions collapse to one
// reported logical modifier; fn is never reported at all; ctrl bypasses
// layer resolution entirely.
const (
	ScanShiftLeft  = 25
	ScanShiftRight = 41
	ScanAlt        = 30
	ScanCtrl       = 33
	ScanFn         = 37
)

// Layer maps every scan code to a logical key.
type Layer [NumScanCodes]Key

// Layers bundles the three alternative mappings.
type Layers struct {
	Normal Layer
	Shift  Layer
	Fn     Layer
}

// Physical positions run A1..G1 (top row) through A6..G6, then the twelve
// direct GPIO keys FN1..FN12. Ordering follows the controller firmware's
// keyboard_layout table.

var defaultNormal = Layer{
	Key4, Key5, Key7, Key6, Key8, Key9, Key0, // A1..G1
	KeyR, KeyT, KeyU, KeyY, KeyI, KeyO, KeyP, // A2..G2
	KeyF, KeyG, KeyComma, KeyH, KeyDot, KeyL, KeyEnter, // A3..G3
	Key3, KeyE, KeyC, KeyD, KeyLeftShift, KeyM, KeySpace, // A4..G4
	Key2, KeyEsc, KeyLeftAlt, KeyTab, KeyV, KeyLeftCtrl, KeyBackspace, // A5..G5
	Key1, KeyQ, KeyFn, KeyZ, KeyB, KeyN, KeyRightShift, // A6..G6
	KeyW, KeyA, KeyS, KeyX, KeyJ, KeyK, // FN1..FN6
	BtnLeft, KeyDown, KeyUp, KeyRight, KeyLeft, // FN8..FN12
}

// The shift layer differs from normal only where the hardware legend does:
// the shifted digits and punctuation are the same key codes (the host
// applies shift itself), but FN8 becomes the right mouse button.
var defaultShift = Layer{
	Key4, Key5, Key7, Key6, Key8, Key9, Key0,
	KeyR, KeyT, KeyU, KeyY, KeyI, KeyO, KeyP,
	KeyF, KeyG, KeyComma, KeyH, KeyDot, KeyL, KeyEnter,
	Key3, KeyE, KeyC, KeyD, KeyLeftShift, KeyM, KeySpace,
	Key2, KeyEsc, KeyLeftAlt, KeyTab, KeyV, KeyLeftCtrl, KeyBackspace,
	Key1, KeyQ, KeyFn, KeyZ, KeyB, KeyN, KeyRightShift,
	KeyW, KeyA, KeyS, KeyX, KeyJ, KeyK,
	BtnRight, KeyDown, KeyUp, KeyRight, KeyLeft,
}

var defaultFn = Layer{
	KeyF4, KeyF5, KeyF7, KeyF6, KeyF8, KeyF9, KeyF10,
	KeyMinus, KeyMinus, KeyEqual, KeyEqual, KeyBackslash, KeyF11, KeyF12,
	KeyApostrophe, KeyLeftBrace, KeySlash, KeyRightBrace, KeyEnd, KeyHome, KeyEnter,
	KeyF3, KeyGrave, KeySemicolon, KeySemicolon, KeyLeftShift, KeySlash, KeySpace,
	KeyF2, KeyEsc, KeyLeftAlt, KeyTab, KeyApostrophe, KeyLeftCtrl, KeyBackspace,
	KeyF1, KeyGrave, KeyFn, Key102nd, KeyLeftBrace, KeyRightBrace, KeyRightShift,
	KeyUp, KeyLeft, KeyRight, KeyDown, KeyA, KeyB,
	BtnMiddle, KeyDown, KeyUp, KeyRight, KeyLeft,
}

// Default returns the built-in layers.
func Default() *Layers {
	return &Layers{
		Normal: defaultNormal,
		Shift:  defaultShift,
		Fn:     defaultFn,
	}
}

// IsModifierScan reports whether the scan code is one of the positions that
// are surfaced only through modifier sync, never as individual key events.
func IsModifierScan(code uint8) bool {
	switch code {
	case ScanShiftLeft, ScanShiftRight, ScanAlt, ScanFn:
		return true
	}
	return false
}

// AllKeys returns the deduplicated set of keys any layer can produce. The
// uinput sink registers exactly these capabilities.
func (l *Layers) AllKeys() []Key {
	seen := make(map[Key]bool)
	var keys []Key
	for _, layer := range []*Layer{&l.Normal, &l.Shift, &l.Fn} {
		for _, k := range layer {
			if k != KeyReserved && !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
