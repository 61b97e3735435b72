package keymap

// Key is a Linux input-event key code, the logical identity handed to the
// host after layer resolution.
type Key uint16

// Key codes from include/uapi/linux/input-event-codes.h, limited to what the
// Lyra layers and the power button can produce.
const (
	KeyReserved   Key = 0
	KeyEsc        Key = 1
	Key1          Key = 2
	Key2          Key = 3
	Key3          Key = 4
	Key4          Key = 5
	Key5          Key = 6
	Key6          Key = 7
	Key7          Key = 8
	Key8          Key = 9
	Key9          Key = 10
	Key0          Key = 11
	KeyMinus      Key = 12
	KeyEqual      Key = 13
	KeyBackspace  Key = 14
	KeyTab        Key = 15
	KeyQ          Key = 16
	KeyW          Key = 17
	KeyE          Key = 18
	KeyR          Key = 19
	KeyT          Key = 20
	KeyY          Key = 21
	KeyU          Key = 22
	KeyI          Key = 23
	KeyO          Key = 24
	KeyP          Key = 25
	KeyLeftBrace  Key = 26
	KeyRightBrace Key = 27
	KeyEnter      Key = 28
	KeyLeftCtrl   Key = 29
	KeyA          Key = 30
	KeyS          Key = 31
	KeyD          Key = 32
	KeyF          Key = 33
	KeyG          Key = 34
	KeyH          Key = 35
	KeyJ          Key = 36
	KeyK          Key = 37
	KeyL          Key = 38
	KeySemicolon  Key = 39
	KeyApostrophe Key = 40
	KeyGrave      Key = 41
	KeyLeftShift  Key = 42
	KeyBackslash  Key = 43
	KeyZ          Key = 44
	KeyX          Key = 45
	KeyC          Key = 46
	KeyV          Key = 47
	KeyB          Key = 48
	KeyN          Key = 49
	KeyM          Key = 50
	KeyComma      Key = 51
	KeyDot        Key = 52
	KeySlash      Key = 53
	KeyRightShift Key = 54
	KeyLeftAlt    Key = 56
	KeySpace      Key = 57
	KeyF1         Key = 59
	KeyF2         Key = 60
	KeyF3         Key = 61
	KeyF4         Key = 62
	KeyF5         Key = 63
	KeyF6         Key = 64
	KeyF7         Key = 65
	KeyF8         Key = 66
	KeyF9         Key = 67
	KeyF10        Key = 68
	Key102nd      Key = 86
	KeyF11        Key = 87
	KeyF12        Key = 88
	KeyHome       Key = 102
	KeyUp         Key = 103
	KeyLeft       Key = 105
	KeyRight      Key = 106
	KeyEnd        Key = 107
	KeyDown       Key = 108
	KeyPower      Key = 116
	KeyFn         Key = 0x1d0

	BtnLeft   Key = 0x110
	BtnRight  Key = 0x111
	BtnMiddle Key = 0x112
)

var keyNames = map[Key]string{
	KeyEsc: "esc", Key1: "1", Key2: "2", Key3: "3", Key4: "4", Key5: "5",
	Key6: "6", Key7: "7", Key8: "8", Key9: "9", Key0: "0",
	KeyMinus: "minus", KeyEqual: "equal", KeyBackspace: "backspace",
	KeyTab: "tab", KeyQ: "q", KeyW: "w", KeyE: "e", KeyR: "r", KeyT: "t",
	KeyY: "y", KeyU: "u", KeyI: "i", KeyO: "o", KeyP: "p",
	KeyLeftBrace: "leftbrace", KeyRightBrace: "rightbrace", KeyEnter: "enter",
	KeyLeftCtrl: "leftctrl", KeyA: "a", KeyS: "s", KeyD: "d", KeyF: "f",
	KeyG: "g", KeyH: "h", KeyJ: "j", KeyK: "k", KeyL: "l",
	KeySemicolon: "semicolon", KeyApostrophe: "apostrophe", KeyGrave: "grave",
	KeyLeftShift: "leftshift", KeyBackslash: "backslash", KeyZ: "z",
	KeyX: "x", KeyC: "c", KeyV: "v", KeyB: "b", KeyN: "n", KeyM: "m",
	KeyComma: "comma", KeyDot: "dot", KeySlash: "slash",
	KeyRightShift: "rightshift", KeyLeftAlt: "leftalt", KeySpace: "space",
	KeyF1: "f1", KeyF2: "f2", KeyF3: "f3", KeyF4: "f4", KeyF5: "f5",
	KeyF6: "f6", KeyF7: "f7", KeyF8: "f8", KeyF9: "f9", KeyF10: "f10",
	Key102nd: "102nd", KeyF11: "f11", KeyF12: "f12", KeyHome: "home",
	KeyUp: "up", KeyLeft: "left", KeyRight: "right", KeyEnd: "end",
	KeyDown: "down", KeyPower: "power", KeyFn: "fn",
	BtnLeft: "btn_left", BtnRight: "btn_right", BtnMiddle: "btn_middle",
}

var keysByName = func() map[string]Key {
	m := make(map[string]Key, len(keyNames))
	for k, n := range keyNames {
		m[n] = k
	}
	return m
}()

// Name returns a stable lowercase name for a key, or "unknown" if the key is
// outside the set the controller can produce.
func (k Key) Name() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	return "unknown"
}

// IsButton reports whether the key is a mouse button rather than a
// keyboard key.
func (k Key) IsButton() bool {
	return k >= BtnLeft && k <= BtnMiddle
}

// Lookup resolves a key name from the overlay/status vocabulary.
func Lookup(name string) (Key, bool) {
	k, ok := keysByName[name]
	return k, ok
}
