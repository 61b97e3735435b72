package keymap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayerShapes(t *testing.T) {
	l := Default()
	for name, layer := range map[string]*Layer{
		"normal": &l.Normal, "shift": &l.Shift, "fn": &l.Fn,
	} {
		if len(layer) != NumScanCodes {
			t.Errorf("%s layer has %d entries, want %d", name, len(layer), NumScanCodes)
		}
	}
}

func TestReservedPositionsAgree(t *testing.T) {
	// The modifier and ctrl positions must carry the same key in every
	// layer; the engine never layer-resolves them, but the tables should
	// still be self-consistent.
	l := Default()
	for _, scan := range []int{ScanShiftLeft, ScanShiftRight, ScanAlt, ScanCtrl, ScanFn} {
		if l.Normal[scan] != l.Shift[scan] || l.Normal[scan] != l.Fn[scan] {
			t.Errorf("scan %d maps differently across layers: %v/%v/%v",
				scan, l.Normal[scan], l.Shift[scan], l.Fn[scan])
		}
	}
	if l.Normal[ScanCtrl] != KeyLeftCtrl {
		t.Errorf("ctrl position maps to %v", l.Normal[ScanCtrl])
	}
}

func TestMouseButtonPerLayer(t *testing.T) {
	// Scan 48 (FN8) is the one position whose meaning changes with every
	// layer: left, right, then middle button.
	l := Default()
	if l.Normal[48] != BtnLeft || l.Shift[48] != BtnRight || l.Fn[48] != BtnMiddle {
		t.Errorf("FN8 buttons wrong: %v/%v/%v", l.Normal[48], l.Shift[48], l.Fn[48])
	}
}

func TestKeyNameRoundTrip(t *testing.T) {
	for _, k := range Default().AllKeys() {
		name := k.Name()
		if name == "unknown" {
			t.Errorf("key %d has no name", k)
			continue
		}
		got, ok := Lookup(name)
		if !ok || got != k {
			t.Errorf("Lookup(%q) = %v, %v; want %v", name, got, ok, k)
		}
	}
}

func TestAllKeysDeduplicated(t *testing.T) {
	seen := make(map[Key]bool)
	for _, k := range Default().AllKeys() {
		if seen[k] {
			t.Errorf("key %v listed twice", k)
		}
		seen[k] = true
	}
	if !seen[BtnMiddle] || !seen[KeyF12] {
		t.Error("AllKeys missing keys reachable only through the fn layer")
	}
}

func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOverlayApply(t *testing.T) {
	path := writeOverlay(t, "normal:\n  48: btn_middle\nfn:\n  0: home\n")

	o, err := LoadOverlay(path)
	if err != nil {
		t.Fatalf("LoadOverlay: %v", err)
	}

	base := Default()
	patched := o.Apply(base)

	if patched.Normal[48] != BtnMiddle {
		t.Errorf("overlay not applied: %v", patched.Normal[48])
	}
	if patched.Fn[0] != KeyHome {
		t.Errorf("fn overlay not applied: %v", patched.Fn[0])
	}
	// Base layers stay untouched.
	if base.Normal[48] != BtnLeft {
		t.Error("Apply mutated the base layers")
	}
}

func TestOverlayRejections(t *testing.T) {
	cases := map[string]string{
		"out of range scan": "normal:\n  53: enter\n",
		"negative scan":     "shift:\n  -1: enter\n",
		"unknown key":       "normal:\n  2: hyperkey\n",
		"reserved scan":     "normal:\n  37: enter\n",
		"ctrl scan":         "fn:\n  33: enter\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeOverlay(t, content)
			if _, err := LoadOverlay(path); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}
