package keymap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay is a sparse per-layer remapping loaded from a YAML file:
//
//	normal:
//	  48: btn_middle
//	shift:
//	  29: home
//	fn:
//	  20: enter
//
// Keys are scan codes, values are names from the key vocabulary. An overlay
// never grows the scan-code space; entries outside [0, NumScanCodes) or with
// unknown key names reject the whole file so a typo cannot silently ship a
// half-applied map.
type Overlay struct {
	Normal map[int]string `yaml:"normal"`
	Shift  map[int]string `yaml:"shift"`
	Fn     map[int]string `yaml:"fn"`
}

// LoadOverlay reads and validates an overlay file.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keymap: read overlay: %w", err)
	}

	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("keymap: parse overlay: %w", err)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Overlay) validate() error {
	for name, m := range map[string]map[int]string{
		"normal": o.Normal, "shift": o.Shift, "fn": o.Fn,
	} {
		for code, keyName := range m {
			if code < 0 || code >= NumScanCodes {
				return fmt.Errorf("keymap: %s overlay: scan code %d out of range", name, code)
			}
			if _, ok := Lookup(keyName); !ok {
				return fmt.Errorf("keymap: %s overlay: unknown key %q for scan code %d", name, keyName, code)
			}
			if IsModifierScan(uint8(code)) || code == ScanCtrl {
				return fmt.Errorf("keymap: %s overlay: scan code %d is reserved", name, code)
			}
		}
	}
	return nil
}

// Apply returns a copy of the layers with the overlay's entries substituted.
func (o *Overlay) Apply(base *Layers) *Layers {
	out := *base
	applyLayer(&out.Normal, o.Normal)
	applyLayer(&out.Shift, o.Shift)
	applyLayer(&out.Fn, o.Fn)
	return &out
}

func applyLayer(l *Layer, m map[int]string) {
	for code, name := range m {
		if k, ok := Lookup(name); ok {
			l[code] = k
		}
	}
}
