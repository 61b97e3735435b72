//go:build linux

package uinput

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"
)

// fileDevice returns a device backed by a plain file so emit can be
// exercised without /dev/uinput.
func fileDevice(t *testing.T) (*device, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return &device{f: f, name: "test"}, path
}

func readEvents(t *testing.T, path string) []inputEvent {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	size := int(unsafe.Sizeof(inputEvent{}))
	if len(data)%size != 0 {
		t.Fatalf("file size %d not a multiple of event size %d", len(data), size)
	}
	events := make([]inputEvent, len(data)/size)
	for i := range events {
		events[i] = *(*inputEvent)(unsafe.Pointer(&data[i*size]))
	}
	return events
}

func TestEmitAppendsSynReport(t *testing.T) {
	d, path := fileDevice(t)

	err := d.emit(
		inputEvent{Type: evMsc, Code: mscScan, Value: 48},
		inputEvent{Type: evKey, Code: 0x110, Value: 1},
	)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	events := readEvents(t, path)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != evMsc || events[0].Value != 48 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != evKey || events[1].Code != 0x110 || events[1].Value != 1 {
		t.Errorf("second event = %+v", events[1])
	}
	if events[2].Type != evSyn || events[2].Code != synReport {
		t.Errorf("report not terminated with SYN_REPORT: %+v", events[2])
	}
}

func TestEmitRelSkipsZeroAxes(t *testing.T) {
	d, path := fileDevice(t)
	s := &Sink{mouse: d}

	if err := s.EmitRel(5, 0); err != nil {
		t.Fatalf("EmitRel: %v", err)
	}
	events := readEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("got %d events, want REL_X + SYN", len(events))
	}
	if events[0].Type != evRel || events[0].Code != relX || events[0].Value != 5 {
		t.Errorf("rel event = %+v", events[0])
	}

	// Both axes zero produces no report at all.
	if err := s.EmitRel(0, 0); err != nil {
		t.Fatalf("EmitRel: %v", err)
	}
	if got := len(readEvents(t, path)); got != 2 {
		t.Errorf("zero motion wrote %d extra events", got-2)
	}
}

func TestEmitKeyRouting(t *testing.T) {
	kbd, kbdPath := fileDevice(t)
	mouse, mousePath := fileDevice(t)
	s := &Sink{kbd: kbd, mouse: mouse}

	if err := s.EmitKey(0x110, true, 48); err != nil { // BTN_LEFT
		t.Fatal(err)
	}
	if err := s.EmitKey(28, true, 20); err != nil { // KEY_ENTER
		t.Fatal(err)
	}
	if err := s.EmitKey(42, true, -1); err != nil { // modifier sync, no scan
		t.Fatal(err)
	}

	mouseEvents := readEvents(t, mousePath)
	if len(mouseEvents) != 2 || mouseEvents[0].Code != 0x110 {
		t.Errorf("button not routed to mouse device: %+v", mouseEvents)
	}

	kbdEvents := readEvents(t, kbdPath)
	// Enter with MSC_SCAN (3 events) plus shift without (2 events).
	if len(kbdEvents) != 5 {
		t.Fatalf("got %d keyboard events, want 5", len(kbdEvents))
	}
	if kbdEvents[0].Type != evMsc || kbdEvents[0].Value != 20 {
		t.Errorf("missing scan report: %+v", kbdEvents[0])
	}
	if kbdEvents[3].Type != evKey || kbdEvents[3].Code != 42 {
		t.Errorf("modifier sync event = %+v", kbdEvents[3])
	}
}
