package sleep

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type fakeController struct {
	suspends   int
	resumes    int
	suspendErr error
}

func (c *fakeController) Suspend() error {
	c.suspends++
	return c.suspendErr
}

func (c *fakeController) Resume() error {
	c.resumes++
	return nil
}

func TestSleepSignalDrivesController(t *testing.T) {
	ctrl := &fakeController{}
	m := NewMonitor(ctrl, slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.handleSleepSignal(true)
	if ctrl.suspends != 1 || ctrl.resumes != 0 {
		t.Errorf("after entering sleep: suspends=%d resumes=%d", ctrl.suspends, ctrl.resumes)
	}

	m.handleSleepSignal(false)
	if ctrl.suspends != 1 || ctrl.resumes != 1 {
		t.Errorf("after waking: suspends=%d resumes=%d", ctrl.suspends, ctrl.resumes)
	}
}

func TestSuspendFailureStillReleasesInhibitor(t *testing.T) {
	ctrl := &fakeController{suspendErr: errors.New("poller stopped")}
	m := NewMonitor(ctrl, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Must not panic or hold the (absent) inhibitor.
	m.handleSleepSignal(true)
	if m.inhibit != nil {
		t.Error("inhibitor held after entering sleep")
	}
}
