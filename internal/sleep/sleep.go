// Package sleep integrates the daemon with systemd-logind so polling stops
// cleanly across system sleep.
//
// The controller keeps latching interrupts while the host sleeps, which is
// harmless, but an in-flight I2C transaction at the moment of suspend can
// wedge the bus. A logind delay inhibitor holds sleep back until the poll
// loop has quiesced.
package sleep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	logindService   = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindInterface = "org.freedesktop.login1.Manager"
	prepareForSleep = logindInterface + ".PrepareForSleep"
)

// Controller is the part of the poller the monitor drives.
type Controller interface {
	Suspend() error
	Resume() error
}

// Monitor subscribes to PrepareForSleep and suspends/resumes the controller
// around system sleep.
type Monitor struct {
	ctrl Controller
	log  *slog.Logger

	conn    *dbus.Conn
	inhibit *os.File
}

// NewMonitor creates a monitor over the given controller.
func NewMonitor(ctrl Controller, log *slog.Logger) *Monitor {
	return &Monitor{ctrl: ctrl, log: log}
}

// Run connects to the system bus and services sleep signals until the
// context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("sleep: connect system bus: %w", err)
	}
	m.conn = conn
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		return fmt.Errorf("sleep: subscribe to PrepareForSleep: %w", err)
	}

	if err := m.takeInhibitor(); err != nil {
		// Sleep still works without the inhibitor, just without the
		// orderly-suspend guarantee.
		m.log.Warn("could not take sleep inhibitor", "error", err)
	}
	defer m.releaseInhibitor()

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("sleep: system bus connection lost")
			}
			if sig.Name != prepareForSleep || len(sig.Body) != 1 {
				continue
			}
			entering, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			m.handleSleepSignal(entering)
		}
	}
}

// handleSleepSignal quiesces the poller before sleep and restarts it after
// resume. The inhibitor is released only after Suspend returns, so logind
// waits for the cycle in flight.
func (m *Monitor) handleSleepSignal(entering bool) {
	if entering {
		if err := m.ctrl.Suspend(); err != nil {
			m.log.Warn("suspend before sleep failed", "error", err)
		} else {
			m.log.Info("polling suspended for system sleep")
		}
		m.releaseInhibitor()
		return
	}

	if err := m.ctrl.Resume(); err != nil {
		m.log.Warn("resume after sleep failed", "error", err)
	} else {
		m.log.Info("polling resumed after system sleep")
	}
	if err := m.takeInhibitor(); err != nil {
		m.log.Warn("could not retake sleep inhibitor", "error", err)
	}
}

func (m *Monitor) takeInhibitor() error {
	if m.inhibit != nil {
		return nil
	}
	if m.conn == nil {
		return errors.New("not connected")
	}
	obj := m.conn.Object(logindService, dbus.ObjectPath(logindPath))
	var fd dbus.UnixFD
	err := obj.Call(logindInterface+".Inhibit", 0,
		"sleep", "lyrad", "pausing keyboard controller polling", "delay").Store(&fd)
	if err != nil {
		return err
	}
	m.inhibit = os.NewFile(uintptr(fd), "logind-inhibit")
	return nil
}

func (m *Monitor) releaseInhibitor() {
	if m.inhibit == nil {
		return
	}
	m.inhibit.Close()
	m.inhibit = nil
}
