package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lyrad/internal/config"
	"lyrad/internal/engine"
	"lyrad/internal/ipc"
	"lyrad/internal/metrics"
)

// daemonHandler services IPC requests against the running driver.
type daemonHandler struct {
	version   string
	startedAt time.Time
	device    string
	cfg       *config.Config
	params    *engine.Params
	poller    *engine.Poller
	met       *metrics.Driver
	broadcast func(*ipc.Event)
	shutdown  func()
}

func (h *daemonHandler) HandleMessage(ctx context.Context, client *ipc.Client, msg *ipc.Message) (*ipc.Message, error) {
	switch msg.Header.Type {
	case ipc.MsgStatusRequest:
		return h.handleStatus(msg)
	case ipc.MsgGetConfig:
		return h.handleGetConfig(msg)
	case ipc.MsgSetParam:
		return h.handleSetParam(msg)
	case ipc.MsgSuspend:
		return h.handleSuspend(msg, true)
	case ipc.MsgResume:
		return h.handleSuspend(msg, false)
	case ipc.MsgShutdown:
		h.shutdown()
		return ipc.NewResponse(ipc.MsgShutdown, msg.Header.RequestID, &ipc.AckResponse{Success: true})
	default:
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrInvalidRequest,
			fmt.Sprintf("unknown message type 0x%04x", uint16(msg.Header.Type))), nil
	}
}

func (h *daemonHandler) handleStatus(msg *ipc.Message) (*ipc.Message, error) {
	snap, err := h.poller.Snapshot()
	if err != nil {
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrShuttingDown, err.Error()), nil
	}

	return ipc.NewResponse(ipc.MsgStatusResponse, msg.Header.RequestID, &ipc.StatusResponse{
		Version:   h.version,
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Device:    h.device,
		Suspended: h.met.Suspended.Value() == 1,

		Shift:     snap.Shift,
		Alt:       snap.Alt,
		Fn:        snap.Fn,
		PowerDown: snap.PowerDown,
		HeldKeys:  snap.HeldKeys,

		SpeedX:         h.params.SpeedX(),
		SpeedY:         h.params.SpeedY(),
		PollIntervalMs: h.params.PollIntervalMs(),

		PollCycles:      h.met.PollCycles.Value(),
		KeyEvents:       h.met.KeyEvents.Value(),
		MouseSamples:    h.met.MouseSamples.Value(),
		TransportErrors: h.met.TransportErrors.Value(),
		FIFOOverflows:   h.met.FIFOOverflows.Value(),
	})
}

func (h *daemonHandler) handleGetConfig(msg *ipc.Message) (*ipc.Message, error) {
	// Round-trip through JSON to get a generic map without hand-listing
	// every field.
	raw, err := json.Marshal(h.cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return ipc.NewResponse(ipc.MsgGetConfigResp, msg.Header.RequestID, &ipc.GetConfigResponse{Config: m})
}

func (h *daemonHandler) handleSetParam(msg *ipc.Message) (*ipc.Message, error) {
	var req ipc.SetParamRequest
	if err := ipc.Decode(msg.Payload, &req); err != nil {
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrInvalidRequest, "invalid set-param request"), nil
	}

	var err error
	switch req.Name {
	case "speed_x":
		err = h.params.SetSpeedX(req.Value)
	case "speed_y":
		err = h.params.SetSpeedY(req.Value)
	case "poll_interval_ms":
		err = h.params.SetPollIntervalMs(req.Value)
	default:
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrInvalidRequest,
			fmt.Sprintf("unknown parameter %q", req.Name)), nil
	}
	if err != nil {
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrOutOfRange, err.Error()), nil
	}

	h.broadcast(&ipc.Event{
		Type:      ipc.EventParamChanged,
		Timestamp: time.Now(),
		Data:      map[string]any{"name": req.Name, "value": req.Value},
	})
	return ipc.NewResponse(ipc.MsgSetParamResp, msg.Header.RequestID, &ipc.SetParamResponse{Success: true})
}

func (h *daemonHandler) handleSuspend(msg *ipc.Message, suspend bool) (*ipc.Message, error) {
	var (
		err      error
		respType ipc.MessageType
		evType   ipc.EventType
	)
	if suspend {
		err = h.poller.Suspend()
		respType = ipc.MsgSuspendResp
		evType = ipc.EventSuspended
	} else {
		err = h.poller.Resume()
		respType = ipc.MsgResumeResp
		evType = ipc.EventResumed
	}
	if err != nil {
		return ipc.NewErrorMessage(msg.Header.RequestID, ipc.ErrShuttingDown, err.Error()), nil
	}

	h.broadcast(&ipc.Event{Type: evType, Timestamp: time.Now()})
	return ipc.NewResponse(respType, msg.Header.RequestID, &ipc.AckResponse{Success: true})
}

// printStatus renders a status response for the terminal. Shared by the
// daemon's own status subcommand and kept here next to the handler that
// produces the data.
func printStatus(s *ipc.StatusResponse) {
	fmt.Printf("lyrad %s on %s, up %s\n", s.Version, s.Device, s.Uptime)
	state := "active"
	if s.Suspended {
		state = "suspended"
	}
	fmt.Printf("  polling:     %s (%d ms interval)\n", state, s.PollIntervalMs)
	fmt.Printf("  mouse speed: x=%d%% y=%d%%\n", s.SpeedX, s.SpeedY)
	fmt.Printf("  modifiers:   shift=%t alt=%t fn=%t\n", s.Shift, s.Alt, s.Fn)
	fmt.Printf("  held keys:   %d\n", s.HeldKeys)
	fmt.Printf("  counters:    cycles=%d keys=%d mouse=%d errors=%d overflows=%d\n",
		s.PollCycles, s.KeyEvents, s.MouseSamples, s.TransportErrors, s.FIFOOverflows)
}
