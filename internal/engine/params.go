package engine

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Runtime parameter ranges. Values outside a range are rejected, never
// clamped: the prior value stays in effect and the caller gets the error.
const (
	MinSpeed     = 10
	MaxSpeed     = 500
	DefaultSpeed = 100

	MinPollIntervalMs     = 5
	MaxPollIntervalMs     = 100
	DefaultPollIntervalMs = 10
)

// RangeError reports a rejected runtime parameter value.
type RangeError struct {
	Param    string
	Value    int
	Min, Max int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("engine: %s=%d outside [%d, %d]", e.Param, e.Value, e.Min, e.Max)
}

// Params holds the runtime knobs shared between the poll goroutine and
// external writers (IPC handlers, config reload). Each field is an atomic
// word, so the poll task can never observe a half-updated value.
type Params struct {
	speedX     atomic.Int64
	speedY     atomic.Int64
	intervalMs atomic.Int64
}

// NewParams returns parameters at their defaults.
func NewParams() *Params {
	p := &Params{}
	p.speedX.Store(DefaultSpeed)
	p.speedY.Store(DefaultSpeed)
	p.intervalMs.Store(DefaultPollIntervalMs)
	return p
}

// SpeedX returns the X-axis speed multiplier in percent.
func (p *Params) SpeedX() int { return int(p.speedX.Load()) }

// SpeedY returns the Y-axis speed multiplier in percent.
func (p *Params) SpeedY() int { return int(p.speedY.Load()) }

// PollIntervalMs returns the poll period in milliseconds.
func (p *Params) PollIntervalMs() int { return int(p.intervalMs.Load()) }

// PollInterval returns the poll period as a duration.
func (p *Params) PollInterval() time.Duration {
	return time.Duration(p.intervalMs.Load()) * time.Millisecond
}

// SetSpeedX validates and stores the X-axis multiplier.
func (p *Params) SetSpeedX(v int) error {
	if v < MinSpeed || v > MaxSpeed {
		return &RangeError{Param: "speed_x", Value: v, Min: MinSpeed, Max: MaxSpeed}
	}
	p.speedX.Store(int64(v))
	return nil
}

// SetSpeedY validates and stores the Y-axis multiplier.
func (p *Params) SetSpeedY(v int) error {
	if v < MinSpeed || v > MaxSpeed {
		return &RangeError{Param: "speed_y", Value: v, Min: MinSpeed, Max: MaxSpeed}
	}
	p.speedY.Store(int64(v))
	return nil
}

// SetPollIntervalMs validates and stores the poll period. A running poller
// picks the new period up when it rearms for the next cycle.
func (p *Params) SetPollIntervalMs(v int) error {
	if v < MinPollIntervalMs || v > MaxPollIntervalMs {
		return &RangeError{Param: "poll_interval_ms", Value: v, Min: MinPollIntervalMs, Max: MaxPollIntervalMs}
	}
	p.intervalMs.Store(int64(v))
	return nil
}
