package config

import (
	"fmt"
	"strings"

	"lyrad/internal/engine"
	"lyrad/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration. Out-of-range values are rejected, not
// clamped; the user finds out about a typo instead of silently getting a
// different speed.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Device.I2CBus < 0 {
		errs = append(errs, ValidationError{
			Field:   "device.i2c_bus",
			Message: fmt.Sprintf("negative bus number %d", c.Device.I2CBus),
		})
	}
	if !c.Device.Sim && (c.Device.Addr < 0x08 || c.Device.Addr > 0x77) {
		errs = append(errs, ValidationError{
			Field:   "device.addr",
			Message: fmt.Sprintf("address 0x%02x outside the 7-bit range 0x08..0x77", c.Device.Addr),
		})
	}

	for field, v := range map[string]int{
		"mouse.speed_x": c.Mouse.SpeedX,
		"mouse.speed_y": c.Mouse.SpeedY,
	} {
		if v < engine.MinSpeed || v > engine.MaxSpeed {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%d outside [%d, %d]", v, engine.MinSpeed, engine.MaxSpeed),
			})
		}
	}
	if c.Poll.IntervalMs < engine.MinPollIntervalMs || c.Poll.IntervalMs > engine.MaxPollIntervalMs {
		errs = append(errs, ValidationError{
			Field: "poll.interval_ms",
			Message: fmt.Sprintf("%d outside [%d, %d]",
				c.Poll.IntervalMs, engine.MinPollIntervalMs, engine.MaxPollIntervalMs),
		})
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, ValidationError{Field: "logging.format", Message: err.Error()})
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q", c.Logging.Output),
		})
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output includes \"file\"",
		})
	}

	if c.IPC.Enabled {
		if c.IPC.SocketPath == "" {
			errs = append(errs, ValidationError{Field: "ipc.socket_path", Message: "required when ipc is enabled"})
		}
		if c.IPC.MaxConnections < 1 {
			errs = append(errs, ValidationError{
				Field:   "ipc.max_connections",
				Message: fmt.Sprintf("must be at least 1, got %d", c.IPC.MaxConnections),
			})
		}
		if c.IPC.TimeoutSec < 1 {
			errs = append(errs, ValidationError{
				Field:   "ipc.timeout_sec",
				Message: fmt.Sprintf("must be at least 1, got %d", c.IPC.TimeoutSec),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
