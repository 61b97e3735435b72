package engine

import (
	"errors"
	"log/slog"
	"time"

	"lyrad/internal/metrics"
)

// ErrPollerStopped is returned by control calls after Stop.
var ErrPollerStopped = errors.New("engine: poller stopped")

// Poller drives the engine on a timer from a single goroutine. External
// callers steer it through synchronous control messages; when Suspend
// returns, the cycle in flight has finished and no further register reads
// happen until Resume.
type Poller struct {
	eng    *Engine
	params *Params
	log    *slog.Logger
	met    *metrics.Driver

	ctrl    chan ctrlMsg
	quit    chan struct{}
	stopped chan struct{}
}

type ctrlMsg struct {
	suspend bool
	ack     chan struct{}
}

// NewPoller wraps an engine. Call Start to begin polling.
func NewPoller(eng *Engine, params *Params, log *slog.Logger, met *metrics.Driver) *Poller {
	return &Poller{
		eng:     eng,
		params:  params,
		log:     log,
		met:     met,
		ctrl:    make(chan ctrlMsg),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the poll goroutine in the active state.
func (p *Poller) Start() {
	go p.run()
}

// Stop terminates the poll goroutine and waits for it to exit. The poller
// cannot be restarted.
func (p *Poller) Stop() {
	select {
	case <-p.stopped:
		return
	default:
	}
	close(p.quit)
	<-p.stopped
}

// Suspend halts polling. It returns only after the current cycle, if any,
// has completed, so the caller may inspect or reconfigure the engine
// without racing it. Suspending an already suspended poller is a no-op.
func (p *Poller) Suspend() error { return p.control(true) }

// Resume restarts polling after Suspend. The first cycle runs immediately;
// interrupt bits that accumulated while suspended are serviced then.
func (p *Poller) Resume() error { return p.control(false) }

func (p *Poller) control(suspend bool) error {
	msg := ctrlMsg{suspend: suspend, ack: make(chan struct{})}
	select {
	case p.ctrl <- msg:
		<-msg.ack
		return nil
	case <-p.stopped:
		return ErrPollerStopped
	}
}

// Snapshot suspends the poller, captures engine state and resumes. If the
// poller was already suspended it stays suspended.
func (p *Poller) Snapshot() (Status, error) {
	wasSuspended := p.met.Suspended.Value() == 1
	if err := p.Suspend(); err != nil {
		return Status{}, err
	}
	s := p.eng.Snapshot()
	if !wasSuspended {
		if err := p.Resume(); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (p *Poller) run() {
	defer close(p.stopped)

	suspended := false
	p.met.Suspended.Set(0)
	timer := time.NewTimer(p.params.PollInterval())
	defer timer.Stop()

	for {
		if suspended {
			select {
			case msg := <-p.ctrl:
				suspended = p.apply(msg, suspended)
				if !suspended {
					timer.Reset(0)
				}
			case <-p.quit:
				return
			}
			continue
		}

		select {
		case msg := <-p.ctrl:
			suspended = p.apply(msg, suspended)
		case <-p.quit:
			return
		case <-timer.C:
			start := time.Now()
			if err := p.eng.PollCycle(); err != nil {
				p.log.Warn("poll cycle failed", "error", err)
			}
			p.met.CycleDuration.ObserveDuration(time.Since(start))
			p.met.PollCycles.Inc()
			p.publishParams()
			timer.Reset(p.params.PollInterval())
		}
	}
}

func (p *Poller) apply(msg ctrlMsg, suspended bool) bool {
	if msg.suspend != suspended {
		suspended = msg.suspend
		if suspended {
			p.met.Suspended.Set(1)
			p.log.Info("polling suspended")
		} else {
			p.met.Suspended.Set(0)
			p.log.Info("polling resumed")
		}
	}
	close(msg.ack)
	return suspended
}

func (p *Poller) publishParams() {
	p.met.SpeedX.Set(int64(p.params.SpeedX()))
	p.met.SpeedY.Set(int64(p.params.SpeedY()))
	p.met.PollPeriod.Set(int64(p.params.PollIntervalMs()))
}
