package metrics

// Driver holds the pre-registered metrics the daemon updates. Registering
// them up front keeps the hot path to plain atomic adds.
type Driver struct {
	PollCycles      *Counter
	KeyEvents       *Counter
	HoldsDropped    *Counter
	DecodeErrors    *Counter
	TransportErrors *Counter
	FIFOOverflows   *Counter
	MouseSamples    *Counter
	PowerToggles    *Counter
	ModifierSyncs   *Counter

	Suspended  *Gauge
	FIFODepth  *Gauge
	SpeedX     *Gauge
	SpeedY     *Gauge
	PollPeriod *Gauge

	CycleDuration *Histogram
}

// NewDriver registers the driver metric set on r.
func NewDriver(r *Registry) *Driver {
	return &Driver{
		PollCycles:      r.RegisterCounter("poll_cycles_total", "Completed poll cycles"),
		KeyEvents:       r.RegisterCounter("key_events_total", "Key press and release events forwarded"),
		HoldsDropped:    r.RegisterCounter("holds_dropped_total", "Hardware auto-repeat slots consumed without output"),
		DecodeErrors:    r.RegisterCounter("decode_errors_total", "Malformed FIFO slots dropped"),
		TransportErrors: r.RegisterCounter("transport_errors_total", "Failed register reads"),
		FIFOOverflows:   r.RegisterCounter("fifo_overflows_total", "Controller FIFO overflow interrupts"),
		MouseSamples:    r.RegisterCounter("mouse_samples_total", "Non-zero mouse delta samples forwarded"),
		PowerToggles:    r.RegisterCounter("power_toggles_total", "Power button edges forwarded"),
		ModifierSyncs:   r.RegisterCounter("modifier_syncs_total", "Modifier level resynchronizations"),

		Suspended:  r.RegisterGauge("suspended", "1 while polling is suspended"),
		FIFODepth:  r.RegisterGauge("fifo_depth", "FIFO depth observed at the last status read"),
		SpeedX:     r.RegisterGauge("speed_x_percent", "Mouse X speed multiplier"),
		SpeedY:     r.RegisterGauge("speed_y_percent", "Mouse Y speed multiplier"),
		PollPeriod: r.RegisterGauge("poll_interval_ms", "Poll period in milliseconds"),

		CycleDuration: r.RegisterHistogram("cycle_duration_seconds", "Wall time of one poll cycle",
			[]float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025}),
	}
}
