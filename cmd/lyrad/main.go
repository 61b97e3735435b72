// lyrad - Userspace input driver for the Lyra I2C keyboard controller
//
//	lyrad run             Run the driver daemon
//	lyrad probe           Read the controller registers once and print them
//	lyrad status          Query a running daemon over IPC
//	lyrad version         Print the version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lyrad/internal/config"
	"lyrad/internal/engine"
	"lyrad/internal/health"
	"lyrad/internal/ipc"
	"lyrad/internal/keymap"
	"lyrad/internal/logging"
	"lyrad/internal/metrics"
	"lyrad/internal/sleep"
	"lyrad/internal/transport"
	"lyrad/internal/uinput"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "probe":
		cmdProbe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "version":
		fmt.Println("lyrad " + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`lyrad - Lyra keyboard controller driver

USAGE:
    lyrad <command> [options]

COMMANDS:
    run        Run the driver daemon
    probe      Read the controller registers once and print them
    status     Query a running daemon over IPC
    version    Print the version
    help       Show this help message

The daemon polls the controller over I2C, translates scan events through
the three keymap layers and injects the result as a virtual keyboard and
mouse via /dev/uinput. A Unix control socket accepts runtime parameter
changes; see lyractl.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "lyrad: "+format+"\n", args...)
	os.Exit(1)
}

func newFlagSet(cmd string) *flag.FlagSet {
	fs := flag.NewFlagSet("lyrad "+cmd, flag.ExitOnError)
	return fs
}

// loadConfig parses the flag set shared by run and probe, returning the
// configuration and the path it came from.
func loadConfig(args []string, cmd string) (*config.Config, string) {
	var (
		configPath string
		sim        bool
	)
	fs := newFlagSet(cmd)
	fs.StringVar(&configPath, "config", "", "path to config file")
	fs.BoolVar(&sim, "sim", false, "use the simulated controller instead of the hardware")
	fs.Parse(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("load config: %v", err)
	}
	if sim {
		cfg.Device.Sim = true
	}
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	return cfg, configPath
}

func openDevice(cfg *config.Config) (transport.RegisterReader, string, error) {
	if cfg.Device.Sim {
		return transport.NewSim(), "sim", nil
	}
	dev, err := transport.OpenI2C(cfg.Device.I2CBus, cfg.Device.Addr)
	if err != nil {
		return nil, "", err
	}
	return dev, dev.String(), nil
}

func buildLayers(cfg *config.Config) (*keymap.Layers, error) {
	layers := keymap.Default()
	if cfg.Keymap.OverlayPath == "" {
		return layers, nil
	}
	overlay, err := keymap.LoadOverlay(cfg.Keymap.OverlayPath)
	if err != nil {
		return nil, err
	}
	return overlay.Apply(layers), nil
}

func cmdRun(args []string) {
	cfg, cfgPath := loadConfig(args, "run")

	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	logger, err := logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fatal("%v", err)
	}
	defer logger.Close()
	log := logger.Logger

	dev, devName, err := openDevice(cfg)
	if err != nil {
		fatal("open controller: %v", err)
	}
	if closer, ok := dev.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	layers, err := buildLayers(cfg)
	if err != nil {
		fatal("load keymap overlay: %v", err)
	}

	sink, err := uinput.NewSink(layers)
	if err != nil {
		fatal("create virtual devices: %v", err)
	}
	defer sink.Close()

	params := engine.NewParams()
	if err := applyParams(params, cfg); err != nil {
		fatal("apply parameters: %v", err)
	}

	met := metrics.NewDriver(metrics.Default())
	eng := engine.New(dev, sink, layers, params, log, met)

	// Modifier levels may have changed while no driver was running; align
	// before the first cycle.
	if err := eng.SyncModifiers(); err != nil {
		log.Warn("initial modifier sync failed", "error", err)
	}

	poller := engine.NewPoller(eng, params, log, met)

	log.Info("lyrad started",
		"version", version,
		"device", devName,
		"poll_interval_ms", params.PollIntervalMs())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var srv *ipc.Server
	if cfg.IPC.Enabled {
		handler := &daemonHandler{
			version:   version,
			startedAt: time.Now(),
			device:    devName,
			cfg:       cfg,
			params:    params,
			poller:    poller,
			met:       met,
			shutdown:  func() { shutdown <- syscall.SIGTERM },
		}
		srv = ipc.NewServer(ipc.ServerConfig{
			SocketPath:     cfg.IPC.SocketPath,
			Version:        version,
			ReadTimeout:    time.Duration(cfg.IPC.TimeoutSec) * time.Second,
			MaxConnections: cfg.IPC.MaxConnections,
		}, handler, log)
		handler.broadcast = srv.Broadcast
		if err := srv.Start(); err != nil {
			fatal("start ipc server: %v", err)
		}
		defer srv.Stop()

		eng.OnPowerButton = func(down bool) {
			srv.Broadcast(&ipc.Event{
				Type:      ipc.EventPowerButton,
				Timestamp: time.Now(),
				Data:      map[string]any{"down": down},
			})
		}
		eng.OnOverflow = func() {
			srv.Broadcast(&ipc.Event{Type: ipc.EventFIFOOverflow, Timestamp: time.Now()})
		}
	}

	// Polling starts only after the notification hooks are in place.
	poller.Start()
	defer poller.Stop()

	if cfg.Debug.ListenAddr != "" {
		go serveDebug(cfg.Debug.ListenAddr, dev, met, log)
	}

	if cfg.Sleep.Enabled {
		monitor := sleep.NewMonitor(poller, log)
		go func() {
			if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("sleep monitor stopped", "error", err)
			}
		}()
	}

	// Runtime parameter changes via config edits; structural changes
	// (device, keymap, sockets) still need a restart.
	watcher := config.NewWatcher(cfgPath, log, func(next *config.Config) {
		if err := applyParams(params, next); err != nil {
			log.Warn("reloaded config has bad parameters", "error", err)
			return
		}
		if srv != nil {
			srv.Broadcast(&ipc.Event{Type: ipc.EventConfigReload, Timestamp: time.Now()})
		}
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("config watcher stopped", "error", err)
		}
	}()

	sig := <-shutdown
	log.Info("shutting down", "signal", sig.String())
	if srv != nil {
		srv.Broadcast(&ipc.Event{Type: ipc.EventDaemonStopped, Timestamp: time.Now()})
	}
}

func applyParams(params *engine.Params, cfg *config.Config) error {
	if err := params.SetSpeedX(cfg.Mouse.SpeedX); err != nil {
		return err
	}
	if err := params.SetSpeedY(cfg.Mouse.SpeedY); err != nil {
		return err
	}
	return params.SetPollIntervalMs(cfg.Poll.IntervalMs)
}

func serveDebug(addr string, dev transport.RegisterReader, met *metrics.Driver, log *slog.Logger) {
	checker := health.NewChecker()
	checker.Register("device", true, func(ctx context.Context) health.CheckResult {
		if _, err := dev.ReadRegister(transport.RegKeyStatus); err != nil {
			return health.Unhealthy(err)
		}
		return health.Healthy("controller responding")
	})
	checker.Register("poller", true, func(ctx context.Context) health.CheckResult {
		if met.Suspended.Value() == 1 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "polling suspended"}
		}
		return health.Healthy("")
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().Handler())
	mux.Handle("/healthz", checker.Handler())

	log.Info("debug endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("debug endpoint failed", "error", err)
	}
}

func cmdProbe(args []string) {
	cfg, _ := loadConfig(args, "probe")

	dev, devName, err := openDevice(cfg)
	if err != nil {
		fatal("open controller: %v", err)
	}
	if closer, ok := dev.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	fmt.Printf("device: %s\n\n", devName)
	regs := []struct {
		addr uint8
		name string
	}{
		{transport.RegKeyStatus, "key status"},
		{transport.RegMouseX, "mouse delta x"},
		{transport.RegMouseY, "mouse delta y"},
		{transport.RegIntStatus, "interrupt status"},
	}
	for _, r := range regs {
		v, err := dev.ReadRegister(r.addr)
		if err != nil {
			fmt.Printf("  0x%02x  %-16s  read failed: %v\n", r.addr, r.name, err)
			continue
		}
		fmt.Printf("  0x%02x  %-16s  0x%02x\n", r.addr, r.name, v)
		if r.addr == transport.RegKeyStatus {
			fmt.Printf("        shift=%t alt=%t fn=%t fifo_depth=%d\n",
				v&transport.KeyStatusShift != 0,
				v&transport.KeyStatusAlt != 0,
				v&transport.KeyStatusFn != 0,
				transport.FIFODepth(v))
		}
	}
}

func cmdStatus(args []string) {
	var socketPath string
	fs := newFlagSet("status")
	fs.StringVar(&socketPath, "socket", "", "daemon socket path")
	fs.Parse(args)

	if socketPath == "" {
		socketPath = config.DefaultConfig().IPC.SocketPath
	}

	c, err := ipc.Dial(socketPath, ipc.DialOptions{ClientName: "lyrad", ClientVersion: version})
	if err != nil {
		fatal("%v", err)
	}
	defer c.Close()

	var status ipc.StatusResponse
	if err := c.Request(ipc.MsgStatusRequest, nil, ipc.MsgStatusResponse, &status); err != nil {
		fatal("%v", err)
	}
	printStatus(&status)
}
