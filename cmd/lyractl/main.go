// lyractl - Control a running lyrad daemon
//
//	lyractl status                      Show daemon status
//	lyractl config                      Print the active configuration
//	lyractl set <param> <value>         Change a runtime parameter
//	lyractl suspend | resume            Pause or restart controller polling
//	lyractl watch                       Stream daemon events
//	lyractl shutdown                    Ask the daemon to exit
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"lyrad/internal/config"
	"lyrad/internal/ipc"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		cmdStatus(os.Args[2:])
	case "config":
		cmdConfig(os.Args[2:])
	case "set":
		cmdSet(os.Args[2:])
	case "suspend":
		cmdPollControl(os.Args[2:], true)
	case "resume":
		cmdPollControl(os.Args[2:], false)
	case "watch":
		cmdWatch(os.Args[2:])
	case "shutdown":
		cmdShutdown(os.Args[2:])
	case "ping":
		cmdPing(os.Args[2:])
	case "version":
		fmt.Println("lyractl " + version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`lyractl - control a running lyrad daemon

USAGE:
    lyractl <command> [options]

COMMANDS:
    status     Show daemon status
    config     Print the active configuration
    set        Change a runtime parameter:
                   set speed-x <10-500>
                   set speed-y <10-500>
                   set poll-interval <5-100>
    suspend    Pause controller polling
    resume     Restart controller polling
    watch      Stream daemon events until interrupted
    shutdown   Ask the daemon to exit
    ping       Check that the daemon answers
    version    Print the version
    help       Show this help message

OPTIONS:
    -socket <path>    Daemon socket path (default from config)`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "lyractl: "+format+"\n", args...)
	os.Exit(1)
}

// dial parses the common -socket flag from args and connects, returning the
// connection and any remaining positional arguments.
func dial(cmd string, args []string) (*ipc.Conn, []string) {
	var socketPath string
	fs := flag.NewFlagSet("lyractl "+cmd, flag.ExitOnError)
	fs.StringVar(&socketPath, "socket", "", "daemon socket path")
	fs.Parse(args)

	if socketPath == "" {
		socketPath = config.DefaultConfig().IPC.SocketPath
	}

	c, err := ipc.Dial(socketPath, ipc.DialOptions{ClientName: "lyractl", ClientVersion: version})
	if err != nil {
		fatal("%v", err)
	}
	return c, fs.Args()
}

func cmdStatus(args []string) {
	c, _ := dial("status", args)
	defer c.Close()

	var status ipc.StatusResponse
	if err := c.Request(ipc.MsgStatusRequest, nil, ipc.MsgStatusResponse, &status); err != nil {
		fatal("%v", err)
	}

	fmt.Printf("lyrad %s on %s, up %s\n", status.Version, status.Device, status.Uptime)
	state := "active"
	if status.Suspended {
		state = "suspended"
	}
	fmt.Printf("  polling:     %s (%d ms interval)\n", state, status.PollIntervalMs)
	fmt.Printf("  mouse speed: x=%d%% y=%d%%\n", status.SpeedX, status.SpeedY)
	fmt.Printf("  modifiers:   shift=%t alt=%t fn=%t\n", status.Shift, status.Alt, status.Fn)
	fmt.Printf("  held keys:   %d\n", status.HeldKeys)
	fmt.Printf("  counters:    cycles=%d keys=%d mouse=%d errors=%d overflows=%d\n",
		status.PollCycles, status.KeyEvents, status.MouseSamples,
		status.TransportErrors, status.FIFOOverflows)
}

func cmdConfig(args []string) {
	c, _ := dial("config", args)
	defer c.Close()

	var resp ipc.GetConfigResponse
	if err := c.Request(ipc.MsgGetConfig, nil, ipc.MsgGetConfigResp, &resp); err != nil {
		fatal("%v", err)
	}

	sections := make([]string, 0, len(resp.Config))
	for name := range resp.Config {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		raw, err := json.MarshalIndent(resp.Config[name], "", "  ")
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s: %s\n", name, raw)
	}
}

// paramNames maps the CLI spelling to the wire name.
var paramNames = map[string]string{
	"speed-x":       "speed_x",
	"speed-y":       "speed_y",
	"poll-interval": "poll_interval_ms",
}

func cmdSet(args []string) {
	c, rest := dial("set", args)
	defer c.Close()

	if len(rest) != 2 {
		fatal("usage: lyractl set <speed-x|speed-y|poll-interval> <value>")
	}
	name, ok := paramNames[rest[0]]
	if !ok {
		fatal("unknown parameter %q", rest[0])
	}
	value, err := strconv.Atoi(rest[1])
	if err != nil {
		fatal("invalid value %q", rest[1])
	}

	var resp ipc.SetParamResponse
	if err := c.Request(ipc.MsgSetParam, &ipc.SetParamRequest{Name: name, Value: value},
		ipc.MsgSetParamResp, &resp); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%s = %d\n", rest[0], value)
}

func cmdPollControl(args []string, suspend bool) {
	cmd, reqType, respType := "resume", ipc.MsgResume, ipc.MsgResumeResp
	if suspend {
		cmd, reqType, respType = "suspend", ipc.MsgSuspend, ipc.MsgSuspendResp
	}

	c, _ := dial(cmd, args)
	defer c.Close()

	var resp ipc.AckResponse
	if err := c.Request(reqType, nil, respType, &resp); err != nil {
		fatal("%v", err)
	}
	if suspend {
		fmt.Println("polling suspended")
	} else {
		fmt.Println("polling resumed")
	}
}

var eventNames = map[ipc.EventType]string{
	ipc.EventSuspended:     "suspended",
	ipc.EventResumed:       "resumed",
	ipc.EventParamChanged:  "param-changed",
	ipc.EventConfigReload:  "config-reload",
	ipc.EventPowerButton:   "power-button",
	ipc.EventFIFOOverflow:  "fifo-overflow",
	ipc.EventDaemonStopped: "daemon-stopped",
}

func cmdWatch(args []string) {
	c, _ := dial("watch", args)
	defer c.Close()

	fmt.Println("watching daemon events (Ctrl-C to stop)")
	err := c.Subscribe(nil, func(ev *ipc.Event) {
		name, ok := eventNames[ev.Type]
		if !ok {
			name = fmt.Sprintf("event-0x%04x", uint16(ev.Type))
		}
		line := fmt.Sprintf("%s  %s", ev.Timestamp.Format("15:04:05"), name)
		if ev.Data != nil {
			raw, _ := json.Marshal(ev.Data)
			line += "  " + string(raw)
		}
		fmt.Println(line)
	})
	if err != nil {
		fatal("%v", err)
	}
}

func cmdShutdown(args []string) {
	c, _ := dial("shutdown", args)
	defer c.Close()

	var resp ipc.AckResponse
	if err := c.Request(ipc.MsgShutdown, nil, ipc.MsgShutdown, &resp); err != nil {
		fatal("%v", err)
	}
	fmt.Println("shutdown requested")
}

func cmdPing(args []string) {
	c, _ := dial("ping", args)
	defer c.Close()

	// Dial already performed the handshake, so reaching this point means the
	// daemon is alive and speaking our protocol.
	fmt.Println("daemon is up")
}
