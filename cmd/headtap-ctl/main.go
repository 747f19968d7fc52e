package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli"
)

// ============================================================================
// headtap-ctl - Command-line IPC Client
// ============================================================================
// Sends requests to headtapd over its unix socket.
//
//   headtap-ctl press
//   headtap-ctl trigger 2
//   headtap-ctl set-target 1 540 1200
//   headtap-ctl clear-target 2
// ============================================================================

const defaultSocket = "/tmp/headtap.sock"

// Request payloads (the daemon is a separate main package).
type buttonPressed struct {
	Source string `json:"source,omitempty"`
}

type triggerButton struct {
	Button int `json:"button"`
}

type setTarget struct {
	Button int `json:"button"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

type clearTarget struct {
	Button int `json:"button"`
}

// envelope wraps requests for JSON
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ipcResponse represents the daemon's response
type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	app := cli.NewApp()
	app.Name = "headtap-ctl"
	app.Usage = "control headtapd via IPC"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "socket",
			Usage:  "Unix domain socket path",
			Value:  defaultSocket,
			EnvVar: "HEADTAP_SOCKET",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "Time to wait for the daemon's reply",
			Value: 2 * time.Second,
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "press",
			Usage:  "Simulate one headset button press (goes through click classification)",
			Action: runPress,
		},
		{
			Name:      "trigger",
			Usage:     "Tap the target of a button immediately",
			ArgsUsage: "<button>",
			Action:    runTrigger,
		},
		{
			Name:      "set-target",
			Aliases:   []string{"set"},
			Usage:     "Set the screen coordinate a button taps",
			ArgsUsage: "<button> <x> <y>",
			Action:    runSetTarget,
		},
		{
			Name:      "clear-target",
			Aliases:   []string{"clear"},
			Usage:     "Unset a button's target",
			ArgsUsage: "<button>",
			Action:    runClearTarget,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("headtap-ctl failed", "error", err)
		os.Exit(1)
	}
}

func runPress(c *cli.Context) error {
	return send(c, "button_pressed", buttonPressed{Source: "headtap-ctl"})
}

func runTrigger(c *cli.Context) error {
	n, err := intArgs(c, "button")
	if err != nil {
		return err
	}
	return send(c, "trigger_button", triggerButton{Button: n[0]})
}

func runSetTarget(c *cli.Context) error {
	n, err := intArgs(c, "button", "x", "y")
	if err != nil {
		return err
	}
	return send(c, "set_target", setTarget{Button: n[0], X: n[1], Y: n[2]})
}

func runClearTarget(c *cli.Context) error {
	n, err := intArgs(c, "button")
	if err != nil {
		return err
	}
	return send(c, "clear_target", clearTarget{Button: n[0]})
}

// intArgs parses exactly len(names) integer positional arguments.
func intArgs(c *cli.Context, names ...string) ([]int, error) {
	if c.NArg() != len(names) {
		_ = cli.ShowCommandHelp(c, c.Command.Name)
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", c.Command.Name, len(names), c.NArg())
	}
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(c.Args().Get(i))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, c.Args().Get(i), err)
		}
		out[i] = v
	}
	return out, nil
}

func send(c *cli.Context, typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	line, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	socketPath := c.GlobalString("socket")
	conn, err := net.DialTimeout("unix", socketPath, c.GlobalDuration("timeout"))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.GlobalDuration("timeout")))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return errors.New("daemon error: " + resp.Error)
	}

	fmt.Println("ok")
	return nil
}
