package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ws_listen connects to headtapd's feedback websocket and prints every event.
// With -raw the JSON frames are printed as received.

type envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3001/ws", "headtapd feedback websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// The server pings every 20s; answering is automatic, we only extend the deadline.
	var writeMu sync.Mutex
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			printEvent(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printEvent renders one feedback frame as a single line.
func printEvent(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}
	ts := env.Ts.Local().Format("15:04:05.000")

	var data map[string]any
	_ = json.Unmarshal(env.Data, &data)

	switch env.Type {
	case "state_init":
		pretty, _ := json.MarshalIndent(data, "", "  ")
		fmt.Printf("%s [STATE]\n%s\n", ts, pretty)
	case "click_classified":
		fmt.Printf("%s [CLICK] %v (%v presses) -> button %v\n", ts, data["action"], data["presses"], data["button"])
	case "button_triggered":
		fmt.Printf("%s [TAP] button %v at (%v, %v), dim %vms\n", ts, data["button"], data["x"], data["y"], data["dim_ms"])
	case "button_restored":
		fmt.Printf("%s [RESTORE] button %v\n", ts, data["button"])
	case "target_changed":
		if set, _ := data["set"].(bool); set {
			fmt.Printf("%s [TARGET] button %v -> (%v, %v)\n", ts, data["button"], data["x"], data["y"])
		} else {
			fmt.Printf("%s [TARGET] button %v cleared\n", ts, data["button"])
		}
	case "tap_failed":
		fmt.Printf("%s [TAP FAILED] button %v: %v\n", ts, data["button"], data["error"])
	default:
		fmt.Printf("%s [%s] %s\n", ts, env.Type, string(env.Data))
	}
}
