// Command dashboardtail is a sample operator CLI that subscribes to the
// dashboard_events channel and pretty-prints each event, wrapping long
// lines for a narrow terminal. It connects to a running matchengine's
// reference websocket collaborator rather than embedding the engine
// itself.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muesli/reflow/wordwrap"
)

type dashboardEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type dashboardPayload struct {
	Message   string  `json:"message"`
	Level     string  `json:"level"`
	GameMode  string  `json:"gameMode"`
	Action    string  `json:"action"`
	Timestamp float64 `json:"timestamp"`
}

func main() {
	addr := flag.String("addr", "localhost:9090", "dashboard websocket host:port")
	path := flag.String("path", "/dashboard", "dashboard websocket path")
	width := flag.Int("width", 100, "wrap width for printed lines")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: *path}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dashboardtail: connecting to %s: %v", u.String(), err)
	}
	defer conn.Close()

	fmt.Printf("connected to %s\n\n", u.String())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("dashboardtail: connection closed: %v", err)
			return
		}
		printEvent(data, *width)
	}
}

func printEvent(data []byte, width int) {
	var envelope dashboardEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		fmt.Println(wordwrap.String(string(data), width))
		return
	}

	var payload dashboardPayload
	_ = json.Unmarshal(envelope.Payload, &payload)

	ts := time.Unix(int64(payload.Timestamp), 0).Format(time.Kitchen)

	line := fmt.Sprintf("[%s] %s", ts, payload.Message)
	if payload.GameMode != "" {
		line = fmt.Sprintf("[%s] mode=%s action=%s %s", ts, payload.GameMode, payload.Action, payload.Message)
	}
	if payload.Level != "" {
		line = fmt.Sprintf("[%s][%s] %s", ts, payload.Level, line)
	}

	fmt.Println(wordwrap.String(line, width))
}
