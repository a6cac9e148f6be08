// Manual smoke test for the monitor stream: attaches to a session's
// websocket endpoint and mirrors the terminal to stdout. Run the server
// with MONITOR_PORT set, open a session via ssh_connect, then:
//
//	go run scripts/watch-session.go -addr localhost:8081 -session build
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/sshterm-mcp/internal/history"
)

var (
	addr        = flag.String("addr", "localhost:8081", "Monitor server address")
	sessionName = flag.String("session", "", "Session to watch")
)

func main() {
	flag.Parse()
	if *sessionName == "" {
		log.Fatal("usage: watch-session -addr host:port -session name")
	}

	url := fmt.Sprintf("ws://%s/sessions/%s/stream", *addr, *sessionName)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Failed to attach to %s: %v", url, err)
	}
	defer conn.Close()
	log.Printf("Attached to session %q, replaying history...", *sessionName)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		os.Exit(0)
	}()

	for {
		var c history.Chunk
		if err := conn.ReadJSON(&c); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Println("Session closed, stream ended")
				return
			}
			log.Fatalf("Stream error: %v", err)
		}
		os.Stdout.Write(c.Bytes)
	}
}
