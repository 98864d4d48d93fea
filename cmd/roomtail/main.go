// roomtail joins a room with a session token and prints every shape
// event as it arrives. Useful for watching a live board from a terminal
// and for smoke-testing a deployed broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sketchdeck/sketchdeck/internal/board"
	"github.com/sketchdeck/sketchdeck/internal/protocol"
)

func main() {
	wsURL := flag.String("ws", "ws://localhost:8080/ws", "Broker websocket URL")
	httpBase := flag.String("http", "http://localhost:8080", "HTTP API base URL")
	token := flag.String("token", "", "Session token")
	roomID := flag.String("room", "", "Room id to watch")
	flag.Parse()

	if *token == "" || *roomID == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	session, err := board.Dial(ctx, *wsURL, *token, *roomID, printRenderer{})
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer session.Close()

	history := board.LoadHistory(ctx, *httpBase, *roomID)
	session.Store().Seed(history)
	fmt.Printf("watching room %s (%d shapes in history)\n", *roomID, len(history))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-session.Done():
		fmt.Println("connection closed")
	}
}

// printRenderer writes one line per redraw instead of drawing anything.
type printRenderer struct{}

func (printRenderer) Redraw(shapes []protocol.Shape, _ board.Viewport) {
	fmt.Printf("board now has %d shapes", len(shapes))
	if n := len(shapes); n > 0 {
		last := shapes[n-1]
		fmt.Printf(" (latest: %s %s)", last.Kind(), last.ShapeID())
	}
	fmt.Println()
}

func (printRenderer) Preview(protocol.Shape, board.Viewport) {}

func (printRenderer) Segment(protocol.Point, protocol.Point, board.Viewport) {}
