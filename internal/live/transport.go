package live

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// StreamConn is the subset of a websocket connection the coordinator needs.
// *websocket.Conn satisfies it directly.
type StreamConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens stream connections. Swappable so the reconnect loop can be
// driven by a fake in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (StreamConn, error)
}

type wsDialer struct{}

// NewWSDialer returns the production gorilla/websocket dialer.
func NewWSDialer() Dialer { return wsDialer{} }

func (wsDialer) Dial(ctx context.Context, url string) (StreamConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}
