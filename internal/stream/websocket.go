package stream

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// WebSocketTransport connects over a websocket carrying one JSON frame per
// text message. Used by server-capable embedders where SSE is unavailable;
// the frame payloads are identical to the SSE data payloads.
type WebSocketTransport struct {
	Dialer *websocket.Dialer
}

// NewWebSocketTransport returns a websocket transport using the default dialer.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{Dialer: websocket.DefaultDialer}
}

// Connect dials the stream endpoint.
func (t *WebSocketTransport) Connect(ctx context.Context, url string) (FrameReader, error) {
	conn, resp, err := t.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &wsReader{conn: conn}, nil
}

type wsReader struct {
	conn *websocket.Conn
}

func (w *wsReader) Next() ([]byte, error) {
	for {
		kind, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
		// Binary and control payloads are not part of the protocol.
	}
}

func (w *wsReader) Close() error {
	return w.conn.Close()
}
