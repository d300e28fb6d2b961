package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// FrameReader yields raw event frames from one live connection. Next blocks
// until a frame arrives or the connection dies.
type FrameReader interface {
	Next() ([]byte, error)
	Close() error
}

// Transport establishes push-stream connections. The Client owns the
// returned reader exclusively.
type Transport interface {
	Connect(ctx context.Context, url string) (FrameReader, error)
}

// SSETransport connects over HTTP server-sent events (text/event-stream).
type SSETransport struct {
	// HTTPClient must have no overall timeout: the connection is long-lived.
	HTTPClient *http.Client
}

// NewSSETransport returns an SSE transport with its own http.Client.
func NewSSETransport() *SSETransport {
	return &SSETransport{HTTPClient: &http.Client{}}
}

// Connect opens the stream and verifies the event-stream handshake.
func (t *SSETransport) Connect(ctx context.Context, url string) (FrameReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned content-type %q", ct)
	}

	return &sseReader{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

// sseReader parses text/event-stream framing: data lines accumulate until a
// blank line terminates the frame. Comment lines and non-data fields
// (event, id, retry) are skipped; only the data payload matters to this
// protocol.
type sseReader struct {
	body io.Closer
	r    *bufio.Reader
}

func (s *sseReader) Next() ([]byte, error) {
	var data [][]byte
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(data) == 0 {
				continue // keep-alive separator between frames
			}
			return bytes.Join(data, []byte("\n")), nil
		}
		if line[0] == ':' {
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			rest = bytes.TrimPrefix(rest, []byte(" "))
			data = append(data, rest)
		}
	}
}

func (s *sseReader) Close() error {
	return s.body.Close()
}
