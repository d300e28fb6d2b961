package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSETransportParsesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		fmt.Fprint(w, "event: message\nid: 42\ndata: {\"type\":\"messages_read\",\n")
		fmt.Fprint(w, "data: \"conversationId\":\"c1\"}\n\n")
	}))
	defer srv.Close()

	tr := NewSSETransport()
	reader, err := tr.Connect(context.Background(), srv.URL)
	require.NoError(t, err)
	defer reader.Close()

	frame, err := reader.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connected"}`, string(frame))

	frame, err = reader.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"messages_read","conversationId":"c1"}`, string(frame))
}

func TestSSETransportRejectsNonStreamResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tr := NewSSETransport()
	_, err := tr.Connect(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content-type")
}

func TestSSETransportRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewSSETransport()
	_, err := tr.Connect(context.Background(), srv.URL)
	require.Error(t, err)
}
