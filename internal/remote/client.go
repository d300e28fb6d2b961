// Package remote talks to the platform's HTTP endpoints: media upload,
// message send, and the full-list conversation refetch.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/velora/pushsync/internal/composer"
	"github.com/velora/pushsync/internal/convo"
	"github.com/velora/pushsync/internal/event"
	"go.uber.org/zap"
)

const (
	uploadPath        = "/api/chat/upload"
	sendPath          = "/api/chat/send"
	conversationsPath = "/api/chat/conversations"

	requestTimeout = 30 * time.Second
)

// Client is the HTTP collaborator bundle. It satisfies composer.Uploader,
// composer.Sender, and convo.Refetcher.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

var (
	_ composer.Uploader = (*Client)(nil)
	_ composer.Sender   = (*Client)(nil)
	_ convo.Refetcher   = (*Client)(nil)
)

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

// okEnvelope is the {ok, ...} response shared by upload and send.
type okEnvelope struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// UploadMedia posts the binary payload as multipart with a type
// discriminator and returns the stored media URL.
func (c *Client) UploadMedia(ctx context.Context, kind event.MessageKind, filename string, data io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("type", string(kind)); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var env okEnvelope
	if err := c.do(req, &env); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if !env.OK {
		return "", fmt.Errorf("upload media rejected: %s", env.Error)
	}
	if env.URL == "" {
		return "", fmt.Errorf("upload media: response missing url")
	}
	return env.URL, nil
}

// sendRequest is the send endpoint's wire shape.
type sendRequest struct {
	Text        string   `json:"text"`
	MessageType string   `json:"messageType,omitempty"`
	MediaURL    string   `json:"mediaUrl,omitempty"`
	MediaType   string   `json:"mediaType,omitempty"`
	LocationLat *float64 `json:"locationLat,omitempty"`
	LocationLng *float64 `json:"locationLng,omitempty"`
}

// SendMessage delivers a composed message. A success response carries no
// state: the resulting conversation change arrives via the stream.
func (c *Client) SendMessage(ctx context.Context, msg composer.OutboundMessage) error {
	payload := sendRequest{
		Text:        msg.Text,
		MessageType: string(msg.Kind),
	}
	if msg.MediaURL != "" {
		payload.MediaURL = msg.MediaURL
		payload.MediaType = string(msg.Kind)
	}
	if msg.Location != nil {
		payload.LocationLat = &msg.Location.Lat
		payload.LocationLng = &msg.Location.Lng
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var env okEnvelope
	if err := c.do(req, &env); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !env.OK {
		return fmt.Errorf("send message rejected: %s", env.Error)
	}
	return nil
}

// conversationDTO is the refetch endpoint's wire shape.
type conversationDTO struct {
	ID             string                `json:"id"`
	CounterpartID  string                `json:"counterpartId"`
	CounterpartRef string                `json:"counterpartRef"`
	LastMessage    *event.MessagePreview `json:"lastMessage"`
	LastActivityAt time.Time             `json:"lastActivityAt"`
	UnreadCount    int                   `json:"unreadCount"`
}

// FetchConversations pulls the full conversation list.
func (c *Client) FetchConversations(ctx context.Context) ([]convo.Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+conversationsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build refetch request: %w", err)
	}

	var dtos []conversationDTO
	if err := c.do(req, &dtos); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}

	out := make([]convo.Conversation, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, convo.Conversation{
			ID:             dto.ID,
			CounterpartID:  dto.CounterpartID,
			CounterpartRef: dto.CounterpartRef,
			LastMessage:    dto.LastMessage,
			LastActivityAt: dto.LastActivityAt,
			UnreadCount:    dto.UnreadCount,
		})
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s returned %s", req.Method, req.URL.Path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
