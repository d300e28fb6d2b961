// Package composer orchestrates outbound messages: capture, optional media
// upload, send, optimistic draft clear, and rollback on failure.
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/velora/pushsync/internal/event"
	"go.uber.org/zap"
)

// DefaultMaxTextLength caps outbound message text.
const DefaultMaxTextLength = 2000

// ErrEmptyMedia marks an attachment with no payload, e.g. a voice recording
// that captured zero chunks. Treated as an upload failure, never sent.
var ErrEmptyMedia = errors.New("attachment has no data")

// ErrSendInProgress is returned when Send is called re-entrantly.
var ErrSendInProgress = errors.New("a send is already in progress")

// ValidationError rejects a message before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// State is the composition pipeline phase.
type State string

const (
	Idle           State = "idle"
	Capturing      State = "capturing"
	UploadingMedia State = "uploading_media"
	Sending        State = "sending"
	Sent           State = "sent"
	Failed         State = "failed"
)

// Attachment is media picked or recorded by the user, not yet uploaded.
type Attachment struct {
	Kind     event.MessageKind // image, file, or voice
	Filename string
	Data     []byte
}

// Location is a coordinate payload for location messages.
type Location struct {
	Lat float64
	Lng float64
}

// SendOptions selects a non-text message kind.
type SendOptions struct {
	Attachment *Attachment
	Location   *Location
}

// Draft is the in-progress, not-yet-sent message content. Owned exclusively
// by the composer.
type Draft struct {
	Text    string
	Pending *Attachment
}

// Uploader pushes media to the platform before the message referencing it
// is sent.
type Uploader interface {
	UploadMedia(ctx context.Context, kind event.MessageKind, filename string, data io.Reader) (url string, err error)
}

// OutboundMessage is the payload handed to the send collaborator.
type OutboundMessage struct {
	ClientID string
	Text     string
	Kind     event.MessageKind
	MediaURL string
	Location *Location
}

// Sender delivers the composed message. The resulting conversation change
// arrives later as a stream event, not in the response.
type Sender interface {
	SendMessage(ctx context.Context, msg OutboundMessage) error
}

// Composer drives the send pipeline. A failed send restores the draft text
// verbatim so the user never loses input.
type Composer struct {
	uploader Uploader
	sender   Sender
	maxText  int
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	draft   Draft
	sending bool
	lastErr error
}

// New creates an idle composer. maxTextLength <= 0 selects the default cap.
func New(uploader Uploader, sender Sender, maxTextLength int, logger *zap.Logger) *Composer {
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		uploader: uploader,
		sender:   sender,
		maxText:  maxTextLength,
		logger:   logger,
		state:    Idle,
	}
}

// State returns the current pipeline phase.
func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error from the most recent failed send, if any.
func (c *Composer) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Draft returns a copy of the current draft.
func (c *Composer) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetText updates the draft text as the user types.
func (c *Composer) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Text = text
	c.state = Capturing
}

// AttachMedia stages a picked attachment on the draft.
func (c *Composer) AttachMedia(att Attachment) error {
	switch att.Kind {
	case event.KindImage, event.KindFile, event.KindVoice:
	default:
		return &ValidationError{Reason: fmt.Sprintf("kind %q is not attachable media", att.Kind)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Pending = &att
	c.state = Capturing
	return nil
}

// AttachVoice stages a finalized voice recording blob on the draft.
func (c *Composer) AttachVoice(blob []byte) error {
	return c.AttachMedia(Attachment{
		Kind:     event.KindVoice,
		Filename: "voice-" + uuid.NewString() + ".ogg",
		Data:     blob,
	})
}

// ClearAttachment drops the staged attachment.
func (c *Composer) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Pending = nil
}

// Send validates, uploads staged media, and delivers the message. The draft
// is cleared as soon as the send is dispatched (optimistic); on failure the
// pre-send text is restored and the composer returns to Capturing.
func (c *Composer) Send(ctx context.Context, text string, opts *SendOptions) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInProgress
	}

	att := c.draft.Pending
	var loc *Location
	if opts != nil {
		if opts.Attachment != nil {
			att = opts.Attachment
		}
		loc = opts.Location
	}

	if err := c.validate(text, att, loc); err != nil {
		c.mu.Unlock()
		return err
	}

	prevText := text
	c.sending = true
	c.lastErr = nil
	if att != nil {
		c.state = UploadingMedia
	} else {
		c.state = Sending
	}
	c.mu.Unlock()

	msg := OutboundMessage{
		ClientID: uuid.NewString(),
		Text:     text,
		Kind:     event.KindText,
	}

	if att != nil {
		url, err := c.upload(ctx, att)
		if err != nil {
			c.fail(prevText, att, err)
			return err
		}
		msg.Kind = att.Kind
		msg.MediaURL = url
		c.mu.Lock()
		c.state = Sending
		c.mu.Unlock()
	}

	if loc != nil {
		msg.Kind = event.KindLocation
		msg.Location = loc
	}

	// Optimistic: the draft clears before the server answers. The matching
	// new_message echo on the stream is a no-op for the store.
	c.mu.Lock()
	c.draft = Draft{}
	c.mu.Unlock()

	if err := c.sender.SendMessage(ctx, msg); err != nil {
		err = fmt.Errorf("send message: %w", err)
		c.fail(prevText, att, err)
		return err
	}

	c.mu.Lock()
	c.sending = false
	c.state = Sent
	c.mu.Unlock()
	c.logger.Info("message sent",
		zap.String("client_id", msg.ClientID),
		zap.String("kind", string(msg.Kind)))
	return nil
}

func (c *Composer) validate(text string, att *Attachment, loc *Location) error {
	if utf8.RuneCountInString(text) > c.maxText {
		return &ValidationError{Reason: fmt.Sprintf("text exceeds %d characters", c.maxText)}
	}
	if att != nil && loc != nil {
		return &ValidationError{Reason: "message cannot carry both media and location"}
	}
	if loc != nil {
		if strings.TrimSpace(text) != "" {
			return &ValidationError{Reason: "location messages carry no text"}
		}
		return nil
	}
	if strings.TrimSpace(text) == "" && att == nil {
		return &ValidationError{Reason: "empty text requires an attachment"}
	}
	return nil
}

// upload pushes the attachment; it always completes before the send starts.
func (c *Composer) upload(ctx context.Context, att *Attachment) (string, error) {
	if len(att.Data) == 0 {
		return "", fmt.Errorf("upload %s: %w", att.Kind, ErrEmptyMedia)
	}
	url, err := c.uploader.UploadMedia(ctx, att.Kind, att.Filename, bytes.NewReader(att.Data))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", att.Kind, err)
	}
	return url, nil
}

// fail rolls the draft back to the pre-send input and surfaces the error.
func (c *Composer) fail(prevText string, att *Attachment, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.lastErr = err
	c.draft.Text = prevText
	c.draft.Pending = att
	// Failed is transient: the user is immediately back in Capturing with
	// their input intact.
	c.state = Capturing
	c.logger.Warn("send failed, draft restored", zap.Error(err))
}
