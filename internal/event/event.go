package event

import "time"

// Type discriminates stream event frames.
type Type string

const (
	TypeConnected           Type = "connected"
	TypeNewMessage          Type = "new_message"
	TypeMessagesRead        Type = "messages_read"
	TypeWithdrawalRequested Type = "withdrawal_requested"
	TypeWithdrawalProcessed Type = "withdrawal_processed"
)

// MessageKind classifies the media kind of a message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVoice    MessageKind = "voice"
	KindFile     MessageKind = "file"
	KindLocation MessageKind = "location"
)

// MessagePreview is the last-message summary carried by new_message frames.
// Immutable once constructed.
type MessagePreview struct {
	Text      string      `json:"text"`
	SenderID  string      `json:"senderId"`
	Kind      MessageKind `json:"messageType"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Event is a parsed stream frame. Concrete types cover every frame the
// server is known to send; adding a new Type requires a new concrete type
// so consumers with exhaustive switches surface the gap at review time.
type Event interface {
	Kind() Type
}

// Connected is sent by the server once per successful handshake.
type Connected struct{}

func (Connected) Kind() Type { return TypeConnected }

// NewMessage announces a message in a conversation.
type NewMessage struct {
	ConversationID string
	Message        MessagePreview
}

func (NewMessage) Kind() Type { return TypeNewMessage }

// MessagesRead announces that the counterpart read a conversation.
type MessagesRead struct {
	ConversationID string
}

func (MessagesRead) Kind() Type { return TypeMessagesRead }

// WithdrawalRequested announces a new pending wallet withdrawal.
type WithdrawalRequested struct{}

func (WithdrawalRequested) Kind() Type { return TypeWithdrawalRequested }

// WithdrawalStatus is the admin decision on a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// WithdrawalProcessed announces the admin decision on a withdrawal.
type WithdrawalProcessed struct {
	Status         WithdrawalStatus
	ApprovedAmount *float64
	AdminNote      string
}

func (WithdrawalProcessed) Kind() Type { return TypeWithdrawalProcessed }
