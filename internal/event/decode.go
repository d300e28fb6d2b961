package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned by Decode for frames whose type field is not
// recognized. Callers drop these frames; the protocol is forward-compatible.
var ErrUnknownType = errors.New("unknown event type")

// envelope is the superset of fields across all frame types.
type envelope struct {
	Type           Type             `json:"type"`
	ConversationID string           `json:"conversationId"`
	Message        *MessagePreview  `json:"message"`
	Status         WithdrawalStatus `json:"status"`
	ApprovedAmount *float64         `json:"approvedAmount"`
	AdminNote      string           `json:"adminNote"`
}

// Decode parses a single JSON frame into a typed Event.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case TypeConnected:
		return Connected{}, nil
	case TypeNewMessage:
		if env.ConversationID == "" {
			return nil, errors.New("new_message frame missing conversationId")
		}
		if env.Message == nil {
			return nil, errors.New("new_message frame missing message")
		}
		return NewMessage{ConversationID: env.ConversationID, Message: *env.Message}, nil
	case TypeMessagesRead:
		if env.ConversationID == "" {
			return nil, errors.New("messages_read frame missing conversationId")
		}
		return MessagesRead{ConversationID: env.ConversationID}, nil
	case TypeWithdrawalRequested:
		return WithdrawalRequested{}, nil
	case TypeWithdrawalProcessed:
		if env.Status != WithdrawalApproved && env.Status != WithdrawalRejected {
			return nil, fmt.Errorf("withdrawal_processed frame has invalid status %q", env.Status)
		}
		return WithdrawalProcessed{
			Status:         env.Status,
			ApprovedAmount: env.ApprovedAmount,
			AdminNote:      env.AdminNote,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}
