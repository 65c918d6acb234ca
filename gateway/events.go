// Package gateway terminates client connections and speaks the JSON
// event protocol. One handler instance runs per live connection.
package gateway

import (
	"encoding/json"
	"time"

	"chat-hub/domain/event"
	"chat-hub/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// InboundEvent is the closed set of events a client may send. Decoding
// yields exactly one variant; anything else is dropped by the caller.
type InboundEvent interface {
	isInbound()
}

type ChatMessageIn struct {
	Message string
}

func (ChatMessageIn) isInbound() {}

type TypingIn struct {
	IsTyping bool
}

func (TypingIn) isInbound() {}

// inboundEnvelope is the raw wire shape. Pointer fields distinguish
// "absent" from zero values before the envelope is narrowed to a variant.
type inboundEnvelope struct {
	Type     string  `json:"type" validate:"required"`
	Message  *string `json:"message"`
	IsTyping *bool   `json:"is_typing"`
}

// DecodeInbound narrows raw bytes to one InboundEvent variant.
// Malformed payloads and unknown types return an error the caller
// ignores silently; they never affect other participants.
func DecodeInbound(data []byte) (InboundEvent, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.ErrMalformedEvent
	}
	if err := validate.Struct(envelope); err != nil {
		return nil, errors.ErrMalformedEvent
	}

	switch envelope.Type {
	case "chat_message":
		if envelope.Message == nil {
			return nil, errors.ErrMalformedEvent
		}
		return ChatMessageIn{Message: *envelope.Message}, nil
	case "typing":
		if envelope.IsTyping == nil {
			return nil, errors.ErrMalformedEvent
		}
		return TypingIn{IsTyping: *envelope.IsTyping}, nil
	default:
		return nil, errors.ErrUnknownEventType
	}
}

type OutboundChatMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"message_id"`
}

type OutboundTyping struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	IsTyping bool   `json:"is_typing"`
}

type OutboundError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ToOutbound maps a fanned-out domain event to its wire representation.
// The second return is false for event kinds this gateway does not ship
// to clients.
func ToOutbound(e event.DomainEvent) (any, bool) {
	switch evt := e.(type) {
	case event.MessagePosted:
		return OutboundChatMessage{
			Type:      "chat_message",
			Message:   evt.Content,
			Sender:    evt.AuthorName,
			Timestamp: evt.At.UTC().Format(time.RFC3339Nano),
			MessageID: evt.ID.String(),
		}, true
	case event.TypingChanged:
		return OutboundTyping{
			Type:     "typing",
			User:     evt.UserName,
			IsTyping: evt.IsTyping,
		}, true
	default:
		return nil, false
	}
}
