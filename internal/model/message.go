package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is the tag carried by every frame on the relay socket.
type MessageType string

const (
	TypeSystem       MessageType = "system_message"
	TypeUser         MessageType = "user_message"
	TypeProblem      MessageType = "problem"
	TypeAnswer       MessageType = "answer"
	TypeExplanation  MessageType = "explanation"
	TypeStatusUpdate MessageType = "status_update"
)

// Known senders
const (
	SenderUser       = "user"
	SenderSystem     = "system"
	SenderSupervisor = "supervisor"
	SenderAgent1     = "agent1"
	SenderAgent2     = "agent2"
)

var (
	// ErrMalformedFrame is returned when a frame is not a JSON object.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType is returned when a frame carries a missing or unrecognized type tag.
	ErrUnknownType = errors.New("unknown message type")
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeSystem, TypeUser, TypeProblem, TypeAnswer, TypeExplanation, TypeStatusUpdate:
		return true
	}
	return false
}

// Message represents a chat message held in the relay buffer
type Message struct {
	ID             string      `json:"id,omitempty"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Sender         string      `json:"sender"`
	Timestamp      string      `json:"timestamp,omitempty"`
	ParentID       string      `json:"parentId,omitempty"`
	HasExplanation bool        `json:"hasExplanation,omitempty"`
}

// NewUserMessage builds an outgoing message authored by the local user.
func NewUserMessage(text string) Message {
	return Message{Type: TypeUser, Content: text, Sender: SenderUser}
}

// NewSystemMessage builds a locally generated notice.
func NewSystemMessage(text string) Message {
	return Message{Type: TypeSystem, Content: text, Sender: SenderSystem}
}

// ParseMessage decodes an inbound frame. Relay-assigned fields (id, parentId,
// hasExplanation) are discarded so the buffer stays the only source of them.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !msg.Type.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}

	msg.ID = ""
	msg.ParentID = ""
	msg.HasExplanation = false
	return msg, nil
}

// Outbound returns the wire form of m, without the relay-assigned fields.
func (m Message) Outbound() Message {
	return Message{
		Type:      m.Type,
		Content:   m.Content,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
	}
}

// ConnectionState is the relay's view of its socket.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connected    ConnectionState = "connected"
)

// ServiceStatus holds one up/down flag per backend service.
type ServiceStatus struct {
	Supervisor bool `json:"supervisor"`
	Agent1     bool `json:"agent1"`
	Agent2     bool `json:"agent2"`
}

// SnapshotEvent is pushed to bridge WebSocket clients whenever relay state changes
type SnapshotEvent struct {
	Type             string    `json:"type"`
	Connected        bool      `json:"connected"`
	ShowExplanations bool      `json:"showExplanations"`
	Messages         []Message `json:"messages"`
}
