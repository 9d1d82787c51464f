// Package transport defines the event vocabulary shared by clients and the
// relay, and the websocket connection that carries it. Every frame is a JSON
// Event naming its type plus a type-specific payload.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"cryptochat/internal/crypto"
)

type EventType string

const (
	EventUserLogin      EventType = "user_login"
	EventUserOnline     EventType = "user_online"
	EventUserOffline    EventType = "user_offline"
	EventInitiateChat   EventType = "initiate_chat"
	EventChatInvitation EventType = "chat_invitation"
	EventJoinChat       EventType = "join_chat"
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventSendMessage    EventType = "send_message"
	EventNewMessage     EventType = "new_message"
	EventLeaveChat      EventType = "leave_chat"
	EventChatError      EventType = "chat_error"
)

// Event is the wire frame: a type tag plus its raw payload.
type Event struct {
	Type    EventType       `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event of the given type.
func NewEvent(t EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{Type: t, Payload: raw}, nil
}

// Decode unmarshals the event payload into out.
func (e Event) Decode(out any) error {
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// UserLogin announces the connecting user to the relay.
type UserLogin struct {
	Username string `json:"username"`
}

// Presence is the payload of user_online and user_offline broadcasts.
type Presence struct {
	Username string `json:"username"`
}

// InitiateChat asks the relay to create a room. The initiator generates the
// room key and wraps it per participant (itself included); the relay only ever
// sees the wrapped copies.
type InitiateChat struct {
	Initiator    string            `json:"initiator"`
	Participants []string          `json:"participants"`
	KeyEnvelopes map[string][]byte `json:"key_envelopes"`
}

// ChatInvitation delivers one participant's key envelope together with the
// server-assigned chat id.
type ChatInvitation struct {
	ChatID       string   `json:"chat_id"`
	Initiator    string   `json:"initiator"`
	Participants []string `json:"participants"`
	EncryptedKey []byte   `json:"encrypted_key"`
}

// JoinChat confirms membership after a successful key unwrap.
type JoinChat struct {
	Username string `json:"username"`
	ChatID   string `json:"chat_id"`
}

// Membership is the payload of user_joined and user_left broadcasts.
type Membership struct {
	Username string `json:"username"`
	ChatID   string `json:"chat_id"`
}

// LeaveChat asks the relay to drop the sender from a room.
type LeaveChat struct {
	Username string `json:"username"`
	ChatID   string `json:"chat_id"`
}

// MessageEnvelope is the signed ciphertext container carried by send_message
// and new_message. The signature covers the plaintext, so verification after
// decryption also catches ciphertext tampering. Envelopes are append-only;
// nothing mutates them after creation.
type MessageEnvelope struct {
	ChatID           string        `json:"chat_id"`
	Sender           string        `json:"username"`
	EncryptedMessage []byte        `json:"encrypted_message"`
	Signature        []byte        `json:"signature"`
	SignatureType    crypto.Scheme `json:"signature_type"`
	Timestamp        time.Time     `json:"timestamp"`
}

// ChatError reports a partial delivery: the room stays usable for the
// reachable participants while OfflineUsers names the unreachable subset.
type ChatError struct {
	ChatID       string   `json:"chat_id,omitempty"`
	Message      string   `json:"message"`
	OfflineUsers []string `json:"offline_users,omitempty"`
}
