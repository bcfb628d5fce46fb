package domain

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates every event the fan-out layer relays. The set is
// closed: anything else coming off the bus is malformed.
type EventType string

const (
	TypeNewPost         EventType = "new_post"
	TypeDeletePost      EventType = "delete_post"
	TypeUpdatePostLikes EventType = "update_post_likes"
	TypeNewComment      EventType = "new_comment"
	TypeMessage         EventType = "message"
	TypeTyping          EventType = "typing"
)

func (t EventType) Valid() bool {
	switch t {
	case TypeNewPost, TypeDeletePost, TypeUpdatePostLikes, TypeNewComment,
		TypeMessage, TypeTyping:
		return true
	}
	return false
}

// Broadcast reports whether the event targets the shared feed room rather
// than a single user's inbox.
func (t EventType) Broadcast() bool {
	switch t {
	case TypeNewPost, TypeDeletePost, TypeUpdatePostLikes, TypeNewComment:
		return true
	}
	return false
}

// Event is the wire record relayed between producers and connections.
// Events are transient: decoded off the bus, resolved to one room,
// re-encoded to every member, never persisted.
//
// Chat messages carry ids in snake_case; typing indicators use camelCase
// (receiverId/senderId) — both spellings exist on the wire and are kept.
type Event struct {
	Type EventType `json:"type"`
	Room string    `json:"room,omitempty"`

	Post    json.RawMessage `json:"post,omitempty"`
	PostID  int64           `json:"post_id,omitempty"`
	Likes   int64           `json:"likes,omitempty"`
	Comment json.RawMessage `json:"comment,omitempty"`

	Content    string `json:"content,omitempty"`
	SenderID   int64  `json:"sender_id,omitempty"`
	ReceiverID int64  `json:"receiver_id,omitempty"`

	SenderIDCamel   int64 `json:"senderId,omitempty"`
	ReceiverIDCamel int64 `json:"receiverId,omitempty"`

	Timestamp          string `json:"timestamp,omitempty"`
	MessageID          int64  `json:"message_id,omitempty"`
	SenderNickname     string `json:"sender_nickname,omitempty"`
	SenderProfileImage string `json:"sender_profile_image,omitempty"`
}

// DecodeEvent parses a raw bus payload. A payload that is not JSON or has
// an unknown type is malformed; required-field checks happen later in
// TargetRoom so the two failure modes log the same way.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if !e.Type.Valid() {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
	}
	return e, nil
}

// Sender returns the sender id regardless of wire spelling.
func (e Event) Sender() int64 {
	if e.SenderID != 0 {
		return e.SenderID
	}
	return e.SenderIDCamel
}

// Receiver returns the receiver id regardless of wire spelling.
func (e Event) Receiver() int64 {
	if e.ReceiverID != 0 {
		return e.ReceiverID
	}
	return e.ReceiverIDCamel
}

// TargetRoom resolves the single room this event fans out to.
//
// Broadcast types always go to the feed. A chat message goes to an
// explicitly named room if one is set, otherwise to the receiver's inbox.
// A typing indicator needs both participant ids: the receiver to route,
// the sender because the relay payload is the sender id.
func (e Event) TargetRoom() (string, error) {
	switch e.Type {
	case TypeNewPost, TypeDeletePost, TypeUpdatePostLikes, TypeNewComment:
		return RoomFeed, nil
	case TypeMessage:
		if e.Room != "" {
			return e.Room, nil
		}
		if e.Receiver() == 0 {
			return "", fmt.Errorf("%w: message without receiver_id", ErrMalformedEvent)
		}
		return UserRoom(e.Receiver()), nil
	case TypeTyping:
		if e.Receiver() == 0 {
			return "", fmt.Errorf("%w: typing without receiverId", ErrMalformedEvent)
		}
		if e.Sender() == 0 {
			return "", fmt.Errorf("%w: typing without senderId", ErrMalformedEvent)
		}
		return UserRoom(e.Receiver()), nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
