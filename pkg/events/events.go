// Package events provides the typed publish/subscribe hub through which the
// SDK reports realtime notifications and session changes.
package events

import (
	"github.com/omochice/chat-sdk/pkg/models"
)

// Kind names a notification.
type Kind string

const (
	KindMessage         Kind = "message"
	KindMessageUpdate   Kind = "messageupdate"
	KindMessageDeletion Kind = "messagedeletion"
	KindAuthError       Kind = "autherror"
	KindLogin           Kind = "login"
	KindLogout          Kind = "logout"
)

// MessageEvent reports that a message addressed to Handle was created,
// updated or deleted. Only the id is carried; consumers re-fetch the message.
type MessageEvent struct {
	Kind      Kind
	MessageID string
	Handle    string
}

// AuthErrorEvent reports that the service rejected access for Handle.
type AuthErrorEvent struct {
	Message string
	Handle  string
}

// SessionEvent reports a login or logout.
type SessionEvent struct {
	Kind    Kind
	Account models.Account
	Handle  string
}

// Hub groups the topics of every notification kind.
type Hub struct {
	Message         *Topic[MessageEvent]
	MessageUpdate   *Topic[MessageEvent]
	MessageDeletion *Topic[MessageEvent]
	AuthError       *Topic[AuthErrorEvent]
	Login           *Topic[SessionEvent]
	Logout          *Topic[SessionEvent]
}

// NewHub creates a Hub with empty topics.
func NewHub() *Hub {
	return &Hub{
		Message:         NewTopic[MessageEvent](KindMessage),
		MessageUpdate:   NewTopic[MessageEvent](KindMessageUpdate),
		MessageDeletion: NewTopic[MessageEvent](KindMessageDeletion),
		AuthError:       NewTopic[AuthErrorEvent](KindAuthError),
		Login:           NewTopic[SessionEvent](KindLogin),
		Logout:          NewTopic[SessionEvent](KindLogout),
	}
}

// MessageTopic returns the topic for a message kind, or nil for any other kind.
func (h *Hub) MessageTopic(kind Kind) *Topic[MessageEvent] {
	switch kind {
	case KindMessage:
		return h.Message
	case KindMessageUpdate:
		return h.MessageUpdate
	case KindMessageDeletion:
		return h.MessageDeletion
	default:
		return nil
	}
}

// OnMessages subscribes fn to all three message topics. The returned function
// cancels every subscription.
func (h *Hub) OnMessages(fn func(MessageEvent)) func() {
	cancels := []func(){
		h.Message.Subscribe(fn),
		h.MessageUpdate.Subscribe(fn),
		h.MessageDeletion.Subscribe(fn),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
