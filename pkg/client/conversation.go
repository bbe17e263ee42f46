package client

import (
	"strings"

	"github.com/omochice/chat-sdk/pkg/models"
)

// Conversation is a run of messages exchanged within one set of identities.
type Conversation struct {
	// Interlocutors are the sorted identity ids of every sender and recipient.
	Interlocutors []string
	Messages      []models.Message
}

// GroupByInterlocutors groups msgs by their set of sender and recipient
// identities, regardless of who sent each one. Conversations appear in the
// order their first message appears in msgs, and keep message order.
func GroupByInterlocutors(msgs []models.Message) []Conversation {
	var out []Conversation
	index := make(map[string]int)

	for _, m := range msgs {
		ids := m.InterlocutorIDs()
		key := strings.Join(ids, "\x00")

		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Conversation{Interlocutors: ids})
		}
		out[i].Messages = append(out[i].Messages, m)
	}
	return out
}
