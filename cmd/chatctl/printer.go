package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"

	"github.com/omochice/chat-sdk/pkg/client"
	"github.com/omochice/chat-sdk/pkg/events"
	"github.com/omochice/chat-sdk/pkg/models"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	gray   = color.New(color.FgHiBlack)
)

// textData is the data shape chatctl writes into messages.
type textData struct {
	Text string `json:"text"`
}

// messageText returns the text of m, or its raw data when it has none.
func messageText(m models.Message) string {
	var d textData
	if err := m.UnmarshalData(&d); err == nil && d.Text != "" {
		return d.Text
	}
	return string(m.Data)
}

func age(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

func printIdentities(w io.Writer, ids []models.Identity, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "HANDLE\tID\tCREATED")
	for _, id := range ids {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", id.Handle, id.ID, age(id.CreatedAt, now))
	}
	_ = tw.Flush()
}

func printMessages(w io.Writer, msgs []models.Message, now time.Time) {
	for _, m := range msgs {
		_, _ = fmt.Fprintf(w, "%s %s %s %s\n",
			gray.Sprintf("%-14s", age(m.CreatedAt, now)),
			cyan.Sprint(m.Sender.Handle),
			gray.Sprint("→ "+strings.Join(m.RecipientHandles(), ", ")),
			messageText(m),
		)
	}
}

func printConversations(w io.Writer, convs []client.Conversation, now time.Time) {
	for i, conv := range convs {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		handles := conv.Messages[0].ParticipantHandles()
		_, _ = fmt.Fprintf(w, "%s %s\n",
			green.Sprint("▶ "+strings.Join(handles, ", ")),
			gray.Sprintf("(%s)", english.Plural(len(conv.Messages), "message", "")),
		)
		printMessages(w, conv.Messages, now)
	}
}

func formatMessageEvent(ev events.MessageEvent) string {
	var label string
	switch ev.Kind {
	case events.KindMessage:
		label = green.Sprint("new")
	case events.KindMessageUpdate:
		label = yellow.Sprint("updated")
	case events.KindMessageDeletion:
		label = red.Sprint("deleted")
	default:
		label = string(ev.Kind)
	}
	return fmt.Sprintf("[%s] %s %s", cyan.Sprint(ev.Handle), label, ev.MessageID)
}

func formatAuthError(ev events.AuthErrorEvent) string {
	return fmt.Sprintf("[%s] %s %s", cyan.Sprint(ev.Handle), red.Sprint("unauthorized"), ev.Message)
}
