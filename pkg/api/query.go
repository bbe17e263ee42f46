package api

import (
	"fmt"
	"slices"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/omochice/chat-sdk/pkg/models"
)

// MatchPolicy selects how a message's recipient or participant set must
// overlap a queried set.
type MatchPolicy string

const (
	// MatchAny keeps messages sharing at least one handle with the set.
	MatchAny MatchPolicy = "any"
	// MatchAll keeps messages containing every handle of the set.
	MatchAll MatchPolicy = "all"
	// MatchExact keeps messages whose set equals the queried set.
	MatchExact MatchPolicy = "exact"
)

func (p MatchPolicy) valid() bool {
	switch p {
	case "", MatchAny, MatchAll, MatchExact:
		return true
	}
	return false
}

// MessageQuery filters the messages visible to the caller. Empty sets and a
// zero Since do not filter.
type MessageQuery struct {
	// From holds the accepted sender handles.
	From []string
	// To is matched against the recipient handles.
	To []string
	// Participants is matched against the sender and recipient handles.
	Participants []string
	// Since drops messages created before it.
	Since time.Time
	// Match defaults to MatchAny.
	Match MatchPolicy
}

// Validate reports malformed queries. Errors wrap ErrValidation.
func (q MessageQuery) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if !q.Match.valid() {
		errs = errs.Append("match", fmt.Errorf("unknown match policy %q", q.Match))
	}
	if q.Match == MatchExact && len(q.From) > 1 {
		errs = errs.Append("from", fmt.Errorf("exact match allows a single sender, got %d", len(q.From)))
	}

	errs = requireHandles(errs, "from", q.From)
	errs = requireHandles(errs, "to", q.To)
	errs = requireHandles(errs, "participants", q.Participants)

	return validationError(errs.ToError())
}

func requireHandles(errs criterio.FieldErrorsBuilder, field string, handles []string) criterio.FieldErrorsBuilder {
	for i, h := range handles {
		if h == "" {
			errs = errs.Append(fmt.Sprintf("%s[%d]", field, i), fmt.Errorf("handle is empty"))
		}
	}
	return errs
}

// Interlocutors returns the union of every handle in the query, sorted.
func (q MessageQuery) Interlocutors() []string {
	all := slices.Concat(q.From, q.To, q.Participants)
	slices.Sort(all)
	return slices.Compact(all)
}

func (q MessageQuery) policy() MatchPolicy {
	if q.Match == "" {
		return MatchAny
	}
	return q.Match
}

// Matches reports whether m satisfies q.
func (q MessageQuery) Matches(m models.Message) bool {
	if !q.Since.IsZero() && m.CreatedAt.Before(q.Since) {
		return false
	}
	if len(q.From) > 0 && !slices.Contains(q.From, m.Sender.Handle) {
		return false
	}
	policy := q.policy()
	if !matchSet(m.RecipientHandles(), q.To, policy) {
		return false
	}
	return matchSet(m.ParticipantHandles(), q.Participants, policy)
}

// RefineMessages returns the messages of msgs matching q, in their original
// order. msgs is not modified.
func RefineMessages(msgs []models.Message, q MessageQuery) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if q.Matches(m) {
			out = append(out, m)
		}
	}
	return out
}

func matchSet(have, want []string, policy MatchPolicy) bool {
	if len(want) == 0 {
		return true
	}

	switch policy {
	case MatchAll:
		for _, w := range want {
			if !slices.Contains(have, w) {
				return false
			}
		}
		return true
	case MatchExact:
		return slices.Equal(uniqueSorted(have), uniqueSorted(want))
	default:
		for _, w := range want {
			if slices.Contains(have, w) {
				return true
			}
		}
		return false
	}
}

func uniqueSorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
