package chattest

import (
	"cmp"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/chat-sdk/pkg/models"
)

type account struct {
	id       string
	email    string
	password string
	handle   string
	created  time.Time
}

type identity struct {
	id        string
	handle    string
	accountID string
	data      json.RawMessage
	created   time.Time
	updated   time.Time
}

type message struct {
	id         string
	sender     string
	recipients []string
	data       json.RawMessage
	created    time.Time
	updated    time.Time
}

type privateKey struct {
	owner  string
	entity string
}

type record struct {
	id      string
	entity  string
	data    json.RawMessage
	created time.Time
	updated time.Time
}

// store holds the service state. Handles are unique across accounts.
type store struct {
	mu          sync.Mutex
	now         func() time.Time
	accounts    map[string]*account
	identities  map[string]*identity
	messages    []*message
	privateData map[privateKey]*record
	friends     map[string]map[string]bool
	sessions    map[string]string
}

func newStore(now func() time.Time) *store {
	return &store{
		now:         now,
		accounts:    make(map[string]*account),
		identities:  make(map[string]*identity),
		privateData: make(map[privateKey]*record),
		friends:     make(map[string]map[string]bool),
		sessions:    make(map[string]string),
	}
}

func (s *store) timestamp() time.Time {
	return s.now().UTC()
}

func (s *store) accountByEmail(email string) *account {
	for _, a := range s.accounts {
		if a.email == email {
			return a
		}
	}
	return nil
}

func (s *store) owns(accountID, handle string) bool {
	id, ok := s.identities[handle]
	return ok && id.accountID == accountID
}

func (s *store) message(id string) (*message, int) {
	for i, m := range s.messages {
		if m.id == id {
			return m, i
		}
	}
	return nil, -1
}

func (m *message) participants() []string {
	out := []string{m.sender}
	for _, r := range m.recipients {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *message) visibleTo(handle string) bool {
	return slices.Contains(m.participants(), handle)
}

func (s *store) accountDTO(a *account) models.AccountDTO {
	return models.AccountDTO{
		EntityDTO: models.EntityDTO{ID: a.id, CreatedAt: a.created, UpdatedAt: a.created},
		Email:     a.email,
		Handle:    a.handle,
	}
}

func (s *store) identityDTO(id *identity) models.IdentityDTO {
	return models.IdentityDTO{
		EntityDTO: models.EntityDTO{ID: id.id, CreatedAt: id.created, UpdatedAt: id.updated},
		Handle:    id.handle,
		Data:      id.data,
	}
}

func (s *store) messageDTO(m *message) models.MessageDTO {
	sender := s.identityDTO(s.identities[m.sender])
	dto := models.MessageDTO{
		EntityDTO: models.EntityDTO{ID: m.id, CreatedAt: m.created, UpdatedAt: m.updated},
		Sender:    &sender,
		Data:      m.data,
	}
	for _, h := range m.recipients {
		if id, ok := s.identities[h]; ok {
			dto.Recipients = append(dto.Recipients, s.identityDTO(id))
		} else {
			dto.Recipients = append(dto.Recipients, models.IdentityDTO{EntityDTO: models.EntityDTO{ID: "deleted:" + h}, Handle: h})
		}
	}
	return dto
}

func (s *store) recordDTO(r *record) models.PrivateDataDTO {
	return models.PrivateDataDTO{
		EntityDTO: models.EntityDTO{ID: r.id, CreatedAt: r.created, UpdatedAt: r.updated},
		EntityID:  r.entity,
		Data:      r.data,
	}
}

func (s *store) newIdentity(accountID, handle string, data json.RawMessage) *identity {
	now := s.timestamp()
	id := &identity{
		id:        uuid.NewString(),
		handle:    handle,
		accountID: accountID,
		data:      data,
		created:   now,
		updated:   now,
	}
	s.identities[handle] = id
	return id
}

func (s *store) accountIdentities(accountID string) []*identity {
	var out []*identity
	for _, id := range s.identities {
		if id.accountID == accountID {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b *identity) int {
		return cmp.Or(a.created.Compare(b.created), cmp.Compare(a.handle, b.handle))
	})
	return out
}

func (s *store) records(owner string) []*record {
	var out []*record
	for k, r := range s.privateData {
		if k.owner == owner {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b *record) int {
		return cmp.Or(a.created.Compare(b.created), cmp.Compare(a.entity, b.entity))
	})
	return out
}
