package dashdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Section names a pushed data block on a client dashboard
const (
	SectionAccount     = "account"
	SectionPositions   = "positions"
	SectionDeals       = "deals"
	SectionEvaluations = "evaluations"
)

// Sections lists every accepted section name
func Sections() []string {
	return []string{SectionAccount, SectionPositions, SectionDeals, SectionEvaluations}
}

// Snapshot is the latest pushed payload for one section of one client
type Snapshot struct {
	ClientID  string          `json:"client_id"`
	Section   string          `json:"section"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Field is a single named value on a client dashboard, updated outside
// the section snapshots
type Field struct {
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists dashboard data per client
type Store interface {
	SaveSection(ctx context.Context, snap *Snapshot) error
	GetSection(ctx context.Context, clientID, section string) (*Snapshot, error)
	ListSections(ctx context.Context, clientID string) ([]*Snapshot, error)
	SetField(ctx context.Context, field *Field) error
	ListFields(ctx context.Context, clientID string) ([]*Field, error)
	DeleteClient(ctx context.Context, clientID string) error
}

// MemoryStore is an in-memory Store
type MemoryStore struct {
	mu       sync.RWMutex
	sections map[string]map[string]*Snapshot // clientID -> section
	fields   map[string]map[string]*Field    // clientID -> field name
}

// NewMemoryStore creates an empty in-memory dashboard data store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sections: make(map[string]map[string]*Snapshot),
		fields:   make(map[string]map[string]*Field),
	}
}

func (s *MemoryStore) SaveSection(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byClient, ok := s.sections[snap.ClientID]
	if !ok {
		byClient = make(map[string]*Snapshot)
		s.sections[snap.ClientID] = byClient
	}
	cp := *snap
	byClient[snap.Section] = &cp
	return nil
}

func (s *MemoryStore) GetSection(ctx context.Context, clientID, section string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.sections[clientID][section]; ok {
		cp := *snap
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListSections(ctx context.Context, clientID string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Snapshot
	for _, snap := range s.sections[clientID] {
		cp := *snap
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) SetField(ctx context.Context, field *Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byClient, ok := s.fields[field.ClientID]
	if !ok {
		byClient = make(map[string]*Field)
		s.fields[field.ClientID] = byClient
	}
	cp := *field
	byClient[field.Name] = &cp
	return nil
}

func (s *MemoryStore) ListFields(ctx context.Context, clientID string) ([]*Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Field
	for _, f := range s.fields[clientID] {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sections, clientID)
	delete(s.fields, clientID)
	return nil
}
