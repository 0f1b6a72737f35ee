package hierarchy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Admin is a dashboard administrator who owns traders
type Admin struct {
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Trader is an account that pushes trading data, owned by one admin
type Trader struct {
	Username  string    `json:"username"`
	Admin     string    `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is an end customer whose dashboard a trader maintains
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Trader    string    `json:"trader"`
	Admin     string    `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the admin -> trader -> client tree
type Store interface {
	InsertAdmin(ctx context.Context, a *Admin) error
	GetAdmin(ctx context.Context, username string) (*Admin, error)
	DeleteAdmin(ctx context.Context, username string) error
	ListAdmins(ctx context.Context) ([]*Admin, error)

	InsertTrader(ctx context.Context, t *Trader) error
	GetTrader(ctx context.Context, username string) (*Trader, error)
	DeleteTrader(ctx context.Context, username string) error
	ListTradersByAdmin(ctx context.Context, admin string) ([]*Trader, error)

	InsertClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)
	GetClientByEmail(ctx context.Context, email string) (*Client, error)
	DeleteClient(ctx context.Context, id string) error
	MoveClient(ctx context.Context, id, newTrader, newAdmin string) error
	ListClientsByTrader(ctx context.Context, trader string) ([]*Client, error)
}

// MemoryStore is an in-memory Store
type MemoryStore struct {
	mu      sync.RWMutex
	admins  map[string]*Admin
	traders map[string]*Trader
	clients map[string]*Client
}

// NewMemoryStore creates an empty in-memory hierarchy store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		admins:  make(map[string]*Admin),
		traders: make(map[string]*Trader),
		clients: make(map[string]*Client),
	}
}

func (s *MemoryStore) InsertAdmin(ctx context.Context, a *Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.admins[a.Username] = &cp
	return nil
}

func (s *MemoryStore) GetAdmin(ctx context.Context, username string) (*Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.admins[username]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeleteAdmin(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.admins, username)
	return nil
}

func (s *MemoryStore) ListAdmins(ctx context.Context) ([]*Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Admin, 0, len(s.admins))
	for _, a := range s.admins {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) InsertTrader(ctx context.Context, t *Trader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.traders[t.Username] = &cp
	return nil
}

func (s *MemoryStore) GetTrader(ctx context.Context, username string) (*Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.traders[username]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeleteTrader(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.traders, username)
	return nil
}

func (s *MemoryStore) ListTradersByAdmin(ctx context.Context, admin string) ([]*Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Trader
	for _, t := range s.traders {
		if t.Admin == admin {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) InsertClient(ctx context.Context, c *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.clients[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, id string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.clients[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) GetClientByEmail(ctx context.Context, email string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, id)
	return nil
}

func (s *MemoryStore) MoveClient(ctx context.Context, id, newTrader, newAdmin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[id]; ok {
		c.Trader = newTrader
		c.Admin = newAdmin
	}
	return nil
}

func (s *MemoryStore) ListClientsByTrader(ctx context.Context, trader string) ([]*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Client
	for _, c := range s.clients {
		if c.Trader == trader {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
