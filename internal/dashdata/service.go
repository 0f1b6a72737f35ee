package dashdata

import (
	"context"
	"encoding/json"
	"time"

	apperrors "tradedash/internal/errors"
	"tradedash/internal/hierarchy"
	"tradedash/internal/security"
)

// allowedFields is the whitelist for single-field updates. Anything
// outside it is rejected before touching storage.
var allowedFields = map[string]bool{
	"balance":       true,
	"equity":        true,
	"margin":        true,
	"free_margin":   true,
	"profit":        true,
	"currency":      true,
	"leverage":      true,
	"account_name":  true,
	"broker":        true,
	"risk_score":    true,
	"notes":         true,
	"display_order": true,
}

// AllowedField reports whether a field name may be updated directly
func AllowedField(name string) bool {
	return allowedFields[name]
}

var validSections = map[string]bool{
	SectionAccount:     true,
	SectionPositions:   true,
	SectionDeals:       true,
	SectionEvaluations: true,
}

// Service accepts dashboard data from traders and serves it back to
// clients. Every write is checked against the pushing trader's own
// client list and recorded in the audit trail.
type Service struct {
	store   Store
	clients *hierarchy.Service
	audit   *security.AuditLog
	now     func() time.Time
}

// NewService creates a dashboard data service
func NewService(store Store, clients *hierarchy.Service, audit *security.AuditLog) *Service {
	return &Service{
		store:   store,
		clients: clients,
		audit:   audit,
		now:     time.Now,
	}
}

// Push replaces one section of a client's dashboard. The trader must
// own the client; pushing to someone else's client fails closed.
func (s *Service) Push(ctx context.Context, trader, clientEmail, section string, payload json.RawMessage, ip string) error {
	if !validSections[section] {
		return apperrors.ErrInvalidInput
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return apperrors.ErrInvalidInput
	}

	client, err := s.ownedClient(ctx, trader, clientEmail)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		ClientID:  client.ID,
		Section:   section,
		Payload:   payload,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.SaveSection(ctx, snap); err != nil {
		return apperrors.NewStorageFailure("save section", err)
	}
	return s.audit.Record(ctx, security.ActionDataPush, security.ActorTrader, trader, ip, true, section+":"+client.Email)
}

// UpdateField sets one whitelisted field on a client's dashboard
func (s *Service) UpdateField(ctx context.Context, trader, clientEmail, name, value, ip string) error {
	if !AllowedField(name) {
		return apperrors.ErrInvalidInput
	}

	client, err := s.ownedClient(ctx, trader, clientEmail)
	if err != nil {
		return err
	}

	field := &Field{
		ClientID:  client.ID,
		Name:      name,
		Value:     value,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.SetField(ctx, field); err != nil {
		return apperrors.NewStorageFailure("set field", err)
	}
	return s.audit.Record(ctx, security.ActionDataPush, security.ActorTrader, trader, ip, true, "field:"+name)
}

func (s *Service) ownedClient(ctx context.Context, trader, clientEmail string) (*hierarchy.Client, error) {
	client, err := s.clients.GetClientByEmail(ctx, clientEmail)
	if err != nil {
		return nil, err
	}
	if client.Trader != trader {
		return nil, apperrors.ErrNotFound
	}
	return client, nil
}

// Dashboard is everything a client sees on login
type Dashboard struct {
	ClientID string               `json:"client_id"`
	Sections map[string]*Snapshot `json:"sections"`
	Fields   map[string]string    `json:"fields"`
}

// DashboardFor assembles the stored data for one client
func (s *Service) DashboardFor(ctx context.Context, clientID string) (*Dashboard, error) {
	snaps, err := s.store.ListSections(ctx, clientID)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list sections", err)
	}
	fields, err := s.store.ListFields(ctx, clientID)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list fields", err)
	}

	dash := &Dashboard{
		ClientID: clientID,
		Sections: make(map[string]*Snapshot, len(snaps)),
		Fields:   make(map[string]string, len(fields)),
	}
	for _, snap := range snaps {
		dash.Sections[snap.Section] = snap
	}
	for _, f := range fields {
		dash.Fields[f.Name] = f.Value
	}
	return dash, nil
}

// Purge removes all stored data for a client, used when the client is
// removed from the hierarchy.
func (s *Service) Purge(ctx context.Context, clientID string) error {
	if err := s.store.DeleteClient(ctx, clientID); err != nil {
		return apperrors.NewStorageFailure("purge client data", err)
	}
	return nil
}
