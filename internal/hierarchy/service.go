package hierarchy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "tradedash/internal/errors"
	"tradedash/internal/security"
)

// Service manages the admin -> trader -> client tree. Removing a node
// removes everything under it: a trader's clients go with the trader,
// and an admin's whole subtree goes with the admin. API keys bound to
// removed traders are revoked, not deleted.
type Service struct {
	store  Store
	access *security.AccessController
	logger *logrus.Logger
	now    func() time.Time
}

// NewService creates a hierarchy service
func NewService(store Store, access *security.AccessController, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:  store,
		access: access,
		logger: logger,
		now:    time.Now,
	}
}

// AddAdmin registers a new administrator with a password credential
func (s *Service) AddAdmin(ctx context.Context, actor, username, email, password, ip string) (*Admin, error) {
	if username == "" || password == "" {
		return nil, apperrors.ErrInvalidInput
	}

	existing, err := s.store.GetAdmin(ctx, username)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup admin", err)
	}
	if existing != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeConflict, "Username already taken", nil)
	}

	if err := s.access.SetPassword(ctx, username, email, security.ActorAdmin, password); err != nil {
		return nil, err
	}

	admin := &Admin{Username: username, Email: email, CreatedAt: s.now().UTC()}
	if err := s.store.InsertAdmin(ctx, admin); err != nil {
		return nil, apperrors.NewStorageFailure("insert admin", err)
	}

	if err := s.audit(ctx, security.ActionAddAdmin, actor, ip, username); err != nil {
		return nil, err
	}
	return admin, nil
}

// RemoveAdmin deletes an administrator and everything under them
func (s *Service) RemoveAdmin(ctx context.Context, actor, username, ip string) error {
	admin, err := s.store.GetAdmin(ctx, username)
	if err != nil {
		return apperrors.NewStorageFailure("lookup admin", err)
	}
	if admin == nil {
		return apperrors.ErrNotFound
	}

	traders, err := s.store.ListTradersByAdmin(ctx, username)
	if err != nil {
		return apperrors.NewStorageFailure("list traders", err)
	}
	for _, trader := range traders {
		if err := s.removeTraderSubtree(ctx, trader.Username); err != nil {
			return err
		}
	}

	if err := s.store.DeleteAdmin(ctx, username); err != nil {
		return apperrors.NewStorageFailure("delete admin", err)
	}
	if err := s.access.RemoveCredential(ctx, username); err != nil {
		return err
	}
	return s.audit(ctx, security.ActionRemoveAdmin, actor, ip, username)
}

// ListAdmins returns all administrators
func (s *Service) ListAdmins(ctx context.Context) ([]*Admin, error) {
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list admins", err)
	}
	return admins, nil
}

// AddTrader registers a trader under an existing admin
func (s *Service) AddTrader(ctx context.Context, actor, admin, username, ip string) (*Trader, error) {
	if admin == "" || username == "" {
		return nil, apperrors.ErrInvalidInput
	}

	owner, err := s.store.GetAdmin(ctx, admin)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup admin", err)
	}
	if owner == nil {
		return nil, apperrors.ErrNotFound
	}

	existing, err := s.store.GetTrader(ctx, username)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup trader", err)
	}
	if existing != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeConflict, "Username already taken", nil)
	}

	trader := &Trader{Username: username, Admin: admin, CreatedAt: s.now().UTC()}
	if err := s.store.InsertTrader(ctx, trader); err != nil {
		return nil, apperrors.NewStorageFailure("insert trader", err)
	}

	if err := s.audit(ctx, security.ActionAddTrader, actor, ip, username); err != nil {
		return nil, err
	}
	return trader, nil
}

// RemoveTrader deletes a trader, their clients and revokes their keys
func (s *Service) RemoveTrader(ctx context.Context, actor, username, ip string) error {
	trader, err := s.store.GetTrader(ctx, username)
	if err != nil {
		return apperrors.NewStorageFailure("lookup trader", err)
	}
	if trader == nil {
		return apperrors.ErrNotFound
	}

	if err := s.removeTraderSubtree(ctx, username); err != nil {
		return err
	}
	return s.audit(ctx, security.ActionRemoveTrader, actor, ip, username)
}

func (s *Service) removeTraderSubtree(ctx context.Context, trader string) error {
	clients, err := s.store.ListClientsByTrader(ctx, trader)
	if err != nil {
		return apperrors.NewStorageFailure("list clients", err)
	}
	for _, client := range clients {
		if err := s.store.DeleteClient(ctx, client.ID); err != nil {
			return apperrors.NewStorageFailure("delete client", err)
		}
		if err := s.access.RemoveCredential(ctx, client.Email); err != nil {
			return err
		}
	}

	revoked, err := s.access.Vault().RevokeForTrader(ctx, trader)
	if err != nil {
		return err
	}
	if revoked > 0 {
		s.logger.WithFields(logrus.Fields{
			"trader":  trader,
			"revoked": revoked,
		}).Info("revoked api keys for removed trader")
	}

	if err := s.store.DeleteTrader(ctx, trader); err != nil {
		return apperrors.NewStorageFailure("delete trader", err)
	}
	return nil
}

// ListTraders returns the traders owned by an admin
func (s *Service) ListTraders(ctx context.Context, admin string) ([]*Trader, error) {
	traders, err := s.store.ListTradersByAdmin(ctx, admin)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list traders", err)
	}
	return traders, nil
}

// AddClient registers a client under an existing trader. The client's
// email doubles as their login identifier.
func (s *Service) AddClient(ctx context.Context, actor, trader, name, email, password, ip string) (*Client, error) {
	if trader == "" || name == "" || email == "" || password == "" {
		return nil, apperrors.ErrInvalidInput
	}

	owner, err := s.store.GetTrader(ctx, trader)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup trader", err)
	}
	if owner == nil {
		return nil, apperrors.ErrNotFound
	}

	existing, err := s.store.GetClientByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup client", err)
	}
	if existing != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeConflict, "Email already registered", nil)
	}

	if err := s.access.SetPassword(ctx, email, email, security.ActorClient, password); err != nil {
		return nil, err
	}

	client := &Client{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Trader:    trader,
		Admin:     owner.Admin,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertClient(ctx, client); err != nil {
		return nil, apperrors.NewStorageFailure("insert client", err)
	}

	if err := s.audit(ctx, security.ActionAddClient, actor, ip, email); err != nil {
		return nil, err
	}
	return client, nil
}

// RemoveClient deletes a single client
func (s *Service) RemoveClient(ctx context.Context, actor, id, ip string) error {
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return apperrors.NewStorageFailure("lookup client", err)
	}
	if client == nil {
		return apperrors.ErrNotFound
	}

	if err := s.store.DeleteClient(ctx, id); err != nil {
		return apperrors.NewStorageFailure("delete client", err)
	}
	if err := s.access.RemoveCredential(ctx, client.Email); err != nil {
		return err
	}
	return s.audit(ctx, security.ActionRemoveClient, actor, ip, client.Email)
}

// MoveClient reassigns a client to a different trader; the client's
// admin follows the new trader's owner.
func (s *Service) MoveClient(ctx context.Context, actor, id, newTrader, ip string) error {
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return apperrors.NewStorageFailure("lookup client", err)
	}
	if client == nil {
		return apperrors.ErrNotFound
	}

	target, err := s.store.GetTrader(ctx, newTrader)
	if err != nil {
		return apperrors.NewStorageFailure("lookup trader", err)
	}
	if target == nil {
		return apperrors.ErrNotFound
	}

	if err := s.store.MoveClient(ctx, id, target.Username, target.Admin); err != nil {
		return apperrors.NewStorageFailure("move client", err)
	}
	return s.audit(ctx, security.ActionMoveClient, actor, ip, client.Email+" -> "+newTrader)
}

// GetClient returns one client by ID
func (s *Service) GetClient(ctx context.Context, id string) (*Client, error) {
	client, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup client", err)
	}
	if client == nil {
		return nil, apperrors.ErrNotFound
	}
	return client, nil
}

// GetClientByEmail returns one client by login email
func (s *Service) GetClientByEmail(ctx context.Context, email string) (*Client, error) {
	client, err := s.store.GetClientByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.NewStorageFailure("lookup client", err)
	}
	if client == nil {
		return nil, apperrors.ErrNotFound
	}
	return client, nil
}

// ListClients returns the clients served by a trader
func (s *Service) ListClients(ctx context.Context, trader string) ([]*Client, error) {
	clients, err := s.store.ListClientsByTrader(ctx, trader)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list clients", err)
	}
	return clients, nil
}

// TreeNode is one admin with its traders and their clients, for the
// management overview.
type TreeNode struct {
	Admin   *Admin        `json:"admin"`
	Traders []*TraderNode `json:"traders"`
}

// TraderNode is one trader with its clients
type TraderNode struct {
	Trader  *Trader   `json:"trader"`
	Clients []*Client `json:"clients"`
}

// Tree returns the whole hierarchy
func (s *Service) Tree(ctx context.Context) ([]*TreeNode, error) {
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, apperrors.NewStorageFailure("list admins", err)
	}

	nodes := make([]*TreeNode, 0, len(admins))
	for _, admin := range admins {
		traders, err := s.store.ListTradersByAdmin(ctx, admin.Username)
		if err != nil {
			return nil, apperrors.NewStorageFailure("list traders", err)
		}
		node := &TreeNode{Admin: admin, Traders: make([]*TraderNode, 0, len(traders))}
		for _, trader := range traders {
			clients, err := s.store.ListClientsByTrader(ctx, trader.Username)
			if err != nil {
				return nil, apperrors.NewStorageFailure("list clients", err)
			}
			node.Traders = append(node.Traders, &TraderNode{Trader: trader, Clients: clients})
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *Service) audit(ctx context.Context, action, actor, ip, detail string) error {
	return s.access.Audit().Record(ctx, action, security.ActorAdmin, actor, ip, true, detail)
}
