package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/creature-backend/internal/domain"
)

// PlayerStore is the document-store contract the player service depends on.
// Implementations must provide atomic per-record mutation and store-level
// name uniqueness.
type PlayerStore interface {
	GetPlayerByID(ctx context.Context, playerID string) (*domain.Player, error)
	GetPlayerByName(ctx context.Context, name string) (*domain.Player, error)
	PlayerNameExists(ctx context.Context, name string) (bool, error)
	CreatePlayer(ctx context.Context, player *domain.Player) error
	ReplacePlayer(ctx context.Context, player *domain.Player) (bool, error)
	DeletePlayer(ctx context.Context, playerID string) error
	ApplySocialPatch(ctx context.Context, playerID string, patch domain.SocialPatch) error
}

// PlayerCache caches player documents by identifier
type PlayerCache interface {
	Get(ctx context.Context, playerID string) (*domain.Player, error)
	Set(ctx context.Context, player *domain.Player) error
	Invalidate(ctx context.Context, playerID string) error
}

// PlayerService provides business logic for player directory and social
// mutation operations
type PlayerService struct {
	store  PlayerStore
	cache  PlayerCache
	logger *slog.Logger
}

// NewPlayerService creates a new player service
func NewPlayerService(store PlayerStore, logger *slog.Logger) *PlayerService {
	return &PlayerService{
		store:  store,
		logger: logger,
	}
}

// SetCache attaches an optional player cache
func (s *PlayerService) SetCache(cache PlayerCache) {
	s.cache = cache
}

// GetByName returns a player by display name, or nil if absent
func (s *PlayerService) GetByName(ctx context.Context, name string) (*domain.Player, error) {
	return s.store.GetPlayerByName(ctx, name)
}

// NameExists reports whether a display name is taken without exposing the
// record itself
func (s *PlayerService) NameExists(ctx context.Context, name string) (bool, error) {
	return s.store.PlayerNameExists(ctx, name)
}

// GetByID returns a player by identifier
func (s *PlayerService) GetByID(ctx context.Context, playerID string) (*domain.Player, error) {
	if s.cache != nil {
		player, err := s.cache.Get(ctx, playerID)
		if err != nil {
			s.logger.Warn("player cache read failed", "player_id", playerID, "error", err)
		} else if player != nil {
			return player, nil
		}
	}

	player, err := s.store.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, player); err != nil {
			s.logger.Warn("player cache write failed", "player_id", playerID, "error", err)
		}
	}
	return player, nil
}

// Create mints a new identifier and stores the record. The caller-supplied
// body is persisted as-is apart from the minted player_id.
func (s *PlayerService) Create(ctx context.Context, player *domain.Player) (*domain.Player, error) {
	if player == nil || player.PlayerName == "" {
		return nil, domain.ErrNameRequired
	}

	player.PlayerID = uuid.NewString()
	if err := s.store.CreatePlayer(ctx, player); err != nil {
		return nil, err
	}
	return player, nil
}

// Replace upserts the full record under the identifier from the request
// path; that identifier is authoritative and overrides any player_id in the
// body. The returned bool reports whether a new record was inserted.
func (s *PlayerService) Replace(ctx context.Context, playerID string, player *domain.Player) (bool, error) {
	player.PlayerID = playerID
	inserted, err := s.store.ReplacePlayer(ctx, player)
	if err != nil {
		return false, err
	}
	s.invalidate(ctx, playerID)
	return inserted, nil
}

// ApplySocial applies one social mutation batch to a player
func (s *PlayerService) ApplySocial(ctx context.Context, playerID string, patch domain.SocialPatch) error {
	if err := s.store.ApplySocialPatch(ctx, playerID, patch); err != nil {
		return err
	}
	s.invalidate(ctx, playerID)
	return nil
}

// Delete removes a player record by identifier
func (s *PlayerService) Delete(ctx context.Context, playerID string) error {
	if err := s.store.DeletePlayer(ctx, playerID); err != nil {
		return err
	}
	s.invalidate(ctx, playerID)
	return nil
}

func (s *PlayerService) invalidate(ctx context.Context, playerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, playerID); err != nil {
		s.logger.Warn("player cache invalidation failed", "player_id", playerID, "error", err)
	}
}
