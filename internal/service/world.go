package service

import (
	"context"
	"encoding/json"
	"log/slog"
)

// WorldStore is the singleton world-state contract
type WorldStore interface {
	GetWorld(ctx context.Context) (map[string]json.RawMessage, error)
	ReplaceWorld(ctx context.Context, attrs map[string]json.RawMessage) error
}

// WorldBroadcaster pushes world-state replacements to connected clients
type WorldBroadcaster interface {
	BroadcastWorldUpdate(attrs map[string]json.RawMessage)
}

// WorldService provides access to the singleton world-state document
type WorldService struct {
	store  WorldStore
	hub    WorldBroadcaster
	logger *slog.Logger
}

// NewWorldService creates a new world service
func NewWorldService(store WorldStore, logger *slog.Logger) *WorldService {
	return &WorldService{
		store:  store,
		logger: logger,
	}
}

// SetHub attaches an optional broadcast hub notified on every replace
func (s *WorldService) SetHub(hub WorldBroadcaster) {
	s.hub = hub
}

// Load returns the stored attribute map, or an empty map if the world has
// never been written
func (s *WorldService) Load(ctx context.Context) (map[string]json.RawMessage, error) {
	return s.store.GetWorld(ctx)
}

// Replace overwrites the entire attribute map. No merge semantics.
func (s *WorldService) Replace(ctx context.Context, attrs map[string]json.RawMessage) error {
	if err := s.store.ReplaceWorld(ctx, attrs); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastWorldUpdate(attrs)
	}
	return nil
}
