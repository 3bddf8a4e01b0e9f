package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creature-backend/internal/config"
	"github.com/creature-backend/internal/domain"
)

// worldKey is the sentinel key of the singleton world-state row.
const worldKey = "world_state"

// uniqueViolation is the SQLSTATE raised by the player_name unique index.
const uniqueViolation = "23505"

// Store provides PostgreSQL-based access to player and world documents.
// Player records are stored whole as JSONB; player_id and player_name are
// lifted into columns for keyed lookup and the uniqueness constraint.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a new PostgreSQL store
func NewStore(cfg *config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			player_id VARCHAR(64) PRIMARY KEY,
			player_name TEXT,
			doc JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS players_player_name_key ON players(player_name)`,
		`CREATE TABLE IF NOT EXISTS world_state (
			key VARCHAR(64) PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS world_snapshots (
			id BIGSERIAL PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		_, err := s.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	s.logger.Info("database migrations completed")
	return nil
}

// GetPlayerByID retrieves a player record by identifier
func (s *Store) GetPlayerByID(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT doc FROM players WHERE player_id = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, playerID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return unmarshalPlayer(doc)
}

// GetPlayerByName retrieves a player record by display name. Absence is not
// an error: a nil player and nil error are returned.
func (s *Store) GetPlayerByName(ctx context.Context, name string) (*domain.Player, error) {
	query := `SELECT doc FROM players WHERE player_name = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, name).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting player by name: %w", err)
	}
	return unmarshalPlayer(doc)
}

// PlayerNameExists checks whether a display name is taken
func (s *Store) PlayerNameExists(ctx context.Context, name string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM players WHERE player_name = $1)`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking player name: %w", err)
	}
	return exists, nil
}

// CreatePlayer inserts a new player record. Name uniqueness is enforced by
// the store's unique index, never by a prior read, so two concurrent
// creations of the same name yield exactly one winner.
func (s *Store) CreatePlayer(ctx context.Context, player *domain.Player) error {
	doc, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("marshaling player: %w", err)
	}

	query := `
		INSERT INTO players (player_id, player_name, doc)
		VALUES ($1, NULLIF($2, ''), $3)
	`
	_, err = s.pool.Exec(ctx, query, player.PlayerID, player.PlayerName, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrNameTaken
		}
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

// ReplacePlayer replaces a player record, inserting it if absent. The
// returned bool reports whether a new record was inserted.
func (s *Store) ReplacePlayer(ctx context.Context, player *domain.Player) (bool, error) {
	doc, err := json.Marshal(player)
	if err != nil {
		return false, fmt.Errorf("marshaling player: %w", err)
	}

	// xmax = 0 only for freshly inserted rows
	query := `
		INSERT INTO players (player_id, player_name, doc)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (player_id) DO UPDATE
		SET player_name = EXCLUDED.player_name,
		    doc = EXCLUDED.doc,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING (xmax = 0)
	`
	var inserted bool
	err = s.pool.QueryRow(ctx, query, player.PlayerID, player.PlayerName, doc).Scan(&inserted)
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrNameConflict
		}
		return false, fmt.Errorf("replacing player: %w", err)
	}
	return inserted, nil
}

// DeletePlayer removes a player record by identifier
func (s *Store) DeletePlayer(ctx context.Context, playerID string) error {
	query := `DELETE FROM players WHERE player_id = $1`
	result, err := s.pool.Exec(ctx, query, playerID)
	if err != nil {
		return fmt.Errorf("deleting player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// Lazy social initialization: existing keys win over the empty defaults, so
// the merge fills only what is missing and never clobbers populated lists.
const ensureSocialQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social}',
		jsonb_build_object(
			'friends', '[]'::jsonb,
			'blocked', '[]'::jsonb,
			'incoming_requests', '[]'::jsonb,
			'outgoing_requests', '[]'::jsonb
		) || CASE WHEN jsonb_typeof(doc->'social') = 'object'
			THEN doc->'social' ELSE '{}'::jsonb END)
	WHERE player_id = $1
`

// Additive updates: append only if the set does not already contain the
// value (or an entry with the same key field). One single-row UPDATE per
// list, atomic under concurrent writers.
const addFriendQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,friends}',
			CASE WHEN doc#>'{social,friends}' @> to_jsonb($2::text)
				THEN doc#>'{social,friends}'
				ELSE (doc#>'{social,friends}') || to_jsonb($2::text) END),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

const addBlockedQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,blocked}',
			CASE WHEN doc#>'{social,blocked}' @> to_jsonb($2::text)
				THEN doc#>'{social,blocked}'
				ELSE (doc#>'{social,blocked}') || to_jsonb($2::text) END),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

const addIncomingRequestQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,incoming_requests}',
			CASE WHEN EXISTS (
					SELECT 1 FROM jsonb_array_elements(doc#>'{social,incoming_requests}') AS e
					WHERE e->>'from_id' = $2::jsonb->>'from_id')
				THEN doc#>'{social,incoming_requests}'
				ELSE (doc#>'{social,incoming_requests}') || $2::jsonb END),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

const addOutgoingRequestQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,outgoing_requests}',
			CASE WHEN EXISTS (
					SELECT 1 FROM jsonb_array_elements(doc#>'{social,outgoing_requests}') AS e
					WHERE e->>'to_id' = $2::jsonb->>'to_id')
				THEN doc#>'{social,outgoing_requests}'
				ELSE (doc#>'{social,outgoing_requests}') || $2::jsonb END),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

// Subtractive updates: rebuild the array without the matching entries.
// Removing an absent value leaves the array unchanged.
const removeFriendQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,friends}', COALESCE(
			(SELECT jsonb_agg(e) FROM jsonb_array_elements(doc#>'{social,friends}') AS e
			 WHERE e <> to_jsonb($2::text)), '[]'::jsonb)),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

const removeBlockedQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,blocked}', COALESCE(
			(SELECT jsonb_agg(e) FROM jsonb_array_elements(doc#>'{social,blocked}') AS e
			 WHERE e <> to_jsonb($2::text)), '[]'::jsonb)),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

const removeIncomingRequestQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,incoming_requests}', COALESCE(
			(SELECT jsonb_agg(e) FROM jsonb_array_elements(doc#>'{social,incoming_requests}') AS e
			 WHERE e->>'from_id' IS DISTINCT FROM $2::text), '[]'::jsonb)),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

const removeOutgoingRequestQuery = `
	UPDATE players
	SET doc = jsonb_set(doc, '{social,outgoing_requests}', COALESCE(
			(SELECT jsonb_agg(e) FROM jsonb_array_elements(doc#>'{social,outgoing_requests}') AS e
			 WHERE e->>'to_id' IS DISTINCT FROM $2::text), '[]'::jsonb)),
	    updated_at = CURRENT_TIMESTAMP
	WHERE player_id = $1
`

// ApplySocialPatch applies one mutation batch to a player's social lists in
// a single transaction: existence check, lazy social initialization, the
// additive group, then the subtractive group. Ordering matters: a batch
// that adds a friend and removes the matching incoming request must end
// with the friend present and the request gone.
func (s *Store) ApplySocialPatch(ctx context.Context, playerID string, patch domain.SocialPatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Nothing is mutated for an unknown player
	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM players WHERE player_id = $1)`, playerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking player existence: %w", err)
	}
	if !exists {
		return domain.ErrPlayerNotFound
	}

	if patch.IsEmpty() {
		// Valid no-op batch
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, ensureSocialQuery, playerID); err != nil {
		return fmt.Errorf("initializing social document: %w", err)
	}

	if patch.AddFriend != "" {
		if _, err := tx.Exec(ctx, addFriendQuery, playerID, patch.AddFriend); err != nil {
			return fmt.Errorf("adding friend: %w", err)
		}
	}
	if patch.AddBlocked != "" {
		if _, err := tx.Exec(ctx, addBlockedQuery, playerID, patch.AddBlocked); err != nil {
			return fmt.Errorf("adding blocked player: %w", err)
		}
	}
	if patch.AddIncomingRequest != nil {
		record, err := json.Marshal(patch.AddIncomingRequest)
		if err != nil {
			return fmt.Errorf("marshaling incoming request: %w", err)
		}
		if _, err := tx.Exec(ctx, addIncomingRequestQuery, playerID, string(record)); err != nil {
			return fmt.Errorf("adding incoming request: %w", err)
		}
	}
	if patch.AddOutgoingRequest != nil {
		record, err := json.Marshal(patch.AddOutgoingRequest)
		if err != nil {
			return fmt.Errorf("marshaling outgoing request: %w", err)
		}
		if _, err := tx.Exec(ctx, addOutgoingRequestQuery, playerID, string(record)); err != nil {
			return fmt.Errorf("adding outgoing request: %w", err)
		}
	}

	if patch.RemoveFriend != "" {
		if _, err := tx.Exec(ctx, removeFriendQuery, playerID, patch.RemoveFriend); err != nil {
			return fmt.Errorf("removing friend: %w", err)
		}
	}
	if patch.RemoveBlocked != "" {
		if _, err := tx.Exec(ctx, removeBlockedQuery, playerID, patch.RemoveBlocked); err != nil {
			return fmt.Errorf("removing blocked player: %w", err)
		}
	}
	if patch.RemoveIncomingRequestFrom != "" {
		if _, err := tx.Exec(ctx, removeIncomingRequestQuery, playerID, patch.RemoveIncomingRequestFrom); err != nil {
			return fmt.Errorf("removing incoming request: %w", err)
		}
	}
	if patch.RemoveOutgoingRequestTo != "" {
		if _, err := tx.Exec(ctx, removeOutgoingRequestQuery, playerID, patch.RemoveOutgoingRequestTo); err != nil {
			return fmt.Errorf("removing outgoing request: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetWorld retrieves the world-state attribute map. An empty map is
// returned if the world has never been written.
func (s *Store) GetWorld(ctx context.Context) (map[string]json.RawMessage, error) {
	query := `SELECT doc FROM world_state WHERE key = $1`
	var doc []byte
	err := s.pool.QueryRow(ctx, query, worldKey).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("getting world state: %w", err)
	}

	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(doc, &attrs); err != nil {
		return nil, fmt.Errorf("unmarshaling world state: %w", err)
	}
	if attrs == nil {
		attrs = map[string]json.RawMessage{}
	}
	return attrs, nil
}

// ReplaceWorld overwrites the entire world-state attribute map
func (s *Store) ReplaceWorld(ctx context.Context, attrs map[string]json.RawMessage) error {
	doc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("marshaling world state: %w", err)
	}

	query := `
		INSERT INTO world_state (key, doc)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET doc = EXCLUDED.doc, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.pool.Exec(ctx, query, worldKey, doc); err != nil {
		return fmt.Errorf("replacing world state: %w", err)
	}
	return nil
}

// SaveWorldSnapshot archives the current world document. The returned bool
// reports whether there was a world state to archive.
func (s *Store) SaveWorldSnapshot(ctx context.Context) (bool, error) {
	query := `INSERT INTO world_snapshots (doc) SELECT doc FROM world_state WHERE key = $1`
	result, err := s.pool.Exec(ctx, query, worldKey)
	if err != nil {
		return false, fmt.Errorf("saving world snapshot: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// PruneWorldSnapshots keeps the newest n snapshots and deletes the rest
func (s *Store) PruneWorldSnapshots(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM world_snapshots
		WHERE id NOT IN (SELECT id FROM world_snapshots ORDER BY id DESC LIMIT $1)
	`
	result, err := s.pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning world snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}

func unmarshalPlayer(doc []byte) (*domain.Player, error) {
	var player domain.Player
	if err := json.Unmarshal(doc, &player); err != nil {
		return nil, fmt.Errorf("unmarshaling player: %w", err)
	}
	return &player, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
