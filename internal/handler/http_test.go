package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creature-backend/internal/domain"
	"github.com/creature-backend/internal/service"
)

// memStore implements service.PlayerStore, service.WorldStore and Pinger
// in memory for router tests
type memStore struct {
	players map[string]*domain.Player
	names   map[string]string
	world   map[string]json.RawMessage
	pingErr error
}

func newMemStore() *memStore {
	return &memStore{
		players: make(map[string]*domain.Player),
		names:   make(map[string]string),
	}
}

func (m *memStore) Ping(_ context.Context) error { return m.pingErr }

func (m *memStore) GetPlayerByID(_ context.Context, playerID string) (*domain.Player, error) {
	player, ok := m.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (m *memStore) GetPlayerByName(_ context.Context, name string) (*domain.Player, error) {
	id, ok := m.names[name]
	if !ok {
		return nil, nil
	}
	return m.players[id], nil
}

func (m *memStore) PlayerNameExists(_ context.Context, name string) (bool, error) {
	_, ok := m.names[name]
	return ok, nil
}

func (m *memStore) CreatePlayer(_ context.Context, player *domain.Player) error {
	if player.PlayerName != "" {
		if _, taken := m.names[player.PlayerName]; taken {
			return domain.ErrNameTaken
		}
		m.names[player.PlayerName] = player.PlayerID
	}
	m.players[player.PlayerID] = player
	return nil
}

func (m *memStore) ReplacePlayer(_ context.Context, player *domain.Player) (bool, error) {
	if player.PlayerName != "" {
		if owner, taken := m.names[player.PlayerName]; taken && owner != player.PlayerID {
			return false, domain.ErrNameConflict
		}
	}
	existing, replaced := m.players[player.PlayerID]
	if replaced && existing.PlayerName != "" {
		delete(m.names, existing.PlayerName)
	}
	if player.PlayerName != "" {
		m.names[player.PlayerName] = player.PlayerID
	}
	m.players[player.PlayerID] = player
	return !replaced, nil
}

func (m *memStore) DeletePlayer(_ context.Context, playerID string) error {
	player, ok := m.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if player.PlayerName != "" {
		delete(m.names, player.PlayerName)
	}
	delete(m.players, playerID)
	return nil
}

func (m *memStore) ApplySocialPatch(_ context.Context, playerID string, patch domain.SocialPatch) error {
	player, ok := m.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if patch.IsEmpty() {
		return nil
	}
	patch.ApplyTo(player.EnsureSocial())
	return nil
}

func (m *memStore) GetWorld(_ context.Context) (map[string]json.RawMessage, error) {
	if m.world == nil {
		return map[string]json.RawMessage{}, nil
	}
	return m.world, nil
}

func (m *memStore) ReplaceWorld(_ context.Context, attrs map[string]json.RawMessage) error {
	m.world = attrs
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()

	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	players := service.NewPlayerService(store, logger)
	world := service.NewWorldService(store, logger)

	h := NewHandler(players, world, nil, store, logger)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func doRequest(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createPlayer(t *testing.T, srv *httptest.Server, body string) map[string]json.RawMessage {
	t.Helper()

	resp, data := doRequest(t, http.MethodPost, srv.URL+"/players", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func playerID(t *testing.T, doc map[string]json.RawMessage) string {
	t.Helper()
	var id string
	require.NoError(t, json.Unmarshal(doc["player_id"], &id))
	require.NotEmpty(t, id)
	return id
}

func TestHealthCheck(t *testing.T) {
	srv, store := newTestServer(t)

	resp, data := doRequest(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status": "ok", "db": "connected"}`, string(data))

	store.pingErr = context.DeadlineExceeded
	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCreatePlayer(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("creates with minted id and open fields", func(t *testing.T) {
		doc := createPlayer(t, srv, `{"player_name": "Phoenix1", "level": 3}`)
		playerID(t, doc)
		assert.JSONEq(t, `"Phoenix1"`, string(doc["player_name"]))
		assert.JSONEq(t, `3`, string(doc["level"]))
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPost, srv.URL+"/players", `{"player_name": "Phoenix1"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.JSONEq(t, `{"error": "player name already exists"}`, string(data))
	})

	t.Run("missing name rejected", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, srv.URL+"/players", `{"level": 3}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPost, srv.URL+"/players", `not json`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetPlayer(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := createPlayer(t, srv, `{"player_name": "Phoenix1", "level": 3}`)
	id := playerID(t, doc)

	t.Run("found", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodGet, srv.URL+"/players/"+id, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &got))
		assert.JSONEq(t, `"Phoenix1"`, string(got["player_name"]))
		assert.JSONEq(t, `3`, string(got["level"]))
	})

	t.Run("unknown id", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodGet, srv.URL+"/players/missing", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `{"error": "player not found"}`, string(data))
	})
}

func TestGetPlayerByName(t *testing.T) {
	srv, _ := newTestServer(t)
	createPlayer(t, srv, `{"player_name": "Phoenix1"}`)

	t.Run("found", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodGet, srv.URL+"/players/by-name/Phoenix1", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &got))
		assert.JSONEq(t, `"Phoenix1"`, string(got["player_name"]))
	})

	t.Run("absent name returns empty object", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodGet, srv.URL+"/players/by-name/Nobody", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{}`, string(data))
	})
}

func TestPlayerNameExists(t *testing.T) {
	srv, _ := newTestServer(t)
	createPlayer(t, srv, `{"player_name": "Phoenix1"}`)

	resp, data := doRequest(t, http.MethodGet, srv.URL+"/players/by-name/Phoenix1/exists", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"exists": true}`, string(data))

	resp, data = doRequest(t, http.MethodGet, srv.URL+"/players/by-name/Nobody/exists", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"exists": false}`, string(data))
}

func TestReplacePlayer(t *testing.T) {
	srv, store := newTestServer(t)

	t.Run("insert reports upserted", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPut, srv.URL+"/players/p1", `{"player_name": "Phoenix1", "level": 1}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok": true, "upserted": true}`, string(data))
	})

	t.Run("overwrite replaces the whole record", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPut, srv.URL+"/players/p1", `{"player_name": "Phoenix1", "hp": 50}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok": true, "upserted": false}`, string(data))

		stored := store.players["p1"]
		require.NotNil(t, stored)
		_, hadLevel := stored.Extra["level"]
		assert.False(t, hadLevel)
		assert.JSONEq(t, `50`, string(stored.Extra["hp"]))
	})

	t.Run("path id overrides body id", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPut, srv.URL+"/players/p2", `{"player_id": "forged"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotNil(t, store.players["p2"])
		assert.Nil(t, store.players["forged"])
	})

	t.Run("name owned by another player conflicts", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPut, srv.URL+"/players/p3", `{"player_name": "Phoenix1"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestPatchSocial(t *testing.T) {
	srv, store := newTestServer(t)
	doc := createPlayer(t, srv, `{"player_name": "Phoenix1"}`)
	id := playerID(t, doc)

	t.Run("applies a batch", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPatch, srv.URL+"/players/"+id+"/social",
			`{"add_friend": "p2", "remove_incoming_request_from": "p2"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok": true}`, string(data))

		social := store.players[id].Social
		require.NotNil(t, social)
		assert.Equal(t, []string{"p2"}, social.Friends)
	})

	t.Run("batch is idempotent", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPatch, srv.URL+"/players/"+id+"/social", `{"add_friend": "p2"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []string{"p2"}, store.players[id].Social.Friends)
	})

	t.Run("unknown keys acknowledged and ignored", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPatch, srv.URL+"/players/"+id+"/social", `{"promote": true}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok": true}`, string(data))
	})

	t.Run("non-object body rejected", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPatch, srv.URL+"/players/"+id+"/social", `["add_friend"]`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"error": "request body must be an object of operations"}`, string(data))
	})

	t.Run("unknown player", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPatch, srv.URL+"/players/missing/social", `{"add_friend": "p2"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDeletePlayer(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := createPlayer(t, srv, `{"player_name": "Phoenix1"}`)
	id := playerID(t, doc)

	resp, data := doRequest(t, http.MethodDelete, srv.URL+"/players/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok": true}`, string(data))

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/players/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Name is free again
	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/players", `{"player_name": "Phoenix1"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestWorld(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("empty before first write", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodGet, srv.URL+"/world", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{}`, string(data))
	})

	t.Run("replace then read back", func(t *testing.T) {
		resp, data := doRequest(t, http.MethodPut, srv.URL+"/world", `{"season": 3, "event": "harvest"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok": true}`, string(data))

		resp, data = doRequest(t, http.MethodGet, srv.URL+"/world", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"season": 3, "event": "harvest"}`, string(data))
	})

	t.Run("replace overwrites wholesale", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPut, srv.URL+"/world", `{"season": 4}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		_, data := doRequest(t, http.MethodGet, srv.URL+"/world", "")
		assert.JSONEq(t, `{"season": 4}`, string(data))
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		resp, _ := doRequest(t, http.MethodPut, srv.URL+"/world", `not json`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
