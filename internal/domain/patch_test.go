package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePatch(t *testing.T, body string) SocialPatch {
	t.Helper()
	var patch SocialPatch
	require.NoError(t, json.Unmarshal([]byte(body), &patch))
	return patch
}

func TestSocialPatchDecode(t *testing.T) {
	t.Run("single string op", func(t *testing.T) {
		patch := decodePatch(t, `{"add_friend": "p2"}`)
		assert.Equal(t, "p2", patch.AddFriend)
		assert.False(t, patch.IsEmpty())
		assert.True(t, patch.HasAdditions())
		assert.False(t, patch.HasRemovals())
	})

	t.Run("record op", func(t *testing.T) {
		patch := decodePatch(t, `{"add_incoming_request": {"from_id": "p9", "from_name": "Hunter", "sent_at": 1700000000000}}`)
		require.NotNil(t, patch.AddIncomingRequest)
		assert.Equal(t, "p9", patch.AddIncomingRequest.FromID)
		assert.Equal(t, "Hunter", patch.AddIncomingRequest.FromName)
		assert.Equal(t, int64(1700000000000), patch.AddIncomingRequest.SentAt)
	})

	t.Run("unknown keys ignored", func(t *testing.T) {
		patch := decodePatch(t, `{"add_friend": "p2", "promote_to_admin": true, "xp": 50}`)
		assert.Equal(t, "p2", patch.AddFriend)
	})

	t.Run("wrong-typed values ignored", func(t *testing.T) {
		patch := decodePatch(t, `{"add_friend": 42, "remove_blocked": ["p1"], "add_incoming_request": "not-an-object"}`)
		assert.True(t, patch.IsEmpty())
	})

	t.Run("empty string values ignored", func(t *testing.T) {
		patch := decodePatch(t, `{"add_friend": "", "remove_friend": ""}`)
		assert.True(t, patch.IsEmpty())
	})

	t.Run("record op without key field ignored", func(t *testing.T) {
		patch := decodePatch(t, `{"add_incoming_request": {"from_name": "NoID", "sent_at": 1}}`)
		assert.Nil(t, patch.AddIncomingRequest)
		patch = decodePatch(t, `{"add_outgoing_request": {"to_name": "NoID"}}`)
		assert.Nil(t, patch.AddOutgoingRequest)
	})

	t.Run("empty object is a no-op patch", func(t *testing.T) {
		patch := decodePatch(t, `{}`)
		assert.True(t, patch.IsEmpty())
	})

	t.Run("non-object bodies rejected", func(t *testing.T) {
		for _, body := range []string{`"add_friend"`, `["add_friend"]`, `42`, `null`, `true`} {
			var patch SocialPatch
			err := json.Unmarshal([]byte(body), &patch)
			assert.ErrorIs(t, err, ErrInvalidPatch, "body %s", body)
		}
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		var patch SocialPatch
		assert.Error(t, json.Unmarshal([]byte(`{"add_friend": `), &patch))
	})
}

func TestSocialPatchApplyTo(t *testing.T) {
	t.Run("adds before removes", func(t *testing.T) {
		social := NewSocial()
		social.AddIncomingRequest(IncomingRequest{FromID: "p2", FromName: "Rogue", SentAt: 100})

		patch := decodePatch(t, `{"add_friend": "p2", "remove_incoming_request_from": "p2"}`)
		patch.ApplyTo(social)

		assert.Equal(t, []string{"p2"}, social.Friends)
		assert.Empty(t, social.IncomingRequests)
	})

	t.Run("add is idempotent", func(t *testing.T) {
		social := NewSocial()
		patch := decodePatch(t, `{"add_friend": "p2"}`)
		patch.ApplyTo(social)
		patch.ApplyTo(social)
		assert.Equal(t, []string{"p2"}, social.Friends)
	})

	t.Run("request add is idempotent by key", func(t *testing.T) {
		social := NewSocial()
		social.AddIncomingRequest(IncomingRequest{FromID: "p2", FromName: "Old", SentAt: 1})
		social.AddIncomingRequest(IncomingRequest{FromID: "p2", FromName: "New", SentAt: 2})
		require.Len(t, social.IncomingRequests, 1)
		// First write wins, later duplicates are dropped
		assert.Equal(t, "Old", social.IncomingRequests[0].FromName)
	})

	t.Run("remove of absent element is a no-op", func(t *testing.T) {
		social := NewSocial()
		social.AddFriend("p2")
		patch := decodePatch(t, `{"remove_friend": "p3", "remove_outgoing_request_to": "p4"}`)
		patch.ApplyTo(social)
		assert.Equal(t, []string{"p2"}, social.Friends)
	})

	t.Run("all lists are independent", func(t *testing.T) {
		social := NewSocial()
		patch := decodePatch(t, `{"add_friend": "a", "add_blocked": "a"}`)
		patch.ApplyTo(social)
		assert.Equal(t, []string{"a"}, social.Friends)
		assert.Equal(t, []string{"a"}, social.Blocked)
	})

	t.Run("remove preserves order of the rest", func(t *testing.T) {
		social := NewSocial()
		social.AddFriend("a")
		social.AddFriend("b")
		social.AddFriend("c")
		social.RemoveFriend("b")
		assert.Equal(t, []string{"a", "c"}, social.Friends)
	})
}
