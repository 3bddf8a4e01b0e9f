package domain

import "encoding/json"

// IncomingRequest is a pending friend request received by a player.
// At most one live request per from_id.
type IncomingRequest struct {
	FromID   string `json:"from_id"`
	FromName string `json:"from_name,omitempty"`
	SentAt   int64  `json:"sent_at,omitempty"`
}

// OutgoingRequest is a pending friend request sent by a player.
// At most one live request per to_id.
type OutgoingRequest struct {
	ToID   string `json:"to_id"`
	ToName string `json:"to_name,omitempty"`
	SentAt int64  `json:"sent_at,omitempty"`
}

// Social holds a player's social graph. Once created it always carries all
// four lists; a partially initialized sub-document is never persisted.
type Social struct {
	Friends          []string          `json:"friends"`
	Blocked          []string          `json:"blocked"`
	IncomingRequests []IncomingRequest `json:"incoming_requests"`
	OutgoingRequests []OutgoingRequest `json:"outgoing_requests"`
}

// NewSocial returns an empty social sub-document with all lists present.
func NewSocial() *Social {
	return &Social{
		Friends:          []string{},
		Blocked:          []string{},
		IncomingRequests: []IncomingRequest{},
		OutgoingRequests: []OutgoingRequest{},
	}
}

// Player is a player record: a typed core (id, name, social) plus an open
// side-map of caller-supplied fields preserved verbatim through writes.
type Player struct {
	PlayerID   string
	PlayerName string
	Social     *Social
	Extra      map[string]json.RawMessage
}

// MarshalJSON flattens the typed core and the side-map into one object.
func (p Player) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(p.Extra)+3)
	for k, v := range p.Extra {
		doc[k] = v
	}
	if p.PlayerID != "" {
		raw, err := json.Marshal(p.PlayerID)
		if err != nil {
			return nil, err
		}
		doc["player_id"] = raw
	}
	if p.PlayerName != "" {
		raw, err := json.Marshal(p.PlayerName)
		if err != nil {
			return nil, err
		}
		doc["player_name"] = raw
	}
	if p.Social != nil {
		raw, err := json.Marshal(p.Social)
		if err != nil {
			return nil, err
		}
		doc["social"] = raw
	}
	return json.Marshal(doc)
}

// UnmarshalJSON pulls the typed core out of the object and keeps every
// other top-level field opaque.
func (p *Player) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*p = Player{}
	for key, raw := range doc {
		switch key {
		case "player_id":
			if err := json.Unmarshal(raw, &p.PlayerID); err != nil {
				return err
			}
		case "player_name":
			if err := json.Unmarshal(raw, &p.PlayerName); err != nil {
				return err
			}
		case "social":
			if string(raw) == "null" {
				continue
			}
			p.Social = &Social{}
			if err := json.Unmarshal(raw, p.Social); err != nil {
				return err
			}
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = raw
		}
	}
	return nil
}

// EnsureSocial lazily initializes the social sub-document and fills in any
// missing list so all four are always present.
func (p *Player) EnsureSocial() *Social {
	if p.Social == nil {
		p.Social = NewSocial()
		return p.Social
	}
	if p.Social.Friends == nil {
		p.Social.Friends = []string{}
	}
	if p.Social.Blocked == nil {
		p.Social.Blocked = []string{}
	}
	if p.Social.IncomingRequests == nil {
		p.Social.IncomingRequests = []IncomingRequest{}
	}
	if p.Social.OutgoingRequests == nil {
		p.Social.OutgoingRequests = []OutgoingRequest{}
	}
	return p.Social
}
