package domain

import (
	"bytes"
	"encoding/json"
)

// SocialPatch is a batch of partial-update operations against one player's
// social sub-document. Any subset of operations, including none, may be
// present in a batch.
type SocialPatch struct {
	AddFriend                 string
	RemoveFriend              string
	AddBlocked                string
	RemoveBlocked             string
	AddIncomingRequest        *IncomingRequest
	RemoveIncomingRequestFrom string
	AddOutgoingRequest        *OutgoingRequest
	RemoveOutgoingRequestTo   string
}

// UnmarshalJSON decodes a patch batch. Unrecognized keys are ignored, and so
// are recognized keys carrying the wrong type or an empty key field; only a
// body that is not a JSON object is an error.
func (p *SocialPatch) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrInvalidPatch
	}

	var ops map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &ops); err != nil {
		return ErrInvalidPatch
	}

	*p = SocialPatch{}
	for key, raw := range ops {
		switch key {
		case "add_friend":
			decodeStringOp(raw, &p.AddFriend)
		case "remove_friend":
			decodeStringOp(raw, &p.RemoveFriend)
		case "add_blocked":
			decodeStringOp(raw, &p.AddBlocked)
		case "remove_blocked":
			decodeStringOp(raw, &p.RemoveBlocked)
		case "add_incoming_request":
			var req IncomingRequest
			if json.Unmarshal(raw, &req) == nil && req.FromID != "" {
				p.AddIncomingRequest = &req
			}
		case "remove_incoming_request_from":
			decodeStringOp(raw, &p.RemoveIncomingRequestFrom)
		case "add_outgoing_request":
			var req OutgoingRequest
			if json.Unmarshal(raw, &req) == nil && req.ToID != "" {
				p.AddOutgoingRequest = &req
			}
		case "remove_outgoing_request_to":
			decodeStringOp(raw, &p.RemoveOutgoingRequestTo)
		}
	}
	return nil
}

func decodeStringOp(raw json.RawMessage, dst *string) {
	var s string
	if json.Unmarshal(raw, &s) == nil && s != "" {
		*dst = s
	}
}

// IsEmpty reports whether the batch carries no recognized operations.
func (p SocialPatch) IsEmpty() bool {
	return !p.HasAdditions() && !p.HasRemovals()
}

// HasAdditions reports whether the additive group is non-empty.
func (p SocialPatch) HasAdditions() bool {
	return p.AddFriend != "" || p.AddBlocked != "" ||
		p.AddIncomingRequest != nil || p.AddOutgoingRequest != nil
}

// HasRemovals reports whether the subtractive group is non-empty.
func (p SocialPatch) HasRemovals() bool {
	return p.RemoveFriend != "" || p.RemoveBlocked != "" ||
		p.RemoveIncomingRequestFrom != "" || p.RemoveOutgoingRequestTo != ""
}

// ApplyTo applies the batch to an in-memory social sub-document: the
// additive group first, then the subtractive group. A batch that adds a
// friend and removes the matching incoming request therefore ends with the
// friend present and the request gone.
func (p SocialPatch) ApplyTo(s *Social) {
	if p.AddFriend != "" {
		s.AddFriend(p.AddFriend)
	}
	if p.AddBlocked != "" {
		s.AddBlocked(p.AddBlocked)
	}
	if p.AddIncomingRequest != nil {
		s.AddIncomingRequest(*p.AddIncomingRequest)
	}
	if p.AddOutgoingRequest != nil {
		s.AddOutgoingRequest(*p.AddOutgoingRequest)
	}

	if p.RemoveFriend != "" {
		s.RemoveFriend(p.RemoveFriend)
	}
	if p.RemoveBlocked != "" {
		s.RemoveBlocked(p.RemoveBlocked)
	}
	if p.RemoveIncomingRequestFrom != "" {
		s.RemoveIncomingRequestFrom(p.RemoveIncomingRequestFrom)
	}
	if p.RemoveOutgoingRequestTo != "" {
		s.RemoveOutgoingRequestTo(p.RemoveOutgoingRequestTo)
	}
}

// AddFriend adds id to the friends set. Adding a present id is a no-op.
func (s *Social) AddFriend(id string) {
	s.Friends = addToSet(s.Friends, id)
}

// RemoveFriend removes id from the friends set. Removing an absent id is a
// no-op.
func (s *Social) RemoveFriend(id string) {
	s.Friends = removeFromSet(s.Friends, id)
}

// AddBlocked adds id to the blocked set.
func (s *Social) AddBlocked(id string) {
	s.Blocked = addToSet(s.Blocked, id)
}

// RemoveBlocked removes id from the blocked set.
func (s *Social) RemoveBlocked(id string) {
	s.Blocked = removeFromSet(s.Blocked, id)
}

// AddIncomingRequest adds a request keyed by from_id. A second request from
// the same sender is a no-op.
func (s *Social) AddIncomingRequest(req IncomingRequest) {
	for _, existing := range s.IncomingRequests {
		if existing.FromID == req.FromID {
			return
		}
	}
	s.IncomingRequests = append(s.IncomingRequests, req)
}

// RemoveIncomingRequestFrom removes any request matching from_id.
func (s *Social) RemoveIncomingRequestFrom(fromID string) {
	kept := s.IncomingRequests[:0]
	for _, req := range s.IncomingRequests {
		if req.FromID != fromID {
			kept = append(kept, req)
		}
	}
	s.IncomingRequests = kept
}

// AddOutgoingRequest adds a request keyed by to_id.
func (s *Social) AddOutgoingRequest(req OutgoingRequest) {
	for _, existing := range s.OutgoingRequests {
		if existing.ToID == req.ToID {
			return
		}
	}
	s.OutgoingRequests = append(s.OutgoingRequests, req)
}

// RemoveOutgoingRequestTo removes any request matching to_id.
func (s *Social) RemoveOutgoingRequestTo(toID string) {
	kept := s.OutgoingRequests[:0]
	for _, req := range s.OutgoingRequests {
		if req.ToID != toID {
			kept = append(kept, req)
		}
	}
	s.OutgoingRequests = kept
}

func addToSet(set []string, value string) []string {
	for _, v := range set {
		if v == value {
			return set
		}
	}
	return append(set, value)
}

func removeFromSet(set []string, value string) []string {
	kept := set[:0]
	for _, v := range set {
		if v != value {
			kept = append(kept, v)
		}
	}
	return kept
}
