package types

import (
	"encoding/json"
	"fmt"
)

// GroupMemberKind discriminates serialized group membership entries
type GroupMemberKind string

const (
	GroupMemberHostKind GroupMemberKind = "host"
	GroupMemberNodeKind GroupMemberKind = "node"
)

// GroupMember is a polymorphic reference to a host or a node inside a group.
// The set of implementations is closed: HostMember and NodeMember are the only
// two, so a type switch over both handles every membership entry.
type GroupMember interface {
	Kind() GroupMemberKind
	MemberID() string

	isGroupMember()
}

// HostMember references a host by id
type HostMember struct {
	HostID string
}

func (m HostMember) Kind() GroupMemberKind { return GroupMemberHostKind }
func (m HostMember) MemberID() string      { return m.HostID }
func (HostMember) isGroupMember()          {}

// NodeMember references a node by id
type NodeMember struct {
	NodeID string
}

func (m NodeMember) Kind() GroupMemberKind { return GroupMemberNodeKind }
func (m NodeMember) MemberID() string      { return m.NodeID }
func (NodeMember) isGroupMember()          {}

// memberRecord is the serialized form of a GroupMember
type memberRecord struct {
	Kind GroupMemberKind `json:"kind"`
	ID   string          `json:"id"`
}

// MarshalJSON encodes the member as {"kind":"host","id":...}
func (m HostMember) MarshalJSON() ([]byte, error) {
	return json.Marshal(memberRecord{Kind: m.Kind(), ID: m.HostID})
}

// MarshalJSON encodes the member as {"kind":"node","id":...}
func (m NodeMember) MarshalJSON() ([]byte, error) {
	return json.Marshal(memberRecord{Kind: m.Kind(), ID: m.NodeID})
}

// UnmarshalGroupMember decodes one serialized membership entry back into its
// concrete variant
func UnmarshalGroupMember(data []byte) (GroupMember, error) {
	var rec memberRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	switch rec.Kind {
	case GroupMemberHostKind:
		return HostMember{HostID: rec.ID}, nil
	case GroupMemberNodeKind:
		return NodeMember{NodeID: rec.ID}, nil
	default:
		return nil, fmt.Errorf("unknown group member kind %q", rec.Kind)
	}
}

// UnmarshalJSON restores the polymorphic Members slice; all other fields
// decode as usual
func (g *Group) UnmarshalJSON(data []byte) error {
	type alias Group
	aux := struct {
		Members []json.RawMessage
		*alias
	}{alias: (*alias)(g)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	g.Members = nil
	for _, raw := range aux.Members {
		m, err := UnmarshalGroupMember(raw)
		if err != nil {
			return err
		}
		g.Members = append(g.Members, m)
	}
	return nil
}
