package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGroupMemberMarshal tests the serialized form of both member variants
func TestGroupMemberMarshal(t *testing.T) {
	tests := []struct {
		name     string
		member   GroupMember
		expected string
	}{
		{
			name:     "host member",
			member:   HostMember{HostID: "host-1"},
			expected: `{"kind":"host","id":"host-1"}`,
		},
		{
			name:     "node member",
			member:   NodeMember{NodeID: "node-9"},
			expected: `{"kind":"node","id":"node-9"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.member)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

// TestUnmarshalGroupMember tests decoding back into concrete variants
func TestUnmarshalGroupMember(t *testing.T) {
	m, err := UnmarshalGroupMember([]byte(`{"kind":"host","id":"h1"}`))
	require.NoError(t, err)
	host, ok := m.(HostMember)
	require.True(t, ok, "expected HostMember, got %T", m)
	assert.Equal(t, "h1", host.HostID)
	assert.Equal(t, "h1", m.MemberID())

	m, err = UnmarshalGroupMember([]byte(`{"kind":"node","id":"n1"}`))
	require.NoError(t, err)
	node, ok := m.(NodeMember)
	require.True(t, ok, "expected NodeMember, got %T", m)
	assert.Equal(t, "n1", node.NodeID)

	_, err = UnmarshalGroupMember([]byte(`{"kind":"org","id":"o1"}`))
	assert.Error(t, err, "unknown kinds must be rejected")
}

// TestGroupRoundTrip tests that a group survives storage serialization with
// its polymorphic members intact and ordered
func TestGroupRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	group := Group{
		ID:    "grp-1",
		OrgID: "org-1",
		Name:  "validators-eu",
		Members: []GroupMember{
			HostMember{HostID: "host-a"},
			NodeMember{NodeID: "node-b"},
			HostMember{HostID: "host-c"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(group)
	require.NoError(t, err)

	var decoded Group
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, group.ID, decoded.ID)
	assert.Equal(t, group.OrgID, decoded.OrgID)
	assert.Equal(t, group.Name, decoded.Name)
	require.Len(t, decoded.Members, 3)
	assert.Equal(t, group.Members, decoded.Members)

	// Membership handling stays exhaustive over the closed variant set.
	var hosts, nodes int
	for _, m := range decoded.Members {
		switch m.(type) {
		case HostMember:
			hosts++
		case NodeMember:
			nodes++
		}
	}
	assert.Equal(t, 2, hosts)
	assert.Equal(t, 1, nodes)
}
