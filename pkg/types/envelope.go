package types

import "time"

// CommandAction identifies the operation requested of a host agent
type CommandAction string

const (
	CommandCreate  CommandAction = "create"
	CommandUpgrade CommandAction = "upgrade"
	CommandDelete  CommandAction = "delete"
)

// CommandEnvelope is the message published to a host's command topic.
// Delivery is at-least-once; ordering is preserved per host topic only.
type CommandEnvelope struct {
	CommandID  string            `json:"command_id"`
	HostID     string            `json:"host_id"`
	NodeID     string            `json:"node_id"`
	Action     CommandAction     `json:"action"`
	NodeType   string            `json:"node_type,omitempty"`
	ChainID    string            `json:"chain_id,omitempty"`
	Version    string            `json:"version,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	MACAddress string            `json:"mac_address,omitempty"`
	IssuedAt   time.Time         `json:"issued_at"`
}

// AckResult is the outcome an agent reports for an executed command
type AckResult string

const (
	AckSuccess AckResult = "success"
	AckFailure AckResult = "failure"
)

// AckEnvelope is the acknowledgement an agent publishes after executing a
// command. Duplicates and cross-host reordering must be tolerated by the
// consumer.
type AckEnvelope struct {
	HostID    string    `json:"host_id"`
	NodeID    string    `json:"node_id"`
	CommandID string    `json:"command_id,omitempty"`
	Result    AckResult `json:"result"`
	Detail    string    `json:"detail,omitempty"`
	SentAt    time.Time `json:"sent_at,omitempty"`
}

// StatusEnvelope is the periodic heartbeat an agent publishes on its status
// topic; absence of heartbeats marks the host offline
type StatusEnvelope struct {
	HostID string    `json:"host_id"`
	SentAt time.Time `json:"sent_at"`
}
