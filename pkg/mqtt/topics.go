package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout: hosts/<host-id>/<channel>. Commands flow down to one host,
// acks and status heartbeats flow up and are consumed with a wildcard.
const (
	ChannelCommands = "commands"
	ChannelAcks     = "acks"
	ChannelStatus   = "status"

	// TopicAllAcks matches every host's ack channel
	TopicAllAcks = "hosts/+/acks"
	// TopicAllStatus matches every host's status channel
	TopicAllStatus = "hosts/+/status"
)

// CommandTopic returns the per-host command topic
func CommandTopic(hostID string) string {
	return fmt.Sprintf("hosts/%s/commands", hostID)
}

// AckTopic returns the per-host ack topic
func AckTopic(hostID string) string {
	return fmt.Sprintf("hosts/%s/acks", hostID)
}

// StatusTopic returns the per-host status topic
func StatusTopic(hostID string) string {
	return fmt.Sprintf("hosts/%s/status", hostID)
}

// ParseHostTopic splits hosts/<host-id>/<channel> into its parts. MQTT
// wildcards deliver the concrete topic, so the host ID is always literal here.
func ParseHostTopic(topic string) (hostID, channel string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "hosts" {
		return "", "", fmt.Errorf("malformed host topic %q", topic)
	}
	if parts[1] == "" || strings.ContainsAny(parts[1], "+#") {
		return "", "", fmt.Errorf("malformed host id in topic %q", topic)
	}
	switch parts[2] {
	case ChannelCommands, ChannelAcks, ChannelStatus:
		return parts[1], parts[2], nil
	default:
		return "", "", fmt.Errorf("unknown channel in topic %q", topic)
	}
}
