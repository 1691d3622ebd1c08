package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rookeryhq/rookery/pkg/deploy"
	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/types"
)

// Bridge connects the control plane to the agent fleet over the broker. It
// publishes command envelopes downstream and feeds acks and heartbeats from
// the wildcard subscriptions back into the manager and the deployment
// tracker. Inbound handlers run only on the raft leader; followers stay
// subscribed but discard, so a leadership change needs no re-subscribe.
type Bridge struct {
	client  Client
	manager *manager.Manager
	tracker *deploy.Tracker
}

// NewBridge creates a bridge over an unconnected client. Attach the
// deployment tracker before Start; the tracker itself publishes through the
// bridge, so the two are wired in that order.
func NewBridge(client Client, mgr *manager.Manager) *Bridge {
	return &Bridge{client: client, manager: mgr}
}

// AttachTracker wires the deployment tracker that consumes acks
func (b *Bridge) AttachTracker(tracker *deploy.Tracker) {
	b.tracker = tracker
}

// Start connects to the broker and subscribes to the fleet's ack and status
// channels
func (b *Bridge) Start() error {
	if b.tracker == nil {
		return fmt.Errorf("bridge started without a deployment tracker")
	}
	if err := b.client.Connect(); err != nil {
		return err
	}
	if err := b.client.Subscribe(TopicAllAcks, b.handleAck); err != nil {
		return err
	}
	if err := b.client.Subscribe(TopicAllStatus, b.handleStatus); err != nil {
		return err
	}
	log.Logger.Info().
		Str("component", "mqtt").
		Msg("Fleet bridge started")
	return nil
}

// Stop disconnects from the broker
func (b *Bridge) Stop() {
	b.client.Disconnect()
}

// PublishCommand sends a command envelope to its host's command topic. It
// satisfies the deployment tracker's transport dependency.
func (b *Bridge) PublishCommand(cmd *types.CommandEnvelope) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command %s: %w", cmd.CommandID, err)
	}
	return b.client.Publish(CommandTopic(cmd.HostID), payload)
}

// handleAck feeds an agent acknowledgement into the deployment tracker. The
// topic's host segment is authoritative; an envelope claiming a different
// host is dropped.
func (b *Bridge) handleAck(topic string, payload []byte) {
	if !b.manager.IsLeader() {
		return
	}

	hostID, _, err := ParseHostTopic(topic)
	if err != nil {
		log.Logger.Warn().
			Str("component", "mqtt").
			Err(err).
			Msg("Discarded ack on malformed topic")
		return
	}

	var ack types.AckEnvelope
	if err := json.Unmarshal(payload, &ack); err != nil {
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("host_id", hostID).
			Err(err).
			Msg("Discarded undecodable ack")
		return
	}
	if ack.HostID == "" {
		ack.HostID = hostID
	}
	if ack.HostID != hostID {
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("topic_host", hostID).
			Str("claimed_host", ack.HostID).
			Str("node_id", ack.NodeID).
			Msg("Discarded ack claiming another host")
		return
	}

	if err := b.tracker.HandleAck(&ack); err != nil {
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("host_id", ack.HostID).
			Str("node_id", ack.NodeID).
			Str("result", string(ack.Result)).
			Err(err).
			Msg("Ack processing failed")
	}
}

// handleStatus records an agent heartbeat: the host goes online and its
// last-seen timestamp advances. Heartbeats from hosts that were offline or
// never seen raise host.online.
func (b *Bridge) handleStatus(topic string, payload []byte) {
	if !b.manager.IsLeader() {
		return
	}

	hostID, _, err := ParseHostTopic(topic)
	if err != nil {
		log.Logger.Warn().
			Str("component", "mqtt").
			Err(err).
			Msg("Discarded heartbeat on malformed topic")
		return
	}

	var hb types.StatusEnvelope
	if err := json.Unmarshal(payload, &hb); err != nil {
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("host_id", hostID).
			Err(err).
			Msg("Discarded undecodable heartbeat")
		return
	}
	seen := hb.SentAt
	if seen.IsZero() {
		seen = time.Now()
	}

	host, err := b.manager.GetHost(hostID)
	if err != nil {
		if errors.Is(err, types.ErrHostNotFound) {
			log.Logger.Debug().
				Str("component", "mqtt").
				Str("host_id", hostID).
				Msg("Heartbeat from unknown host")
			return
		}
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("host_id", hostID).
			Err(err).
			Msg("Heartbeat host lookup failed")
		return
	}

	wasOnline := host.Status == types.HostStatusOnline
	if err := b.manager.SetHostStatus(hostID, types.HostStatusOnline, seen); err != nil {
		log.Logger.Warn().
			Str("component", "mqtt").
			Str("host_id", hostID).
			Err(err).
			Msg("Heartbeat status update failed")
		return
	}
	if !wasOnline {
		log.Logger.Info().
			Str("component", "mqtt").
			Str("host_id", hostID).
			Str("previous", string(host.Status)).
			Msg("Host came online")
		b.manager.PublishEvent(&events.Event{
			ID:        uuid.New().String(),
			Type:      events.EventHostOnline,
			Timestamp: time.Now(),
			HostID:    hostID,
			Message:   "agent heartbeat received",
		})
	}
}
