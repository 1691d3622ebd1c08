package reconciler

import (
	"time"

	"github.com/google/uuid"

	"github.com/rookeryhq/rookery/pkg/events"
	"github.com/rookeryhq/rookery/pkg/log"
	"github.com/rookeryhq/rookery/pkg/manager"
	"github.com/rookeryhq/rookery/pkg/metrics"
	"github.com/rookeryhq/rookery/pkg/types"
)

const (
	// DefaultInterval is how often host liveness is checked
	DefaultInterval = 30 * time.Second

	// DefaultOfflineAfter is the heartbeat silence after which a host is
	// marked offline
	DefaultOfflineAfter = 90 * time.Second
)

// Config tunes the liveness check
type Config struct {
	Interval     time.Duration
	OfflineAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = DefaultOfflineAfter
	}
	return c
}

// Reconciler marks hosts offline when their agents stop heartbeating.
// Agents report on their status topic; the listener records each heartbeat,
// and this loop notices the silence. Offline hosts stop receiving
// placements but keep their nodes and reservations: the agent may only have
// lost its broker connection.
type Reconciler struct {
	manager *manager.Manager
	cfg     Config
	stopCh  chan struct{}
}

// NewReconciler creates a host liveness reconciler
func NewReconciler(mgr *manager.Manager, cfg Config) *Reconciler {
	return &Reconciler{
		manager: mgr,
		cfg:     cfg.withDefaults(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the liveness loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the liveness loop
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.manager.IsLeader() {
				continue
			}
			if err := r.reconcile(); err != nil {
				log.Logger.Error().
					Str("component", "reconciler").
					Err(err).
					Msg("liveness check failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// reconcile performs one liveness pass
func (r *Reconciler) reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.LivenessSweepDuration)
		metrics.LivenessSweepsTotal.Inc()
	}()

	hosts, err := r.manager.ListHosts()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, host := range hosts {
		if host.Status != types.HostStatusOnline {
			continue
		}
		silence := now.Sub(host.LastSeen)
		if silence <= r.cfg.OfflineAfter {
			continue
		}

		// Keep LastSeen at the final heartbeat; only the status flips.
		if err := r.manager.SetHostStatus(host.ID, types.HostStatusOffline, time.Time{}); err != nil {
			log.Logger.Error().
				Str("component", "reconciler").
				Str("host_id", host.ID).
				Err(err).
				Msg("marking host offline failed")
			continue
		}

		log.Logger.Warn().
			Str("component", "reconciler").
			Str("host_id", host.ID).
			Dur("silence", silence).
			Msg("host went offline")
		r.manager.PublishEvent(&events.Event{
			ID:        uuid.New().String(),
			Type:      events.EventHostOffline,
			Timestamp: now,
			HostID:    host.ID,
			Message:   "no heartbeat from agent",
		})
	}
	return nil
}
