package sqlite

import (
	"context"
	"log"
	"time"

	"github.com/eaasxt/farmhand/internal/core"
)

// Broadcaster is the interface for emitting events to WebSocket clients.
type Broadcaster interface {
	Broadcast(project string, event any)
}

// sweepStore is the slice of the store the sweeper needs. Both *Store
// and *ResilientStore satisfy it.
type sweepStore interface {
	ProjectKeys(ctx context.Context) ([]string, error)
	ForceReleaseStale(ctx context.Context, projectKey string, threshold time.Duration) ([]core.Reservation, error)
}

// Sweeper runs a background goroutine that periodically force-releases
// reservations whose holders have gone quiet.
type Sweeper struct {
	store     sweepStore
	bus       Broadcaster
	interval  time.Duration
	threshold time.Duration // holder inactivity before a claim counts as stale
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper creates a new Sweeper. Call Start() to begin sweeping.
func NewSweeper(store sweepStore, bus Broadcaster, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		bus:       bus,
		interval:  interval,
		threshold: threshold,
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)

		// Startup sweep uses a doubled threshold so a server restart does
		// not immediately reap agents that were active moments before.
		sw.runSweep(ctx, 2*sw.threshold)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runSweep(ctx, sw.threshold)
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	<-sw.done
}

func (sw *Sweeper) runSweep(ctx context.Context, threshold time.Duration) {
	keys, err := sw.store.ProjectKeys(ctx)
	if err != nil {
		log.Printf("sweeper: list projects: %v", err)
		return
	}

	for _, key := range keys {
		released, err := sw.store.ForceReleaseStale(ctx, key, threshold)
		if err != nil {
			log.Printf("sweeper: project %s: %v", key, err)
			continue
		}
		if len(released) == 0 {
			continue
		}

		log.Printf("sweeper: project %s: released %d stale reservation(s)", key, len(released))

		if sw.bus != nil {
			for _, r := range released {
				sw.bus.Broadcast(key, map[string]any{
					"type":           core.EventReservationExpired,
					"project":        key,
					"reservation_id": r.ID,
					"agent":          r.AgentName,
					"path_pattern":   r.PathPattern,
				})
			}
		}
	}
}
