package services

import (
	"context"
	"sync"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/models"
)

// Replicator writes snapshots to a SnapshotSync off the request path. Only
// the newest pending snapshot per game is written; older ones are dropped.
type Replicator struct {
	sink         SnapshotSync
	writeTimeout time.Duration

	mu      sync.Mutex
	pending map[string]models.GameSnapshot
	wake    chan struct{}
	done    chan struct{}
}

func NewReplicator(sink SnapshotSync) *Replicator {
	return &Replicator{
		sink:         sink,
		writeTimeout: 3 * time.Second,
		pending:      make(map[string]models.GameSnapshot),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Offer queues snap, replacing any unwritten snapshot for the same game. It
// never blocks.
func (r *Replicator) Offer(snap models.GameSnapshot) {
	r.mu.Lock()
	if prev, ok := r.pending[snap.GameID]; !ok || prev.LastUpdate <= snap.LastUpdate {
		r.pending[snap.GameID] = snap
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run writes queued snapshots until ctx is done, then flushes what is left.
func (r *Replicator) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.flush(context.Background())
			return
		case <-r.wake:
			r.flush(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (r *Replicator) Done() <-chan struct{} {
	return r.done
}

func (r *Replicator) flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = make(map[string]models.GameSnapshot, len(batch))
	r.mu.Unlock()

	for gameID, snap := range batch {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
		err := r.sink.Write(writeCtx, gameID, snap)
		cancel()
		if err != nil {
			logging.Error("Failed to replicate game snapshot", map[string]interface{}{
				"game_id": gameID,
				"error":   err.Error(),
			})
		}
	}
}
