// Package reconciler implements the Reconciler and Heartbeat Loop (spec
// §4.4): the single ground-truth synchronizer, running one cooperative
// task with 1s tick granularity, that pulls declared state from the
// control plane, diffs it against local runtime, and issues start/stop
// intents to the ingest and broadcast supervisors.
//
// The Reconciler is the sole writer of the camera and broadcast maps
// (spec §3 "Ownership"); the supervisors only mutate per-entity state of
// keys they already own.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/beachvar/stream-supervisor/internal/broadcast"
	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/ingest"
	"github.com/beachvar/stream-supervisor/internal/logging"
	"github.com/beachvar/stream-supervisor/internal/signing"
	"golang.org/x/sync/errgroup"
)

const (
	tickInterval          = 1 * time.Second
	syncInterval          = 30 * time.Second
	connectionHeartbeat   = 10 * time.Second
	broadcastHeartbeat    = 30 * time.Second
	urlRefreshInterval    = 6 * time.Hour
	ingestStopGrace       = 3 * time.Second
	outboundConcurrency   = 8
)

// StatusObserver is an optional collaborator notified of stream status
// transitions (spec_full §4 supplemented feature, grounded on the
// original source's on_stream_status_change callback). The reconciler
// never depends on one being attached.
type StatusObserver interface {
	OnStatusChange(entityID, status string)
}

// Hint is an out-of-band signal from the gateway client (spec §6:
// "treat every camera-lifecycle command as an out-of-band hint only").
// The reconciler only ever uses a Hint to accelerate its next
// authoritative sync; it never substitutes for one.
type Hint struct {
	Kind     string // camera_created|camera_updated|camera_deleted|refresh_cameras|restart_stream|start_youtube_stream|stop_youtube_stream
	CameraID string
}

type Reconciler struct {
	cp        *controlplane.Client
	ingestSup *ingest.Supervisor
	bcastSup  *broadcast.Supervisor
	retry     *ingest.RetryState
	signer    *signing.Signer
	store     *logging.Store

	// publicBase is the PUBLIC_BASE_URL fallback (config.SigningConfig)
	// used for a camera whose control-plane record carries no
	// public_base_url of its own.
	publicBase string

	observers []StatusObserver
	hints     chan Hint

	mu             sync.Mutex
	cameras        map[string]ingest.Camera
	broadcasts     map[string]controlplane.DeclaredBroadcast
	lastURLRefresh map[string]time.Time
	forceSync      bool

	shutdown chan struct{}
}

func New(cp *controlplane.Client, ingestSup *ingest.Supervisor, bcastSup *broadcast.Supervisor, retry *ingest.RetryState, signer *signing.Signer, store *logging.Store, publicBase string) *Reconciler {
	return &Reconciler{
		cp:             cp,
		ingestSup:      ingestSup,
		bcastSup:       bcastSup,
		retry:          retry,
		signer:         signer,
		store:          store,
		publicBase:     publicBase,
		hints:          make(chan Hint, 64),
		cameras:        make(map[string]ingest.Camera),
		broadcasts:     make(map[string]controlplane.DeclaredBroadcast),
		lastURLRefresh: make(map[string]time.Time),
		shutdown:       make(chan struct{}),
	}
}

// AddObserver attaches a StatusObserver.
func (r *Reconciler) AddObserver(o StatusObserver) {
	r.observers = append(r.observers, o)
}

func (r *Reconciler) notify(entityID, status string) {
	for _, o := range r.observers {
		o.OnStatusChange(entityID, status)
	}
}

// HandleHint accepts an out-of-band command hint from the gateway client.
// Non-blocking: a full hint channel just drops the hint, since the next
// 30s sync will converge regardless.
func (r *Reconciler) HandleHint(h Hint) {
	select {
	case r.hints <- h:
	default:
	}
}

// Run drives the tick loop until ctx is cancelled. On cancellation it
// stops every handle each supervisor owns with a bounded grace period
// (spec §5 cancellation semantics) before returning.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.shutdown)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var lastSync time.Time

	// Prime declared state once before the loop so the first tick has
	// something to reconcile against.
	r.syncOnce(ctx)
	lastSync = time.Now()

	for {
		select {
		case <-ctx.Done():
			r.shutdownAll()
			return
		case h := <-r.hints:
			r.applyHint(ctx, h)
		case <-ticker.C:
			r.fastMonitor(ctx)

			if time.Since(lastSync) >= syncInterval || r.consumeForceSync() {
				r.syncOnce(ctx)
				lastSync = time.Now()
				r.healthSweep(ctx)
			}

			r.refreshExpiringURLs(ctx)
			r.sendHeartbeats(ctx)
		}
	}
}

func (r *Reconciler) consumeForceSync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceSync {
		r.forceSync = false
		return true
	}
	return false
}

// applyHint handles one out-of-band gateway hint. Per spec §6 it is
// never authoritative: camera lifecycle hints just request an earlier
// sync; start/stop broadcast hints are ignored entirely since the
// broadcast set is exclusively declared-state driven.
func (r *Reconciler) applyHint(ctx context.Context, h Hint) {
	switch h.Kind {
	case "camera_created", "camera_updated", "camera_deleted", "refresh_cameras", "restart_stream":
		r.mu.Lock()
		r.forceSync = true
		r.mu.Unlock()
	default:
		// start_youtube_stream / stop_youtube_stream / get_status: no
		// local action, the declared-state diff already owns this.
	}
}

func (r *Reconciler) shutdownAll() {
	for id := range r.ingestSup.All() {
		_ = r.ingestSup.Stop(context.Background(), id, ingestStopGrace)
	}
	for id := range r.bcastSup.All() {
		r.bcastSup.Stop(context.Background(), id)
	}
}

// Done returns a channel closed once Run has returned and shutdown
// cleanup has completed.
func (r *Reconciler) Done() <-chan struct{} { return r.shutdown }
