package reconciler

import (
	"context"
	"time"

	"github.com/beachvar/stream-supervisor/internal/broadcast"
)

// fastMonitor is step 1 of spec §4.4's tick structure: reap any ingest
// or broadcast whose process has exited, apply the retry state machine,
// and reset any ingest retry counter that has been stable long enough.
func (r *Reconciler) fastMonitor(ctx context.Context) {
	for _, reaped := range r.ingestSup.ReapExited(ctx) {
		r.notify(reaped.CameraID, "error")
		r.scheduleIngestRetry(reaped.CameraID)
	}

	for _, reaped := range r.bcastSup.ReapExited(ctx) {
		r.notify(reaped.BroadcastID, "error")
		r.scheduleBroadcastRetry(reaped)
	}

	for id, stream := range r.ingestSup.All() {
		if stream.Handle.Running() {
			r.retry.ResetIfStable(id, stream.Uptime())
		}
	}
}

// scheduleIngestRetry schedules a delayed restart per spec §4.2's
// Phase A/B/C backoff, guarded by RetryState's pending set so the
// monitor and the health sweep can't double-schedule the same camera.
func (r *Reconciler) scheduleIngestRetry(cameraID string) {
	_, delay, ok := r.retry.Next(cameraID)
	if !ok {
		return
	}
	go r.delayedIngestRestart(cameraID, delay)
}

func (r *Reconciler) delayedIngestRestart(cameraID string, delay time.Duration) {
	defer r.retry.ClearPending(cameraID)

	select {
	case <-time.After(delay):
	case <-r.shutdown:
		return
	}

	select {
	case <-r.shutdown:
		return
	default:
	}

	r.mu.Lock()
	cam, ok := r.cameras[cameraID]
	r.mu.Unlock()
	if !ok || !cam.HasStreamConfig {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.ingestSup.Start(ctx, cam, false); err == nil {
		r.notify(cameraID, "connected")
	}
}

// scheduleBroadcastRetry applies spec §4.3's fixed 5s delay. ReapExited
// on the broadcast supervisor only returns entries that are still under
// MaxRetries — past that it has already marked the broadcast "failed"
// and reported the permanent error itself.
func (r *Reconciler) scheduleBroadcastRetry(reaped broadcast.ReapedFanOut) {
	go r.delayedBroadcastRestart(reaped)
}

func (r *Reconciler) delayedBroadcastRestart(reaped broadcast.ReapedFanOut) {
	select {
	case <-time.After(5 * time.Second):
	case <-r.shutdown:
		return
	}

	select {
	case <-r.shutdown:
		return
	default:
	}

	r.mu.Lock()
	decl, ok := r.broadcasts[reaped.BroadcastID]
	stream, streamOK := r.ingestSup.Get(reaped.CameraID)
	r.mu.Unlock()

	if !ok || !streamOK || !stream.PlaylistExists() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.bcastSup.Start(ctx, decl.ID, decl.CameraID, stream.PlaylistPath, decl.RemoteURL, decl.StreamKey); err == nil {
		r.notify(decl.ID, "live")
	}
}
