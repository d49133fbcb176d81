package reconciler

import (
	"context"

	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/ingest"
)

// syncOnce is spec §4.4 step 2: pull declared state, diff it against the
// Supervisors' runtime, and issue the start/stop intents that bring
// reality back in line. It is the only place that writes r.cameras and
// r.broadcasts.
func (r *Reconciler) syncOnce(ctx context.Context) {
	var state *controlplane.DeclaredState
	err := controlplane.WithRetry(ctx, func() error {
		s, err := r.cp.FetchState(ctx)
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil || state == nil {
		return
	}

	declaredCameras := make(map[string]ingest.Camera, len(state.Cameras))
	for _, dc := range state.Cameras {
		declaredCameras[dc.ID] = ingest.Camera{
			ID:              dc.ID,
			Name:            dc.Name,
			SourceURL:       dc.SourceURL,
			HasStreamConfig: dc.HasStreamConfig,
			PublicBaseURL:   dc.PublicBaseURL,
			CourtID:         dc.CourtID,
			Position:        dc.Position,
		}
	}

	declaredBroadcasts := make(map[string]controlplane.DeclaredBroadcast, len(state.Broadcasts))
	for _, db := range state.Broadcasts {
		declaredBroadcasts[db.ID] = db
	}

	r.mu.Lock()
	r.cameras = declaredCameras
	r.broadcasts = declaredBroadcasts
	r.mu.Unlock()

	r.reconcileCameras(ctx, declaredCameras)
	r.reconcileBroadcasts(ctx, declaredBroadcasts)

	declaredIDs := make(map[string]bool, len(declaredBroadcasts))
	for id := range declaredBroadcasts {
		declaredIDs[id] = true
	}
	r.bcastSup.ClearIfUndeclared(declaredIDs)
}

// reconcileCameras starts ingest for every declared camera with
// has_stream_config=true that isn't already running, and stops any
// tracked ingest whose camera is no longer declared or no longer wants
// a stream (spec §4.2 "guarantee none exists" half of the invariant).
func (r *Reconciler) reconcileCameras(ctx context.Context, declared map[string]ingest.Camera) {
	for id, cam := range declared {
		if !cam.HasStreamConfig {
			continue
		}
		if r.ingestSup.Running(id) || r.retry.Pending(id) {
			continue
		}
		if err := r.ingestSup.Start(ctx, cam, false); err == nil {
			r.notify(id, "connected")
		}
	}

	for id, stream := range r.ingestSup.All() {
		_ = stream
		cam, ok := declared[id]
		if !ok || !cam.HasStreamConfig {
			_ = r.ingestSup.Stop(ctx, id, ingestStopGrace)
			r.retry.Reset(id)
			r.notify(id, "disconnected")
		}
	}
}

// reconcileBroadcasts starts every declared broadcast that is Runnable
// and not yet running, and stops any tracked fan-out no longer declared
// (spec §4.3's declared-state-only stop trigger).
func (r *Reconciler) reconcileBroadcasts(ctx context.Context, declared map[string]controlplane.DeclaredBroadcast) {
	for id, db := range declared {
		if r.bcastSup.Running(id) || !r.bcastSup.Runnable(id) {
			continue
		}
		stream, ok := r.ingestSup.Get(db.CameraID)
		if !ok || !stream.PlaylistExists() {
			continue
		}
		if err := r.bcastSup.Start(ctx, db.ID, db.CameraID, stream.PlaylistPath, db.RemoteURL, db.StreamKey); err == nil {
			r.notify(id, "live")
		}
	}

	for id := range r.bcastSup.All() {
		if _, ok := declared[id]; !ok {
			r.bcastSup.Stop(ctx, id)
			r.notify(id, "complete")
		}
	}
}
