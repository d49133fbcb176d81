// Package ingest implements the Camera Ingest Supervisor (spec §4.2):
// for every camera with has_stream_config=true, keep exactly one healthy
// RTSP->HLS process alive; for every camera without, guarantee none
// exists.
//
// Ownership model follows Design Notes' "module-level mutable
// dictionaries holding process tables" re-architecture: a single map
// owned by this Supervisor, mutated only through its exported methods.
// Since Go has real preemption (unlike the source's single-threaded
// cooperative scheduler, spec §5), the map is guarded by a mutex instead
// of relying on an absence of preemption between suspension points — the
// one place this implementation genuinely departs from the source's
// concurrency model, because "no lock because no preemption" isn't a
// sound claim for a goroutine-based runtime.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/errs"
	"github.com/beachvar/stream-supervisor/internal/logging"
	"github.com/beachvar/stream-supervisor/internal/transcoder"
)

// teardownGrace bounds how long teardown waits for ffmpeg to exit on its
// own before killing it, same grace the reconciler uses on shutdown.
const teardownGrace = 3 * time.Second

// Camera is the subset of control-plane camera state the supervisor
// needs, plus passthrough display metadata (spec_full §4 supplemented
// features).
type Camera struct {
	ID              string
	Name            string
	SourceURL       string
	HasStreamConfig bool
	PublicBaseURL   string
	CourtID         string
	Position        string
}

// Stream is one camera's live ingest bookkeeping (spec §3 "Ingest
// Stream").
type Stream struct {
	CameraID      string
	Handle        *transcoder.Handle
	StartedAt     time.Time
	LastHeartbeat time.Time
	SegmentDir    string
	PlaylistPath  string
	SegmentToken  string
	CourtID       string
	Position      string
}

func (s *Stream) Uptime() time.Duration { return time.Since(s.StartedAt) }

// PlaylistExists reports whether this stream's playlist file is visible
// on disk right now (used by the broadcast supervisor's precondition).
func (s *Stream) PlaylistExists() bool {
	_, err := os.Stat(s.PlaylistPath)
	return err == nil
}

type Supervisor struct {
	hlsRoot        string
	segmentSeconds int
	windowSegments int
	store          *logging.Store
	cp             *controlplane.Client

	mu      sync.Mutex
	streams map[string]*Stream
}

func NewSupervisor(hlsRoot string, segmentSeconds, windowSegments int, store *logging.Store, cp *controlplane.Client) *Supervisor {
	return &Supervisor{
		hlsRoot:        hlsRoot,
		segmentSeconds: segmentSeconds,
		windowSegments: windowSegments,
		store:          store,
		cp:             cp,
		streams:        make(map[string]*Stream),
	}
}

// Running reports whether a live ingest exists for cameraID.
func (s *Supervisor) Running(cameraID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[cameraID]
	return ok && st.Handle.Running()
}

// Get returns the current stream for cameraID, if any.
func (s *Supervisor) Get(cameraID string) (*Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[cameraID]
	return st, ok
}

// TouchHeartbeat stamps cameraID's last-connection-report time, guarded
// by the same mutex as every other mutation of streams (mirrors
// broadcast.Supervisor.TouchHeartbeat).
func (s *Supervisor) TouchHeartbeat(cameraID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream, ok := s.streams[cameraID]; ok {
		stream.LastHeartbeat = at
	}
}

// teardown removes cameraID's stream, if any, stopping its process and
// wiping its segment directory. Safe to call on a camera with no
// tracked stream.
func (s *Supervisor) teardown(cameraID string) {
	s.mu.Lock()
	stream, ok := s.streams[cameraID]
	if ok {
		delete(s.streams, cameraID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	stream.Handle.Stop(teardownGrace)
	_ = os.RemoveAll(stream.SegmentDir)
}

// TeardownIfGone implements spec §7's RemoteRejected/404 contract: a 404
// on a per-camera control-plane endpoint means the camera was deleted,
// and the supervisor MUST tear down its local entry rather than let it
// keep running until the next sync notices it's undeclared. Every
// caller that reports to a per-camera endpoint (ingest's own
// ReportConnection calls, and the reconciler's heartbeat/URL-refresh
// calls, which hit the same endpoints) routes its result through this.
func (s *Supervisor) TeardownIfGone(cameraID string, err error) {
	if controlplane.StatusCode(err) == http.StatusNotFound {
		s.teardown(cameraID)
	}
}

// reportConnection reports connectivity for cameraID with the standard
// 3x linear-backoff retry, then applies TeardownIfGone to the result.
func (s *Supervisor) reportConnection(ctx context.Context, cameraID string, connected bool, errMsg string) {
	err := controlplane.WithRetry(ctx, func() error {
		return s.cp.ReportConnection(ctx, cameraID, connected, errMsg)
	})
	s.TeardownIfGone(cameraID, err)
}

// All returns a snapshot of every tracked stream.
func (s *Supervisor) All() map[string]*Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Stream, len(s.streams))
	for k, v := range s.streams {
		out[k] = v
	}
	return out
}

// Start implements spec §4.2 start(camera_id): acquire-or-reject, wipe
// and recreate the segment directory, spawn, report "connected".
// skipReachability exists purely so property tests (S2) can disable the
// pre-check without needing a real unreachable network.
func (s *Supervisor) Start(ctx context.Context, cam Camera, skipReachability bool) error {
	s.mu.Lock()
	if existing, ok := s.streams[cam.ID]; ok && existing.Handle.Running() {
		s.mu.Unlock()
		return fmt.Errorf("ingest: already running for camera %s", cam.ID)
	}
	s.mu.Unlock()

	if !skipReachability && !checkReachable(cam.SourceURL) {
		return errs.New(errs.SourceUnreachable, fmt.Sprintf("camera %s source unreachable", cam.ID), nil)
	}

	segmentDir := filepath.Join(s.hlsRoot, cam.ID)
	if err := recreateSegmentDir(segmentDir); err != nil {
		return errs.New(errs.SpawnFailed, "segment dir", err)
	}

	normalized, err := normalizedSourceURL(cam.SourceURL)
	if err != nil {
		return errs.New(errs.SpawnFailed, "normalize source url", err)
	}

	argv, token, playlistPath := buildInvocation(normalized, segmentDir, s.segmentSeconds, s.windowSegments)

	handle, err := transcoder.Spawn(cam.ID, s.store, argv)
	if err != nil {
		reportErr := s.cp.ReportConnection(ctx, cam.ID, false, err.Error())
		s.TeardownIfGone(cam.ID, reportErr)
		return err
	}

	now := time.Now()
	stream := &Stream{
		CameraID:      cam.ID,
		Handle:        handle,
		StartedAt:     now,
		LastHeartbeat: now,
		SegmentDir:    segmentDir,
		PlaylistPath:  playlistPath,
		SegmentToken:  token,
		CourtID:       cam.CourtID,
		Position:      cam.Position,
	}

	s.mu.Lock()
	s.streams[cam.ID] = stream
	s.mu.Unlock()

	s.reportConnection(ctx, cam.ID, true, "")

	return nil
}

// Stop implements spec §4.2 stop(camera_id): terminate with grace,
// delete the segment directory, report "disconnected". A stop on an
// absent camera is a no-op (spec §8 idempotence property).
func (s *Supervisor) Stop(ctx context.Context, cameraID string, grace time.Duration) error {
	s.mu.Lock()
	stream, ok := s.streams[cameraID]
	if ok {
		delete(s.streams, cameraID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	stream.Handle.Stop(grace)
	_ = os.RemoveAll(stream.SegmentDir)

	s.reportConnection(ctx, cameraID, false, "")

	return nil
}

// ReapExited finds any tracked stream whose process has exited, removes
// it from the map, reports the error, and returns the set of camera ids
// that need a scheduled retry along with their exit diagnostics. Callers
// (the reconciler's fast monitor) are responsible for actually scheduling
// the delayed restart so the retry-count/backoff bookkeeping stays in one
// place (RetryState).
func (s *Supervisor) ReapExited(ctx context.Context) []ReapedStream {
	s.mu.Lock()
	var reaped []ReapedStream
	for id, stream := range s.streams {
		if stream.Handle.Running() {
			continue
		}
		delete(s.streams, id)
		code, tail := stream.Handle.ExitInfo()
		reaped = append(reaped, ReapedStream{
			CameraID: id,
			ExitCode: code,
			Tail:     tail,
			Uptime:   stream.Uptime(),
		})
	}
	s.mu.Unlock()

	for _, r := range reaped {
		msg := fmt.Sprintf("ffmpeg exited with code %d: %s", r.ExitCode, lastLine(r.Tail))
		s.reportConnection(ctx, r.CameraID, false, msg)
	}

	return reaped
}

type ReapedStream struct {
	CameraID string
	ExitCode int
	Tail     string
	Uptime   time.Duration
}

func recreateSegmentDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func lastLine(s string) string {
	last := s
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' && i != len(s)-1 {
			last = s[i+1:]
			break
		}
	}
	return last
}
