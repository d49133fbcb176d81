// Package broadcast implements the Broadcast Fan-Out Supervisor (spec
// §4.3): for every broadcast the control plane currently declares
// active, keep exactly one HLS->RTMP process alive; otherwise stop it.
//
// The "stopping"/"failed" side-sets are ordinary fields here, per Design
// Notes ("re-expressed as ordinary fields of the Broadcast Supervisor
// with clearly defined clearing conditions"), deliberately not merged
// into the broadcast map so they can outlive a map entry by one
// reconciler cycle.
package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/errs"
	"github.com/beachvar/stream-supervisor/internal/logging"
	"github.com/beachvar/stream-supervisor/internal/transcoder"
)

const (
	// MaxRetries is YOUTUBE_MAX_RETRIES from spec §4.3.
	MaxRetries  = 5
	retryDelay  = 5 * time.Second
	stopGrace   = 3 * time.Second
)

// FanOut is one broadcast's live fan-out bookkeeping (spec §3
// "Broadcast").
type FanOut struct {
	BroadcastID   string
	CameraID      string
	Handle        *transcoder.Handle
	LastHeartbeat time.Time
	StartedAt     time.Time
}

func (f *FanOut) Uptime() time.Duration { return time.Since(f.StartedAt) }

type Supervisor struct {
	store *logging.Store
	cp    *controlplane.Client

	mu          sync.Mutex
	active      map[string]*FanOut
	stopping    map[string]bool
	failed      map[string]bool
	retryCounts map[string]int
}

func NewSupervisor(store *logging.Store, cp *controlplane.Client) *Supervisor {
	return &Supervisor{
		store:       store,
		cp:          cp,
		active:      make(map[string]*FanOut),
		stopping:    make(map[string]bool),
		failed:      make(map[string]bool),
		retryCounts: make(map[string]int),
	}
}

// Runnable reports whether broadcastID is eligible to be started by the
// reconciler right now: not already running, not in "stopping", not in
// "failed" (spec §4.3 invariant / §8 universal invariant).
func (s *Supervisor) Runnable(broadcastID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping[broadcastID] || s.failed[broadcastID] {
		return false
	}
	if fo, ok := s.active[broadcastID]; ok && fo.Handle.Running() {
		return false
	}
	return true
}

func (s *Supervisor) Running(broadcastID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fo, ok := s.active[broadcastID]
	return ok && fo.Handle.Running()
}

// TouchHeartbeat stamps broadcastID's last-heartbeat time, guarded by
// the same mutex as every other mutation of active.
func (s *Supervisor) TouchHeartbeat(broadcastID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fo, ok := s.active[broadcastID]; ok {
		fo.LastHeartbeat = at
	}
}

// teardown removes broadcastID's fan-out, if any, stopping its process
// and clearing every side-set for it (stopping/failed/retryCounts) —
// there is no longer a declared entity for ClearIfUndeclared to wait on.
func (s *Supervisor) teardown(broadcastID string) {
	s.mu.Lock()
	fo, ok := s.active[broadcastID]
	if ok {
		delete(s.active, broadcastID)
	}
	delete(s.stopping, broadcastID)
	delete(s.failed, broadcastID)
	delete(s.retryCounts, broadcastID)
	s.mu.Unlock()
	if ok {
		fo.Handle.Stop(stopGrace)
	}
}

// TeardownIfGone implements spec §7's RemoteRejected/404 contract for
// the per-broadcast status endpoint: a 404 means the broadcast was
// deleted, so the local entry is torn down immediately rather than
// waiting for the next sync's ClearIfUndeclared to notice.
func (s *Supervisor) TeardownIfGone(broadcastID string, err error) {
	if controlplane.StatusCode(err) == http.StatusNotFound {
		s.teardown(broadcastID)
	}
}

func (s *Supervisor) Get(broadcastID string) (*FanOut, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fo, ok := s.active[broadcastID]
	return fo, ok
}

func (s *Supervisor) All() map[string]*FanOut {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*FanOut, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}

// Start implements spec §4.3 start(...): declines if the camera's HLS
// playlist isn't present yet (the reconciler will re-evaluate next
// cycle), otherwise spawns the HLS->RTMP fan-out and stamps the
// last-heartbeat immediately so the heartbeat loop doesn't fire in the
// same tick.
func (s *Supervisor) Start(ctx context.Context, broadcastID, cameraID, playlistPath, remoteURL, streamKey string) error {
	if !s.Runnable(broadcastID) {
		return fmt.Errorf("broadcast: %s is not runnable (stopping/failed/running)", broadcastID)
	}
	if !playlistExists(playlistPath) {
		return errs.New(errs.Unknown, fmt.Sprintf("broadcast %s: camera %s has no playlist yet", broadcastID, cameraID), nil)
	}

	argv := buildInvocation(playlistPath, remoteURL, streamKey)

	handle, err := transcoder.Spawn(broadcastID, s.store, argv)
	if err != nil {
		return errs.New(errs.SpawnFailed, "spawn fan-out", err)
	}

	fo := &FanOut{
		BroadcastID:   broadcastID,
		CameraID:      cameraID,
		Handle:        handle,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}

	s.mu.Lock()
	s.active[broadcastID] = fo
	s.mu.Unlock()

	return nil
}

// Stop implements spec §4.3 stop(...): mark "stopping" BEFORE issuing
// termination, terminate, report "complete". The marker is cleared by
// ClearIfUndeclared once the control plane stops listing the broadcast,
// or at once by TeardownIfGone if the "complete" report gets a 404.
func (s *Supervisor) Stop(ctx context.Context, broadcastID string) {
	s.mu.Lock()
	s.stopping[broadcastID] = true
	fo, ok := s.active[broadcastID]
	if ok {
		delete(s.active, broadcastID)
	}
	s.mu.Unlock()

	if ok {
		fo.Handle.Stop(stopGrace)
	}

	err := controlplane.WithRetry(ctx, func() error {
		return s.cp.BroadcastStatus(ctx, broadcastID, "complete", 0, "")
	})
	s.TeardownIfGone(broadcastID, err)
}

// ReapExited finds exited fan-outs, removes them, and applies the retry
// budget: schedules a fixed 5s retry if under MaxRetries, otherwise marks
// "failed" and reports a permanent-failure error (spec §4.3
// reap_and_schedule_retry / scenario S6). The retry counter lives on the
// Supervisor itself, not on FanOut, since FanOut is discarded on every
// reap and a fresh instance would otherwise reset the budget on each
// restart.
func (s *Supervisor) ReapExited(ctx context.Context) []ReapedFanOut {
	s.mu.Lock()
	var reaped []ReapedFanOut
	for id, fo := range s.active {
		if fo.Handle.Running() {
			continue
		}
		delete(s.active, id)
		code, tail := fo.Handle.ExitInfo()
		s.retryCounts[id]++
		reaped = append(reaped, ReapedFanOut{
			BroadcastID: id,
			CameraID:    fo.CameraID,
			RetryCount:  s.retryCounts[id],
			ExitCode:    code,
			Tail:        tail,
		})
	}
	s.mu.Unlock()

	var due []ReapedFanOut
	for _, r := range reaped {
		if r.RetryCount < MaxRetries {
			due = append(due, r)
			continue
		}
		s.mu.Lock()
		s.failed[r.BroadcastID] = true
		s.mu.Unlock()
		msg := fmt.Sprintf("broadcast %s failed permanently after %d retries", r.BroadcastID, MaxRetries)
		err := controlplane.WithRetry(ctx, func() error {
			return s.cp.BroadcastStatus(ctx, r.BroadcastID, "error", 0, msg)
		})
		s.TeardownIfGone(r.BroadcastID, err)
	}

	return due
}

// ReapedFanOut describes one broadcast whose process just exited.
type ReapedFanOut struct {
	BroadcastID string
	CameraID    string
	RetryCount  int
	ExitCode    int
	Tail        string
}

// ClearIfUndeclared drops the "stopping"/"failed" markers and the retry
// counter for any broadcast id not present in declaredIDs (spec
// §4.3/§4.4: both markers, and the budget behind them, clear only when
// the control plane drops the broadcast from its declared set).
func (s *Supervisor) ClearIfUndeclared(declaredIDs map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.stopping {
		if !declaredIDs[id] {
			delete(s.stopping, id)
			delete(s.retryCounts, id)
		}
	}
	for id := range s.failed {
		if !declaredIDs[id] {
			delete(s.failed, id)
			delete(s.retryCounts, id)
		}
	}
}

func playlistExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
