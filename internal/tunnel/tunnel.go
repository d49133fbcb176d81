// Package tunnel is the narrow collaborator spec §6 scopes out of this
// module's core: a thin wrapper around a third-party remote-access
// tunnel binary (e.g. a reverse proxy client) exposing the admin
// surface to the control plane's operators without port-forwarding.
//
// It reuses transcoder.Handle (spec §4.1 notes the same process-handle
// shape works for "any other binary", not just ffmpeg) instead of
// reimplementing spawn/drain/terminate.
package tunnel

import (
	"time"

	"github.com/beachvar/stream-supervisor/internal/logging"
	"github.com/beachvar/stream-supervisor/internal/transcoder"
)

const stopGrace = 3 * time.Second

type Process struct {
	handle *transcoder.Handle
}

// Start spawns the configured tunnel binary pointed at the local admin
// surface address. Returns nil, nil if binPath is empty (the tunnel is
// optional; most deployments run without one).
func Start(binPath, localAddr string, store *logging.Store) (*Process, error) {
	if binPath == "" {
		return nil, nil
	}
	argv := []string{binPath, "--local-addr", localAddr}
	h, err := transcoder.Spawn("tunnel", store, argv)
	if err != nil {
		return nil, err
	}
	return &Process{handle: h}, nil
}

func (p *Process) Stop() {
	if p == nil || p.handle == nil {
		return
	}
	p.handle.Stop(stopGrace)
}
