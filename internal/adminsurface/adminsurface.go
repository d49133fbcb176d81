// Package adminsurface is the narrow collaborator spec §6 scopes out of
// this module's core: a local-only HTTP surface serving HLS segments,
// a status snapshot, and a server-sent-events log tail, for a
// same-device or same-LAN admin UI. It has no write path into the
// reconciler's state.
//
// Grounded directly on the teacher's main.go setupRouter (gin +
// gin-contrib/cors wiring, a health endpoint) and on the fact that the
// teacher used to serve HLS output as static files before switching to
// MediaMTX — this module resurrects that static-file role for the
// local-only admin surface.
package adminsurface

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/beachvar/stream-supervisor/internal/broadcast"
	"github.com/beachvar/stream-supervisor/internal/ingest"
	"github.com/beachvar/stream-supervisor/internal/logging"
)

type Server struct {
	engine    *gin.Engine
	ingestSup *ingest.Supervisor
	bcastSup  *broadcast.Supervisor
	store     *logging.Store
	hlsRoot   string
}

func New(hlsRoot string, ingestSup *ingest.Supervisor, bcastSup *broadcast.Supervisor, store *logging.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:    []string{"GET"},
		AllowHeaders:    []string{"Origin", "Accept", "Cache-Control"},
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{engine: engine, ingestSup: ingestSup, bcastSup: bcastSup, store: store, hlsRoot: hlsRoot}

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/status", s.handleStatus)
	engine.GET("/logs/stream", s.handleLogStream)
	engine.Static("/hls", hlsRoot)

	return s
}

func (s *Server) ListenAndServe(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStatus reports the subset of the supplemented status surface
// (spec_full §4: uptime_seconds passthrough from the original's
// StreamProcess.uptime_seconds).
func (s *Server) handleStatus(c *gin.Context) {
	cameras := make(map[string]gin.H)
	for id, stream := range s.ingestSup.All() {
		cameras[id] = gin.H{
			"running":         stream.Handle.Running(),
			"uptime_seconds":  int(stream.Uptime().Seconds()),
			"pid":             stream.Handle.Pid(),
			"playlist_exists": stream.PlaylistExists(),
			"court_id":        stream.CourtID,
			"position":        stream.Position,
		}
	}

	broadcasts := make(map[string]gin.H)
	for id, fo := range s.bcastSup.All() {
		broadcasts[id] = gin.H{
			"running":        fo.Handle.Running(),
			"uptime_seconds": int(fo.Uptime().Seconds()),
			"pid":            fo.Handle.Pid(),
		}
	}

	c.JSON(http.StatusOK, gin.H{"cameras": cameras, "broadcasts": broadcasts})
}

// handleLogStream serves a bounded-backlog, drop-oldest-on-overflow SSE
// tail of the device-wide log ring (internal/logging.Store), optionally
// scoped to one entity via ?entity=.
func (s *Server) handleLogStream(c *gin.Context) {
	entity := c.Query("entity")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ch, cancel := s.store.Subscribe()
	defer cancel()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if entity != "" && entry.Entity != entity {
				continue
			}
			fmt.Fprintf(c.Writer, "data: [%s] %s: %s\n\n", entry.Level, entry.Entity, entry.Message)
			flusher.Flush()
		}
	}
}
