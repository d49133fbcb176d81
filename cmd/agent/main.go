// Command agent is the edge stream supervisor's entry point: it loads
// configuration, wires every collaborator, and runs the reconciler
// until asked to shut down.
//
// Styled after the teacher's main.go (load .env, load config, wire
// services, run), generalized from an HTTP API server bootstrap to a
// long-running supervisor process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/beachvar/stream-supervisor/internal/adminsurface"
	"github.com/beachvar/stream-supervisor/internal/broadcast"
	"github.com/beachvar/stream-supervisor/internal/config"
	"github.com/beachvar/stream-supervisor/internal/controlplane"
	"github.com/beachvar/stream-supervisor/internal/gatewayclient"
	"github.com/beachvar/stream-supervisor/internal/ingest"
	"github.com/beachvar/stream-supervisor/internal/logging"
	"github.com/beachvar/stream-supervisor/internal/reconciler"
	"github.com/beachvar/stream-supervisor/internal/signing"
	"github.com/beachvar/stream-supervisor/internal/tunnel"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store := logging.NewStore()
	logger := logging.NewLogger(cfg.Logging.FilePath)

	if err := os.MkdirAll(cfg.HLS.Root, 0o755); err != nil {
		logger.Fatal("creating HLS root %s: %v", cfg.HLS.Root, err)
	}

	cp := controlplane.New(cfg.ControlPlane.BaseURL, cfg.ControlPlane.DeviceID, cfg.ControlPlane.DeviceToken, cfg.ControlPlane.FetchTimeout)
	ingestSup := ingest.NewSupervisor(cfg.HLS.Root, cfg.HLS.SegmentSeconds, cfg.HLS.WindowSegments, store, cp)
	bcastSup := broadcast.NewSupervisor(store, cp)
	retry := ingest.NewRetryState()
	signer := signing.NewSigner(cfg.Signing.Secret, cfg.Signing.TTL)

	rec := reconciler.New(cp, ingestSup, bcastSup, retry, signer, store, cfg.Signing.PublicBase)
	rec.AddObserver(statusLogObserver{store: store})

	if cfg.Gateway.URL != "" {
		gw := gatewayclient.New(cfg.Gateway.URL, cfg.ControlPlane.DeviceToken, hintAdapter{rec}, logger)
		go gw.Run(context.Background())
	}

	admin := adminsurface.New(cfg.HLS.Root, ingestSup, bcastSup, store)
	go func() {
		if err := admin.ListenAndServe(cfg.Admin.ListenAddr); err != nil {
			logger.Error("admin surface exited: %v", err)
		}
	}()

	tunnelProc, err := tunnel.Start(cfg.Tunnel.BinPath, cfg.Admin.ListenAddr, store)
	if err != nil {
		logger.Warn("tunnel: failed to start: %v", err)
	}
	defer tunnelProc.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("stream supervisor starting for device %s", cfg.ControlPlane.DeviceID)

	go rec.Run(ctx)

	<-ctx.Done()
	logger.Info("shutdown requested, draining...")
	<-rec.Done()
	logger.Info("shutdown complete")
}

// hintAdapter turns gatewayclient's (kind, camera_id) callback shape
// into a reconciler.Hint (spec §6: gateway commands are out-of-band
// hints only, never authoritative).
type hintAdapter struct {
	rec *reconciler.Reconciler
}

func (a hintAdapter) HandleHint(kind, cameraID string) {
	a.rec.HandleHint(reconciler.Hint{Kind: kind, CameraID: cameraID})
}

// statusLogObserver is the default reconciler.StatusObserver: it folds
// every status transition into the device-wide log ring so the admin
// surface's SSE tail shows connects/disconnects/live/error without a
// separate status-change feed.
type statusLogObserver struct {
	store *logging.Store
}

func (o statusLogObserver) OnStatusChange(entityID, status string) {
	o.store.Push(entityID, logging.LevelInfo, "status changed to "+status)
}
