package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/api"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/output"
	"github.com/bryanchriswhite/PacedRecorder/internal/overlay"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture loop, preview and HTTP API",
	Long: `Open the camera, start the paced capture loop and serve the MJPEG
preview, the recording controls and the REST API until interrupted.

On shutdown an active recording is finalized and running extraction jobs are
given --shutdown-timeout to finish before they are canceled.`,
	Example: `  # Start server on default port (8080)
  pacedrecorder serve

  # Use the synthetic test pattern instead of a camera
  pacedrecorder serve --device synthetic

  # Record at 15 fps with debug logging
  pacedrecorder serve --fps 15 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "how long to wait for extraction jobs on exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.GetConfigPath()).Str("log_level", cfg.LogLevel).Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := status.NewHub(0)
	p, err := newPipeline(ctx, cfg, hub)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer p.Close()

	outCfg := output.Config{
		Width:   cfg.Preview.Width,
		Height:  cfg.Preview.Height,
		FPS:     cfg.Preview.FPS,
		Quality: cfg.Preview.JPEGQuality,
	}
	mjpegOut := output.NewMJPEGOutput(outCfg)
	var ov *overlay.Manager
	if cfg.Preview.Overlay {
		ov = overlay.NewDefaultManager()
	}
	preview, err := output.NewPreview(p.relay, mjpegOut, outCfg, ov, p.overlayState)
	if err != nil {
		return err
	}
	server := api.NewServer(p.rec, hub, mjpegOut, cfg.Extraction.ImagesDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.rec.Run(gctx) })
	g.Go(func() error { return preview.Run(gctx) })
	g.Go(func() error { return server.Start(cfg.ServerPort) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		recErr := p.rec.Shutdown(shutdownCtx)
		hub.Close()
		srvErr := server.Shutdown(shutdownCtx)
		return errors.Join(recErr, srvErr)
	})

	log.Info().
		Str("device", cfg.Device.ID).
		Str("mode", p.mode.String()).
		Msgf("PacedRecorder is running: preview http://localhost:%d, API http://localhost:%d/api", cfg.ServerPort, cfg.ServerPort)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Stopped")
	return nil
}
