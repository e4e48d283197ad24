package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/PacedRecorder/internal/capture"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/recorder"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one session without the web UI",
	Long: `Open the camera, record a single session for --duration, stop, wait for
the image extraction to finish and print a summary.

Ctrl+C stops the recording early; the session is still finalized and
extracted.`,
	Example: `  # Record ten seconds
  pacedrecorder record --duration 10s

  # Record the synthetic pattern and print the summary as JSON
  pacedrecorder record --device synthetic --duration 3s --format json`,
	RunE: runRecord,
}

var (
	recordDuration time.Duration
	recordWait     time.Duration
	recordFormat   string
)

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 10*time.Second, "how long to record")
	recordCmd.Flags().DurationVar(&recordWait, "wait", 10*time.Minute, "how long to wait for extraction after recording")
	recordCmd.Flags().StringVarP(&recordFormat, "format", "f", "table", "summary format (table or json)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordDuration <= 0 {
		return fmt.Errorf("--duration must be positive")
	}
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("record")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := status.NewHub(0)
	defer hub.Close()
	p, err := newPipeline(ctx, cfg, hub)
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}
	defer p.Close()

	runCtx, cancelRun := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- p.rec.Run(runCtx) }()

	info, err := p.rec.StartRecording(ctx)
	if err != nil {
		cancelRun()
		<-loopDone
		return err
	}
	log.Info().Str("session", info.ID).Dur("duration", recordDuration).Msg("Recording")

	timer := time.NewTimer(recordDuration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		log.Info().Msg("Interrupted, stopping recording")
	}

	rec, stopErr := p.rec.StopRecording(context.Background())
	cancelRun()
	if err := <-loopDone; err != nil {
		log.Warn().Err(err).Msg("Capture loop ended with error")
	}
	if errors.Is(stopErr, capture.ErrNoSession) {
		// the loop aborted the session on a write failure
		if sessions := p.rec.Sessions(); len(sessions) > 0 {
			rec = sessions[len(sessions)-1]
			stopErr = fmt.Errorf("recording aborted: %s", rec.Error)
		}
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), recordWait)
	defer cancel()
	shutdownErr := p.rec.Shutdown(waitCtx)

	if err := printRecordSummary(p.rec, rec); err != nil {
		return err
	}
	return errors.Join(stopErr, shutdownErr)
}

func printRecordSummary(r *recorder.Recorder, rec recorder.SessionRecord) error {
	summary := struct {
		Session recorder.SessionRecord `json:"session"`
		Job     interface{}            `json:"job,omitempty"`
	}{Session: rec}

	var written, planned int
	jobState := "none"
	if job, ok := r.Job(rec.JobID); ok {
		ji := job.Info()
		summary.Job = ji
		written, planned, jobState = ji.Written, ji.Planned, string(ji.State)
	}

	if recordFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}
	if recordFormat != "table" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", recordFormat)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Session:\t%s\n", rec.ID)
	fmt.Fprintf(w, "File:\t%s\n", rec.Path)
	fmt.Fprintf(w, "State:\t%s\n", rec.State)
	fmt.Fprintf(w, "Frames:\t%d\n", rec.Frames)
	fmt.Fprintf(w, "Duration:\t%s\n", rec.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "FPS:\t%.2f (target %.2f)\n", rec.AchievedFPS, rec.TargetFPS)
	fmt.Fprintf(w, "Extraction:\t%s, %d/%d images\n", jobState, written, planned)
	if rec.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", rec.Error)
	}
	return nil
}
