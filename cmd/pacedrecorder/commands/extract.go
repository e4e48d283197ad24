package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/PacedRecorder/internal/extract"
	"github.com/bryanchriswhite/PacedRecorder/internal/layout"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract VIDEO",
	Short: "Extract sample images from an existing video",
	Long: `Run the frame sampler over a video file that is already on disk.

Images are written as image_001.jpg, image_002.jpg, ... into --out, which
defaults to the images directory named after the video.`,
	Example: `  # Extract 100 evenly spaced frames using the configured defaults
  pacedrecorder extract Recordings/video_20260101_120000.avi

  # Every 30th frame, at most 20 images
  pacedrecorder extract clip.avi --method interval --interval 30 --count 20`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var (
	extractCount    int
	extractMethod   string
	extractInterval int
	extractQuality  int
	extractOut      string
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntVarP(&extractCount, "count", "n", 0, "number of images (default from config)")
	extractCmd.Flags().StringVarP(&extractMethod, "method", "m", "", "evenly_spaced or interval (default from config)")
	extractCmd.Flags().IntVar(&extractInterval, "interval", 0, "frame step for the interval method (default from config)")
	extractCmd.Flags().IntVarP(&extractQuality, "quality", "q", 0, "JPEG quality 1-100 (default from config)")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "output directory")
}

func runExtract(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	video := args[0]

	params := extract.Params{
		Strategy: extract.Strategy(cfg.Extraction.Method),
		Count:    cfg.Extraction.Count,
		Interval: cfg.Extraction.Interval,
		Quality:  cfg.Extraction.Quality,
	}
	if extractMethod != "" {
		if params.Strategy, err = extract.ParseStrategy(extractMethod); err != nil {
			return err
		}
	}
	if extractCount > 0 {
		params.Count = extractCount
	}
	if extractInterval > 0 {
		params.Interval = extractInterval
	}
	if extractQuality > 0 {
		params.Quality = extractQuality
	}

	sessionID := layout.SessionFromVideo(video)
	out := extractOut
	if out == "" {
		out = layout.Layout{ImagesDir: cfg.Extraction.ImagesDir}.ImageDir(sessionID)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := status.NewHub(0)
	defer hub.Close()

	x := &extract.Extractor{
		Opener:   extract.FFmpegOpener{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath},
		Writer:   extract.JPEGWriter{},
		Notifier: hub,
	}
	job := extract.NewJob(sessionID, video, out, params)
	if err := x.Run(ctx, job); err != nil {
		return err
	}

	info := job.Info()
	fmt.Printf("Extracted %d of %d planned images from %d frames into %s\n", info.Written, info.Planned, info.TotalFrames, info.OutputDir)
	if len(info.Skipped) > 0 {
		fmt.Printf("Skipped frame indices: %v\n", info.Skipped)
	}
	return nil
}
