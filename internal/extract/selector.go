package extract

import (
	"context"
	"path/filepath"

	"github.com/bryanchriswhite/PacedRecorder/internal/layout"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/bryanchriswhite/PacedRecorder/internal/metrics"
	"github.com/bryanchriswhite/PacedRecorder/internal/status"
)

// ProgressFunc receives the materialized count after every attempt
type ProgressFunc func(done, total int)

// Result summarizes one Execute call
type Result struct {
	Planned      int    `json:"planned"`
	Materialized int    `json:"materialized"`
	Skipped      []int  `json:"skipped,omitempty"`
	OutputDir    string `json:"output_dir"`
}

// Selector materializes planned frames as sequentially numbered images
type Selector struct {
	Writer   ImageWriter
	Quality  int
	Notifier status.Notifier
}

// Execute reads every planned index in order and writes each frame it gets
// as the next image_NNN.jpg in outDir. Failed indices are skipped and leave
// no gap in the numbering. onProgress is called as (materialized, len(plan))
// after each attempt. Cancellation is checked before each index; the
// returned Result covers the work done so far.
func (s *Selector) Execute(ctx context.Context, plan []int, r Reader, outDir string, onProgress ProgressFunc) (Result, error) {
	log := logger.WithComponent("extract")
	res := Result{Planned: len(plan), OutputDir: outDir}
	if len(plan) == 0 {
		return res, nil
	}

	writer := s.Writer
	if writer == nil {
		writer = JPEGWriter{}
	}
	notifier := s.Notifier
	if notifier == nil {
		notifier = status.Discard
	}

	for _, idx := range plan {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := s.materialize(ctx, r, writer, idx, outDir, res.Materialized+1); err != nil {
			res.Skipped = append(res.Skipped, idx)
			metrics.ExtractionSkipped.Inc()
			log.Warn().Err(err).Int("index", idx).Msg("Skipping frame")

			e := status.FromError(err, "Could not extract frame")
			e.Index = idx
			notifier.Notify(e)
		} else {
			res.Materialized++
			metrics.ImagesWritten.Inc()
		}

		if onProgress != nil {
			onProgress(res.Materialized, len(plan))
		}
	}
	return res, nil
}

func (s *Selector) materialize(ctx context.Context, r Reader, w ImageWriter, idx int, outDir string, seq int) error {
	f, err := r.ReadAt(ctx, idx)
	if err != nil {
		return &status.Error{Kind: status.KindExtractFrame, Index: idx, Err: err}
	}
	path := filepath.Join(outDir, layout.ImageName(seq))
	if err := w.WriteImage(path, f, s.Quality); err != nil {
		return &status.Error{Kind: status.KindExtractFrame, Path: path, Index: idx, Err: err}
	}
	return nil
}
