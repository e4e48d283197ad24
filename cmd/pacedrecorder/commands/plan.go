package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/PacedRecorder/internal/extract"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the frame indices an extraction would read",
	Long:  `Compute the sampling plan for a video of --total frames without opening any file.`,
	Example: `  # 10 evenly spaced indices out of 100 frames
  pacedrecorder plan --total 100 --count 10

  # Every 30th frame of a 310 frame video
  pacedrecorder plan --total 310 --count 999 --method interval --interval 30`,
	RunE: runPlan,
}

var (
	planTotal    int
	planCount    int
	planMethod   string
	planInterval int
	planFormat   string
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().IntVarP(&planTotal, "total", "t", 0, "total frames in the video")
	planCmd.Flags().IntVarP(&planCount, "count", "n", 100, "number of images wanted")
	planCmd.Flags().StringVarP(&planMethod, "method", "m", string(extract.EvenlySpaced), "evenly_spaced or interval")
	planCmd.Flags().IntVar(&planInterval, "interval", 30, "frame step for the interval method")
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "text", "output format (text or json)")
	planCmd.MarkFlagRequired("total")
}

func runPlan(cmd *cobra.Command, args []string) error {
	strategy, err := extract.ParseStrategy(planMethod)
	if err != nil {
		return err
	}
	plan := extract.Plan(planTotal, planCount, strategy, planInterval)

	switch planFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(plan)
	case "text":
		parts := make([]string, len(plan))
		for i, idx := range plan {
			parts[i] = fmt.Sprint(idx)
		}
		fmt.Printf("%d indices: %s\n", len(plan), strings.Join(parts, " "))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'text' or 'json')", planFormat)
	}
}
