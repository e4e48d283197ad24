package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/PacedRecorder/internal/config"
	"github.com/bryanchriswhite/PacedRecorder/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "pacedrecorder",
		Short: "PacedRecorder - Fixed-rate webcam recorder with frame sampling",
		Long: `PacedRecorder captures a webcam at a fixed target frame rate, records
sessions to video files and samples still images from each finished session.

Features:
  • Paced capture loop that holds the configured frame rate
  • Live MJPEG preview that never slows the recorder
  • Start and stop recordings from the browser or the API
  • Evenly spaced or fixed-interval image extraction after every session
  • Prometheus metrics and a websocket status feed`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// stdout is reserved for command output
			logger.Setup(logger.Options{Level: "info", Pretty: true})
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pacedrecorder/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("device", "", "capture device path, or \"synthetic\" for a test pattern")
	rootCmd.PersistentFlags().Float64("fps", 0, "target capture frame rate")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("device.id", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("device.fps", rootCmd.PersistentFlags().Lookup("fps"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file, applies flag overrides and initializes
// logging from the result
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}
	if err := configMgr.ApplyOverrides(viper.GetViper()); err != nil {
		return nil, nil, err
	}

	cfg := configMgr.Get()
	logger.Setup(logger.Options{Level: cfg.LogLevel, Pretty: true})
	return configMgr, cfg, nil
}
