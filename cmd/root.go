package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "trellobot",
	Short: "Trello bot for Matrix rooms",
	Long: `trellobot posts Trello board activity into Matrix rooms and resolves
board, list and card references typed in those rooms.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML config file (default ./config.toml)")
}

func setupLogger() {
	logger, err := newLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return
	}
	zap.ReplaceGlobals(logger)
}

// newLogger builds the console logger. Unknown levels fall back to info and
// an empty level means debug.
func newLogger(level string) (*zap.Logger, error) {
	parsed := zapcore.DebugLevel
	if level != "" {
		var err error
		if parsed, err = zapcore.ParseLevel(strings.ToLower(level)); err != nil {
			parsed = zapcore.InfoLevel
		}
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(parsed),
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}
