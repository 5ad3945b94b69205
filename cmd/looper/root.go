package main

import (
	"fmt"
	"os"

	"github.com/chase3718/lou-looper/internal/config"
	"github.com/chase3718/lou-looper/internal/logging"
	"github.com/chase3718/lou-looper/internal/notelog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	debugLog   bool
	logger     = zap.NewNop().Sugar()
)

var rootCmd = &cobra.Command{
	Use:           "looper",
	Short:         "Record and replay notes over a serial line",
	Long:          `looper captures note messages from a serial line into a persistent log and plays them back in a loop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(debugLog)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		logger = l
		return nil
	},
}

func init() {
	defaultPath, err := config.Path()
	if err != nil {
		defaultPath = "config.json"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "config file")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug logging (adds source location)")
	rootCmd.PersistentFlags().String("storage", "", "note log image (overrides config)")
	rootCmd.PersistentFlags().Uint16("max-addr", 0, "note log address space in bytes (overrides config)")

	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	f := cmd.Flags()
	if f.Changed("storage") {
		cfg.Storage.Path, _ = f.GetString("storage")
	}
	if f.Changed("max-addr") {
		cfg.Storage.MaxAddr, _ = f.GetUint16("max-addr")
	}
	if cfg.Storage.MaxAddr == 0 {
		cfg.Storage.MaxAddr = notelog.DefaultMaxAddr
	}
	if f.Lookup("serial") != nil && f.Changed("serial") {
		cfg.Serial.Device, _ = f.GetString("serial")
	}
	if f.Lookup("baud") != nil && f.Changed("baud") {
		cfg.Serial.Baud, _ = f.GetInt("baud")
	}
	if f.Lookup("fallback-spacing") != nil && f.Changed("fallback-spacing") {
		cfg.Playback.FallbackSpacingMs, _ = f.GetUint16("fallback-spacing")
	}
	if f.Lookup("saturation") != nil && f.Changed("saturation") {
		cfg.Clock.SaturationMs, _ = f.GetUint16("saturation")
	}
	return cfg, nil
}

// openLog opens the note log named by cfg. With mustExist set a missing
// image is an error instead of a fresh empty log.
func openLog(cfg *config.Config, mustExist bool) (*notelog.Log, *notelog.FileStorage, error) {
	if mustExist {
		if _, err := os.Stat(cfg.Storage.Path); err != nil {
			return nil, nil, fmt.Errorf("note log %s: %w", cfg.Storage.Path, err)
		}
	}
	fs, err := notelog.OpenFileStorage(cfg.Storage.Path, int(cfg.Storage.MaxAddr))
	if err != nil {
		return nil, nil, err
	}
	l, err := notelog.Open(fs, cfg.Storage.MaxAddr)
	if err != nil {
		fs.Close()
		return nil, nil, err
	}
	return l, fs, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective config to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		logger.Infow("config: saved", "path", configPath)
		return nil
	},
}
