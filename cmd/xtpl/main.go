package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benjaminschreck/go-xtpl/pkg/xtpl"
)

const version = "0.1.0"

var (
	// Global flags
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xtpl",
	Short: "xtpl - compile and render XTemplate text templates",
	Long: `xtpl compiles XTemplate-style templates (<tpl for/if/exec> blocks,
{field:format} tokens and {[ code ]} spans) and renders them against JSON,
YAML or TOML data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := xtpl.ConfigFromEnvironment()
		if configPath != "" {
			loaded, err := xtpl.LoadConfigFile(configPath)
			if err != nil {
				return err
			}
			config = loaded
		}
		if verbose {
			config.LogLevel = "debug"
		}
		xtpl.SetGlobalConfig(config)

		logger = xtpl.NewLogger(os.Stderr, config.LogLevel)
		xtpl.SetLogger(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .toml or .json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	renderCmd.Flags().StringVarP(&dataPath, "data", "d", "", "Data file (.json, .yaml or .toml)")
	renderCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write output to file instead of stdout")

	watchCmd.Flags().StringVarP(&dataPath, "data", "d", "", "Data file (.json, .yaml or .toml)")
	watchCmd.Flags().StringVar(&extension, "ext", ".xtpl", "Template file extension")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
