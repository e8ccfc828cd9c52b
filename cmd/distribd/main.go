package main

import (
	"fmt"
	"os"

	"github.com/distribd/distribd/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "distribd",
	Short: "distribd - a replicated OCI registry core",
	Long: `distribd is the replication engine behind a distributed container
image registry: a replicated log, a state reducer, and a content mirror
that together let a client push to any node and pull from any node.`,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"distribd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// applyConfigLogging re-initializes the logger once a YAML config file has
// been loaded, using its logging block as the base and only letting
// --log-level/--log-json override it when the caller actually passed them
// (cobra's Changed flag, not just "differs from the flag's own default").
func applyConfigLogging(cfg *Config) {
	logLevel := cfg.Logging.Level
	logJSON := cfg.Logging.JSON

	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		logLevel, _ = flags.GetString("log-level")
	} else if logLevel == "" {
		logLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		logJSON, _ = flags.GetBool("log-json")
	}

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the distribd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("distribd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}
