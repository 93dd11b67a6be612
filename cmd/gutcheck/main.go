// Command gutcheck is a conversational food and symptom logger.
//
// Run without arguments to start the interactive chat interface.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gutcheck/internal/config"
	"gutcheck/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Set by the build.
var version = "dev"

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// chatLogFile keeps log lines out of the chat interface.
const chatLogFile = "data/gutcheck-chat.log"

var rootCmd = &cobra.Command{
	Use:   "gutcheck",
	Short: "Conversational food and symptom logger",
	Long: `gutcheck turns short free-text messages like "ate pizza for dinner" or
"stomach hurts, 6" into structured log entries. It asks a follow-up question
when a message is vague or incomplete and links symptoms to recent meals.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		if verbose {
			cfg.Logging.Level = "debug"
		}
		if interactive(cmd) && cfg.Logging.File == "" {
			cfg.Logging.File = chatLogFile
		}
		if err := logging.Initialize(cfg.Logging.ToLogging()); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.Boot("gutcheck %s starting (config=%s)", version, configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runChat,
}

func interactive(cmd *cobra.Command) bool {
	return cmd.Name() == "chat" || cmd == cmd.Root()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gutcheck.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to a dotenv file with secrets")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "gutcheck "+version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
