package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
)

var rootCmd = &cobra.Command{
	Use:   "quickhook [port]",
	Short: "Redeploy quicklog on GitHub push",
	Long: `Quickhook is a minimal GitHub push webhook listener.

GET and HEAD on any path answer "OK". A POST carrying a push for the
configured repository and ref pulls, rebuilds and restarts the service,
one command after another, before answering "OK".

The optional argument is the port to listen on (default 8954).`,
	Version:           version,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: loadDotEnv,
	RunE:              runServe,
	SilenceUsage:      true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to quickhook.yaml (default: search ./, ./config/, /etc/quickhook/)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite delivery journal (default: disabled)")

	rootCmd.Flags().StringVar(&host, "host", "", "Host to bind to (default: all interfaces)")
	rootCmd.Flags().StringVar(&logFile, "log", "", "Also append JSON logs to this file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(configCmd)
}

// loadDotEnv reads ./.env if present. Variables already set win.
func loadDotEnv(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
