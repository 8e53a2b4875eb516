package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"driftshare.io/driftshare/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "driftshare",
	Short: "driftshare - content-addressed file sharing over an article network",
	Long: `driftshare segments, encrypts, and posts files to a store-and-forward
article network, and shares them behind open, member, or passphrase-gated
access tokens.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("driftshare version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a driftshare config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs as JSON")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(memberCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	asJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: asJSON})
}
