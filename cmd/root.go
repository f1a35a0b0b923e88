package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the vapormail application
var rootCmd = &cobra.Command{
	Use:   "vapormail",
	Short: "Self-hosted web client for disposable mail.tm mailboxes",
	Long: `vapormail serves a browser UI for disposable mailboxes backed by the
mail.tm public API.

It manages mailbox sessions entirely through browser cookies, proxies the
mail.tm API for the UI, and can bridge GitHub OAuth logins onto
deterministic mail.tm accounts.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "vapormail version %s\n" .Version}}`)

	// Best effort: a missing .env file is fine
	_ = godotenv.Load()

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
