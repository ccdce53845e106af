// Package cli provides the command-line interface for apkforge
package cli

import (
	"fmt"

	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbosity string
	version   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "apkforge",
	Short: "Turn a web repository into an installable Android package",
	Long: `📦 apkforge - Web-to-APK build pipeline

apkforge clones a web repository, builds it with npm, wraps the output in a
Capacitor Android shell and compiles a debug APK, streaming progress back as
it goes. Run it as a long-lived server or as a one-shot build from the
command line.`,

	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("📦 apkforge v%s\n", version)
			return
		}
		// If no subcommand, show help
		cmd.Help()
	},
}

// Execute runs the CLI
func Execute(v string) error {
	version = v

	// Initialize the root command explicitly (avoiding init())
	initializeRootCommand()

	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags.
// This replaces the init() function to make initialization explicit and testable.
func initializeRootCommand() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: apkforge.config.json)")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "", "log level (debug, info, warn, error)")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Console output helpers

var console = logger.NewConsoleLogger()

func printSuccess(message string) { console.Success(message) }

func printError(message string) { console.Error(message) }

func printInfo(message string) { console.Info(message) }
