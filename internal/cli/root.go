package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "constellation",
	Short: "Personal activity graph",
	Long: "Constellation turns the window, screen, clipboard and music feed of one person " +
		"into a weighted graph of the people, projects, tools and topics in their day.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.constellation/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(peopleCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(resetCmd)
}
