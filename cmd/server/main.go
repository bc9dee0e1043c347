package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "giftsend",
	Short: "GiftSend - bulk gift card distribution",
	Long: `GiftSend extracts recipient emails from uploaded spreadsheets and
sends a gift card to each selected recipient through the Giftogram API.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, metrics server and order reconciler",
	Long:  `Start GiftSend. Configuration is read from the environment.`,
	RunE:  runServe,
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the recipients found in a spreadsheet, CSV or text file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "json", "output format: json or yaml")

	rootCmd.AddCommand(serveCmd, extractCmd)
}
