// Command gateway runs the CareConnect government data gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var osExit = os.Exit

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "CareConnect government data gateway",
	Long: `The gateway guards the CareConnect government data API: it validates
API credentials, enforces tiered rate limits, caches responses, and
keeps an audit trail of administrative actions.`,
}

func main() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}
