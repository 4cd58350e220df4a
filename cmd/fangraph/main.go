// Command fangraph crawls the public collection pages of Bandcamp fans
// into a local SQLite cache and serves collaborative-filtering
// recommendations computed from who collects what.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fangraph",
	Short: "fangraph - collection-graph recommendations for Bandcamp fans",
	Long: `fangraph builds a recommendation engine out of Bandcamp's public pages:
it crawls who collects what into a local SQLite cache and scores items
for a fan from the collections of fans with overlapping taste.

Run 'fangraph serve' to start the crawler and the API.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("fangraph version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.Flags().Bool("version", false, "Print version and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
