package cmd

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alx/artbot-for-stable-diffusion/index"
)

var searchQuery string

// searchCmd queries the completed-job search index.
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search completed generations by prompt, model or sampler",
	Long: `Performs a search against the Bleve index of completed generations.
The index is built during 'artbot poll' when IndexCompleted is enabled.

Supports Bleve's query string syntax. Relevant fields (lowercase JSON
tag names):
  - prompt, negativePrompt (string)
  - model, modelVersion, sampler, stylePreset, orientation (string)
  - width, height, steps (numeric)
  - workerName (string)
  - finishedAt (time, e.g. +finishedAt:>"2026-01-01")

Examples:
  artbot search -q "cat"
  artbot search -q "+model:Ghibli* +prompt:castle"
  artbot search -q "+sampler:k_euler_a"`,
	Run: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search query (uses Bleve query string syntax)")
	_ = searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) {
	indexPath := globalConfig.BleveIndexPath
	if indexPath == "" {
		indexPath = "artbot.bleve"
	}

	bleveIndex, err := bleve.Open(indexPath)
	if err != nil {
		if err == bleve.ErrorIndexPathDoesNotExist {
			log.Errorf("Search index not found at %s. Run 'artbot poll --index' first.", indexPath)
		} else {
			log.Errorf("Failed to open search index at %s: %v", indexPath, err)
		}
		return
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.Errorf("Error closing search index: %v", err)
		}
	}()

	searchResults, err := index.SearchIndex(bleveIndex, searchQuery)
	if err != nil {
		log.Errorf("Error performing search: %v", err)
		return
	}

	log.Debugf("Search finished. Hits: %d, Total: %d, Took: %s",
		len(searchResults.Hits), searchResults.Total, searchResults.Took)

	if searchResults.Total == 0 {
		fmt.Println("No results found matching your query.")
		return
	}

	fmt.Println("--- Search Results ---")
	for i, hit := range searchResults.Hits {
		fmt.Printf("[%d] ID: %s (Score: %.2f)\n", i+1, hit.ID, hit.Score)
		for field, value := range hit.Fields {
			fmt.Printf("  %s: %v\n", field, value)
		}
		fmt.Println("---")
	}
}
