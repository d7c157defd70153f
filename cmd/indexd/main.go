package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jpl-au/indexcore/config"
	"github.com/jpl-au/indexcore/fulltext"
	"github.com/jpl-au/indexcore/host"
	"github.com/jpl-au/indexcore/index"
	"github.com/jpl-au/indexcore/indexlog"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexd",
	Short: "indexd runs a demo indexcore host: an in-memory document store with one or more background indexes",
	Long: `indexd is a demonstration harness for the indexcore engine, not a
production server. It seeds an in-memory document store, runs one
auto-map index over it in the background, and issues queries against
it — the same collaborators (IndexStorage, IndexPersistence,
IndexingLoop, QueryPath) a real host would wire to an actual document
database.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("storage-dir", "", "Directory for index storage (empty: memory-only)")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(demoCmd)
}

func initLogging() {
	levelStr, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	indexlog.Init(os.Stdout, jsonOutput, level)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Seed a collection, start an auto-map index over it, and query it",
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		docCount, _ := cmd.Flags().GetInt("docs")
		field, _ := cmd.Flags().GetString("field")
		value, _ := cmd.Flags().GetString("query")
		storageDir, _ := cmd.Flags().GetString("storage-dir")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		cfg := config.Default()
		cfg.StorageDir = storageDir
		cfg.PollInterval = 50 * time.Millisecond

		h := host.New(cfg)
		defer func() {
			if err := h.Shutdown(); err != nil {
				fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
			}
		}()

		fmt.Printf("Seeding %d documents into %q...\n", docCount, collection)
		for i := 0; i < docCount; i++ {
			fieldValue := fmt.Sprintf("filler-%d", i)
			if i == docCount-1 {
				fieldValue = value // guarantees the demo query has exactly one hit
			}
			h.Store().Put(collection, fmt.Sprintf("doc-%04d", i), map[string]string{field: fieldValue})
		}
		fmt.Println("✓ Seed complete")

		definition := index.IndexDefinition{
			Name:        "demo",
			Type:        index.IndexTypeAutoMap,
			Collections: []index.CollectionName{index.CollectionName(collection)},
		}
		ix, err := h.CreateIndex(definition)
		if err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		if err := ix.Start(); err != nil {
			return fmt.Errorf("start index: %w", err)
		}
		fmt.Println("✓ Index started")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		result, err := ix.Query(ctx, index.Query{
			Terms:                  []fulltext.Term{{Collection: strings.ToLower(collection), Field: field, Value: value}},
			WaitForNonStaleAsOfNow: true,
			Timeout:                timeout,
			MaxResults:             50,
		}, nil)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		fmt.Println()
		fmt.Printf("Index:      %s\n", result.IndexName)
		fmt.Printf("Stale:      %v\n", result.IsStale)
		fmt.Printf("Etag:       %d\n", result.Etag)
		fmt.Printf("Total hits: %d\n", result.TotalResults)
		for _, key := range result.Results {
			fmt.Printf("  - %s\n", key)
		}

		stats, err := ix.GetStats()
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		fmt.Println()
		fmt.Printf("Batches: %d  Mapped: %d  Deleted: %d  Write errors: %d\n",
			stats.BatchCount, stats.MapCount, stats.DeleteCount, stats.WriteErrorCount)

		if compact, _ := cmd.Flags().GetBool("compact"); compact {
			if err := ix.Compact(); err != nil {
				return fmt.Errorf("compact: %w", err)
			}
			fmt.Println("✓ Compacted full-text storage")
		}

		return nil
	},
}

func init() {
	demoCmd.Flags().String("collection", "Users", "Collection to seed and index")
	demoCmd.Flags().Int("docs", 50, "Number of documents to seed")
	demoCmd.Flags().String("field", "name", "Field to populate and query")
	demoCmd.Flags().String("query", "alice", "Value to query for (assigned to the last seeded document)")
	demoCmd.Flags().Duration("timeout", 10*time.Second, "Maximum time to wait for the index to catch up")
	demoCmd.Flags().Bool("compact", false, "Compact the full-text storage after querying")
}
