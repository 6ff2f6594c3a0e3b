package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alx/artbot-for-stable-diffusion/index"
	"github.com/alx/artbot-for-stable-diffusion/internal/database"
	"github.com/alx/artbot-for-stable-diffusion/internal/downloader"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"
	"github.com/alx/artbot-for-stable-diffusion/internal/pending"
	"github.com/alx/artbot-for-stable-diffusion/internal/store"

	"github.com/blevesearch/bleve/v2"
)

// pollCmd drives the reconciliation loop over every tracked job.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the horde until all pending jobs reach a terminal state",
	Long: `Loads every pending job from the local database and checks each one
against the horde on a fixed interval. Finished jobs are moved to the
completed record set; their images are downloaded and indexed when
enabled. Stops once nothing is left to track (or runs forever with
--watch).`,
	Run: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().IntP("interval", "i", 0, "Seconds between poll ticks (0 uses config default)")
	pollCmd.Flags().IntP("concurrency", "c", 0, "Number of concurrent status checks (0 uses config default)")
	pollCmd.Flags().Bool("watch", false, "Keep polling even when no jobs are pending")
	pollCmd.Flags().Bool("save-images", false, "Download finished images to SavePath (overrides config)")
	pollCmd.Flags().Bool("index", false, "Index completed prompts for 'artbot search' (overrides config)")

	_ = viper.BindPFlag("poll.interval", pollCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("poll.concurrency", pollCmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("poll.watch", pollCmd.Flags().Lookup("watch"))
}

func runPoll(cmd *cobra.Command, args []string) {
	interval := viper.GetInt("poll.interval")
	if interval <= 0 {
		interval = globalConfig.PollIntervalSec
	}
	concurrency := viper.GetInt("poll.concurrency")
	if concurrency <= 0 {
		concurrency = globalConfig.Concurrency
	}

	saveImages := globalConfig.SaveImages
	if cmd.Flags().Changed("save-images") {
		saveImages, _ = cmd.Flags().GetBool("save-images")
	}
	indexCompleted := globalConfig.IndexCompleted
	if cmd.Flags().Changed("index") {
		indexCompleted, _ = cmd.Flags().GetBool("index")
	}

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open job database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Error("Error closing job database")
		}
	}()

	jobStore := store.New(db)
	registry, err := pending.NewRegistry(jobStore)
	if err != nil {
		log.WithError(err).Fatal("Failed to load pending jobs")
	}
	if registry.Len() == 0 && !viper.GetBool("poll.watch") {
		log.Info("No pending jobs to poll.")
		return
	}

	client := newHordeClient()
	guard := pending.NewStaleJobGuard()
	reconciler := pending.NewReconciler(registry, jobStore, client, guard)
	reconciler.OnCompleted = completionHook(saveImages, indexCompleted, concurrency)

	log.Infof("Polling %d job(s) every %ds with %d worker(s)", registry.Len(), interval, concurrency)

	ctx := cmd.Context()
	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		pollTick(ctx, reconciler, registry, concurrency)
		renderStatus(writer, registry, guard)

		if registry.Len() == 0 && !viper.GetBool("poll.watch") {
			fmt.Fprintln(writer.Newline(), "All jobs reached a terminal state.")
			return
		}

		select {
		case <-ctx.Done():
			log.Info("Polling interrupted.")
			return
		case <-ticker.C:
		}
	}
}

// pollTick reconciles a snapshot of the registry through a bounded
// worker pool. The reconciler serializes per-id checks itself, so a
// slow tick overlapping the next one is harmless.
func pollTick(ctx context.Context, reconciler *pending.Reconciler, registry *pending.Registry, concurrency int) {
	jobs := make(chan string, registry.Len()+1)
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jobID := range jobs {
				reconciler.Reconcile(ctx, jobID)
			}
		}()
	}

	for _, job := range registry.Snapshot() {
		jobs <- job.JobID
	}
	close(jobs)
	wg.Wait()
}

// renderStatus rewrites the live status lines after a tick.
func renderStatus(writer *uilive.Writer, registry *pending.Registry, guard *pending.StaleJobGuard) {
	snapshot := registry.Snapshot()
	fmt.Fprintf(writer, "Tracking %d job(s), %d stale\n", len(snapshot), guard.Len())
	for _, job := range snapshot {
		switch job.JobStatus {
		case models.StatusProcessing:
			fmt.Fprintf(writer.Newline(), "  %s  processing (%d finished, ~%ds left)\n",
				job.JobID, job.Finished, job.WaitTime)
		default:
			fmt.Fprintf(writer.Newline(), "  %s  queue position %d, ~%ds wait\n",
				job.JobID, job.QueuePosition, job.WaitTime)
		}
	}
}

// completionHook builds the OnCompleted callback: download images and
// index the finished prompt, as configured.
func completionHook(saveImages, indexCompleted bool, concurrency int) func(models.PendingJob, []models.Generation) {
	if !saveImages && !indexCompleted {
		return nil
	}

	var bleveIndex bleve.Index
	if indexCompleted {
		var err error
		bleveIndex, err = index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
		if err != nil {
			log.WithError(err).Warn("Failed to open search index, completed jobs will not be indexed")
			bleveIndex = nil
		}
	}

	imageDownloader := downloader.New(nil)

	return func(job models.PendingJob, generations []models.Generation) {
		imageDir := ""
		if saveImages && len(generations) > 0 {
			imageDir = globalConfig.SavePath
			succeeded, failed := imageDownloader.SaveAll(context.Background(), imageDir, job, generations, concurrency)
			log.Debugf("Image downloads for job %s: %d ok, %d failed", job.JobID, succeeded, failed)
		}

		if bleveIndex != nil {
			for _, gen := range generations {
				if err := index.IndexItem(bleveIndex, index.FromJob(job, gen, imageDir)); err != nil {
					log.WithError(err).Warnf("Failed to index completed job %s", job.JobID)
				}
			}
		}
	}
}
