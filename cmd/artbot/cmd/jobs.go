package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alx/artbot-for-stable-diffusion/internal/database"
	"github.com/alx/artbot-for-stable-diffusion/internal/helpers"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"
	"github.com/alx/artbot-for-stable-diffusion/internal/store"
)

// jobsCmd lists and maintains local job records.
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List local job records",
	Run:   runJobsList,
}

var jobsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete terminal (done/error) job records",
	Run:   runJobsPurge,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsPurgeCmd)

	jobsCmd.Flags().Bool("completed", false, "List completed jobs instead of pending ones")
	jobsPurgeCmd.Flags().Bool("completed", false, "Also purge the completed record set")
}

func runJobsList(cmd *cobra.Command, args []string) {
	db, jobStore := openStore()
	defer closeDb(db)

	completed, _ := cmd.Flags().GetBool("completed")

	var jobs []models.PendingJob
	var err error
	if completed {
		jobs, err = jobStore.ListCompleted()
	} else {
		jobs, err = jobStore.ListPending()
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to list job records")
	}

	if len(jobs) == 0 {
		fmt.Println("No job records found.")
		return
	}

	for _, job := range jobs {
		created := time.UnixMilli(job.Timestamp).Format(time.RFC3339)
		prompt := helpers.TruncateForSlug(job.Prompt, 60)
		fmt.Printf("%s  [%s]  %s  %s  %q\n", job.JobID, job.JobStatus, job.Model, created, prompt)
		if job.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", job.ErrorMessage)
		}
	}
	fmt.Printf("%d record(s)\n", len(jobs))
}

func runJobsPurge(cmd *cobra.Command, args []string) {
	db, jobStore := openStore()
	defer closeDb(db)

	pendingJobs, err := jobStore.ListPending()
	if err != nil {
		log.WithError(err).Fatal("Failed to list job records")
	}

	purged := 0
	for _, job := range pendingJobs {
		if !job.JobStatus.Terminal() {
			continue
		}
		if err := jobStore.Delete(job.JobID); err != nil {
			log.WithError(err).Warnf("Failed to purge job %s", job.JobID)
			continue
		}
		purged++
	}

	if alsoCompleted, _ := cmd.Flags().GetBool("completed"); alsoCompleted {
		completedJobs, err := jobStore.ListCompleted()
		if err != nil {
			log.WithError(err).Fatal("Failed to list completed records")
		}
		for _, job := range completedJobs {
			if err := jobStore.DeleteCompleted(job.JobID); err != nil {
				log.WithError(err).Warnf("Failed to purge completed job %s", job.JobID)
				continue
			}
			purged++
		}
	}

	log.Infof("Purged %d record(s)", purged)
}

func openStore() (*database.DB, *store.JobStore) {
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open job database")
	}
	return db, store.New(db)
}

func closeDb(db *database.DB) {
	if err := db.Close(); err != nil {
		log.WithError(err).Error("Error closing job database")
	}
}
