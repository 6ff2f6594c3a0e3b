package cmd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alx/artbot-for-stable-diffusion/internal/database"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"
	"github.com/alx/artbot-for-stable-diffusion/internal/pending"
	"github.com/alx/artbot-for-stable-diffusion/internal/store"
)

// createCmd expands a generation request into pending jobs and submits
// them to the horde.
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create image generation jobs and submit them to the horde",
	Long: `Expands a single generation request into one or more concrete jobs
(resolving "random" placeholders and fan-out flags), stores them locally
and submits each one to the horde. Track them with 'artbot poll'.

Examples:
  artbot create -p "a cat wearing a top hat" -n 3
  artbot create -p "castle at dusk" --model "Ghibli Diffusion" --orientation landscape
  artbot create -p "portrait study" --model random --sampler random --style random
  artbot create -p "lighthouse" --all-models
  artbot create -p "street scene" --all-samplers --steps 20`,
	Run: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringP("prompt", "p", "", "Prompt text (required)")
	createCmd.Flags().String("negative", "", "Negative prompt")
	createCmd.Flags().IntP("count", "n", 1, "Number of images to request")
	createCmd.Flags().StringSliceP("model", "m", []string{"stable_diffusion"}, "Model(s) to use; more than one fans out, 'random' picks one")
	createCmd.Flags().String("sampler", "k_euler_a", "Sampler name, or 'random'")
	createCmd.Flags().String("style", "", "Style preset name, or 'random'")
	createCmd.Flags().String("orientation", "square", "Image orientation, or 'random'")
	createCmd.Flags().Int("steps", 24, "Sampling steps")
	createCmd.Flags().Float64("cfg-scale", 9, "Classifier-free guidance scale")
	createCmd.Flags().String("seed", "", "Seed (empty for random)")
	createCmd.Flags().Bool("all-models", false, "Generate one image per model in the catalog")
	createCmd.Flags().Bool("all-samplers", false, "Generate one image per sampler in the default set")
	createCmd.Flags().String("source-image", "", "Base64 source image for img2img")
	createCmd.Flags().String("source-processing", "", "Source processing mode (img2img, inpainting)")
	createCmd.Flags().Float64("denoise", 0.75, "Denoising strength for img2img")
	createCmd.Flags().Bool("dry-run", false, "Expand and store jobs without submitting to the horde")

	_ = createCmd.MarkFlagRequired("prompt")

	_ = viper.BindPFlag("create.count", createCmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("create.steps", createCmd.Flags().Lookup("steps"))
	_ = viper.BindPFlag("create.cfg_scale", createCmd.Flags().Lookup("cfg-scale"))
	_ = viper.BindPFlag("create.dry_run", createCmd.Flags().Lookup("dry-run"))
}

func runCreate(cmd *cobra.Command, args []string) {
	req := requestFromFlags(cmd)

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
	expander := pending.NewExpander(jobStore)

	result := expander.Expand(req)
	if result.Attempted == 0 {
		log.Error("Nothing to do: the request expanded to zero jobs (empty prompt?)")
		return
	}
	if result.Failed > 0 {
		log.Warnf("Stored %d/%d job spec(s); %d failed to persist", result.Stored, result.Attempted, result.Failed)
	} else {
		log.Infof("Stored %d job spec(s)", result.Stored)
	}

	if viper.GetBool("create.dry_run") {
		log.Info("Dry run requested, skipping submission")
		return
	}

	submitJobs(cmd.Context(), jobStore, result.JobIDs)
}

// submitJobs sends each stored spec to the horde and rewrites the
// record under the backend-assigned id. Per-job failures leave the
// local record in place for a later retry.
func submitJobs(ctx context.Context, jobStore *store.JobStore, jobIDs []string) {
	client := newHordeClient()
	submitted := 0

	for i, jobID := range jobIDs {
		if i > 0 && globalConfig.ApiDelayMs > 0 {
			time.Sleep(time.Duration(globalConfig.ApiDelayMs) * time.Millisecond)
		}

		job, err := jobStore.Get(jobID)
		if err != nil {
			log.WithError(err).Warnf("Stored job %s vanished before submission", jobID)
			continue
		}

		backendID, err := client.SubmitJob(ctx, job)
		if err != nil {
			log.WithError(err).Errorf("Failed to submit job %s, it stays stored locally", jobID)
			continue
		}

		// Rekey the record under the id the horde will answer for. The
		// new record is written first so a failure in between leaves a
		// duplicate, never a lost job.
		job.JobID = backendID
		job.JobStatus = models.StatusQueued
		if err := jobStore.Add(job); err != nil {
			log.WithError(err).Errorf("Failed to store submitted job %s", backendID)
			continue
		}
		if err := jobStore.Delete(jobID); err != nil {
			log.WithError(err).Warnf("Failed to drop temporary record %s", jobID)
		}

		submitted++
		log.WithFields(log.Fields{
			"jobId": backendID,
			"model": job.Model,
		}).Info("Job accepted by the horde")
	}

	log.Infof("Submitted %d/%d job(s). Run 'artbot poll' to track them.", submitted, len(jobIDs))
}

// requestFromFlags assembles the generation request from CLI flags.
func requestFromFlags(cmd *cobra.Command) models.GenerationRequest {
	prompt, _ := cmd.Flags().GetString("prompt")
	negative, _ := cmd.Flags().GetString("negative")
	modelsFlag, _ := cmd.Flags().GetStringSlice("model")
	sampler, _ := cmd.Flags().GetString("sampler")
	style, _ := cmd.Flags().GetString("style")
	orientation, _ := cmd.Flags().GetString("orientation")
	seed, _ := cmd.Flags().GetString("seed")
	allModels, _ := cmd.Flags().GetBool("all-models")
	allSamplers, _ := cmd.Flags().GetBool("all-samplers")
	sourceImage, _ := cmd.Flags().GetString("source-image")
	sourceProcessing, _ := cmd.Flags().GetString("source-processing")
	denoise, _ := cmd.Flags().GetFloat64("denoise")

	if sourceImage != "" && sourceProcessing == "" {
		sourceProcessing = models.SourceProcessingImg2Img
	}

	return models.GenerationRequest{
		Prompt:            prompt,
		NegativePrompt:    negative,
		NumImages:         viper.GetInt("create.count"),
		Models:            modelsFlag,
		Sampler:           sampler,
		StylePreset:       style,
		Orientation:       orientation,
		Steps:             viper.GetInt("create.steps"),
		CfgScale:          viper.GetFloat64("create.cfg_scale"),
		Seed:              seed,
		UseAllModels:      allModels,
		UseAllSamplers:    allSamplers,
		SourceImage:       sourceImage,
		SourceProcessing:  sourceProcessing,
		DenoisingStrength: denoise,
	}
}
