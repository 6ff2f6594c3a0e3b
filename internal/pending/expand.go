package pending

import (
	"math/rand"
	"strings"
	"time"

	"github.com/alx/artbot-for-stable-diffusion/internal/catalog"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// MaxImagesPerJob caps the image count of a single request. Counts
// outside [1, MaxImagesPerJob] reset to 1.
const MaxImagesPerJob = 20

// JobStore is the durable persistence consumed by the expansion engine,
// the registry and the reconciler. Implemented by internal/store.
type JobStore interface {
	Add(job models.PendingJob) error
	Get(jobID string) (models.PendingJob, error)
	Update(job models.PendingJob) error
	Delete(jobID string) error
	ListPending() ([]models.PendingJob, error)
	MarkCompleted(job models.PendingJob) error
}

// BatchResult reports how an expansion batch fared. Per-item write
// failures do not abort the batch; they are counted here instead of
// being silently discarded.
type BatchResult struct {
	Attempted int
	Stored    int
	Failed    int
	// JobIDs lists the ids that reached the store, in creation order.
	JobIDs []string
}

// Success reports whether at least one job spec reached the store.
func (r BatchResult) Success() bool {
	return r.Stored > 0
}

// Expander turns one generation request into N concrete job specs and
// persists them. Randomness and id/clock sources are injectable so
// tests can pin them down.
type Expander struct {
	store JobStore
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

// NewExpander returns an Expander backed by the given store.
func NewExpander(store JobStore) *Expander {
	return &Expander{
		store: store,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Expand applies the fan-out rules to a request and writes every
// resulting job spec to the store. One failed write must not abort the
// remaining items, so errors are counted per item.
func (e *Expander) Expand(req models.GenerationRequest) BatchResult {
	if strings.TrimSpace(req.Prompt) == "" {
		log.Debug("Rejecting generation request with empty prompt")
		return BatchResult{}
	}

	numImages := req.NumImages
	if numImages < 1 || numImages > MaxImagesPerJob {
		numImages = 1
	}

	var specs []models.PendingJob

	switch {
	case len(req.Models) > 1:
		// Cross product: numImages specs per named model.
		for _, model := range req.Models {
			for i := 0; i < numImages; i++ {
				job := e.clone(req)
				job.Models = []string{model}
				specs = append(specs, e.Resolve(job))
			}
		}

	case req.UseAllSamplers:
		model := ""
		if len(req.Models) > 0 {
			model = req.Models[0]
		}
		for _, sampler := range catalog.SamplersForBatch(model) {
			job := e.clone(req)
			job.NumImages = 1
			job.Sampler = sampler
			specs = append(specs, e.Resolve(job))
		}

	case req.UseAllModels:
		for _, info := range catalog.ValidModels() {
			// Inpainting-only and depth-only models make no sense in a
			// blanket run. Skip them and keep going.
			if info.SkipBlanket {
				continue
			}
			job := e.clone(req)
			job.NumImages = 1
			job.Models = []string{info.Name}
			specs = append(specs, e.Resolve(job))
		}

	default:
		for i := 0; i < numImages; i++ {
			specs = append(specs, e.Resolve(e.clone(req)))
		}
	}

	result := BatchResult{Attempted: len(specs)}
	for _, spec := range specs {
		if err := e.store.Add(spec); err != nil {
			log.WithError(err).Warnf("Failed to store job spec %s", spec.JobID)
			result.Failed++
			continue
		}
		result.Stored++
		result.JobIDs = append(result.JobIDs, spec.JobID)
	}

	log.WithFields(log.Fields{
		"attempted": result.Attempted,
		"stored":    result.Stored,
		"failed":    result.Failed,
	}).Debug("Expanded generation request")
	return result
}

// clone copies the request into a fresh PendingJob with its own id and
// timestamp. Ids are never reused, even for otherwise-identical
// variants in the same batch.
func (e *Expander) clone(req models.GenerationRequest) models.PendingJob {
	job := models.PendingJob{GenerationRequest: req}
	job.Models = append([]string(nil), req.Models...)
	job.JobID = e.newID()
	job.Timestamp = e.now().UnixMilli()
	job.JobStatus = models.StatusWaiting
	job.IsPossible = true
	return job
}

// Resolve replaces every remaining "random" sentinel with a concrete
// value, in a fixed order: style preset (which may pin the model),
// model, version tag, trigger words, orientation, sampler, and finally
// the legacy sampler override. Resolving an already-concrete job a
// second time is a no-op.
func (e *Expander) Resolve(job models.PendingJob) models.PendingJob {
	if job.StylePreset == models.RandomSentinel {
		preset := catalog.RandomStyle(e.rng)
		job.StylePreset = preset.Name
		if preset.Template != "" {
			job.Prompt = strings.ReplaceAll(preset.Template, "{p}", job.Prompt)
		}
		if preset.Model != "" {
			job.Models = []string{preset.Model}
		}
	}

	if len(job.Models) == 0 {
		job.Models = []string{models.RandomSentinel}
	}
	if job.Models[0] == models.RandomSentinel {
		job.Models = []string{catalog.RandomModel(e.rng)}
	}
	job.Model = job.Models[0]
	job.ModelVersion = catalog.ModelVersion(job.Model)

	job.Prompt = addTriggerToPrompt(job.Prompt, job.Model)

	if job.Orientation == models.RandomSentinel {
		o := catalog.RandomOrientation(e.rng)
		job.Orientation = o.Name
		job.Width = o.Width
		job.Height = o.Height
	} else if job.Width == 0 || job.Height == 0 {
		if o, ok := catalog.LookupOrientation(job.Orientation); ok {
			job.Width = o.Width
			job.Height = o.Height
		}
	}

	if job.Sampler == models.RandomSentinel {
		job.Sampler = catalog.RandomSampler(e.rng, job.Steps, job.SourceProcessing)
	}

	// Applied last so it wins over whatever the branches above picked.
	if sampler, ok := catalog.ForcedSampler(job.Model); ok {
		job.Sampler = sampler
	}

	return job
}

// addTriggerToPrompt prepends a model's activation tokens to the
// prompt. Prompts that already start with the tokens are left alone.
func addTriggerToPrompt(prompt, model string) string {
	trigger := catalog.TriggerWords(model)
	if len(trigger) == 0 {
		return prompt
	}
	joined := strings.Join(trigger, " ")
	if prompt == joined || strings.HasPrefix(prompt, joined+" ") {
		return prompt
	}
	return joined + " " + prompt
}
