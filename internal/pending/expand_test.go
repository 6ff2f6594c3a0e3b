package pending

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alx/artbot-for-stable-diffusion/internal/catalog"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory JobStore for tests. failEvery > 0 makes
// every Nth Add fail to exercise partial-batch behavior.
type memStore struct {
	mu        sync.Mutex
	pending   map[string]models.PendingJob
	completed map[string]models.PendingJob
	addCalls  int
	failEvery int
}

func newMemStore() *memStore {
	return &memStore{
		pending:   make(map[string]models.PendingJob),
		completed: make(map[string]models.PendingJob),
	}
}

func (s *memStore) Add(job models.PendingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	if s.failEvery > 0 && s.addCalls%s.failEvery == 0 {
		return fmt.Errorf("simulated write failure for %s", job.JobID)
	}
	s.pending[job.JobID] = job
	return nil
}

func (s *memStore) Get(jobID string) (models.PendingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.pending[jobID]
	if !ok {
		return models.PendingJob{}, fmt.Errorf("job %s not found", jobID)
	}
	return job, nil
}

func (s *memStore) Update(job models.PendingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[job.JobID] = job
	return nil
}

func (s *memStore) Delete(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, jobID)
	return nil
}

func (s *memStore) ListPending() ([]models.PendingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]models.PendingJob, 0, len(s.pending))
	for _, job := range s.pending {
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *memStore) MarkCompleted(job models.PendingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[job.JobID] = job
	delete(s.pending, job.JobID)
	return nil
}

// newTestExpander pins down randomness, clock and id generation.
func newTestExpander(store JobStore) *Expander {
	idCounter := 0
	return &Expander{
		store: store,
		rng:   rand.New(rand.NewSource(1)),
		now:   func() time.Time { return time.UnixMilli(1700000000000) },
		newID: func() string {
			idCounter++
			return fmt.Sprintf("job-%04d", idCounter)
		},
	}
}

func baseRequest() models.GenerationRequest {
	return models.GenerationRequest{
		Prompt:      "a cat",
		NumImages:   1,
		Models:      []string{catalog.ModelStableDiffusion},
		Sampler:     "k_euler_a",
		Orientation: "square",
		Steps:       24,
		CfgScale:    9,
	}
}

func assertNoSentinels(t *testing.T, job models.PendingJob) {
	t.Helper()
	assert.NotEqual(t, models.RandomSentinel, job.Model)
	assert.NotEqual(t, models.RandomSentinel, job.Sampler)
	assert.NotEqual(t, models.RandomSentinel, job.StylePreset)
	assert.NotEqual(t, models.RandomSentinel, job.Orientation)
	assert.NotEmpty(t, job.Model)
	assert.NotEmpty(t, job.Sampler)
}

func TestExpandEmptyPrompt(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	for _, prompt := range []string{"", "   ", "\n\t"} {
		req := baseRequest()
		req.Prompt = prompt
		result := expander.Expand(req)
		assert.Equal(t, 0, result.Attempted, "prompt %q should yield zero jobs", prompt)
		assert.False(t, result.Success())
	}
	assert.Empty(t, store.pending)
}

func TestExpandDefaultPath(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.NumImages = 3
	result := expander.Expand(req)

	require.Equal(t, 3, result.Attempted)
	require.Equal(t, 3, result.Stored)
	assert.Zero(t, result.Failed)
	assert.True(t, result.Success())
	require.Len(t, store.pending, 3)

	seen := map[string]bool{}
	for _, job := range store.pending {
		assert.False(t, seen[job.JobID], "job ids must be unique")
		seen[job.JobID] = true

		assert.Equal(t, catalog.ModelStableDiffusion, job.Model)
		assert.Equal(t, "1.5", job.ModelVersion)
		assert.Equal(t, "a cat", job.Prompt)
		assert.Equal(t, models.StatusWaiting, job.JobStatus)
		assert.Equal(t, int64(1700000000000), job.Timestamp)
		assertNoSentinels(t, job)
	}
}

func TestExpandClampsImageCount(t *testing.T) {
	tests := []struct {
		name      string
		numImages int
		want      int
	}{
		{"Zero resets to one", 0, 1},
		{"Negative resets to one", -5, 1},
		{"Over max resets to one", MaxImagesPerJob + 1, 1},
		{"At max is kept", MaxImagesPerJob, MaxImagesPerJob},
		{"In range is kept", 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			expander := newTestExpander(store)
			req := baseRequest()
			req.NumImages = tt.numImages
			result := expander.Expand(req)
			assert.Equal(t, tt.want, result.Stored)
		})
	}
}

func TestExpandMultiModel(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.NumImages = 2
	req.Models = []string{catalog.ModelStableDiffusion, "Anything Diffusion"}
	result := expander.Expand(req)

	require.Equal(t, 4, result.Stored, "numImages specs per named model")

	perModel := map[string]int{}
	for _, job := range store.pending {
		perModel[job.Model]++
		require.Len(t, job.Models, 1)
		assertNoSentinels(t, job)
	}
	assert.Equal(t, 2, perModel[catalog.ModelStableDiffusion])
	assert.Equal(t, 2, perModel["Anything Diffusion"])
}

func TestExpandMultiModelForcesLegacySampler(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.Models = []string{catalog.ModelSD20, catalog.ModelSD21}
	req.Sampler = "k_euler"
	result := expander.Expand(req)

	require.Equal(t, 2, result.Stored)
	for _, job := range store.pending {
		assert.Equal(t, catalog.SamplerDpmSolver, job.Sampler,
			"legacy SD 2.x models must end up on dpmsolver regardless of the requested sampler")
	}
}

func TestExpandAllSamplers(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.NumImages = 5
	req.UseAllSamplers = true
	result := expander.Expand(req)

	wantSamplers := catalog.DefaultSamplers()
	require.Equal(t, len(wantSamplers), result.Stored)

	got := map[string]bool{}
	for _, job := range store.pending {
		assert.Equal(t, 1, job.NumImages, "all-samplers forces the image count to 1")
		got[job.Sampler] = true
	}
	for _, sampler := range wantSamplers {
		assert.True(t, got[sampler], "missing sampler %s", sampler)
	}
}

func TestExpandAllSamplersLegacyModel(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.Models = []string{catalog.ModelSD2Base}
	req.UseAllSamplers = true
	result := expander.Expand(req)

	require.Equal(t, 1, result.Stored, "SD 2 base only supports a single sampler")
	for _, job := range store.pending {
		assert.Equal(t, catalog.SamplerDpmSolver, job.Sampler)
	}
}

func TestExpandAllModelsSkipsExcluded(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.UseAllModels = true
	result := expander.Expand(req)

	catalogModels := catalog.ValidModels()
	excluded := 0
	for _, info := range catalogModels {
		if info.SkipBlanket {
			excluded++
		}
	}
	require.Equal(t, len(catalogModels)-excluded, result.Stored)

	got := map[string]bool{}
	for _, job := range store.pending {
		got[job.Model] = true
		assert.Equal(t, 1, job.NumImages)
	}
	assert.False(t, got[catalog.ModelSDInpainting])
	assert.False(t, got[catalog.ModelSD2Depth])
	// Models listed after the excluded entries must still be present:
	// the fan-out skips and continues rather than stopping early.
	assert.True(t, got["Anything Diffusion"])
	assert.True(t, got["waifu_diffusion"])
}

func TestExpandResolvesRandomSentinels(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.Models = []string{models.RandomSentinel}
	req.Sampler = models.RandomSentinel
	req.Orientation = models.RandomSentinel
	result := expander.Expand(req)

	require.Equal(t, 1, result.Stored)
	for _, job := range store.pending {
		assertNoSentinels(t, job)
		_, ok := catalog.LookupModel(job.Model)
		assert.True(t, ok, "resolved model %q must be in the catalog", job.Model)
		_, ok = catalog.LookupOrientation(job.Orientation)
		assert.True(t, ok, "resolved orientation %q must be in the catalog", job.Orientation)
		assert.Greater(t, job.Width, 0)
		assert.Greater(t, job.Height, 0)
	}
}

func TestExpandRandomStylePinsModel(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.StylePreset = models.RandomSentinel
	result := expander.Expand(req)

	require.Equal(t, 1, result.Stored)
	for _, job := range store.pending {
		preset, ok := catalog.LookupStyle(job.StylePreset)
		require.True(t, ok, "resolved preset %q must be in the catalog", job.StylePreset)
		assert.Equal(t, preset.Model, job.Model, "preset must pin the model")
		assert.Contains(t, job.Prompt, "a cat", "template keeps the user prompt")
	}
}

func TestExpandAppendsTriggerWords(t *testing.T) {
	store := newMemStore()
	expander := newTestExpander(store)

	req := baseRequest()
	req.Models = []string{"Ghibli Diffusion"}
	result := expander.Expand(req)

	require.Equal(t, 1, result.Stored)
	for _, job := range store.pending {
		assert.Equal(t, "ghibli style a cat", job.Prompt)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	expander := newTestExpander(newMemStore())

	req := baseRequest()
	req.Models = []string{"Ghibli Diffusion"}
	req.Sampler = models.RandomSentinel
	req.Orientation = models.RandomSentinel

	once := expander.Resolve(expander.clone(req))
	twice := expander.Resolve(once)

	assert.Equal(t, once, twice, "resolving an already-concrete job must be a no-op")
}

func TestExpandToleratesPartialWriteFailures(t *testing.T) {
	store := newMemStore()
	store.failEvery = 2 // every second Add fails
	expander := newTestExpander(store)

	req := baseRequest()
	req.NumImages = 6
	result := expander.Expand(req)

	assert.Equal(t, 6, result.Attempted)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 3, result.Failed)
	assert.True(t, result.Success(), "a partial batch still counts as success")
	assert.Len(t, store.pending, 3)
}
