package index

import (
	"path/filepath"
	"testing"

	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAndSearch(t *testing.T) {
	idx, err := OpenOrCreateIndex(filepath.Join(t.TempDir(), "test.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	job := models.PendingJob{JobID: "horde-42"}
	job.Prompt = "ghibli style a lighthouse at dusk"
	job.Model = "Ghibli Diffusion"
	job.Sampler = "k_euler_a"
	job.Width = 768
	job.Height = 512

	gen := models.Generation{WorkerName: "worker-7"}
	item := FromJob(job, gen, "/data/images/lighthouse.webp")
	require.NoError(t, IndexItem(idx, item))

	result, err := SearchIndex(idx, "lighthouse")
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total)
	assert.Equal(t, "horde-42", result.Hits[0].ID)

	result, err = SearchIndex(idx, "+sampler:k_euler_a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Total)

	result, err = SearchIndex(idx, "submarine")
	require.NoError(t, err)
	assert.Zero(t, result.Total)
}

func TestIndexItemOverwritesByID(t *testing.T) {
	idx, err := OpenOrCreateIndex(filepath.Join(t.TempDir(), "test.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	job := models.PendingJob{JobID: "horde-42"}
	job.Prompt = "a cat"
	require.NoError(t, IndexItem(idx, FromJob(job, models.Generation{}, "")))
	require.NoError(t, IndexItem(idx, FromJob(job, models.Generation{}, "/data/a.webp")))

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "re-indexing the same id must not duplicate")
}
