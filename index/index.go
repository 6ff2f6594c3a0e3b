package index

import (
	"time"

	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "artbot.bleve"

// Item is one completed generation in the search index. All fields are
// searchable by their lowercase JSON tag names (e.g. '+model:ghibli*'
// or '+sampler:k_euler_a').
type Item struct {
	ID             string    `json:"id"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negativePrompt,omitempty"`
	Model          string    `json:"model"`
	ModelVersion   string    `json:"modelVersion,omitempty"`
	Sampler        string    `json:"sampler"`
	StylePreset    string    `json:"stylePreset,omitempty"`
	Orientation    string    `json:"orientation,omitempty"`
	Width          float64   `json:"width"`
	Height         float64   `json:"height"`
	Steps          float64   `json:"steps"`
	WorkerName     string    `json:"workerName,omitempty"`
	ImagePath      string    `json:"imagePath,omitempty"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// FromJob builds an index item from a completed job and one of its
// generations.
func FromJob(job models.PendingJob, gen models.Generation, imagePath string) Item {
	return Item{
		ID:             job.JobID,
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Model:          job.Model,
		ModelVersion:   job.ModelVersion,
		Sampler:        job.Sampler,
		StylePreset:    job.StylePreset,
		Orientation:    job.Orientation,
		Width:          float64(job.Width),
		Height:         float64(job.Height),
		Steps:          float64(job.Steps),
		WorkerName:     gen.WorkerName,
		ImagePath:      imagePath,
		FinishedAt:     time.Now().UTC(),
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Debugf("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		return bleve.New(indexPath, mapping)
	} else if err != nil {
		return nil, err
	}
	log.Debugf("Opened existing index at: %s", indexPath)
	return idx, nil
}

// IndexItem adds or updates an item in the index.
func IndexItem(idx bleve.Index, item Item) error {
	return idx.Index(item.ID, item)
}

// SearchIndex performs a query-string search against the index.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"}
	return idx.Search(searchRequest)
}
