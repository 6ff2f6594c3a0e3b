package downloader

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alx/artbot-for-stable-diffusion/internal/helpers"
	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom downloader errors.
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error")
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
	ErrEmptyImage  = errors.New("generation carries no image data")
)

// Downloader saves finished generation images to disk. The horde
// returns either an R2 URL or inline base64 depending on job size.
type Downloader struct {
	client *http.Client
}

// New creates a Downloader. A nil client gets a default with a long
// timeout; image hosts can be slow.
func New(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Downloader{client: client}
}

// SaveGeneration writes one finished image under dir and returns the
// final path. Filenames combine a prompt slug with a content hash, so
// re-downloading the same image is a cheap no-op.
func (d *Downloader) SaveGeneration(ctx context.Context, dir string, job models.PendingJob, gen models.Generation) (string, error) {
	data, err := d.imageBytes(ctx, gen)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrFileSystem, dir, err)
	}

	slug := helpers.ConvertToSlug(helpers.TruncateForSlug(job.Prompt, 40))
	if slug == "" {
		slug = "untitled"
	}
	filename := fmt.Sprintf("%s_%s.webp", slug, helpers.ContentHash(data))
	finalPath := filepath.Join(dir, filename)

	if _, err := os.Stat(finalPath); err == nil {
		log.Debugf("Image already saved at %s, skipping", finalPath)
		return finalPath, nil
	}

	if err := os.WriteFile(finalPath, data, 0600); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", ErrFileSystem, finalPath, err)
	}

	log.Infof("Saved image for job %s to %s", job.JobID, finalPath)
	return finalPath, nil
}

// SaveAll downloads every generation of a finished job with a small
// worker pool. Failures are counted, not fatal.
func (d *Downloader) SaveAll(ctx context.Context, dir string, job models.PendingJob, gens []models.Generation, concurrency int) (succeeded, failed int) {
	if concurrency < 1 {
		concurrency = 1
	}

	jobs := make(chan models.Generation, len(gens))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for gen := range jobs {
				if _, err := d.SaveGeneration(ctx, dir, job, gen); err != nil {
					log.WithError(err).Warnf("Image worker %d: failed to save image for job %s", id, job.JobID)
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}

	for _, gen := range gens {
		jobs <- gen
	}
	close(jobs)
	wg.Wait()

	return succeeded, failed
}

// imageBytes fetches or decodes the image payload of a generation.
func (d *Downloader) imageBytes(ctx context.Context, gen models.Generation) ([]byte, error) {
	img := strings.TrimSpace(gen.Img)
	if img == "" {
		return nil, ErrEmptyImage
	}

	if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, img, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHttpRequest, err)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHttpRequest, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %d fetching %s", ErrHttpStatus, resp.StatusCode, img)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading image body: %w", err)
		}
		return data, nil
	}

	data, err := base64.StdEncoding.DecodeString(img)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 image: %w", err)
	}
	return data, nil
}
