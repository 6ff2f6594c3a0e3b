package downloader

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testImageBytes = []byte("RIFF....WEBPVP8 fake image payload")

func finishedJob() models.PendingJob {
	job := models.PendingJob{JobID: "horde-42"}
	job.Prompt = "a lighthouse at dusk"
	return job
}

func TestSaveGenerationFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(testImageBytes)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(server.Client())

	path, err := d.SaveGeneration(context.Background(), dir, finishedJob(), models.Generation{Img: server.URL + "/a.webp"})
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Contains(t, filepath.Base(path), "a_lighthouse_at_dusk")
	assert.Contains(t, filepath.Base(path), ".webp")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testImageBytes, data)
}

func TestSaveGenerationFromBase64(t *testing.T) {
	dir := t.TempDir()
	d := New(nil)

	gen := models.Generation{Img: base64.StdEncoding.EncodeToString(testImageBytes)}
	path, err := d.SaveGeneration(context.Background(), dir, finishedJob(), gen)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testImageBytes, data)
}

func TestSaveGenerationIsIdempotent(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(testImageBytes)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(server.Client())
	gen := models.Generation{Img: server.URL + "/a.webp"}

	first, err := d.SaveGeneration(context.Background(), dir, finishedJob(), gen)
	require.NoError(t, err)
	second, err := d.SaveGeneration(context.Background(), dir, finishedJob(), gen)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same content lands on the same path")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveGenerationEmptyImage(t *testing.T) {
	d := New(nil)
	_, err := d.SaveGeneration(context.Background(), t.TempDir(), finishedJob(), models.Generation{})
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestSaveGenerationHttpError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := New(server.Client())
	_, err := d.SaveGeneration(context.Background(), t.TempDir(), finishedJob(), models.Generation{Img: server.URL + "/expired.webp"})
	assert.ErrorIs(t, err, ErrHttpStatus)
}

func TestSaveAllCountsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.webp" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		// Unique body per path so each generation lands in its own file.
		_, _ = w.Write(append(testImageBytes, []byte(r.URL.Path)...))
	}))
	defer server.Close()

	d := New(server.Client())
	gens := []models.Generation{
		{Img: server.URL + "/a.webp"},
		{Img: server.URL + "/bad.webp"},
		{Img: server.URL + "/b.webp"},
		{Img: ""},
	}

	succeeded, failed := d.SaveAll(context.Background(), t.TempDir(), finishedJob(), gens, 2)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 2, failed)
}
