package horde

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alx/artbot-for-stable-diffusion/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom error types.
var (
	ErrRateLimited  = errors.New("horde API rate limit exceeded")
	ErrUnauthorized = errors.New("horde API request unauthorized (check API key)")
	ErrNotFound     = errors.New("horde API resource not found")
	ErrServerError  = errors.New("horde API server error")
	ErrBadRequest   = errors.New("horde API rejected the request")
)

// DefaultBaseUrl is the public AI Horde endpoint.
const DefaultBaseUrl = "https://aihorde.net/api/v2"

// AnonApiKey is accepted by the horde for unauthenticated requests.
const AnonApiKey = "0000000000"

const defaultClientAgent = "artbot-cli:1.0:github.com/alx/artbot-for-stable-diffusion"

// Client talks to the AI Horde generate endpoints.
type Client struct {
	BaseUrl     string
	ApiKey      string
	ClientAgent string
	HttpClient  *http.Client

	maxRetries int
}

// NewClient creates a horde API client. A nil httpClient gets a
// sensible default timeout; transports (including the logging one) are
// the caller's choice.
func NewClient(cfg models.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := 30 * time.Second
		if cfg.ApiClientTimeoutSec > 0 {
			timeout = time.Duration(cfg.ApiClientTimeoutSec) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseUrl := cfg.HordeUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	apiKey := cfg.ApiKey
	if apiKey == "" {
		apiKey = AnonApiKey
	}
	clientAgent := cfg.ClientAgent
	if clientAgent == "" {
		clientAgent = defaultClientAgent
	}

	return &Client{
		BaseUrl:     baseUrl,
		ApiKey:      apiKey,
		ClientAgent: clientAgent,
		HttpClient:  httpClient,
		maxRetries:  3,
	}
}

// SubmitJob submits a resolved job spec and returns the backend job id.
func (c *Client) SubmitJob(ctx context.Context, job models.PendingJob) (string, error) {
	payload := models.GenerateRequest{
		Prompt: buildPrompt(job),
		Params: models.GenerateParams{
			SamplerName:       job.Sampler,
			CfgScale:          job.CfgScale,
			DenoisingStrength: job.DenoisingStrength,
			Seed:              job.Seed,
			Height:            job.Height,
			Width:             job.Width,
			Steps:             job.Steps,
			N:                 1,
		},
		Models:           []string{job.Model},
		SourceImage:      job.SourceImage,
		SourceProcessing: job.SourceProcessing,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshalling generate request: %w", err)
	}

	var response models.GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/generate/async", bytes.NewReader(body), &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("horde accepted the job but returned no id (message: %s)", response.Message)
	}
	return response.ID, nil
}

// Check queries the lightweight check endpoint for a single job id.
// A 404 maps to ErrNotFound, which signals permanent loss of the job
// server-side.
func (c *Client) Check(ctx context.Context, jobID string) (models.CheckResponse, error) {
	var response models.CheckResponse
	err := c.doJSON(ctx, http.MethodGet, "/generate/check/"+jobID, nil, &response)
	return response, err
}

// Status fetches the full status payload, including finished
// generations. Heavier than Check; only called once a job is done.
func (c *Client) Status(ctx context.Context, jobID string) (models.StatusResponse, error) {
	var response models.StatusResponse
	err := c.doJSON(ctx, http.MethodGet, "/generate/status/"+jobID, nil, &response)
	return response, err
}

// buildPrompt combines prompt and negative prompt the way the horde
// expects ("prompt ### negative").
func buildPrompt(job models.PendingJob) string {
	if job.NegativePrompt == "" {
		return job.Prompt
	}
	return job.Prompt + " ### " + job.NegativePrompt
}

// doJSON performs one API call with bounded retries for rate limits and
// server errors. Auth failures, 404s and validation errors are never
// retried.
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("error reading request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseUrl+path, reqBody)
		if err != nil {
			return fmt.Errorf("error creating request for %s: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Client-Agent", c.ClientAgent)
		req.Header.Set("apikey", c.ApiKey)

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, c.maxRetries, err)
			if ctx.Err() != nil {
				return lastErr
			}
			if attempt < c.maxRetries-1 {
				log.WithError(err).Warnf("Retrying %s (%d/%d)...", path, attempt+1, c.maxRetries)
				c.sleep(ctx, time.Duration(attempt+1)*2*time.Second)
				continue
			}
			break
		}

		respBody, readErr := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Error closing response body")
		}
		if readErr != nil {
			return fmt.Errorf("error reading response body: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
			if err := json.Unmarshal(respBody, out); err != nil {
				log.WithError(err).Errorf("Error unmarshalling response from %s", path)
				return fmt.Errorf("error unmarshalling response JSON: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiMessage(respBody))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiMessage(respBody))
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
		default:
			return fmt.Errorf("%w (status %d): %s", ErrBadRequest, resp.StatusCode, apiMessage(respBody))
		}

		// Rate limit or 5xx, retryable.
		if attempt < c.maxRetries-1 {
			var sleepDuration time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				sleepDuration = time.Duration(attempt+1) * 5 * time.Second
				log.WithError(lastErr).Warnf("Rate limited. Retrying %s (%d/%d) after %s...", path, attempt+1, c.maxRetries, sleepDuration)
			} else {
				sleepDuration = time.Duration(attempt+1) * 3 * time.Second
				log.WithError(lastErr).Warnf("Server error. Retrying %s (%d/%d) after %s...", path, attempt+1, c.maxRetries, sleepDuration)
			}
			c.sleep(ctx, sleepDuration)
		}
	}

	return lastErr
}

// sleep waits for d or until the context is cancelled.
func (c *Client) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// apiMessage extracts the message field the horde returns on errors.
func apiMessage(body []byte) string {
	var apiErr models.ApiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return "no error detail provided"
	}
	return apiErr.Message
}
