package models

type (
	Config struct {
		// Connection/Auth
		ApiKey      string `toml:"ApiKey"`
		HordeUrl    string `toml:"HordeUrl"`
		ClientAgent string `toml:"ClientAgent"`

		// Paths
		SavePath       string `toml:"SavePath"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Polling behavior
		PollIntervalSec int `toml:"PollIntervalSec"`
		Concurrency     int `toml:"Concurrency"`

		// Completion behavior
		SaveImages     bool `toml:"SaveImages"`
		IndexCompleted bool `toml:"IndexCompleted"`

		// API behavior
		ApiDelayMs          int  `toml:"ApiDelayMs"`
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`
		LogApiRequests      bool `toml:"LogApiRequests"`
	}

	// GenerationRequest is a single user-facing request, pre-expansion.
	// Models, sampler, style preset and orientation may still hold the
	// "random" sentinel, and the fan-out flags may still be set. The
	// expansion engine resolves all of that into concrete PendingJobs.
	GenerationRequest struct {
		Prompt            string   `json:"prompt"`
		NegativePrompt    string   `json:"negativePrompt,omitempty"`
		NumImages         int      `json:"numImages"`
		Models            []string `json:"models"`
		Sampler           string   `json:"sampler"`
		StylePreset       string   `json:"stylePreset,omitempty"`
		Orientation       string   `json:"orientation"`
		Width             int      `json:"width,omitempty"`
		Height            int      `json:"height,omitempty"`
		Steps             int      `json:"steps"`
		CfgScale          float64  `json:"cfgScale"`
		Seed              string   `json:"seed,omitempty"`
		UseAllModels      bool     `json:"useAllModels,omitempty"`
		UseAllSamplers    bool     `json:"useAllSamplers,omitempty"`
		SourceProcessing  string   `json:"sourceProcessing,omitempty"`
		SourceImage       string   `json:"sourceImage,omitempty"`
		DenoisingStrength float64  `json:"denoisingStrength,omitempty"`
	}

	// PendingJob is one concrete unit of work plus everything the horde
	// has reported about it so far. The JobID starts out as a locally
	// generated uuid and is swapped for the backend id once the job is
	// accepted.
	PendingJob struct {
		GenerationRequest

		JobID        string `json:"jobId"`
		Timestamp    int64  `json:"timestamp"`
		Model        string `json:"model"`
		ModelVersion string `json:"modelVersion"`

		// Fields reported by the horde check endpoint.
		Done          bool      `json:"done"`
		Finished      int       `json:"finished"`
		IsPossible    bool      `json:"is_possible"`
		Processing    int       `json:"processing"`
		QueuePosition int       `json:"queue_position"`
		WaitTime      int       `json:"wait_time"`
		Waiting       int       `json:"waiting"`
		InitWaitTime  *int      `json:"initWaitTime,omitempty"`
		JobStatus     JobStatus `json:"jobStatus"`
		ErrorMessage  string    `json:"errorMessage,omitempty"`
		ErrorStatus   string    `json:"errorStatus,omitempty"`
	}

	// Horde API payloads.
	GenerateParams struct {
		SamplerName       string  `json:"sampler_name"`
		CfgScale          float64 `json:"cfg_scale"`
		DenoisingStrength float64 `json:"denoising_strength,omitempty"`
		Seed              string  `json:"seed,omitempty"`
		Height            int     `json:"height"`
		Width             int     `json:"width"`
		Steps             int     `json:"steps"`
		N                 int     `json:"n"`
	}

	GenerateRequest struct {
		Prompt           string         `json:"prompt"`
		Params           GenerateParams `json:"params"`
		Nsfw             bool           `json:"nsfw"`
		TrustedWorkers   bool           `json:"trusted_workers"`
		Models           []string       `json:"models"`
		SourceImage      string         `json:"source_image,omitempty"`
		SourceProcessing string         `json:"source_processing,omitempty"`
	}

	GenerateResponse struct {
		ID      string  `json:"id"`
		Kudos   float64 `json:"kudos"`
		Message string  `json:"message,omitempty"`
	}

	CheckResponse struct {
		Done          bool    `json:"done"`
		Faulted       bool    `json:"faulted"`
		Finished      int     `json:"finished"`
		IsPossible    bool    `json:"is_possible"`
		Processing    int     `json:"processing"`
		QueuePosition int     `json:"queue_position"`
		Restarted     int     `json:"restarted"`
		WaitTime      int     `json:"wait_time"`
		Waiting       int     `json:"waiting"`
		Kudos         float64 `json:"kudos"`
	}

	// Generation is one finished image inside a status response.
	Generation struct {
		Img        string `json:"img"`
		Seed       string `json:"seed"`
		WorkerID   string `json:"worker_id"`
		WorkerName string `json:"worker_name"`
		Model      string `json:"model"`
		State      string `json:"state"`
	}

	StatusResponse struct {
		CheckResponse
		Generations []Generation `json:"generations"`
	}

	ApiError struct {
		Message string `json:"message"`
	}
)

// JobStatus tracks a job through its lifecycle. Done and Error are
// terminal: nothing transitions a job out of them.
type JobStatus string

const (
	StatusWaiting    JobStatus = "waiting"
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// RandomSentinel is the placeholder a GenerationRequest may carry for
// model, sampler, style preset or orientation before expansion.
const RandomSentinel = "random"

// Source processing modes accepted by the horde.
const (
	SourceProcessingTxt2Img    = "txt2img"
	SourceProcessingImg2Img    = "img2img"
	SourceProcessingInpainting = "inpainting"
)
