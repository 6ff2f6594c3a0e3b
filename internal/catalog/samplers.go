package catalog

import "math/rand"

// SamplerDpmSolver is the only sampler the SD 2.x line reliably
// supports on the horde.
const SamplerDpmSolver = "dpmsolver"

// defaultSamplers is the fixed set used for all-samplers fan-out and
// as the base pool for random selection.
var defaultSamplers = []string{
	"k_dpm_2_a",
	"k_dpm_2",
	"k_euler_a",
	"k_euler",
	"k_heun",
	"k_lms",
}

// img2imgSamplers is the subset known to behave with a source image.
var img2imgSamplers = []string{
	"k_dpm_2",
	"k_euler_a",
	"k_euler",
	"k_lms",
}

// slowSamplers roughly double the effective step cost. They are
// excluded from random selection once the step count is high enough
// that a worker would spend an unreasonable amount of kudos on one job.
var slowSamplers = map[string]bool{
	"k_dpm_2_a": true,
	"k_dpm_2":   true,
	"k_heun":    true,
}

const slowSamplerStepCeiling = 25

// DefaultSamplers returns the fixed default sampler set.
func DefaultSamplers() []string {
	out := make([]string, len(defaultSamplers))
	copy(out, defaultSamplers)
	return out
}

// SamplersForBatch returns the sampler set for an all-samplers fan-out
// given the request's model. The SD 2.x base model only works with
// dpmsolver, so it gets a single-entry set.
func SamplersForBatch(model string) []string {
	if model == ModelSD2Base {
		return []string{SamplerDpmSolver}
	}
	return DefaultSamplers()
}

// EligibleSamplers returns the samplers a random pick may choose from,
// narrowed by step count and source-processing mode.
func EligibleSamplers(steps int, sourceProcessing string) []string {
	pool := defaultSamplers
	switch sourceProcessing {
	case "", "txt2img":
	default:
		pool = img2imgSamplers
	}

	var eligible []string
	for _, sampler := range pool {
		if steps > slowSamplerStepCeiling && slowSamplers[sampler] {
			continue
		}
		eligible = append(eligible, sampler)
	}
	if len(eligible) == 0 {
		eligible = []string{"k_euler_a"}
	}
	return eligible
}

// RandomSampler picks a sampler uniformly from the eligible pool.
func RandomSampler(rng *rand.Rand, steps int, sourceProcessing string) string {
	eligible := EligibleSamplers(steps, sourceProcessing)
	return eligible[rng.Intn(len(eligible))]
}

// ForcedSampler reports the sampler override for models that ignore
// the requested sampler entirely. The override is applied last during
// resolution so it always wins.
func ForcedSampler(model string) (string, bool) {
	if model == ModelSD20 || model == ModelSD21 {
		return SamplerDpmSolver, true
	}
	return "", false
}
