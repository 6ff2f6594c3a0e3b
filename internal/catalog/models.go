package catalog

import "math/rand"

// Model names with special handling during expansion.
const (
	ModelStableDiffusion   = "stable_diffusion"
	ModelSD2Base           = "stable_diffusion_2"
	ModelSD20              = "stable_diffusion_2.0"
	ModelSD21              = "stable_diffusion_2.1"
	ModelSDInpainting      = "stable_diffusion_inpainting"
	ModelSD2Depth          = "Stable Diffusion 2 Depth"
)

// ModelInfo describes one entry in the model catalog.
type ModelInfo struct {
	Name    string
	Version string
	// Trigger words are prepended to the prompt for models trained on
	// specific activation tokens.
	Trigger []string
	// SkipBlanket marks models that make no sense in an all-models
	// fan-out (inpainting-only, depth-only).
	SkipBlanket bool
}

// validModels is the catalog of models the horde currently serves.
// Order is stable so all-models fan-out output is deterministic.
var validModels = []ModelInfo{
	{Name: ModelStableDiffusion, Version: "1.5"},
	{Name: ModelSD2Base, Version: "2.0"},
	{Name: ModelSD20, Version: "2.0"},
	{Name: ModelSD21, Version: "2.1"},
	{Name: ModelSDInpainting, Version: "1.5", SkipBlanket: true},
	{Name: ModelSD2Depth, Version: "2.0", SkipBlanket: true},
	{Name: "Anything Diffusion", Version: "3.0"},
	{Name: "Arcane Diffusion", Version: "3", Trigger: []string{"arcane style"}},
	{Name: "Ghibli Diffusion", Version: "1", Trigger: []string{"ghibli style"}},
	{Name: "Mo Di Diffusion", Version: "1", Trigger: []string{"modern disney style"}},
	{Name: "Redshift Diffusion", Version: "1", Trigger: []string{"redshift style"}},
	{Name: "Papercut Diffusion", Version: "1", Trigger: []string{"PaperCut"}},
	{Name: "Synthwave Punk", Version: "2", Trigger: []string{"snthwve style", "nvinkpunk"}},
	{Name: "waifu_diffusion", Version: "1.3"},
	{Name: "trinart_characters", Version: "1"},
}

var modelsByName = func() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(validModels))
	for _, info := range validModels {
		m[info.Name] = info
	}
	return m
}()

// ValidModels returns the full model catalog in stable order.
func ValidModels() []ModelInfo {
	out := make([]ModelInfo, len(validModels))
	copy(out, validModels)
	return out
}

// LookupModel returns catalog info for a model name.
func LookupModel(name string) (ModelInfo, bool) {
	info, ok := modelsByName[name]
	return info, ok
}

// ModelVersion derives the denormalized version tag for a model.
// Unknown models report an empty version.
func ModelVersion(name string) string {
	if info, ok := modelsByName[name]; ok {
		return info.Version
	}
	return ""
}

// TriggerWords returns the activation tokens registered for a model,
// or nil if there are none.
func TriggerWords(name string) []string {
	if info, ok := modelsByName[name]; ok {
		return info.Trigger
	}
	return nil
}

// RandomModel picks a model uniformly from the catalog, excluding the
// entries that are unsuitable for blanket generation.
func RandomModel(rng *rand.Rand) string {
	candidates := make([]string, 0, len(validModels))
	for _, info := range validModels {
		if info.SkipBlanket {
			continue
		}
		candidates = append(candidates, info.Name)
	}
	return candidates[rng.Intn(len(candidates))]
}
