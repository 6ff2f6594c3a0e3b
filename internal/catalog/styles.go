package catalog

import "math/rand"

// StylePreset bundles a prompt template with the model it was tuned
// for. A non-empty Model pins the job to that model regardless of what
// the request asked for.
type StylePreset struct {
	Name     string
	Template string
	Model    string
}

// stylePresets is keyed by preset name. The "{p}" placeholder is
// replaced with the user prompt.
var stylePresets = []StylePreset{
	{Name: "anime", Template: "{p}, anime style, key visual, studio quality", Model: "Anything Diffusion"},
	{Name: "arcane", Template: "{p}, arcane style", Model: "Arcane Diffusion"},
	{Name: "cyberpunk", Template: "{p}, cyberpunk, neon lighting, high detail", Model: ModelStableDiffusion},
	{Name: "ghibli", Template: "{p}, ghibli style, hand drawn", Model: "Ghibli Diffusion"},
	{Name: "modern-disney", Template: "{p}, modern disney style", Model: "Mo Di Diffusion"},
	{Name: "oil-painting", Template: "{p}, oil painting, thick brush strokes", Model: ModelStableDiffusion},
	{Name: "papercraft", Template: "{p}, PaperCut, layered paper art", Model: "Papercut Diffusion"},
	{Name: "photorealism", Template: "{p}, photorealistic, 4k, sharp focus", Model: ModelSD21},
	{Name: "redshift", Template: "{p}, redshift style, cinematic render", Model: "Redshift Diffusion"},
	{Name: "synthwave", Template: "{p}, snthwve style, retrowave palette", Model: "Synthwave Punk"},
}

var stylesByName = func() map[string]StylePreset {
	m := make(map[string]StylePreset, len(stylePresets))
	for _, preset := range stylePresets {
		m[preset.Name] = preset
	}
	return m
}()

// StylePresets returns the preset catalog in stable order.
func StylePresets() []StylePreset {
	out := make([]StylePreset, len(stylePresets))
	copy(out, stylePresets)
	return out
}

// LookupStyle returns the preset registered under name.
func LookupStyle(name string) (StylePreset, bool) {
	preset, ok := stylesByName[name]
	return preset, ok
}

// RandomStyle picks a preset uniformly from the catalog.
func RandomStyle(rng *rand.Rand) StylePreset {
	return stylePresets[rng.Intn(len(stylePresets))]
}
